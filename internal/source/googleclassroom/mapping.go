package googleclassroom

import (
	"encoding/json"
	"fmt"
	"strconv"

	"lms-sync/internal/source"
	"lms-sync/internal/syncdb"
)

// MapUsers converts synced course memberships into UDM user rows. role is
// "Student" or "Teacher" depending on which membership list was pulled.
func MapUsers(rows []syncdb.Record, role string) []syncdb.Record {
	out := source.Remap(rows, source.Google, map[string]string{
		"SourceSystemIdentifier": "userId",
		"LocalUserIdentifier":    "userId",
		"Name":                   "profile_name_fullName",
		"EmailAddress":           "profile_emailAddress",
	}, nil)
	for _, r := range out {
		r["UserRole"] = role
	}
	return out
}

// MapSections converts synced courses into UDM section rows. Classroom
// has no separate section entity, so the course is the section.
func MapSections(rows []syncdb.Record) []syncdb.Record {
	out := source.Remap(rows, source.Google, map[string]string{
		"SourceSystemIdentifier": "id",
		"Title":                  "name",
		"SectionDescription":     "description",
		"Term":                   "section",
		"SourceCreateDate":       "creationTime",
		"SourceLastModifiedDate": "updateTime",
	}, []string{"SourceCreateDate", "SourceLastModifiedDate"})
	for i, r := range out {
		switch rows[i]["courseState"] {
		case "ACTIVE":
			r["LMSSectionStatus"] = "active"
		case "ARCHIVED":
			r["LMSSectionStatus"] = "archived"
		default:
			r["LMSSectionStatus"] = rows[i]["courseState"]
		}
	}
	return out
}

// MapSectionAssociations converts synced student memberships into UDM
// section association rows. Classroom has no membership id, so the
// identifier is the courseId/userId pair.
func MapSectionAssociations(rows []syncdb.Record) []syncdb.Record {
	out := source.Remap(rows, source.Google, map[string]string{
		"LMSUserSourceSystemIdentifier":    "userId",
		"LMSSectionSourceSystemIdentifier": "courseId",
	}, nil)
	for i, r := range out {
		r["SourceSystemIdentifier"] = associationID(rows[i])
		r["EnrollmentStatus"] = "active"
	}
	return out
}

func associationID(row syncdb.Record) string {
	return fmt.Sprintf("%s-%s", row["courseId"], row["userId"])
}

// MapAssignments converts synced coursework into UDM assignment rows.
func MapAssignments(rows []syncdb.Record) []syncdb.Record {
	out := source.Remap(rows, source.Google, map[string]string{
		"SourceSystemIdentifier":           "id",
		"Title":                            "title",
		"AssignmentCategory":               "workType",
		"AssignmentDescription":            "description",
		"StartDateTime":                    "scheduledTime",
		"SubmissionType":                   "workType",
		"MaxPoints":                        "maxPoints",
		"LMSSectionSourceSystemIdentifier": "courseId",
		"SourceCreateDate":                 "creationTime",
		"SourceLastModifiedDate":           "updateTime",
	}, []string{"StartDateTime", "SourceCreateDate", "SourceLastModifiedDate"})
	for i, r := range out {
		r["DueDateTime"] = dueDateTime(rows[i])
	}
	return out
}

// dueDateTime reassembles Classroom's split dueDate/dueTime fields into
// the UDM timestamp layout. Missing date means no due date; missing time
// defaults to midnight UTC.
func dueDateTime(row syncdb.Record) string {
	year := atoi(row["dueDate_year"])
	month := atoi(row["dueDate_month"])
	day := atoi(row["dueDate_day"])
	if year == 0 || month == 0 || day == 0 {
		return ""
	}
	hours := atoi(row["dueTime_hours"])
	minutes := atoi(row["dueTime_minutes"])
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:00", year, month, day, hours, minutes)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// MapSubmissions converts synced student submissions into UDM rows.
func MapSubmissions(rows []syncdb.Record) []syncdb.Record {
	out := source.Remap(rows, source.Google, map[string]string{
		"SourceSystemIdentifier":           "id",
		"SubmissionDateTime":               "updateTime",
		"EarnedPoints":                     "assignedGrade",
		"Grade":                            "assignedGrade",
		"AssignmentSourceSystemIdentifier": "courseWorkId",
		"LMSUserSourceSystemIdentifier":    "userId",
		"SourceCreateDate":                 "creationTime",
		"SourceLastModifiedDate":           "updateTime",
	}, []string{"SubmissionDateTime", "SourceCreateDate", "SourceLastModifiedDate"})
	for i, r := range out {
		if rows[i]["late"] == "true" {
			r["SubmissionStatus"] = "late"
		} else {
			r["SubmissionStatus"] = rows[i]["state"]
		}
	}
	return out
}

// historyEntry is one submissionHistory element. Each element carries
// either a state change or a grade change, never both.
type historyEntry struct {
	StateHistory *struct {
		State          string `json:"state"`
		StateTimestamp string `json:"stateTimestamp"`
	} `json:"stateHistory"`
	GradeHistory *struct {
		GradeTimestamp  string `json:"gradeTimestamp"`
		GradeChangeType string `json:"gradeChangeType"`
	} `json:"gradeHistory"`
}

// MapSectionActivities explodes each synced submission's history into UDM
// section activity rows, one per state or grade change. Classroom has no
// discussion surface, so submission history is its only activity signal.
func MapSectionActivities(rows []syncdb.Record) []syncdb.Record {
	var out []syncdb.Record
	for _, row := range rows {
		cell := row["submissionHistory"]
		if cell == "" {
			continue
		}
		var history []historyEntry
		if err := json.Unmarshal([]byte(cell), &history); err != nil {
			continue
		}

		for _, entry := range history {
			rec := syncdb.Record{
				"SourceSystem":                     string(source.Google),
				"EntityStatus":                     "active",
				"UserSourceSystemIdentifier":       row["userId"],
				"LMSSectionSourceSystemIdentifier": row["courseId"],
				syncdb.ColCreateDate:               row[syncdb.ColCreateDate],
				syncdb.ColLastModifiedDate:         row[syncdb.ColLastModifiedDate],
			}
			switch {
			case entry.StateHistory != nil:
				rec["SourceSystemIdentifier"] = fmt.Sprintf("S-%s-%s-%s-%s",
					row["courseId"], row["courseWorkId"], row["id"], entry.StateHistory.StateTimestamp)
				rec["ActivityType"] = "Submission State Change"
				rec["ActivityStatus"] = entry.StateHistory.State
				rec["ActivityDateTime"] = source.FormatSourceTime(entry.StateHistory.StateTimestamp)
			case entry.GradeHistory != nil:
				rec["SourceSystemIdentifier"] = fmt.Sprintf("G-%s-%s-%s-%s",
					row["courseId"], row["courseWorkId"], row["id"], entry.GradeHistory.GradeTimestamp)
				rec["ActivityType"] = "Submission Grade Change"
				rec["ActivityStatus"] = entry.GradeHistory.GradeChangeType
				rec["ActivityDateTime"] = source.FormatSourceTime(entry.GradeHistory.GradeTimestamp)
			default:
				continue
			}
			out = append(out, rec)
		}
	}
	return out
}
