package schoology

import (
	"fmt"
	"strconv"
	"time"

	"lms-sync/internal/source"
	"lms-sync/internal/syncdb"
)

// epochToTime renders a unix-seconds string in the UDM timestamp layout.
func epochToTime(epoch string) string {
	secs, err := strconv.ParseInt(epoch, 10, 64)
	if err != nil || secs == 0 {
		return ""
	}
	return time.Unix(secs, 0).UTC().Format("2006-01-02 15:04:05")
}

// MapUsers converts synced Schoology users into UDM user rows.
func MapUsers(rows []syncdb.Record) []syncdb.Record {
	out := source.Remap(rows, source.Schoology, map[string]string{
		"SourceSystemIdentifier": "uid",
		"LocalUserIdentifier":    "username",
		"SISUserIdentifier":      "school_uid",
		"Name":                   "name_display",
		"EmailAddress":           "primary_email",
	}, nil)
	for _, r := range out {
		r["UserRole"] = "Student"
	}
	return out
}

// MapSections converts synced Schoology sections into UDM section rows.
func MapSections(rows []syncdb.Record) []syncdb.Record {
	out := source.Remap(rows, source.Schoology, map[string]string{
		"SourceSystemIdentifier": "id",
		"SISSectionIdentifier":   "section_school_code",
		"SectionDescription":     "description",
	}, nil)
	for i, r := range out {
		r["Title"] = sectionTitle(rows[i])
		if rows[i]["active"] == "1" {
			r["LMSSectionStatus"] = "active"
		} else {
			r["LMSSectionStatus"] = "inactive"
		}
	}
	return out
}

func sectionTitle(row syncdb.Record) string {
	if row["section_title"] == "" {
		return row["course_title"]
	}
	return row["course_title"] + " - " + row["section_title"]
}

// Schoology enrollment status codes.
const (
	enrollmentActive   = "1"
	enrollmentArchived = "5"
)

// MapSectionAssociations converts synced enrollments into UDM section
// association rows. sectionID names the section the enrollments were
// pulled for.
func MapSectionAssociations(rows []syncdb.Record, sectionID string) []syncdb.Record {
	out := source.Remap(rows, source.Schoology, map[string]string{
		"SourceSystemIdentifier":        "id",
		"LMSUserSourceSystemIdentifier": "uid",
	}, nil)
	for i, r := range out {
		r["LMSSectionSourceSystemIdentifier"] = sectionID
		switch rows[i]["status"] {
		case enrollmentActive:
			r["EnrollmentStatus"] = "active"
		case enrollmentArchived:
			r["EnrollmentStatus"] = "archived"
		default:
			r["EnrollmentStatus"] = "inactive"
		}
	}
	return out
}

// MapAssignments converts synced Schoology assignments into UDM rows.
// Schoology's due field is already in the UDM timestamp layout.
func MapAssignments(rows []syncdb.Record) []syncdb.Record {
	return source.Remap(rows, source.Schoology, map[string]string{
		"SourceSystemIdentifier":           "id",
		"Title":                            "title",
		"AssignmentCategory":               "grading_category",
		"AssignmentDescription":            "description",
		"DueDateTime":                      "due",
		"SubmissionType":                   "type",
		"MaxPoints":                        "max_points",
		"LMSSectionSourceSystemIdentifier": "section_id",
	}, nil)
}

// MapSubmissions converts synced submission revisions into UDM rows. A
// revision has no id of its own, so the identifier is the
// section/grade-item/user triple.
func MapSubmissions(rows []syncdb.Record) []syncdb.Record {
	out := source.Remap(rows, source.Schoology, map[string]string{
		"AssignmentSourceSystemIdentifier": "grade_item_id",
		"LMSUserSourceSystemIdentifier":    "uid",
	}, nil)
	for i, r := range out {
		row := rows[i]
		r["SourceSystemIdentifier"] = fmt.Sprintf("%s#%s#%s",
			row["section_id"], row["grade_item_id"], row["uid"])
		r["SubmissionDateTime"] = epochToTime(row["created"])
		if row["draft"] == "1" {
			r["SubmissionStatus"] = "draft"
		} else {
			r["SubmissionStatus"] = "submitted"
		}
	}
	return out
}

// MapGrades converts section final grades into UDM grade rows.
func MapGrades(rows []syncdb.Record) []syncdb.Record {
	out := source.Remap(rows, source.Schoology, map[string]string{
		"Grade": "grade",
		"LMSUserLMSSectionAssociationSourceSystemIdentifier": "enrollment_id",
	}, nil)
	for i, r := range out {
		r["SourceSystemIdentifier"] = "g#" + rows[i]["enrollment_id"]
		r["GradeType"] = "Final"
	}
	return out
}

// MapSectionActivities converts synced discussions into UDM section
// activity rows.
func MapSectionActivities(rows []syncdb.Record) []syncdb.Record {
	out := source.Remap(rows, source.Schoology, map[string]string{
		"MessagePost":                      "body",
		"UserSourceSystemIdentifier":       "uid",
		"LMSSectionSourceSystemIdentifier": "section_id",
	}, nil)
	for i, r := range out {
		r["SourceSystemIdentifier"] = "d#" + rows[i]["id"]
		r["ActivityType"] = "discussion"
	}
	return out
}

// Schoology attendance status codes.
var attendanceStatuses = map[string]string{
	"1": "present",
	"2": "absence",
	"3": "tardy",
	"4": "excused",
}

// MapAttendanceEvents converts synced attendance entries into UDM rows.
// userByEnrollment resolves the enrollment id each entry carries to the
// student's uid.
func MapAttendanceEvents(rows []syncdb.Record, userByEnrollment map[string]string) []syncdb.Record {
	out := source.Remap(rows, source.Schoology, map[string]string{
		"EventDate": "date",
		"LMSUserLMSSectionAssociationSourceSystemIdentifier": "enrollment_id",
		"LMSSectionAssociationSystemIdentifier":              "section_id",
	}, nil)
	for i, r := range out {
		row := rows[i]
		r["SourceSystemIdentifier"] = row["enrollment_id"] + "#" + row["date"]
		r["LMSUserSourceSystemIdentifier"] = userByEnrollment[row["enrollment_id"]]
		if status, ok := attendanceStatuses[row["status"]]; ok {
			r["AttendanceStatus"] = status
		} else {
			r["AttendanceStatus"] = row["status"]
		}
	}
	return out
}
