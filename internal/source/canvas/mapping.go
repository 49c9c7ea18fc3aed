package canvas

import (
	"lms-sync/internal/source"
	"lms-sync/internal/syncdb"
)

// MapUsers converts synced Canvas students into UDM user rows.
func MapUsers(rows []syncdb.Record) []syncdb.Record {
	out := source.Remap(rows, source.Canvas, map[string]string{
		"SourceSystemIdentifier": "id",
		"LocalUserIdentifier":    "login_id",
		"SISUserIdentifier":      "sis_user_id",
		"Name":                   "name",
		"EmailAddress":           "email",
		"SourceCreateDate":       "created_at",
	}, []string{"SourceCreateDate"})
	for _, r := range out {
		r["UserRole"] = "Student"
	}
	return out
}

// MapSections converts synced Canvas sections into UDM section rows.
// courseStates maps course id to the course's workflow_state, which Canvas
// keeps on the course rather than the section.
func MapSections(rows []syncdb.Record, courseStates map[string]string) []syncdb.Record {
	out := source.Remap(rows, source.Canvas, map[string]string{
		"SourceSystemIdentifier": "id",
		"SISSectionIdentifier":   "sis_section_id",
		"Title":                  "name",
		"SourceCreateDate":       "created_at",
	}, []string{"SourceCreateDate"})
	for i, r := range out {
		r["LMSSectionStatus"] = sectionStatus(courseStates[rows[i]["course_id"]])
	}
	return out
}

func sectionStatus(workflowState string) string {
	switch workflowState {
	case "available":
		return "active"
	case "completed":
		return "archived"
	case "deleted":
		return "deleted"
	default:
		return workflowState
	}
}

// MapSectionAssociations converts synced Canvas enrollments into UDM
// section association rows.
func MapSectionAssociations(rows []syncdb.Record) []syncdb.Record {
	return source.Remap(rows, source.Canvas, map[string]string{
		"SourceSystemIdentifier":           "id",
		"EnrollmentStatus":                 "enrollment_state",
		"StartDate":                        "created_at",
		"LMSUserSourceSystemIdentifier":    "user_id",
		"LMSSectionSourceSystemIdentifier": "course_section_id",
		"SourceCreateDate":                 "created_at",
		"SourceLastModifiedDate":           "updated_at",
	}, []string{"StartDate", "SourceCreateDate", "SourceLastModifiedDate"})
}

// MapAssignments converts synced Canvas assignments into UDM assignment
// rows for one section. Canvas scopes assignments to the course, so the
// caller names the section they are emitted under.
func MapAssignments(rows []syncdb.Record, sectionID string) []syncdb.Record {
	out := source.Remap(rows, source.Canvas, map[string]string{
		"SourceSystemIdentifier": "id",
		"Title":                  "name",
		"AssignmentDescription":  "description",
		"StartDateTime":          "unlock_at",
		"EndDateTime":            "lock_at",
		"DueDateTime":            "due_at",
		"SubmissionType":         "submission_types",
		"MaxPoints":              "points_possible",
		"SourceCreateDate":       "created_at",
		"SourceLastModifiedDate": "updated_at",
	}, []string{"StartDateTime", "EndDateTime", "DueDateTime", "SourceCreateDate", "SourceLastModifiedDate"})
	for _, r := range out {
		r["AssignmentCategory"] = "assignment"
		r["LMSSectionSourceSystemIdentifier"] = sectionID
	}
	return out
}

// MapSubmissions converts synced Canvas submissions into UDM rows.
func MapSubmissions(rows []syncdb.Record) []syncdb.Record {
	out := source.Remap(rows, source.Canvas, map[string]string{
		"SourceSystemIdentifier":           "id",
		"SubmissionDateTime":               "submitted_at",
		"EarnedPoints":                     "score",
		"Grade":                            "grade",
		"AssignmentSourceSystemIdentifier": "assignment_id",
		"LMSUserSourceSystemIdentifier":    "user_id",
	}, []string{"SubmissionDateTime"})
	for i, r := range out {
		r["SubmissionStatus"] = submissionStatus(rows[i])
	}
	return out
}

func submissionStatus(row syncdb.Record) string {
	switch {
	case row["missing"] == "true":
		return "missing"
	case row["late"] == "true":
		return "late"
	default:
		return row["workflow_state"]
	}
}

// MapGrades derives UDM grade rows from synced Canvas enrollments, which
// carry the current and final grade fields. The grade's identifier is the
// enrollment id with a "g#" prefix so grades and associations never
// collide in the ODS.
func MapGrades(rows []syncdb.Record) []syncdb.Record {
	out := source.Remap(rows, source.Canvas, map[string]string{
		"LMSUserLMSSectionAssociationSourceSystemIdentifier": "id",
	}, nil)
	for i, r := range out {
		r["SourceSystemIdentifier"] = "g#" + rows[i]["id"]
		r["GradeType"] = "Final"
		r["Grade"] = rows[i]["grades_final_grade"]
		if r["Grade"] == "" {
			r["Grade"] = rows[i]["grades_final_score"]
		}
	}
	return out
}

// MapSystemActivities converts synced Canvas authentication events into
// UDM system activity rows.
func MapSystemActivities(rows []syncdb.Record) []syncdb.Record {
	out := source.Remap(rows, source.Canvas, map[string]string{
		"SourceSystemIdentifier":        "id",
		"ActivityDateTime":              "created_at",
		"LMSUserSourceSystemIdentifier": "links_user",
	}, []string{"ActivityDateTime"})
	for i, r := range out {
		switch rows[i]["event_type"] {
		case "login":
			r["ActivityType"] = "sign-in"
		case "logout":
			r["ActivityType"] = "sign-out"
		default:
			r["ActivityType"] = rows[i]["event_type"]
		}
	}
	return out
}
