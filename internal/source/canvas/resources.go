package canvas

// Raw column sets kept from each Canvas payload. Canvas omits null fields
// from responses, so every pull is projected onto these sets before
// syncing; anything not listed never reaches the change store.

var courseColumns = []string{
	"id", "sis_course_id", "name", "course_code",
	"workflow_state", "start_at", "end_at", "created_at",
}

var sectionColumns = []string{
	"id", "course_id", "name", "sis_section_id",
	"start_at", "end_at", "created_at",
}

var studentColumns = []string{
	"id", "sis_user_id", "name", "sortable_name",
	"login_id", "email", "created_at",
}

var enrollmentColumns = []string{
	"id", "user_id", "course_id", "course_section_id",
	"type", "enrollment_state", "created_at", "updated_at",
	"grades_current_grade", "grades_current_score",
	"grades_final_grade", "grades_final_score",
}

var assignmentColumns = []string{
	"id", "course_id", "name", "description",
	"created_at", "updated_at", "due_at", "unlock_at", "lock_at",
	"submission_types", "points_possible",
}

var submissionColumns = []string{
	"id", "assignment_id", "user_id", "section_id", "submission_type",
	"submitted_at", "graded_at", "grade", "score",
	"workflow_state", "late", "missing",
}

var authEventColumns = []string{
	"id", "created_at", "event_type", "links_user",
}

// NaturalKey identifies every Canvas resource: the numeric id.
var NaturalKey = []string{"id"}
