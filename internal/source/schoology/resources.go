package schoology

// Raw column sets kept from each Schoology payload; pulls are projected
// onto these sets before syncing.

var userColumns = []string{
	"uid", "school_uid", "username", "name_display",
	"primary_email", "role_id",
}

var courseColumns = []string{
	"id", "title", "course_code",
}

var sectionColumns = []string{
	"id", "course_id", "course_title", "section_title",
	"section_school_code", "description", "active",
}

var enrollmentColumns = []string{
	"id", "uid", "school_uid", "status",
}

var assignmentColumns = []string{
	"id", "title", "description", "due", "type",
	"grading_category", "max_points", "section_id",
}

var submissionColumns = []string{
	"revision_id", "uid", "created", "latest", "draft",
	"section_id", "grade_item_id",
}

var discussionColumns = []string{
	"id", "uid", "title", "body", "published", "section_id",
}

// Natural keys per resource. Submission revisions and attendance entries
// have no ids of their own.
var (
	UserKey       = []string{"uid"}
	CourseKey     = []string{"id"}
	SectionKey    = []string{"id"}
	EnrollmentKey = []string{"id"}
	AssignmentKey = []string{"id"}
	SubmissionKey = []string{"section_id", "grade_item_id", "uid"}
	DiscussionKey = []string{"id"}
	GradeKey      = []string{"enrollment_id"}
	AttendanceKey = []string{"enrollment_id", "date"}
	UsageKey      = []string{"schoology_user_id", "last_event_timestamp"}
)
