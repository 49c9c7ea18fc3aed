package googleclassroom

// Raw column sets kept from each Classroom payload, after nested objects
// flatten to underscored names. Classroom omits unset fields, so pulls
// are projected onto these sets before syncing.

var courseColumns = []string{
	"id", "name", "section", "descriptionHeading", "description",
	"courseState", "enrollmentCode", "creationTime", "updateTime",
}

var membershipColumns = []string{
	"courseId", "userId",
	"profile_name_fullName", "profile_emailAddress",
}

var courseWorkColumns = []string{
	"id", "courseId", "title", "description", "workType", "state",
	"maxPoints", "creationTime", "updateTime", "scheduledTime",
	"dueDate_year", "dueDate_month", "dueDate_day",
	"dueTime_hours", "dueTime_minutes",
}

var submissionColumns = []string{
	"id", "courseId", "courseWorkId", "userId", "state", "late",
	"assignedGrade", "creationTime", "updateTime", "submissionHistory",
}

// Natural keys per resource. Memberships have no id of their own.
var (
	CourseKey     = []string{"id"}
	MembershipKey = []string{"courseId", "userId"}
	CourseWorkKey = []string{"id"}
	SubmissionKey = []string{"id"}
)
