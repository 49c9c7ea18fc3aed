// Package udm declares the Unified Data Model: the fixed set of resources the
// extractors emit and the loader consumes, regardless of source LMS. The
// registry is static data; nothing here is discovered by inspecting rows.
package udm

// ParentJoin declares how a relation-bearing resource resolves a parent's
// natural key to its surrogate key at load time. A child row is inserted
// only if the join succeeds; mismatches surface through the exceptions
// views.
type ParentJoin struct {
	// StagingColumn holds the parent's SourceSystemIdentifier in the
	// child's staging table.
	StagingColumn string
	// ParentTable is the parent's production table.
	ParentTable string
	// SurrogateColumn is the parent's identity column, copied into the
	// child row.
	SurrogateColumn string
}

// Resource describes one UDM resource.
type Resource struct {
	// Name is the registry key, e.g. "Assignments".
	Name string
	// Directory is the CSV directory name, e.g. "assignments".
	Directory string
	// Table is the ODS production table name (under the lms schema).
	Table string
	// Columns is the UDM column set in CSV order. Every resource carries
	// SourceSystemIdentifier and SourceSystem; the pair is the natural key
	// in the ODS.
	Columns []string
	// Parents lists the surrogate-key joins required at load time.
	Parents []ParentJoin
	// Collection marks child tables split out of another resource's
	// collection column (AssignmentSubmissionType).
	Collection bool
}

// SurrogateColumn returns the resource's identity column in the ODS.
func (r Resource) SurrogateColumn() string {
	return r.Table + "Identifier"
}

// NaturalKey returns the staging columns that identify a row in the ODS.
func (r Resource) NaturalKey() []string {
	if r.Collection {
		return []string{"SourceSystemIdentifier", "SourceSystem", "SubmissionType"}
	}
	return []string{"SourceSystemIdentifier", "SourceSystem"}
}

// HasColumn reports whether the resource's UDM column set contains name.
func (r Resource) HasColumn(name string) bool {
	for _, c := range r.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// commonTail is shared by every resource's column set.
var commonTail = []string{
	"EntityStatus",
	"CreateDate",
	"LastModifiedDate",
	"SourceCreateDate",
	"SourceLastModifiedDate",
}

func cols(domain ...string) []string {
	out := append([]string{"SourceSystemIdentifier", "SourceSystem"}, domain...)
	return append(out, commonTail...)
}

// Registry names every UDM resource. LoadOrder below fixes the dependency
// order; the map is for lookup.
var Registry = map[string]Resource{
	"Users": {
		Name:      "Users",
		Directory: "users",
		Table:     "LMSUser",
		Columns: cols(
			"UserRole",
			"LocalUserIdentifier",
			"SISUserIdentifier",
			"Name",
			"EmailAddress",
		),
	},
	"Sections": {
		Name:      "Sections",
		Directory: "sections",
		Table:     "LMSSection",
		Columns: cols(
			"SISSectionIdentifier",
			"Title",
			"SectionDescription",
			"Term",
			"LMSSectionStatus",
		),
	},
	"SectionAssociations": {
		Name:      "SectionAssociations",
		Directory: "section-associations",
		Table:     "LMSUserLMSSectionAssociation",
		Columns: cols(
			"EnrollmentStatus",
			"StartDate",
			"EndDate",
			"LMSUserSourceSystemIdentifier",
			"LMSSectionSourceSystemIdentifier",
		),
		Parents: []ParentJoin{
			{StagingColumn: "LMSSectionSourceSystemIdentifier", ParentTable: "LMSSection", SurrogateColumn: "LMSSectionIdentifier"},
			{StagingColumn: "LMSUserSourceSystemIdentifier", ParentTable: "LMSUser", SurrogateColumn: "LMSUserIdentifier"},
		},
	},
	"Assignments": {
		Name:      "Assignments",
		Directory: "assignments",
		Table:     "Assignment",
		Columns: cols(
			"Title",
			"AssignmentCategory",
			"AssignmentDescription",
			"StartDateTime",
			"EndDateTime",
			"DueDateTime",
			"SubmissionType",
			"MaxPoints",
			"LMSSectionSourceSystemIdentifier",
		),
		Parents: []ParentJoin{
			{StagingColumn: "LMSSectionSourceSystemIdentifier", ParentTable: "LMSSection", SurrogateColumn: "LMSSectionIdentifier"},
		},
	},
	"AssignmentSubmissionTypes": {
		Name:       "AssignmentSubmissionTypes",
		Directory:  "assignment-submission-types",
		Table:      "AssignmentSubmissionType",
		Columns:    []string{"SourceSystemIdentifier", "SourceSystem", "SubmissionType"},
		Collection: true,
		Parents: []ParentJoin{
			{StagingColumn: "SourceSystemIdentifier", ParentTable: "Assignment", SurrogateColumn: "AssignmentIdentifier"},
		},
	},
	"Submissions": {
		Name:      "Submissions",
		Directory: "submissions",
		Table:     "AssignmentSubmission",
		Columns: cols(
			"SubmissionStatus",
			"SubmissionDateTime",
			"EarnedPoints",
			"Grade",
			"AssignmentSourceSystemIdentifier",
			"LMSUserSourceSystemIdentifier",
		),
		Parents: []ParentJoin{
			{StagingColumn: "AssignmentSourceSystemIdentifier", ParentTable: "Assignment", SurrogateColumn: "AssignmentIdentifier"},
			{StagingColumn: "LMSUserSourceSystemIdentifier", ParentTable: "LMSUser", SurrogateColumn: "LMSUserIdentifier"},
		},
	},
	"Grades": {
		Name:      "Grades",
		Directory: "grades",
		Table:     "LMSGrade",
		Columns: cols(
			"Grade",
			"GradeType",
			"LMSUserLMSSectionAssociationSourceSystemIdentifier",
		),
		Parents: []ParentJoin{
			{StagingColumn: "LMSUserLMSSectionAssociationSourceSystemIdentifier", ParentTable: "LMSUserLMSSectionAssociation", SurrogateColumn: "LMSUserLMSSectionAssociationIdentifier"},
		},
	},
	"AttendanceEvents": {
		Name:      "AttendanceEvents",
		Directory: "attendance-events",
		Table:     "LMSUserAttendanceEvent",
		Columns: cols(
			"EventDate",
			"AttendanceStatus",
			"LMSSectionAssociationSystemIdentifier",
			"LMSUserSourceSystemIdentifier",
			"LMSUserLMSSectionAssociationSourceSystemIdentifier",
		),
		Parents: []ParentJoin{
			{StagingColumn: "LMSUserSourceSystemIdentifier", ParentTable: "LMSUser", SurrogateColumn: "LMSUserIdentifier"},
		},
	},
	"SectionActivities": {
		Name:      "SectionActivities",
		Directory: "section-activities",
		Table:     "LMSSectionActivity",
		Columns: cols(
			"ActivityType",
			"ActivityDateTime",
			"ActivityStatus",
			"MessagePost",
			"TotalActivityTimeInMinutes",
			"LMSSectionSourceSystemIdentifier",
			"UserSourceSystemIdentifier",
		),
		Parents: []ParentJoin{
			{StagingColumn: "LMSSectionSourceSystemIdentifier", ParentTable: "LMSSection", SurrogateColumn: "LMSSectionIdentifier"},
			{StagingColumn: "UserSourceSystemIdentifier", ParentTable: "LMSUser", SurrogateColumn: "LMSUserIdentifier"},
		},
	},
	"SystemActivities": {
		Name:      "SystemActivities",
		Directory: "system-activities",
		Table:     "LMSSystemActivity",
		Columns: cols(
			"LMSUserSourceSystemIdentifier",
			"ActivityDateTime",
			"ActivityType",
			"ActivityStatus",
			"ParentSourceSystemIdentifier",
			"ActivityTimeInMinutes",
		),
		Parents: []ParentJoin{
			{StagingColumn: "LMSUserSourceSystemIdentifier", ParentTable: "LMSUser", SurrogateColumn: "LMSUserIdentifier"},
		},
	},
}

// LoadOrder is the fixed dependency order for loading resources into the
// ODS: parents before children.
var LoadOrder = []string{
	"Users",
	"Sections",
	"SectionAssociations",
	"Assignments",
	"AssignmentSubmissionTypes",
	"Submissions",
	"Grades",
	"AttendanceEvents",
	"SectionActivities",
	"SystemActivities",
}

// SourceSystem values accepted in UDM files.
const (
	SourceSystemCanvas    = "Canvas"
	SourceSystemGoogle    = "Google"
	SourceSystemSchoology = "Schoology"
)
