package extract

import (
	"context"
	"fmt"

	"lms-sync/internal/source/schoology"
	"lms-sync/internal/syncdb"
)

// RunSchoology extracts one Schoology instance. usage may be nil when no
// usage-analytics drop directory is configured; system activities are then
// skipped even with the activities feature on.
func (r *Runner) RunSchoology(ctx context.Context, client *schoology.Client, usage *schoology.UsageReader) error {
	r.logger.Info("starting extract", "system", "Schoology")

	r.schoologyUsers(ctx, client)

	sections, ok := r.schoologySections(ctx, client)
	if !ok {
		return r.finish()
	}

	enrollments := r.schoologyEnrollments(ctx, client, sections)

	if r.features.Assignments {
		if assignments := r.schoologyAssignments(ctx, client, sections); assignments != nil {
			r.schoologySubmissions(ctx, client, assignments)
		}
	}

	if r.features.Grades {
		r.schoologyGrades(ctx, client, sections)
	}

	if r.features.Attendance && enrollments != nil {
		r.schoologyAttendance(ctx, client, sections, enrollments)
	}

	if r.features.Activities {
		r.schoologyDiscussions(ctx, client, sections)
		if usage != nil {
			r.schoologyUsage(usage)
		}
	}

	return r.finish()
}

func (r *Runner) schoologyUsers(ctx context.Context, client *schoology.Client) []syncdb.Record {
	pulled, err := client.Users(ctx)
	if err != nil {
		r.fail("users", err)
		return nil
	}
	synced, err := r.syncer.SyncAndCleanup("Users", pulled, schoology.UserKey)
	if err != nil {
		r.fail("users", err)
		return nil
	}
	if err := r.writer.WriteUsers(schoology.MapUsers(synced)); err != nil {
		r.fail("users", err)
		return nil
	}
	return synced
}

// schoologySections walks courses to their sections and writes the
// sections file. All section-scoped stages depend on the result.
func (r *Runner) schoologySections(ctx context.Context, client *schoology.Client) ([]syncdb.Record, bool) {
	courses, err := client.Courses(ctx)
	if err != nil {
		return nil, r.fail("courses", err)
	}
	courses, err = r.syncer.SyncAndCleanup("Courses", courses, schoology.CourseKey)
	if err != nil {
		return nil, r.fail("courses", err)
	}

	var pulled []syncdb.Record
	for _, course := range courses {
		rows, err := client.Sections(ctx, course["id"])
		if err != nil {
			return nil, r.fail("sections", err)
		}
		pulled = append(pulled, rows...)
	}

	synced, err := r.syncer.SyncAndCleanup("Sections", pulled, schoology.SectionKey)
	if err != nil {
		return nil, r.fail("sections", err)
	}
	if err := r.writer.WriteSections(schoology.MapSections(synced)); err != nil {
		return nil, r.fail("sections", err)
	}
	return synced, true
}

func (r *Runner) schoologyEnrollments(ctx context.Context, client *schoology.Client, sections []syncdb.Record) []syncdb.Record {
	var pulled []syncdb.Record
	for _, section := range sections {
		rows, err := client.Enrollments(ctx, section["id"])
		if err != nil {
			r.fail("enrollments", err)
			return nil
		}
		pulled = append(pulled, rows...)
	}

	synced, err := r.syncer.SyncAndCleanup("Enrollments", pulled, schoology.EnrollmentKey)
	if err != nil {
		r.fail("enrollments", err)
		return nil
	}

	bySection := groupBy(synced, "section_id")
	for _, section := range sections {
		id := section["id"]
		rows := schoology.MapSectionAssociations(bySection[id], id)
		if err := r.writer.WriteSectionAssociations(id, rows); err != nil {
			r.fail("enrollments", err)
			return nil
		}
	}
	return synced
}

func (r *Runner) schoologyAssignments(ctx context.Context, client *schoology.Client, sections []syncdb.Record) []syncdb.Record {
	var pulled []syncdb.Record
	for _, section := range sections {
		rows, err := client.Assignments(ctx, section["id"])
		if err != nil {
			r.fail("assignments", err)
			return nil
		}
		pulled = append(pulled, rows...)
	}

	synced, err := r.syncer.SyncAndCleanup("Assignments", pulled, schoology.AssignmentKey)
	if err != nil {
		r.fail("assignments", err)
		return nil
	}

	bySection := groupBy(synced, "section_id")
	for _, section := range sections {
		id := section["id"]
		if err := r.writer.WriteAssignments(id, schoology.MapAssignments(bySection[id])); err != nil {
			r.fail("assignments", err)
			return nil
		}
	}
	return synced
}

func (r *Runner) schoologySubmissions(ctx context.Context, client *schoology.Client, assignments []syncdb.Record) {
	var pulled []syncdb.Record
	for _, assignment := range assignments {
		rows, err := client.Submissions(ctx, assignment["section_id"], assignment["id"])
		if err != nil {
			r.fail("submissions", err)
			return
		}
		pulled = append(pulled, rows...)
	}

	synced, err := r.syncer.SyncAndCleanup("Submissions", pulled, schoology.SubmissionKey)
	if err != nil {
		r.fail("submissions", err)
		return
	}

	byGradeItem := groupBy(synced, "grade_item_id")
	for _, assignment := range assignments {
		rows := schoology.MapSubmissions(byGradeItem[assignment["id"]])
		if err := r.writer.WriteSubmissions(assignment["section_id"], assignment["id"], rows); err != nil {
			r.fail("submissions", err)
			return
		}
	}
}

func (r *Runner) schoologyGrades(ctx context.Context, client *schoology.Client, sections []syncdb.Record) {
	var pulled []syncdb.Record
	for _, section := range sections {
		rows, err := client.FinalGrades(ctx, section["id"])
		if err != nil {
			r.fail("grades", err)
			return
		}
		pulled = append(pulled, rows...)
	}

	synced, err := r.syncer.SyncAndCleanup("FinalGrades", pulled, schoology.GradeKey)
	if err != nil {
		r.fail("grades", err)
		return
	}

	bySection := groupBy(synced, "section_id")
	for _, section := range sections {
		id := section["id"]
		if err := r.writer.WriteGrades(id, schoology.MapGrades(bySection[id])); err != nil {
			r.fail("grades", err)
			return
		}
	}
}

func (r *Runner) schoologyAttendance(ctx context.Context, client *schoology.Client, sections, enrollments []syncdb.Record) {
	userByEnrollment := make(map[string]string, len(enrollments))
	for _, e := range enrollments {
		userByEnrollment[e["id"]] = e["uid"]
	}

	var pulled []syncdb.Record
	for _, section := range sections {
		rows, err := client.Attendance(ctx, section["id"])
		if err != nil {
			r.fail("attendance", err)
			return
		}
		pulled = append(pulled, rows...)
	}

	synced, err := r.syncer.SyncAndCleanup("Attendance", pulled, schoology.AttendanceKey)
	if err != nil {
		r.fail("attendance", err)
		return
	}

	bySection := groupBy(synced, "section_id")
	for _, section := range sections {
		id := section["id"]
		rows := schoology.MapAttendanceEvents(bySection[id], userByEnrollment)
		if err := r.writer.WriteAttendanceEvents(id, rows); err != nil {
			r.fail("attendance", err)
			return
		}
	}
}

func (r *Runner) schoologyDiscussions(ctx context.Context, client *schoology.Client, sections []syncdb.Record) {
	var pulled []syncdb.Record
	for _, section := range sections {
		rows, err := client.Discussions(ctx, section["id"])
		if err != nil {
			r.fail("discussions", err)
			return
		}
		pulled = append(pulled, rows...)
	}

	synced, err := r.syncer.SyncAndCleanup("Discussions", pulled, schoology.DiscussionKey)
	if err != nil {
		r.fail("discussions", err)
		return
	}

	bySection := groupBy(synced, "section_id")
	for _, section := range sections {
		id := section["id"]
		if err := r.writer.WriteSectionActivities(id, schoology.MapSectionActivities(bySection[id])); err != nil {
			r.fail("discussions", err)
			return
		}
	}
}

// schoologyUsage ingests new usage-analytics drops and writes per-date
// system activity files.
func (r *Runner) schoologyUsage(usage *schoology.UsageReader) {
	pulled, err := usage.ReadNew()
	if err != nil {
		r.fail("usage", err)
		return
	}

	synced, err := r.syncer.SyncAndCleanup("Usage", pulled, schoology.UsageKey)
	if err != nil {
		r.fail("usage", err)
		return
	}

	mapped := schoology.MapSystemActivities(synced)
	for date, rows := range groupByDate(mapped, "ActivityDateTime") {
		if err := r.writer.WriteSystemActivities(date, rows); err != nil {
			r.fail("usage", err)
			return
		}
	}
}
