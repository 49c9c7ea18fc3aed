package extract

import (
	"context"
	"fmt"

	"lms-sync/internal/source/canvas"
	"lms-sync/internal/syncdb"
)

// RunCanvas extracts one Canvas instance. startTime and endTime bound the
// authentication-event window for system activities (RFC 3339; empty
// means unbounded).
func (r *Runner) RunCanvas(ctx context.Context, client *canvas.Client, startTime, endTime string) error {
	r.logger.Info("starting extract", "system", "Canvas")

	// Everything hangs off the course list; without it there is no run.
	courses, err := client.Courses(ctx)
	if err != nil {
		return fmt.Errorf("fetching courses: %w", err)
	}
	courses, err = r.syncer.SyncAndCleanup("Courses", courses, canvas.NaturalKey)
	if err != nil {
		return fmt.Errorf("syncing courses: %w", err)
	}

	courseStates := make(map[string]string, len(courses))
	for _, c := range courses {
		courseStates[c["id"]] = c["workflow_state"]
	}

	students := r.canvasStudents(ctx, client, courses)

	sections, ok := r.canvasSections(ctx, client, courses, courseStates)
	if !ok {
		return r.finish()
	}

	r.canvasEnrollments(ctx, client, sections)

	if r.features.Assignments {
		if assignments := r.canvasAssignments(ctx, client, courses, sections); assignments != nil {
			r.canvasSubmissions(ctx, client, sections, assignments)
		}
	}

	if r.features.Activities && students != nil {
		r.canvasAuthEvents(ctx, client, students, startTime, endTime)
	}

	return r.finish()
}

// canvasStudents pulls every course's students and writes the users file.
// The synced rows are returned for the activities stage.
func (r *Runner) canvasStudents(ctx context.Context, client *canvas.Client, courses []syncdb.Record) []syncdb.Record {
	var pulled []syncdb.Record
	for _, course := range courses {
		rows, err := client.Students(ctx, course["id"])
		if err != nil {
			r.fail("students", err)
			return nil
		}
		pulled = append(pulled, rows...)
	}

	synced, err := r.syncer.SyncAndCleanup("Students", pulled, canvas.NaturalKey)
	if err != nil {
		r.fail("students", err)
		return nil
	}
	if err := r.writer.WriteUsers(canvas.MapUsers(synced)); err != nil {
		r.fail("students", err)
		return nil
	}
	return synced
}

// canvasSections pulls every course's sections and writes the sections
// file. All section-scoped stages depend on the result.
func (r *Runner) canvasSections(ctx context.Context, client *canvas.Client, courses []syncdb.Record, courseStates map[string]string) ([]syncdb.Record, bool) {
	var pulled []syncdb.Record
	for _, course := range courses {
		rows, err := client.Sections(ctx, course["id"])
		if err != nil {
			return nil, r.fail("sections", err)
		}
		pulled = append(pulled, rows...)
	}

	synced, err := r.syncer.SyncAndCleanup("Sections", pulled, canvas.NaturalKey)
	if err != nil {
		return nil, r.fail("sections", err)
	}
	if err := r.writer.WriteSections(canvas.MapSections(synced, courseStates)); err != nil {
		return nil, r.fail("sections", err)
	}
	return synced, true
}

// canvasEnrollments pulls every section's enrollments and writes the
// section association files, plus grades when that feature is on.
func (r *Runner) canvasEnrollments(ctx context.Context, client *canvas.Client, sections []syncdb.Record) []syncdb.Record {
	var pulled []syncdb.Record
	for _, section := range sections {
		rows, err := client.Enrollments(ctx, section["id"])
		if err != nil {
			r.fail("enrollments", err)
			return nil
		}
		pulled = append(pulled, rows...)
	}

	synced, err := r.syncer.SyncAndCleanup("Enrollments", pulled, canvas.NaturalKey)
	if err != nil {
		r.fail("enrollments", err)
		return nil
	}

	bySection := groupBy(synced, "course_section_id")
	for _, section := range sections {
		id := section["id"]
		if err := r.writer.WriteSectionAssociations(id, canvas.MapSectionAssociations(bySection[id])); err != nil {
			r.fail("enrollments", err)
			return nil
		}
		if r.features.Grades {
			if err := r.writer.WriteGrades(id, canvas.MapGrades(bySection[id])); err != nil {
				r.fail("grades", err)
				return nil
			}
		}
	}
	return synced
}

// canvasAssignments pulls every course's assignments and writes each
// section's assignments file. Canvas scopes assignments to the course,
// so a course's assignments appear under each of its sections.
func (r *Runner) canvasAssignments(ctx context.Context, client *canvas.Client, courses, sections []syncdb.Record) []syncdb.Record {
	var pulled []syncdb.Record
	for _, course := range courses {
		rows, err := client.Assignments(ctx, course["id"])
		if err != nil {
			r.fail("assignments", err)
			return nil
		}
		pulled = append(pulled, rows...)
	}

	synced, err := r.syncer.SyncAndCleanup("Assignments", pulled, canvas.NaturalKey)
	if err != nil {
		r.fail("assignments", err)
		return nil
	}

	byCourse := groupBy(synced, "course_id")
	for _, section := range sections {
		rows := byCourse[section["course_id"]]
		if err := r.writer.WriteAssignments(section["id"], canvas.MapAssignments(rows, section["id"])); err != nil {
			r.fail("assignments", err)
			return nil
		}
	}
	return synced
}

// canvasSubmissions pulls the submissions of every assignment in every
// section and writes the per-assignment submissions files.
func (r *Runner) canvasSubmissions(ctx context.Context, client *canvas.Client, sections, assignments []syncdb.Record) {
	byCourse := groupBy(assignments, "course_id")

	var pulled []syncdb.Record
	for _, section := range sections {
		for _, assignment := range byCourse[section["course_id"]] {
			rows, err := client.Submissions(ctx, section["id"], assignment["id"])
			if err != nil {
				r.fail("submissions", err)
				return
			}
			pulled = append(pulled, rows...)
		}
	}

	synced, err := r.syncer.SyncAndCleanup("Submissions", pulled, canvas.NaturalKey)
	if err != nil {
		r.fail("submissions", err)
		return
	}

	bySection := groupBy(synced, "section_id")
	for _, section := range sections {
		byAssignment := groupBy(bySection[section["id"]], "assignment_id")
		for _, assignment := range byCourse[section["course_id"]] {
			rows := canvas.MapSubmissions(byAssignment[assignment["id"]])
			if err := r.writer.WriteSubmissions(section["id"], assignment["id"], rows); err != nil {
				r.fail("submissions", err)
				return
			}
		}
	}
}

// canvasAuthEvents pulls every student's authentication events and writes
// the per-date system activity files.
func (r *Runner) canvasAuthEvents(ctx context.Context, client *canvas.Client, students []syncdb.Record, startTime, endTime string) {
	var pulled []syncdb.Record
	for _, student := range students {
		rows, err := client.AuthEvents(ctx, student["id"], startTime, endTime)
		if err != nil {
			r.fail("auth_events", err)
			return
		}
		pulled = append(pulled, rows...)
	}

	synced, err := r.syncer.SyncAndCleanup("AuthEvents", pulled, canvas.NaturalKey)
	if err != nil {
		r.fail("auth_events", err)
		return
	}

	mapped := canvas.MapSystemActivities(synced)
	for date, rows := range groupByDate(mapped, "ActivityDateTime") {
		if err := r.writer.WriteSystemActivities(date, rows); err != nil {
			r.fail("auth_events", err)
			return
		}
	}
}
