package extract

import (
	"context"
	"fmt"
	"time"

	"lms-sync/internal/source/googleclassroom"
	"lms-sync/internal/syncdb"
)

// RunGoogle extracts one Google Classroom domain. Classroom has no
// attendance or grade surface, so those features are ignored; the
// activities feature derives section activities from submission history
// and writes an empty sign-in file for the day.
func (r *Runner) RunGoogle(ctx context.Context, client *googleclassroom.Client) error {
	r.logger.Info("starting extract", "system", "Google")

	courses, err := client.Courses(ctx)
	if err != nil {
		return fmt.Errorf("fetching courses: %w", err)
	}
	courses, err = r.syncer.SyncAndCleanup("Courses", courses, googleclassroom.CourseKey)
	if err != nil {
		return fmt.Errorf("syncing courses: %w", err)
	}
	if err := r.writer.WriteSections(googleclassroom.MapSections(courses)); err != nil {
		return fmt.Errorf("writing sections: %w", err)
	}

	r.googleMemberships(ctx, client, courses)

	if r.features.Assignments || r.features.Activities {
		if courseWork := r.googleCourseWork(ctx, client, courses); courseWork != nil {
			submissions := r.googleSubmissions(ctx, client, courseWork)
			if r.features.Activities && submissions != nil {
				r.googleActivities(courses, submissions)
			}
		}
	}

	return r.finish()
}

// googleActivities writes the per-course section activity files derived
// from submission history. Classroom exposes no sign-in events, so the
// system activities file for the day is written empty to keep the output
// tree complete.
func (r *Runner) googleActivities(courses, submissions []syncdb.Record) {
	byCourse := groupBy(submissions, "courseId")
	for _, course := range courses {
		id := course["id"]
		rows := googleclassroom.MapSectionActivities(byCourse[id])
		if err := r.writer.WriteSectionActivities(id, rows); err != nil {
			r.fail("section-activities", err)
			return
		}
	}

	today := time.Now().UTC().Format("2006-01-02")
	if err := r.writer.WriteSystemActivities(today, nil); err != nil {
		r.fail("system-activities", err)
	}
}

// googleMemberships pulls every course's students and teachers, writes
// the users file and the per-course section association files.
func (r *Runner) googleMemberships(ctx context.Context, client *googleclassroom.Client, courses []syncdb.Record) []syncdb.Record {
	var students, teachers []syncdb.Record
	for _, course := range courses {
		s, err := client.Students(ctx, course["id"])
		if err != nil {
			r.fail("students", err)
			return nil
		}
		students = append(students, s...)

		t, err := client.Teachers(ctx, course["id"])
		if err != nil {
			r.fail("teachers", err)
			return nil
		}
		teachers = append(teachers, t...)
	}

	students, err := r.syncer.SyncAndCleanup("Students", students, googleclassroom.MembershipKey)
	if err != nil {
		r.fail("students", err)
		return nil
	}
	teachers, err = r.syncer.SyncAndCleanup("Teachers", teachers, googleclassroom.MembershipKey)
	if err != nil {
		r.fail("teachers", err)
		return nil
	}

	// A user enrolled in several courses appears once per membership;
	// the users file wants them once.
	users := append(
		googleclassroom.MapUsers(students, "Student"),
		googleclassroom.MapUsers(teachers, "Teacher")...)
	if err := r.writer.WriteUsers(dedupeBy(users, "SourceSystemIdentifier")); err != nil {
		r.fail("users", err)
		return nil
	}

	byCourse := groupBy(students, "courseId")
	for _, course := range courses {
		id := course["id"]
		rows := googleclassroom.MapSectionAssociations(byCourse[id])
		if err := r.writer.WriteSectionAssociations(id, rows); err != nil {
			r.fail("section-associations", err)
			return nil
		}
	}
	return students
}

// googleCourseWork pulls every course's coursework and writes the
// per-course assignments files.
func (r *Runner) googleCourseWork(ctx context.Context, client *googleclassroom.Client, courses []syncdb.Record) []syncdb.Record {
	var pulled []syncdb.Record
	for _, course := range courses {
		rows, err := client.CourseWork(ctx, course["id"])
		if err != nil {
			r.fail("coursework", err)
			return nil
		}
		pulled = append(pulled, rows...)
	}

	synced, err := r.syncer.SyncAndCleanup("CourseWork", pulled, googleclassroom.CourseWorkKey)
	if err != nil {
		r.fail("coursework", err)
		return nil
	}

	byCourse := groupBy(synced, "courseId")
	for _, course := range courses {
		id := course["id"]
		if err := r.writer.WriteAssignments(id, googleclassroom.MapAssignments(byCourse[id])); err != nil {
			r.fail("coursework", err)
			return nil
		}
	}
	return synced
}

// googleSubmissions pulls the submissions of every coursework item and
// writes the per-assignment submissions files. The synced rows come back
// so the activities stage can explode their history.
func (r *Runner) googleSubmissions(ctx context.Context, client *googleclassroom.Client, courseWork []syncdb.Record) []syncdb.Record {
	var pulled []syncdb.Record
	for _, cw := range courseWork {
		rows, err := client.StudentSubmissions(ctx, cw["courseId"], cw["id"])
		if err != nil {
			r.fail("submissions", err)
			return nil
		}
		pulled = append(pulled, rows...)
	}

	synced, err := r.syncer.SyncAndCleanup("StudentSubmissions", pulled, googleclassroom.SubmissionKey)
	if err != nil {
		r.fail("submissions", err)
		return nil
	}

	byCourseWork := groupBy(synced, "courseWorkId")
	for _, cw := range courseWork {
		rows := googleclassroom.MapSubmissions(byCourseWork[cw["id"]])
		if err := r.writer.WriteSubmissions(cw["courseId"], cw["id"], rows); err != nil {
			r.fail("submissions", err)
			return nil
		}
	}
	return synced
}
