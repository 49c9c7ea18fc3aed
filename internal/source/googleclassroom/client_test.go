package googleclassroom

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"lms-sync/internal/syncdb"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCoursesFollowsPageTokens(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/courses", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pageToken") == "t2" {
			fmt.Fprint(w, `{"courses": [{"id": "c2", "name": "Biology", "courseState": "ACTIVE"}]}`)
			return
		}
		fmt.Fprint(w, `{"courses": [{"id": "c1", "name": "Algebra", "courseState": "ACTIVE"}], "nextPageToken": "t2"}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(server.URL, "tok", testLogger())
	courses, err := client.Courses(context.Background())
	if err != nil {
		t.Fatalf("Courses: %v", err)
	}
	if len(courses) != 2 {
		t.Fatalf("got %d courses, want 2 across pages", len(courses))
	}
	if courses[0]["id"] != "c1" || courses[1]["id"] != "c2" {
		t.Errorf("course ids = %q, %q", courses[0]["id"], courses[1]["id"])
	}
}

func TestStudentsFlattensProfile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/courses/c1/students", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"students": [{"courseId": "c1", "userId": "u1", "profile": {"emailAddress": "kyle@example.edu", "name": {"fullName": "Kyle Hughes"}}}]}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(server.URL, "tok", testLogger())
	students, err := client.Students(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Students: %v", err)
	}
	if len(students) != 1 {
		t.Fatalf("got %d students, want 1", len(students))
	}
	if students[0]["profile_name_fullName"] != "Kyle Hughes" {
		t.Errorf("nested profile not flattened: %v", students[0])
	}
	if students[0]["profile_emailAddress"] != "kyle@example.edu" {
		t.Errorf("email not flattened: %v", students[0])
	}
}

func TestDueDateTime(t *testing.T) {
	row := syncdb.Record{
		"dueDate_year": "2024", "dueDate_month": "9", "dueDate_day": "30",
		"dueTime_hours": "23", "dueTime_minutes": "59",
	}
	if got := dueDateTime(row); got != "2024-09-30 23:59:00" {
		t.Errorf("dueDateTime = %q", got)
	}
	if got := dueDateTime(syncdb.Record{}); got != "" {
		t.Errorf("dueDateTime without date = %q, want empty", got)
	}
	noTime := syncdb.Record{"dueDate_year": "2024", "dueDate_month": "9", "dueDate_day": "30"}
	if got := dueDateTime(noTime); got != "2024-09-30 00:00:00" {
		t.Errorf("dueDateTime without time = %q, want midnight", got)
	}
}

func TestMapSectionAssociationsComposesIdentifier(t *testing.T) {
	rows := []syncdb.Record{{"courseId": "c1", "userId": "u9"}}
	out := MapSectionAssociations(rows)
	if out[0]["SourceSystemIdentifier"] != "c1-u9" {
		t.Errorf("SourceSystemIdentifier = %q", out[0]["SourceSystemIdentifier"])
	}
	if out[0]["SourceSystem"] != "Google" {
		t.Errorf("SourceSystem = %q", out[0]["SourceSystem"])
	}
}

func TestMapSectionActivitiesExplodesHistory(t *testing.T) {
	rows := []syncdb.Record{{
		"id":           "sub1",
		"courseId":     "c1",
		"courseWorkId": "cw1",
		"userId":       "u9",
		"submissionHistory": `[
			{"stateHistory":{"state":"CREATED","stateTimestamp":"2024-09-16T10:00:00Z"}},
			{"stateHistory":{"state":"TURNED_IN","stateTimestamp":"2024-09-17T08:30:00Z"}},
			{"gradeHistory":{"gradeTimestamp":"2024-09-18T12:00:00Z","gradeChangeType":"ASSIGNED_GRADE_POINTS_EARNED_CHANGE"}}
		]`,
		"CreateDate":       "2024-09-20 00:00:00",
		"LastModifiedDate": "2024-09-20 00:00:00",
	}}

	out := MapSectionActivities(rows)
	if len(out) != 3 {
		t.Fatalf("got %d activities, want 3", len(out))
	}
	first := out[0]
	if first["SourceSystemIdentifier"] != "S-c1-cw1-sub1-2024-09-16T10:00:00Z" {
		t.Errorf("SourceSystemIdentifier = %q", first["SourceSystemIdentifier"])
	}
	if first["ActivityType"] != "Submission State Change" || first["ActivityStatus"] != "CREATED" {
		t.Errorf("first activity = %v", first)
	}
	if first["ActivityDateTime"] != "2024-09-16 10:00:00" {
		t.Errorf("ActivityDateTime = %q", first["ActivityDateTime"])
	}
	grade := out[2]
	if grade["ActivityType"] != "Submission Grade Change" {
		t.Errorf("grade activity = %v", grade)
	}
	if grade["SourceSystemIdentifier"] != "G-c1-cw1-sub1-2024-09-18T12:00:00Z" {
		t.Errorf("grade SourceSystemIdentifier = %q", grade["SourceSystemIdentifier"])
	}
}

func TestMapSectionActivitiesSkipsEmptyHistory(t *testing.T) {
	rows := []syncdb.Record{
		{"id": "a", "submissionHistory": ""},
		{"id": "b", "submissionHistory": "[]"},
	}
	if out := MapSectionActivities(rows); len(out) != 0 {
		t.Errorf("got %d activities, want 0", len(out))
	}
}
