package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lms-sync/internal/source/canvas"
	"lms-sync/internal/syncdb"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// canvasTestServer serves one course, one section, one student, one
// assignment with one submission, one enrollment and one sign-in event.
func canvasTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/accounts/self/courses", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id": 100, "name": "Algebra", "workflow_state": "available", "created_at": "2024-08-01T00:00:00Z"}]`)
	})
	mux.HandleFunc("/api/v1/courses/100/users", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id": 10, "name": "Mary Major", "login_id": "mary", "email": "mary@example.edu", "created_at": "2024-08-01T00:00:00Z"}]`)
	})
	mux.HandleFunc("/api/v1/courses/100/sections", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id": 200, "course_id": 100, "name": "Algebra - Period 1", "created_at": "2024-08-01T00:00:00Z"}]`)
	})
	mux.HandleFunc("/api/v1/sections/200/enrollments", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id": 300, "user_id": 10, "course_id": 100, "course_section_id": 200, "type": "StudentEnrollment", "enrollment_state": "active", "created_at": "2024-08-15T00:00:00Z", "grades": {"final_grade": "A", "final_score": 95}}]`)
	})
	mux.HandleFunc("/api/v1/courses/100/assignments", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id": 400, "course_id": 100, "name": "Homework 1", "submission_types": ["online_text_entry"], "points_possible": 10, "due_at": "2024-09-30T23:59:00Z"}]`)
	})
	mux.HandleFunc("/api/v1/sections/200/assignments/400/submissions", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id": 500, "assignment_id": 400, "user_id": 10, "workflow_state": "graded", "late": false, "missing": false, "submitted_at": "2024-09-20T10:00:00Z", "score": 9.5, "grade": "A-"}]`)
	})
	mux.HandleFunc("/api/v1/audit/authentication/users/10", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"events": [{"id": "e1", "event_type": "login", "created_at": "2024-09-21T08:00:00Z", "links": {"user": 10}}]}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func requireFileContaining(t *testing.T, dir, substr string) {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil || len(matches) == 0 {
		t.Fatalf("no csv file in %s", dir)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), substr) {
		t.Errorf("%s does not contain %q:\n%s", matches[0], substr, data)
	}
}

func TestRunCanvasWritesFullTree(t *testing.T) {
	server := canvasTestServer(t)

	db, err := syncdb.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	outputDir := t.TempDir()
	features := Features{Assignments: true, Grades: true, Attendance: true, Activities: true}
	runner := NewRunner(db, outputDir, features, testLogger())
	client := canvas.NewClient(server.URL, "tok", "self", testLogger())

	if err := runner.RunCanvas(context.Background(), client, "", ""); err != nil {
		t.Fatalf("RunCanvas: %v", err)
	}

	requireFileContaining(t, filepath.Join(outputDir, "users"), "Mary Major")
	requireFileContaining(t, filepath.Join(outputDir, "sections"), "Algebra - Period 1")
	requireFileContaining(t, filepath.Join(outputDir, "section=200", "section-associations"), "active")
	requireFileContaining(t, filepath.Join(outputDir, "section=200", "grades"), "g#300")
	requireFileContaining(t, filepath.Join(outputDir, "section=200", "assignments"), "Homework 1")
	requireFileContaining(t, filepath.Join(outputDir, "section=200", "assignment=400", "submissions"), "graded")
	requireFileContaining(t, filepath.Join(outputDir, "system-activities", "date=2024-09-21"), "sign-in")
}

func TestRunCanvasSecondRunKeepsCreateDate(t *testing.T) {
	server := canvasTestServer(t)

	syncDir := t.TempDir()
	features := Features{}

	runOnce := func(outputDir string) {
		db, err := syncdb.Open(syncDir)
		if err != nil {
			t.Fatal(err)
		}
		defer db.Close()
		runner := NewRunner(db, outputDir, features, testLogger())
		client := canvas.NewClient(server.URL, "tok", "self", testLogger())
		if err := runner.RunCanvas(context.Background(), client, "", ""); err != nil {
			t.Fatalf("RunCanvas: %v", err)
		}
	}

	firstOut := t.TempDir()
	runOnce(firstOut)
	secondOut := t.TempDir()
	runOnce(secondOut)

	read := func(dir string) string {
		matches, _ := filepath.Glob(filepath.Join(dir, "users", "*.csv"))
		if len(matches) == 0 {
			t.Fatalf("no users file under %s", dir)
		}
		data, err := os.ReadFile(matches[0])
		if err != nil {
			t.Fatal(err)
		}
		return string(data)
	}

	// An unchanged user keeps the dates observed on the first run.
	if read(firstOut) != read(secondOut) {
		t.Errorf("users file changed between identical runs:\nfirst:\n%s\nsecond:\n%s",
			read(firstOut), read(secondOut))
	}
}

func TestRunCanvasCascadesSectionFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/accounts/self/courses", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id": 100, "name": "Algebra", "workflow_state": "available"}]`)
	})
	mux.HandleFunc("/api/v1/courses/100/users", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id": 10, "name": "Mary Major", "login_id": "mary", "email": "m@example.edu", "created_at": "2024-08-01T00:00:00Z"}]`)
	})
	// No sections handler: that endpoint 404s.
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	db, err := syncdb.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	outputDir := t.TempDir()
	runner := NewRunner(db, outputDir, Features{Assignments: true}, testLogger())
	client := canvas.NewClient(server.URL, "tok", "self", testLogger())

	err = runner.RunCanvas(context.Background(), client, "", "")
	if !errors.Is(err, ErrRunHadFailures) {
		t.Fatalf("err = %v, want ErrRunHadFailures", err)
	}

	// Users made it out before the failure; nothing section-scoped did.
	requireFileContaining(t, filepath.Join(outputDir, "users"), "Mary Major")
	if matches, _ := filepath.Glob(filepath.Join(outputDir, "section=*")); len(matches) != 0 {
		t.Errorf("section directories written despite section failure: %v", matches)
	}
}
