package canvas

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCoursesFollowsLinkPaging(t *testing.T) {
	var gotAuth string
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/api/v1/accounts/self/courses", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"id": 102, "name": "Biology", "workflow_state": "available"}]`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/api/v1/accounts/self/courses?page=2>; rel="next", <%s/api/v1/accounts/self/courses?page=1>; rel="first"`, server.URL, server.URL))
		fmt.Fprint(w, `[{"id": 101, "name": "Algebra", "workflow_state": "available"}]`)
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(server.URL, "secret-token", "self", testLogger())
	courses, err := client.Courses(context.Background())
	if err != nil {
		t.Fatalf("Courses: %v", err)
	}

	if gotAuth != "Bearer secret-token" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if len(courses) != 2 {
		t.Fatalf("got %d courses, want 2 across pages", len(courses))
	}
	if courses[0]["id"] != "101" || courses[1]["id"] != "102" {
		t.Errorf("course ids = %q, %q", courses[0]["id"], courses[1]["id"])
	}
}

func TestAuthEventsDecodesEnvelope(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/audit/authentication/users/55", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"events": [{"id": "e1", "event_type": "login", "created_at": "2024-09-01T08:00:00Z", "links": {"user": 55}}]}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(server.URL, "tok", "self", testLogger())
	events, err := client.AuthEvents(context.Background(), "55", "", "")
	if err != nil {
		t.Fatalf("AuthEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0]["links_user"] != "55" {
		t.Errorf("nested links.user not flattened to links_user: %v", events[0])
	}
	if events[0]["event_type"] != "login" {
		t.Errorf("event_type = %q", events[0]["event_type"])
	}
}

func TestNextLink(t *testing.T) {
	header := `<https://canvas.test/api/v1/courses?page=3>; rel="next", <https://canvas.test/api/v1/courses?page=1>; rel="first"`
	if got := nextLink(header); got != "https://canvas.test/api/v1/courses?page=3" {
		t.Errorf("nextLink = %q", got)
	}
	if got := nextLink(`<https://canvas.test/api/v1/courses?page=1>; rel="first"`); got != "" {
		t.Errorf("nextLink without next = %q, want empty", got)
	}
	if got := nextLink(""); got != "" {
		t.Errorf("nextLink(empty) = %q, want empty", got)
	}
}
