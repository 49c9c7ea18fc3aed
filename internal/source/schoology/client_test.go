package schoology

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestUsersFollowsNextLinks(t *testing.T) {
	var gotAuth string
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/v1/users", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Query().Get("start") == "1" {
			fmt.Fprintf(w, `{"user": [{"uid": 2, "name_display": "Second Person"}], "links": {"self": "%s/v1/users?start=1", "next": "%s/v1/users?start=1"}}`, server.URL, server.URL)
			return
		}
		fmt.Fprintf(w, `{"user": [{"uid": 1, "name_display": "First Person"}], "links": {"self": "%s/v1/users", "next": "%s/v1/users?start=1"}}`, server.URL, server.URL)
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(server.URL, "key123", "secret456", testLogger())
	users, err := client.Users(context.Background())
	if err != nil {
		t.Fatalf("Users: %v", err)
	}

	if len(users) != 2 {
		t.Fatalf("got %d users, want 2 across pages", len(users))
	}
	if users[0]["uid"] != "1" || users[1]["uid"] != "2" {
		t.Errorf("uids = %q, %q", users[0]["uid"], users[1]["uid"])
	}
	if !strings.Contains(gotAuth, `oauth_consumer_key="key123"`) {
		t.Errorf("Authorization missing consumer key: %q", gotAuth)
	}
	if !strings.Contains(gotAuth, `oauth_signature="secret456%26"`) {
		t.Errorf("Authorization missing plaintext signature: %q", gotAuth)
	}
}

func TestAttendanceFlattensEnvelope(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sections/s1/attendance", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"date": [{"date": "2024-09-16", "statuses": {"status": [{"status_code": 2, "attendances": {"attendance": [{"enrollment_id": 900, "status": 2, "comment": "called in"}]}}]}}]}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(server.URL, "k", "s", testLogger())
	rows, err := client.Attendance(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Attendance: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	r := rows[0]
	if r["enrollment_id"] != "900" || r["date"] != "2024-09-16" || r["status"] != "2" {
		t.Errorf("attendance row = %v", r)
	}
	if r["section_id"] != "s1" {
		t.Errorf("section_id = %q", r["section_id"])
	}
}

func TestFinalGradesTakesFirstPeriod(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sections/s1/grades", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"final_grade": [{"enrollment_id": 900, "period": [{"period_id": "p1", "grade": 88}]}, {"enrollment_id": 901, "period": []}]}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(server.URL, "k", "s", testLogger())
	rows, err := client.FinalGrades(context.Background(), "s1")
	if err != nil {
		t.Fatalf("FinalGrades: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0]["grade"] != "88" {
		t.Errorf("grade = %q", rows[0]["grade"])
	}
	if rows[1]["grade"] != "" {
		t.Errorf("grade without periods = %q, want empty", rows[1]["grade"])
	}
}

