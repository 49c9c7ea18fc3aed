package loader

import (
	"testing"

	"lms-sync/internal/syncdb"
)

func TestSplitSubmissionTypesJSONArray(t *testing.T) {
	assignments := []syncdb.Record{{
		"SourceSystemIdentifier": "400",
		"SourceSystem":           "Canvas",
		"SubmissionType":         `["online_text_entry","online_upload"]`,
	}}

	rows := SplitSubmissionTypes(assignments)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0]["SubmissionType"] != "online_text_entry" || rows[1]["SubmissionType"] != "online_upload" {
		t.Errorf("rows = %v", rows)
	}
	for _, r := range rows {
		if r["SourceSystemIdentifier"] != "400" || r["SourceSystem"] != "Canvas" {
			t.Errorf("parent identity not carried: %v", r)
		}
	}
}

func TestSplitSubmissionTypesPlainValue(t *testing.T) {
	assignments := []syncdb.Record{{
		"SourceSystemIdentifier": "a1",
		"SourceSystem":           "Schoology",
		"SubmissionType":         "assignment",
	}}

	rows := SplitSubmissionTypes(assignments)
	if len(rows) != 1 || rows[0]["SubmissionType"] != "assignment" {
		t.Errorf("rows = %v", rows)
	}
}

func TestSplitSubmissionTypesEmpty(t *testing.T) {
	assignments := []syncdb.Record{
		{"SourceSystemIdentifier": "1", "SourceSystem": "Canvas", "SubmissionType": ""},
		{"SourceSystemIdentifier": "2", "SourceSystem": "Canvas", "SubmissionType": "[]"},
	}

	if rows := SplitSubmissionTypes(assignments); len(rows) != 0 {
		t.Errorf("got %d rows, want 0", len(rows))
	}
}
