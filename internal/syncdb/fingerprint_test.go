package syncdb

import (
	"errors"
	"testing"
)

func TestComputeSourceID(t *testing.T) {
	rec := Record{"courseId": "c1", "userId": "u1"}

	id, err := ComputeSourceID(rec, []string{"courseId", "userId"})
	if err != nil {
		t.Fatalf("Failed to compute source id: %v", err)
	}
	if id != "c1-u1" {
		t.Errorf("Expected c1-u1, got %q", id)
	}

	// Listed order matters
	id2, err := ComputeSourceID(rec, []string{"userId", "courseId"})
	if err != nil {
		t.Fatalf("Failed to compute source id: %v", err)
	}
	if id2 != "u1-c1" {
		t.Errorf("Expected u1-c1, got %q", id2)
	}
}

func TestComputeSourceIDEscaping(t *testing.T) {
	// Without escaping, {"a-b",c} and {a,"b-c"} would both join to "a-b-c".
	first, err := ComputeSourceID(Record{"x": "a-b", "y": "c"}, []string{"x", "y"})
	if err != nil {
		t.Fatalf("Failed to compute source id: %v", err)
	}
	second, err := ComputeSourceID(Record{"x": "a", "y": "b-c"}, []string{"x", "y"})
	if err != nil {
		t.Fatalf("Failed to compute source id: %v", err)
	}
	if first == second {
		t.Errorf("Expected distinct ids, both were %q", first)
	}

	// Backslashes are escaped too
	third, err := ComputeSourceID(Record{"x": `a\`, "y": "b"}, []string{"x", "y"})
	if err != nil {
		t.Fatalf("Failed to compute source id: %v", err)
	}
	if third != `a\\-b` {
		t.Errorf("Expected a\\\\-b, got %q", third)
	}
}

func TestComputeSourceIDMissingColumn(t *testing.T) {
	_, err := ComputeSourceID(Record{"id": "1"}, []string{"id", "courseId"})
	if !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("Expected ErrInvalidRecord, got %v", err)
	}
}

func TestComputeSourceIDEmptyValue(t *testing.T) {
	// Empty string is a valid value, distinct from a missing column
	id, err := ComputeSourceID(Record{"id": ""}, []string{"id"})
	if err != nil {
		t.Fatalf("Failed to compute source id: %v", err)
	}
	if id != "" {
		t.Errorf("Expected empty id, got %q", id)
	}
}

func TestCanonicalJSONSortsColumns(t *testing.T) {
	rec := Record{"b": "2", "a": "1"}
	want := `{"a":"1","b":"2"}`
	if got := CanonicalJSON(rec); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestCanonicalJSONExcludesEngineColumns(t *testing.T) {
	rec := Record{"id": "1", "name": "A"}
	withEngine := rec.Clone()
	withEngine[ColSourceID] = "1"
	withEngine[ColHash] = "deadbeef"
	withEngine[ColCreateDate] = "2024-01-01 00:00:00"

	if CanonicalJSON(rec) != CanonicalJSON(withEngine) {
		t.Error("Engine columns changed the canonical serialization")
	}
	if ComputeHash(rec) != ComputeHash(withEngine) {
		t.Error("Engine columns changed the hash")
	}
}

func TestComputeHashStable(t *testing.T) {
	rec := Record{"id": "1", "name": "A"}
	first := ComputeHash(rec)
	second := ComputeHash(rec)
	if first != second {
		t.Errorf("Hash not stable: %s vs %s", first, second)
	}
	if len(first) != 16 {
		t.Errorf("Expected 16 hex digits, got %q", first)
	}

	changed := Record{"id": "1", "name": "B"}
	if ComputeHash(changed) == first {
		t.Error("Expected hash to change with content")
	}
}

func TestStampIdempotent(t *testing.T) {
	rec := Record{"id": "1", "name": "A"}

	once, err := Stamp(rec, []string{"id"})
	if err != nil {
		t.Fatalf("Failed to stamp: %v", err)
	}
	twice, err := Stamp(once, []string{"id"})
	if err != nil {
		t.Fatalf("Failed to stamp twice: %v", err)
	}

	for _, col := range []string{ColSourceID, ColHash, ColJSONSnapshot} {
		if once[col] != twice[col] {
			t.Errorf("Stamp not idempotent for %s: %q vs %q", col, once[col], twice[col])
		}
	}
	if once[ColSourceID] != "1" {
		t.Errorf("Expected SourceId 1, got %q", once[ColSourceID])
	}
}
