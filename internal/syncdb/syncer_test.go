package syncdb

import (
	"errors"
	"testing"
	"time"
)

var (
	t0 = time.Date(2024, 8, 1, 10, 0, 0, 0, time.UTC)
	t1 = time.Date(2024, 8, 2, 10, 0, 0, 0, time.UTC)
)

func syncerAt(db *DB, at time.Time) *Syncer {
	sy := NewSyncer(db, testLogger())
	sy.now = func() time.Time { return at }
	return sy
}

func TestFirstPullOneRecord(t *testing.T) {
	db := setupTestDB(t)
	sy := syncerAt(db, t0)

	out, err := sy.Sync("Courses", []Record{{"id": "1", "name": "A"}}, []string{"id"})
	if err != nil {
		t.Fatalf("Failed to sync: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("Expected 1 output row, got %d", len(out))
	}

	row := out[0]
	if row[ColSourceID] != "1" {
		t.Errorf("Expected SourceId 1, got %q", row[ColSourceID])
	}
	if row[ColHash] != ComputeHash(Record{"id": "1", "name": "A"}) {
		t.Errorf("Output hash does not match recomputed hash")
	}
	want := t0.Format(TimeFormat)
	if row[ColCreateDate] != want || row[ColLastModifiedDate] != want {
		t.Errorf("Expected CreateDate = LastModifiedDate = %s, got %s / %s",
			want, row[ColCreateDate], row[ColLastModifiedDate])
	}

	prod, err := db.ReadProduction("Courses")
	if err != nil {
		t.Fatalf("Failed to read production: %v", err)
	}
	if len(prod) != 1 {
		t.Fatalf("Expected 1 production row, got %d", len(prod))
	}
	if prod[0]["name"] != "A" {
		t.Errorf("Expected name A in production, got %q", prod[0]["name"])
	}
}

func TestSecondPullChangedUnchangedVanishedNew(t *testing.T) {
	db := setupTestDB(t)

	first := []Record{
		{"id": "A", "v": "v1"},
		{"id": "B", "v": "v1"},
		{"id": "C", "v": "v1"},
	}
	if _, err := syncerAt(db, t0).SyncAndCleanup("Things", first, []string{"id"}); err != nil {
		t.Fatalf("Failed first sync: %v", err)
	}

	second := []Record{
		{"id": "A", "v": "v2"},
		{"id": "B", "v": "v1"},
		{"id": "D", "v": "v1"},
	}
	sy := syncerAt(db, t1)
	out, err := sy.Sync("Things", second, []string{"id"})
	if err != nil {
		t.Fatalf("Failed second sync: %v", err)
	}

	byID := make(map[string]Record)
	for _, row := range out {
		byID[row[ColSourceID]] = row
	}

	ts0 := t0.Format(TimeFormat)
	ts1 := t1.Format(TimeFormat)

	// A changed: original CreateDate, bumped LastModifiedDate
	if byID["A"][ColCreateDate] != ts0 {
		t.Errorf("A: expected CreateDate %s, got %s", ts0, byID["A"][ColCreateDate])
	}
	if byID["A"][ColLastModifiedDate] != ts1 {
		t.Errorf("A: expected LastModifiedDate %s, got %s", ts1, byID["A"][ColLastModifiedDate])
	}

	// B unchanged: both dates untouched
	if byID["B"][ColCreateDate] != ts0 || byID["B"][ColLastModifiedDate] != ts0 {
		t.Errorf("B: expected dates %s/%s, got %s/%s",
			ts0, ts0, byID["B"][ColCreateDate], byID["B"][ColLastModifiedDate])
	}

	// D new
	if byID["D"][ColCreateDate] != ts1 || byID["D"][ColLastModifiedDate] != ts1 {
		t.Errorf("D: expected dates %s/%s, got %s/%s",
			ts1, ts1, byID["D"][ColCreateDate], byID["D"][ColLastModifiedDate])
	}

	// C vanished but stays in production untouched
	prod, err := db.ReadProduction("Things")
	if err != nil {
		t.Fatalf("Failed to read production: %v", err)
	}
	if len(prod) != 4 {
		t.Fatalf("Expected 4 production rows, got %d", len(prod))
	}
	for _, row := range prod {
		if row[ColSourceID] == "C" {
			if row[ColCreateDate] != ts0 || row[ColLastModifiedDate] != ts0 {
				t.Errorf("C: expected dates untouched, got %s/%s",
					row[ColCreateDate], row[ColLastModifiedDate])
			}
		}
	}

	// Unmatched partitions into the four classes
	diff, err := db.Unmatched("Things")
	if err != nil {
		t.Fatalf("Failed to read unmatched: %v", err)
	}
	classes := make(map[string][]DiffClass)
	for _, row := range diff {
		classes[row.SourceID] = append(classes[row.SourceID], row.Class)
	}
	if len(classes["A"]) != 2 {
		t.Errorf("A: expected before and after images, got %v", classes["A"])
	} else if classes["A"][0] != DiffChangedAfter || classes["A"][1] != DiffChangedBefore {
		t.Errorf("A: expected changed-after/changed-before, got %v", classes["A"])
	}
	if len(classes["C"]) != 1 || classes["C"][0] != DiffMissing {
		t.Errorf("C: expected missing, got %v", classes["C"])
	}
	if len(classes["D"]) != 1 || classes["D"][0] != DiffNew {
		t.Errorf("D: expected new, got %v", classes["D"])
	}
	if len(classes["B"]) != 0 {
		t.Errorf("B: expected absent from unmatched, got %v", classes["B"])
	}
}

func TestDuplicateNaturalKey(t *testing.T) {
	db := setupTestDB(t)
	sy := syncerAt(db, t0)

	out, err := sy.Sync("Courses", []Record{
		{"id": "1", "v": "a"},
		{"id": "1", "v": "b"},
	}, []string{"id"})
	if err != nil {
		t.Fatalf("Expected duplicate keys to be tolerated: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("Expected 1 output row, got %d", len(out))
	}
	if out[0]["v"] != "a" {
		t.Errorf("Expected first occurrence to win, got v=%q", out[0]["v"])
	}
}

func TestEmptyPull(t *testing.T) {
	db := setupTestDB(t)
	sy := syncerAt(db, t0)

	if _, err := sy.Sync("Courses", []Record{{"id": "1", "name": "A"}}, []string{"id"}); err != nil {
		t.Fatalf("Failed to sync: %v", err)
	}

	out, err := sy.Sync("Courses", nil, []string{"id"})
	if err != nil {
		t.Fatalf("Empty pull should not fail: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("Expected empty output, got %d rows", len(out))
	}

	prod, err := db.ReadProduction("Courses")
	if err != nil {
		t.Fatalf("Failed to read production: %v", err)
	}
	if len(prod) != 1 {
		t.Errorf("Expected production unchanged, got %d rows", len(prod))
	}
}

func TestSyncIdempotent(t *testing.T) {
	db := setupTestDB(t)

	records := []Record{
		{"id": "1", "name": "A"},
		{"id": "2", "name": "B"},
	}

	first, err := syncerAt(db, t0).SyncAndCleanup("Courses", records, []string{"id"})
	if err != nil {
		t.Fatalf("Failed first sync: %v", err)
	}
	second, err := syncerAt(db, t1).SyncAndCleanup("Courses", records, []string{"id"})
	if err != nil {
		t.Fatalf("Failed second sync: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("Expected same output size, got %d vs %d", len(first), len(second))
	}
	for i := range first {
		for _, col := range []string{ColSourceID, ColHash, ColCreateDate, ColLastModifiedDate, "name"} {
			if first[i][col] != second[i][col] {
				t.Errorf("Row %d column %s differs: %q vs %q", i, col, first[i][col], second[i][col])
			}
		}
	}

	prod, err := db.ReadProduction("Courses")
	if err != nil {
		t.Fatalf("Failed to read production: %v", err)
	}
	if len(prod) != 2 {
		t.Errorf("Expected 2 production rows, got %d", len(prod))
	}
}

func TestCompositeNaturalKey(t *testing.T) {
	db := setupTestDB(t)

	records := []Record{
		{"courseId": "c1", "userId": "u1", "role": "student"},
		{"courseId": "c2", "userId": "u1", "role": "student"},
	}
	if _, err := syncerAt(db, t0).SyncAndCleanup("Enrollments", records, []string{"courseId", "userId"}); err != nil {
		t.Fatalf("Failed first sync: %v", err)
	}

	prod, err := db.ReadProduction("Enrollments")
	if err != nil {
		t.Fatalf("Failed to read production: %v", err)
	}
	if len(prod) != 2 {
		t.Fatalf("Expected 2 distinct rows, got %d", len(prod))
	}
	if prod[0][ColSourceID] == prod[1][ColSourceID] {
		t.Errorf("Expected distinct SourceIds, both %q", prod[0][ColSourceID])
	}

	// A later pull missing the second row deletes nothing
	if _, err := syncerAt(db, t1).SyncAndCleanup("Enrollments", records[:1], []string{"courseId", "userId"}); err != nil {
		t.Fatalf("Failed second sync: %v", err)
	}
	prod, err = db.ReadProduction("Enrollments")
	if err != nil {
		t.Fatalf("Failed to read production: %v", err)
	}
	if len(prod) != 2 {
		t.Errorf("Expected production to retain 2 rows, got %d", len(prod))
	}
}

func TestSyncInvalidRecord(t *testing.T) {
	db := setupTestDB(t)
	sy := syncerAt(db, t0)

	_, err := sy.Sync("Courses", []Record{{"name": "A"}}, []string{"id"})
	if !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("Expected ErrInvalidRecord, got %v", err)
	}

	// Heterogeneous records are rejected before touching the store
	_, err = sy.Sync("Courses", []Record{
		{"id": "1", "name": "A"},
		{"id": "2", "extra": "B"},
	}, []string{"id"})
	if !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("Expected ErrInvalidRecord for heterogeneous input, got %v", err)
	}
}

func TestCleanupDropsTransientTables(t *testing.T) {
	db := setupTestDB(t)
	sy := syncerAt(db, t0)

	if _, err := sy.Sync("Courses", []Record{{"id": "1", "name": "A"}}, []string{"id"}); err != nil {
		t.Fatalf("Failed to sync: %v", err)
	}

	diff, err := db.Unmatched("Courses")
	if err != nil {
		t.Fatalf("Failed to read unmatched: %v", err)
	}
	if len(diff) != 1 || diff[0].Class != DiffNew {
		t.Fatalf("Expected one new row in unmatched, got %v", diff)
	}

	if err := sy.Cleanup("Courses"); err != nil {
		t.Fatalf("Failed to clean up: %v", err)
	}

	diff, err = db.Unmatched("Courses")
	if err != nil {
		t.Fatalf("Unmatched after cleanup should not fail: %v", err)
	}
	if len(diff) != 0 {
		t.Errorf("Expected empty diff after cleanup, got %d rows", len(diff))
	}
}

func TestColumnDrift(t *testing.T) {
	db := setupTestDB(t)

	if _, err := syncerAt(db, t0).SyncAndCleanup("Courses", []Record{{"id": "1", "name": "A"}}, []string{"id"}); err != nil {
		t.Fatalf("Failed first sync: %v", err)
	}

	// The source starts emitting a new column; production grows to fit
	withTerm := []Record{{"id": "1", "name": "A", "term": "Fall"}}
	out, err := syncerAt(db, t1).SyncAndCleanup("Courses", withTerm, []string{"id"})
	if err != nil {
		t.Fatalf("Failed sync after column drift: %v", err)
	}
	if out[0][ColCreateDate] != t0.Format(TimeFormat) {
		t.Errorf("Expected CreateDate preserved across drift, got %s", out[0][ColCreateDate])
	}

	prod, err := db.ReadProduction("Courses")
	if err != nil {
		t.Fatalf("Failed to read production: %v", err)
	}
	if prod[0]["term"] != "Fall" {
		t.Errorf("Expected term column in production, got %q", prod[0]["term"])
	}
}
