package syncdb

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open sync store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenCreatesDirectoryAndFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "sync")
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open sync store: %v", err)
	}
	defer db.Close()

	if err := db.Health(); err != nil {
		t.Fatalf("Store not healthy: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, FileName)); err != nil {
		t.Errorf("Expected store file to exist: %v", err)
	}
}

func TestOpenPersistsAcrossRuns(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open sync store: %v", err)
	}
	sy := NewSyncer(db, testLogger())
	if _, err := sy.SyncAndCleanup("Courses", []Record{{"id": "1", "name": "A"}}, []string{"id"}); err != nil {
		t.Fatalf("Failed to sync: %v", err)
	}
	db.Close()

	// Second "run" against the same directory sees the production table
	db2, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to reopen sync store: %v", err)
	}
	defer db2.Close()

	rows, err := db2.ReadProduction("Courses")
	if err != nil {
		t.Fatalf("Failed to read production: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("Expected 1 production row after reopen, got %d", len(rows))
	}
}

func TestOpenUnavailable(t *testing.T) {
	// A file where the directory should be
	base := t.TempDir()
	blocked := filepath.Join(base, "blocked")
	if err := os.WriteFile(blocked, []byte("x"), 0o644); err != nil {
		t.Fatalf("Failed to create blocking file: %v", err)
	}

	_, err := Open(filepath.Join(blocked, "sync"))
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Expected ErrStoreUnavailable, got %v", err)
	}
}
