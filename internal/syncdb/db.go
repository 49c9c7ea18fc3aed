package syncdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// FileName is the name of the sync store file inside the sync directory.
const FileName = "sync.sqlite"

// DB wraps the embedded SQLite sync store. The store is file-backed, owned
// by a single extractor process at a time, and persists across runs;
// operators delete the file to force a full resync.
type DB struct {
	conn *sql.DB
}

// Open opens (creating if necessary) the sync store under the given
// directory. Returns ErrStoreUnavailable if the directory or file cannot be
// created or opened.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating sync directory: %v", ErrStoreUnavailable, err)
	}

	path := filepath.Join(dir, FileName)
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrStoreUnavailable, path, err)
	}

	// SQLite works best with a single writer
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: pinging %s: %v", ErrStoreUnavailable, path, err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the sync store.
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Conn returns the underlying *sql.DB connection for direct use.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Begin starts a new transaction.
func (db *DB) Begin() (*sql.Tx, error) {
	return db.conn.Begin()
}

// Health checks if the store connection is healthy.
func (db *DB) Health() error {
	return db.conn.Ping()
}
