package syncdb

import (
	"database/sql"
	"fmt"
)

// The processed-files ledger tracks external activity file drops (Schoology
// usage analytics, Google Classroom administrative reports) that have already
// been ingested. Idempotence for these inputs is file-granular: a failed run
// leaves the file unmarked so the next run retries it.

const processedFilesTable = "ProcessedFiles"

func (db *DB) ensureLedger() error {
	_, err := db.conn.Exec(fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s ("FileName" TEXT PRIMARY KEY)`,
		quoteIdent(processedFilesTable)))
	if err != nil {
		return fmt.Errorf("creating processed-files ledger: %w", err)
	}
	return nil
}

// IsFileProcessed reports whether the named file was already ingested.
func (db *DB) IsFileProcessed(fileName string) (bool, error) {
	if err := db.ensureLedger(); err != nil {
		return false, err
	}
	var name string
	err := db.conn.QueryRow(fmt.Sprintf(
		`SELECT "FileName" FROM %s WHERE "FileName" = ?`,
		quoteIdent(processedFilesTable)), fileName).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying processed-files ledger: %w", err)
	}
	return true, nil
}

// MarkFileProcessed records a file as ingested. Marking the same file twice
// is a no-op.
func (db *DB) MarkFileProcessed(fileName string) error {
	if err := db.ensureLedger(); err != nil {
		return err
	}
	_, err := db.conn.Exec(fmt.Sprintf(
		`INSERT INTO %s ("FileName") VALUES (?) ON CONFLICT ("FileName") DO NOTHING`,
		quoteIdent(processedFilesTable)), fileName)
	if err != nil {
		return fmt.Errorf("marking file processed: %w", err)
	}
	return nil
}
