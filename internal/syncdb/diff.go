package syncdb

import (
	"database/sql"
	"fmt"
	"strings"
)

// DiffClass identifies which side of the staging/production symmetric
// difference a row came from, and why.
type DiffClass string

const (
	// DiffNew is a row present in staging whose SourceId has never been
	// seen in production.
	DiffNew DiffClass = "new"
	// DiffChangedAfter is the staging-side (after) image of a row whose
	// hash changed.
	DiffChangedAfter DiffClass = "changed-after"
	// DiffChangedBefore is the production-side (before) image of a row
	// whose hash changed.
	DiffChangedBefore DiffClass = "changed-before"
	// DiffMissing is a row present in production but absent from the
	// current pull. The extractor never deletes these.
	DiffMissing DiffClass = "missing"
)

// DiffRow is one classified entry of the unmatched set.
type DiffRow struct {
	Class            DiffClass
	SourceID         string
	Hash             string
	JSONSnapshot     string
	CreateDate       string
	LastModifiedDate string
}

// DiffSummary counts the unmatched set by class.
type DiffSummary struct {
	New     int
	Changed int
	Missing int
}

// rebuildUnmatched materializes the symmetric difference of staging and
// production over (SourceId, Hash) into the unmatched table. Staging-side
// rows arrive with SyncNeeded=1, production-side rows with SyncNeeded=0, so
// the flag doubles as the side marker. Must run before the merge mutates
// production, so the before-images survive for inspection.
func rebuildUnmatched(tx *sql.Tx, resource string, dataColumns []string) error {
	unmatched := quoteIdent(unmatchedTable(resource))
	staging := quoteIdent(stagingTable(resource))
	production := quoteIdent(productionTable(resource))

	if _, err := tx.Exec("DROP TABLE IF EXISTS " + unmatched); err != nil {
		return fmt.Errorf("dropping unmatched table for %s: %w", resource, err)
	}
	if _, err := tx.Exec(createTableSQL(unmatchedTable(resource), dataColumns, false)); err != nil {
		return fmt.Errorf("creating unmatched table for %s: %w", resource, err)
	}

	cols := strings.Join(quoteAll(append(append([]string{}, dataColumns...), engineColumns...)), ", ")

	stmt := fmt.Sprintf(`
		INSERT INTO %[1]s (%[2]s)
		SELECT %[2]s FROM %[3]s AS s
		WHERE NOT EXISTS (
			SELECT 1 FROM %[4]s AS p
			WHERE p."SourceId" = s."SourceId" AND p."Hash" = s."Hash"
		)`, unmatched, cols, staging, production)
	if _, err := tx.Exec(stmt); err != nil {
		return fmt.Errorf("collecting staging-side unmatched rows for %s: %w", resource, err)
	}

	stmt = fmt.Sprintf(`
		INSERT INTO %[1]s (%[2]s)
		SELECT %[2]s FROM %[4]s AS p
		WHERE NOT EXISTS (
			SELECT 1 FROM %[3]s AS s
			WHERE s."SourceId" = p."SourceId" AND s."Hash" = p."Hash"
		)`, unmatched, cols, staging, production)
	if _, err := tx.Exec(stmt); err != nil {
		return fmt.Errorf("collecting production-side unmatched rows for %s: %w", resource, err)
	}

	// Changed rows keep their original CreateDate. The staging side was
	// stamped with the sync timestamp; pull the true value from production.
	stmt = fmt.Sprintf(`
		UPDATE %[1]s
		SET "CreateDate" = (
			SELECT p."CreateDate" FROM %[2]s AS p
			WHERE p."SourceId" = %[1]s."SourceId"
		)
		WHERE "SyncNeeded" = 1 AND EXISTS (
			SELECT 1 FROM %[2]s AS p
			WHERE p."SourceId" = %[1]s."SourceId"
		)`, unmatched, production)
	if _, err := tx.Exec(stmt); err != nil {
		return fmt.Errorf("reconciling unmatched create dates for %s: %w", resource, err)
	}
	return nil
}

// mergeStagingIntoProduction upserts the current pull into production.
// Changed rows keep CreateDate and take the sync timestamp as
// LastModifiedDate; new rows take it as both. Nothing is ever deleted.
func mergeStagingIntoProduction(tx *sql.Tx, resource string, dataColumns []string) error {
	staging := quoteIdent(stagingTable(resource))
	production := quoteIdent(productionTable(resource))

	var set strings.Builder
	for _, col := range dataColumns {
		fmt.Fprintf(&set, "%s = s.%s, ", quoteIdent(col), quoteIdent(col))
	}
	set.WriteString(`"Hash" = s."Hash", "JsonSnapshot" = s."JsonSnapshot", "LastModifiedDate" = s."LastModifiedDate"`)

	stmt := fmt.Sprintf(`
		UPDATE %[1]s
		SET %[2]s
		FROM %[3]s AS s
		WHERE s."SourceId" = %[1]s."SourceId" AND s."Hash" <> %[1]s."Hash"`,
		production, set.String(), staging)
	if _, err := tx.Exec(stmt); err != nil {
		return fmt.Errorf("updating changed rows for %s: %w", resource, err)
	}

	cols := strings.Join(quoteAll(append(append([]string{}, dataColumns...), engineColumns...)), ", ")
	stmt = fmt.Sprintf(`
		INSERT INTO %[1]s (%[2]s)
		SELECT %[2]s FROM %[3]s AS s
		WHERE NOT EXISTS (
			SELECT 1 FROM %[1]s AS p WHERE p."SourceId" = s."SourceId"
		)`, production, cols, staging)
	if _, err := tx.Exec(stmt); err != nil {
		return fmt.Errorf("inserting new rows for %s: %w", resource, err)
	}

	stmt = fmt.Sprintf(`UPDATE %s SET "SyncNeeded" = 0 WHERE "SyncNeeded" <> 0`, production)
	if _, err := tx.Exec(stmt); err != nil {
		return fmt.Errorf("resetting sync flag for %s: %w", resource, err)
	}
	return nil
}

// readReconciledDates returns CreateDate/LastModifiedDate from production
// for every SourceId present in staging.
func readReconciledDates(tx *sql.Tx, resource string) (map[string][2]string, error) {
	stmt := fmt.Sprintf(`
		SELECT "SourceId", "CreateDate", "LastModifiedDate"
		FROM %s
		WHERE "SourceId" IN (SELECT "SourceId" FROM %s)`,
		quoteIdent(productionTable(resource)), quoteIdent(stagingTable(resource)))

	rows, err := tx.Query(stmt)
	if err != nil {
		return nil, fmt.Errorf("reading reconciled dates for %s: %w", resource, err)
	}
	defer rows.Close()

	dates := make(map[string][2]string)
	for rows.Next() {
		var id, created, modified string
		if err := rows.Scan(&id, &created, &modified); err != nil {
			return nil, fmt.Errorf("scanning reconciled dates for %s: %w", resource, err)
		}
		dates[id] = [2]string{created, modified}
	}
	return dates, rows.Err()
}

// Unmatched returns the classified diff of the most recent sync for a
// resource. Valid between Sync and Cleanup; afterwards the transient tables
// are gone and an empty slice is returned.
func (db *DB) Unmatched(resource string) ([]DiffRow, error) {
	if !validIdentifier(resource) {
		return nil, fmt.Errorf("%w: invalid resource name %q", ErrInvalidRecord, resource)
	}

	unmatched := quoteIdent(unmatchedTable(resource))
	var exists int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`,
		unmatchedTable(resource)).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("checking unmatched table for %s: %w", resource, err)
	}
	if exists == 0 {
		return nil, nil
	}

	stmt := fmt.Sprintf(`
		SELECT u."SourceId", u."Hash", u."JsonSnapshot", u."CreateDate", u."LastModifiedDate", u."SyncNeeded",
			(SELECT COUNT(*) FROM %[1]s AS u2 WHERE u2."SourceId" = u."SourceId") AS images
		FROM %[1]s AS u
		ORDER BY u."SourceId", u."SyncNeeded" DESC`, unmatched)

	rows, err := db.conn.Query(stmt)
	if err != nil {
		return nil, fmt.Errorf("reading unmatched rows for %s: %w", resource, err)
	}
	defer rows.Close()

	var out []DiffRow
	for rows.Next() {
		var (
			row        DiffRow
			syncNeeded int
			images     int
		)
		if err := rows.Scan(&row.SourceID, &row.Hash, &row.JSONSnapshot, &row.CreateDate, &row.LastModifiedDate, &syncNeeded, &images); err != nil {
			return nil, fmt.Errorf("scanning unmatched row for %s: %w", resource, err)
		}
		switch {
		case syncNeeded == 1 && images > 1:
			row.Class = DiffChangedAfter
		case syncNeeded == 1:
			row.Class = DiffNew
		case images > 1:
			row.Class = DiffChangedBefore
		default:
			row.Class = DiffMissing
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func summarize(diff []DiffRow) DiffSummary {
	var s DiffSummary
	for _, row := range diff {
		switch row.Class {
		case DiffNew:
			s.New++
		case DiffChangedAfter:
			s.Changed++
		case DiffMissing:
			s.Missing++
		}
	}
	return s
}
