package syncdb

import (
	"database/sql"
	"fmt"
	"strings"
)

// ensureProductionTable creates the production table for a resource if it
// does not exist, and adds any data columns that have appeared in the feed
// since the table was created. Columns are never dropped; a column the
// source stops emitting simply goes empty for new rows.
func ensureProductionTable(tx *sql.Tx, resource string, dataColumns []string) error {
	table := productionTable(resource)
	if _, err := tx.Exec(createTableSQL(table, dataColumns, true)); err != nil {
		return fmt.Errorf("creating production table for %s: %w", resource, err)
	}

	existing, err := tableColumns(tx, table)
	if err != nil {
		return err
	}
	for _, col := range dataColumns {
		if _, ok := existing[col]; ok {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT", quoteIdent(table), quoteIdent(col))
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("adding column %s to %s: %w", col, table, err)
		}
	}
	return nil
}

// recreateStagingTable drops and recreates the staging table so its columns
// always match the current pull. The natural-key index is deliberately not
// created here; it is built after the bulk insert to keep large loads fast.
func recreateStagingTable(tx *sql.Tx, resource string, dataColumns []string) error {
	table := stagingTable(resource)
	if _, err := tx.Exec("DROP INDEX IF EXISTS " + quoteIdent(stagingNKIndex(resource))); err != nil {
		return fmt.Errorf("dropping staging index for %s: %w", resource, err)
	}
	if _, err := tx.Exec("DROP TABLE IF EXISTS " + quoteIdent(table)); err != nil {
		return fmt.Errorf("dropping staging table for %s: %w", resource, err)
	}
	if _, err := tx.Exec(createTableSQL(table, dataColumns, false)); err != nil {
		return fmt.Errorf("creating staging table for %s: %w", resource, err)
	}
	return nil
}

// insertStaging bulk-inserts stamped rows into the staging table.
func insertStaging(tx *sql.Tx, resource string, dataColumns []string, rows []Record) error {
	if len(rows) == 0 {
		return nil
	}

	cols := append(append([]string{}, dataColumns...), engineColumns...)
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",")
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(stagingTable(resource)),
		strings.Join(quoteAll(cols), ", "),
		placeholders)

	prepared, err := tx.Prepare(stmt)
	if err != nil {
		return fmt.Errorf("preparing staging insert for %s: %w", resource, err)
	}
	defer prepared.Close()

	args := make([]any, len(cols))
	for _, row := range rows {
		for i, col := range cols {
			args[i] = row[col]
		}
		if _, err := prepared.Exec(args...); err != nil {
			return fmt.Errorf("inserting staging row for %s: %w", resource, err)
		}
	}
	return nil
}

// createStagingNKIndex rebuilds the non-unique natural-key index after a
// bulk insert.
func createStagingNKIndex(tx *sql.Tx, resource string, naturalKey []string) error {
	stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		quoteIdent(stagingNKIndex(resource)),
		quoteIdent(stagingTable(resource)),
		strings.Join(quoteAll(naturalKey), ", "))
	if _, err := tx.Exec(stmt); err != nil {
		return fmt.Errorf("creating staging index for %s: %w", resource, err)
	}
	return nil
}

// tableColumns returns the set of column names for a table.
func tableColumns(tx *sql.Tx, table string) (map[string]struct{}, error) {
	rows, err := tx.Query(fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]struct{})
	for rows.Next() {
		var (
			cid     int
			name    string
			colType string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scanning column of %s: %w", table, err)
		}
		cols[name] = struct{}{}
	}
	return cols, rows.Err()
}

// ReadProduction returns every row of a resource's production table, keyed
// by column name, in SourceId order. Intended for diagnostics and tests.
func (db *DB) ReadProduction(resource string) ([]Record, error) {
	if !validIdentifier(resource) {
		return nil, fmt.Errorf("%w: invalid resource name %q", ErrInvalidRecord, resource)
	}
	return readAllRows(db.conn, productionTable(resource))
}

func readAllRows(conn *sql.DB, table string) ([]Record, error) {
	rows, err := conn.Query(fmt.Sprintf("SELECT * FROM %s ORDER BY \"SourceId\"", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s: %w", table, err)
	}

	var out []Record
	values := make([]sql.NullString, len(cols))
	scan := make([]any, len(cols))
	for i := range values {
		scan[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(scan...); err != nil {
			return nil, fmt.Errorf("scanning row of %s: %w", table, err)
		}
		rec := make(Record, len(cols))
		for i, col := range cols {
			if values[i].Valid {
				rec[col] = values[i].String
			} else {
				rec[col] = ""
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
