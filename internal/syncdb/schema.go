package syncdb

import (
	"fmt"
	"regexp"
	"strings"
)

// TimeFormat is the timestamp layout used for CreateDate/LastModifiedDate,
// both inside the store and in the output CSVs. No timezone offset.
const TimeFormat = "2006-01-02 15:04:05"

// engineColumnsSQL is the engine-owned tail of every sync store table.
const engineColumnsSQL = `
	"SourceId" TEXT NOT NULL,
	"Hash" TEXT NOT NULL,
	"JsonSnapshot" TEXT NOT NULL,
	"CreateDate" TEXT NOT NULL,
	"LastModifiedDate" TEXT NOT NULL,
	"SyncNeeded" INTEGER NOT NULL`

var identifierPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// validIdentifier reports whether name is safe to interpolate into SQL as a
// table or column identifier. Resource and column names come from the static
// registry or from LMS payload keys already filtered by the adapters, but
// the store still refuses anything outside the safe set.
func validIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

func productionTable(resource string) string  { return resource }
func stagingTable(resource string) string     { return "sync_" + resource }
func unmatchedTable(resource string) string   { return "unmatched_" + resource }
func stagingNKIndex(resource string) string   { return "ix_sync_" + resource + "_nk" }

// quoteIdent double-quotes an identifier for SQLite.
func quoteIdent(name string) string {
	return `"` + name + `"`
}

func quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = quoteIdent(n)
	}
	return out
}

// createTableSQL builds the CREATE TABLE statement for a resource table with
// the given data columns followed by the engine columns. Only the production
// table carries the primary key.
func createTableSQL(table string, dataColumns []string, primaryKey bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", quoteIdent(table))
	for _, col := range dataColumns {
		fmt.Fprintf(&b, "\t%s TEXT,\n", quoteIdent(col))
	}
	b.WriteString(engineColumnsSQL)
	if primaryKey {
		b.WriteString(",\n\tPRIMARY KEY (\"SourceId\")")
	}
	b.WriteString("\n)")
	return b.String()
}
