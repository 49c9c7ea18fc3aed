// Package loader moves extractor CSV output into an ODS: PostgreSQL or
// SQL Server, lms schema. Rows are staged, then merged into production
// tables keyed by (SourceSystemIdentifier, SourceSystem); rows absent
// from a load are soft-deleted, returning rows are restored.
package loader

import (
	"fmt"
	"strings"

	"lms-sync/internal/udm"
)

// Schema is the ODS schema holding every loader table.
const Schema = "lms"

// SQLBuilder generates the per-engine SQL for one load. Both engines run
// the same operations; only quoting, placeholders and a few function
// names differ.
type SQLBuilder struct {
	engine      string
	now         string
	quote       func(string) string
	placeholder func(int) string
}

// NewPostgresBuilder returns the PostgreSQL SQL builder.
func NewPostgresBuilder() *SQLBuilder {
	return &SQLBuilder{
		engine:      "postgresql",
		now:         "NOW()",
		quote:       func(s string) string { return `"` + s + `"` },
		placeholder: func(i int) string { return fmt.Sprintf("$%d", i) },
	}
}

// NewMSSQLBuilder returns the SQL Server SQL builder.
func NewMSSQLBuilder() *SQLBuilder {
	return &SQLBuilder{
		engine:      "mssql",
		now:         "GETDATE()",
		quote:       func(s string) string { return "[" + s + "]" },
		placeholder: func(i int) string { return fmt.Sprintf("@p%d", i) },
	}
}

// Engine names the builder's target engine.
func (b *SQLBuilder) Engine() string { return b.engine }

func (b *SQLBuilder) table(name string) string {
	return b.quote(Schema) + "." + b.quote(name)
}

func (b *SQLBuilder) quoteAll(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = b.quote(c)
	}
	return out
}

func stagingName(res udm.Resource) string {
	return "stg_" + res.Table
}

// productionColumns is the production table's data column set: the
// staging columns with each parent's source identifier replaced by the
// parent's surrogate key. Collection tables reduce to the surrogate plus
// the collection value.
func productionColumns(res udm.Resource) []string {
	if res.Collection {
		return []string{res.Parents[0].SurrogateColumn, "SubmissionType"}
	}

	dropped := make(map[string]struct{}, len(res.Parents))
	for _, p := range res.Parents {
		dropped[p.StagingColumn] = struct{}{}
	}

	var out []string
	for _, c := range res.Columns {
		if _, drop := dropped[c]; drop {
			continue
		}
		out = append(out, c)
	}
	for _, p := range res.Parents {
		out = append(out, p.SurrogateColumn)
	}
	return out
}

// TruncateStaging empties a staging table before a load.
func (b *SQLBuilder) TruncateStaging(res udm.Resource) string {
	if b.engine == "postgresql" {
		return fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY", b.table(stagingName(res)))
	}
	return fmt.Sprintf("TRUNCATE TABLE %s", b.table(stagingName(res)))
}

func (b *SQLBuilder) stagingIndexName(res udm.Resource) string {
	return fmt.Sprintf("ix_%s_natural_key", strings.ToLower(stagingName(res)))
}

// DropStagingNKIndex removes the staging natural-key index ahead of the
// bulk insert.
func (b *SQLBuilder) DropStagingNKIndex(res udm.Resource) string {
	if b.engine == "postgresql" {
		return fmt.Sprintf("DROP INDEX IF EXISTS %s.%s", b.quote(Schema), b.quote(b.stagingIndexName(res)))
	}
	return fmt.Sprintf("DROP INDEX IF EXISTS %s ON %s", b.quote(b.stagingIndexName(res)), b.table(stagingName(res)))
}

// CreateStagingNKIndex rebuilds the staging natural-key index after the
// bulk insert.
func (b *SQLBuilder) CreateStagingNKIndex(res udm.Resource) string {
	return fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
		b.quote(b.stagingIndexName(res)),
		b.table(stagingName(res)),
		strings.Join(b.quoteAll(res.NaturalKey()), ", "))
}

// InsertStaging is the parameterized single-row staging insert.
func (b *SQLBuilder) InsertStaging(res udm.Resource) string {
	placeholders := make([]string, len(res.Columns))
	for i := range res.Columns {
		placeholders[i] = b.placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		b.table(stagingName(res)),
		strings.Join(b.quoteAll(res.Columns), ", "),
		strings.Join(placeholders, ", "))
}

// parentJoins renders the INNER JOINs resolving each parent's surrogate
// key. Soft-deleted parents do not match, so their children wait in
// staging and surface through the exceptions views.
func (b *SQLBuilder) parentJoins(res udm.Resource) string {
	var sb strings.Builder
	for _, p := range res.Parents {
		fmt.Fprintf(&sb, "\nJOIN %s ON %s.%s = stg.%s AND %s.%s = stg.%s AND %s.%s IS NULL",
			b.table(p.ParentTable),
			b.quote(p.ParentTable), b.quote("SourceSystemIdentifier"), b.quote(p.StagingColumn),
			b.quote(p.ParentTable), b.quote("SourceSystem"), b.quote("SourceSystem"),
			b.quote(p.ParentTable), b.quote("DeletedAt"))
	}
	return sb.String()
}

// InsertNewRecords copies staging rows production has never seen,
// resolving parent surrogate keys on the way.
func (b *SQLBuilder) InsertNewRecords(res udm.Resource) string {
	if res.Collection {
		return b.insertNewCollection(res)
	}

	dropped := make(map[string]struct{}, len(res.Parents))
	for _, p := range res.Parents {
		dropped[p.StagingColumn] = struct{}{}
	}

	var insertCols, selectCols []string
	for _, c := range res.Columns {
		if _, drop := dropped[c]; drop {
			continue
		}
		insertCols = append(insertCols, b.quote(c))
		selectCols = append(selectCols, "stg."+b.quote(c))
	}
	for _, p := range res.Parents {
		insertCols = append(insertCols, b.quote(p.SurrogateColumn))
		selectCols = append(selectCols, b.quote(p.ParentTable)+"."+b.quote(p.SurrogateColumn))
	}

	return fmt.Sprintf(`INSERT INTO %s (%s)
SELECT %s
FROM %s stg%s
WHERE NOT EXISTS (
    SELECT 1 FROM %s t
    WHERE t.%s = stg.%s AND t.%s = stg.%s
)`,
		b.table(res.Table), strings.Join(insertCols, ", "),
		strings.Join(selectCols, ", "),
		b.table(stagingName(res)), b.parentJoins(res),
		b.table(res.Table),
		b.quote("SourceSystemIdentifier"), b.quote("SourceSystemIdentifier"),
		b.quote("SourceSystem"), b.quote("SourceSystem"))
}

// insertNewCollection handles AssignmentSubmissionType, whose production
// natural key is (parent surrogate, SubmissionType).
func (b *SQLBuilder) insertNewCollection(res udm.Resource) string {
	p := res.Parents[0]
	return fmt.Sprintf(`INSERT INTO %s (%s, %s)
SELECT %s.%s, stg.%s
FROM %s stg%s
WHERE NOT EXISTS (
    SELECT 1 FROM %s t
    WHERE t.%s = %s.%s AND t.%s = stg.%s
)`,
		b.table(res.Table), b.quote(p.SurrogateColumn), b.quote("SubmissionType"),
		b.quote(p.ParentTable), b.quote(p.SurrogateColumn), b.quote("SubmissionType"),
		b.table(stagingName(res)), b.parentJoins(res),
		b.table(res.Table),
		b.quote(p.SurrogateColumn), b.quote(p.ParentTable), b.quote(p.SurrogateColumn),
		b.quote("SubmissionType"), b.quote("SubmissionType"))
}

// updatableColumns is what CopyUpdates rewrites: every production data
// column except the natural key and the immutable CreateDate.
func updatableColumns(res udm.Resource) []string {
	skip := map[string]struct{}{
		"SourceSystemIdentifier": {},
		"SourceSystem":           {},
		"CreateDate":             {},
	}
	for _, p := range res.Parents {
		skip[p.StagingColumn] = struct{}{}
	}

	var out []string
	for _, c := range res.Columns {
		if _, s := skip[c]; s {
			continue
		}
		out = append(out, c)
	}
	return out
}

// CopyUpdates rewrites production rows whose staged LastModifiedDate
// moved. Collection tables carry no mutable columns and return "".
func (b *SQLBuilder) CopyUpdates(res udm.Resource) string {
	if res.Collection {
		return ""
	}

	sets := make([]string, 0, len(res.Columns))
	for _, c := range updatableColumns(res) {
		sets = append(sets, fmt.Sprintf("%s = stg.%s", b.quote(c), b.quote(c)))
	}

	if b.engine == "postgresql" {
		return fmt.Sprintf(`UPDATE %s t
SET %s
FROM %s stg
WHERE t.%s = stg.%s AND t.%s = stg.%s
  AND t.%s <> stg.%s`,
			b.table(res.Table),
			strings.Join(sets, ", "),
			b.table(stagingName(res)),
			b.quote("SourceSystemIdentifier"), b.quote("SourceSystemIdentifier"),
			b.quote("SourceSystem"), b.quote("SourceSystem"),
			b.quote("LastModifiedDate"), b.quote("LastModifiedDate"))
	}

	return fmt.Sprintf(`UPDATE t
SET %s
FROM %s t
JOIN %s stg
  ON t.%s = stg.%s AND t.%s = stg.%s
WHERE t.%s <> stg.%s`,
		strings.Join(sets, ", "),
		b.table(res.Table),
		b.table(stagingName(res)),
		b.quote("SourceSystemIdentifier"), b.quote("SourceSystemIdentifier"),
		b.quote("SourceSystem"), b.quote("SourceSystem"),
		b.quote("LastModifiedDate"), b.quote("LastModifiedDate"))
}

// SoftDelete stamps DeletedAt on production rows of one source system
// that the current load no longer contains. Takes the source system as
// its single parameter.
func (b *SQLBuilder) SoftDelete(res udm.Resource) string {
	if res.Collection {
		return b.softDeleteCollection(res)
	}

	return fmt.Sprintf(`UPDATE %s
SET %s = %s
WHERE %s = %s AND %s IS NULL
  AND NOT EXISTS (
    SELECT 1 FROM %s stg
    WHERE stg.%s = %s.%s AND stg.%s = %s.%s
)`,
		b.table(res.Table),
		b.quote("DeletedAt"), b.now,
		b.quote("SourceSystem"), b.placeholder(1), b.quote("DeletedAt"),
		b.table(stagingName(res)),
		b.quote("SourceSystemIdentifier"), b.quote(res.Table), b.quote("SourceSystemIdentifier"),
		b.quote("SourceSystem"), b.quote(res.Table), b.quote("SourceSystem"))
}

// softDeleteCollection scopes the delete to assignments present in the
// load; an assignment missing entirely is handled by its own soft delete.
func (b *SQLBuilder) softDeleteCollection(res udm.Resource) string {
	p := res.Parents[0]
	return fmt.Sprintf(`UPDATE %s
SET %s = %s
WHERE %s IS NULL
  AND %s IN (
    SELECT a.%s FROM %s a
    JOIN %s stg ON stg.%s = a.%s AND stg.%s = a.%s
)
  AND NOT EXISTS (
    SELECT 1 FROM %s stg
    JOIN %s a ON a.%s = stg.%s AND a.%s = stg.%s
    WHERE a.%s = %s.%s AND stg.%s = %s.%s
)`,
		b.table(res.Table),
		b.quote("DeletedAt"), b.now,
		b.quote("DeletedAt"),
		b.quote(p.SurrogateColumn),
		b.quote(p.SurrogateColumn), b.table(p.ParentTable),
		b.table(stagingName(res)), b.quote("SourceSystemIdentifier"), b.quote("SourceSystemIdentifier"), b.quote("SourceSystem"), b.quote("SourceSystem"),
		b.table(stagingName(res)),
		b.table(p.ParentTable), b.quote("SourceSystemIdentifier"), b.quote("SourceSystemIdentifier"), b.quote("SourceSystem"), b.quote("SourceSystem"),
		b.quote(p.SurrogateColumn), b.quote(res.Table), b.quote(p.SurrogateColumn),
		b.quote("SubmissionType"), b.quote(res.Table), b.quote("SubmissionType"))
}

// UnSoftDelete restores soft-deleted rows that reappeared in the load and
// bumps their LastModifiedDate so downstream consumers see the restore as
// a change.
func (b *SQLBuilder) UnSoftDelete(res udm.Resource) string {
	if res.Collection {
		return b.unSoftDeleteCollection(res)
	}

	return fmt.Sprintf(`UPDATE %s
SET %s = NULL, %s = %s
WHERE %s = %s AND %s IS NOT NULL
  AND EXISTS (
    SELECT 1 FROM %s stg
    WHERE stg.%s = %s.%s AND stg.%s = %s.%s
)`,
		b.table(res.Table),
		b.quote("DeletedAt"), b.quote("LastModifiedDate"), b.now,
		b.quote("SourceSystem"), b.placeholder(1), b.quote("DeletedAt"),
		b.table(stagingName(res)),
		b.quote("SourceSystemIdentifier"), b.quote(res.Table), b.quote("SourceSystemIdentifier"),
		b.quote("SourceSystem"), b.quote(res.Table), b.quote("SourceSystem"))
}

func (b *SQLBuilder) unSoftDeleteCollection(res udm.Resource) string {
	p := res.Parents[0]
	return fmt.Sprintf(`UPDATE %s
SET %s = NULL
WHERE %s IS NOT NULL
  AND EXISTS (
    SELECT 1 FROM %s stg
    JOIN %s a ON a.%s = stg.%s AND a.%s = stg.%s
    WHERE a.%s = %s.%s AND stg.%s = %s.%s
)`,
		b.table(res.Table),
		b.quote("DeletedAt"),
		b.quote("DeletedAt"),
		b.table(stagingName(res)),
		b.table(p.ParentTable), b.quote("SourceSystemIdentifier"), b.quote("SourceSystemIdentifier"), b.quote("SourceSystem"), b.quote("SourceSystem"),
		b.quote(p.SurrogateColumn), b.quote(res.Table), b.quote(p.SurrogateColumn),
		b.quote("SubmissionType"), b.quote(res.Table), b.quote("SubmissionType"))
}
