package loader

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"lms-sync/internal/udm"
)

// The ODS schema is generated from the UDM registry and versioned through
// a journal table: each script runs once, new resources pick up their
// tables on the next run.

const journalTable = "MigrationJournal"

func (b *SQLBuilder) typeKey() string {
	if b.engine == "postgresql" {
		return "VARCHAR(255)"
	}
	return "NVARCHAR(255)"
}

func (b *SQLBuilder) typeText() string {
	if b.engine == "postgresql" {
		return "TEXT"
	}
	return "NVARCHAR(MAX)"
}

func (b *SQLBuilder) typeTime() string {
	if b.engine == "postgresql" {
		return "TIMESTAMP"
	}
	return "DATETIME2"
}

func (b *SQLBuilder) identity() string {
	if b.engine == "postgresql" {
		return "INT GENERATED BY DEFAULT AS IDENTITY"
	}
	return "INT IDENTITY(1,1)"
}

// columnType picks the DDL type for one staging/production data column.
// surrogates maps the columns that hold parent surrogate keys.
func (b *SQLBuilder) columnType(col string, surrogates map[string]struct{}) string {
	if _, ok := surrogates[col]; ok {
		return "INT"
	}
	switch col {
	case "SourceSystemIdentifier", "SourceSystem", "SubmissionType":
		return b.typeKey()
	case "CreateDate", "LastModifiedDate":
		return b.typeTime() + " NOT NULL"
	case "SourceCreateDate", "SourceLastModifiedDate", "EventDate",
		"StartDate", "EndDate", "StartDateTime", "EndDateTime",
		"DueDateTime", "SubmissionDateTime", "ActivityDateTime":
		return b.typeTime() + " NULL"
	default:
		return b.typeText() + " NULL"
	}
}

// CreateSchema creates the lms schema when absent.
func (b *SQLBuilder) CreateSchema() string {
	if b.engine == "postgresql" {
		return fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", b.quote(Schema))
	}
	return fmt.Sprintf("IF NOT EXISTS (SELECT 1 FROM sys.schemas WHERE name = '%s') EXEC('CREATE SCHEMA %s')", Schema, Schema)
}

// guardCreate wraps a CREATE TABLE so re-running it is harmless.
func (b *SQLBuilder) guardCreate(name, body string) string {
	if b.engine == "postgresql" {
		return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)", b.table(name), body)
	}
	return fmt.Sprintf("IF OBJECT_ID('%s.%s', 'U') IS NULL CREATE TABLE %s (\n%s\n)",
		Schema, name, b.table(name), body)
}

// CreateJournal creates the migration journal.
func (b *SQLBuilder) CreateJournal() string {
	body := fmt.Sprintf("    %s %s PRIMARY KEY,\n    %s %s NOT NULL",
		b.quote("ScriptName"), b.typeKey(),
		b.quote("InstallDate"), b.typeTime())
	return b.guardCreate(journalTable, body)
}

// CreateProductionTable creates one resource's production table: identity
// surrogate key, data columns with parent surrogates resolved, DeletedAt,
// and a unique natural key.
func (b *SQLBuilder) CreateProductionTable(res udm.Resource) string {
	surrogates := make(map[string]struct{}, len(res.Parents))
	for _, p := range res.Parents {
		surrogates[p.SurrogateColumn] = struct{}{}
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("    %s %s PRIMARY KEY", b.quote(res.SurrogateColumn()), b.identity()))
	for _, c := range productionColumns(res) {
		nullability := ""
		if c == "SourceSystemIdentifier" || c == "SourceSystem" || c == "SubmissionType" {
			nullability = " NOT NULL"
		}
		if _, ok := surrogates[c]; ok {
			nullability = " NOT NULL"
		}
		lines = append(lines, fmt.Sprintf("    %s %s%s", b.quote(c), b.columnType(c, surrogates), nullability))
	}
	lines = append(lines, fmt.Sprintf("    %s %s NULL", b.quote("DeletedAt"), b.typeTime()))

	nk := []string{"SourceSystemIdentifier", "SourceSystem"}
	if res.Collection {
		nk = []string{res.Parents[0].SurrogateColumn, "SubmissionType"}
	}
	lines = append(lines, fmt.Sprintf("    CONSTRAINT %s UNIQUE (%s)",
		b.quote("UK_"+res.Table+"_NaturalKey"),
		strings.Join(b.quoteAll(nk), ", ")))

	for _, p := range res.Parents {
		lines = append(lines, fmt.Sprintf("    CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
			b.quote(fmt.Sprintf("FK_%s_%s", res.Table, p.ParentTable)),
			b.quote(p.SurrogateColumn),
			b.table(p.ParentTable),
			b.quote(p.SurrogateColumn)))
	}

	return b.guardCreate(res.Table, strings.Join(lines, ",\n"))
}

// CreateStagingTable creates one resource's staging table: an identity
// row id plus the CSV columns, no constraints.
func (b *SQLBuilder) CreateStagingTable(res udm.Resource) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("    %s %s PRIMARY KEY", b.quote("StagingIdentifier"), b.identity()))
	for _, c := range res.Columns {
		lines = append(lines, fmt.Sprintf("    %s %s", b.quote(c), b.columnType(c, nil)))
	}
	return b.guardCreate(stagingName(res), strings.Join(lines, ",\n"))
}

// CreateExceptionsView creates the view exposing staged rows whose parent
// rows are missing or soft-deleted; those rows never reach production.
// Resources without parents have no view and return "".
func (b *SQLBuilder) CreateExceptionsView(res udm.Resource) string {
	if len(res.Parents) == 0 {
		return ""
	}

	create := "CREATE OR REPLACE VIEW"
	if b.engine == "mssql" {
		create = "CREATE OR ALTER VIEW"
	}

	var joins, misses []string
	for _, p := range res.Parents {
		joins = append(joins, fmt.Sprintf(
			"LEFT JOIN %s ON %s.%s = stg.%s AND %s.%s = stg.%s AND %s.%s IS NULL",
			b.table(p.ParentTable),
			b.quote(p.ParentTable), b.quote("SourceSystemIdentifier"), b.quote(p.StagingColumn),
			b.quote(p.ParentTable), b.quote("SourceSystem"), b.quote("SourceSystem"),
			b.quote(p.ParentTable), b.quote("DeletedAt")))
		misses = append(misses, fmt.Sprintf("%s.%s IS NULL",
			b.quote(p.ParentTable), b.quote(p.SurrogateColumn)))
	}

	return fmt.Sprintf(`%s %s.%s AS
SELECT stg.*
FROM %s stg
%s
WHERE %s`,
		create, b.quote(Schema), b.quote("exceptions_"+res.Table),
		b.table(stagingName(res)),
		strings.Join(joins, "\n"),
		strings.Join(misses, " OR "))
}

// Migrate brings the ODS schema up to date, applying each resource's DDL
// once and journaling it.
func (l *Loader) Migrate(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, l.sql.CreateSchema()); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	if _, err := l.db.ExecContext(ctx, l.sql.CreateJournal()); err != nil {
		return fmt.Errorf("creating migration journal: %w", err)
	}

	for _, name := range udm.LoadOrder {
		res := udm.Registry[name]
		script := "create_" + res.Table

		applied, err := l.journalContains(ctx, script)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		statements := []string{
			l.sql.CreateProductionTable(res),
			l.sql.CreateStagingTable(res),
		}
		if view := l.sql.CreateExceptionsView(res); view != "" {
			statements = append(statements, view)
		}
		for _, stmt := range statements {
			if _, err := l.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migrating %s: %w", res.Table, err)
			}
		}

		if err := l.journalInsert(ctx, script); err != nil {
			return err
		}
		l.logger.Info("migration applied", "script", script)
	}
	return nil
}

func (l *Loader) journalContains(ctx context.Context, script string) (bool, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		l.sql.quote("ScriptName"), l.sql.table(journalTable),
		l.sql.quote("ScriptName"), l.sql.placeholder(1))

	var name string
	err := l.db.QueryRowContext(ctx, query, script).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying migration journal: %w", err)
	}
	return true, nil
}

func (l *Loader) journalInsert(ctx context.Context, script string) error {
	query := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (%s, %s)",
		l.sql.table(journalTable),
		l.sql.quote("ScriptName"), l.sql.quote("InstallDate"),
		l.sql.placeholder(1), l.sql.now)
	if _, err := l.db.ExecContext(ctx, query, script); err != nil {
		return fmt.Errorf("journaling migration %s: %w", script, err)
	}
	return nil
}
