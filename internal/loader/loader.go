package loader

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"

	_ "github.com/jackc/pgx/v5/stdlib"  // PostgreSQL driver
	_ "github.com/microsoft/go-mssqldb" // SQL Server driver

	"lms-sync/internal/config"
	"lms-sync/internal/metrics"
	"lms-sync/internal/syncdb"
	"lms-sync/internal/udm"
)

// Loader owns one ODS connection and the SQL builder for its engine.
type Loader struct {
	db     *sql.DB
	sql    *SQLBuilder
	logger *slog.Logger
}

// Open connects to the ODS named by the configuration.
func Open(cfg *config.Loader, logger *slog.Logger) (*Loader, error) {
	var (
		driver  string
		dsn     string
		builder *SQLBuilder
	)

	switch cfg.Engine {
	case "postgresql":
		driver = "pgx"
		dsn = fmt.Sprintf("postgres://%s@%s:%d/%s",
			url.UserPassword(cfg.Username, cfg.Password), cfg.Server, cfg.Port, cfg.Database)
		builder = NewPostgresBuilder()
	case "mssql":
		driver = "sqlserver"
		dsn = fmt.Sprintf("sqlserver://%s@%s:%d?database=%s",
			url.UserPassword(cfg.Username, cfg.Password), cfg.Server, cfg.Port, url.QueryEscape(cfg.Database))
		builder = NewMSSQLBuilder()
	default:
		return nil, fmt.Errorf("unsupported engine %q", cfg.Engine)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s connection: %w", cfg.Engine, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging %s at %s:%d: %w", cfg.Engine, cfg.Server, cfg.Port, err)
	}

	return &Loader{db: db, sql: builder, logger: logger}, nil
}

// Close closes the ODS connection.
func (l *Loader) Close() error {
	return l.db.Close()
}

// LoadAll migrates the schema, then loads every resource from the output
// tree in dependency order. Assignment submission types are derived from
// the assignments file rather than read from disk.
func (l *Loader) LoadAll(ctx context.Context, root string) error {
	if err := l.Migrate(ctx); err != nil {
		return err
	}

	var assignments []syncdb.Record
	for _, name := range udm.LoadOrder {
		res := udm.Registry[name]

		var rows []syncdb.Record
		var err error
		if res.Collection {
			rows = SplitSubmissionTypes(assignments)
		} else {
			rows, err = ReadResource(root, res)
			if err != nil {
				return fmt.Errorf("reading %s: %w", res.Name, err)
			}
		}
		if res.Name == "Assignments" {
			assignments = rows
		}

		if err := l.LoadResource(ctx, res, rows); err != nil {
			return fmt.Errorf("loading %s: %w", res.Name, err)
		}
	}
	return nil
}

// LoadResource stages one resource's rows and merges them into
// production in a single transaction.
func (l *Loader) LoadResource(ctx context.Context, res udm.Resource, rows []syncdb.Record) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, l.sql.TruncateStaging(res)); err != nil {
		return fmt.Errorf("truncating staging: %w", err)
	}
	if _, err := tx.ExecContext(ctx, l.sql.DropStagingNKIndex(res)); err != nil {
		return fmt.Errorf("dropping staging index: %w", err)
	}

	if err := l.insertStaging(ctx, tx, res, rows); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, l.sql.CreateStagingNKIndex(res)); err != nil {
		return fmt.Errorf("rebuilding staging index: %w", err)
	}

	inserted, err := l.execCounted(ctx, tx, l.sql.InsertNewRecords(res))
	if err != nil {
		return fmt.Errorf("inserting new records: %w", err)
	}
	metrics.LoaderRowsTotal.WithLabelValues(res.Table, metrics.OpInsertNew).Add(float64(inserted))

	var updated int64
	if stmt := l.sql.CopyUpdates(res); stmt != "" {
		updated, err = l.execCounted(ctx, tx, stmt)
		if err != nil {
			return fmt.Errorf("copying updates: %w", err)
		}
		metrics.LoaderRowsTotal.WithLabelValues(res.Table, metrics.OpCopyUpdates).Add(float64(updated))
	}

	var deleted, restored int64
	if res.Collection {
		n, err := l.execCounted(ctx, tx, l.sql.SoftDelete(res))
		if err != nil {
			return fmt.Errorf("soft deleting: %w", err)
		}
		deleted = n
		n, err = l.execCounted(ctx, tx, l.sql.UnSoftDelete(res))
		if err != nil {
			return fmt.Errorf("restoring: %w", err)
		}
		restored = n
	} else {
		// Scoped per source system: a Canvas-only load must not delete
		// Schoology rows.
		for _, system := range SourceSystems(rows) {
			n, err := l.execCounted(ctx, tx, l.sql.SoftDelete(res), system)
			if err != nil {
				return fmt.Errorf("soft deleting %s rows: %w", system, err)
			}
			deleted += n
			n, err = l.execCounted(ctx, tx, l.sql.UnSoftDelete(res), system)
			if err != nil {
				return fmt.Errorf("restoring %s rows: %w", system, err)
			}
			restored += n
		}
	}
	metrics.LoaderRowsTotal.WithLabelValues(res.Table, metrics.OpSoftDelete).Add(float64(deleted))
	metrics.LoaderRowsTotal.WithLabelValues(res.Table, metrics.OpUnSoftDelete).Add(float64(restored))

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	l.logger.Info("resource loaded",
		"table", res.Table,
		"staged", len(rows),
		"inserted", inserted,
		"updated", updated,
		"soft_deleted", deleted,
		"restored", restored)
	return nil
}

func (l *Loader) insertStaging(ctx context.Context, tx *sql.Tx, res udm.Resource, rows []syncdb.Record) error {
	if len(rows) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, l.sql.InsertStaging(res))
	if err != nil {
		return fmt.Errorf("preparing staging insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(res.Columns))
	for _, row := range rows {
		for i, col := range res.Columns {
			args[i] = trimNull(row[col])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("staging row %q: %w", row["SourceSystemIdentifier"], err)
		}
	}
	metrics.LoaderRowsTotal.WithLabelValues(res.Table, metrics.OpInsertStaging).Add(float64(len(rows)))
	return nil
}

func (l *Loader) execCounted(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error) {
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}
