package syncdb

import (
	"fmt"
	"log/slog"
	"time"

	"lms-sync/internal/metrics"
)

// Syncer is the public face of the incremental sync engine. Every extractor
// funnels each resource pull through Sync, which reconciles the pull against
// everything previously observed and stamps trustworthy
// CreateDate/LastModifiedDate values onto the returned rows.
type Syncer struct {
	db     *DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSyncer creates a Syncer over an open sync store.
func NewSyncer(db *DB, logger *slog.Logger) *Syncer {
	return &Syncer{db: db, logger: logger, now: time.Now}
}

// Sync reconciles one resource pull against the production table.
//
// records may be empty (a valid pull that fetched nothing); in that case the
// store is left untouched and an empty result is returned. Duplicate natural
// keys within the pull keep the first occurrence; later ones are dropped with
// a warning. The returned rows preserve input order minus those drops, each
// augmented with the engine columns. Production never shrinks: rows that
// disappeared from the pull stay in production untouched and appear in the
// diff as missing.
func (s *Syncer) Sync(resource string, records []Record, naturalKey []string) ([]Record, error) {
	if resource == "" || !validIdentifier(resource) {
		return nil, fmt.Errorf("%w: invalid resource name %q", ErrInvalidRecord, resource)
	}
	if len(naturalKey) == 0 {
		return nil, fmt.Errorf("%w: natural key for %s is empty", ErrInvalidRecord, resource)
	}
	for _, col := range naturalKey {
		if !validIdentifier(col) {
			return nil, fmt.Errorf("%w: invalid natural-key column %q", ErrInvalidRecord, col)
		}
	}
	if len(records) == 0 {
		s.logger.Info("empty pull, nothing to sync", "resource", resource)
		return nil, nil
	}

	start := s.now()

	dataColumns := records[0].DataColumns()
	for _, col := range dataColumns {
		if !validIdentifier(col) {
			return nil, fmt.Errorf("%w: invalid column name %q in %s", ErrInvalidRecord, col, resource)
		}
	}

	// Stamp and de-duplicate, first occurrence wins. Source systems
	// occasionally emit the same row across page boundaries.
	syncTime := start.Format(TimeFormat)
	staged := make([]Record, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if !sameColumns(rec, dataColumns) {
			return nil, fmt.Errorf("%w: records for %s are not homogeneous", ErrInvalidRecord, resource)
		}
		stamped, err := Stamp(rec, naturalKey)
		if err != nil {
			return nil, fmt.Errorf("stamping %s record: %w", resource, err)
		}
		if _, dup := seen[stamped[ColSourceID]]; dup {
			s.logger.Warn("duplicate-natural-key",
				"resource", resource, "source_id", stamped[ColSourceID])
			metrics.SyncDuplicatesTotal.WithLabelValues(resource).Inc()
			continue
		}
		seen[stamped[ColSourceID]] = struct{}{}
		stamped[ColCreateDate] = syncTime
		stamped[ColLastModifiedDate] = syncTime
		stamped[ColSyncNeeded] = "1"
		staged = append(staged, stamped)
	}

	if err := s.stage(resource, dataColumns, naturalKey, staged); err != nil {
		metrics.SyncErrorsTotal.WithLabelValues(resource).Inc()
		return nil, err
	}

	dates, err := s.reconcile(resource, dataColumns)
	if err != nil {
		metrics.SyncErrorsTotal.WithLabelValues(resource).Inc()
		return nil, err
	}

	out := make([]Record, 0, len(staged))
	for _, row := range staged {
		rec := row.Clone()
		if d, ok := dates[row[ColSourceID]]; ok {
			rec[ColCreateDate] = d[0]
			rec[ColLastModifiedDate] = d[1]
		}
		rec[ColSyncNeeded] = "0"
		out = append(out, rec)
	}

	diff, err := s.db.Unmatched(resource)
	if err != nil {
		return nil, err
	}
	sum := summarize(diff)
	unchanged := len(staged) - sum.New - sum.Changed

	metrics.SyncRowsTotal.WithLabelValues(resource, metrics.ClassNew).Add(float64(sum.New))
	metrics.SyncRowsTotal.WithLabelValues(resource, metrics.ClassChanged).Add(float64(sum.Changed))
	metrics.SyncRowsTotal.WithLabelValues(resource, metrics.ClassUnchanged).Add(float64(unchanged))
	metrics.SyncRowsTotal.WithLabelValues(resource, metrics.ClassMissing).Add(float64(sum.Missing))
	metrics.SyncDuration.WithLabelValues(resource).Observe(time.Since(start).Seconds())

	s.logger.Info("resource synced",
		"resource", resource,
		"fetched", len(records),
		"new", sum.New,
		"changed", sum.Changed,
		"unchanged", unchanged,
		"missing", sum.Missing,
		"duration_ms", time.Since(start).Milliseconds())

	return out, nil
}

// stage populates the staging table in a single transaction: recreate the
// table for the pull's columns, bulk insert without the natural-key index,
// then rebuild the index.
func (s *Syncer) stage(resource string, dataColumns, naturalKey []string, staged []Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning staging transaction for %s: %w", resource, err)
	}
	defer tx.Rollback()

	if err := ensureProductionTable(tx, resource, dataColumns); err != nil {
		return err
	}
	if err := recreateStagingTable(tx, resource, dataColumns); err != nil {
		return err
	}
	if err := insertStaging(tx, resource, dataColumns, staged); err != nil {
		return err
	}
	if err := createStagingNKIndex(tx, resource, naturalKey); err != nil {
		return err
	}
	return tx.Commit()
}

// reconcile runs the diff and merge in a second transaction and returns the
// reconciled dates for every staged SourceId.
func (s *Syncer) reconcile(resource string, dataColumns []string) (map[string][2]string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning merge transaction for %s: %w", resource, err)
	}
	defer tx.Rollback()

	if err := rebuildUnmatched(tx, resource, dataColumns); err != nil {
		return nil, err
	}
	if err := mergeStagingIntoProduction(tx, resource, dataColumns); err != nil {
		return nil, err
	}
	dates, err := readReconciledDates(tx, resource)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing merge for %s: %w", resource, err)
	}
	return dates, nil
}

// Cleanup drops the transient staging and unmatched tables for a resource.
// Callers invoke it after consuming the Sync result; between the two calls
// the diff remains inspectable through Unmatched.
func (s *Syncer) Cleanup(resource string) error {
	if !validIdentifier(resource) {
		return fmt.Errorf("%w: invalid resource name %q", ErrInvalidRecord, resource)
	}
	for _, table := range []string{stagingTable(resource), unmatchedTable(resource)} {
		if _, err := s.db.conn.Exec("DROP TABLE IF EXISTS " + quoteIdent(table)); err != nil {
			return fmt.Errorf("dropping %s: %w", table, err)
		}
	}
	return nil
}

// SyncAndCleanup composes Sync and Cleanup for callers that do not need to
// inspect the diff.
func (s *Syncer) SyncAndCleanup(resource string, records []Record, naturalKey []string) ([]Record, error) {
	out, err := s.Sync(resource, records, naturalKey)
	if err != nil {
		return nil, err
	}
	if err := s.Cleanup(resource); err != nil {
		return nil, err
	}
	return out, nil
}
