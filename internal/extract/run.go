// Package extract orchestrates one extractor run: pull each resource from
// the LMS, reconcile it through the sync store, map it onto the UDM and
// write the CSV output tree.
//
// A failed pull never aborts the whole run. The failing resource and
// everything downstream of it is skipped, the failure is logged, and the
// run finishes with ErrRunHadFailures so the process can exit nonzero
// after producing whatever output was reachable.
package extract

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"lms-sync/internal/csvout"
	"lms-sync/internal/syncdb"
)

// ErrRunHadFailures reports that at least one resource failed to extract.
var ErrRunHadFailures = errors.New("extract run finished with failures")

// Features toggles the optional resource groups. Core resources (users,
// sections, section associations) are always extracted.
type Features struct {
	Assignments bool
	Grades      bool
	Attendance  bool
	Activities  bool
}

// Runner drives one extractor run end to end.
type Runner struct {
	syncer   *syncdb.Syncer
	writer   *csvout.Writer
	logger   *slog.Logger
	features Features
	failed   bool
}

// NewRunner creates a Runner over an open sync store. Every log line of
// the run carries a fresh run id.
func NewRunner(db *syncdb.DB, outputDir string, features Features, logger *slog.Logger) *Runner {
	logger = logger.With("run_id", uuid.NewString())
	return &Runner{
		syncer:   syncdb.NewSyncer(db, logger),
		writer:   csvout.NewWriter(outputDir, logger),
		logger:   logger,
		features: features,
	}
}

// fail records a resource failure and returns false so call sites read as
// "did this stage succeed".
func (r *Runner) fail(stage string, err error) bool {
	r.failed = true
	r.logger.Error("extract stage failed", "stage", stage, "error", err)
	return false
}

// finish converts the run's error flag into the run result.
func (r *Runner) finish() error {
	if r.failed {
		return ErrRunHadFailures
	}
	return nil
}

// groupBy buckets rows by one column, preserving input order within each
// bucket.
func groupBy(rows []syncdb.Record, column string) map[string][]syncdb.Record {
	out := make(map[string][]syncdb.Record)
	for _, row := range rows {
		out[row[column]] = append(out[row[column]], row)
	}
	return out
}

// dedupeBy keeps the first row per value of one column.
func dedupeBy(rows []syncdb.Record, column string) []syncdb.Record {
	seen := make(map[string]struct{}, len(rows))
	out := make([]syncdb.Record, 0, len(rows))
	for _, row := range rows {
		if _, dup := seen[row[column]]; dup {
			continue
		}
		seen[row[column]] = struct{}{}
		out = append(out, row)
	}
	return out
}

// groupByDate buckets rows by the calendar date of one timestamp column.
func groupByDate(rows []syncdb.Record, column string) map[string][]syncdb.Record {
	out := make(map[string][]syncdb.Record)
	for _, row := range rows {
		ts := row[column]
		if len(ts) < 10 {
			continue
		}
		date := ts[:10]
		out[date] = append(out[date], row)
	}
	return out
}
