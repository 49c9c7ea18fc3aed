package schoology

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"lms-sync/internal/source"
	"lms-sync/internal/syncdb"
)

// Schoology has no sign-in API; system activity arrives as usage
// analytics exports dropped into a directory, one CSV (optionally
// gzipped) per day.

var usageColumns = []string{
	"schoology_user_id", "unique_user_id", "role_name",
	"action_type", "item_type", "last_event_timestamp",
}

// UsageReader reads usage analytics exports, remembering processed files
// in the change store so each drop is read once.
type UsageReader struct {
	dir    string
	db     *syncdb.DB
	logger *slog.Logger
}

// NewUsageReader creates a reader over one drop directory.
func NewUsageReader(dir string, db *syncdb.DB, logger *slog.Logger) *UsageReader {
	return &UsageReader{dir: dir, db: db, logger: logger}
}

// ReadNew parses every not-yet-processed export in the drop directory and
// returns the student sign-in rows, oldest file first. Files are marked
// processed only after parsing succeeds.
func (u *UsageReader) ReadNew() ([]syncdb.Record, error) {
	entries, err := os.ReadDir(u.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading usage directory %s: %w", u.dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".csv") || strings.HasSuffix(name, ".csv.gz") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var out []syncdb.Record
	for _, name := range names {
		processed, err := u.db.IsFileProcessed(name)
		if err != nil {
			return nil, err
		}
		if processed {
			continue
		}

		rows, err := readUsageFile(filepath.Join(u.dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)

		if err := u.db.MarkFileProcessed(name); err != nil {
			return nil, err
		}
		u.logger.Info("processed usage export", "file", name, "rows", len(rows))
	}
	return out, nil
}

func readUsageFile(path string) ([]syncdb.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		defer gz.Close()
		reader = gz
	}

	cr := csv.NewReader(reader)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header of %s: %w", path, err)
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		index[col] = i
	}

	var out []syncdb.Record
	for {
		line, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		rec := make(syncdb.Record, len(usageColumns))
		for _, col := range usageColumns {
			if i, ok := index[col]; ok && i < len(line) {
				rec[col] = line[i]
			} else {
				rec[col] = ""
			}
		}
		if rec["role_name"] != "Student" {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// MapSystemActivities converts synced usage rows into UDM system activity
// rows. Only session creations are sign-ins; everything else in the
// export is navigation noise.
func MapSystemActivities(rows []syncdb.Record) []syncdb.Record {
	var signIns []syncdb.Record
	for _, row := range rows {
		if row["item_type"] != "SESSION" || row["action_type"] != "CREATE" {
			continue
		}
		signIns = append(signIns, row)
	}

	out := source.Remap(signIns, source.Schoology, map[string]string{
		"ActivityDateTime":              "last_event_timestamp",
		"LMSUserSourceSystemIdentifier": "schoology_user_id",
	}, []string{"ActivityDateTime"})
	for i, r := range out {
		row := signIns[i]
		r["SourceSystemIdentifier"] = "in#" + row["schoology_user_id"] + "#" + row["last_event_timestamp"]
		r["ActivityType"] = "sign-in"
	}
	return out
}
