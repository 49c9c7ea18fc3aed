package loader

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"lms-sync/internal/syncdb"
	"lms-sync/internal/udm"
)

// The extractors write one timestamped file per directory per run; only
// the newest file in each directory is current, older ones are history.

// newestCSV returns the lexically greatest *.csv path in dir, or "" when
// the directory is absent or empty. Filenames are zero-padded timestamps,
// so lexical order is chronological order.
func newestCSV(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return "", fmt.Errorf("globbing %s: %w", dir, err)
	}
	if len(matches) == 0 {
		return "", nil
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

// sectionDirs lists every section=<id> directory under the output root.
func sectionDirs(root string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(root, "section=*"))
	if err != nil {
		return nil, fmt.Errorf("globbing sections under %s: %w", root, err)
	}
	sort.Strings(matches)
	return matches, nil
}

// resourceDirs returns every directory that can hold files for one
// resource, following the tree layout the extractors write.
func resourceDirs(root string, res udm.Resource) ([]string, error) {
	switch res.Name {
	case "Users", "Sections":
		return []string{filepath.Join(root, res.Directory)}, nil

	case "SectionAssociations", "Assignments", "Grades", "AttendanceEvents", "SectionActivities":
		sections, err := sectionDirs(root)
		if err != nil {
			return nil, err
		}
		var out []string
		for _, s := range sections {
			out = append(out, filepath.Join(s, res.Directory))
		}
		return out, nil

	case "Submissions":
		sections, err := sectionDirs(root)
		if err != nil {
			return nil, err
		}
		var out []string
		for _, s := range sections {
			assignments, err := filepath.Glob(filepath.Join(s, "assignment=*"))
			if err != nil {
				return nil, fmt.Errorf("globbing assignments under %s: %w", s, err)
			}
			sort.Strings(assignments)
			for _, a := range assignments {
				out = append(out, filepath.Join(a, res.Directory))
			}
		}
		return out, nil

	case "SystemActivities":
		dates, err := filepath.Glob(filepath.Join(root, res.Directory, "date=*"))
		if err != nil {
			return nil, fmt.Errorf("globbing dates under %s: %w", root, err)
		}
		sort.Strings(dates)
		return dates, nil
	}

	return nil, fmt.Errorf("resource %s is not read from disk", res.Name)
}

// ReadResource reads the current rows of one resource from the output
// tree: the newest file of every directory the resource writes to.
func ReadResource(root string, res udm.Resource) ([]syncdb.Record, error) {
	dirs, err := resourceDirs(root, res)
	if err != nil {
		return nil, err
	}

	var out []syncdb.Record
	for _, dir := range dirs {
		path, err := newestCSV(dir)
		if err != nil {
			return nil, err
		}
		if path == "" {
			continue
		}
		rows, err := readCSVFile(path)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func readCSVFile(path string) ([]syncdb.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header of %s: %w", path, err)
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
		rec := make(syncdb.Record, len(header))
		for i, col := range header {
			if i < len(line) {
				rec[col] = line[i]
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// SourceSystems returns the distinct SourceSystem values in rows, sorted.
// Soft deletes are scoped per source system so one LMS's load never
// deletes another's rows.
func SourceSystems(rows []syncdb.Record) []string {
	set := make(map[string]struct{})
	for _, row := range rows {
		if s := row["SourceSystem"]; s != "" {
			set[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// trimNull maps empty CSV cells to SQL NULL for insertion.
func trimNull(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
