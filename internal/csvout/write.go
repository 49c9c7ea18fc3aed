// Package csvout writes UDM resources into the fixed CSV directory tree the
// downstream loader consumes.
package csvout

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"lms-sync/internal/metrics"
	"lms-sync/internal/syncdb"
	"lms-sync/internal/udm"
)

// fileTimeFormat is the timestamp layout used in output filenames.
const fileTimeFormat = "2006-01-02-15-04-05"

// Writer emits UDM CSV files under a single output root. Every file gets a
// header row; absent values are written as empty cells, never a NULL token.
type Writer struct {
	root   string
	logger *slog.Logger
	now    func() time.Time
}

// NewWriter creates a Writer rooted at the given output directory.
func NewWriter(root string, logger *slog.Logger) *Writer {
	return &Writer{root: root, logger: logger, now: time.Now}
}

// WriteUsers writes the users file.
func (w *Writer) WriteUsers(rows []syncdb.Record) error {
	return w.write(udm.Registry["Users"], rows, "users")
}

// WriteSections writes the sections file.
func (w *Writer) WriteSections(rows []syncdb.Record) error {
	return w.write(udm.Registry["Sections"], rows, "sections")
}

// WriteSectionAssociations writes one section's associations file. Callers
// invoke it for every known section, so sections with no associations still
// get an empty file.
func (w *Writer) WriteSectionAssociations(sectionID string, rows []syncdb.Record) error {
	return w.write(udm.Registry["SectionAssociations"], rows, sectionDir(sectionID), "section-associations")
}

// WriteAssignments writes one section's assignments file.
func (w *Writer) WriteAssignments(sectionID string, rows []syncdb.Record) error {
	return w.write(udm.Registry["Assignments"], rows, sectionDir(sectionID), "assignments")
}

// WriteSubmissions writes one assignment's submissions file.
func (w *Writer) WriteSubmissions(sectionID, assignmentID string, rows []syncdb.Record) error {
	return w.write(udm.Registry["Submissions"], rows,
		sectionDir(sectionID), fmt.Sprintf("assignment=%s", assignmentID), "submissions")
}

// WriteGrades writes one section's grades file.
func (w *Writer) WriteGrades(sectionID string, rows []syncdb.Record) error {
	return w.write(udm.Registry["Grades"], rows, sectionDir(sectionID), "grades")
}

// WriteAttendanceEvents writes one section's attendance file.
func (w *Writer) WriteAttendanceEvents(sectionID string, rows []syncdb.Record) error {
	return w.write(udm.Registry["AttendanceEvents"], rows, sectionDir(sectionID), "attendance-events")
}

// WriteSectionActivities writes one section's activities file.
func (w *Writer) WriteSectionActivities(sectionID string, rows []syncdb.Record) error {
	return w.write(udm.Registry["SectionActivities"], rows, sectionDir(sectionID), "section-activities")
}

// WriteSystemActivities writes a system activities file for one calendar
// date (YYYY-MM-DD).
func (w *Writer) WriteSystemActivities(date string, rows []syncdb.Record) error {
	return w.write(udm.Registry["SystemActivities"], rows,
		"system-activities", fmt.Sprintf("date=%s", date))
}

func sectionDir(sectionID string) string {
	return fmt.Sprintf("section=%s", sectionID)
}

func (w *Writer) write(res udm.Resource, rows []syncdb.Record, pathParts ...string) error {
	dir := filepath.Join(append([]string{w.root}, pathParts...)...)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	path := filepath.Join(dir, w.now().Format(fileTimeFormat)+".csv")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(res.Columns); err != nil {
		return fmt.Errorf("writing header of %s: %w", path, err)
	}

	line := make([]string, len(res.Columns))
	for _, row := range rows {
		for i, col := range res.Columns {
			line[i] = row[col]
		}
		if err := cw.Write(line); err != nil {
			return fmt.Errorf("writing row of %s: %w", path, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing %s: %w", path, err)
	}

	metrics.CSVFilesWrittenTotal.WithLabelValues(res.Name).Inc()
	w.logger.Info("Generated file", "path", path, "rows", len(rows))
	return nil
}
