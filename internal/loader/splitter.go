package loader

import (
	"encoding/json"

	"lms-sync/internal/syncdb"
)

// SplitSubmissionTypes derives the AssignmentSubmissionTypes rows from
// assignment rows. An assignment's SubmissionType cell may be a JSON
// array (Canvas allows several) or a single plain value; either way each
// value becomes one child row. Empty cells and empty arrays yield none.
func SplitSubmissionTypes(assignments []syncdb.Record) []syncdb.Record {
	var out []syncdb.Record
	for _, a := range assignments {
		cell := a["SubmissionType"]
		if cell == "" {
			continue
		}
		for _, v := range splitCell(cell) {
			if v == "" {
				continue
			}
			out = append(out, syncdb.Record{
				"SourceSystemIdentifier": a["SourceSystemIdentifier"],
				"SourceSystem":           a["SourceSystem"],
				"SubmissionType":         v,
			})
		}
	}
	return out
}

func splitCell(cell string) []string {
	var values []string
	if err := json.Unmarshal([]byte(cell), &values); err == nil {
		return values
	}
	return []string{cell}
}
