package syncdb

import "sort"

// Record is a single row fetched from an LMS API, keyed by column name.
// All values are strings; adapters normalize numbers, booleans and nulls
// before records reach the sync engine.
type Record map[string]string

// Engine-owned column names. These are stamped onto every record by the
// sync engine and must not appear in source data.
const (
	ColSourceID         = "SourceId"
	ColHash             = "Hash"
	ColJSONSnapshot     = "JsonSnapshot"
	ColCreateDate       = "CreateDate"
	ColLastModifiedDate = "LastModifiedDate"
	ColSyncNeeded       = "SyncNeeded"
)

// engineColumns is the fixed set of engine-owned columns, in the order they
// appear in every sync store table.
var engineColumns = []string{
	ColSourceID,
	ColHash,
	ColJSONSnapshot,
	ColCreateDate,
	ColLastModifiedDate,
	ColSyncNeeded,
}

// isEngineColumn reports whether name is owned by the sync engine.
func isEngineColumn(name string) bool {
	switch name {
	case ColSourceID, ColHash, ColJSONSnapshot, ColCreateDate, ColLastModifiedDate, ColSyncNeeded:
		return true
	}
	return false
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// DataColumns returns the record's non-engine column names, sorted.
func (r Record) DataColumns() []string {
	cols := make([]string, 0, len(r))
	for k := range r {
		if !isEngineColumn(k) {
			cols = append(cols, k)
		}
	}
	sort.Strings(cols)
	return cols
}
