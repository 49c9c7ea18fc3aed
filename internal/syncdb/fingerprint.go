package syncdb

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ComputeSourceID derives the deterministic surrogate key for a record from
// its natural-key columns, in the listed order.
//
// Values are joined with "-". Because this identifier appears in output CSVs
// and must never collide, any "-" or "\" inside a value is escaped ("\-" and
// "\\" respectively) before joining, so the separator is unambiguous. A
// missing column yields ErrInvalidRecord; an empty string is a valid value
// and is distinct from a missing one.
func ComputeSourceID(rec Record, naturalKey []string) (string, error) {
	parts := make([]string, 0, len(naturalKey))
	for _, col := range naturalKey {
		v, ok := rec[col]
		if !ok {
			return "", fmt.Errorf("%w: natural-key column %q missing", ErrInvalidRecord, col)
		}
		parts = append(parts, escapeKeyValue(v))
	}
	return strings.Join(parts, "-"), nil
}

func escapeKeyValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, "-", `\-`)
}

// CanonicalJSON serializes the record's data columns as a JSON object with
// keys in sorted order. Engine-owned columns are excluded so the snapshot is
// stable across repeated stamping.
func CanonicalJSON(rec Record) string {
	cols := rec.DataColumns()
	var b strings.Builder
	b.WriteByte('{')
	for i, col := range cols {
		if i > 0 {
			b.WriteByte(',')
		}
		writeJSONString(&b, col)
		b.WriteByte(':')
		writeJSONString(&b, rec[col])
	}
	b.WriteByte('}')
	return b.String()
}

func writeJSONString(b *strings.Builder, s string) {
	enc, _ := json.Marshal(s)
	b.Write(enc)
}

// ComputeHash returns the XXH64 content fingerprint of the record's data
// columns, rendered as 16 lowercase hex digits. The hash is computed over
// the canonical JSON serialization, so column order in the input map never
// affects it.
func ComputeHash(rec Record) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(CanonicalJSON(rec)))
}

// Stamp returns a copy of rec with SourceId, Hash and JsonSnapshot set.
// Stamping is idempotent: engine columns are dropped before fingerprinting
// and rewritten deterministically.
func Stamp(rec Record, naturalKey []string) (Record, error) {
	sourceID, err := ComputeSourceID(rec, naturalKey)
	if err != nil {
		return nil, err
	}
	out := rec.Clone()
	out[ColJSONSnapshot] = CanonicalJSON(rec)
	out[ColHash] = ComputeHash(rec)
	out[ColSourceID] = sourceID
	return out, nil
}

// sameColumns reports whether every record carries exactly the given data
// columns. The engine requires homogeneous input within a single sync.
func sameColumns(rec Record, cols []string) bool {
	n := 0
	for k := range rec {
		if isEngineColumn(k) {
			continue
		}
		n++
		if !containsString(cols, k) {
			return false
		}
	}
	return n == len(cols)
}

func containsString(list []string, s string) bool {
	i := sort.SearchStrings(list, s)
	return i < len(list) && list[i] == s
}
