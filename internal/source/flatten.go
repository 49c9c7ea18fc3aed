package source

import (
	"encoding/json"
	"fmt"
	"strings"

	"lms-sync/internal/syncdb"
)

// FlattenObject converts one decoded JSON object into a string-typed
// Record. Nested objects flatten with dotted keys; arrays serialize to
// their canonical JSON form so collection columns (e.g. Canvas
// submission_types) survive as a single cell. Numbers are normalized so
// 5, 5.0 and "5E0" all fingerprint identically.
func FlattenObject(obj map[string]any) syncdb.Record {
	rec := make(syncdb.Record, len(obj))
	flattenInto(rec, "", obj)
	return rec
}

func flattenInto(rec syncdb.Record, prefix string, obj map[string]any) {
	for k, v := range obj {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flattenInto(rec, key, val)
		default:
			rec[key] = NormalizeValue(v)
		}
	}
}

// NormalizeValue renders a decoded JSON value as the engine's canonical
// string form: nulls become empty strings, booleans "true"/"false", and
// numbers lose insignificant fractional zeros.
func NormalizeValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		return formatNumber(val)
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return formatNumber(f)
		}
		return val.String()
	case []any:
		for _, item := range val {
			switch item.(type) {
			case map[string]any, []any:
				// Structured arrays (e.g. Classroom submissionHistory)
				// keep their JSON form so mappers can decode them.
				enc, _ := json.Marshal(val)
				return string(enc)
			}
		}
		items := make([]string, len(val))
		for i, item := range val {
			items[i] = NormalizeValue(item)
		}
		enc, _ := json.Marshal(items)
		return string(enc)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return strings.TrimRight(fmt.Sprintf("%f", f), "0")
}

// FlattenList converts a decoded JSON array of objects into Records,
// skipping non-object entries.
func FlattenList(list []any) []syncdb.Record {
	out := make([]syncdb.Record, 0, len(list))
	for _, item := range list {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, FlattenObject(obj))
		}
	}
	return out
}

// ProjectColumns reduces every record to exactly the given columns,
// dropping extras and filling absences with empty strings. The sync engine
// requires homogeneous records within one pull; LMS payloads omit null
// fields, so projection happens before syncing.
func ProjectColumns(rows []syncdb.Record, columns []string) []syncdb.Record {
	out := make([]syncdb.Record, len(rows))
	for i, row := range rows {
		rec := make(syncdb.Record, len(columns))
		for _, col := range columns {
			rec[col] = row[col]
		}
		out[i] = rec
	}
	return out
}
