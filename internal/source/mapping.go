package source

import (
	"time"

	"lms-sync/internal/syncdb"
)

// udmTimeFormat matches the CSV timestamp contract: no timezone offset.
const udmTimeFormat = "2006-01-02 15:04:05"

// sourceTimeLayouts covers the timestamp shapes the three LMS APIs emit.
var sourceTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// FormatSourceTime renders an LMS timestamp in the UDM layout. Unparseable
// or empty values map to the empty cell.
func FormatSourceTime(value string) string {
	if value == "" {
		return ""
	}
	for _, layout := range sourceTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC().Format(udmTimeFormat)
		}
	}
	return ""
}

// Remap projects synced rows onto UDM columns. pairs maps UDM column name
// to source column name; dateColumns lists the UDM columns whose values
// must be reformatted from the source timestamp shape. SourceSystem,
// EntityStatus and the engine's CreateDate/LastModifiedDate are carried
// onto every output row.
func Remap(rows []syncdb.Record, system System, pairs map[string]string, dateColumns []string) []syncdb.Record {
	dates := make(map[string]struct{}, len(dateColumns))
	for _, c := range dateColumns {
		dates[c] = struct{}{}
	}

	out := make([]syncdb.Record, len(rows))
	for i, row := range rows {
		rec := make(syncdb.Record, len(pairs)+4)
		for udmCol, srcCol := range pairs {
			v := row[srcCol]
			if _, isDate := dates[udmCol]; isDate {
				v = FormatSourceTime(v)
			}
			rec[udmCol] = v
		}
		rec["SourceSystem"] = string(system)
		rec["EntityStatus"] = "active"
		rec[syncdb.ColCreateDate] = row[syncdb.ColCreateDate]
		rec[syncdb.ColLastModifiedDate] = row[syncdb.ColLastModifiedDate]
		out[i] = rec
	}
	return out
}
