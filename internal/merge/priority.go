// ABOUTME: Cross-source conflict resolution as a per-field priority table.
// ABOUTME: Pure data consulted by resolution, so adding a source is a config change.
package merge

import (
	"github.com/harperreed/pulse/internal/models"
)

// Priorities resolves which source wins when two sources report the
// same daily field for the same date. Fields maps a field name to an
// ordered list of source names, most preferred first; Default applies
// to fields without an entry. Sources absent from the relevant list
// rank below every listed source; among unlisted sources the
// lexicographically smaller name wins, so resolution is stable
// regardless of sync order.
type Priorities struct {
	Default []string
	Fields  map[string][]string
}

// Rank returns the preference position of a source for a field; lower
// is better. Unlisted sources share the sentinel rank past the list end.
func (p Priorities) Rank(field, source string) int {
	order, ok := p.Fields[field]
	if !ok {
		order = p.Default
	}
	for i, s := range order {
		if s == source {
			return i
		}
	}
	return len(order)
}

// prefer reports whether candidate beats incumbent for a field.
func (p Priorities) prefer(field, candidate, incumbent string) bool {
	cr, ir := p.Rank(field, candidate), p.Rank(field, incumbent)
	if cr != ir {
		return cr < ir
	}
	return candidate < incumbent
}

// ResolvedDay is one calendar date's merged view across sources, with
// the winning source recorded per field for auditability.
type ResolvedDay struct {
	Date    string
	Values  map[string]float64
	Sources map[string]string
}

// ResolveDay merges all stored per-source records for one date using
// the priority table. It is a pure function of its inputs.
func ResolveDay(date string, records []*models.DailyMetrics, pri Priorities) *ResolvedDay {
	day := &ResolvedDay{
		Date:    date,
		Values:  make(map[string]float64),
		Sources: make(map[string]string),
	}
	for _, rec := range records {
		if rec.Date != date {
			continue
		}
		for _, field := range models.DailyFields {
			v := rec.Field(field)
			if v == nil {
				continue
			}
			incumbent, taken := day.Sources[field]
			if !taken || pri.prefer(field, rec.Source, incumbent) {
				day.Values[field] = *v
				day.Sources[field] = rec.Source
			}
		}
	}
	return day
}

// ApplyOverrides replaces resolved values with manual overrides for the
// same date. Overrides always win over any source; the stored source
// records stay untouched, which keeps the correction reversible.
func (d *ResolvedDay) ApplyOverrides(overrides []*models.Override) {
	for _, o := range overrides {
		if o.Date != d.Date {
			continue
		}
		d.Values[o.Field] = o.Value
		d.Sources[o.Field] = "manual"
	}
}
