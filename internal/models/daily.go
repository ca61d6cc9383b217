// ABOUTME: Canonical daily-metrics record and its merge-visible field names.
// ABOUTME: Optional fields are pointers so merge can tell absent from zero.
package models

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Daily metric field names. These are the merge priority table keys,
// the manual-override field keys, and the stored field names, so they
// must stay in sync with the store schema.
const (
	FieldSleepHours    = "sleep_duration_hours"
	FieldHRVAvg        = "hrv_avg"
	FieldHRVStdDev     = "hrv_sd"
	FieldRestingHR     = "resting_hr"
	FieldSteps         = "steps"
	FieldWeight        = "weight"
	FieldRecoveryScore = "recovery_score"
	FieldLoadRatio     = "training_load"
)

// DailyFields lists every mergeable daily metric field.
var DailyFields = []string{
	FieldSleepHours, FieldHRVAvg, FieldHRVStdDev, FieldRestingHR,
	FieldSteps, FieldWeight, FieldRecoveryScore, FieldLoadRatio,
}

// DailyMetrics is one source's view of a subject-local calendar day.
// At most one record per (source, date) is ever stored.
type DailyMetrics struct {
	Source        string
	Date          string // YYYY-MM-DD, subject-local
	SleepHours    *float64
	HRVAvg        *float64
	HRVStdDev     *float64
	RestingHR     *float64
	Steps         *float64
	Weight        *float64
	RecoveryScore *float64
	LoadRatio     *float64
}

// Valid reports whether the record carries the minimum field set.
func (d *DailyMetrics) Valid() error {
	if d.Source == "" {
		return fmt.Errorf("daily metrics missing source")
	}
	if _, err := ParseDate(d.Date); err != nil {
		return fmt.Errorf("daily metrics from %s: %w", d.Source, err)
	}
	if d.Empty() {
		return fmt.Errorf("daily metrics %s/%s carries no values", d.Source, d.Date)
	}
	return nil
}

// Empty reports whether no metric field is set at all.
func (d *DailyMetrics) Empty() bool {
	for _, f := range DailyFields {
		if d.Field(f) != nil {
			return false
		}
	}
	return true
}

// Field returns the value pointer for a named field, nil when the name
// is unknown or the field is absent.
func (d *DailyMetrics) Field(name string) *float64 {
	switch name {
	case FieldSleepHours:
		return d.SleepHours
	case FieldHRVAvg:
		return d.HRVAvg
	case FieldHRVStdDev:
		return d.HRVStdDev
	case FieldRestingHR:
		return d.RestingHR
	case FieldSteps:
		return d.Steps
	case FieldWeight:
		return d.Weight
	case FieldRecoveryScore:
		return d.RecoveryScore
	case FieldLoadRatio:
		return d.LoadRatio
	}
	return nil
}

// SetField stores a value under a named field. Unknown names are ignored.
func (d *DailyMetrics) SetField(name string, v float64) {
	val := v
	switch name {
	case FieldSleepHours:
		d.SleepHours = &val
	case FieldHRVAvg:
		d.HRVAvg = &val
	case FieldHRVStdDev:
		d.HRVStdDev = &val
	case FieldRestingHR:
		d.RestingHR = &val
	case FieldSteps:
		d.Steps = &val
	case FieldWeight:
		d.Weight = &val
	case FieldRecoveryScore:
		d.RecoveryScore = &val
	case FieldLoadRatio:
		d.LoadRatio = &val
	}
}

// ParseDate parses a subject-local calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return t, nil
}

// FormatDate renders a time as a subject-local calendar date.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}
