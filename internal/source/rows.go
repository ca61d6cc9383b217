// ABOUTME: Tolerant row normalization for file exports: column aliasing,
// ABOUTME: flexible date parsing, and synthetic IDs for ID-less rows.
package source

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/harperreed/pulse/internal/models"
)

// Column aliases per canonical field. Matching is case-insensitive
// with spaces and hyphens folded to underscores; exports disagree on
// almost every header.
var (
	aliasSourceID = []string{"source_id", "id", "activity_id", "workoutid"}
	aliasDate     = []string{"date", "start_date", "workout_date", "day", "start_time", "local_start_time"}
	aliasName     = []string{"name", "title", "activity_name", "workout_name"}
	aliasType     = []string{"type", "activity_type", "sport", "activity"}
	aliasDuration = []string{"duration_minutes", "duration", "moving_time", "elapsed_time", "total_time"}
	aliasDistance = []string{"distance_meters", "distance", "distance_m", "total_distance"}
	aliasElev     = []string{"elevation_gain", "ascent", "total_ascent", "elev_gain"}
	aliasAvgHR    = []string{"avg_hr", "average_hr", "avg_heart_rate", "average_heartrate", "avghr"}
	aliasMaxHR    = []string{"max_hr", "max_heart_rate", "max_heartrate", "maxhr"}
	aliasCalories = []string{"calories", "energy", "kcal", "active_calories"}
	aliasEffort   = []string{"effort", "training_load", "tss", "suffer_score", "relative_effort", "load"}
	aliasFeeling  = []string{"feeling", "feel", "rpe_feel"}

	aliasSleep     = []string{"sleep_duration_hours", "sleep_hours", "sleep_duration", "total_sleep"}
	aliasHRV       = []string{"hrv_avg", "hrv", "avg_hrv", "hrv_rmssd"}
	aliasHRVSD     = []string{"hrv_sd", "hrv_stddev", "hrv_sdnn"}
	aliasRestingHR = []string{"resting_hr", "resting_heart_rate", "rhr"}
	aliasSteps     = []string{"steps", "step_count", "total_steps"}
	aliasWeight    = []string{"weight", "weight_kg", "body_mass"}
	aliasRecovery  = []string{"recovery_score", "recovery", "readiness"}
)

// row is one parsed export record with normalized keys.
type row map[string]string

func normalizeKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	k = strings.ReplaceAll(k, " ", "_")
	k = strings.ReplaceAll(k, "-", "_")
	return k
}

// pick returns the first non-empty value among the aliased columns.
func (r row) pick(aliases []string) string {
	for _, a := range aliases {
		if v, ok := r[a]; ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func (r row) pickFloat(aliases []string) (float64, bool) {
	v := r.pick(aliases)
	if v == "" {
		return 0, false
	}
	f, err := parseFloat(v)
	if err != nil {
		return 0, false
	}
	return f, true
}

func parseFloat(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	return strconv.ParseFloat(s, 64)
}

// dateLayouts covers the formats seen across exports.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z",
	time.RFC3339,
	"01/02/2006",
	"2006/01/02",
	"Jan 2, 2006",
}

func parseAnyDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// normalizeWorkout builds a canonical workout from an export row.
// Rows without a resolvable date are the one hard failure; everything
// else degrades to zero values.
func normalizeWorkout(r row, source, record string) (models.Workout, error) {
	rawDate := r.pick(aliasDate)
	if rawDate == "" {
		return models.Workout{}, &ParseError{Source: source, Record: record,
			Err: fmt.Errorf("row has no date column")}
	}
	when, err := parseAnyDate(rawDate)
	if err != nil {
		return models.Workout{}, &ParseError{Source: source, Record: record, Err: err}
	}

	w := models.Workout{
		Source:  source,
		Date:    models.FormatDate(when),
		Name:    r.pick(aliasName),
		Type:    strings.ToLower(r.pick(aliasType)),
		Feeling: models.Feeling(strings.ToLower(r.pick(aliasFeeling))),
	}
	if !when.Equal(when.Truncate(24 * time.Hour)) {
		w.StartTime = when
	}
	if v, ok := r.pickFloat(aliasDuration); ok {
		// Values over a few hundred are almost certainly seconds.
		if v > 600 {
			v /= 60
		}
		w.DurationMinutes = v
	}
	if v, ok := r.pickFloat(aliasDistance); ok {
		if v < 500 {
			// Small distances in export files are kilometers.
			v *= 1000
		}
		w.DistanceMeters = v
	}
	if v, ok := r.pickFloat(aliasElev); ok {
		w.ElevationGain = v
	}
	if v, ok := r.pickFloat(aliasAvgHR); ok {
		w.AvgHR = v
	}
	if v, ok := r.pickFloat(aliasMaxHR); ok {
		w.MaxHR = v
	}
	if v, ok := r.pickFloat(aliasCalories); ok {
		w.Calories = int(v)
	}
	if v, ok := r.pickFloat(aliasEffort); ok {
		w.Effort = v
	} else {
		w.Effort = w.DeriveEffort(0)
	}

	if id := r.pick(aliasSourceID); id != "" {
		w.SourceID = id
	} else {
		w.SourceID = syntheticID(w)
	}
	return w, nil
}

// normalizeDaily builds a canonical daily record from an export row.
// Returns false when the row carries no recognized metric.
func normalizeDaily(r row, source, record string) (models.DailyMetrics, bool, error) {
	rawDate := r.pick(aliasDate)
	if rawDate == "" {
		return models.DailyMetrics{}, false, &ParseError{Source: source, Record: record,
			Err: fmt.Errorf("row has no date column")}
	}
	when, err := parseAnyDate(rawDate)
	if err != nil {
		return models.DailyMetrics{}, false, &ParseError{Source: source, Record: record, Err: err}
	}

	d := models.DailyMetrics{Source: source, Date: models.FormatDate(when)}
	set := func(aliases []string, field string) {
		if v, ok := r.pickFloat(aliases); ok {
			d.SetField(field, v)
		}
	}
	set(aliasSleep, models.FieldSleepHours)
	set(aliasHRV, models.FieldHRVAvg)
	set(aliasHRVSD, models.FieldHRVStdDev)
	set(aliasRestingHR, models.FieldRestingHR)
	set(aliasSteps, models.FieldSteps)
	set(aliasWeight, models.FieldWeight)
	set(aliasRecovery, models.FieldRecoveryScore)
	return d, !d.Empty(), nil
}

// syntheticID builds a stable identity for rows whose export carries
// none. Re-imports of the same file dedup against it.
func syntheticID(w models.Workout) string {
	name := strings.ToLower(strings.ReplaceAll(w.Name, " ", "-"))
	if name == "" {
		name = w.Type
	}
	if name == "" {
		name = "workout"
	}
	return fmt.Sprintf("%s:%s:%s:%d", w.Source, w.Date, name, int(w.DurationMinutes))
}
