// ABOUTME: Point-based write/query contract over the typed measurement tables.
// ABOUTME: Tags carry identity; fields carry values; writes are idempotent upserts.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/pulse/internal/models"
)

// Point is one record in the time-series contract. Tags carry identity
// (date, source, workout id); Fields carry numeric or string values.
type Point struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]any
	Time        time.Time
}

// Identity renders the point's identity tags for error reporting.
func (p Point) Identity() string {
	switch p.Measurement {
	case MeasurementWorkouts:
		return fmt.Sprintf("%s(%s/%s)", p.Measurement, p.Tags["source"], p.Tags["source_id"])
	case MeasurementDaily:
		return fmt.Sprintf("%s(%s/%s)", p.Measurement, p.Tags["source"], p.Tags["date"])
	case MeasurementOverrides:
		return fmt.Sprintf("%s(%s/%s)", p.Measurement, p.Tags["date"], p.Tags["field"])
	default:
		return fmt.Sprintf("%s(%s)", p.Measurement, p.Tags["date"])
	}
}

// WriteError reports the identities a batch write failed to persist,
// so a retry run can be targeted at exactly those records.
type WriteError struct {
	Identities []string
	Last       error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("store write failed for %d records (%s): %v",
		len(e.Identities), strings.Join(e.Identities, ", "), e.Last)
}

func (e *WriteError) Unwrap() error { return e.Last }

const (
	writeAttempts = 3
	writeBackoff  = 50 * time.Millisecond
)

// Write upserts a single point, keyed by its measurement's identity tags.
func (s *Store) Write(ctx context.Context, p Point) error {
	switch p.Measurement {
	case MeasurementWorkouts:
		w, err := AsWorkout(p)
		if err != nil {
			return err
		}
		return s.UpsertWorkout(ctx, w)
	case MeasurementDaily:
		d, err := AsDaily(p)
		if err != nil {
			return err
		}
		return s.UpsertDaily(ctx, d)
	case MeasurementLoadSeries:
		lp, err := AsLoadPoint(p)
		if err != nil {
			return err
		}
		return s.UpsertLoadPoint(ctx, lp)
	case MeasurementOverrides:
		o, err := AsOverride(p)
		if err != nil {
			return err
		}
		return s.SetOverride(ctx, o)
	default:
		return fmt.Errorf("unknown measurement %q", p.Measurement)
	}
}

// WriteBatch writes each point with bounded retries. On exhaustion it
// keeps going and returns a WriteError listing every unwritten identity.
func (s *Store) WriteBatch(ctx context.Context, points []Point) error {
	var failed []string
	var last error
	for _, p := range points {
		var err error
		for attempt := 0; attempt < writeAttempts; attempt++ {
			if err = ctx.Err(); err != nil {
				break
			}
			if err = s.Write(ctx, p); err == nil {
				break
			}
			time.Sleep(writeBackoff << attempt)
		}
		if err != nil {
			failed = append(failed, p.Identity())
			last = err
		}
	}
	if len(failed) > 0 {
		return &WriteError{Identities: failed, Last: last}
	}
	return nil
}

// QueryRange returns all points of a measurement with a date inside
// [start, end], optionally narrowed by tag filters (e.g. source).
func (s *Store) QueryRange(ctx context.Context, measurement, start, end string, filters map[string]string) ([]Point, error) {
	switch measurement {
	case MeasurementWorkouts:
		ws, err := s.WorkoutsRange(ctx, start, end, filters["source"])
		if err != nil {
			return nil, err
		}
		points := make([]Point, 0, len(ws))
		for _, w := range ws {
			points = append(points, WorkoutPoint(w))
		}
		return points, nil
	case MeasurementDaily:
		ds, err := s.DailyRange(ctx, start, end, filters["source"])
		if err != nil {
			return nil, err
		}
		points := make([]Point, 0, len(ds))
		for _, d := range ds {
			points = append(points, DailyPoint(d))
		}
		return points, nil
	case MeasurementLoadSeries:
		lps, err := s.LoadSeriesRange(ctx, start, end)
		if err != nil {
			return nil, err
		}
		points := make([]Point, 0, len(lps))
		for _, lp := range lps {
			points = append(points, LoadSeriesPoint(lp))
		}
		return points, nil
	case MeasurementOverrides:
		os_, err := s.OverridesRange(ctx, start, end)
		if err != nil {
			return nil, err
		}
		points := make([]Point, 0, len(os_))
		for _, o := range os_ {
			points = append(points, OverridePoint(o))
		}
		return points, nil
	default:
		return nil, fmt.Errorf("unknown measurement %q", measurement)
	}
}

// QueryPoint fetches one point by its full identity tag set.
// Returns (nil, nil) when absent.
func (s *Store) QueryPoint(ctx context.Context, measurement string, tags map[string]string) (*Point, error) {
	switch measurement {
	case MeasurementWorkouts:
		w, err := s.GetWorkout(ctx, tags["source"], tags["source_id"])
		if err != nil || w == nil {
			return nil, err
		}
		p := WorkoutPoint(w)
		return &p, nil
	case MeasurementDaily:
		d, err := s.GetDaily(ctx, tags["source"], tags["date"])
		if err != nil || d == nil {
			return nil, err
		}
		p := DailyPoint(d)
		return &p, nil
	case MeasurementOverrides:
		o, err := s.GetOverride(ctx, tags["date"], tags["field"])
		if err != nil || o == nil {
			return nil, err
		}
		p := OverridePoint(o)
		return &p, nil
	default:
		return nil, fmt.Errorf("unknown measurement %q", measurement)
	}
}

// WorkoutPoint converts a canonical workout to its stored point shape.
func WorkoutPoint(w *models.Workout) Point {
	return Point{
		Measurement: MeasurementWorkouts,
		Tags: map[string]string{
			"source":    w.Source,
			"source_id": w.SourceID,
			"date":      w.Date,
		},
		Fields: map[string]any{
			"start_time":       w.StartTime.Format(time.RFC3339),
			"type":             w.Type,
			"name":             w.Name,
			"duration_minutes": w.DurationMinutes,
			"distance_meters":  w.DistanceMeters,
			"elevation_gain":   w.ElevationGain,
			"avg_hr":           w.AvgHR,
			"max_hr":           w.MaxHR,
			"calories":         w.Calories,
			"effort":           w.Effort,
			"feeling":          string(w.Feeling),
		},
		Time: w.StartTime,
	}
}

// AsWorkout converts a workouts point back to the canonical record.
func AsWorkout(p Point) (*models.Workout, error) {
	if p.Measurement != MeasurementWorkouts {
		return nil, fmt.Errorf("not a workouts point: %s", p.Measurement)
	}
	w := &models.Workout{
		Source:          p.Tags["source"],
		SourceID:        p.Tags["source_id"],
		Date:            p.Tags["date"],
		Type:            fieldString(p.Fields, "type"),
		Name:            fieldString(p.Fields, "name"),
		DurationMinutes: fieldFloat(p.Fields, "duration_minutes"),
		DistanceMeters:  fieldFloat(p.Fields, "distance_meters"),
		ElevationGain:   fieldFloat(p.Fields, "elevation_gain"),
		AvgHR:           fieldFloat(p.Fields, "avg_hr"),
		MaxHR:           fieldFloat(p.Fields, "max_hr"),
		Calories:        int(fieldFloat(p.Fields, "calories")),
		Effort:          fieldFloat(p.Fields, "effort"),
		Feeling:         models.Feeling(fieldString(p.Fields, "feeling")),
	}
	if ts := fieldString(p.Fields, "start_time"); ts != "" {
		w.StartTime, _ = time.Parse(time.RFC3339, ts)
	}
	return w, w.Valid()
}

// DailyPoint converts a canonical daily-metrics record to a point.
func DailyPoint(d *models.DailyMetrics) Point {
	fields := make(map[string]any)
	for _, name := range models.DailyFields {
		if v := d.Field(name); v != nil {
			fields[name] = *v
		}
	}
	day, _ := models.ParseDate(d.Date)
	return Point{
		Measurement: MeasurementDaily,
		Tags:        map[string]string{"source": d.Source, "date": d.Date},
		Fields:      fields,
		Time:        day,
	}
}

// AsDaily converts a daily_health point back to the canonical record.
func AsDaily(p Point) (*models.DailyMetrics, error) {
	if p.Measurement != MeasurementDaily {
		return nil, fmt.Errorf("not a daily_health point: %s", p.Measurement)
	}
	d := &models.DailyMetrics{Source: p.Tags["source"], Date: p.Tags["date"]}
	for _, name := range models.DailyFields {
		if raw, ok := p.Fields[name]; ok {
			if f, ok := toFloat(raw); ok {
				d.SetField(name, f)
			}
		}
	}
	return d, d.Valid()
}

// OverridePoint converts a manual override record to a point.
func OverridePoint(o *models.Override) Point {
	return Point{
		Measurement: MeasurementOverrides,
		Tags:        map[string]string{"date": o.Date, "field": o.Field},
		Fields:      map[string]any{"value": o.Value},
		Time:        o.CreatedAt,
	}
}

// AsOverride converts a manual_values point back to the record.
func AsOverride(p Point) (*models.Override, error) {
	if p.Measurement != MeasurementOverrides {
		return nil, fmt.Errorf("not a manual_values point: %s", p.Measurement)
	}
	o := &models.Override{
		Date:      p.Tags["date"],
		Field:     p.Tags["field"],
		Value:     fieldFloat(p.Fields, "value"),
		CreatedAt: p.Time,
	}
	return o, o.Valid()
}

// LoadSeriesPoint converts a derived load point to its stored shape.
func LoadSeriesPoint(lp *models.LoadPoint) Point {
	day, _ := models.ParseDate(lp.Date)
	return Point{
		Measurement: MeasurementLoadSeries,
		Tags:        map[string]string{"date": lp.Date},
		Fields: map[string]any{
			"load":        lp.Load,
			"fitness":     lp.Fitness,
			"fatigue":     lp.Fatigue,
			"balance":     lp.Balance,
			"provisional": lp.Provisional,
		},
		Time: day,
	}
}

// AsLoadPoint converts a load_series point back to the derived record.
func AsLoadPoint(p Point) (*models.LoadPoint, error) {
	if p.Measurement != MeasurementLoadSeries {
		return nil, fmt.Errorf("not a load_series point: %s", p.Measurement)
	}
	lp := &models.LoadPoint{
		Date:    p.Tags["date"],
		Load:    fieldFloat(p.Fields, "load"),
		Fitness: fieldFloat(p.Fields, "fitness"),
		Fatigue: fieldFloat(p.Fields, "fatigue"),
		Balance: fieldFloat(p.Fields, "balance"),
	}
	if b, ok := p.Fields["provisional"].(bool); ok {
		lp.Provisional = b
	}
	if _, err := models.ParseDate(lp.Date); err != nil {
		return nil, err
	}
	return lp, nil
}

func fieldString(fields map[string]any, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}

func fieldFloat(fields map[string]any, name string) float64 {
	f, _ := toFloat(fields[name])
	return f
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
