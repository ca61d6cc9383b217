// ABOUTME: Training-load engine: decayed-average recurrence over daily load.
// ABOUTME: Pure and total: same series and parameters reproduce identical output.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/harperreed/pulse/internal/merge"
	"github.com/harperreed/pulse/internal/models"
	"github.com/harperreed/pulse/internal/store"
)

// Params holds the recurrence time constants, the load scale, and the
// readiness score weights.
type Params struct {
	TauLongDays  float64
	TauShortDays float64
	LoadScale    float64
	Weights      ScoreWeights
}

// ScoreWeights is the fixed weight vector for the readiness score.
// The four weights must sum to 1.
type ScoreWeights struct {
	HRV           float64
	Sleep         float64
	RestingHR     float64
	StrainRecency float64
}

// DefaultParams returns the stock parameter set: 42-day fitness
// horizon, 7-day fatigue horizon, unscaled load.
func DefaultParams() Params {
	return Params{
		TauLongDays:  42,
		TauShortDays: 7,
		LoadScale:    1.0,
		Weights: ScoreWeights{
			HRV:           0.35,
			Sleep:         0.30,
			RestingHR:     0.20,
			StrainRecency: 0.15,
		},
	}
}

// Decay returns the smoothing coefficient k = 1 - exp(-1/tau).
func Decay(tauDays float64) float64 {
	return 1 - math.Exp(-1/tauDays)
}

// Engine computes derived series and readiness scores from the
// persisted history. It holds no mutable state across invocations
// besides the injected read-through cache.
type Engine struct {
	store      *store.Store
	params     Params
	priorities merge.Priorities
	cache      *Cache
	log        *slog.Logger
}

// New creates an Engine. A nil cache disables memoization.
func New(s *store.Store, params Params, pri merge.Priorities, cache *Cache, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{store: s, params: params, priorities: pri, cache: cache, log: log}
}

// Params returns the engine's active parameter set.
func (e *Engine) Params() Params { return e.params }

// ComputeSeries runs the two-horizon recurrence over an ordered,
// gap-free load series. Initial state is zero, so the first tau-long
// days of history are marked provisional (ramp-up transient).
func ComputeSeries(dates []string, loads []float64, p Params) []models.LoadPoint {
	kLong := Decay(p.TauLongDays)
	kShort := Decay(p.TauShortDays)
	ramp := int(math.Ceil(p.TauLongDays))

	series := make([]models.LoadPoint, len(dates))
	var fitness, fatigue float64
	for i := range dates {
		load := loads[i]
		fitness = fitness*(1-kLong) + load*kLong
		fatigue = fatigue*(1-kShort) + load*kShort
		series[i] = models.LoadPoint{
			Date:        dates[i],
			Load:        load,
			Fitness:     fitness,
			Fatigue:     fatigue,
			Balance:     fitness - fatigue,
			Provisional: i < ramp,
		}
	}
	return series
}

// DailyLoads builds the gap-filled daily load series in [start, end]:
// workout efforts summed per day, zero on rest days (never
// interpolated: the recurrence already smooths). Non-finite or
// negative inputs are zeroed per point with a warning, never aborting
// the computation.
func (e *Engine) DailyLoads(ctx context.Context, start, end string) ([]string, []float64, error) {
	startDay, err := models.ParseDate(start)
	if err != nil {
		return nil, nil, err
	}
	endDay, err := models.ParseDate(end)
	if err != nil {
		return nil, nil, err
	}
	if endDay.Before(startDay) {
		return nil, nil, fmt.Errorf("load range ends (%s) before it starts (%s)", end, start)
	}

	workouts, err := e.store.WorkoutsRange(ctx, start, end, "")
	if err != nil {
		return nil, nil, err
	}

	byDate := make(map[string]float64)
	for _, w := range workouts {
		effort := w.Effort * e.params.LoadScale
		if math.IsNaN(effort) || math.IsInf(effort, 0) || effort < 0 {
			e.log.Warn("zeroing invalid load input",
				"workout", w.Key(), "effort", w.Effort)
			effort = 0
		}
		byDate[w.Date] += effort
	}

	var dates []string
	var loads []float64
	for day := startDay; !day.After(endDay); day = day.AddDate(0, 0, 1) {
		d := models.FormatDate(day)
		dates = append(dates, d)
		loads = append(loads, byDate[d])
	}
	return dates, loads, nil
}

// LoadSeries computes the derived series anchored at the earliest
// recorded workout, persists it, and returns the [start, end] window.
// Empty history yields an all-zero series for the window.
func (e *Engine) LoadSeries(ctx context.Context, start, end string) ([]models.LoadPoint, error) {
	cacheKey := fmt.Sprintf("%s..%s/%+v", start, end, e.params)
	if e.cache != nil {
		if series, ok := e.cache.Get(cacheKey); ok {
			return series, nil
		}
	}

	anchor, err := e.store.EarliestWorkoutDate(ctx)
	if err != nil {
		return nil, err
	}
	computeStart := start
	if anchor != "" && anchor < start {
		computeStart = anchor
	}

	dates, loads, err := e.DailyLoads(ctx, computeStart, end)
	if err != nil {
		return nil, err
	}
	full := ComputeSeries(dates, loads, e.params)

	if err := e.store.WriteLoadSeries(ctx, full); err != nil {
		return nil, err
	}

	window := make([]models.LoadPoint, 0, len(full))
	for _, lp := range full {
		if lp.Date >= start && lp.Date <= end {
			window = append(window, lp)
		}
	}
	if e.cache != nil {
		e.cache.Put(cacheKey, window)
	}
	return window, nil
}

// ResolvedDay returns one date's daily metrics merged across sources
// by the priority table, with manual overrides applied on top.
func (e *Engine) ResolvedDay(ctx context.Context, date string) (*merge.ResolvedDay, error) {
	records, err := e.store.DailyRange(ctx, date, date, "")
	if err != nil {
		return nil, err
	}
	overrides, err := e.store.OverridesRange(ctx, date, date)
	if err != nil {
		return nil, err
	}
	day := merge.ResolveDay(date, records, e.priorities)
	day.ApplyOverrides(overrides)
	return day, nil
}

func addDays(date string, n int) string {
	t, _ := models.ParseDate(date)
	return models.FormatDate(t.AddDate(0, 0, n))
}

func daysBetween(a, b string) int {
	ta, _ := models.ParseDate(a)
	tb, _ := models.ParseDate(b)
	return int(tb.Sub(ta) / (24 * time.Hour))
}
