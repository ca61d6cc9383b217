// ABOUTME: Readiness score: weighted blend of HRV, sleep, resting HR, and
// ABOUTME: strain recency, renormalized when a sub-score has no data.
package engine

import (
	"context"
	"math"
	"sort"

	"github.com/harperreed/pulse/internal/models"
)

// Readiness holds a day's composite score and the sub-scores that
// went into it. Sub-scores without data are nil and excluded from the
// blend.
type Readiness struct {
	Date  string
	Score int

	HRV           *float64
	Sleep         *float64
	RestingHR     *float64
	StrainRecency *float64
}

// hrvBaselineDays is the trailing window used for HRV percentile and
// resting-HR baseline.
const hrvBaselineDays = 60

// targetSleepHours is the denominator of the sleep sub-score.
const targetSleepHours = 8.0

// CombineSubScores blends sub-scores by weight, renormalizing so the
// present terms' weights sum to 1. All inputs are already in [0, 1].
// Returns -1 when every sub-score is missing.
func CombineSubScores(w ScoreWeights, hrv, sleep, rhr, strain *float64) int {
	var sum, weight float64
	add := func(s *float64, wt float64) {
		if s != nil {
			sum += *s * wt
			weight += wt
		}
	}
	add(hrv, w.HRV)
	add(sleep, w.Sleep)
	add(rhr, w.RestingHR)
	add(strain, w.StrainRecency)
	if weight == 0 {
		return -1
	}
	return int(math.Round(clamp01(sum/weight) * 100))
}

// Score computes the readiness score for one date from the resolved
// daily metrics and trailing history. A day with no usable inputs
// returns (nil, nil).
func (e *Engine) Score(ctx context.Context, date string) (*Readiness, error) {
	day, err := e.ResolvedDay(ctx, date)
	if err != nil {
		return nil, err
	}

	histStart := addDays(date, -hrvBaselineDays)
	history, err := e.store.DailyRange(ctx, histStart, addDays(date, -1), "")
	if err != nil {
		return nil, err
	}

	r := &Readiness{Date: date}
	if v, ok := day.Values[models.FieldHRVAvg]; ok {
		r.HRV = ptr(hrvPercentile(v, fieldHistory(history, models.FieldHRVAvg)))
	}
	if v, ok := day.Values[models.FieldSleepHours]; ok {
		r.Sleep = ptr(clamp01(v / targetSleepHours))
	}
	if v, ok := day.Values[models.FieldRestingHR]; ok {
		if s, ok := restingHRScore(v, fieldHistory(history, models.FieldRestingHR)); ok {
			r.RestingHR = ptr(s)
		}
	}
	if s, ok, err := e.strainRecency(ctx, date); err != nil {
		return nil, err
	} else if ok {
		r.StrainRecency = ptr(s)
	}

	// A dropped term reweights the rest; that is a data-quality signal
	// worth surfacing when chasing gaps.
	for _, m := range []struct {
		name string
		sub  *float64
	}{
		{"hrv", r.HRV},
		{"sleep", r.Sleep},
		{"resting_hr", r.RestingHR},
		{"strain", r.StrainRecency},
	} {
		if m.sub == nil {
			e.log.Debug("readiness sub-score missing, reweighting", "date", date, "signal", m.name)
		}
	}

	score := CombineSubScores(e.params.Weights, r.HRV, r.Sleep, r.RestingHR, r.StrainRecency)
	if score < 0 {
		return nil, nil
	}
	r.Score = score
	return r, nil
}

// hrvPercentile ranks today's HRV against the trailing window.
// With no history the day sits at the median.
func hrvPercentile(today float64, history []float64) float64 {
	if len(history) == 0 {
		return 0.5
	}
	sorted := append([]float64(nil), history...)
	sort.Float64s(sorted)
	below := sort.SearchFloat64s(sorted, today)
	return clamp01(float64(below) / float64(len(sorted)))
}

// restingHRScore scores today's resting HR against the trailing mean:
// 0.5 at baseline, rising as the rate drops below it. Needs history
// to have a baseline at all.
func restingHRScore(today float64, history []float64) (float64, bool) {
	if len(history) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range history {
		sum += v
	}
	baseline := sum / float64(len(history))
	if baseline <= 0 {
		return 0, false
	}
	return clamp01(0.5 + (baseline-today)/(0.2*baseline)), true
}

// strainRecency rewards rest: 0 the day of the last workout, 1 after
// three or more full rest days. No workouts at all scores full rest.
func (e *Engine) strainRecency(ctx context.Context, date string) (float64, bool, error) {
	last, err := e.store.LatestWorkoutDate(ctx, "")
	if err != nil {
		return 0, false, err
	}
	if last == "" {
		return 1, true, nil
	}
	if last > date {
		// Only history up to the scored day counts.
		workouts, err := e.store.WorkoutsRange(ctx, addDays(date, -hrvBaselineDays), date, "")
		if err != nil {
			return 0, false, err
		}
		if len(workouts) == 0 {
			return 1, true, nil
		}
		last = workouts[len(workouts)-1].Date
	}
	return clamp01(float64(daysBetween(last, date)) / 3), true, nil
}

func fieldHistory(records []*models.DailyMetrics, field string) []float64 {
	var out []float64
	for _, rec := range records {
		if v := rec.Field(field); v != nil {
			out = append(out, *v)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func ptr(v float64) *float64 { return &v }
