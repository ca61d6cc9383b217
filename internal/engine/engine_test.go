// ABOUTME: Tests for the load recurrence, gap filling, readiness
// ABOUTME: sub-scores, and the series cache.
package engine

import (
	"bytes"
	"context"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/pulse/internal/merge"
	"github.com/harperreed/pulse/internal/models"
	"github.com/harperreed/pulse/internal/store"
)

func setupEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "pulse-engine-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	s, err := store.Open(filepath.Join(tmpDir, "pulse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	pri := merge.Priorities{Default: []string{"fitbit", "strava"}}
	return New(s, DefaultParams(), pri, nil, nil), s
}

func addWorkout(t *testing.T, s *store.Store, id, date string, effort float64) {
	t.Helper()
	err := s.UpsertWorkout(context.Background(), &models.Workout{
		Source: "strava", SourceID: id, Date: date,
		Type: "run", DurationMinutes: 45, Effort: effort,
	})
	require.NoError(t, err)
}

func addDaily(t *testing.T, s *store.Store, date string, field string, v float64) {
	t.Helper()
	d := &models.DailyMetrics{Source: "fitbit", Date: date}
	d.SetField(field, v)
	require.NoError(t, s.UpsertDaily(context.Background(), d))
}

func TestComputeSeriesRecurrence(t *testing.T) {
	p := DefaultParams()
	dates := []string{"2026-08-01", "2026-08-02", "2026-08-03"}
	loads := []float64{50, 0, 0}

	series := ComputeSeries(dates, loads, p)
	require.Len(t, series, 3)

	kLong := Decay(p.TauLongDays)
	kShort := Decay(p.TauShortDays)

	// Zero initial state: day one is exactly load * k.
	assert.InDelta(t, 50*kLong, series[0].Fitness, 1e-12)
	assert.InDelta(t, 50*kShort, series[0].Fatigue, 1e-12)

	// Rest days decay, never interpolate.
	assert.InDelta(t, series[0].Fitness*(1-kLong), series[1].Fitness, 1e-12)
	assert.InDelta(t, series[1].Fatigue*(1-kShort), series[2].Fatigue, 1e-12)

	for _, lp := range series {
		assert.InDelta(t, lp.Fitness-lp.Fatigue, lp.Balance, 1e-12)
		assert.True(t, lp.Provisional, "first tau-long days are ramp-up")
	}
}

func TestComputeSeriesDeterministic(t *testing.T) {
	dates := make([]string, 100)
	loads := make([]float64, 100)
	day, _ := models.ParseDate("2026-05-01")
	for i := range dates {
		dates[i] = models.FormatDate(day.AddDate(0, 0, i))
		loads[i] = float64((i * 37) % 90)
	}

	a := ComputeSeries(dates, loads, DefaultParams())
	b := ComputeSeries(dates, loads, DefaultParams())
	assert.Equal(t, a, b, "same inputs must give bit-identical output")

	// Provisional flag clears after the long time constant.
	assert.True(t, a[41].Provisional)
	assert.False(t, a[42].Provisional)
}

func TestDailyLoadsZeroFillsGaps(t *testing.T) {
	e, s := setupEngine(t)
	ctx := context.Background()

	addWorkout(t, s, "1", "2026-08-01", 50)
	addWorkout(t, s, "2", "2026-08-01", 20) // same day, sums
	addWorkout(t, s, "3", "2026-08-04", 60)

	dates, loads, err := e.DailyLoads(ctx, "2026-08-01", "2026-08-05")
	require.NoError(t, err)
	require.Len(t, dates, 5)
	assert.Equal(t, []float64{70, 0, 0, 60, 0}, loads)
}

func TestDailyLoadsZeroesInvalidInput(t *testing.T) {
	e, s := setupEngine(t)
	addWorkout(t, s, "1", "2026-08-01", math.Inf(1))
	addWorkout(t, s, "2", "2026-08-02", -30)

	_, loads, err := e.DailyLoads(context.Background(), "2026-08-01", "2026-08-02")
	require.NoError(t, err, "bad points degrade, never abort")
	assert.Equal(t, []float64{0, 0}, loads)
}

func TestLoadSeriesAnchorsAtEarliestWorkout(t *testing.T) {
	e, s := setupEngine(t)
	ctx := context.Background()

	// History long before the queried window.
	day, _ := models.ParseDate("2026-05-01")
	for i := 0; i < 60; i++ {
		addWorkout(t, s, models.FormatDate(day.AddDate(0, 0, i)),
			models.FormatDate(day.AddDate(0, 0, i)), 40)
	}

	window, err := e.LoadSeries(ctx, "2026-06-25", "2026-06-29")
	require.NoError(t, err)
	require.Len(t, window, 5)

	// 55+ days of history: past the ramp, carrying accumulated fitness.
	assert.False(t, window[0].Provisional)
	assert.Greater(t, window[0].Fitness, 20.0)

	// The recompute persisted the series.
	stored, err := s.LoadSeriesRange(ctx, "2026-06-25", "2026-06-29")
	require.NoError(t, err)
	assert.Len(t, stored, 5)
}

func TestLoadSeriesEmptyHistoryIsAllZero(t *testing.T) {
	e, _ := setupEngine(t)

	window, err := e.LoadSeries(context.Background(), "2026-08-01", "2026-08-03")
	require.NoError(t, err)
	require.Len(t, window, 3)
	for _, lp := range window {
		assert.Zero(t, lp.Fitness)
		assert.Zero(t, lp.Fatigue)
	}
}

func TestCombineSubScores(t *testing.T) {
	w := DefaultParams().Weights

	full := CombineSubScores(w, ptr(1), ptr(1), ptr(1), ptr(1))
	assert.Equal(t, 100, full)

	none := CombineSubScores(w, nil, nil, nil, nil)
	assert.Equal(t, -1, none)

	// Missing terms renormalize: sleep 0.75 and strain 1.0 alone give
	// (0.30*0.75 + 0.15*1.0) / 0.45.
	partial := CombineSubScores(w, nil, ptr(0.75), nil, ptr(1))
	assert.Equal(t, 83, partial)
}

func TestHRVPercentile(t *testing.T) {
	history := []float64{30, 35, 40, 45, 50}
	assert.Equal(t, 1.0, hrvPercentile(60, history))
	assert.Equal(t, 0.0, hrvPercentile(20, history))
	assert.InDelta(t, 0.6, hrvPercentile(42, history), 1e-9)
	assert.Equal(t, 0.5, hrvPercentile(42, nil))
}

func TestRestingHRScore(t *testing.T) {
	history := []float64{50, 50, 50}

	at, ok := restingHRScore(50, history)
	require.True(t, ok)
	assert.InDelta(t, 0.5, at, 1e-9)

	better, _ := restingHRScore(45, history)
	worse, _ := restingHRScore(55, history)
	assert.Greater(t, better, at)
	assert.Less(t, worse, at)

	_, ok = restingHRScore(50, nil)
	assert.False(t, ok, "no baseline, no score")
}

func TestScoreUsesOverridesAtReadTime(t *testing.T) {
	e, s := setupEngine(t)
	ctx := context.Background()

	addDaily(t, s, "2026-08-10", models.FieldSleepHours, 4.0)

	before, err := e.Score(ctx, "2026-08-10")
	require.NoError(t, err)
	require.NotNil(t, before)

	require.NoError(t, s.SetOverride(ctx, &models.Override{
		Date: "2026-08-10", Field: models.FieldSleepHours, Value: 8.0,
	}))
	after, err := e.Score(ctx, "2026-08-10")
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.Greater(t, after.Score, before.Score)
	assert.Equal(t, 1.0, *after.Sleep)

	// Removing the override reverts to the source value.
	require.NoError(t, s.RemoveOverride(ctx, "2026-08-10", models.FieldSleepHours))
	reverted, err := e.Score(ctx, "2026-08-10")
	require.NoError(t, err)
	assert.Equal(t, before.Score, reverted.Score)
}

func TestScoreBounds(t *testing.T) {
	e, s := setupEngine(t)
	ctx := context.Background()

	// Absurd inputs still land in [0, 100].
	addDaily(t, s, "2026-08-10", models.FieldSleepHours, 30)
	r, err := e.Score(ctx, "2026-08-10")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.GreaterOrEqual(t, r.Score, 0)
	assert.LessOrEqual(t, r.Score, 100)
}

func TestCacheTTL(t *testing.T) {
	c := NewCache(30 * time.Second)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	series := []models.LoadPoint{{Date: "2026-08-01", Load: 50}}
	c.Put("k", series)

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, series, got)

	now = now.Add(31 * time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok, "entry must expire after the TTL")

	c.Put("k", series)
	c.Invalidate()
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestComputeSeriesDoubleSpike(t *testing.T) {
	p := DefaultParams()
	dates := make([]string, 8)
	day, _ := models.ParseDate("2026-08-01")
	for i := range dates {
		dates[i] = models.FormatDate(day.AddDate(0, 0, i))
	}
	loads := []float64{50, 0, 0, 0, 0, 0, 0, 50}

	series := ComputeSeries(dates, loads, p)
	require.Len(t, series, 8)

	// With tau 42/7 the second spike lands on fatigue7 = 50k(1+e^-1)
	// and fitness7 = 50k(1+e^-(1/6)) for the respective decay rates.
	assert.InDelta(t, 9.1048, series[7].Fatigue, 0.005)
	assert.InDelta(t, 2.1722, series[7].Fitness, 0.005)

	// Fatigue reacts to the new spike far faster than fitness does.
	fatigueJump := series[7].Fatigue - series[6].Fatigue
	fitnessJump := series[7].Fitness - series[6].Fitness
	assert.Greater(t, fatigueJump, fitnessJump)
	assert.Negative(t, series[7].Balance, "a fresh spike should push balance down")

	// Between spikes both curves only decay.
	for i := 1; i <= 6; i++ {
		assert.Less(t, series[i].Fatigue, series[i-1].Fatigue)
		assert.Less(t, series[i].Fitness, series[i-1].Fitness)
	}
}

func TestStrainRecencyTracksRestDays(t *testing.T) {
	e, s := setupEngine(t)
	ctx := context.Background()
	addWorkout(t, s, "1", "2026-08-10", 50)

	cases := []struct {
		date string
		want float64
	}{
		{"2026-08-10", 0},
		{"2026-08-11", 1.0 / 3},
		{"2026-08-12", 2.0 / 3},
		{"2026-08-13", 1},
		{"2026-08-20", 1},
	}
	for _, tc := range cases {
		got, ok, err := e.strainRecency(ctx, tc.date)
		require.NoError(t, err)
		require.True(t, ok)
		assert.InDelta(t, tc.want, got, 1e-12, "date %s", tc.date)
	}

	// A later workout must not bleed into an earlier day's score.
	addWorkout(t, s, "2", "2026-08-20", 60)
	got, ok, err := e.strainRecency(ctx, "2026-08-11")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 1.0/3, got, 1e-12)
}

func TestScoreIncludesStrainOnWorkoutDay(t *testing.T) {
	e, s := setupEngine(t)
	ctx := context.Background()

	addWorkout(t, s, "1", "2026-08-10", 50)
	addDaily(t, s, "2026-08-10", models.FieldSleepHours, 8)

	r, err := e.Score(ctx, "2026-08-10")
	require.NoError(t, err)
	require.NotNil(t, r)
	require.NotNil(t, r.StrainRecency)
	assert.Zero(t, *r.StrainRecency, "workout day is zero rest")

	// sleep 1.0 at weight .30, strain 0 at weight .15, renormalized.
	assert.Equal(t, 67, r.Score)
}

func TestScoreLogsMissingSubScores(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "pulse-engine-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	s, err := store.Open(filepath.Join(tmpDir, "pulse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	pri := merge.Priorities{Default: []string{"fitbit", "strava"}}
	e := New(s, DefaultParams(), pri, nil, log)

	addDaily(t, s, "2026-08-10", models.FieldSleepHours, 7.5)
	r, err := e.Score(context.Background(), "2026-08-10")
	require.NoError(t, err)
	require.NotNil(t, r)

	out := buf.String()
	assert.Contains(t, out, "signal=hrv")
	assert.Contains(t, out, "signal=resting_hr")
	assert.NotContains(t, out, "signal=sleep")
	assert.NotContains(t, out, "signal=strain")
}
