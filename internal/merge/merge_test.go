// ABOUTME: Tests for merge decisions: idempotent re-runs, update
// ABOUTME: detection, dry-run symmetry, and cross-source resolution.
package merge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/pulse/internal/models"
	"github.com/harperreed/pulse/internal/store"
)

func setupStore(t *testing.T) *store.Store {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "pulse-merge-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	s, err := store.Open(filepath.Join(tmpDir, "pulse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func workout(id string, effort float64) *models.Workout {
	return &models.Workout{
		Source: "strava", SourceID: id, Date: "2026-08-01",
		Type: "run", DurationMinutes: 45, Effort: effort,
	}
}

func TestMergeWorkoutsIdempotent(t *testing.T) {
	s := setupStore(t)
	m := New(s, nil, false)
	ctx := context.Background()

	batch := []*models.Workout{workout("1", 50), workout("2", 60)}

	first, err := m.MergeWorkouts(ctx, "strava", batch)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Inserted)
	assert.Equal(t, 0, first.Skipped)

	// Same batch again: nothing inserted, nothing double-counted.
	second, err := m.MergeWorkouts(ctx, "strava", batch)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 2, second.Skipped)

	stored, err := s.WorkoutsRange(ctx, "2026-08-01", "2026-08-01", "")
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestMergeWorkoutsDetectsUpdate(t *testing.T) {
	s := setupStore(t)
	m := New(s, nil, false)
	ctx := context.Background()

	_, err := m.MergeWorkouts(ctx, "strava", []*models.Workout{workout("1", 50)})
	require.NoError(t, err)

	changed := workout("1", 55)
	report, err := m.MergeWorkouts(ctx, "strava", []*models.Workout{changed})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Updated)

	got, err := s.GetWorkout(ctx, "strava", "1")
	require.NoError(t, err)
	assert.Equal(t, 55.0, got.Effort)
}

func TestMergeWorkoutsRejectsInvalid(t *testing.T) {
	s := setupStore(t)
	m := New(s, nil, false)

	bad := &models.Workout{Source: "strava", Date: "2026-08-01"} // no id
	report, err := m.MergeWorkouts(context.Background(), "strava", []*models.Workout{bad})
	require.NoError(t, err, "a rejected record must not fail the run")
	assert.Equal(t, 1, report.Rejected)
	assert.Equal(t, 0, report.Inserted)
}

func TestDryRunReportsWithoutWriting(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	batch := []*models.Workout{workout("1", 50)}

	dry, err := New(s, nil, true).MergeWorkouts(ctx, "strava", batch)
	require.NoError(t, err)
	assert.Equal(t, 1, dry.Inserted)
	assert.True(t, dry.DryRun)

	stored, err := s.WorkoutsRange(ctx, "2026-08-01", "2026-08-01", "")
	require.NoError(t, err)
	assert.Empty(t, stored, "dry run must not persist")

	// The wet run reports the identical decision.
	wet, err := New(s, nil, false).MergeWorkouts(ctx, "strava", batch)
	require.NoError(t, err)
	assert.Equal(t, dry.Inserted, wet.Inserted)
	assert.Equal(t, dry.Skipped, wet.Skipped)
}

func TestMergeDailyWholeRecordReplace(t *testing.T) {
	s := setupStore(t)
	m := New(s, nil, false)
	ctx := context.Background()

	rec := &models.DailyMetrics{Source: "fitbit", Date: "2026-08-01"}
	rec.SetField(models.FieldSleepHours, 7.0)
	rec.SetField(models.FieldRestingHR, 52)
	_, err := m.MergeDaily(ctx, "fitbit", []*models.DailyMetrics{rec})
	require.NoError(t, err)

	replacement := &models.DailyMetrics{Source: "fitbit", Date: "2026-08-01"}
	replacement.SetField(models.FieldSleepHours, 7.4)
	report, err := m.MergeDaily(ctx, "fitbit", []*models.DailyMetrics{replacement})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Updated)

	got, err := s.GetDaily(ctx, "fitbit", "2026-08-01")
	require.NoError(t, err)
	assert.Nil(t, got.RestingHR, "same-source replace must be atomic, not per-field")
}

func TestResolveDayPriorityTable(t *testing.T) {
	pri := Priorities{
		Default: []string{"fitbit", "strava"},
		Fields:  map[string][]string{models.FieldHRVAvg: {"whoop", "fitbit"}},
	}

	a := &models.DailyMetrics{Source: "fitbit", Date: "2026-08-01"}
	a.SetField(models.FieldHRVAvg, 40)
	a.SetField(models.FieldSteps, 9000)
	b := &models.DailyMetrics{Source: "whoop", Date: "2026-08-01"}
	b.SetField(models.FieldHRVAvg, 45)

	day := ResolveDay("2026-08-01", []*models.DailyMetrics{a, b}, pri)

	// HRV has a field-specific order: whoop wins despite default.
	assert.Equal(t, 45.0, day.Values[models.FieldHRVAvg])
	assert.Equal(t, "whoop", day.Sources[models.FieldHRVAvg])

	// Steps only exists in one source; priority is irrelevant.
	assert.Equal(t, 9000.0, day.Values[models.FieldSteps])
}

func TestResolveDayUnlistedSourcesTieBreak(t *testing.T) {
	pri := Priorities{Default: []string{"fitbit"}}

	a := &models.DailyMetrics{Source: "zeta", Date: "2026-08-01"}
	a.SetField(models.FieldSteps, 1)
	b := &models.DailyMetrics{Source: "alpha", Date: "2026-08-01"}
	b.SetField(models.FieldSteps, 2)

	// Same outcome regardless of record order.
	forward := ResolveDay("2026-08-01", []*models.DailyMetrics{a, b}, pri)
	reverse := ResolveDay("2026-08-01", []*models.DailyMetrics{b, a}, pri)
	assert.Equal(t, "alpha", forward.Sources[models.FieldSteps])
	assert.Equal(t, forward.Values, reverse.Values)
}

func TestApplyOverridesWinsAndReverts(t *testing.T) {
	pri := Priorities{Default: []string{"fitbit"}}
	rec := &models.DailyMetrics{Source: "fitbit", Date: "2026-08-01"}
	rec.SetField(models.FieldSleepHours, 6.0)

	day := ResolveDay("2026-08-01", []*models.DailyMetrics{rec}, pri)
	day.ApplyOverrides([]*models.Override{
		{Date: "2026-08-01", Field: models.FieldSleepHours, Value: 7.5},
	})
	assert.Equal(t, 7.5, day.Values[models.FieldSleepHours])
	assert.Equal(t, "manual", day.Sources[models.FieldSleepHours])

	// Without the override, resolution falls back to the source value.
	reverted := ResolveDay("2026-08-01", []*models.DailyMetrics{rec}, pri)
	assert.Equal(t, 6.0, reverted.Values[models.FieldSleepHours])
	assert.Equal(t, "fitbit", reverted.Sources[models.FieldSleepHours])
}

func TestDailyEqualDistinguishesAbsentFromZero(t *testing.T) {
	a := &models.DailyMetrics{Source: "fitbit", Date: "2026-08-01"}
	b := &models.DailyMetrics{Source: "fitbit", Date: "2026-08-01"}
	assert.True(t, dailyEqual(a, b))

	b.SetField(models.FieldSteps, 0)
	assert.False(t, dailyEqual(a, b), "zero steps is data, absence is not")
}
