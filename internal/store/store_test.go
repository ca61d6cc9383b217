// ABOUTME: Tests for SQLite persistence: upserts, ranges, the point
// ABOUTME: contract, and administrative purge.
package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/harperreed/pulse/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "pulse-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	s, err := Open(filepath.Join(tmpDir, "pulse.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testWorkout(id, date string, effort float64) *models.Workout {
	return &models.Workout{
		Source:          "strava",
		SourceID:        id,
		Date:            date,
		Type:            "run",
		Name:            "morning run",
		DurationMinutes: 45,
		Effort:          effort,
	}
}

func TestUpsertAndGetWorkout(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	w := testWorkout("100", "2026-08-01", 55)
	if err := s.UpsertWorkout(ctx, w); err != nil {
		t.Fatalf("UpsertWorkout failed: %v", err)
	}

	got, err := s.GetWorkout(ctx, "strava", "100")
	if err != nil {
		t.Fatalf("GetWorkout failed: %v", err)
	}
	if got == nil || !got.Equal(w) {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, w)
	}

	// Absent identity is (nil, nil), not an error.
	missing, err := s.GetWorkout(ctx, "strava", "999")
	if err != nil {
		t.Fatalf("GetWorkout for absent id failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for absent workout, got %+v", missing)
	}
}

func TestUpsertWorkoutReplacesInPlace(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	w := testWorkout("100", "2026-08-01", 55)
	if err := s.UpsertWorkout(ctx, w); err != nil {
		t.Fatalf("UpsertWorkout failed: %v", err)
	}
	w.Effort = 60
	if err := s.UpsertWorkout(ctx, w); err != nil {
		t.Fatalf("second UpsertWorkout failed: %v", err)
	}

	all, err := s.WorkoutsRange(ctx, "2026-08-01", "2026-08-01", "")
	if err != nil {
		t.Fatalf("WorkoutsRange failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 workout after re-upsert, got %d", len(all))
	}
	if all[0].Effort != 60 {
		t.Errorf("effort not updated: got %v", all[0].Effort)
	}
}

func TestWorkoutDateBounds(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, w := range []*models.Workout{
		testWorkout("1", "2026-07-01", 40),
		testWorkout("2", "2026-07-15", 50),
		testWorkout("3", "2026-08-01", 60),
	} {
		if err := s.UpsertWorkout(ctx, w); err != nil {
			t.Fatalf("UpsertWorkout failed: %v", err)
		}
	}

	earliest, err := s.EarliestWorkoutDate(ctx)
	if err != nil {
		t.Fatalf("EarliestWorkoutDate failed: %v", err)
	}
	if earliest != "2026-07-01" {
		t.Errorf("earliest = %q, want 2026-07-01", earliest)
	}

	latest, err := s.LatestWorkoutDate(ctx, "strava")
	if err != nil {
		t.Fatalf("LatestWorkoutDate failed: %v", err)
	}
	if latest != "2026-08-01" {
		t.Errorf("latest = %q, want 2026-08-01", latest)
	}

	// Empty source spans every source, not a literal "" source.
	garmin := testWorkout("g1", "2026-08-05", 30)
	garmin.Source = "garmin"
	if err := s.UpsertWorkout(ctx, garmin); err != nil {
		t.Fatalf("UpsertWorkout failed: %v", err)
	}
	all, err := s.LatestWorkoutDate(ctx, "")
	if err != nil {
		t.Fatalf("LatestWorkoutDate all sources failed: %v", err)
	}
	if all != "2026-08-05" {
		t.Errorf("latest across sources = %q, want 2026-08-05", all)
	}

	mid, err := s.WorkoutsRange(ctx, "2026-07-10", "2026-07-20", "")
	if err != nil {
		t.Fatalf("WorkoutsRange failed: %v", err)
	}
	if len(mid) != 1 || mid[0].SourceID != "2" {
		t.Errorf("range query wrong: %+v", mid)
	}
}

func TestUpsertDailyWholeRowReplace(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	first := &models.DailyMetrics{Source: "fitbit", Date: "2026-08-01"}
	first.SetField(models.FieldSleepHours, 7.5)
	first.SetField(models.FieldRestingHR, 52)
	if err := s.UpsertDaily(ctx, first); err != nil {
		t.Fatalf("UpsertDaily failed: %v", err)
	}

	// Replacement record lacks resting HR; the stored row must lose it
	// rather than keep the stale value.
	second := &models.DailyMetrics{Source: "fitbit", Date: "2026-08-01"}
	second.SetField(models.FieldSleepHours, 8.0)
	if err := s.UpsertDaily(ctx, second); err != nil {
		t.Fatalf("second UpsertDaily failed: %v", err)
	}

	got, err := s.GetDaily(ctx, "fitbit", "2026-08-01")
	if err != nil {
		t.Fatalf("GetDaily failed: %v", err)
	}
	if got.SleepHours == nil || *got.SleepHours != 8.0 {
		t.Errorf("sleep not replaced: %+v", got.SleepHours)
	}
	if got.RestingHR != nil {
		t.Errorf("stale resting HR survived whole-row replace: %v", *got.RestingHR)
	}
}

func TestLatestDailyDate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	date, err := s.LatestDailyDate(ctx, "fitbit")
	if err != nil {
		t.Fatalf("LatestDailyDate failed: %v", err)
	}
	if date != "" {
		t.Errorf("expected empty mark for empty store, got %q", date)
	}

	d := &models.DailyMetrics{Source: "fitbit", Date: "2026-08-02"}
	d.SetField(models.FieldSteps, 9000)
	if err := s.UpsertDaily(ctx, d); err != nil {
		t.Fatalf("UpsertDaily failed: %v", err)
	}

	date, err = s.LatestDailyDate(ctx, "fitbit")
	if err != nil {
		t.Fatalf("LatestDailyDate failed: %v", err)
	}
	if date != "2026-08-02" {
		t.Errorf("latest daily = %q, want 2026-08-02", date)
	}
}

func TestOverrideLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	o := &models.Override{Date: "2026-08-01", Field: models.FieldSleepHours, Value: 7.0}
	if err := s.SetOverride(ctx, o); err != nil {
		t.Fatalf("SetOverride failed: %v", err)
	}

	// Newest write for the same key wins.
	o2 := &models.Override{Date: "2026-08-01", Field: models.FieldSleepHours, Value: 7.5}
	if err := s.SetOverride(ctx, o2); err != nil {
		t.Fatalf("second SetOverride failed: %v", err)
	}

	got, err := s.GetOverride(ctx, "2026-08-01", models.FieldSleepHours)
	if err != nil {
		t.Fatalf("GetOverride failed: %v", err)
	}
	if got == nil || got.Value != 7.5 {
		t.Errorf("override not superseded: %+v", got)
	}

	if err := s.RemoveOverride(ctx, "2026-08-01", models.FieldSleepHours); err != nil {
		t.Fatalf("RemoveOverride failed: %v", err)
	}
	if err := s.RemoveOverride(ctx, "2026-08-01", models.FieldSleepHours); err == nil {
		t.Error("expected error removing absent override")
	}
}

func TestPointContractRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	w := testWorkout("42", "2026-08-01", 55)
	if err := s.Write(ctx, WorkoutPoint(w)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	points, err := s.QueryRange(ctx, MeasurementWorkouts, "2026-08-01", "2026-08-01", nil)
	if err != nil {
		t.Fatalf("QueryRange failed: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(points))
	}
	got, err := AsWorkout(points[0])
	if err != nil {
		t.Fatalf("AsWorkout failed: %v", err)
	}
	if !got.Equal(w) {
		t.Errorf("point round trip mismatch: got %+v, want %+v", got, w)
	}

	// Source filter excludes other sources.
	none, err := s.QueryRange(ctx, MeasurementWorkouts, "2026-08-01", "2026-08-01",
		map[string]string{"source": "fitbit"})
	if err != nil {
		t.Fatalf("filtered QueryRange failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("filter leaked %d points", len(none))
	}

	missing, err := s.QueryPoint(ctx, MeasurementWorkouts,
		map[string]string{"source": "strava", "source_id": "777"})
	if err != nil {
		t.Fatalf("QueryPoint failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for absent point, got %+v", missing)
	}
}

func TestWriteBatchAndLoadSeries(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	series := []models.LoadPoint{
		{Date: "2026-08-01", Load: 50, Fitness: 1.2, Fatigue: 6.7, Balance: -5.5, Provisional: true},
		{Date: "2026-08-02", Load: 0, Fitness: 1.1, Fatigue: 5.8, Balance: -4.7, Provisional: true},
	}
	if err := s.WriteLoadSeries(ctx, series); err != nil {
		t.Fatalf("WriteLoadSeries failed: %v", err)
	}

	got, err := s.LoadSeriesRange(ctx, "2026-08-01", "2026-08-02")
	if err != nil {
		t.Fatalf("LoadSeriesRange failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 points, got %d", len(got))
	}
	if got[0].Balance != -5.5 || !got[0].Provisional {
		t.Errorf("first point mismatch: %+v", got[0])
	}
}

func TestClearLoadSeries(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	series := []models.LoadPoint{
		{Date: "2026-08-01", Load: 50, Fitness: 1.2, Fatigue: 6.7, Balance: -5.5},
		{Date: "2026-08-02", Load: 0, Fitness: 1.1, Fatigue: 5.8, Balance: -4.7},
	}
	if err := s.WriteLoadSeries(ctx, series); err != nil {
		t.Fatalf("WriteLoadSeries failed: %v", err)
	}

	if err := s.ClearLoadSeries(ctx); err != nil {
		t.Fatalf("ClearLoadSeries failed: %v", err)
	}
	got, err := s.LoadSeriesRange(ctx, "2026-08-01", "2026-08-02")
	if err != nil {
		t.Fatalf("LoadSeriesRange failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("stale derived rows survived clear: %+v", got)
	}
}

func TestWriteBatchReportsUnwrittenIdentities(t *testing.T) {
	s := setupTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	points := []Point{
		WorkoutPoint(testWorkout("1", "2026-08-01", 40)),
		WorkoutPoint(testWorkout("2", "2026-08-02", 50)),
	}
	err := s.WriteBatch(context.Background(), points)
	if err == nil {
		t.Fatal("expected batch write against closed store to fail")
	}

	var werr *WriteError
	if !errors.As(err, &werr) {
		t.Fatalf("error is %T, want *WriteError", err)
	}
	if len(werr.Identities) != 2 {
		t.Fatalf("got %d failed identities, want 2: %v", len(werr.Identities), werr.Identities)
	}
	if werr.Identities[0] != "workouts(strava/1)" || werr.Identities[1] != "workouts(strava/2)" {
		t.Errorf("identities mislabelled: %v", werr.Identities)
	}
	if werr.Last == nil {
		t.Error("WriteError should carry the last underlying error")
	}
}

func TestPurgeBySource(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.UpsertWorkout(ctx, testWorkout("1", "2026-08-01", 40)); err != nil {
		t.Fatalf("UpsertWorkout failed: %v", err)
	}
	other := testWorkout("2", "2026-08-01", 45)
	other.Source = "garmin"
	if err := s.UpsertWorkout(ctx, other); err != nil {
		t.Fatalf("UpsertWorkout failed: %v", err)
	}

	n, err := s.Purge(ctx, MeasurementWorkouts, "strava")
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d rows, want 1", n)
	}

	left, err := s.WorkoutsRange(ctx, "2026-08-01", "2026-08-01", "")
	if err != nil {
		t.Fatalf("WorkoutsRange failed: %v", err)
	}
	if len(left) != 1 || left[0].Source != "garmin" {
		t.Errorf("purge touched the wrong source: %+v", left)
	}

	// Derived series is not purgeable by source.
	if _, err := s.Purge(ctx, MeasurementLoadSeries, "strava"); err == nil {
		t.Error("expected error purging load_series")
	}
}
