// ABOUTME: Workout measurement persistence: idempotent upserts and range queries.
// ABOUTME: Rows are keyed by (source, source_id); normal operation never deletes.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/pulse/internal/models"
)

// UpsertWorkout inserts or atomically replaces the workout row for its
// (source, source_id) key.
func (s *Store) UpsertWorkout(ctx context.Context, w *models.Workout) error {
	if err := w.Valid(); err != nil {
		return err
	}
	query := `
		INSERT INTO workouts (
			source, source_id, date, start_time, type, name,
			duration_minutes, distance_meters, elevation_gain,
			avg_hr, max_hr, calories, effort, feeling, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, source_id) DO UPDATE SET
			date = excluded.date,
			start_time = excluded.start_time,
			type = excluded.type,
			name = excluded.name,
			duration_minutes = excluded.duration_minutes,
			distance_meters = excluded.distance_meters,
			elevation_gain = excluded.elevation_gain,
			avg_hr = excluded.avg_hr,
			max_hr = excluded.max_hr,
			calories = excluded.calories,
			effort = excluded.effort,
			feeling = excluded.feeling,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		w.Source, w.SourceID, w.Date,
		w.StartTime.Format(time.RFC3339), w.Type, w.Name,
		w.DurationMinutes, w.DistanceMeters, w.ElevationGain,
		w.AvgHR, w.MaxHR, w.Calories, w.Effort, string(w.Feeling),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upsert workout %s: %w", w.Key(), err)
	}
	return nil
}

// GetWorkout fetches one workout by identity. Returns (nil, nil) when absent.
func (s *Store) GetWorkout(ctx context.Context, source, sourceID string) (*models.Workout, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT source, source_id, date, start_time, type, name,
		       duration_minutes, distance_meters, elevation_gain,
		       avg_hr, max_hr, calories, effort, feeling
		FROM workouts WHERE source = ? AND source_id = ?
	`, source, sourceID)

	w, err := scanWorkout(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return w, err
}

// WorkoutsRange returns workouts with date in [start, end], ordered by
// date then start time. An empty source matches all sources.
func (s *Store) WorkoutsRange(ctx context.Context, start, end, source string) ([]*models.Workout, error) {
	query := `
		SELECT source, source_id, date, start_time, type, name,
		       duration_minutes, distance_meters, elevation_gain,
		       avg_hr, max_hr, calories, effort, feeling
		FROM workouts
		WHERE date >= ? AND date <= ?
	`
	args := []any{start, end}
	if source != "" {
		query += " AND source = ?"
		args = append(args, source)
	}
	query += " ORDER BY date ASC, start_time ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("workouts range: %w", err)
	}
	defer rows.Close()

	var workouts []*models.Workout
	for rows.Next() {
		w, err := scanWorkout(rows)
		if err != nil {
			return nil, err
		}
		workouts = append(workouts, w)
	}
	return workouts, rows.Err()
}

// LatestWorkoutDate returns the high-water mark for a source's
// incremental sync, or ("", nil) when there is no history. An empty
// source matches all sources, as in WorkoutsRange.
func (s *Store) LatestWorkoutDate(ctx context.Context, source string) (string, error) {
	query := `SELECT MAX(date) FROM workouts`
	var args []any
	if source != "" {
		query += ` WHERE source = ?`
		args = append(args, source)
	}
	var date sql.NullString
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&date)
	if err != nil {
		return "", fmt.Errorf("latest workout date: %w", err)
	}
	if !date.Valid {
		return "", nil
	}
	return date.String, nil
}

// EarliestWorkoutDate returns the first day of recorded history, used
// to anchor the recurrence so the ramp-up transient is attributed
// correctly. Returns ("", nil) when the store is empty.
func (s *Store) EarliestWorkoutDate(ctx context.Context) (string, error) {
	var date sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT MIN(date) FROM workouts`).Scan(&date)
	if err != nil {
		return "", fmt.Errorf("earliest workout date: %w", err)
	}
	if !date.Valid {
		return "", nil
	}
	return date.String, nil
}

// Purge removes every row a source ever wrote to a measurement. This
// is the only deletion path besides overrides; sync runs never delete.
func (s *Store) Purge(ctx context.Context, measurement, source string) (int64, error) {
	var query string
	switch measurement {
	case MeasurementWorkouts:
		query = `DELETE FROM workouts WHERE source = ?`
	case MeasurementDaily:
		query = `DELETE FROM daily_health WHERE source = ?`
	default:
		return 0, fmt.Errorf("measurement %q is not purgeable by source", measurement)
	}
	res, err := s.db.ExecContext(ctx, query, source)
	if err != nil {
		return 0, fmt.Errorf("purge %s/%s: %w", measurement, source, err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkout(row rowScanner) (*models.Workout, error) {
	var w models.Workout
	var startTime, feeling sql.NullString
	var typ, name sql.NullString

	err := row.Scan(&w.Source, &w.SourceID, &w.Date, &startTime, &typ, &name,
		&w.DurationMinutes, &w.DistanceMeters, &w.ElevationGain,
		&w.AvgHR, &w.MaxHR, &w.Calories, &w.Effort, &feeling)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan workout: %w", err)
	}

	if startTime.Valid {
		w.StartTime, _ = time.Parse(time.RFC3339, startTime.String)
	}
	w.Type = typ.String
	w.Name = name.String
	w.Feeling = models.Feeling(feeling.String)
	return &w, nil
}
