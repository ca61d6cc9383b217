// ABOUTME: Daily-metrics persistence: whole-row replacement per (source, date).
// ABOUTME: Partial updates are deliberately impossible to avoid mixing stale fields.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/pulse/internal/models"
)

// UpsertDaily replaces the whole (source, date) row atomically. Fields
// absent from the record become NULL even if a previous row had them;
// per-field last-write-wins is not allowed by the merge policy.
func (s *Store) UpsertDaily(ctx context.Context, d *models.DailyMetrics) error {
	if err := d.Valid(); err != nil {
		return err
	}
	query := `
		INSERT INTO daily_health (
			source, date, sleep_duration_hours, hrv_avg, hrv_sd,
			resting_hr, steps, weight, recovery_score, training_load,
			updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, date) DO UPDATE SET
			sleep_duration_hours = excluded.sleep_duration_hours,
			hrv_avg = excluded.hrv_avg,
			hrv_sd = excluded.hrv_sd,
			resting_hr = excluded.resting_hr,
			steps = excluded.steps,
			weight = excluded.weight,
			recovery_score = excluded.recovery_score,
			training_load = excluded.training_load,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		d.Source, d.Date,
		nullable(d.SleepHours), nullable(d.HRVAvg), nullable(d.HRVStdDev),
		nullable(d.RestingHR), nullable(d.Steps), nullable(d.Weight),
		nullable(d.RecoveryScore), nullable(d.LoadRatio),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upsert daily %s/%s: %w", d.Source, d.Date, err)
	}
	return nil
}

// GetDaily fetches one record by identity. Returns (nil, nil) when absent.
func (s *Store) GetDaily(ctx context.Context, source, date string) (*models.DailyMetrics, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT source, date, sleep_duration_hours, hrv_avg, hrv_sd,
		       resting_hr, steps, weight, recovery_score, training_load
		FROM daily_health WHERE source = ? AND date = ?
	`, source, date)

	d, err := scanDaily(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

// DailyRange returns records with date in [start, end] across all
// sources (or one, when source is non-empty), ordered by date then
// source so merge resolution is deterministic.
func (s *Store) DailyRange(ctx context.Context, start, end, source string) ([]*models.DailyMetrics, error) {
	query := `
		SELECT source, date, sleep_duration_hours, hrv_avg, hrv_sd,
		       resting_hr, steps, weight, recovery_score, training_load
		FROM daily_health
		WHERE date >= ? AND date <= ?
	`
	args := []any{start, end}
	if source != "" {
		query += " AND source = ?"
		args = append(args, source)
	}
	query += " ORDER BY date ASC, source ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("daily range: %w", err)
	}
	defer rows.Close()

	var records []*models.DailyMetrics
	for rows.Next() {
		d, err := scanDaily(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, d)
	}
	return records, rows.Err()
}

// LatestDailyDate returns the most recent stored date for a source,
// "" when the source has no records. Incremental fetches resume here.
func (s *Store) LatestDailyDate(ctx context.Context, source string) (string, error) {
	var date sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(date) FROM daily_health WHERE source = ?`, source,
	).Scan(&date)
	if err != nil {
		return "", fmt.Errorf("latest daily date: %w", err)
	}
	return date.String, nil
}

func scanDaily(row rowScanner) (*models.DailyMetrics, error) {
	var d models.DailyMetrics
	var sleep, hrv, hrvSD, rhr, steps, weight, recovery, loadRatio sql.NullFloat64

	err := row.Scan(&d.Source, &d.Date, &sleep, &hrv, &hrvSD,
		&rhr, &steps, &weight, &recovery, &loadRatio)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan daily: %w", err)
	}

	assign := func(name string, v sql.NullFloat64) {
		if v.Valid {
			d.SetField(name, v.Float64)
		}
	}
	assign(models.FieldSleepHours, sleep)
	assign(models.FieldHRVAvg, hrv)
	assign(models.FieldHRVStdDev, hrvSD)
	assign(models.FieldRestingHR, rhr)
	assign(models.FieldSteps, steps)
	assign(models.FieldWeight, weight)
	assign(models.FieldRecoveryScore, recovery)
	assign(models.FieldLoadRatio, loadRatio)
	return &d, nil
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
