// ABOUTME: Derived load-series persistence: one point per date, always recomputable.
// ABOUTME: Stale until the engine rewrites it; never an independent source of truth.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/harperreed/pulse/internal/models"
)

// UpsertLoadPoint replaces the derived point for its date.
func (s *Store) UpsertLoadPoint(ctx context.Context, lp *models.LoadPoint) error {
	if _, err := models.ParseDate(lp.Date); err != nil {
		return err
	}
	provisional := 0
	if lp.Provisional {
		provisional = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO load_series (date, load, fitness, fatigue, balance, provisional, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			load = excluded.load,
			fitness = excluded.fitness,
			fatigue = excluded.fatigue,
			balance = excluded.balance,
			provisional = excluded.provisional,
			computed_at = excluded.computed_at
	`, lp.Date, lp.Load, lp.Fitness, lp.Fatigue, lp.Balance, provisional,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert load point %s: %w", lp.Date, err)
	}
	return nil
}

// WriteLoadSeries persists a computed series with the store's bounded
// write retries.
func (s *Store) WriteLoadSeries(ctx context.Context, series []models.LoadPoint) error {
	points := make([]Point, 0, len(series))
	for i := range series {
		points = append(points, LoadSeriesPoint(&series[i]))
	}
	return s.WriteBatch(ctx, points)
}

// ClearLoadSeries drops every derived point. The series is fully
// regenerable, so callers clear it rather than leave stale rows behind
// when the raw history it was computed from changes.
func (s *Store) ClearLoadSeries(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM load_series`); err != nil {
		return fmt.Errorf("clear load series: %w", err)
	}
	return nil
}

// LoadSeriesRange returns the persisted derived series for [start, end].
func (s *Store) LoadSeriesRange(ctx context.Context, start, end string) ([]*models.LoadPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, load, fitness, fatigue, balance, provisional
		FROM load_series
		WHERE date >= ? AND date <= ?
		ORDER BY date ASC
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("load series range: %w", err)
	}
	defer rows.Close()

	var series []*models.LoadPoint
	for rows.Next() {
		var lp models.LoadPoint
		var provisional int
		if err := rows.Scan(&lp.Date, &lp.Load, &lp.Fitness, &lp.Fatigue, &lp.Balance, &provisional); err != nil {
			return nil, fmt.Errorf("scan load point: %w", err)
		}
		lp.Provisional = provisional != 0
		series = append(series, &lp)
	}
	return series, rows.Err()
}
