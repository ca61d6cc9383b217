// ABOUTME: Manual override persistence keyed by (date, field).
// ABOUTME: A newer override supersedes the old one; removal reverts to source data.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/pulse/internal/models"
)

// SetOverride stores or supersedes the override for its (date, field) key.
func (s *Store) SetOverride(ctx context.Context, o *models.Override) error {
	if err := o.Valid(); err != nil {
		return err
	}
	createdAt := o.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO manual_values (date, field, value, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(date, field) DO UPDATE SET
			value = excluded.value,
			created_at = excluded.created_at
	`, o.Date, o.Field, o.Value, createdAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("set override %s/%s: %w", o.Date, o.Field, err)
	}
	return nil
}

// GetOverride fetches one override. Returns (nil, nil) when absent.
func (s *Store) GetOverride(ctx context.Context, date, field string) (*models.Override, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT date, field, value, created_at FROM manual_values
		WHERE date = ? AND field = ?
	`, date, field)
	o, err := scanOverride(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return o, err
}

// RemoveOverride deletes an override, reverting the engine to the
// source-resolved value for that (date, field).
func (s *Store) RemoveOverride(ctx context.Context, date, field string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM manual_values WHERE date = ? AND field = ?`, date, field)
	if err != nil {
		return fmt.Errorf("remove override %s/%s: %w", date, field, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove override %s/%s: %w", date, field, err)
	}
	if affected == 0 {
		return fmt.Errorf("no override for %s/%s", date, field)
	}
	return nil
}

// OverridesRange returns overrides with date in [start, end], ordered
// by date then field.
func (s *Store) OverridesRange(ctx context.Context, start, end string) ([]*models.Override, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, field, value, created_at FROM manual_values
		WHERE date >= ? AND date <= ?
		ORDER BY date ASC, field ASC
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("overrides range: %w", err)
	}
	defer rows.Close()

	var overrides []*models.Override
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

func scanOverride(row rowScanner) (*models.Override, error) {
	var o models.Override
	var createdAt string
	err := row.Scan(&o.Date, &o.Field, &o.Value, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan override: %w", err)
	}
	o.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &o, nil
}
