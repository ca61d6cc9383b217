// ABOUTME: Dedup & merge layer: decides insert/update/skip/reject per record.
// ABOUTME: Dry-run computes the exact same decisions without persisting.
package merge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/pulse/internal/models"
	"github.com/harperreed/pulse/internal/store"
)

// Decision classifies one incoming record against stored state.
type Decision int

const (
	DecisionInsert Decision = iota
	DecisionUpdate
	DecisionDuplicate
	DecisionReject
)

func (d Decision) String() string {
	switch d {
	case DecisionInsert:
		return "insert"
	case DecisionUpdate:
		return "update"
	case DecisionDuplicate:
		return "duplicate"
	default:
		return "reject"
	}
}

// Report is the operator-visible outcome of one merge run. Silent
// partial success is disallowed: every run ends with one of these.
type Report struct {
	RunID     string
	Source    string
	DryRun    bool
	StartedAt time.Time
	Duration  time.Duration
	Inserted  int
	Updated   int
	Skipped   int
	Rejected  int
}

// Total returns the number of records considered.
func (r *Report) Total() int {
	return r.Inserted + r.Updated + r.Skipped + r.Rejected
}

func (r *Report) String() string {
	mode := "write"
	if r.DryRun {
		mode = "dry-run"
	}
	return fmt.Sprintf("[%s] %s: %d inserted, %d updated, %d duplicate, %d rejected",
		mode, r.Source, r.Inserted, r.Updated, r.Skipped, r.Rejected)
}

// Merger applies merge decisions for one source's records.
type Merger struct {
	store  *store.Store
	log    *slog.Logger
	dryRun bool
}

// New creates a Merger. With dryRun set, decisions are computed and
// reported identically but nothing is persisted.
func New(s *store.Store, log *slog.Logger, dryRun bool) *Merger {
	if log == nil {
		log = slog.Default()
	}
	return &Merger{store: s, log: log, dryRun: dryRun}
}

// MergeWorkouts decides and applies each workout record. Identity keys
// are source-qualified, so concurrent runs for different sources write
// disjoint keys.
func (m *Merger) MergeWorkouts(ctx context.Context, source string, workouts []*models.Workout) (*Report, error) {
	report := m.newReport(source)
	defer report.finish()

	var points []store.Point
	for _, w := range workouts {
		if err := w.Valid(); err != nil {
			report.Rejected++
			m.log.Warn("rejecting malformed workout", "source", source, "error", err)
			continue
		}
		existing, err := m.store.GetWorkout(ctx, w.Source, w.SourceID)
		if err != nil {
			return report, fmt.Errorf("merge workouts: %w", err)
		}

		decision := DecisionInsert
		switch {
		case existing == nil:
			report.Inserted++
		case existing.Equal(w):
			decision = DecisionDuplicate
			report.Skipped++
		default:
			decision = DecisionUpdate
			report.Updated++
		}

		if m.dryRun || decision == DecisionDuplicate {
			continue
		}
		points = append(points, store.WorkoutPoint(w))
	}
	// WriteBatch retries each point and names whatever stayed unwritten.
	if err := m.store.WriteBatch(ctx, points); err != nil {
		return report, fmt.Errorf("merge workouts: %w", err)
	}
	return report, nil
}

// MergeDaily decides and applies daily-metrics records for one source.
// A later run for the same (source, date) replaces the whole stored
// record; per-field mixing of runs is deliberately not possible.
func (m *Merger) MergeDaily(ctx context.Context, source string, records []*models.DailyMetrics) (*Report, error) {
	report := m.newReport(source)
	defer report.finish()

	var points []store.Point
	for _, d := range records {
		if err := d.Valid(); err != nil {
			report.Rejected++
			m.log.Warn("rejecting malformed daily record", "source", source, "error", err)
			continue
		}
		existing, err := m.store.GetDaily(ctx, d.Source, d.Date)
		if err != nil {
			return report, fmt.Errorf("merge daily: %w", err)
		}

		decision := DecisionInsert
		switch {
		case existing == nil:
			report.Inserted++
		case dailyEqual(existing, d):
			decision = DecisionDuplicate
			report.Skipped++
		default:
			decision = DecisionUpdate
			report.Updated++
		}

		if m.dryRun || decision == DecisionDuplicate {
			continue
		}
		points = append(points, store.DailyPoint(d))
	}
	if err := m.store.WriteBatch(ctx, points); err != nil {
		return report, fmt.Errorf("merge daily: %w", err)
	}
	return report, nil
}

func (m *Merger) newReport(source string) *Report {
	return &Report{
		RunID:     uuid.New().String(),
		Source:    source,
		DryRun:    m.dryRun,
		StartedAt: time.Now(),
	}
}

func (r *Report) finish() {
	r.Duration = time.Since(r.StartedAt)
}

func dailyEqual(a, b *models.DailyMetrics) bool {
	for _, f := range models.DailyFields {
		av, bv := a.Field(f), b.Field(f)
		switch {
		case av == nil && bv == nil:
		case av == nil || bv == nil:
			return false
		case *av != *bv:
			return false
		}
	}
	return true
}
