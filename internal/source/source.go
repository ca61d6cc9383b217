// ABOUTME: Source adapter contract and shared fetch types: every upstream
// ABOUTME: (API or file export) yields canonical records plus reject counts.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/harperreed/pulse/internal/models"
)

// FetchMode selects between incremental catch-up and full backfill.
type FetchMode int

const (
	// ModeIncremental fetches from the stored high-water mark.
	ModeIncremental FetchMode = iota
	// ModeBackfill refetches the whole requested window.
	ModeBackfill
)

// FetchOptions bounds a fetch. Since is the exclusive high-water mark
// for incremental runs ("" means no history yet); Days caps the
// lookback window for backfills.
type FetchOptions struct {
	Mode  FetchMode
	Since string
	Days  int
}

// Batch is one fetch's yield. Rejected carries per-record parse
// failures; the fetch itself still succeeded.
type Batch struct {
	Workouts []models.Workout
	Daily    []models.DailyMetrics
	Rejected []error

	// File importer bookkeeping, zero for API sources.
	FilesSeen    int
	FilesParsed  int
	FilesSkipped int
}

// Source is one upstream of health data.
type Source interface {
	Name() string
	Fetch(ctx context.Context, opts FetchOptions) (*Batch, error)
}

// ErrUnavailable marks a transient upstream failure: the caller may
// retry the whole run later without losing anything.
var ErrUnavailable = errors.New("source unavailable")

// UnavailableError wraps a transient failure with its source.
type UnavailableError struct {
	Source string
	Err    error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Source, e.Err)
}

func (e *UnavailableError) Unwrap() error { return ErrUnavailable }

// ParseError is a per-record failure. The run continues; the record
// is counted as rejected.
type ParseError struct {
	Source string
	Record string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: cannot parse %s: %v", e.Source, e.Record, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
