// ABOUTME: Canonical workout record normalized from any source adapter.
// ABOUTME: Identity is (source, source-native id); cross-source dedup is out of scope.
package models

import (
	"fmt"
	"math"
	"time"
)

// Feeling is the subjective post-workout tag a source may attach.
type Feeling string

const (
	FeelingGreat Feeling = "great"
	FeelingGood  Feeling = "good"
	FeelingOkay  Feeling = "okay"
	FeelingRough Feeling = "rough"
)

// Workout is a single exercise session as reported by one source.
// The same physical workout arriving from two sources is stored twice,
// once per source; reconciling those is left to tagging.
type Workout struct {
	Source          string
	SourceID        string
	Date            string // YYYY-MM-DD, subject-local
	StartTime       time.Time
	Type            string
	Name            string
	DurationMinutes float64
	DistanceMeters  float64
	ElevationGain   float64
	AvgHR           float64
	MaxHR           float64
	Calories        int
	Effort          float64
	Feeling         Feeling
}

// Key returns the stable identity key for dedup decisions.
func (w *Workout) Key() string {
	return w.Source + "/" + w.SourceID
}

// Valid reports whether the record carries the minimum field set.
func (w *Workout) Valid() error {
	if w.Source == "" || w.SourceID == "" {
		return fmt.Errorf("workout missing identity (source=%q, source_id=%q)", w.Source, w.SourceID)
	}
	if _, err := ParseDate(w.Date); err != nil {
		return fmt.Errorf("workout %s: %w", w.Key(), err)
	}
	return nil
}

// Equal reports whether two records with the same key carry identical
// field values, which makes a re-fetch a no-op rather than an update.
func (w *Workout) Equal(o *Workout) bool {
	return w.Source == o.Source &&
		w.SourceID == o.SourceID &&
		w.Date == o.Date &&
		w.StartTime.Equal(o.StartTime) &&
		w.Type == o.Type &&
		w.Name == o.Name &&
		w.DurationMinutes == o.DurationMinutes &&
		w.DistanceMeters == o.DistanceMeters &&
		w.ElevationGain == o.ElevationGain &&
		w.AvgHR == o.AvgHR &&
		w.MaxHR == o.MaxHR &&
		w.Calories == o.Calories &&
		w.Effort == o.Effort &&
		w.Feeling == o.Feeling
}

// DeriveEffort fills in the effort value when the source did not supply
// one. Priority: source-reported effort, then power, then heart rate.
func (w *Workout) DeriveEffort(watts float64) float64 {
	if w.Effort > 0 {
		return round1(w.Effort)
	}
	if watts > 0 {
		// TSS-style estimate against a 200 W threshold, capped at 150%.
		intensity := math.Min(watts/200.0, 1.5)
		return round1(w.DurationMinutes * intensity * 1.5)
	}
	intensity := IntensityFactor(w.AvgHR, w.MaxHR)
	multiplier := 1.0
	if w.AvgHR > 0 {
		multiplier = 1 + (w.AvgHR-100)/100
	}
	return round1(w.DurationMinutes * intensity * multiplier)
}

// IntensityFactor estimates workout intensity from heart rate, using
// heart-rate reserve when both values are present and coarse buckets
// otherwise.
func IntensityFactor(avgHR, maxHR float64) float64 {
	const restingHR = 60.0
	if avgHR > 0 && maxHR > 0 {
		if reserve := maxHR - restingHR; reserve > 0 {
			return (avgHR - restingHR) / reserve
		}
	}
	switch {
	case avgHR <= 0:
		return 0.75
	case avgHR < 120:
		return 0.6
	case avgHR < 140:
		return 0.8
	case avgHR < 160:
		return 1.0
	default:
		return 1.2
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
