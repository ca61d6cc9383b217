// ABOUTME: Manual override record: a user correction keyed by (date, field).
// ABOUTME: Applied at read time by the engine, never by mutating source records.
package models

import (
	"fmt"
	"time"
)

// Override is a user-supplied value that takes precedence over any
// source-derived value for the same (date, field). It never expires,
// but a newer override on the same key supersedes it.
type Override struct {
	Date      string // YYYY-MM-DD
	Field     string
	Value     float64
	CreatedAt time.Time
}

// Reference fields: manual fitness/fatigue entries are not merged into
// daily metrics, but serve as ground-truth points for parameter tuning.
const (
	FieldFitness = "fitness"
	FieldFatigue = "fatigue"
)

// OverrideFields lists every field a manual override may target.
var OverrideFields = append(append([]string{}, DailyFields...), FieldFitness, FieldFatigue)

// Valid checks the override key before it is persisted.
func (o *Override) Valid() error {
	if _, err := ParseDate(o.Date); err != nil {
		return err
	}
	for _, f := range OverrideFields {
		if o.Field == f {
			return nil
		}
	}
	return fmt.Errorf("unknown override field %q", o.Field)
}
