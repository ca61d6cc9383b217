// ABOUTME: Parameter tuner: exhaustive grid search fitting the recurrence
// ABOUTME: constants and load scale to operator-recorded reference points.
package tuner

import (
	"context"
	"fmt"
	"math"

	"github.com/harperreed/pulse/internal/engine"
)

// Grid bounds. The search is exhaustive and deterministic: every
// combination is scored, in fixed order.
const (
	tauLongMin  = 30
	tauLongMax  = 50
	tauShortMin = 4
	tauShortMax = 10

	scaleMin  = 0.80
	scaleMax  = 1.80
	scaleStep = 0.05
)

// MinReferences is the smallest reference set the fit accepts.
const MinReferences = 2

// Reference is an operator-recorded truth point: the fitness and/or
// fatigue value the series should pass through on a date.
type Reference struct {
	Date    string
	Fitness *float64
	Fatigue *float64
}

// Result is the winning parameter set and its objective value.
type Result struct {
	Params      engine.Params
	Objective   float64
	Evaluations int
}

// Fit searches the full parameter grid for the combination minimizing
// squared error against refs, computed over the given raw (unscaled)
// daily load series. Ties go to the candidate closest to prior in
// normalized grid distance, then to earlier grid order. The dates and
// loads must be the gap-free series the engine would compute over.
func Fit(ctx context.Context, dates []string, loads []float64, refs []Reference, prior engine.Params) (*Result, error) {
	if len(refs) < MinReferences {
		return nil, fmt.Errorf("need at least %d reference points, have %d", MinReferences, len(refs))
	}
	refIdx, err := indexReferences(dates, refs)
	if err != nil {
		return nil, err
	}

	best := Result{Objective: math.Inf(1)}
	bestDist := math.Inf(1)

	for tauLong := tauLongMin; tauLong <= tauLongMax; tauLong++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for tauShort := tauShortMin; tauShort <= tauShortMax; tauShort++ {
			for step := 0; ; step++ {
				scale := scaleMin + float64(step)*scaleStep
				if scale > scaleMax+scaleStep/2 {
					break
				}
				candidate := prior
				candidate.TauLongDays = float64(tauLong)
				candidate.TauShortDays = float64(tauShort)
				candidate.LoadScale = scale

				obj := objective(loads, refIdx, candidate)
				best.Evaluations++

				dist := gridDistance(candidate, prior)
				if obj < best.Objective || (obj == best.Objective && dist < bestDist) {
					best.Params = candidate
					best.Objective = obj
					bestDist = dist
				}
			}
		}
	}
	return &best, nil
}

type refPoint struct {
	index   int
	fitness *float64
	fatigue *float64
}

func indexReferences(dates []string, refs []Reference) ([]refPoint, error) {
	byDate := make(map[string]int, len(dates))
	for i, d := range dates {
		byDate[d] = i
	}
	out := make([]refPoint, 0, len(refs))
	for _, r := range refs {
		i, ok := byDate[r.Date]
		if !ok {
			return nil, fmt.Errorf("reference date %s is outside the load series", r.Date)
		}
		if r.Fitness == nil && r.Fatigue == nil {
			return nil, fmt.Errorf("reference on %s carries no value", r.Date)
		}
		out = append(out, refPoint{index: i, fitness: r.Fitness, fatigue: r.Fatigue})
	}
	return out, nil
}

// objective runs the recurrence once per candidate and sums squared
// error at the reference indices.
func objective(loads []float64, refs []refPoint, p engine.Params) float64 {
	kLong := engine.Decay(p.TauLongDays)
	kShort := engine.Decay(p.TauShortDays)

	want := make(map[int]refPoint, len(refs))
	for _, r := range refs {
		want[r.index] = r
	}

	var sse float64
	var fitness, fatigue float64
	for i, raw := range loads {
		load := raw * p.LoadScale
		fitness = fitness*(1-kLong) + load*kLong
		fatigue = fatigue*(1-kShort) + load*kShort
		if r, ok := want[i]; ok {
			if r.fitness != nil {
				sse += (fitness - *r.fitness) * (fitness - *r.fitness)
			}
			if r.fatigue != nil {
				sse += (fatigue - *r.fatigue) * (fatigue - *r.fatigue)
			}
		}
	}
	return sse
}

// gridDistance measures how far a candidate sits from the prior,
// each axis normalized by its grid span.
func gridDistance(candidate, prior engine.Params) float64 {
	dl := (candidate.TauLongDays - prior.TauLongDays) / (tauLongMax - tauLongMin)
	ds := (candidate.TauShortDays - prior.TauShortDays) / (tauShortMax - tauShortMin)
	dc := (candidate.LoadScale - prior.LoadScale) / (scaleMax - scaleMin)
	return dl*dl + ds*ds + dc*dc
}
