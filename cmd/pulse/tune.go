// ABOUTME: CLI command running the parameter grid search against manual
// ABOUTME: fitness/fatigue reference points; --apply writes the winner.
package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harperreed/pulse/internal/models"
	"github.com/harperreed/pulse/internal/tuner"
)

var tuneApply bool

var tuneCmd = &cobra.Command{
	Use:   "tune",
	Short: "Fit load parameters to reference points",
	Long: `Search the parameter grid (time constants and load scale) for the
combination that best reproduces your recorded reference points.

Reference points are fitness/fatigue overrides:

  pulse override set 2026-07-01 fitness 62
  pulse override set 2026-08-15 fatigue 48

At least two are required. The search is exhaustive and deterministic;
ties go to the candidate closest to the current parameters.

Nothing changes unless you pass --apply, which writes the winning
parameters to the config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		start, err := db.EarliestWorkoutDate(ctx)
		if err != nil {
			return err
		}
		if start == "" {
			return fmt.Errorf("no workout history to tune against")
		}
		end := models.FormatDate(time.Now())

		dates, loads, err := eng.DailyLoads(ctx, start, end)
		if err != nil {
			return err
		}
		// DailyLoads already applied the configured scale; the tuner
		// searches its own, so feed it raw values.
		if s := cfg.Engine.LoadScale; s != 0 && s != 1 {
			for i := range loads {
				loads[i] /= s
			}
		}

		refs, err := referencePoints(cmd)
		if err != nil {
			return err
		}

		result, err := tuner.Fit(ctx, dates, loads, refs, eng.Params())
		if err != nil {
			return err
		}

		fmt.Printf("evaluated %d candidates over %d reference points\n",
			result.Evaluations, len(refs))
		fmt.Printf("  tau_long   %.0f d  (was %.0f)\n", result.Params.TauLongDays, cfg.Engine.TauLongDays)
		fmt.Printf("  tau_short  %.0f d  (was %.0f)\n", result.Params.TauShortDays, cfg.Engine.TauShortDays)
		fmt.Printf("  scale      %.2f   (was %.2f)\n", result.Params.LoadScale, cfg.Engine.LoadScale)
		fmt.Printf("  error      %.2f\n", result.Objective)

		if !tuneApply {
			color.Yellow("dry run; pass --apply to save these parameters")
			return nil
		}
		cfg.Engine.TauLongDays = result.Params.TauLongDays
		cfg.Engine.TauShortDays = result.Params.TauShortDays
		cfg.Engine.LoadScale = result.Params.LoadScale
		if err := cfg.Save(); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}
		color.Green("parameters applied")
		return nil
	},
}

// referencePoints gathers fitness/fatigue overrides as tuner input.
func referencePoints(cmd *cobra.Command) ([]tuner.Reference, error) {
	overrides, err := db.OverridesRange(cmd.Context(), "0000-01-01", "9999-12-31")
	if err != nil {
		return nil, err
	}

	byDate := make(map[string]*tuner.Reference)
	var order []string
	for _, o := range overrides {
		if o.Field != models.FieldFitness && o.Field != models.FieldFatigue {
			continue
		}
		ref, ok := byDate[o.Date]
		if !ok {
			ref = &tuner.Reference{Date: o.Date}
			byDate[o.Date] = ref
			order = append(order, o.Date)
		}
		v := o.Value
		if o.Field == models.FieldFitness {
			ref.Fitness = &v
		} else {
			ref.Fatigue = &v
		}
	}

	refs := make([]tuner.Reference, 0, len(order))
	for _, d := range order {
		refs = append(refs, *byDate[d])
	}
	if len(refs) < tuner.MinReferences {
		return nil, fmt.Errorf("need at least %d fitness/fatigue overrides as reference points, have %d",
			tuner.MinReferences, len(refs))
	}
	return refs, nil
}

func init() {
	tuneCmd.Flags().BoolVar(&tuneApply, "apply", false, "write winning parameters to config")
	rootCmd.AddCommand(tuneCmd)
}
