// ABOUTME: Administrative purge: delete every record a source produced.
// ABOUTME: The only deletion path in the tool; requires explicit --yes.
package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harperreed/pulse/internal/models"
	"github.com/harperreed/pulse/internal/store"
)

var (
	purgeSource string
	purgeYes    bool
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all records from one source",
	Long: `Delete every workout and daily record a source produced, then
recompute the derived load series. Overrides are kept; they are yours,
not the source's.

This is the only way pulse deletes data. There is no undo short of
re-syncing the source.

EXAMPLE:

  pulse purge --source strava --yes`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if purgeSource == "" {
			return fmt.Errorf("--source is required")
		}
		if !purgeYes {
			return fmt.Errorf("refusing to purge %q without --yes", purgeSource)
		}
		ctx := cmd.Context()

		workouts, err := db.Purge(ctx, store.MeasurementWorkouts, purgeSource)
		if err != nil {
			return err
		}
		daily, err := db.Purge(ctx, store.MeasurementDaily, purgeSource)
		if err != nil {
			return err
		}

		// The derived series is regenerable, so clear it outright and
		// rebuild from whatever history is left. Clearing first means
		// purging the last source leaves no stale rows behind.
		if err := db.ClearLoadSeries(ctx); err != nil {
			return err
		}
		if start, err := db.EarliestWorkoutDate(ctx); err != nil {
			return err
		} else if start != "" {
			if _, err := eng.LoadSeries(ctx, start, models.FormatDate(time.Now())); err != nil {
				return fmt.Errorf("recomputing load series: %w", err)
			}
		}

		color.Green("purged %s: %d workouts, %d daily records", purgeSource, workouts, daily)
		return nil
	},
}

func init() {
	purgeCmd.Flags().StringVar(&purgeSource, "source", "", "source name to purge")
	purgeCmd.Flags().BoolVar(&purgeYes, "yes", false, "confirm the purge")
	rootCmd.AddCommand(purgeCmd)
}
