// ABOUTME: CLI command printing the readiness score for a date, with the
// ABOUTME: sub-scores that produced it.
package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harperreed/pulse/internal/models"
)

var scoreCmd = &cobra.Command{
	Use:   "score [DATE]",
	Short: "Show the readiness score",
	Long: `Show the readiness score (0-100) for a date, today by default.

The score blends four signals, each scaled to 0-1:

  hrv       today's HRV ranked against the trailing 60 days
  sleep     last night's sleep vs an 8-hour target
  rest_hr   resting heart rate vs the trailing baseline
  strain    full rest days since the last workout (capped at 3)

Signals without data drop out and the rest are reweighted, so a
missing HRV reading never drags the score down by itself.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		date := models.FormatDate(time.Now())
		if len(args) == 1 {
			if _, err := models.ParseDate(args[0]); err != nil {
				return err
			}
			date = args[0]
		}

		r, err := eng.Score(cmd.Context(), date)
		if err != nil {
			return err
		}
		if r == nil {
			fmt.Printf("%s: no data\n", date)
			return nil
		}

		headline := color.New(color.FgGreen, color.Bold)
		switch {
		case r.Score < 40:
			headline = color.New(color.FgRed, color.Bold)
		case r.Score < 70:
			headline = color.New(color.FgYellow, color.Bold)
		}
		headline.Printf("%s  readiness %d\n", r.Date, r.Score)

		faint := color.New(color.Faint)
		sub := func(name string, v *float64) {
			if v == nil {
				faint.Printf("  %-8s --\n", name)
				return
			}
			fmt.Printf("  %-8s %.2f\n", name, *v)
		}
		sub("hrv", r.HRV)
		sub("sleep", r.Sleep)
		sub("rest_hr", r.RestingHR)
		sub("strain", r.StrainRecency)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)
}
