// ABOUTME: CLI command printing the training-load table: daily load,
// ABOUTME: fitness, fatigue, balance, and the form status per date.
package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harperreed/pulse/internal/models"
)

var (
	loadFrom string
	loadTo   string
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Show the training load series",
	Long: `Show daily training load with the derived fitness, fatigue, and
balance values.

  fitness   42-day decayed average of daily load (chronic)
  fatigue   7-day decayed average (acute)
  balance   fitness - fatigue; positive means fresher than fit

Rows inside the initial ramp-up window are marked '~': the math has
not seen enough history yet for steady-state values.

EXAMPLES:

  pulse load                          # last 28 days
  pulse load --from 2026-06-01 --to 2026-08-31`,
	RunE: func(cmd *cobra.Command, args []string) error {
		to := loadTo
		if to == "" {
			to = models.FormatDate(time.Now())
		}
		from := loadFrom
		if from == "" {
			t, err := models.ParseDate(to)
			if err != nil {
				return err
			}
			from = models.FormatDate(t.AddDate(0, 0, -27))
		}
		if _, err := models.ParseDate(from); err != nil {
			return err
		}

		series, err := eng.LoadSeries(cmd.Context(), from, to)
		if err != nil {
			return err
		}
		if len(series) == 0 {
			fmt.Println("No data in range.")
			return nil
		}

		faint := color.New(color.Faint)
		fmt.Printf("%-12s %7s %8s %8s %8s  %s\n",
			"DATE", "LOAD", "FITNESS", "FATIGUE", "BALANCE", "STATUS")
		for _, lp := range series {
			mark := " "
			if lp.Provisional {
				mark = "~"
			}
			status := models.FormStatus(lp.Balance)
			fmt.Printf("%-12s %7.1f %8.1f %8.1f %8.1f %s %s\n",
				lp.Date, lp.Load, lp.Fitness, lp.Fatigue, lp.Balance,
				mark, faint.Sprint(status))
		}
		return nil
	},
}

func init() {
	loadCmd.Flags().StringVar(&loadFrom, "from", "", "start date (YYYY-MM-DD)")
	loadCmd.Flags().StringVar(&loadTo, "to", "", "end date (YYYY-MM-DD)")
	rootCmd.AddCommand(loadCmd)
}
