// ABOUTME: CLI commands for manual value overrides: set, remove, list.
// ABOUTME: Overrides apply at read time and never rewrite source records.
package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harperreed/pulse/internal/models"
)

var overrideCmd = &cobra.Command{
	Use:   "override",
	Short: "Manage manual value overrides",
	Long: `Correct a bad sensor reading without touching the source record.

An override pins a (date, field) to a value. Reads resolve it ahead of
every source; removing it reverts to the source-derived value. The
newest override per (date, field) wins.

Fields: ` + fmt.Sprint(models.OverrideFields) + `

EXAMPLES:

  pulse override set 2026-08-30 sleep_duration_hours 7.5
  pulse override set 2026-08-30 fitness 65     # tuner reference point
  pulse override rm 2026-08-30 sleep_duration_hours
  pulse override list`,
}

var overrideSetCmd = &cobra.Command{
	Use:   "set DATE FIELD VALUE",
	Short: "Set an override",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("invalid value %q: %w", args[2], err)
		}
		o := &models.Override{Date: args[0], Field: args[1], Value: value}
		if err := o.Valid(); err != nil {
			return err
		}
		if err := db.SetOverride(cmd.Context(), o); err != nil {
			return err
		}
		color.Green("override set: %s %s = %g", o.Date, o.Field, o.Value)
		return nil
	},
}

var overrideRmCmd = &cobra.Command{
	Use:     "rm DATE FIELD",
	Aliases: []string{"remove", "delete"},
	Short:   "Remove an override",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := models.ParseDate(args[0]); err != nil {
			return err
		}
		if err := db.RemoveOverride(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		color.Green("override removed: %s %s", args[0], args[1])
		return nil
	},
}

var overrideListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all overrides",
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides, err := db.OverridesRange(cmd.Context(), "0000-01-01", "9999-12-31")
		if err != nil {
			return err
		}
		if len(overrides) == 0 {
			fmt.Println("No overrides set.")
			return nil
		}
		faint := color.New(color.Faint)
		for _, o := range overrides {
			fmt.Printf("%s  %-22s %10g  %s\n",
				o.Date, o.Field, o.Value,
				faint.Sprint(o.CreatedAt.Format(time.RFC3339)))
		}
		return nil
	},
}

func init() {
	overrideCmd.AddCommand(overrideSetCmd, overrideRmCmd, overrideListCmd)
	rootCmd.AddCommand(overrideCmd)
}
