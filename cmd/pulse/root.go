// ABOUTME: Root Cobra command for pulse CLI.
// ABOUTME: Loads config, opens the store, and builds the engine per run.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/harperreed/pulse/internal/config"
	"github.com/harperreed/pulse/internal/engine"
	"github.com/harperreed/pulse/internal/merge"
	"github.com/harperreed/pulse/internal/store"
)

var (
	cfg     *config.Config
	db      *store.Store
	eng     *engine.Engine
	logger  *slog.Logger
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "pulse",
	Short: "Training load and readiness from your own health data",
	Long: `Pulse pulls workouts and daily health metrics from Strava, Fitbit,
and local export files into one SQLite database, reconciles the
sources, and computes training load and readiness.

QUICK START:

  $ pulse sync strava              # Pull new Strava activities
  $ pulse sync import --input-dir ~/exports
  $ pulse load                     # Fitness / fatigue / balance table
  $ pulse score                    # Today's readiness score

HOW IT WORKS:

  Every workout gets a scalar effort (source-reported when available,
  derived from power or heart rate otherwise). Daily effort totals feed
  two exponentially-decayed averages: fitness (42-day horizon) and
  fatigue (7-day horizon). Balance is their difference.

  The readiness score blends HRV, sleep, resting heart rate, and days
  since last hard effort into a 0-100 number.

CORRECTIONS:

  $ pulse override set 2026-08-30 sleep_duration_hours 7.5
  $ pulse override rm 2026-08-30 sleep_duration_hours

  Overrides never rewrite source data; they apply at read time.

CONFIGURATION:

  ~/.config/pulse/config.yaml; credentials can also come from the
  environment (PULSE_STRAVA_ACCESS_TOKEN, PULSE_FITBIT_CLIENT_ID, ...).

DATA STORAGE:

  SQLite at ~/.local/share/pulse/pulse.db. Source records are never
  deleted except by 'pulse purge'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		db, err = store.Open(cfg.DBPath())
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		eng = engine.New(db, engineParams(cfg), priorities(cfg),
			engine.NewCache(cfg.CacheTTL.Std()), logger)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if db != nil {
			return db.Close()
		}
		return nil
	},
}

func engineParams(cfg *config.Config) engine.Params {
	return engine.Params{
		TauLongDays:  cfg.Engine.TauLongDays,
		TauShortDays: cfg.Engine.TauShortDays,
		LoadScale:    cfg.Engine.LoadScale,
		Weights: engine.ScoreWeights{
			HRV:           cfg.Engine.WeightHRV,
			Sleep:         cfg.Engine.WeightSleep,
			RestingHR:     cfg.Engine.WeightRestingHR,
			StrainRecency: cfg.Engine.WeightStrainRecency,
		},
	}
}

func priorities(cfg *config.Config) merge.Priorities {
	return merge.Priorities{
		Default: cfg.Priority.Default,
		Fields:  cfg.Priority.Fields,
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
