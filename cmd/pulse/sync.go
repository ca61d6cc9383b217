// ABOUTME: Sync commands: fetch from one source (or all concurrently),
// ABOUTME: merge into the store, recompute load, print the run summary.
package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/harperreed/pulse/internal/merge"
	"github.com/harperreed/pulse/internal/models"
	"github.com/harperreed/pulse/internal/runlock"
	"github.com/harperreed/pulse/internal/source"
)

var (
	syncDryRun    bool
	syncForce     bool
	syncNewerThan string
	syncDays      int
	syncInputDir  string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch and merge data from a source",
	Long: `Fetch workouts and daily health metrics from a source and merge
them into the local database.

Incremental by default: each source resumes from its newest stored
record. Use --force to refetch a full window, --days to bound it.

A re-run is always safe: records identical to what is stored are
skipped, changed records are updated in place, and nothing is ever
double-counted.

EXAMPLES:

  pulse sync strava                      # catch up from Strava
  pulse sync strava --force --days 730   # two-year backfill
  pulse sync fitbit --dry-run            # show what would change
  pulse sync import --input-dir ~/exports
  pulse sync all                         # every configured source`,
}

var syncStravaCmd = &cobra.Command{
	Use:   "strava",
	Short: "Sync Strava activities",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Strava.AccessToken == "" {
			return fmt.Errorf("strava access token not configured (PULSE_STRAVA_ACCESS_TOKEN)")
		}
		src := source.NewStrava(source.StravaConfig{
			AccessToken:       cfg.Strava.AccessToken,
			RequestsPerMinute: cfg.Strava.RequestsPerMinute,
		}, logger)
		return runSync(cmd.Context(), src)
	},
}

var syncFitbitCmd = &cobra.Command{
	Use:   "fitbit",
	Short: "Sync Fitbit daily metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := newFitbit()
		if err != nil {
			return err
		}
		return runSync(cmd.Context(), src)
	},
}

var syncImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import local export files",
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncInputDir == "" {
			return fmt.Errorf("--input-dir is required")
		}
		src := source.NewImporter(source.ImporterConfig{
			InputDir:   syncInputDir,
			SourceName: cfg.Import.SourceName,
			EnableFIT:  cfg.Import.EnableFIT,
		}, logger)
		return runSync(cmd.Context(), src)
	},
}

var syncAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Sync every configured source",
	Long: `Sync every source that has credentials configured, concurrently.
Per-source locks still apply, so an 'all' run overlapping a
single-source run skips that source.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var sources []source.Source
		if cfg.Strava.AccessToken != "" {
			sources = append(sources, source.NewStrava(source.StravaConfig{
				AccessToken:       cfg.Strava.AccessToken,
				RequestsPerMinute: cfg.Strava.RequestsPerMinute,
			}, logger))
		}
		if cfg.Fitbit.ClientID != "" {
			src, err := newFitbit()
			if err != nil {
				color.Yellow("skipping fitbit: %v", err)
			} else {
				sources = append(sources, src)
			}
		}
		if len(sources) == 0 {
			return fmt.Errorf("no sources configured")
		}

		g, ctx := errgroup.WithContext(cmd.Context())
		for _, src := range sources {
			g.Go(func() error {
				if err := runSync(ctx, src); err != nil {
					if errors.Is(err, runlock.ErrLocked) {
						color.Yellow("%s: already running, skipped", src.Name())
						return nil
					}
					return fmt.Errorf("%s: %w", src.Name(), err)
				}
				return nil
			})
		}
		return g.Wait()
	},
}

func newFitbit() (*source.Fitbit, error) {
	if cfg.Fitbit.ClientID == "" || cfg.Fitbit.ClientSecret == "" {
		return nil, fmt.Errorf("fitbit credentials not configured (PULSE_FITBIT_CLIENT_ID / _SECRET)")
	}
	return source.NewFitbit(source.FitbitConfig{
		ClientID:     cfg.Fitbit.ClientID,
		ClientSecret: cfg.Fitbit.ClientSecret,
		TokenFile:    cfg.Fitbit.TokenFile,
	}, logger)
}

// runSync is the one code path every sync takes: lock, fetch, merge,
// recompute, report.
func runSync(ctx context.Context, src source.Source) error {
	lock, err := runlock.Acquire(cfg.LockDir(), src.Name())
	if err != nil {
		return err
	}
	defer lock.Release()

	ctx, cancel := context.WithTimeout(ctx, cfg.OpTimeout.Std())
	defer cancel()

	opts, err := fetchOptions(ctx, src.Name())
	if err != nil {
		return err
	}

	batch, err := src.Fetch(ctx, opts)
	if err != nil {
		return fmt.Errorf("fetching from %s: %w", src.Name(), err)
	}

	merger := merge.New(db, logger, syncDryRun)
	report, err := merger.MergeWorkouts(ctx, src.Name(), ptrWorkouts(batch.Workouts))
	if err != nil {
		return err
	}
	dailyReport, err := merger.MergeDaily(ctx, src.Name(), ptrDaily(batch.Daily))
	if err != nil {
		return err
	}
	report.Inserted += dailyReport.Inserted
	report.Updated += dailyReport.Updated
	report.Skipped += dailyReport.Skipped
	report.Rejected += dailyReport.Rejected + len(batch.Rejected)

	for _, rejectErr := range batch.Rejected {
		logger.Warn("rejected record", "source", src.Name(), "error", rejectErr)
	}

	changed := report.Inserted+report.Updated > 0
	if changed && !syncDryRun {
		if err := recomputeLoad(ctx); err != nil {
			return fmt.Errorf("recomputing load series: %w", err)
		}
	}

	printSummary(src.Name(), report, batch)
	return nil
}

func fetchOptions(ctx context.Context, name string) (source.FetchOptions, error) {
	opts := source.FetchOptions{Mode: source.ModeIncremental, Days: syncDays}
	if syncForce {
		opts.Mode = source.ModeBackfill
		return opts, nil
	}
	if syncNewerThan != "" {
		if _, err := models.ParseDate(syncNewerThan); err != nil {
			return opts, err
		}
		opts.Since = syncNewerThan
		return opts, nil
	}

	since, err := db.LatestWorkoutDate(ctx, name)
	if err != nil {
		return opts, err
	}
	if since == "" {
		// Daily-only sources keep their mark in daily_health.
		since, err = db.LatestDailyDate(ctx, name)
		if err != nil {
			return opts, err
		}
	}
	opts.Since = since
	return opts, nil
}

// recomputeLoad refreshes the persisted load series after new data.
func recomputeLoad(ctx context.Context) error {
	start, err := db.EarliestWorkoutDate(ctx)
	if err != nil {
		return err
	}
	if start == "" {
		return nil
	}
	_, err = eng.LoadSeries(ctx, start, models.FormatDate(time.Now()))
	return err
}

func printSummary(name string, report *merge.Report, batch *source.Batch) {
	green := color.New(color.FgGreen)
	mode := ""
	if syncDryRun {
		mode = color.YellowString("[dry-run] ")
	}
	green.Printf("%s%s: %d inserted, %d updated, %d skipped, %d rejected",
		mode, name, report.Inserted, report.Updated, report.Skipped, report.Rejected)
	if batch.FilesSeen > 0 {
		fmt.Printf(" (%d files, %d parsed, %d skipped)",
			batch.FilesSeen, batch.FilesParsed, batch.FilesSkipped)
	}
	fmt.Printf("  %.1fs\n", report.Duration.Seconds())
}

func ptrWorkouts(ws []models.Workout) []*models.Workout {
	out := make([]*models.Workout, len(ws))
	for i := range ws {
		out[i] = &ws[i]
	}
	return out
}

func ptrDaily(ds []models.DailyMetrics) []*models.DailyMetrics {
	out := make([]*models.DailyMetrics, len(ds))
	for i := range ds {
		out[i] = &ds[i]
	}
	return out
}

func init() {
	syncCmd.PersistentFlags().BoolVar(&syncDryRun, "dry-run", false, "report decisions without writing")
	syncCmd.PersistentFlags().BoolVar(&syncForce, "force", false, "full backfill instead of incremental")
	syncCmd.PersistentFlags().StringVar(&syncNewerThan, "newer-than", "", "fetch records after DATE (YYYY-MM-DD)")
	syncCmd.PersistentFlags().IntVar(&syncDays, "days", 0, "bound the backfill window")
	syncImportCmd.Flags().StringVar(&syncInputDir, "input-dir", "", "directory of export files")

	syncCmd.AddCommand(syncStravaCmd, syncFitbitCmd, syncImportCmd, syncAllCmd)
	rootCmd.AddCommand(syncCmd)
}
