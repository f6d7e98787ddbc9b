// Command ingest is the powerdata ingestion CLI.
//
// Usage:
//
//	powerdata-ingest scrape all
//	powerdata-ingest scrape all --fixture 10343 --fixture 10400
//	powerdata-ingest scrape fixture --id 10343
//	powerdata-ingest broken list
//	powerdata-ingest broken retry
//	powerdata-ingest players import --file player_info.json
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/powerdata/internal/app"
	"github.com/albapepper/powerdata/internal/config"
	"github.com/albapepper/powerdata/internal/fixture"
	"github.com/albapepper/powerdata/internal/keys"
)

var logger = app.NewLogger("info")

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:           "powerdata-ingest",
		Short:         "powerdata match statistics ingestion CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(scrapeCmd())
	root.AddCommand(brokenCmd())
	root.AddCommand(playersCmd())

	if err := root.Execute(); err != nil {
		logger.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// scrape command
// --------------------------------------------------------------------------

func scrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Load fixtures from Champion Data",
	}
	cmd.AddCommand(scrapeAllCmd())
	cmd.AddCommand(scrapeFixtureCmd())
	return cmd
}

func scrapeAllCmd() *cobra.Command {
	var only []string
	cmd := &cobra.Command{
		Use:   "all",
		Short: "Load every listed competition, one fixture at a time",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, a *app.App) error {
				runID := fixture.NewRunID()
				result := a.Scheduler.RunAll(ctx, runID, only, progressLogger(runID))
				return reportRun("Scrape finished", result)
			})
		},
	}
	cmd.Flags().StringSliceVar(&only, "fixture", nil, "Restrict to these fixture IDs (repeatable)")
	return cmd
}

func scrapeFixtureCmd() *cobra.Command {
	var fixtureID string
	cmd := &cobra.Command{
		Use:   "fixture",
		Short: "Load a single fixture by ID",
		RunE: func(cmd *cobra.Command, args []string) error {
			if fixtureID == "" {
				return errors.New("--id is required")
			}
			return run(func(ctx context.Context, a *app.App) error {
				target, err := a.Scheduler.Target(ctx, fixtureID)
				if err != nil {
					return err
				}
				result := a.Loader.Load(ctx, target)
				if !result.Success() {
					return errors.Newf("fixture %s failed: %s", fixtureID, result.Error)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&fixtureID, "id", "", "Fixture (league) ID to load")
	return cmd
}

// --------------------------------------------------------------------------
// broken command
// --------------------------------------------------------------------------

func brokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "broken",
		Short: "Inspect and re-drive broken fixtures",
	}
	cmd.AddCommand(brokenListCmd())
	cmd.AddCommand(brokenRetryCmd())
	return cmd
}

func brokenListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the broken-fixture ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, a *app.App) error {
				entries, err := a.Ledger.List(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "no broken fixtures")
					return nil
				}
				for _, e := range entries {
					fmt.Fprintf(out, "%s\tattempts=%d\tupdated=%s\t%s\n",
						e.FixtureID, e.Attempts, e.UpdatedAt.Format(time.RFC3339), e.LastError)
				}
				return nil
			})
		},
	}
}

func brokenRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Reload every fixture in the broken-fixture ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, a *app.App) error {
				runID := fixture.NewRunID()
				result := a.Scheduler.RetryBroken(ctx, runID, progressLogger(runID))
				return reportRun("Broken retry finished", result)
			})
		},
	}
}

// --------------------------------------------------------------------------
// players command
// --------------------------------------------------------------------------

func playersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "players",
		Short: "Maintain the player directory",
	}
	cmd.AddCommand(playersImportCmd())
	return cmd
}

func playersImportCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Upsert a JSON player file into the player directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, a *app.App) error {
				f, err := os.Open(path)
				if err != nil {
					return errors.Wrapf(err, "open %s", path)
				}
				defer f.Close()

				start := time.Now()
				res, err := fixture.ImportPlayers(ctx, a.Store, f, a.Config.PlayerDirectoryTable,
					a.Fields.Player, keys.SquadPolicy(a.Config.SquadKeyPolicy), logger)
				if err != nil {
					return err
				}
				logger.Info("Player import finished",
					"duration", time.Since(start).Round(time.Millisecond),
					"read", res.Read, "written", res.Written, "failed", res.Failed)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&path, "file", "player_info.json", "JSON-lines or JSON-array player file")
	return cmd
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// run handles config loading, component wiring, and context cancellation.
func run(fn func(ctx context.Context, a *app.App) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	logger = app.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func progressLogger(runID string) fixture.Progress {
	return func(done, total int) {
		logger.Info("Run progress", "run_id", runID, "done", done, "total", total)
	}
}

func reportRun(msg string, result fixture.RunResult) error {
	logger.Info(msg, "summary", result.Summary())
	for _, e := range result.Errors {
		logger.Error("fixture error", "error", e)
	}
	switch {
	case result.FixturesBroken > 0:
		return errors.Newf("%d fixture(s) broken", result.FixturesBroken)
	case result.Processed() == 0 && len(result.Errors) > 0:
		return errors.New(result.Errors[0])
	}
	return nil
}
