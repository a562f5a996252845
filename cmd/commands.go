package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"crawlfleet/app/handler"
	"crawlfleet/internal/model"
	"crawlfleet/internal/planner"
	"crawlfleet/pkg/constants"
	"crawlfleet/pkg/logger"
	"crawlfleet/pkg/status"

	"github.com/spf13/cobra"
)

// settleDelay gives freshly launched workers time to show up as alive
var settleDelay = 2 * time.Second

// newRootCommand builds the crawlfleet command tree
func newRootCommand() *cobra.Command {
	var overrides Overrides

	rootCmd := &cobra.Command{
		Use:   "crawlfleet",
		Short: "Run and supervise a fleet of sharded crawl workers",
		Long: `crawlfleet splits a global package range into shards, launches one worker
per shard on a container runtime, and keeps the fleet state durable across
restarts. The watchdog syncs worker output, resumes stopped workers from their
last progress index and exits once every worker logs completion.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&overrides.ConfigPath, "config", "", "config file (default $CONFIG_PATH or config/config.yaml)")
	flags.StringVar(&overrides.LogLevel, "log-level", "", "log level: debug, info, warn, error, quiet")
	flags.StringVar(&overrides.BaseDir, "base-dir", "", "directory for synced output, logs and state")
	flags.StringVar(&overrides.StatePath, "state", "", "state file for the file store (default <base-dir>/state.json)")
	flags.BoolVar(&overrides.DryRun, "dry-run", false, "log runtime actions without executing them")

	rootCmd.AddCommand(
		newStartCommand(&overrides),
		newResumeCommand(&overrides),
		newSyncCommand(&overrides),
		newStopCommand(&overrides),
		newStatusCommand(&overrides),
		newCleanCommand(&overrides),
		newWatchdogCommand(&overrides),
		newServeCommand(&overrides),
	)
	return rootCmd
}

// runApp initializes an application, runs fn and, when save is set,
// persists the fleet afterwards.
func runApp(cmd *cobra.Command, overrides *Overrides, save bool, fn func(app *Application) error) error {
	app := NewApplication(cmd.Context(), *overrides)
	return runInitialized(app, save, fn)
}

func runInitialized(app *Application, save bool, fn func(app *Application) error) error {
	defer app.Shutdown()
	if err := app.Initialize(); err != nil {
		return err
	}
	if err := fn(app); err != nil {
		return err
	}
	if save {
		return app.Save()
	}
	return nil
}

func newStartCommand(overrides *Overrides) *cobra.Command {
	var (
		req          planner.StartRequest
		analysisOnly string
		minNumDeps   int
		minDepth     int
		policies     string
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Split the range into shards and launch one worker per shard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("analysis-only") {
				req.Template.AnalysisOnly = model.StringPtr(analysisOnly)
			}
			if cmd.Flags().Changed("min-num-deps") {
				req.Template.MinNumDeps = model.IntPtr(minNumDeps)
			}
			if cmd.Flags().Changed("min-depth") {
				req.Template.MinDepth = model.IntPtr(minDepth)
			}
			if cmd.Flags().Changed("policies") {
				req.Template.Policies = model.StringPtr(policies)
			}
			if _, err := planner.Split(req.Range, req.Workers); err != nil {
				return err
			}

			return runApp(cmd, overrides, true, func(app *Application) error {
				req.LogsDir = app.config.CrawlLogsDir()
				req.DryRun = app.config.DryRun
				fleet, launched, err := app.dispatcher.Start(app.ctx, app.fleet, &req)
				app.fleet = fleet
				if err != nil {
					return err
				}
				if len(launched) > 0 {
					logAlive(app, settleDelay)
				}
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.IntVarP(&req.Workers, "workers", "n", 0, "number of workers (shards)")
	f.StringVar(&req.Template.Image, "image", "", "worker image")
	f.StringVar(&req.Template.Volume, "volume", "", "volume mounted at /persist in every worker")
	f.IntVar(&req.Template.Count, "count", 0, "target package count per worker")
	f.StringVar(&req.Tag, "tag", "", "experiment tag, part of worker and file names")
	f.IntVar(&req.Range, "range", constants.DefaultRange, "global work range split across workers")
	f.BoolVar(&req.Fresh, "fresh", false, "pass --fresh to the pipeline")
	f.BoolVar(&req.Force, "force", false, "relaunch workers that already have a record")
	f.BoolVar(&req.Template.OnlyCacheIncluded, "only-cache-included", false, "only cache packages that pass gathering filters")
	f.StringVar(&analysisOnly, "analysis-only", "", "only analyze packages from this list")
	f.IntVar(&minNumDeps, "min-num-deps", 0, "minimum dependency count threshold")
	f.IntVar(&minDepth, "min-depth", 0, "minimum depth threshold")
	f.StringVar(&policies, "policies", "", "taint policy specification")
	f.BoolVar(&req.Template.RequireSinkHit, "require-sink-hit", false, "pipeline: require a sink hit")
	f.BoolVar(&req.Template.FailOnOutputError, "fail-on-output-error", false, "pipeline: fail on output errors")
	f.BoolVar(&req.Template.FailOnNonZeroExit, "fail-on-non-zero-exit", false, "pipeline: fail on non-zero exit")
	for _, name := range []string{"workers", "image", "volume", "count"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

// logAlive waits for launched workers to settle, then logs the alive snapshot
func logAlive(app *Application, delay time.Duration) {
	select {
	case <-app.ctx.Done():
		return
	case <-time.After(delay):
	}
	alive, err := app.runtime.ListAlive(app.ctx)
	if err != nil {
		logger.DebugCtx(app.ctx, "failed to list alive workers: %v", err)
		return
	}
	names := make([]string, 0, len(alive))
	for name := range alive {
		names = append(names, name)
	}
	sort.Strings(names)
	logger.DebugCtx(app.ctx, "alive workers:\n%s", strings.Join(names, "\n"))
}

func newResumeCommand(overrides *Overrides) *cobra.Command {
	var (
		ids    []int
		remove bool
	)

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Relaunch stopped workers from their last progress index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(cmd, overrides, true, func(app *Application) error {
				app.fleet, _ = app.reconciler.Resume(app.ctx, app.fleet, selectedIDs(cmd, ids), remove)
				return nil
			})
		},
	}

	cmd.Flags().IntSliceVar(&ids, "containers", nil, "worker ids to resume (default all)")
	cmd.Flags().BoolVar(&remove, "rm", false, "stop and remove the old worker before relaunching")
	return cmd
}

func newSyncCommand(overrides *Overrides) *cobra.Command {
	var clean bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Copy worker output and refresh progress and status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(cmd, overrides, true, func(app *Application) error {
				fleet, err := app.reconciler.Sync(app.ctx, app.fleet, clean)
				app.fleet = fleet
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&clean, "clean", false, "remove previously synced output directories first")
	return cmd
}

func newStopCommand(overrides *Overrides) *cobra.Command {
	var (
		ids    []int
		remove bool
	)

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(cmd, overrides, true, func(app *Application) error {
				app.fleet = app.reconciler.Stop(app.ctx, app.fleet, selectedIDs(cmd, ids), remove)
				return nil
			})
		},
	}

	cmd.Flags().IntSliceVar(&ids, "containers", nil, "worker ids to stop (default all)")
	cmd.Flags().BoolVar(&remove, "rm", false, "also remove the stopped workers")
	return cmd
}

func newStatusCommand(overrides *Overrides) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the fleet state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(cmd, overrides, false, func(app *Application) error {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), status.Render(status.Build(app.fleet)))
				return err
			})
		},
	}
}

func newCleanCommand(overrides *Overrides) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Delete the persisted fleet state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := NewApplication(cmd.Context(), *overrides)
			app.SkipFleetLoad()
			return runInitialized(app, false, func(app *Application) error {
				if app.config.DryRun {
					logger.InfoCtx(app.ctx, "[dry-run] not removing %s", app.store.Location())
					return nil
				}
				if err := app.store.Clear(app.ctx); err != nil {
					return err
				}
				logger.InfoCtx(app.ctx, "removed %s", app.store.Location())
				return nil
			})
		},
	}
}

func newWatchdogCommand(overrides *Overrides) *cobra.Command {
	var sleepMinutes int

	cmd := &cobra.Command{
		Use:   "watchdog",
		Short: "Sync, back up and resume in cycles until every worker is done",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(cmd, overrides, true, func(app *Application) error {
				if err := app.initWatchdog(sleepDuration(cmd, app, sleepMinutes)); err != nil {
					return err
				}
				return app.RunWatchdog()
			})
		},
	}

	cmd.Flags().IntVar(&sleepMinutes, "sleep-time", 0, "minutes between cycles (default from config, 60)")
	return cmd
}

func newServeCommand(overrides *Overrides) *cobra.Command {
	var (
		watch        bool
		sleepMinutes int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the fleet status API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(cmd, overrides, watch, func(app *Application) error {
				if !watch {
					app.initHTTPServer(handler.StoreSource{Store: app.store})
					return app.Serve()
				}

				if err := app.initWatchdog(sleepDuration(cmd, app, sleepMinutes)); err != nil {
					return err
				}
				app.initHTTPServer(app.watchdog)

				watchErr := make(chan error, 1)
				go func() {
					watchErr <- app.RunWatchdog()
				}()
				err := app.Serve()
				app.jobsManager.Stop()
				if werr := <-watchErr; werr != nil && err == nil {
					err = werr
				}
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "run the watchdog alongside the API")
	cmd.Flags().IntVar(&sleepMinutes, "sleep-time", 0, "minutes between watchdog cycles (default from config, 60)")
	return cmd
}

// selectedIDs returns nil (all workers) unless --containers was given
func selectedIDs(cmd *cobra.Command, ids []int) []int {
	if !cmd.Flags().Changed("containers") {
		return nil
	}
	if ids == nil {
		return []int{}
	}
	return ids
}

func sleepDuration(cmd *cobra.Command, app *Application, minutes int) time.Duration {
	if !cmd.Flags().Changed("sleep-time") || minutes <= 0 {
		minutes = app.config.Watchdog.SleepMinutes
	}
	return time.Duration(minutes) * time.Minute
}

