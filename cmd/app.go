package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"crawlfleet/app/handler"
	"crawlfleet/app/router"
	"crawlfleet/internal/jobs"
	"crawlfleet/internal/model"
	"crawlfleet/internal/planner"
	"crawlfleet/internal/reconciler"
	"crawlfleet/pkg/config"
	"crawlfleet/pkg/interfaces"
	"crawlfleet/pkg/logger"
	"crawlfleet/pkg/notification"
	fleetruntime "crawlfleet/pkg/runtime"
	"crawlfleet/pkg/status"
	"crawlfleet/pkg/store"

	"github.com/gin-gonic/gin"
)

// Overrides command-line settings applied on top of the config file
type Overrides struct {
	ConfigPath string
	LogLevel   string
	BaseDir    string
	StatePath  string
	DryRun     bool
}

// Application manages the lifecycle of one command invocation
type Application struct {
	overrides Overrides
	skipFleet bool // Commands that must work on a corrupt state skip loading it

	// Infrastructure components
	config  *config.Config
	store   interfaces.FleetStore
	runtime interfaces.Runtime

	// Core
	fleet      *model.Fleet
	dispatcher *planner.Dispatcher
	reconciler *reconciler.Reconciler

	// Background tasks
	jobsManager *jobs.Manager
	watchdog    *reconciler.Watchdog

	// HTTP server
	httpServer *http.Server

	ctx context.Context
	wg  sync.WaitGroup

	// Cleanup functions, run in reverse registration order
	cleanupFuncs []func()
}

// NewApplication creates a new Application instance
func NewApplication(ctx context.Context, overrides Overrides) *Application {
	return &Application{
		overrides:    overrides,
		ctx:          ctx,
		cleanupFuncs: make([]func(), 0),
	}
}

// Initialize initializes all application components
func (app *Application) Initialize() error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"Configuration", app.initConfig},
		{"Logging", app.initLogger},
		{"Base Directory", app.initBaseDir},
		{"Fleet Store", app.initStore},
		{"Runtime", app.initRuntime},
		{"Fleet State", app.initFleet},
		{"Reconciler", app.initReconciler},
	}

	for _, step := range steps {
		if app.skipFleet && step.name == "Fleet State" {
			continue
		}
		logger.DebugCtx(app.ctx, "Initializing %s...", step.name)
		if err := step.fn(); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
	}
	return nil
}

func (app *Application) initConfig() error {
	cfg, err := config.Load(app.overrides.ConfigPath)
	if err != nil {
		return err
	}
	if app.overrides.LogLevel != "" {
		cfg.Logger.Level = app.overrides.LogLevel
	}
	if app.overrides.BaseDir != "" {
		cfg.BaseDir = app.overrides.BaseDir
	}
	if app.overrides.StatePath != "" {
		cfg.Store.StatePath = app.overrides.StatePath
	}
	if app.overrides.DryRun {
		cfg.DryRun = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	app.config = cfg
	config.GlobalConfig = cfg
	return nil
}

func (app *Application) initLogger() error {
	return logger.Init()
}

func (app *Application) initBaseDir() error {
	return os.MkdirAll(app.config.BaseDir, 0755)
}

func (app *Application) initStore() error {
	s, err := store.CreateFleetStore(app.ctx, app.config)
	if err != nil {
		return err
	}
	app.store = s
	app.registerCleanup(func() {
		if err := s.Close(); err != nil {
			logger.WarnCtx(app.ctx, "failed to close fleet store: %v", err)
		}
	})
	return nil
}

func (app *Application) initRuntime() error {
	rt, err := fleetruntime.CreateRuntime(app.config)
	if err != nil {
		return err
	}
	app.runtime = rt
	return nil
}

// SkipFleetLoad leaves the persisted fleet unread during Initialize
func (app *Application) SkipFleetLoad() {
	app.skipFleet = true
	app.fleet = model.NewFleet()
}

// initFleet loads the persisted fleet; a corrupt state aborts the command
func (app *Application) initFleet() error {
	fleet, err := app.store.Load(app.ctx)
	if err != nil {
		return fmt.Errorf("%w; inspect or restore the backup of %s, or run clean to discard it", err, app.store.Location())
	}
	app.fleet = fleet
	logger.DebugCtx(app.ctx, "loaded %d worker(s) from %s", fleet.Len(), app.store.Location())
	return nil
}

func (app *Application) initReconciler() error {
	app.dispatcher = planner.NewDispatcher(app.runtime)
	app.reconciler = reconciler.NewReconciler(app.runtime, app.store, reconciler.Options{
		BaseDir: app.config.BaseDir,
		LogsDir: app.config.CrawlLogsDir(),
		DryRun:  app.config.DryRun,
	})
	return nil
}

// initWatchdog registers the watchdog job with a fresh job manager.
// Shared stores are locked first so two watchdogs never supervise one fleet.
func (app *Application) initWatchdog(sleep time.Duration) error {
	var lease interfaces.FleetLease
	if locker, ok := app.store.(interfaces.FleetLocker); ok && !app.config.DryRun {
		l, err := locker.LockFleet(app.ctx)
		if err != nil {
			return err
		}
		lease = l
		app.registerCleanup(func() {
			if err := l.Release(context.WithoutCancel(app.ctx)); err != nil {
				logger.WarnCtx(app.ctx, "failed to release watchdog lock: %v", err)
			}
		})
	}

	wd, err := reconciler.NewWatchdog(app.reconciler, app.fleet, sleep)
	if err != nil {
		return err
	}
	if lease != nil {
		wd.SetGuard(leaseGuard(lease))
	}
	app.watchdog = wd
	app.jobsManager = jobs.NewManager(app.ctx)
	app.jobsManager.Register(wd)
	return nil
}

// initHTTPServer builds the status API over source
func (app *Application) initHTTPServer(source handler.FleetSource) {
	gin.SetMode(app.config.Server.Mode)
	engine := gin.New()
	router.NewRouter(handler.NewFleetHandler(source), app.config.Server.APIKey).Setup(engine)

	app.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.Server.Port),
		Handler: engine,
	}
}

// leaseGuard fails once the watchdog lease has been lost
func leaseGuard(lease interfaces.FleetLease) func() error {
	return func() error {
		if !lease.Held() {
			return fmt.Errorf("%w: watchdog lease was lost", interfaces.ErrFleetLocked)
		}
		return nil
	}
}

// RunWatchdog runs the watchdog until the fleet is Done or ctx is cancelled,
// then takes over its final fleet. Losing the lease ends it with an error and
// the fleet is left to the new holder.
func (app *Application) RunWatchdog() error {
	logger.InfoCtx(app.ctx, "Starting watchdog")
	app.jobsManager.Start()
	app.jobsManager.Wait()
	if err := app.watchdog.Err(); err != nil {
		return err
	}
	app.fleet = app.watchdog.Fleet()

	if app.watchdog.Complete() {
		app.notifyComplete()
	}
	return nil
}

// notifyComplete announces a finished fleet; delivery failures are only logged
func (app *Application) notifyComplete() {
	notifier := notification.NewFeishuNotifier(notification.WebhookURL(app.config))
	if !notifier.Enabled() {
		return
	}
	if app.config.DryRun {
		logger.InfoCtx(app.ctx, "[dry-run] not sending completion notification")
		return
	}

	err := notifier.SendFleetCompleteNotification(context.WithoutCancel(app.ctx), &notification.FleetCompleteNotification{
		Location:    app.store.Location(),
		Summary:     status.Build(app.fleet).Summary,
		Cycles:      app.watchdog.Cycles(),
		CompletedAt: time.Now(),
	})
	if err != nil {
		logger.WarnCtx(app.ctx, "failed to send completion notification: %v", err)
	}
}

// Serve runs the HTTP server until ctx is cancelled
func (app *Application) Serve() error {
	errCh := make(chan error, 1)
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		logger.InfoCtx(app.ctx, "HTTP server listening on: %s", app.httpServer.Addr)
		if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case <-app.ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.ErrorCtx(app.ctx, "HTTP server shutdown error: %v", err)
	}
	app.wg.Wait()
	return nil
}

// Save persists the fleet wholesale; one-shot commands end with it
func (app *Application) Save() error {
	if app.config.DryRun {
		logger.InfoCtx(app.ctx, "[dry-run] not saving state to %s", app.store.Location())
		return nil
	}
	if err := app.store.Save(context.WithoutCancel(app.ctx), app.fleet); err != nil {
		return fmt.Errorf("failed to save state to %s: %w", app.store.Location(), err)
	}
	logger.DebugCtx(app.ctx, "saved %d worker(s) to %s", app.fleet.Len(), app.store.Location())
	return nil
}

// Shutdown releases resources in reverse registration order
func (app *Application) Shutdown() {
	for i := len(app.cleanupFuncs) - 1; i >= 0; i-- {
		app.cleanupFuncs[i]()
	}
	_ = logger.Sync()
}

// registerCleanup registers cleanup function
func (app *Application) registerCleanup(cleanup func()) {
	app.cleanupFuncs = append(app.cleanupFuncs, cleanup)
}
