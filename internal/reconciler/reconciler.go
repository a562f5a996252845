package reconciler

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"crawlfleet/internal/model"
	"crawlfleet/internal/planner"
	"crawlfleet/pkg/constants"
	"crawlfleet/pkg/interfaces"
	"crawlfleet/pkg/logger"
	"crawlfleet/pkg/status"
)

// Options reconciler settings
type Options struct {
	BaseDir  string                // Synced output directories live here
	LogsDir  string                // Per-worker combined logs
	Pipeline model.PipelineOptions // Pipeline overrides for relaunches
	DryRun   bool                  // Skip local deletions and backups
}

// Reconciler compares the fleet against the runtime and worker artifacts,
// and relaunches stopped workers.
type Reconciler struct {
	runtime interfaces.Runtime
	store   interfaces.FleetStore
	opts    Options
}

// NewReconciler creates a reconciler
func NewReconciler(runtime interfaces.Runtime, store interfaces.FleetStore, opts Options) *Reconciler {
	if opts.LogsDir == "" {
		opts.LogsDir = filepath.Join(opts.BaseDir, constants.CrawlLogsDir)
	}
	return &Reconciler{
		runtime: runtime,
		store:   store,
		opts:    opts,
	}
}

// Sync refreshes every worker's artifacts and status. When clean is set,
// previously synced output directories are removed before copying.
// Failing to list alive workers aborts the sync with the fleet unchanged.
func (r *Reconciler) Sync(ctx context.Context, fleet *model.Fleet, clean bool) (*model.Fleet, error) {
	alive, err := r.runtime.ListAlive(ctx)
	if err != nil {
		return fleet, fmt.Errorf("failed to list alive workers: %w", err)
	}

	for _, name := range fleet.Names() {
		w, err := fleet.Get(name)
		if err != nil {
			return fleet, err
		}
		_, isAlive := alive[name]
		fleet.Put(r.syncWorker(ctx, w, isAlive, clean))
		logger.InfoCtx(ctx, "sync complete for %s", name)
	}
	return fleet, nil
}

// syncWorker runs artifact refresh, then the status pipeline, for one worker
func (r *Reconciler) syncWorker(ctx context.Context, w *model.Worker, alive, clean bool) *model.Worker {
	outputDir := filepath.Join(r.opts.BaseDir, model.OutputDirName(w.Tag, w.ID))
	if clean && !r.opts.DryRun {
		logger.DebugCtx(ctx, "removing %s", outputDir)
		if err := os.RemoveAll(outputDir); err != nil {
			logger.WarnCtx(ctx, "failed to remove %s: %v", outputDir, err)
		}
	}

	r.refreshArtifacts(ctx, w, outputDir)

	obs := Observation{Alive: alive}
	logPath := r.logPath(w)
	if syncer, ok := r.runtime.(interfaces.LogSyncer); ok {
		if err := syncer.SyncLogs(ctx, w.Name, logPath); err != nil {
			logger.DebugCtx(ctx, "failed to sync log of %s: %v", w.Name, err)
		}
	}
	sentinel, err := logHasSentinel(logPath)
	if err != nil {
		logger.WarnCtx(ctx, "failed to read log of %s: %v", w.Name, err)
	}
	obs.Sentinel = sentinel

	next := DeriveStatus(w.Status, obs)
	if next != w.Status {
		logger.InfoCtx(ctx, "worker %s: %s -> %s", w.Name, w.Status, next)
	}
	w.Status = next
	return w
}

// refreshArtifacts copies the worker's output directory and reads progress
// and package count from it. Each failure leaves its field unchanged.
func (r *Reconciler) refreshArtifacts(ctx context.Context, w *model.Worker, outputDir string) {
	src := path.Join(constants.PersistMountPath, model.OutputDirName(w.Tag, w.ID))
	if err := r.runtime.CopyArtifacts(ctx, w.Name, src, r.opts.BaseDir); err != nil {
		logger.DebugCtx(ctx, "no artifacts copied for %s: %v", w.Name, err)
	}

	if _, err := os.Stat(outputDir); err != nil {
		return
	}
	logger.DebugCtx(ctx, "output of %s exists", w.Name)

	if index, err := readProgressIndex(outputDir); err != nil {
		logger.WarnCtx(ctx, "failed to read progress index of %s: %v", w.Name, err)
	} else {
		w.Index = model.IntPtr(index)
	}

	if count, err := readPackageCount(outputDir); err != nil {
		logger.ErrorCtx(ctx, "failed to check number of packages for %s: %v", w.Name, err)
	} else {
		w.Packages = model.IntPtr(count)
	}
}

// Resume relaunches Stopped workers, all of them or only those whose id is
// in ids. With remove set, the old process is stopped and removed first so
// its name can be reused.
func (r *Reconciler) Resume(ctx context.Context, fleet *model.Fleet, ids []int, remove bool) (*model.Fleet, []string) {
	if ids == nil {
		logger.InfoCtx(ctx, "resuming all stopped workers")
	} else {
		logger.InfoCtx(ctx, "resuming workers: %v", ids)
	}

	var resumed []string
	for _, w := range selectWorkers(fleet, ids) {
		if !fleet.IsStopped(w.Name) {
			continue
		}
		if remove {
			r.stopWorker(ctx, w.Name, true)
		}

		start := w.ResumeStartIndex()
		req := planner.NewLaunchRequest(w, r.opts.LogsDir, r.opts.Pipeline, start, false)
		if err := r.runtime.Launch(ctx, req); err != nil {
			logger.WarnCtx(ctx, "failed to resume %s: %v", w.Name, err)
			continue
		}
		_ = fleet.SetStatus(w.Name, constants.WorkerStatusRunning)
		resumed = append(resumed, w.Name)
		logger.InfoCtx(ctx, "resumed worker %s at index %d", w.Name, start)
	}
	return fleet, resumed
}

// Stop stops the selected workers (all when ids is nil), removing them when
// remove is set. Running records become Stopped; Done records stay Done.
func (r *Reconciler) Stop(ctx context.Context, fleet *model.Fleet, ids []int, remove bool) *model.Fleet {
	if ids == nil {
		logger.InfoCtx(ctx, "stopping all workers")
	} else {
		logger.InfoCtx(ctx, "stopping workers: %v", ids)
	}

	for _, w := range selectWorkers(fleet, ids) {
		r.stopWorker(ctx, w.Name, remove)
		if !w.Status.IsTerminal() {
			_ = fleet.SetStatus(w.Name, constants.WorkerStatusStopped)
		}
		if remove {
			logger.InfoCtx(ctx, "stopped and removed %s", w.Name)
		} else {
			logger.InfoCtx(ctx, "stopped %s", w.Name)
		}
	}
	return fleet
}

// stopWorker issues stop (and remove) against the runtime; errors are logged only
func (r *Reconciler) stopWorker(ctx context.Context, name string, remove bool) {
	if err := r.runtime.Stop(ctx, name); err != nil {
		logger.DebugCtx(ctx, "failed to stop %s: %v", name, err)
	}
	if !remove {
		return
	}
	if err := r.runtime.Remove(ctx, name); err != nil {
		logger.DebugCtx(ctx, "failed to remove %s: %v", name, err)
	}
}

// Cycle runs one reconciliation cycle: sync, report, backup, resume with
// remove, then the fleet-wide completion check.
func (r *Reconciler) Cycle(ctx context.Context, fleet *model.Fleet) (*model.Fleet, bool, error) {
	logger.InfoCtx(ctx, "syncing workers...")
	fleet, err := r.Sync(ctx, fleet, false)
	if err != nil {
		return fleet, false, err
	}

	logger.InfoCtx(ctx, "fleet state:\n%s", status.Render(status.Build(fleet)))

	logger.InfoCtx(ctx, "backing up state...")
	if r.opts.DryRun {
		logger.InfoCtx(ctx, "[dry-run] skipping backup to %s", r.store.Location())
	} else if err := r.store.Backup(ctx, fleet); err != nil {
		logger.ErrorCtx(ctx, "failed to back up state to %s: %v", r.store.Location(), err)
	}

	logger.InfoCtx(ctx, "resuming stopped workers...")
	fleet, _ = r.Resume(ctx, fleet, nil, true)

	return fleet, fleet.AllDone(), nil
}

func (r *Reconciler) logPath(w *model.Worker) string {
	return filepath.Join(r.opts.LogsDir, model.LogFileName(w.Tag, w.ID))
}

// selectWorkers lists workers in fleet order, filtered by id when ids is non-nil
func selectWorkers(fleet *model.Fleet, ids []int) []*model.Worker {
	workers := fleet.List()
	if ids == nil {
		return workers
	}
	wanted := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	selected := workers[:0]
	for _, w := range workers {
		if _, ok := wanted[w.ID]; ok {
			selected = append(selected, w)
		}
	}
	return selected
}
