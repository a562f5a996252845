package planner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"crawlfleet/internal/model"
	"crawlfleet/pkg/constants"
	"crawlfleet/pkg/interfaces"
	"crawlfleet/pkg/logger"
)

// StartRequest parameters of one start invocation
type StartRequest struct {
	Tag      string
	Workers  int  // Shard count
	Range    int  // Global work range
	Force    bool // Relaunch shards whose worker already has a record
	Fresh    bool // Passed to the pipeline on initial launch only
	Template model.LaunchConfig
	LogsDir  string // Local directory of per-worker combined logs
	Pipeline model.PipelineOptions
	DryRun   bool // Leave local logs untouched
}

// Planned a shard paired with the record it would create
type Planned struct {
	Shard  Shard
	Worker *model.Worker
}

// Plan splits the range and drops shards whose worker already exists in the
// fleet unless force is set.
func Plan(req *StartRequest, fleet *model.Fleet) ([]Planned, error) {
	shards, err := Split(req.Range, req.Workers)
	if err != nil {
		return nil, err
	}

	planned := make([]Planned, 0, len(shards))
	for _, shard := range shards {
		cfg := req.Template
		cfg.StartIndex = shard.Start
		cfg.EndIndex = shard.End
		w := model.NewWorker(req.Tag, shard.ID, cfg)
		if fleet.Has(w.Name) && !req.Force {
			continue
		}
		planned = append(planned, Planned{Shard: shard, Worker: w})
	}
	return planned, nil
}

// NewLaunchRequest builds the runtime request that starts w at startIndex
func NewLaunchRequest(w *model.Worker, logsDir string, opts model.PipelineOptions, startIndex int, fresh bool) *interfaces.LaunchRequest {
	opts.Tag = w.Tag
	opts.ID = w.ID
	opts.StartIndex = startIndex
	opts.Fresh = fresh
	return &interfaces.LaunchRequest{
		Name:    w.Name,
		Image:   w.Config.Image,
		Volume:  w.Config.Volume,
		Args:    model.PipelineArgs(w.Config, opts),
		LogPath: filepath.Join(logsDir, model.LogFileName(w.Tag, w.ID)),
	}
}

// Dispatcher launches planned shards and records them in the fleet
type Dispatcher struct {
	runtime interfaces.Runtime
}

// NewDispatcher creates a dispatcher over the given runtime
func NewDispatcher(runtime interfaces.Runtime) *Dispatcher {
	return &Dispatcher{runtime: runtime}
}

// Start plans and launches the shards of req, returning the updated fleet and
// the names that were launched. A failed launch is logged and its record is
// kept as Stopped so the watchdog can resume it.
// A relaunched worker's previous log is rotated away first, so a completion
// line from the earlier run cannot mark the new run Done.
func (d *Dispatcher) Start(ctx context.Context, fleet *model.Fleet, req *StartRequest) (*model.Fleet, []string, error) {
	planned, err := Plan(req, fleet)
	if err != nil {
		return fleet, nil, err
	}

	var launched []string
	for _, p := range planned {
		launchReq := NewLaunchRequest(p.Worker, req.LogsDir, req.Pipeline, p.Shard.Start, req.Fresh)
		if fleet.Has(p.Worker.Name) && !req.DryRun {
			if err := rotateLog(launchReq.LogPath); err != nil {
				logger.ErrorCtx(ctx, "not relaunching %s: %v", p.Worker.Name, err)
				continue
			}
		}
		if err := d.runtime.Launch(ctx, launchReq); err != nil {
			logger.WarnCtx(ctx, "failed to launch worker %s: %v", p.Worker.Name, err)
			p.Worker.Status = constants.WorkerStatusStopped
			fleet.Put(p.Worker)
			continue
		}

		fleet.Put(p.Worker)
		launched = append(launched, p.Worker.Name)
		logger.InfoCtx(ctx, "started worker %d: %s [%d, %d)", p.Shard.ID, p.Worker.Name, p.Shard.Start, p.Shard.End)
	}

	skipped := req.Workers - len(planned)
	if skipped > 0 {
		logger.InfoCtx(ctx, "%d worker(s) were already started, use --force to relaunch", skipped)
	}
	return fleet, launched, nil
}

// rotateLog moves logPath to logPath.1, replacing an older rotation.
// A missing log is not an error.
func rotateLog(logPath string) error {
	err := os.Rename(logPath, logPath+".1")
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to rotate log %s: %w", logPath, err)
}
