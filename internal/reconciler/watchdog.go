package reconciler

import (
	"context"
	"errors"
	"sync"
	"time"

	"crawlfleet/internal/model"
	"crawlfleet/pkg/logger"
)

// ErrEmptyFleet the watchdog has nothing to supervise
var ErrEmptyFleet = errors.New("fleet is empty, start workers before running the watchdog")

// Watchdog repeats reconciliation cycles until every worker is Done.
// It owns the fleet between cycles; readers get snapshots.
type Watchdog struct {
	reconciler *Reconciler
	interval   time.Duration

	guard func() error // Checked before every cycle; an error retires the watchdog

	mu       sync.RWMutex
	fleet    *model.Fleet
	cycles   int
	finished bool
	err      error
}

// NewWatchdog creates the watchdog job for a non-empty fleet
func NewWatchdog(reconciler *Reconciler, fleet *model.Fleet, interval time.Duration) (*Watchdog, error) {
	if fleet == nil || fleet.Len() == 0 {
		return nil, ErrEmptyFleet
	}
	return &Watchdog{
		reconciler: reconciler,
		interval:   interval,
		fleet:      fleet,
	}, nil
}

// SetGuard installs a check run before every cycle. When it fails, the
// watchdog stops without cycling and Err reports the failure.
func (w *Watchdog) SetGuard(guard func() error) {
	w.guard = guard
}

// Name job name
func (w *Watchdog) Name() string {
	return "watchdog"
}

// Interval sleep between cycles
func (w *Watchdog) Interval() time.Duration {
	return w.interval
}

// Run performs one reconciliation cycle under its own trace id
func (w *Watchdog) Run(ctx context.Context) error {
	ctx = logger.WithTraceID(ctx)

	if w.guard != nil {
		if err := w.guard(); err != nil {
			logger.ErrorCtx(ctx, "watchdog stopped: %v", err)
			w.mu.Lock()
			w.err = err
			w.mu.Unlock()
			return err
		}
	}

	w.mu.RLock()
	fleet := w.fleet.Clone()
	w.mu.RUnlock()

	fleet, done, err := w.reconciler.Cycle(ctx, fleet)

	w.mu.Lock()
	w.fleet = fleet
	w.cycles++
	w.finished = done && err == nil
	cycles := w.cycles
	w.mu.Unlock()

	if err != nil {
		return err
	}
	if done {
		logger.InfoCtx(ctx, "%d cycles completed | crawl is complete", cycles)
	} else {
		logger.InfoCtx(ctx, "%d cycles completed | sleeping until next cycle (%v)", cycles, w.interval)
	}
	return nil
}

// Finished reports whether the watchdog has nothing left to do: the fleet
// is complete or the guard stopped it.
func (w *Watchdog) Finished() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.finished || w.err != nil
}

// Complete reports whether the last cycle found every worker Done
func (w *Watchdog) Complete() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.finished
}

// Err returns the guard failure that stopped the watchdog, if any
func (w *Watchdog) Err() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.err
}

// Cycles number of cycles run so far
func (w *Watchdog) Cycles() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cycles
}

// Fleet returns a snapshot of the fleet as of the last completed cycle
func (w *Watchdog) Fleet() *model.Fleet {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.fleet.Clone()
}

// Snapshot serves the fleet to readers such as the status API
func (w *Watchdog) Snapshot(ctx context.Context) (*model.Fleet, error) {
	return w.Fleet(), nil
}
