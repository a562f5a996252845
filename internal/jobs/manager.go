package jobs

import (
	"context"
	"sync"
	"time"

	"crawlfleet/pkg/logger"
)

// Job represents a periodic background task.
type Job interface {
	Name() string
	Interval() time.Duration
	Run(ctx context.Context) error
}

// FinishableJob is a job that can report it has nothing left to do.
// The manager checks Finished after every run and retires the job when true.
type FinishableJob interface {
	Job
	Finished() bool
}

// AfterFunc waits for the duration to elapse and then sends the current time.
type AfterFunc func(d time.Duration) <-chan time.Time

// Option configures a Manager.
type Option func(*Manager)

// WithAfter replaces the clock used between runs.
func WithAfter(after AfterFunc) Option {
	return func(m *Manager) {
		m.after = after
	}
}

// Manager orchestrates the lifecycle of background jobs.
type Manager struct {
	ctx     context.Context
	cancel  context.CancelFunc
	jobs    []Job
	started bool
	after   AfterFunc

	mu sync.Mutex
	wg sync.WaitGroup
}

// NewManager creates a job manager bound to the provided context.
func NewManager(parent context.Context, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(parent)
	m := &Manager{
		ctx:    ctx,
		cancel: cancel,
		jobs:   make([]Job, 0),
		after:  time.After,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds a job to the manager.
func (m *Manager) Register(job Job) {
	if job == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job)
}

// Start launches all registered jobs.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	jobs := append([]Job(nil), m.jobs...)
	m.mu.Unlock()

	for _, job := range jobs {
		m.wg.Add(1)
		go m.runJob(job)
	}
}

// Stop signals all jobs to stop.
func (m *Manager) Stop() {
	m.cancel()
}

// Wait blocks until all jobs exit.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// runJob runs the job immediately, then sleeps a full interval after each
// run completes. Runs never overlap, however long a run takes.
func (m *Manager) runJob(job Job) {
	defer m.wg.Done()

	interval := job.Interval()
	if interval <= 0 {
		interval = time.Minute
	}
	finishable, canFinish := job.(FinishableJob)

	for {
		m.executeJob(job)

		if canFinish && finishable.Finished() {
			logger.InfoCtx(m.ctx, "job %s finished", job.Name())
			return
		}

		select {
		case <-m.ctx.Done():
			return
		case <-m.after(interval):
		}
	}
}

func (m *Manager) executeJob(job Job) {
	if err := job.Run(m.ctx); err != nil {
		logger.WarnCtx(m.ctx, "background job %s failed: %v", job.Name(), err)
	}
}
