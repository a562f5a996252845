package model

import (
	"crawlfleet/pkg/constants"
)

// LaunchConfig immutable launch configuration captured when a shard is dispatched.
// Resume derives a new effective start index but never writes it back here.
type LaunchConfig struct {
	Image             string  `json:"image"`
	Volume            string  `json:"volume"`
	Count             int     `json:"count"`                  // Target package count
	Bound             string  `json:"bound,omitempty"`        // Bound mode, "lower" when empty
	Downloads         int     `json:"downloads,omitempty"`    // Target download count
	StartIndex        int     `json:"start-index"`            // Inclusive
	EndIndex          int     `json:"end-index"`              // Exclusive
	OnlyCacheIncluded bool    `json:"only-cache-included"`    // Only cache packages that pass gathering filters
	AnalysisOnly      *string `json:"analysis-only"`          // Allowlist path
	MinNumDeps        *int    `json:"min-num-deps"`           // No-instrument heuristic threshold
	MinDepth          *int    `json:"min-depth"`              // No-instrument depth threshold
	Policies          *string `json:"policies"`               // Taint policy specification
	RequireSinkHit    bool    `json:"require-sink-hit"`       // Pipeline flag, forwarded only
	FailOnOutputError bool    `json:"fail-on-output-error"`   // Pipeline flag, forwarded only
	FailOnNonZeroExit bool    `json:"fail-on-non-zero-exit"`  // Pipeline flag, forwarded only
}

// Worker one dispatched shard and its last observed state
type Worker struct {
	Name     string                 `json:"-"` // Key in the fleet, not repeated in the record
	Tag      string                 `json:"tag"`
	ID       int                    `json:"id"` // 1-based, unique within (image, tag)
	Status   constants.WorkerStatus `json:"status"`
	Index    *int                   `json:"index"`    // Progress index last read from worker output
	Packages *int                   `json:"packages"` // Result row count last read from worker output
	Config   LaunchConfig           `json:"config"`
}

// NewWorker creates the record for a freshly dispatched shard
func NewWorker(tag string, id int, cfg LaunchConfig) *Worker {
	return &Worker{
		Name:   WorkerName(cfg.Image, tag, id),
		Tag:    tag,
		ID:     id,
		Status: constants.WorkerStatusRunning,
		Config: cfg,
	}
}

// FileName returns the per-worker file naming stem
func (w *Worker) FileName() string {
	return FileName(w.Tag, w.ID)
}

// Clone returns a deep copy of the worker
func (w *Worker) Clone() *Worker {
	c := *w
	c.Index = cloneInt(w.Index)
	c.Packages = cloneInt(w.Packages)
	c.Config.AnalysisOnly = cloneString(w.Config.AnalysisOnly)
	c.Config.MinNumDeps = cloneInt(w.Config.MinNumDeps)
	c.Config.MinDepth = cloneInt(w.Config.MinDepth)
	c.Config.Policies = cloneString(w.Config.Policies)
	return &c
}

// ResumeStartIndex effective start index for a relaunch:
// one past the last observed progress index, or the configured start.
func (w *Worker) ResumeStartIndex() int {
	if w.Index != nil {
		return *w.Index + 1
	}
	return w.Config.StartIndex
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

// IntPtr returns a pointer to n
func IntPtr(n int) *int {
	return &n
}

// StringPtr returns a pointer to s
func StringPtr(s string) *string {
	return &s
}
