package interfaces

import (
	"context"
)

// Runtime process-isolation substrate interface
// Supports multiple substrates like the docker CLI or K8s pods.
type Runtime interface {
	// Launch starts a named, detached worker process.
	// It does not wait for the process to exit; output goes to req.LogPath when the
	// substrate captures it locally.
	Launch(ctx context.Context, req *LaunchRequest) error

	// ListAlive returns a point-in-time snapshot of running worker names
	ListAlive(ctx context.Context) (map[string]struct{}, error)

	// CopyArtifacts copies srcDir out of the named worker into destDir.
	// A worker that has not produced output yet makes this fail; callers treat it as soft.
	CopyArtifacts(ctx context.Context, name, srcDir, destDir string) error

	// Stop stops the named worker
	Stop(ctx context.Context, name string) error

	// Remove removes the named (stopped) worker so its name can be reused
	Remove(ctx context.Context, name string) error
}

// LogSyncer is implemented by runtimes that do not capture worker output
// locally at launch; the reconciler refreshes the local log through it.
type LogSyncer interface {
	SyncLogs(ctx context.Context, name, logPath string) error
}

// LaunchRequest launch request
type LaunchRequest struct {
	Name    string   `json:"name"`
	Image   string   `json:"image"`
	Volume  string   `json:"volume,omitempty"` // Mounted at the persist path when set
	Args    []string `json:"args"`             // Pipeline arguments
	LogPath string   `json:"logPath"`          // Combined stdout/stderr append log
}
