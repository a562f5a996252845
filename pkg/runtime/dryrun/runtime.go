// Package dryrun wraps a Runtime so that every action is logged and nothing is executed.
package dryrun

import (
	"context"
	"strings"

	"crawlfleet/pkg/interfaces"
	"crawlfleet/pkg/logger"
)

// previewer is implemented by runtimes that can render what a launch would create
type previewer interface {
	Preview(req *interfaces.LaunchRequest) (string, error)
}

// Runtime logs the calls it receives and reports success without side effects.
// ListAlive always returns an empty snapshot.
type Runtime struct {
	inner interfaces.Runtime
}

// Wrap returns a dry-run view of inner
func Wrap(inner interfaces.Runtime) *Runtime {
	return &Runtime{inner: inner}
}

func (r *Runtime) Launch(ctx context.Context, req *interfaces.LaunchRequest) error {
	logger.InfoCtx(ctx, "[dry-run] launch %s (%s) %s", req.Name, req.Image, strings.Join(req.Args, " "))
	if p, ok := r.inner.(previewer); ok {
		if manifest, err := p.Preview(req); err == nil {
			logger.DebugCtx(ctx, "[dry-run] manifest:\n%s", manifest)
		}
	}
	return nil
}

func (r *Runtime) ListAlive(ctx context.Context) (map[string]struct{}, error) {
	logger.DebugCtx(ctx, "[dry-run] list alive workers")
	return map[string]struct{}{}, nil
}

func (r *Runtime) CopyArtifacts(ctx context.Context, name, srcDir, destDir string) error {
	logger.DebugCtx(ctx, "[dry-run] copy %s:%s -> %s", name, srcDir, destDir)
	return nil
}

func (r *Runtime) Stop(ctx context.Context, name string) error {
	logger.InfoCtx(ctx, "[dry-run] stop %s", name)
	return nil
}

func (r *Runtime) Remove(ctx context.Context, name string) error {
	logger.InfoCtx(ctx, "[dry-run] remove %s", name)
	return nil
}
