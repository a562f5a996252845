package runtime

import (
	"fmt"

	"crawlfleet/pkg/config"
	"crawlfleet/pkg/interfaces"
	"crawlfleet/pkg/runtime/docker"
	"crawlfleet/pkg/runtime/dryrun"
	"crawlfleet/pkg/runtime/k8s"
)

// CreateRuntime creates the worker runtime, wrapped for dry runs when requested
func CreateRuntime(cfg *config.Config) (interfaces.Runtime, error) {
	var (
		rt  interfaces.Runtime
		err error
	)
	switch cfg.Runtime.Provider {
	case "docker", "":
		rt, err = docker.NewDockerRuntime(cfg)
	case "k8s", "kubernetes":
		rt, err = k8s.NewK8sRuntime(cfg)
	default:
		return nil, fmt.Errorf("unsupported runtime provider: %s", cfg.Runtime.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.DryRun {
		return dryrun.Wrap(rt), nil
	}
	return rt, nil
}
