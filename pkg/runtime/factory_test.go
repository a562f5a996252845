package runtime

import (
	"testing"

	"crawlfleet/pkg/config"
	"crawlfleet/pkg/runtime/docker"
	"crawlfleet/pkg/runtime/dryrun"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRuntime(t *testing.T) {
	cfg := config.Default()

	rt, err := CreateRuntime(cfg)
	require.NoError(t, err)
	assert.IsType(t, &docker.DockerRuntime{}, rt)

	cfg.DryRun = true
	rt, err = CreateRuntime(cfg)
	require.NoError(t, err)
	assert.IsType(t, &dryrun.Runtime{}, rt)

	cfg.Runtime.Provider = "podman"
	_, err = CreateRuntime(cfg)
	assert.Error(t, err)
}
