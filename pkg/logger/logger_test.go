package logger

import (
	"context"
	"testing"

	"crawlfleet/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceID(t *testing.T) {
	assert.Equal(t, defaultTraceID, TraceID(nil))
	assert.Equal(t, defaultTraceID, TraceID(context.Background()))

	ctx1 := WithTraceID(context.Background())
	ctx2 := WithTraceID(context.Background())
	assert.NotEqual(t, defaultTraceID, TraceID(ctx1))
	assert.NotEqual(t, TraceID(ctx1), TraceID(ctx2), "every cycle gets its own id")
}

func TestInit_RequiresConfig(t *testing.T) {
	prev := config.GlobalConfig
	defer func() { config.GlobalConfig = prev }()

	config.GlobalConfig = nil
	assert.Error(t, Init())
}

func TestInit_FileOutput(t *testing.T) {
	prev := config.GlobalConfig
	prevLog := Log
	defer func() {
		config.GlobalConfig = prev
		Log = prevLog
		sugar = prevLog.Sugar()
	}()

	cfg := config.Default()
	cfg.Logger.Output = "file"
	cfg.Logger.File.Path = t.TempDir() + "/logs/crawlfleet.log"
	config.GlobalConfig = cfg

	require.NoError(t, Init())
	InfoCtx(WithTraceID(context.Background()), "hello %s", "fleet")
	assert.NoError(t, Sync())
	assert.FileExists(t, cfg.Logger.File.Path)
}
