package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, filepath.Join(".", "state.json"), cfg.StatePath())
}

func TestLoad_ExplicitMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
base_dir: /data/crawl
logger:
  level: debug
runtime:
  provider: k8s
  namespace: crawl
store:
  backend: redis
  key: exp1
watchdog:
  sleep_minutes: 5
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/crawl", cfg.BaseDir)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "console", cfg.Logger.Output, "unset keys keep their default")
	assert.Equal(t, "k8s", cfg.Runtime.Provider)
	assert.Equal(t, "crawl", cfg.Runtime.Namespace)
	assert.Equal(t, "docker", cfg.Runtime.DockerBin)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "exp1", cfg.Store.Key)
	assert.Equal(t, 5, cfg.Watchdog.SleepMinutes)
	assert.Equal(t, "/data/crawl/state.json", cfg.StatePath())
	assert.Equal(t, "/data/crawl/crawl_logs", cfg.CrawlLogsDir())
}

func TestLoad_EnvPath(t *testing.T) {
	path := writeConfig(t, "logger:\n  level: warn\n")
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logger.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "quiet logger", mutate: func(c *Config) { c.Logger.Level = "quiet" }},
		{name: "unknown log level", mutate: func(c *Config) { c.Logger.Level = "verbose" }, wantErr: true},
		{name: "unknown runtime", mutate: func(c *Config) { c.Runtime.Provider = "podman" }, wantErr: true},
		{name: "unknown store", mutate: func(c *Config) { c.Store.Backend = "etcd" }, wantErr: true},
		{name: "zero sleep", mutate: func(c *Config) { c.Watchdog.SleepMinutes = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "logger: [unterminated\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestMySQLDSN(t *testing.T) {
	c := MySQLConfig{Host: "db", Port: 3307, User: "u", Password: "p", Database: "fleet"}
	assert.Equal(t, "u:p@tcp(db:3307)/fleet?charset=utf8mb4&parseTime=True&loc=UTC", c.DSN())
}
