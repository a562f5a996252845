package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

var GlobalConfig *Config

// Config global configuration
type Config struct {
	BaseDir      string             `yaml:"base_dir"` // Where synced output, logs and state live
	Logger       LoggerConfig       `yaml:"logger"`
	Runtime      RuntimeConfig      `yaml:"runtime"`
	Store        StoreConfig        `yaml:"store"`
	Redis        RedisConfig        `yaml:"redis"`
	MySQL        MySQLConfig        `yaml:"mysql"`
	Watchdog     WatchdogConfig     `yaml:"watchdog"`
	Server       ServerConfig       `yaml:"server"`
	Notification NotificationConfig `yaml:"notification"`
	DryRun       bool               `yaml:"dry_run"` // Log runtime actions without executing them
}

// LoggerConfig logger configuration
type LoggerConfig struct {
	Level  string           `yaml:"level"`  // debug, info, warn, error, quiet
	Output string           `yaml:"output"` // console, file, both
	File   LoggerFileConfig `yaml:"file"`
}

// LoggerFileConfig logger file configuration
type LoggerFileConfig struct {
	Path string `yaml:"path"`
}

// RuntimeConfig worker substrate configuration
type RuntimeConfig struct {
	Provider   string `yaml:"provider"`   // docker, k8s
	DockerBin  string `yaml:"docker_bin"` // docker CLI binary
	Namespace  string `yaml:"namespace"`  // K8s namespace
	Kubeconfig string `yaml:"kubeconfig"` // Empty: in-cluster, then default loading rules
}

// StoreConfig fleet store configuration
type StoreConfig struct {
	Backend   string `yaml:"backend"`    // file, redis, mysql
	StatePath string `yaml:"state_path"` // File backend; defaults to <base_dir>/state.json
	Key       string `yaml:"key"`        // Redis backend key / MySQL fleet name
}

// RedisConfig Redis configuration
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MySQLConfig MySQL configuration
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// DSN returns the go-sql-driver DSN for this configuration
func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// WatchdogConfig watchdog configuration
type WatchdogConfig struct {
	SleepMinutes int `yaml:"sleep_minutes"` // Sleep between reconciliation cycles
}

// ServerConfig status API configuration
type ServerConfig struct {
	Port   int    `yaml:"port"`
	Mode   string `yaml:"mode"`    // debug, release
	APIKey string `yaml:"api_key"` // Bearer token for /v1, empty disables auth
}

// NotificationConfig notification configuration
type NotificationConfig struct {
	FeishuWebhookURL string `yaml:"feishu_webhook_url"` // Falls back to FEISHU_WEBHOOK_URL
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		BaseDir: ".",
		Logger: LoggerConfig{
			Level:  "info",
			Output: "console",
		},
		Runtime: RuntimeConfig{
			Provider:  "docker",
			DockerBin: "docker",
			Namespace: "default",
		},
		Store: StoreConfig{
			Backend: "file",
			Key:     "crawlfleet",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		MySQL: MySQLConfig{
			Host: "localhost",
			Port: 3306,
		},
		Watchdog: WatchdogConfig{
			SleepMinutes: 60,
		},
		Server: ServerConfig{
			Port: 8080,
			Mode: "release",
		},
	}
}

// Load reads configuration from path on top of the defaults.
// An empty path falls back to CONFIG_PATH, then config/config.yaml; a missing
// default file is not an error, a missing explicit file is.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv("CONFIG_PATH")
		explicit = path != ""
	}
	if path == "" {
		path = "config/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Init initializes the global configuration
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	GlobalConfig = cfg
	return nil
}

// Validate checks enumerated fields
func (c *Config) Validate() error {
	switch c.Logger.Level {
	case "debug", "info", "warn", "error", "quiet":
	default:
		return fmt.Errorf("unhandled log level: %s", c.Logger.Level)
	}
	switch c.Runtime.Provider {
	case "docker", "k8s", "kubernetes":
	default:
		return fmt.Errorf("unsupported runtime provider: %s", c.Runtime.Provider)
	}
	switch c.Store.Backend {
	case "file", "redis", "mysql":
	default:
		return fmt.Errorf("unsupported store backend: %s", c.Store.Backend)
	}
	if c.Watchdog.SleepMinutes <= 0 {
		return fmt.Errorf("watchdog sleep must be positive, got %d", c.Watchdog.SleepMinutes)
	}
	return nil
}

// StatePath resolved state file path for the file backend
func (c *Config) StatePath() string {
	if c.Store.StatePath != "" {
		return c.Store.StatePath
	}
	return filepath.Join(c.BaseDir, "state.json")
}

// CrawlLogsDir directory holding the per-worker combined logs
func (c *Config) CrawlLogsDir() string {
	return filepath.Join(c.BaseDir, "crawl_logs")
}
