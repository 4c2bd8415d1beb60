package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures runtime configuration. Defaults are overlaid by an optional
// YAML file named in FLOWGUARD_CONFIG, then by FLOWGUARD_* environment variables.
type Config struct {
	Environment string `yaml:"environment"`
	HTTPPort    string `yaml:"http_port"`
	LogDir      string `yaml:"log_dir"`
	LogLevel    string `yaml:"log_level"`
	Debug       bool   `yaml:"debug"`

	Database  DatabaseConfig  `yaml:"database"`
	Engine    EngineConfig    `yaml:"engine"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Cache     CacheConfig     `yaml:"cache"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Report    ReportConfig    `yaml:"report"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite or postgres
	Path   string `yaml:"path"`   // sqlite file
	DSN    string `yaml:"dsn"`    // postgres connection string
}

// Target returns the connection string for the configured driver.
func (d DatabaseConfig) Target() string {
	if d.Driver == "postgres" {
		return d.DSN
	}
	return d.Path
}

type EngineConfig struct {
	Command            string        `yaml:"command"`
	Args               []string      `yaml:"args"`
	ModelDir           string        `yaml:"model_dir"`
	PredictTimeout     time.Duration `yaml:"predict_timeout"`
	TrainTimeout       time.Duration `yaml:"train_timeout"`
	RatePerSecond      float64       `yaml:"rate_per_second"`
	Burst              int           `yaml:"burst"`
	BreakerFailures    uint32        `yaml:"breaker_failures"`
	BreakerOpenTimeout time.Duration `yaml:"breaker_open_timeout"`
}

type PipelineConfig struct {
	BatchWorkers int           `yaml:"batch_workers"`
	StoreTimeout time.Duration `yaml:"store_timeout"`
}

type CacheConfig struct {
	Addr     string        `yaml:"addr"` // empty disables the cache
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
	Prefix   string        `yaml:"prefix"`
}

type SchedulerConfig struct {
	Enabled            bool          `yaml:"enabled"`
	PatternSpec        string        `yaml:"pattern_spec"`
	PatternWindow      time.Duration `yaml:"pattern_window"`
	WatchdogSpec       string        `yaml:"watchdog_spec"`
	ExperimentDeadline time.Duration `yaml:"experiment_deadline"`
}

type ReportConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Defaults returns a configuration that boots with no external services.
func Defaults() Config {
	return Config{
		Environment: "development",
		HTTPPort:    "8080",
		LogDir:      "data/logs",
		LogLevel:    "info",
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   filepath.Join("data", "flowguard.db"),
		},
		Engine: EngineConfig{
			Command:            "python3",
			Args:               []string{"ml_engine.py"},
			ModelDir:           filepath.Join("data", "models"),
			PredictTimeout:     30 * time.Second,
			TrainTimeout:       30 * time.Minute,
			Burst:              1,
			BreakerFailures:    5,
			BreakerOpenTimeout: 30 * time.Second,
		},
		Pipeline: PipelineConfig{
			BatchWorkers: 1,
			StoreTimeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			TTL:    30 * time.Second,
			Prefix: "flowguard",
		},
		Scheduler: SchedulerConfig{
			Enabled:            true,
			PatternSpec:        "@every 5m",
			PatternWindow:      time.Hour,
			WatchdogSpec:       "@every 10m",
			ExperimentDeadline: 2 * time.Hour,
		},
		Report: ReportConfig{
			Model:   "gpt-4o-mini",
			Timeout: 60 * time.Second,
		},
	}
}

// Load reads the optional YAML file and env vars on top of Defaults.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv("FLOWGUARD_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	if cfg.Database.Driver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return Config{}, fmt.Errorf("ensure data directory: %w", err)
		}
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Environment = getEnv("FLOWGUARD_ENV", c.Environment)
	c.HTTPPort = getEnv("FLOWGUARD_HTTP_PORT", c.HTTPPort)
	c.LogDir = getEnv("FLOWGUARD_LOG_DIR", c.LogDir)
	c.LogLevel = getEnv("FLOWGUARD_LOG_LEVEL", c.LogLevel)

	c.Database.Driver = getEnv("FLOWGUARD_DB_DRIVER", c.Database.Driver)
	c.Database.Path = getEnv("FLOWGUARD_DB_PATH", c.Database.Path)
	c.Database.DSN = getEnv("FLOWGUARD_DB_DSN", c.Database.DSN)

	c.Engine.Command = getEnv("FLOWGUARD_ENGINE_COMMAND", c.Engine.Command)
	if v := os.Getenv("FLOWGUARD_ENGINE_ARGS"); v != "" {
		c.Engine.Args = strings.Fields(v)
	}
	c.Engine.ModelDir = getEnv("FLOWGUARD_MODEL_DIR", c.Engine.ModelDir)

	c.Cache.Addr = getEnv("FLOWGUARD_CACHE_ADDR", c.Cache.Addr)
	c.Cache.Password = getEnv("FLOWGUARD_CACHE_PASSWORD", c.Cache.Password)

	c.Report.Endpoint = getEnv("FLOWGUARD_REPORT_ENDPOINT", c.Report.Endpoint)
	c.Report.APIKey = getEnv("FLOWGUARD_REPORT_API_KEY", c.Report.APIKey)
	c.Report.Model = getEnv("FLOWGUARD_REPORT_MODEL", c.Report.Model)

	var err error
	if c.Debug, err = getBool("FLOWGUARD_DEBUG", c.Debug); err != nil {
		return err
	}
	if c.Scheduler.Enabled, err = getBool("FLOWGUARD_SCHEDULER_ENABLED", c.Scheduler.Enabled); err != nil {
		return err
	}
	if c.Pipeline.BatchWorkers, err = getInt("FLOWGUARD_BATCH_WORKERS", c.Pipeline.BatchWorkers); err != nil {
		return err
	}
	if c.Engine.RatePerSecond, err = getFloat("FLOWGUARD_ENGINE_RATE", c.Engine.RatePerSecond); err != nil {
		return err
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"FLOWGUARD_PREDICT_TIMEOUT", &c.Engine.PredictTimeout},
		{"FLOWGUARD_TRAIN_TIMEOUT", &c.Engine.TrainTimeout},
		{"FLOWGUARD_STORE_TIMEOUT", &c.Pipeline.StoreTimeout},
		{"FLOWGUARD_CACHE_TTL", &c.Cache.TTL},
		{"FLOWGUARD_EXPERIMENT_DEADLINE", &c.Scheduler.ExperimentDeadline},
	}
	for _, d := range durations {
		if *d.dst, err = getDuration(d.key, *d.dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Engine.Command == "" {
		return fmt.Errorf("engine command is required")
	}
	if c.Pipeline.BatchWorkers < 1 {
		return fmt.Errorf("batch workers must be at least 1, got %d", c.Pipeline.BatchWorkers)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return fallback
}

func getBool(key string, fallback bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getInt(key string, fallback int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
