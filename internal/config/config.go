// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// KnownSources lists the source names an adapter exists for.
var KnownSources = []string{"jobsge", "hrge"}

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	DB       DBConfig       `mapstructure:"db"`
	Sources  SourcesConfig  `mapstructure:"sources"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Sweep    SweepConfig    `mapstructure:"sweep"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Limits   LimitsConfig   `mapstructure:"limits"`
	Runner   RunnerConfig   `mapstructure:"runner"`
	Proxy    ProxyConfig    `mapstructure:"proxy"`
	Dedupe   DedupeConfig   `mapstructure:"dedupe"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// DBConfig controls access to the relational database. An empty DSN runs
// on in-memory stores.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
}

// SourcesConfig selects the job boards and the region filter.
type SourcesConfig struct {
	Enabled []string `mapstructure:"enabled"`
	Regions []string `mapstructure:"regions"`
}

// ScheduleConfig drives the periodic scheduled runs.
type ScheduleConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Interval   time.Duration `mapstructure:"interval"`
	RunOnStart bool          `mapstructure:"run_on_start"`
}

// SweepConfig sets the staleness threshold.
type SweepConfig struct {
	StaleDays int `mapstructure:"stale_days"`
}

// HTTPConfig configures the fetch client.
type HTTPConfig struct {
	UserAgent      string        `mapstructure:"user_agent"`
	Delay          time.Duration `mapstructure:"delay"`
	Jitter         time.Duration `mapstructure:"jitter"`
	MaxRetries     int           `mapstructure:"max_retries"`
	Timeout        time.Duration `mapstructure:"timeout"`
	BackoffInitial time.Duration `mapstructure:"backoff_initial"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
}

// LimitsConfig caps a run. Zero means unlimited.
type LimitsConfig struct {
	MaxPages int `mapstructure:"max_pages"`
	MaxJobs  int `mapstructure:"max_jobs"`
}

// RunnerConfig tunes the orchestrator.
type RunnerConfig struct {
	PausePollInterval time.Duration `mapstructure:"pause_poll_interval"`
	BatchConcurrency  int           `mapstructure:"batch_concurrency"`
	ProgressEvery     int           `mapstructure:"progress_every"`
}

// ProxyConfig toggles proxy rotation.
type ProxyConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	List    []string `mapstructure:"list"`
}

// DedupeConfig selects the within-run seen-set backend.
type DedupeConfig struct {
	Backend   string        `mapstructure:"backend"`
	RedisAddr string        `mapstructure:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// ArchiveConfig selects where raw detail pages are kept.
type ArchiveConfig struct {
	Provider string `mapstructure:"provider"`
	BaseDir  string `mapstructure:"base_dir"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig lists accepted API bearer keys. No keys disables auth.
type AuthConfig struct {
	APIKeys []string `mapstructure:"api_keys"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from .env, disk and environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Sources.Enabled = splitList(cfg.Sources.Enabled)
	cfg.Sources.Regions = splitList(cfg.Sources.Regions)
	cfg.Proxy.List = splitList(cfg.Proxy.List)
	cfg.Auth.APIKeys = splitList(cfg.Auth.APIKeys)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 5)
	v.SetDefault("sources.enabled", []string{"jobsge", "hrge"})
	v.SetDefault("sources.regions", []string{"all"})
	v.SetDefault("schedule.enabled", true)
	v.SetDefault("schedule.interval", 6*time.Hour)
	v.SetDefault("schedule.run_on_start", true)
	v.SetDefault("sweep.stale_days", 7)
	v.SetDefault("http.user_agent", "batumi-work-crawler/1.0 (+https://batumi.work)")
	v.SetDefault("http.delay", time.Second)
	v.SetDefault("http.jitter", 500*time.Millisecond)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.backoff_initial", time.Second)
	v.SetDefault("http.backoff_max", 30*time.Second)
	v.SetDefault("limits.max_pages", 0)
	v.SetDefault("limits.max_jobs", 0)
	v.SetDefault("runner.pause_poll_interval", 2*time.Second)
	v.SetDefault("runner.batch_concurrency", 2)
	v.SetDefault("runner.progress_every", 10)
	v.SetDefault("proxy.enabled", false)
	v.SetDefault("proxy.list", []string{})
	v.SetDefault("dedupe.backend", "memory")
	v.SetDefault("dedupe.redis_addr", "localhost:6379")
	v.SetDefault("dedupe.ttl", 24*time.Hour)
	v.SetDefault("archive.provider", "none")
	v.SetDefault("archive.base_dir", "data/archive")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "raw")
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.api_keys", []string{})
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// splitList flattens comma-joined entries, as env vars arrive as a single
// string.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if len(c.Sources.Enabled) == 0 {
		return fmt.Errorf("sources.enabled must name at least one source")
	}
	for _, name := range c.Sources.Enabled {
		if !isKnownSource(name) {
			return fmt.Errorf("sources.enabled: unknown source %q", name)
		}
	}
	if c.Schedule.Enabled && c.Schedule.Interval <= 0 {
		return fmt.Errorf("schedule.interval must be > 0")
	}
	if c.Sweep.StaleDays < 0 {
		return fmt.Errorf("sweep.stale_days must be >= 0")
	}
	if c.HTTP.Delay <= 0 {
		return fmt.Errorf("http.delay must be > 0")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.HTTP.MaxRetries <= 0 {
		return fmt.Errorf("http.max_retries must be > 0")
	}
	if c.Limits.MaxPages < 0 || c.Limits.MaxJobs < 0 {
		return fmt.Errorf("limits.max_pages and limits.max_jobs must be >= 0")
	}
	if c.Proxy.Enabled && len(c.Proxy.List) == 0 {
		return fmt.Errorf("proxy.list must be set when proxy is enabled")
	}
	switch c.Dedupe.Backend {
	case "memory":
	case "redis":
		if c.Dedupe.RedisAddr == "" {
			return fmt.Errorf("dedupe.redis_addr must be set for the redis backend")
		}
	default:
		return fmt.Errorf("dedupe.backend: unknown backend %q", c.Dedupe.Backend)
	}
	switch c.Archive.Provider {
	case "none", "memory":
	case "local":
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir must be set for the local provider")
		}
	case "gcs":
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket must be set for the gcs provider")
		}
	default:
		return fmt.Errorf("archive.provider: unknown provider %q", c.Archive.Provider)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

func isKnownSource(name string) bool {
	for _, known := range KnownSources {
		if name == known {
			return true
		}
	}
	return false
}

// RegionFilter returns the configured region slugs, or nil when every
// region is wanted.
func (c Config) RegionFilter() []string {
	var out []string
	for _, r := range c.Sources.Regions {
		if strings.EqualFold(r, "all") {
			return nil
		}
		out = append(out, strings.ToLower(r))
	}
	return out
}

// StaleAfter converts the staleness threshold to a duration.
func (c Config) StaleAfter() time.Duration {
	return time.Duration(c.Sweep.StaleDays) * 24 * time.Hour
}
