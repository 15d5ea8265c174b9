package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !reflect.DeepEqual(cfg.Sources.Enabled, []string{"jobsge", "hrge"}) {
		t.Fatalf("unexpected enabled sources %v", cfg.Sources.Enabled)
	}
	if cfg.RegionFilter() != nil {
		t.Fatalf("expected no region filter, got %v", cfg.RegionFilter())
	}
	if cfg.Schedule.Interval != 6*time.Hour || !cfg.Schedule.RunOnStart {
		t.Fatalf("unexpected schedule %+v", cfg.Schedule)
	}
	if cfg.StaleAfter() != 7*24*time.Hour {
		t.Fatalf("expected 7 day staleness, got %v", cfg.StaleAfter())
	}
	if cfg.HTTP.Delay != time.Second || cfg.HTTP.MaxRetries != 3 || cfg.HTTP.Timeout != 30*time.Second {
		t.Fatalf("unexpected http defaults %+v", cfg.HTTP)
	}
	if cfg.Runner.ProgressEvery != 10 || cfg.Runner.BatchConcurrency != 2 {
		t.Fatalf("unexpected runner defaults %+v", cfg.Runner)
	}
	if cfg.Dedupe.Backend != "memory" || cfg.Archive.Provider != "none" {
		t.Fatalf("unexpected backends %q / %q", cfg.Dedupe.Backend, cfg.Archive.Provider)
	}
	if cfg.DB.DSN != "" || cfg.Server.Port != 8080 || cfg.Logging.Level != "info" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
db:
  dsn: postgres://crawler@localhost/batumi
  max_conns: 10
sources:
  enabled: [hrge]
  regions: [adjara, tbilisi]
schedule:
  interval: 2h
sweep:
  stale_days: 14
http:
  delay: 250ms
  max_retries: 5
limits:
  max_pages: 3
  max_jobs: 100
proxy:
  enabled: true
  list: ["http://p1:8080", "http://p2:8080"]
dedupe:
  backend: redis
  redis_addr: redis://cache:6379/0
archive:
  provider: gcs
  bucket: batumi-raw
auth:
  api_keys: [k1]
logging:
  development: true
  level: debug
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DB.MaxConns != 10 || !strings.HasPrefix(cfg.DB.DSN, "postgres://") {
		t.Fatalf("unexpected db config %+v", cfg.DB)
	}
	if !reflect.DeepEqual(cfg.RegionFilter(), []string{"adjara", "tbilisi"}) {
		t.Fatalf("unexpected region filter %v", cfg.RegionFilter())
	}
	if cfg.Schedule.Interval != 2*time.Hour || cfg.StaleAfter() != 14*24*time.Hour {
		t.Fatalf("unexpected schedule/sweep %+v %+v", cfg.Schedule, cfg.Sweep)
	}
	if cfg.HTTP.Delay != 250*time.Millisecond || cfg.HTTP.MaxRetries != 5 {
		t.Fatalf("unexpected http config %+v", cfg.HTTP)
	}
	if cfg.Limits.MaxPages != 3 || cfg.Limits.MaxJobs != 100 {
		t.Fatalf("unexpected limits %+v", cfg.Limits)
	}
	if len(cfg.Proxy.List) != 2 || cfg.Dedupe.Backend != "redis" || cfg.Archive.Bucket != "batumi-raw" {
		t.Fatalf("unexpected backends %+v %+v %+v", cfg.Proxy, cfg.Dedupe, cfg.Archive)
	}
	if !cfg.Logging.Development || cfg.Logging.Level != "debug" || len(cfg.Auth.APIKeys) != 1 {
		t.Fatalf("unexpected logging/auth %+v %+v", cfg.Logging, cfg.Auth)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CRAWLER_SOURCES_ENABLED", "jobsge")
	t.Setenv("CRAWLER_SOURCES_REGIONS", "Adjara, Guria")
	t.Setenv("CRAWLER_PROXY_ENABLED", "true")
	t.Setenv("CRAWLER_PROXY_LIST", "http://a:1,http://b:2")
	t.Setenv("CRAWLER_HTTP_TIMEOUT", "45s")
	t.Setenv("CRAWLER_LIMITS_MAX_JOBS", "25")
	t.Setenv("CRAWLER_LOGGING_DEVELOPMENT", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(cfg.Sources.Enabled, []string{"jobsge"}) {
		t.Fatalf("unexpected enabled sources %v", cfg.Sources.Enabled)
	}
	if !reflect.DeepEqual(cfg.RegionFilter(), []string{"adjara", "guria"}) {
		t.Fatalf("unexpected region filter %v", cfg.RegionFilter())
	}
	if !reflect.DeepEqual(cfg.Proxy.List, []string{"http://a:1", "http://b:2"}) {
		t.Fatalf("unexpected proxy list %v", cfg.Proxy.List)
	}
	if cfg.HTTP.Timeout != 45*time.Second || cfg.Limits.MaxJobs != 25 || !cfg.Logging.Development {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Sources:  SourcesConfig{Enabled: []string{"jobsge"}},
		Schedule: ScheduleConfig{Enabled: true, Interval: time.Hour},
		HTTP:     HTTPConfig{Delay: time.Second, Timeout: time.Second, MaxRetries: 1},
		Dedupe:   DedupeConfig{Backend: "memory"},
		Archive:  ArchiveConfig{Provider: "none"},
		Server:   ServerConfig{Port: 8080},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no sources", func(c *Config) { c.Sources.Enabled = nil }, "sources.enabled"},
		{"unknown source", func(c *Config) { c.Sources.Enabled = []string{"linkedin"} }, "unknown source"},
		{"zero interval", func(c *Config) { c.Schedule.Interval = 0 }, "schedule.interval"},
		{"negative stale days", func(c *Config) { c.Sweep.StaleDays = -1 }, "sweep.stale_days"},
		{"zero delay", func(c *Config) { c.HTTP.Delay = 0 }, "http.delay"},
		{"zero timeout", func(c *Config) { c.HTTP.Timeout = 0 }, "http.timeout"},
		{"zero retries", func(c *Config) { c.HTTP.MaxRetries = 0 }, "http.max_retries"},
		{"negative limits", func(c *Config) { c.Limits.MaxJobs = -1 }, "limits"},
		{"proxy without list", func(c *Config) { c.Proxy.Enabled = true }, "proxy.list"},
		{"unknown dedupe", func(c *Config) { c.Dedupe.Backend = "etcd" }, "dedupe.backend"},
		{"redis without addr", func(c *Config) { c.Dedupe.Backend = "redis" }, "dedupe.redis_addr"},
		{"unknown archive", func(c *Config) { c.Archive.Provider = "s3" }, "archive.provider"},
		{"gcs without bucket", func(c *Config) { c.Archive.Provider = "gcs" }, "archive.bucket"},
		{"local without dir", func(c *Config) { c.Archive.Provider = "local" }, "archive.base_dir"},
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			cfg.Sources.Enabled = append([]string(nil), base.Sources.Enabled...)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
