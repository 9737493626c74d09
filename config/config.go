package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
	Database     DatabaseConfig     `yaml:"database"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	ADSBExchange ADSBExchangeConfig `yaml:"adsbexchange"`
	Push         PushConfig         `yaml:"push"`
	WorkerPool   WorkerPoolConfig   `yaml:"worker_pool"`
	NATS         NATSConfig         `yaml:"nats"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are configured.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	RequestIPHeader string        `yaml:"request_ip_header"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds"`
	CacheTTL        time.Duration `yaml:"-"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	EnableTimescale        bool   `yaml:"enable_timescale"`
	LogLevel               string `yaml:"log_level"`
}

// SchedulerConfig controls the collection loop and the jobs registered at boot.
type SchedulerConfig struct {
	Enabled                 bool           `yaml:"enabled"`
	PollIntervalSeconds     int            `yaml:"poll_interval_seconds"`
	PollInterval            time.Duration  `yaml:"-"`
	FetchTimeoutSeconds     int            `yaml:"fetch_timeout_seconds"`
	FetchTimeout            time.Duration  `yaml:"-"`
	DefaultTenant           string         `yaml:"default_tenant"`
	AutoCreateDefaultTenant *bool          `yaml:"auto_create_default_tenant"`
	PersistJobs             bool           `yaml:"persist_jobs"`
	Tenants                 []TenantConfig `yaml:"tenants"`
	Jobs                    []JobConfig    `yaml:"jobs"`
}

// TenantConfig is a tenant provisioned at startup.
type TenantConfig struct {
	Slug string `yaml:"slug"`
	Name string `yaml:"name"`
}

// JobConfig is a job registered at startup.
type JobConfig struct {
	ID              string         `yaml:"id"`
	Name            string         `yaml:"name"`
	ClientType      string         `yaml:"client_type"`
	Config          map[string]any `yaml:"config"`
	IntervalMinutes int            `yaml:"interval_minutes"`
	Tenant          string         `yaml:"tenant"`
	Enabled         *bool          `yaml:"enabled"`
}

// ADSBExchangeConfig holds defaults for the ADSBExchange RapidAPI client.
// Per-job config values take precedence.
type ADSBExchangeConfig struct {
	RapidAPIKey string `yaml:"rapidapi_key"`
	BaseURL     string `yaml:"base_url"`
	Endpoint    string `yaml:"endpoint"`
	HTTPProxy   string `yaml:"http_proxy"`
}

// NATSConfig enables publishing job-run events. An empty URL disables it.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// DefaultJobID is the id of the job registered when the config lists none.
const DefaultJobID = "adsbexchange-military"

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ADSBEXCHANGE_RAPIDAPI_KEY"); v != "" {
		cfg.ADSBExchange.RapidAPIKey = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 30
	}
	cfg.Server.CacheTTL = time.Duration(cfg.Server.CacheTTLSeconds) * time.Second

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}

	if cfg.Scheduler.PollIntervalSeconds <= 0 {
		cfg.Scheduler.PollIntervalSeconds = 60
	}
	cfg.Scheduler.PollInterval = time.Duration(cfg.Scheduler.PollIntervalSeconds) * time.Second

	if cfg.Scheduler.FetchTimeoutSeconds <= 0 {
		cfg.Scheduler.FetchTimeoutSeconds = 30
	}
	cfg.Scheduler.FetchTimeout = time.Duration(cfg.Scheduler.FetchTimeoutSeconds) * time.Second

	if cfg.Scheduler.DefaultTenant == "" {
		cfg.Scheduler.DefaultTenant = "default"
	}
	if cfg.Scheduler.AutoCreateDefaultTenant == nil {
		enabled := true
		cfg.Scheduler.AutoCreateDefaultTenant = &enabled
	}

	if cfg.Scheduler.Jobs == nil {
		cfg.Scheduler.Jobs = []JobConfig{DefaultJob(cfg.Scheduler.DefaultTenant)}
	}
	for i := range cfg.Scheduler.Jobs {
		if cfg.Scheduler.Jobs[i].Tenant == "" {
			cfg.Scheduler.Jobs[i].Tenant = cfg.Scheduler.DefaultTenant
		}
	}

	if cfg.NATS.Subject == "" {
		cfg.NATS.Subject = "skytrace.jobs.completed"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		slog.Warn("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
}

// DefaultJob returns the military-aircraft collection job registered when the config lists none.
func DefaultJob(tenant string) JobConfig {
	return JobConfig{
		ID:         DefaultJobID,
		Name:       "ADSBExchange Military Aircraft",
		ClientType: "adsbexchange",
		Config: map[string]any{
			"endpoint":            "/v2/mil/",
			"timeout":             30,
			"use_archive_refresh": true,
			"archive_reason":      "adsb_scheduled_refresh",
		},
		IntervalMinutes: 30,
		Tenant:          tenant,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q is not one of text, json", c.Log.Format)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver %q is not one of postgres, sqlite", c.Database.Driver)
	}
	for _, j := range c.Scheduler.Jobs {
		if j.IntervalMinutes <= 0 {
			return fmt.Errorf("scheduler job %q: interval_minutes must be positive", j.ID)
		}
		if j.ClientType == "" {
			return fmt.Errorf("scheduler job %q: client_type is required", j.ID)
		}
	}
	for _, t := range c.Scheduler.Tenants {
		if t.Slug == "" {
			return fmt.Errorf("scheduler tenant %q: slug is required", t.Name)
		}
	}
	return nil
}
