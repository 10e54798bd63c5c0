package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Sweeper  SweeperConfig  `yaml:"sweeper"`
	Queue    QueueConfig    `yaml:"queue"`
	Auth     AuthConfig     `yaml:"auth"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// SweeperConfig holds the expiry sweeper configuration.
type SweeperConfig struct {
	EnabledSetting       *bool         `yaml:"enabled"`
	IntervalSeconds      int           `yaml:"interval_seconds"`
	RetryIntervalSeconds int           `yaml:"retry_interval_seconds"`
	OfflineAfterSeconds  int           `yaml:"offline_after_seconds"`
	Interval             time.Duration `yaml:"-"` // Ignored by YAML parser
	RetryInterval        time.Duration `yaml:"-"`
	OfflineAfter         time.Duration `yaml:"-"`
	Enabled              bool          `yaml:"-"` // On unless enabled: false
}

// QueueConfig holds command queue limits and deadlines.
type QueueConfig struct {
	PollLimit               int          `yaml:"poll_limit"`
	HistoryLimit            int          `yaml:"history_limit"`
	WateringDurationSeconds int          `yaml:"watering_duration_seconds"`
	Expiry                  ExpiryConfig `yaml:"expiry"`
}

// ExpiryConfig holds per command type lifetimes. Zero keeps the built-in value.
type ExpiryConfig struct {
	EmergencyStopSeconds  int `yaml:"emergency_stop_seconds"`
	ManualWateringSeconds int `yaml:"manual_watering_seconds"`
	ConfigurationSeconds  int `yaml:"configuration_seconds"`
	DefaultSeconds        int `yaml:"default_seconds"`
}

// AuthConfig holds operator token and credential hashing settings.
type AuthConfig struct {
	JWTSecret  string `yaml:"jwt_secret"`
	BcryptCost int    `yaml:"bcrypt_cost"`
}

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

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() {
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
		cfg.Server.CacheTTLSeconds = 60
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	cfg.Sweeper.Enabled = cfg.Sweeper.EnabledSetting == nil || *cfg.Sweeper.EnabledSetting
	if !cfg.Sweeper.Enabled {
		log.Printf("sweeper.enabled is false; expired commands and stale devices will not be swept")
	}
	if cfg.Sweeper.IntervalSeconds <= 0 {
		cfg.Sweeper.IntervalSeconds = 300
	}
	if cfg.Sweeper.RetryIntervalSeconds <= 0 {
		cfg.Sweeper.RetryIntervalSeconds = 60
	}
	if cfg.Sweeper.OfflineAfterSeconds <= 0 {
		cfg.Sweeper.OfflineAfterSeconds = 600
	}
	cfg.Sweeper.Interval = time.Duration(cfg.Sweeper.IntervalSeconds) * time.Second
	cfg.Sweeper.RetryInterval = time.Duration(cfg.Sweeper.RetryIntervalSeconds) * time.Second
	cfg.Sweeper.OfflineAfter = time.Duration(cfg.Sweeper.OfflineAfterSeconds) * time.Second

	if cfg.Queue.PollLimit <= 0 {
		cfg.Queue.PollLimit = 10
	}
	if cfg.Queue.HistoryLimit <= 0 {
		cfg.Queue.HistoryLimit = 50
	}
	if cfg.Queue.WateringDurationSeconds <= 0 {
		cfg.Queue.WateringDurationSeconds = 30
	}

	if cfg.Auth.JWTSecret == "" {
		log.Printf("auth.jwt_secret is not set; operator endpoints will reject every token")
	}
}
