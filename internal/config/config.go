// Package config provides Viper-based configuration management for cl-extract
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/cl-extractor/pkg/logging"
	"github.com/Sternrassler/cl-extractor/pkg/sink"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. CLX_API_TOKEN.
const EnvPrefix = "CLX"

// Config represents the complete cl-extract configuration
type Config struct {
	API         APIConfig        `mapstructure:"api"`
	Retry       RetryConfig      `mapstructure:"retry"`
	RateLimit   RateLimitConfig  `mapstructure:"ratelimit"`
	Storage     sink.Descriptor  `mapstructure:"storage"`
	Checkpoint  CheckpointConfig `mapstructure:"checkpoint"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Logging     logging.Config   `mapstructure:"logging"`
	Metrics     MetricsConfig    `mapstructure:"metrics"`
	Concurrency int              `mapstructure:"concurrency"`
	Jobs        []JobConfig      `mapstructure:"jobs"`
}

// APIConfig contains API connection settings
type APIConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Token      string        `mapstructure:"token"`
	AuthScheme string        `mapstructure:"auth_scheme"`
	UserAgent  string        `mapstructure:"user_agent"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// RetryConfig contains retry settings
type RetryConfig struct {
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	Jitter         float64       `mapstructure:"jitter"`
}

// RateLimitConfig contains request budget settings
type RateLimitConfig struct {
	HourlyBudget int           `mapstructure:"hourly_budget"`
	Cooldown     time.Duration `mapstructure:"cooldown"`

	// SharedBudget makes all streams of a process draw from one budget.
	SharedBudget bool `mapstructure:"shared_budget"`

	// Backend "memory" or "redis". The redis backend shares the budget
	// across processes.
	Backend string `mapstructure:"backend"`
	Scope   string `mapstructure:"scope"`
}

// CheckpointConfig contains checkpoint store settings
type CheckpointConfig struct {
	// Backend "file" or "redis".
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MetricsConfig contains metrics endpoint settings
type MetricsConfig struct {
	// Addr serves /metrics when set, e.g. ":9090".
	Addr string `mapstructure:"addr"`
}

// JobConfig is one dataset run of "cl-extract run"
type JobConfig struct {
	Dataset        string            `mapstructure:"dataset"`
	AuthorIDs      []string          `mapstructure:"author_ids"`
	MaxPages       int               `mapstructure:"max_pages"`
	FlushThreshold int               `mapstructure:"flush_threshold"`
	Params         map[string]string `mapstructure:"params"`
}

// Datasets accepted in jobs.
var Datasets = []string{"positions", "education", "financial-disclosures", "dockets"}

// Load reads configuration from file and environment variables
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		// Search paths for .cl-extract.yaml
		v.SetConfigName(".cl-extract")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/cl-extract")
	}

	// Environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("api.token", EnvPrefix+"_API_TOKEN", "COURTLISTENER_API_TOKEN")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "https://www.courtlistener.com/api/rest/v4/")
	v.SetDefault("api.token", "")
	v.SetDefault("api.auth_scheme", "Token")
	v.SetDefault("api.user_agent", "cl-extractor/1.0")
	v.SetDefault("api.timeout", 60*time.Second)

	v.SetDefault("retry.max_retries", 5)
	v.SetDefault("retry.initial_backoff", 5*time.Second)
	v.SetDefault("retry.max_backoff", time.Duration(0))
	v.SetDefault("retry.jitter", 0.0)

	v.SetDefault("ratelimit.hourly_budget", 5000)
	v.SetDefault("ratelimit.cooldown", time.Hour)
	v.SetDefault("ratelimit.shared_budget", false)
	v.SetDefault("ratelimit.backend", "memory")
	v.SetDefault("ratelimit.scope", "courtlistener")

	v.SetDefault("storage.kind", sink.KindLocal)
	v.SetDefault("storage.location", "data")

	v.SetDefault("checkpoint.backend", "file")
	v.SetDefault("checkpoint.dir", "checkpoints")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", false)
	v.SetDefault("logging.file", "")

	v.SetDefault("metrics.addr", "")
	v.SetDefault("concurrency", 1)
}

// validate checks the configuration for errors
func validate(cfg *Config) error {
	if cfg.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if cfg.Retry.MaxRetries < 1 {
		return fmt.Errorf("retry.max_retries must be >= 1 (got %d)", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.InitialBackoff <= 0 {
		return fmt.Errorf("retry.initial_backoff must be positive")
	}
	if cfg.Retry.Jitter < 0 || cfg.Retry.Jitter >= 1 {
		return fmt.Errorf("retry.jitter must be in [0, 1) (got %v)", cfg.Retry.Jitter)
	}
	if cfg.RateLimit.HourlyBudget < 1 {
		return fmt.Errorf("ratelimit.hourly_budget must be >= 1 (got %d)", cfg.RateLimit.HourlyBudget)
	}
	if cfg.RateLimit.Cooldown <= 0 {
		return fmt.Errorf("ratelimit.cooldown must be positive")
	}
	switch cfg.RateLimit.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("ratelimit.backend must be memory or redis (got %q)", cfg.RateLimit.Backend)
	}
	switch cfg.Storage.Kind {
	case sink.KindLocal, sink.KindS3:
	default:
		return fmt.Errorf("storage.kind must be local or s3 (got %q)", cfg.Storage.Kind)
	}
	if cfg.Storage.Kind == sink.KindS3 {
		if _, _, err := sink.ParseS3Location(cfg.Storage.Location); err != nil {
			return fmt.Errorf("storage.location: %w", err)
		}
	}
	switch cfg.Checkpoint.Backend {
	case "file":
		if cfg.Checkpoint.Dir == "" {
			return fmt.Errorf("checkpoint.dir is required for the file backend")
		}
	case "redis":
	default:
		return fmt.Errorf("checkpoint.backend must be file or redis (got %q)", cfg.Checkpoint.Backend)
	}
	if cfg.UsesRedis() && cfg.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when a redis backend is configured")
	}
	if cfg.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1 (got %d)", cfg.Concurrency)
	}

	for i, job := range cfg.Jobs {
		if !isDataset(job.Dataset) {
			return fmt.Errorf("jobs[%d].dataset %q is unknown (want one of %s)", i, job.Dataset, strings.Join(Datasets, ", "))
		}
		if job.Dataset == "dockets" && len(job.AuthorIDs) == 0 {
			return fmt.Errorf("jobs[%d]: dockets requires author_ids", i)
		}
		if job.MaxPages < 0 || job.FlushThreshold < 0 {
			return fmt.Errorf("jobs[%d]: max_pages and flush_threshold must not be negative", i)
		}
	}

	return nil
}

// UsesRedis reports whether any backend needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return c.RateLimit.Backend == "redis" || c.Checkpoint.Backend == "redis"
}

func isDataset(name string) bool {
	for _, d := range Datasets {
		if d == name {
			return true
		}
	}
	return false
}
