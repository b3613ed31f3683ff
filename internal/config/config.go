// Package config holds the explicit configuration value passed to every
// component at construction. There is no process-wide config state.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by LoadEnv.
const EnvPrefix = "PLUGBOOK_"

// StoreType selects the storage backend.
type StoreType string

const (
	StoreMemory   StoreType = "memory"
	StorePostgres StoreType = "postgres"
)

// Config is the complete engine configuration.
type Config struct {
	// Store selects the backend: memory or postgres.
	Store StoreType `yaml:"store" env:"STORE"`

	Postgres PostgresConfig `yaml:"postgres" envPrefix:"POSTGRES_"`

	// PoolSize bounds concurrently open units of work. For postgres it is the
	// connection pool size.
	PoolSize int32 `yaml:"pool_size" env:"POOL_SIZE"`

	// PoolAcquireTimeout is how long Begin waits for a free slot before
	// failing with ResourceExhausted.
	PoolAcquireTimeout time.Duration `yaml:"pool_acquire_timeout" env:"POOL_ACQUIRE_TIMEOUT"`

	// LockRetryCount is the number of attempts an operation gets when it
	// fails with a retryable error. 1 disables retries.
	LockRetryCount int `yaml:"lock_retry_count" env:"LOCK_RETRY_COUNT"`

	// RetryInitialInterval and RetryMaxInterval shape the exponential backoff
	// between attempts.
	RetryInitialInterval time.Duration `yaml:"retry_initial_interval" env:"RETRY_INITIAL_INTERVAL"`
	RetryMaxInterval     time.Duration `yaml:"retry_max_interval" env:"RETRY_MAX_INTERVAL"`

	Scoring ScoringPolicy `yaml:"scoring" envPrefix:"SCORING_"`

	Archive ArchiveConfig `yaml:"archive" envPrefix:"ARCHIVE_"`

	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"TELEMETRY_"`
}

// TelemetryConfig tunes the OTLP exporters enabled with --tracing. Endpoints
// and headers come from the standard OTEL_EXPORTER_OTLP_* variables.
type TelemetryConfig struct {
	// SampleRatio is the fraction of root spans kept, in [0, 1].
	SampleRatio    float64       `yaml:"sample_ratio" env:"SAMPLE_RATIO"`
	MetricInterval time.Duration `yaml:"metric_interval" env:"METRIC_INTERVAL"`
}

// PostgresConfig holds connection settings for the postgres backend.
type PostgresConfig struct {
	ConnString      string        `yaml:"conn_string" env:"CONN_STRING"`
	MinConns        int32         `yaml:"min_conns" env:"MIN_CONNS"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"MAX_CONN_LIFETIME"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"MAX_CONN_IDLE_TIME"`
	AutoMigrate     bool          `yaml:"auto_migrate" env:"AUTO_MIGRATE"`

	// StatementTimeout caps every statement; zero keeps the server default.
	StatementTimeout time.Duration `yaml:"statement_timeout" env:"STATEMENT_TIMEOUT"`

	// ConnectAttempts is how many times the initial ping is tried.
	ConnectAttempts uint `yaml:"connect_attempts" env:"CONNECT_ATTEMPTS"`
}

// ArchiveConfig sets where exported archives are uploaded. Uploads are
// optional; an empty bucket keeps archives on local disk.
type ArchiveConfig struct {
	S3Bucket    string `yaml:"s3_bucket" env:"S3_BUCKET"`
	S3Prefix    string `yaml:"s3_prefix" env:"S3_PREFIX"`
	S3Region    string `yaml:"s3_region" env:"S3_REGION"`
	S3Endpoint  string `yaml:"s3_endpoint" env:"S3_ENDPOINT"`
	S3PathStyle bool   `yaml:"s3_path_style" env:"S3_PATH_STYLE"`
}

// ScoringPolicy weights the lead-score components. With the defaults the
// positive weights sum to 100.
type ScoringPolicy struct {
	// Base is added to every score.
	Base float64 `yaml:"base" env:"BASE"`

	// RecencyWeight scales the saturating, recency-weighted interaction
	// count. An interaction HalfLife old counts half; Saturation weighted
	// interactions earn about 63% of the weight.
	RecencyWeight float64       `yaml:"recency_weight" env:"RECENCY_WEIGHT"`
	HalfLife      time.Duration `yaml:"half_life" env:"HALF_LIFE"`
	Saturation    float64       `yaml:"saturation" env:"SATURATION"`

	// DiversityWeight scales the share of distinct interaction kinds used.
	DiversityWeight float64 `yaml:"diversity_weight" env:"DIVERSITY_WEIGHT"`

	// OutcomeWeight scales the recency-weighted mean outcome in [-1, 1], so
	// negative outcomes pull the score down.
	OutcomeWeight float64 `yaml:"outcome_weight" env:"OUTCOME_WEIGHT"`

	// HotLeadThreshold is the score at or above which a lead is hot.
	HotLeadThreshold int `yaml:"hot_lead_threshold" env:"HOT_LEAD_THRESHOLD"`
}

// DefaultScoringPolicy returns the default lead-score weights.
func DefaultScoringPolicy() ScoringPolicy {
	return ScoringPolicy{
		Base:             10,
		RecencyWeight:    30,
		HalfLife:         30 * 24 * time.Hour,
		Saturation:       5,
		DiversityWeight:  20,
		OutcomeWeight:    40,
		HotLeadThreshold: 60,
	}
}

// Default returns the configuration used when nothing else is supplied.
func Default() *Config {
	return &Config{
		Store: StoreMemory,
		Postgres: PostgresConfig{
			MinConns:        2,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 30 * time.Minute,
			ConnectAttempts: 5,
		},
		PoolSize:             20,
		PoolAcquireTimeout:   5 * time.Second,
		LockRetryCount:       3,
		RetryInitialInterval: 50 * time.Millisecond,
		RetryMaxInterval:     2 * time.Second,
		Scoring:              DefaultScoringPolicy(),
		Telemetry: TelemetryConfig{
			SampleRatio:    1,
			MetricInterval: 10 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty), then the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.LoadEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFile overlays the YAML file at path. Keys absent from the file keep
// their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path) // #nosec G304 - operator supplied path
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// LoadEnv overlays PLUGBOOK_* environment variables. Unset variables keep
// their current values.
func (c *Config) LoadEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.Postgres.ConnString == "" {
			errs = append(errs, errors.New("postgres.conn_string is required when store is postgres"))
		}
		if c.Postgres.MinConns < 0 || c.Postgres.MinConns > c.PoolSize {
			errs = append(errs, fmt.Errorf("postgres.min_conns must be between 0 and pool_size, got %d", c.Postgres.MinConns))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid store: %q (must be memory or postgres)", c.Store))
	}

	if c.PoolSize <= 0 {
		errs = append(errs, fmt.Errorf("pool_size must be positive, got %d", c.PoolSize))
	}
	if c.PoolAcquireTimeout <= 0 {
		errs = append(errs, fmt.Errorf("pool_acquire_timeout must be positive, got %s", c.PoolAcquireTimeout))
	}
	if c.LockRetryCount < 1 {
		errs = append(errs, fmt.Errorf("lock_retry_count must be at least 1, got %d", c.LockRetryCount))
	}
	if c.RetryInitialInterval <= 0 || c.RetryMaxInterval < c.RetryInitialInterval {
		errs = append(errs, errors.New("retry intervals must be positive with retry_max_interval >= retry_initial_interval"))
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_ratio must be between 0 and 1, got %g", c.Telemetry.SampleRatio))
	}
	if c.Telemetry.MetricInterval <= 0 {
		errs = append(errs, fmt.Errorf("telemetry.metric_interval must be positive, got %s", c.Telemetry.MetricInterval))
	}

	if err := c.Scoring.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Validate checks the weights are consistent.
func (p ScoringPolicy) Validate() error {
	var errs []error

	for name, w := range map[string]float64{
		"scoring.base":             p.Base,
		"scoring.recency_weight":   p.RecencyWeight,
		"scoring.diversity_weight": p.DiversityWeight,
		"scoring.outcome_weight":   p.OutcomeWeight,
	} {
		if w < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %g", name, w))
		}
	}
	if p.HalfLife <= 0 {
		errs = append(errs, fmt.Errorf("scoring.half_life must be positive, got %s", p.HalfLife))
	}
	if p.Saturation <= 0 {
		errs = append(errs, fmt.Errorf("scoring.saturation must be positive, got %g", p.Saturation))
	}
	if p.HotLeadThreshold < 0 || p.HotLeadThreshold > 100 {
		errs = append(errs, fmt.Errorf("scoring.hot_lead_threshold must be between 0 and 100, got %d", p.HotLeadThreshold))
	}
	if ceiling := p.Base + p.RecencyWeight + p.DiversityWeight + p.OutcomeWeight; ceiling < float64(p.HotLeadThreshold) {
		errs = append(errs, fmt.Errorf("scoring weights sum to %g, below hot_lead_threshold %d", ceiling, p.HotLeadThreshold))
	}

	return errors.Join(errs...)
}
