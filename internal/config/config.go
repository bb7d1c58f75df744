// Package config loads application configuration from file and environment.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Ledger  LedgerConfig  `yaml:"ledger" mapstructure:"ledger"`
	Match   MatchConfig   `yaml:"match" mapstructure:"match"`
	Plan    PlanConfig    `yaml:"plan" mapstructure:"plan"`
	Sync    SyncConfig    `yaml:"sync" mapstructure:"sync"`
	Retry   RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Breaker BreakerConfig `yaml:"breaker" mapstructure:"breaker"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LedgerConfig holds the application-of-record API settings.
type LedgerConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// MatchConfig configures the diff engine tolerances.
type MatchConfig struct {
	AmountTolerance float64 `yaml:"amount_tolerance" mapstructure:"amount_tolerance"`
	RequireSameDate bool    `yaml:"require_same_date" mapstructure:"require_same_date"`
	MinSimilarity   float64 `yaml:"min_similarity" mapstructure:"min_similarity"`
}

// PlanConfig configures planner validation and normalization rules.
type PlanConfig struct {
	MinAmount       float64 `yaml:"min_amount" mapstructure:"min_amount"`
	MaxAutoSync     float64 `yaml:"max_auto_sync" mapstructure:"max_auto_sync"`
	DefaultCategory string  `yaml:"default_category" mapstructure:"default_category"`
	RequireDate     bool    `yaml:"require_date" mapstructure:"require_date"`
	DuplicateCheck  bool    `yaml:"duplicate_check" mapstructure:"duplicate_check"`
}

// SyncConfig configures executor pacing and per-attempt timeouts.
type SyncConfig struct {
	InterActionDelayMs int `yaml:"inter_action_delay_ms" mapstructure:"inter_action_delay_ms"`
	TimeoutSecs        int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// RetryConfig configures classified retry with exponential backoff.
type RetryConfig struct {
	MaxRetries     int     `yaml:"max_retries" mapstructure:"max_retries"`
	BaseDelayMs    int     `yaml:"base_delay_ms" mapstructure:"base_delay_ms"`
	MaxDelayMs     int     `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
	JitterFraction float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// BreakerConfig configures the downstream circuit breaker.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// CacheConfig configures idempotency result caching.
type CacheConfig struct {
	TTLHours int `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RECON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("ledger.base_url", "https://ledger.sellsadvisors.com")
	v.SetDefault("match.amount_tolerance", 0.01)
	v.SetDefault("match.require_same_date", true)
	v.SetDefault("match.min_similarity", 0.5)
	v.SetDefault("plan.min_amount", 1.00)
	v.SetDefault("plan.max_auto_sync", 10000.00)
	v.SetDefault("plan.default_category", "Uncategorized")
	v.SetDefault("plan.require_date", false)
	v.SetDefault("plan.duplicate_check", true)
	v.SetDefault("sync.inter_action_delay_ms", 100)
	v.SetDefault("sync.timeout_secs", 30)
	v.SetDefault("retry.max_retries", 2)
	v.SetDefault("retry.base_delay_ms", 1000)
	v.SetDefault("retry.max_delay_ms", 30000)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.reset_timeout_secs", 30)
	v.SetDefault("cache.ttl_hours", 24)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
