package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rxlens/backend/internal/logger"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	RxNorm   RxNormConfig   `mapstructure:"rxnorm"`
	Store    StoreConfig    `mapstructure:"store"`
	Matching MatchingConfig `mapstructure:"matching"`
	Log      logger.Config  `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port        string `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
}

// RxNormConfig holds terminology service configuration.
type RxNormConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	// RequestsPerSecond and Burst shape the shared token-bucket limiter.
	// RxNav asks clients to stay under 20 requests per second.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// StoreConfig holds match store configuration.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// MatchingConfig holds pipeline and scorer configuration.
type MatchingConfig struct {
	FuzzyThreshold    float64 `mapstructure:"fuzzy_threshold"`
	FuzzyEditDistance int     `mapstructure:"fuzzy_edit_distance"`
	Concurrency       int     `mapstructure:"concurrency"`
	MaxAttempts       int     `mapstructure:"max_attempts"`
	FlushSize         int     `mapstructure:"flush_size"`
}

// Load loads configuration from the environment, an optional .env file and
// an optional config file. Validation failures here are fatal: a bad config
// must abort the run before any work starts.
func Load() (*Config, error) {
	// Ignore error if the file doesn't exist (e.g. production).
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/rxlens/")

	v.SetEnvPrefix("RXLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; environment variables and defaults apply.
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")

	v.SetDefault("rxnorm.base_url", "https://rxnav.nlm.nih.gov/REST")
	v.SetDefault("rxnorm.timeout", "30s")
	v.SetDefault("rxnorm.max_attempts", 3)
	v.SetDefault("rxnorm.requests_per_second", 15.0)
	v.SetDefault("rxnorm.burst", 5)

	v.SetDefault("store.path", "data/rxlens.db")

	v.SetDefault("matching.fuzzy_threshold", 0.75)
	v.SetDefault("matching.fuzzy_edit_distance", 1)
	v.SetDefault("matching.concurrency", 4)
	v.SetDefault("matching.max_attempts", 3)
	v.SetDefault("matching.flush_size", 100)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// validate validates the configuration.
func validate(config *Config) error {
	if config.RxNorm.BaseURL == "" {
		return fmt.Errorf("rxnorm base URL is required (set RXLENS_RXNORM_BASE_URL)")
	}
	if config.Store.Path == "" {
		return fmt.Errorf("store path is required (set RXLENS_STORE_PATH)")
	}
	if config.Matching.FuzzyThreshold < 0 || config.Matching.FuzzyThreshold > 1 {
		return fmt.Errorf("matching fuzzy threshold must be in [0,1], got: %v", config.Matching.FuzzyThreshold)
	}
	if config.RxNorm.RequestsPerSecond <= 0 {
		return fmt.Errorf("rxnorm requests per second must be positive, got: %v", config.RxNorm.RequestsPerSecond)
	}
	return nil
}
