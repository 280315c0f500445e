package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the root configuration structure for the engine.
type Config struct {
	Storage   StorageConfig   `mapstructure:"storage"`
	GC        GCConfig        `mapstructure:"gc"`
	Log       LogConfig       `mapstructure:"log"`
	Queue     QueueConfig     `mapstructure:"queue"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

// StorageConfig defines the internal structure of the keyspace.
type StorageConfig struct {
	Shards uint `mapstructure:"shards"`
}

// GCConfig defines the parameters for the background active expiration.
type GCConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Interval        time.Duration `mapstructure:"interval"`          // how often to run the background check
	SamplesPerCheck int           `mapstructure:"samples_per_check"` // how many keys to check per loop
	MatchThreshold  float64       `mapstructure:"match_threshold"`   // 0.0-1.0. if expired/scanned > threshold, repeat immediately
}

// LogConfig defines logging verbosity and output style.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// QueueConfig defines job retry and processing-timeout settings.
type QueueConfig struct {
	MaxRetries        int           `mapstructure:"max_retries"`
	ProcessingTimeout time.Duration `mapstructure:"processing_timeout"`
}

// RateLimitConfig defines the token-bucket parameters.
type RateLimitConfig struct {
	BucketCapacity     float64 `mapstructure:"bucket_capacity"`
	BucketRefillPerSec float64 `mapstructure:"bucket_refill_per_sec"`
}

// Load reads the configuration from a file and overrides it with environment variables.
func Load(path string) (*Config, error) {
	setDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(path)
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("NEBULA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults populates viper with fallback values if they are not provided via file or ENV.
func setDefaults() {
	// Storage
	viper.SetDefault("storage.shards", 32)

	// GC
	viper.SetDefault("gc.enabled", true)
	viper.SetDefault("gc.interval", "100ms")
	viper.SetDefault("gc.samples_per_check", 20)
	viper.SetDefault("gc.match_threshold", 0.25)

	// Logger
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")

	// Queue
	viper.SetDefault("queue.max_retries", 3)
	viper.SetDefault("queue.processing_timeout", "30s")

	// Rate limiting
	viper.SetDefault("ratelimit.bucket_capacity", 10)
	viper.SetDefault("ratelimit.bucket_refill_per_sec", 1)
}
