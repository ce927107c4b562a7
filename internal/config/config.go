package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/cachetune/cachetune/internal/metrics"
	"github.com/cachetune/cachetune/internal/optimizer"
	"github.com/cachetune/cachetune/internal/store"
	"github.com/cachetune/cachetune/pkg/retry"
	"github.com/cachetune/cachetune/pkg/types"
	"github.com/cachetune/cachetune/pkg/utils"
)

// Configuration represents the complete application configuration
type Configuration struct {
	Global      GlobalConfig      `yaml:"global"`
	Cache       CacheConfig       `yaml:"cache"`
	Store       StoreConfig       `yaml:"store"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Retry       RetryConfig       `yaml:"retry"`
	Monitoring  MonitoringConfig  `yaml:"monitoring"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFile   string `yaml:"log_file"`
	LogFormat string `yaml:"log_format"` // text or json
}

// CacheConfig represents optimization engine settings. Sizes are
// human-readable strings such as "512MB".
type CacheConfig struct {
	Strategy           string        `yaml:"strategy"`
	MaxSize            string        `yaml:"max_size"`
	MaxCount           int           `yaml:"max_count"`
	ReductionTarget    float64       `yaml:"reduction_target"`
	SLRUProtectedRatio float64       `yaml:"slru_protected_ratio"`
	TTLExtensionFactor float64       `yaml:"ttl_extension_factor"`
	MaxTTLMultiple     float64       `yaml:"max_ttl_multiple"`
	DefaultTTL         time.Duration `yaml:"default_ttl"`

	PriorityWeight  float64 `yaml:"priority_weight"`
	AgeWeight       float64 `yaml:"age_weight"`
	FrequencyWeight float64 `yaml:"frequency_weight"`
	SizeWeight      float64 `yaml:"size_weight"`

	LearningEnabled    bool `yaml:"learning_enabled"`
	PrefetchingEnabled bool `yaml:"prefetching_enabled"`
	MaxNeighbors       int  `yaml:"max_neighbors"`
}

// StoreConfig selects and configures the cache item store backend
type StoreConfig struct {
	Backend      string      `yaml:"backend"` // redis or s3
	MetadataPath string      `yaml:"metadata_path"`
	Redis        RedisConfig `yaml:"redis"`
	S3           S3Config    `yaml:"s3"`
}

// RedisConfig represents redis store settings
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	Timeout   time.Duration `yaml:"timeout"`
}

// S3Config represents s3 store settings
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	KeyPrefix       string `yaml:"key_prefix"`
	Endpoint        string `yaml:"endpoint"` // custom endpoint for S3-compatible stores
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// MaintenanceConfig drives the background optimization loop
type MaintenanceConfig struct {
	Interval      time.Duration `yaml:"interval"`
	PrefetchLimit int           `yaml:"prefetch_limit"`
}

// RetryConfig represents retry settings for store operations
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// MonitoringConfig represents metrics settings
type MonitoringConfig struct {
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	MetricsPort    int    `yaml:"metrics_port"`
	MetricsPath    string `yaml:"metrics_path"`
	Namespace      string `yaml:"namespace"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:  "INFO",
			LogFile:   "",
			LogFormat: "text",
		},
		Cache: CacheConfig{
			Strategy:           "slru",
			MaxSize:            "512MB",
			MaxCount:           100000,
			ReductionTarget:    0.25,
			SLRUProtectedRatio: 0.5,
			TTLExtensionFactor: 1.5,
			MaxTTLMultiple:     4.0,
			DefaultTTL:         5 * time.Minute,
			PriorityWeight:     0.25,
			AgeWeight:          0.25,
			FrequencyWeight:    0.25,
			SizeWeight:         0.25,
			LearningEnabled:    true,
			PrefetchingEnabled: true,
			MaxNeighbors:       8,
		},
		Store: StoreConfig{
			Backend:      "redis",
			MetadataPath: "cachetune-metadata.json",
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "cachetune",
				Timeout:   5 * time.Second,
			},
			S3: S3Config{
				Region:    "us-east-1",
				KeyPrefix: "cachetune/",
			},
		},
		Maintenance: MaintenanceConfig{
			Interval:      time.Minute,
			PrefetchLimit: 3,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   100 * time.Millisecond,
			MaxDelay:    10 * time.Second,
		},
		Monitoring: MonitoringConfig{
			MetricsEnabled: true,
			MetricsPort:    8080,
			MetricsPath:    "/metrics",
			Namespace:      "cachetune",
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv applies CACHETUNE_* environment overrides
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("CACHETUNE_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := os.Getenv("CACHETUNE_LOG_FILE"); val != "" {
		c.Global.LogFile = val
	}
	if val := os.Getenv("CACHETUNE_LOG_FORMAT"); val != "" {
		c.Global.LogFormat = val
	}

	if val := os.Getenv("CACHETUNE_STRATEGY"); val != "" {
		c.Cache.Strategy = val
	}
	if val := os.Getenv("CACHETUNE_MAX_SIZE"); val != "" {
		c.Cache.MaxSize = val
	}
	if val := os.Getenv("CACHETUNE_MAX_COUNT"); val != "" {
		if count, err := strconv.Atoi(val); err == nil {
			c.Cache.MaxCount = count
		}
	}
	if val := os.Getenv("CACHETUNE_DEFAULT_TTL"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Cache.DefaultTTL = duration
		}
	}
	if val := os.Getenv("CACHETUNE_LEARNING"); val != "" {
		c.Cache.LearningEnabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("CACHETUNE_PREFETCHING"); val != "" {
		c.Cache.PrefetchingEnabled = strings.ToLower(val) == "true"
	}

	if val := os.Getenv("CACHETUNE_STORE_BACKEND"); val != "" {
		c.Store.Backend = val
	}
	if val := os.Getenv("CACHETUNE_REDIS_ADDR"); val != "" {
		c.Store.Redis.Addr = val
	}
	if val := os.Getenv("CACHETUNE_REDIS_PASSWORD"); val != "" {
		c.Store.Redis.Password = val
	}
	if val := os.Getenv("CACHETUNE_S3_BUCKET"); val != "" {
		c.Store.S3.Bucket = val
	}
	if val := os.Getenv("CACHETUNE_S3_REGION"); val != "" {
		c.Store.S3.Region = val
	}

	if val := os.Getenv("CACHETUNE_MAINTENANCE_INTERVAL"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Maintenance.Interval = duration
		}
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	if _, err := utils.ParseLogLevel(c.Global.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %s", c.Global.LogLevel)
	}
	if c.Global.LogFormat != "text" && c.Global.LogFormat != "json" {
		return fmt.Errorf("invalid log_format: %s (must be text or json)", c.Global.LogFormat)
	}

	if _, err := utils.ParseBytes(c.Cache.MaxSize); err != nil {
		return fmt.Errorf("invalid cache max_size %q: %w", c.Cache.MaxSize, err)
	}

	switch c.Store.Backend {
	case "redis":
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("redis backend requires store.redis.addr")
		}
	case "s3":
		if c.Store.S3.Bucket == "" {
			return fmt.Errorf("s3 backend requires store.s3.bucket")
		}
	default:
		return fmt.Errorf("invalid store backend: %s (must be redis or s3)", c.Store.Backend)
	}

	if c.Store.MetadataPath != "" {
		if err := utils.ValidatePath(c.Store.MetadataPath, true); err != nil {
			return fmt.Errorf("invalid metadata_path: %w", err)
		}
	}

	if c.Maintenance.Interval <= 0 {
		return fmt.Errorf("maintenance interval must be positive")
	}
	if c.Maintenance.PrefetchLimit < 0 {
		return fmt.Errorf("prefetch_limit cannot be negative")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry max_attempts must be greater than 0")
	}

	// Strategy and the remaining engine ranges are validated by the optimizer
	// at construction; building the config here surfaces those errors early.
	engineCfg, err := c.OptimizerConfig()
	if err != nil {
		return err
	}
	if err := engineCfg.Validate(); err != nil {
		return fmt.Errorf("invalid cache settings: %w", err)
	}

	return nil
}

// OptimizerConfig maps the cache section onto the engine's configuration
func (c *Configuration) OptimizerConfig() (*optimizer.Config, error) {
	maxSize, err := utils.ParseBytes(c.Cache.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("invalid cache max_size %q: %w", c.Cache.MaxSize, err)
	}

	strategy := strings.ToLower(c.Cache.Strategy)
	if strategy == "" {
		strategy = string(types.StrategySLRU)
	}

	return &optimizer.Config{
		Strategy:           types.Strategy(strategy),
		MaxSize:            maxSize,
		MaxCount:           c.Cache.MaxCount,
		ReductionTarget:    c.Cache.ReductionTarget,
		SLRUProtectedRatio: c.Cache.SLRUProtectedRatio,
		TTLExtensionFactor: c.Cache.TTLExtensionFactor,
		MaxTTLMultiple:     c.Cache.MaxTTLMultiple,
		DefaultTTL:         c.Cache.DefaultTTL,
		PriorityWeight:     c.Cache.PriorityWeight,
		AgeWeight:          c.Cache.AgeWeight,
		FrequencyWeight:    c.Cache.FrequencyWeight,
		SizeWeight:         c.Cache.SizeWeight,
		LearningEnabled:    c.Cache.LearningEnabled,
		PrefetchingEnabled: c.Cache.PrefetchingEnabled,
		MaxNeighbors:       c.Cache.MaxNeighbors,
	}, nil
}

// RedisStoreConfig maps the redis section onto the store's configuration
func (c *Configuration) RedisStoreConfig() *store.RedisConfig {
	return &store.RedisConfig{
		Addr:      c.Store.Redis.Addr,
		Password:  c.Store.Redis.Password,
		DB:        c.Store.Redis.DB,
		KeyPrefix: c.Store.Redis.KeyPrefix,
		Timeout:   c.Store.Redis.Timeout,
	}
}

// S3StoreConfig maps the s3 section onto the store's configuration
func (c *Configuration) S3StoreConfig() *store.S3Config {
	return &store.S3Config{
		Bucket:          c.Store.S3.Bucket,
		Region:          c.Store.S3.Region,
		KeyPrefix:       c.Store.S3.KeyPrefix,
		Endpoint:        c.Store.S3.Endpoint,
		AccessKeyID:     c.Store.S3.AccessKeyID,
		SecretAccessKey: c.Store.S3.SecretAccessKey,
	}
}

// RetryPolicy maps the retry section onto the retry package's configuration,
// keeping the default retryable error codes and backoff shape.
func (c *Configuration) RetryPolicy() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = c.Retry.MaxAttempts
	if c.Retry.BaseDelay > 0 {
		cfg.InitialDelay = c.Retry.BaseDelay
	}
	if c.Retry.MaxDelay > 0 {
		cfg.MaxDelay = c.Retry.MaxDelay
	}
	return cfg
}

// MetricsConfig maps the monitoring section onto the collector's configuration
func (c *Configuration) MetricsConfig() *metrics.Config {
	cfg := metrics.DefaultConfig()
	cfg.Enabled = c.Monitoring.MetricsEnabled
	if c.Monitoring.MetricsPort > 0 {
		cfg.Port = c.Monitoring.MetricsPort
	}
	if c.Monitoring.MetricsPath != "" {
		cfg.Path = c.Monitoring.MetricsPath
	}
	if c.Monitoring.Namespace != "" {
		cfg.Namespace = c.Monitoring.Namespace
	}
	return cfg
}
