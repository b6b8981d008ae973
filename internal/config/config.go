// Package config defines the cache's configuration surface: a YAML-tagged
// struct with environment-variable overrides and a validation pass, in the
// teacher's configuration style (internal/config), narrowed to exactly the
// options the cache recognizes.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	cerrors "github.com/objectfs/extractcache/pkg/errors"
)

const (
	minMemorySize = 1 << 20         // 1 MiB
	maxMemorySize = 10 << 30        // 10 GiB
	component     = "config"
)

// Configuration holds every option recognized by the cache.
type Configuration struct {
	CacheDir         string   `yaml:"cache_dir"`
	MaxMemorySize    int64    `yaml:"max_memory_size"`
	VerifyHash       bool     `yaml:"verify_hash"`
	DBPoolSize       int      `yaml:"db_pool_size"`
	CompressionLevel int      `yaml:"compression_level"`
	BloomFilterSize  uint     `yaml:"bloom_filter_size"`
	AllowedPaths     []string `yaml:"allowed_paths"`
	Debug            bool     `yaml:"debug"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	// Backend selects the persistent metadata store implementation:
	// "sqlite" (embedded relational) or "redis" (remote key-value).
	Backend     string      `yaml:"backend"`
	RedisConfig RedisConfig `yaml:"redis"`
}

// RedisConfig configures the remote key-value backend. It is only consulted
// when Backend == "redis".
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// NewDefault returns a configuration with the same defaults as the
// reference implementation's environment-variable fallbacks.
func NewDefault() *Configuration {
	return &Configuration{
		CacheDir:         "./cache_storage",
		MaxMemorySize:    100 * 1024 * 1024,
		VerifyHash:       true,
		DBPoolSize:       10,
		CompressionLevel: 6,
		BloomFilterSize:  1_000_000,
		AllowedPaths:     nil,
		Debug:            false,
		LogLevel:         "INFO",
		Backend:          "sqlite",
		RedisConfig: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "cache",
		},
	}
}

// LoadFromFile loads configuration from a YAML file, applied on top of
// NewDefault's zero-configuration defaults.
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

// LoadFromEnv applies environment-variable overrides, mirroring the
// reference implementation's CACHE_DIR/MAX_MEMORY_SIZE/VERIFY_HASH/
// DB_POOL_SIZE/COMPRESSION_LEVEL/BLOOM_FILTER_SIZE/DEBUG variables.
func (c *Configuration) LoadFromEnv() {
	if v := os.Getenv("CACHE_DIR"); v != "" {
		c.CacheDir = v
	}
	if v := os.Getenv("MAX_MEMORY_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MaxMemorySize = n
		}
	}
	if v := os.Getenv("VERIFY_HASH"); v != "" {
		c.VerifyHash = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("DB_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DBPoolSize = n
		}
	}
	if v := os.Getenv("COMPRESSION_LEVEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.CompressionLevel = n
		}
	}
	if v := os.Getenv("BLOOM_FILTER_SIZE"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.BloomFilterSize = uint(n)
		}
	}
	if v := os.Getenv("DEBUG"); v != "" {
		c.Debug = strings.EqualFold(v, "true")
	}
}

// Validate checks the configuration's bounds, matching the reference
// implementation's field validators: max_memory_size in [1 MiB, 10 GiB],
// compression_level in [0, 9].
func (c *Configuration) Validate() error {
	if c.CacheDir == "" {
		return cerrors.Configuration(component, "cache_dir must not be empty")
	}
	if c.MaxMemorySize < minMemorySize {
		return cerrors.Configuration(component, "max_memory_size must be at least 1MB")
	}
	if c.MaxMemorySize > maxMemorySize {
		return cerrors.Configuration(component, "max_memory_size must not exceed 10GB")
	}
	if c.CompressionLevel < 0 || c.CompressionLevel > 9 {
		return cerrors.Configuration(component, "compression_level must be between 0 and 9")
	}
	if c.DBPoolSize <= 0 {
		return cerrors.Configuration(component, "db_pool_size must be greater than 0")
	}
	if c.BloomFilterSize == 0 {
		return cerrors.Configuration(component, "bloom_filter_size must be greater than 0")
	}
	switch c.Backend {
	case "sqlite", "redis":
	default:
		return cerrors.Configuration(component, fmt.Sprintf("unknown backend %q (must be sqlite or redis)", c.Backend))
	}
	if c.Backend == "redis" && c.RedisConfig.Addr == "" {
		return cerrors.Configuration(component, "redis.addr must be set when backend is redis")
	}
	return nil
}
