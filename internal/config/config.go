package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/sirupsen/logrus"
)

const (
	BackendMemory = "memory"
	BackendDisk   = "disk"
)

// Config represents the application configuration
type Config struct {
	Log     LogConfig     `koanf:"log"`
	Storage StorageConfig `koanf:"storage"`
	Cache   CacheConfig   `koanf:"cache"`
	Weather WeatherConfig `koanf:"weather"`
	Metrics MetricsConfig `koanf:"metrics"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level string `koanf:"level"`
}

// StorageConfig describes the key-value substrate entries are persisted in
type StorageConfig struct {
	Backend    string `koanf:"backend"` // "memory" or "disk"
	Folder     string `koanf:"folder"`
	QuotaBytes int64  `koanf:"quota_bytes"`
}

// CacheConfig contains cache-related configuration
type CacheConfig struct {
	Prefix     string `koanf:"prefix"`
	DefaultTTL string `koanf:"default_ttl"`
}

// WeatherConfig contains the weather API settings
type WeatherConfig struct {
	Endpoint string `koanf:"endpoint"`
	APIKey   string `koanf:"api_key"`
	Location string `koanf:"location"`
	Units    string `koanf:"units"` // "standard", "metric" or "imperial"
	TTL      string `koanf:"ttl"`
	Refresh  string `koanf:"refresh"`
	Timeout  string `koanf:"timeout"`
	Days     int    `koanf:"days"`
}

// MetricsConfig contains metrics export configuration
type MetricsConfig struct {
	Textfile string `koanf:"textfile"`
}

// Default returns the configuration used when no file overrides a value
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Storage: StorageConfig{
			Backend:    BackendDisk,
			Folder:     "./kiosk_storage",
			QuotaBytes: 5 * 1024 * 1024,
		},
		Cache: CacheConfig{
			Prefix:     "cache_",
			DefaultTTL: "10m",
		},
		Weather: WeatherConfig{
			Endpoint: "https://api.openweathermap.org/data/2.5",
			Location: "London,UK",
			Units:    "imperial",
			TTL:      "10m",
			Refresh:  "10m",
			Timeout:  "10s",
			Days:     5,
		},
	}
}

// Load loads configuration from a YAML file on top of the defaults.
// An empty path only returns the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return &config, nil
}

// Watch calls fn with the freshly loaded configuration every time the file at
// path changes. Invalid configurations are logged and skipped.
// The returned function stops watching.
func Watch(path string, fn func(*Config)) (func(), error) {
	f := file.Provider(path)
	err := f.Watch(func(_ interface{}, err error) {
		if err != nil {
			logrus.Errorf("Config watch error: %v", err)
			return
		}

		cfg, err := Load(path)
		if err != nil {
			logrus.Errorf("Failed to reload config: %v", err)
			return
		}
		if err := cfg.Validate(); err != nil {
			logrus.Errorf("Ignoring invalid config change: %v", err)
			return
		}

		logrus.Infof("Reloaded configuration from %s", path)
		fn(cfg)
	})
	if err != nil {
		return nil, fmt.Errorf("watching config file: %w", err)
	}

	return func() {
		if err := f.Unwatch(); err != nil {
			logrus.Debugf("Failed to stop config watch: %v", err)
		}
	}, nil
}

// GetDefaultTTL parses and returns the default cache TTL duration
func (c *Config) GetDefaultTTL() (time.Duration, error) {
	return time.ParseDuration(c.Cache.DefaultTTL)
}

// GetWeatherTTL parses and returns how long weather responses stay cached
func (c *Config) GetWeatherTTL() (time.Duration, error) {
	return time.ParseDuration(c.Weather.TTL)
}

// GetWeatherRefresh parses and returns the weather refresh interval
func (c *Config) GetWeatherRefresh() (time.Duration, error) {
	return time.ParseDuration(c.Weather.Refresh)
}

// GetWeatherTimeout parses and returns the weather API request timeout
func (c *Config) GetWeatherTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Weather.Timeout)
}

// GetLogLevel parses and returns the configured log level
func (c *Config) GetLogLevel() (logrus.Level, error) {
	return logrus.ParseLevel(c.Log.Level)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if _, err := c.GetLogLevel(); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendDisk:
		if c.Storage.Folder == "" {
			return fmt.Errorf("storage folder is required for the disk backend")
		}
	default:
		return fmt.Errorf("storage backend must be '%s' or '%s', got: %s", BackendMemory, BackendDisk, c.Storage.Backend)
	}

	if c.Storage.QuotaBytes < 0 {
		return fmt.Errorf("invalid storage quota: %d", c.Storage.QuotaBytes)
	}

	if c.Cache.Prefix == "" {
		return fmt.Errorf("cache prefix is required")
	}

	for name, fn := range map[string]func() (time.Duration, error){
		"cache default TTL": c.GetDefaultTTL,
		"weather TTL":       c.GetWeatherTTL,
		"weather refresh":   c.GetWeatherRefresh,
		"weather timeout":   c.GetWeatherTimeout,
	} {
		d, err := fn()
		if err != nil {
			return fmt.Errorf("invalid %s format: %w", name, err)
		}
		if d < 0 {
			return fmt.Errorf("invalid %s: must not be negative", name)
		}
	}

	if refresh, _ := c.GetWeatherRefresh(); refresh == 0 {
		return fmt.Errorf("weather refresh interval must be positive")
	}

	if u, err := url.Parse(c.Weather.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid weather endpoint: %q", c.Weather.Endpoint)
	}

	switch c.Weather.Units {
	case "standard", "metric", "imperial":
	default:
		return fmt.Errorf("weather units must be 'standard', 'metric' or 'imperial', got: %s", c.Weather.Units)
	}

	if c.Weather.Days < 1 {
		return fmt.Errorf("invalid weather forecast days: %d", c.Weather.Days)
	}

	return nil
}
