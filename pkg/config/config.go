package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the ActivityPub client layer.
type Config struct {
	// Platform connection and credentials
	Platform PlatformConfig `yaml:"platform" json:"platform"`

	// Rate limiting ceilings and per-scope overrides
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Retry behaviour for outbound calls
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// HTTP session settings
	HTTP HTTPConfig `yaml:"http" json:"http"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// PlatformConfig identifies the target instance and carries its credentials.
//
// APIType selects the adapter explicitly. PlatformType and IsPixelfed are
// older spellings of the same choice and are only consulted when APIType is
// empty; see the factory's resolution order.
type PlatformConfig struct {
	InstanceURL  string `yaml:"instance_url" json:"instance_url"`
	AccessToken  string `yaml:"access_token" json:"access_token"`
	ClientKey    string `yaml:"client_key" json:"client_key"`
	ClientSecret string `yaml:"client_secret" json:"client_secret"`
	APIType      string `yaml:"api_type" json:"api_type"`
	PlatformType string `yaml:"platform_type" json:"platform_type"`
	IsPixelfed   bool   `yaml:"is_pixelfed" json:"is_pixelfed"`
}

// WindowLimits holds request ceilings per refill window. A zero value means
// that window is unlimited for the scope.
type WindowLimits struct {
	PerMinute int `yaml:"per_minute" json:"per_minute"`
	PerHour   int `yaml:"per_hour" json:"per_hour"`
	PerDay    int `yaml:"per_day" json:"per_day"`
}

// RateLimitConfig holds the global ceilings plus optional per-endpoint,
// per-platform, and per-platform-per-endpoint overrides. Scopes without an
// entry are unlimited.
type RateLimitConfig struct {
	PerMinute int `yaml:"per_minute" json:"per_minute"`
	PerHour   int `yaml:"per_hour" json:"per_hour"`
	PerDay    int `yaml:"per_day" json:"per_day"`
	MaxBurst  int `yaml:"max_burst" json:"max_burst"`

	Endpoints         map[string]WindowLimits            `yaml:"endpoints" json:"endpoints"`
	Platforms         map[string]WindowLimits            `yaml:"platforms" json:"platforms"`
	PlatformEndpoints map[string]map[string]WindowLimits `yaml:"platform_endpoints" json:"platform_endpoints"`
}

// RetryConfig holds retry and backoff parameters.
type RetryConfig struct {
	MaxAttempts   int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay     time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay" json:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor" json:"backoff_factor"`
	Jitter        bool          `yaml:"jitter" json:"jitter"`
	JitterFactor  float64       `yaml:"jitter_factor" json:"jitter_factor"`
}

// HTTPConfig holds settings for the shared HTTP session.
type HTTPConfig struct {
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RateLimit: RateLimitConfig{
			PerMinute: 60,
			PerHour:   1000,
			PerDay:    10000,
			MaxBurst:  10,
		},
		Retry: RetryConfig{
			MaxAttempts:   3,
			BaseDelay:     1 * time.Second,
			MaxDelay:      60 * time.Second,
			BackoffFactor: 2.0,
			Jitter:        true,
			JitterFactor:  0.1,
		},
		HTTP: HTTPConfig{
			Timeout:   30 * time.Second,
			UserAgent: "fedialt/1.0",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv overrides configuration from environment variables.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("FEDIALT_INSTANCE_URL"); v != "" {
		c.Platform.InstanceURL = v
	}
	if v := os.Getenv("FEDIALT_ACCESS_TOKEN"); v != "" {
		c.Platform.AccessToken = v
	}
	if v := os.Getenv("FEDIALT_CLIENT_KEY"); v != "" {
		c.Platform.ClientKey = v
	}
	if v := os.Getenv("FEDIALT_CLIENT_SECRET"); v != "" {
		c.Platform.ClientSecret = v
	}
	if v := os.Getenv("FEDIALT_API_TYPE"); v != "" {
		c.Platform.APIType = v
	}
	if v := os.Getenv("FEDIALT_IS_PIXELFED"); v != "" {
		c.Platform.IsPixelfed = strings.ToLower(v) == "true"
	}

	if v := os.Getenv("FEDIALT_REQUESTS_PER_MINUTE"); v != "" {
		var n int
		fmt.Sscanf(v, "%d", &n)
		if n > 0 {
			c.RateLimit.PerMinute = n
		}
	}
	if v := os.Getenv("FEDIALT_MAX_BURST"); v != "" {
		var n int
		fmt.Sscanf(v, "%d", &n)
		if n > 0 {
			c.RateLimit.MaxBurst = n
		}
	}
	if v := os.Getenv("FEDIALT_MAX_RETRIES"); v != "" {
		var n int
		fmt.Sscanf(v, "%d", &n)
		if n > 0 {
			c.Retry.MaxAttempts = n
		}
	}
	if v := os.Getenv("FEDIALT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file. An empty path searches
// the standard locations; finding none is not an error.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for a config file in standard locations.
func (c *Config) findConfigFile() string {
	locations := []string{
		".fedialt.yaml",
		".fedialt.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "fedialt", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "fedialt", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks that the configuration is usable. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Platform.InstanceURL == "" {
		errs = append(errs, errors.New("instance URL is required"))
	}
	if c.Platform.AccessToken == "" {
		errs = append(errs, errors.New("access token is required"))
	}

	if c.RateLimit.PerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.PerHour <= 0 {
		errs = append(errs, errors.New("requests per hour must be positive"))
	}
	if c.RateLimit.PerDay <= 0 {
		errs = append(errs, errors.New("requests per day must be positive"))
	}
	if c.RateLimit.MaxBurst <= 0 {
		errs = append(errs, errors.New("max burst must be positive"))
	}

	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("max attempts must be positive"))
	}
	if c.Retry.BaseDelay <= 0 {
		errs = append(errs, errors.New("base delay must be positive"))
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		errs = append(errs, errors.New("max delay must be at least base delay"))
	}
	if c.Retry.BackoffFactor < 1.0 {
		errs = append(errs, errors.New("backoff factor must be at least 1.0"))
	}
	if c.Retry.JitterFactor < 0 || c.Retry.JitterFactor > 1 {
		errs = append(errs, errors.New("jitter factor must be between 0 and 1"))
	}

	if c.HTTP.Timeout <= 0 {
		errs = append(errs, errors.New("HTTP timeout must be positive"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Load loads configuration from all sources with proper precedence:
// environment variables > .env file > config file > defaults.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".fedialt.env"))

	cfg := DefaultConfig()

	if err := cfg.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}
