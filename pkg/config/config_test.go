package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 60, cfg.RateLimit.PerMinute)
	assert.Equal(t, 1000, cfg.RateLimit.PerHour)
	assert.Equal(t, 10000, cfg.RateLimit.PerDay)
	assert.Equal(t, 10, cfg.RateLimit.MaxBurst)

	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 60*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, 2.0, cfg.Retry.BackoffFactor)
	assert.True(t, cfg.Retry.Jitter)

	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestValidateRequiresCredentials(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "instance URL is required")
	assert.Contains(t, err.Error(), "access token is required")
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit.PerMinute = 0
	cfg.Retry.MaxAttempts = -1
	cfg.Retry.MaxDelay = cfg.Retry.BaseDelay / 2
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requests per minute must be positive")
	assert.Contains(t, err.Error(), "max attempts must be positive")
	assert.Contains(t, err.Error(), "max delay must be at least base delay")
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestValidateAccepts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Platform.InstanceURL = "https://mastodon.social"
	cfg.Platform.AccessToken = "token"

	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("FEDIALT_INSTANCE_URL", "https://pixelfed.social")
	t.Setenv("FEDIALT_ACCESS_TOKEN", "env-token")
	t.Setenv("FEDIALT_API_TYPE", "pixelfed")
	t.Setenv("FEDIALT_IS_PIXELFED", "true")
	t.Setenv("FEDIALT_REQUESTS_PER_MINUTE", "30")
	t.Setenv("FEDIALT_MAX_BURST", "5")
	t.Setenv("FEDIALT_MAX_RETRIES", "7")
	t.Setenv("FEDIALT_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "https://pixelfed.social", cfg.Platform.InstanceURL)
	assert.Equal(t, "env-token", cfg.Platform.AccessToken)
	assert.Equal(t, "pixelfed", cfg.Platform.APIType)
	assert.True(t, cfg.Platform.IsPixelfed)
	assert.Equal(t, 30, cfg.RateLimit.PerMinute)
	assert.Equal(t, 5, cfg.RateLimit.MaxBurst)
	assert.Equal(t, 7, cfg.Retry.MaxAttempts)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnvIgnoresInvalidNumbers(t *testing.T) {
	t.Setenv("FEDIALT_REQUESTS_PER_MINUTE", "lots")
	t.Setenv("FEDIALT_MAX_RETRIES", "-2")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, 60, cfg.RateLimit.PerMinute)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
}

func TestLoadFromFile(t *testing.T) {
	content := `
platform:
  instance_url: https://pleroma.example
  access_token: file-token
  api_type: pleroma
rate_limit:
  per_minute: 45
  max_burst: 8
  platforms:
    pleroma:
      per_minute: 20
retry:
  max_attempts: 5
logging:
  level: warn
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "https://pleroma.example", cfg.Platform.InstanceURL)
	assert.Equal(t, "pleroma", cfg.Platform.APIType)
	assert.Equal(t, 45, cfg.RateLimit.PerMinute)
	assert.Equal(t, 8, cfg.RateLimit.MaxBurst)
	assert.Equal(t, 20, cfg.RateLimit.Platforms["pleroma"].PerMinute)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, "warn", cfg.Logging.Level)

	// untouched fields keep their defaults
	assert.Equal(t, 1000, cfg.RateLimit.PerHour)
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadFromFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("platform: [not: a: map"), 0o644))

	cfg := DefaultConfig()
	err := cfg.LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoadPrecedence(t *testing.T) {
	content := `
platform:
  instance_url: https://from-file.example
  access_token: file-token
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("FEDIALT_INSTANCE_URL", "https://from-env.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	// environment beats the file; the file beats defaults
	assert.Equal(t, "https://from-env.example", cfg.Platform.InstanceURL)
	assert.Equal(t, "file-token", cfg.Platform.AccessToken)
	assert.Equal(t, 60, cfg.RateLimit.PerMinute)
}

func TestLoadValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}
