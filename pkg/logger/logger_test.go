package logger

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fedialt/pkg/config"
)

func TestNewLogger(t *testing.T) {
	log, err := New(&config.LoggingConfig{Level: "debug"})
	require.NoError(t, err)
	require.NotNil(t, log)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestNewLoggerInvalidLevel(t *testing.T) {
	_, err := New(&config.LoggingConfig{Level: "loud"})
	require.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":    zerolog.DebugLevel,
		"info":     zerolog.InfoLevel,
		"warn":     zerolog.WarnLevel,
		"warning":  zerolog.WarnLevel,
		"error":    zerolog.ErrorLevel,
		"disabled": zerolog.Disabled,
		"ERROR":    zerolog.ErrorLevel,
	}
	for input, want := range tests {
		got, err := parseLogLevel(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}
}

func TestGetLoggerFallback(t *testing.T) {
	log := GetLogger()
	require.NotNil(t, log)
	log.Info("fallback logger works")
}

func TestTestLoggerRecordsThroughChildren(t *testing.T) {
	log := NewTestLogger()

	log.Info("plain message")
	log.WithField("platform", "mastodon").Warn("scoped message")
	log.WithFields(map[string]interface{}{"op": "get_post"}).
		WithError(errors.New("boom")).
		Error("failed")

	entries := log.Entries()
	require.Len(t, entries, 3)

	assert.True(t, log.HasMessage("plain message"))
	assert.True(t, log.HasMessage("scoped message"))

	warns := log.EntriesByLevel("warn")
	require.Len(t, warns, 1)
	assert.Equal(t, "mastodon", warns[0].Fields["platform"])

	errs := log.EntriesByLevel("error")
	require.Len(t, errs, 1)
	assert.Equal(t, "get_post", errs[0].Fields["op"])
	assert.Equal(t, "boom", errs[0].Fields["error"])

	log.Clear()
	assert.Empty(t, log.Entries())
}
