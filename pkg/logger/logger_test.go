package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewAllLogLevels(t *testing.T) {
	testCases := []struct {
		level         string
		expectedLevel zerolog.Level
		name          string
	}{
		{"debug", zerolog.DebugLevel, "debug"},
		{"info", zerolog.InfoLevel, "info"},
		{"warn", zerolog.WarnLevel, "warn"},
		{"error", zerolog.ErrorLevel, "error"},
		{"unknown", zerolog.InfoLevel, "unknown defaults to info"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			l := New(Config{Level: tc.level})
			assert.NotNil(t, l)
			assert.Equal(t, tc.expectedLevel, zerolog.GlobalLevel())
		})
	}
}

func TestNewErrorLevelFiltersLower(t *testing.T) {
	l := New(Config{Level: "error"})
	var buf bytes.Buffer
	l = l.Output(&buf)

	l.Info().Msg("should not appear")
	assert.NotContains(t, buf.String(), "should not appear")

	l.Error().Msg("should appear")
	assert.Contains(t, buf.String(), "should appear")
}

func TestNewPrettyOutput(t *testing.T) {
	l := New(Config{Level: "info", Pretty: true})
	var buf bytes.Buffer
	l = l.Output(&buf)
	l.Info().Msg("test message")

	assert.Contains(t, buf.String(), "test message")
}

func TestComponentTagsLogger(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: "info"}).Output(&buf)
	l := Component(base, "marketdata")

	l.Info().Msg("polled")
	assert.Contains(t, buf.String(), `"component":"marketdata"`)
}

func TestSetGlobalLogger(t *testing.T) {
	l := New(Config{Level: "info"})
	var buf bytes.Buffer
	testLogger := l.Output(&buf)

	SetGlobalLogger(l)
	testLogger.Info().Msg("global logger test")

	assert.Contains(t, buf.String(), "global logger test")
}
