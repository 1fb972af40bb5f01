package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWithWriter_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	cfg := LoggingConfig{Level: "info", Format: "json"}

	logger := NewLoggerWithWriter(cfg, &buf)
	logger.Info("segment written", slog.Int("index", 3))

	output := buf.String()
	assert.Contains(t, output, "segment written")
	assert.Contains(t, output, `"index":3`)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(output), &parsed))
}

func TestNewLoggerWithWriter_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	cfg := LoggingConfig{Level: "info", Format: "text"}

	logger := NewLoggerWithWriter(cfg, &buf)
	logger.Info("segment written", slog.Int("index", 3))

	assert.Contains(t, buf.String(), "index=3")
}

func TestNewLoggerWithWriter_Levels(t *testing.T) {
	tests := []struct {
		name        string
		configLevel string
		logLevel    slog.Level
		shouldLog   bool
	}{
		{"debug logs at debug level", "debug", slog.LevelDebug, true},
		{"info does not log debug", "info", slog.LevelDebug, false},
		{"info logs at info level", "info", slog.LevelInfo, true},
		{"warn does not log info", "warn", slog.LevelInfo, false},
		{"error logs at error level", "error", slog.LevelError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			cfg := LoggingConfig{Level: tt.configLevel, Format: "json"}
			logger := NewLoggerWithWriter(cfg, &buf)
			logger.Log(t.Context(), tt.logLevel, "test")

			if tt.shouldLog {
				assert.NotEmpty(t, buf.String())
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestKeyMaterialRedaction(t *testing.T) {
	tests := []struct {
		name      string
		fieldName string
		value     string
	}{
		{"lowercase key", "key", "00112233445566778899aabbccddeeff"},
		{"capitalized Key", "Key", "00112233445566778899aabbccddeeff"},
		{"lowercase iv", "iv", "000000000000000000000000000001"},
		{"capitalized IV", "IV", "000000000000000000000000000001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			cfg := LoggingConfig{Level: "info", Format: "json"}
			logger := NewLoggerWithWriter(cfg, &buf)

			logger.Info("encryption configured", slog.String(tt.fieldName, tt.value))

			output := buf.String()
			assert.NotContains(t, output, tt.value)
			assert.Contains(t, output, "[REDACTED]")
		})
	}
}

func TestNonSensitiveFieldsPreserved(t *testing.T) {
	var buf bytes.Buffer
	cfg := LoggingConfig{Level: "info", Format: "json"}
	logger := NewLoggerWithWriter(cfg, &buf)

	logger.Info("segment closed", slog.Int("index", 4), slog.Float64("duration_sec", 6.02))

	output := buf.String()
	assert.Contains(t, output, `"index":4`)
	assert.Contains(t, output, "6.02")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.input))
		})
	}
}
