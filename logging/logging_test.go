package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel(" error "))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("bogus"))
}

func TestNewWritesJSONToFile(t *testing.T) {
	base := filepath.Join(t.TempDir(), "report")
	logger := New(Params{Level: "info", Format: "json", File: base, Service: "refresh_daily"})
	logger.Debug("hidden")
	logger.Info("derived table written", zap.Int("rows", 3))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(base + ".log")
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry), "exactly one JSON line expected, got %q", data)
	assert.Equal(t, "derived table written", entry["msg"])
	assert.Equal(t, "refresh_daily", entry["service_name"])
	assert.EqualValues(t, 3, entry["rows"])
	assert.Contains(t, entry, "timestamp")
}
