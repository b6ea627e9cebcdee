package obslog

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_DefaultsToJSONStdout(t *testing.T) {
	logger := New(Config{})
	require := assert.New(t)
	require.NotNil(logger)
	require.True(logger.Enabled(nil, slog.LevelInfo))
	require.False(logger.Enabled(nil, slog.LevelDebug))
}

func TestNew_DebugEnablesDebugLevel(t *testing.T) {
	logger := New(Config{Level: "debug"})
	assert.True(t, logger.Enabled(nil, slog.LevelDebug))
}

func TestNew_TextFormat(t *testing.T) {
	logger := New(Config{Format: "text"})
	assert.NotNil(t, logger)
}

func TestNew_FileOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "dephealth.log")

	logger := New(Config{Output: "file", FilePath: path, MaxSize: 1})
	logger.Info("hello")

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	logger := New(Config{Level: "bogus"})
	assert.True(t, logger.Enabled(nil, slog.LevelInfo))
	assert.False(t, logger.Enabled(nil, slog.LevelDebug))
}
