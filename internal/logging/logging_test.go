package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, _, err := New(Options{Level: "chatty"})
	assert.Error(t, err)
}

func TestNewStderr(t *testing.T) {
	logger, closer, err := New(Options{Level: "warn"})
	require.NoError(t, err)
	assert.Equal(t, log.WarnLevel, logger.GetLevel())
	assert.NoError(t, closer())
}

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "keyer.log")
	logger, closer, err := New(Options{Level: "debug", File: path, MaxSizeMB: 1, Prefix: "keyer"})
	require.NoError(t, err)

	logger.Debug("element", "dit", true)
	logger.Info("started", "wpm", 25)
	require.NoError(t, closer())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "msg=element")
	assert.Contains(t, out, "dit=true")
	assert.Contains(t, out, "wpm=25")
	assert.Contains(t, out, "prefix=keyer")
}

func TestLevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyer.log")
	logger, closer, err := New(Options{Level: "error", File: path})
	require.NoError(t, err)

	logger.Warn("ignored")
	logger.Error("kept")
	require.NoError(t, closer())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "ignored")
	assert.Contains(t, string(data), "kept")
}
