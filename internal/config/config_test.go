package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/paddle-keyer/internal/keyer"
)

func loadFrom(t *testing.T, yaml string) (Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "paddle-keyer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	v := New()
	require.NoError(t, Read(v, path))
	return Load(v)
}

func TestDefaultsAreValid(t *testing.T) {
	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Keyer.WPM)
	assert.Equal(t, keyer.ModeB, cfg.EngineConfig().Mode)
	assert.Equal(t, SourceSerial, cfg.Source.Type)
	assert.Equal(t, time.Millisecond, cfg.Source.PollInterval)
	assert.Equal(t, 15*time.Minute, cfg.Heartbeat)
	assert.Equal(t, "cw/keyer/system", cfg.MQTT.SystemTopic)
	assert.False(t, cfg.MQTT.Enabled)
}

func TestDefaultYAMLMatchesDefaults(t *testing.T) {
	fromFile, err := loadFrom(t, DefaultYAML)
	require.NoError(t, err)
	fromDefaults, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, fromDefaults, fromFile)
}

func TestReadFile(t *testing.T) {
	cfg, err := loadFrom(t, `
keyer:
  wpm: 32
  mode: iambic-a
source:
  type: midi
  device: Arduino
  dit_note: 60
  dah_note: 62
heartbeat: 0s
`)
	require.NoError(t, err)

	assert.Equal(t, keyer.Config{WPM: 32, Mode: keyer.ModeA}, cfg.EngineConfig())
	assert.Equal(t, 60, cfg.Source.DitNote)
	assert.Equal(t, "midi:Arduino", cfg.SourceName())
	assert.Zero(t, cfg.Heartbeat)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("PADDLE_KEYER_KEYER_WPM", "40")
	t.Setenv("PADDLE_KEYER_SOURCE_POLL_INTERVAL", "2ms")

	cfg, err := loadFrom(t, "keyer:\n  wpm: 20\n")
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Keyer.WPM)
	assert.Equal(t, 2*time.Millisecond, cfg.Source.PollInterval)
}

func TestReadMissingFile(t *testing.T) {
	err := Read(New(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err, "an explicit file must exist")

	t.Setenv("PADDLE_KEYER_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	assert.NoError(t, Read(New(), ""), "searching default locations tolerates no file")
}

func TestReadFromConfigHome(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PADDLE_KEYER_CONFIG_HOME", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "paddle-keyer.yaml"), []byte("keyer:\n  wpm: 18\n"), 0o644))

	v := New()
	require.NoError(t, Read(v, ""))
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 18, cfg.Keyer.WPM)
	assert.Equal(t, filepath.Join(dir, "paddle-keyer.yaml"), v.ConfigFileUsed())
}

func TestValidate(t *testing.T) {
	base, err := Load(New())
	require.NoError(t, err)

	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"wpm out of range is clamped later", func(c *Config) { c.Keyer.WPM = -3 }, true},
		{"bad mode", func(c *Config) { c.Keyer.Mode = "C" }, false},
		{"unknown source", func(c *Config) { c.Source.Type = "usb" }, false},
		{"serial without port", func(c *Config) { c.Source.Port = "" }, false},
		{"serial bad line", func(c *Config) { c.Source.DitLine = "rts" }, false},
		{"serial same lines", func(c *Config) { c.Source.DahLine = "CTS" }, false},
		{"zero poll interval", func(c *Config) { c.Source.PollInterval = 0 }, false},
		{"negative debounce", func(c *Config) { c.Source.Debounce = -1 }, false},
		{"gpio same pins", func(c *Config) { c.Source.Type = SourceGPIO; c.Source.DahPin = c.Source.DitPin }, false},
		{"gpio negative pin", func(c *Config) { c.Source.Type = SourceGPIOEdge; c.Source.DitPin = -1 }, false},
		{"gpio-edge ignores poll interval", func(c *Config) { c.Source.Type = SourceGPIOEdge; c.Source.PollInterval = 0 }, true},
		{"midi note range", func(c *Config) { c.Source.Type = SourceMIDI; c.Source.DahNote = 128 }, false},
		{"mqtt without broker", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.Broker = "" }, false},
		{"negative heartbeat", func(c *Config) { c.Heartbeat = -time.Second }, false},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg, err := Load(New())
	require.NoError(t, err)
	cfg.Keyer.Mode = "Z"
	cfg.Log.Level = "loud"

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Z")
	assert.Contains(t, err.Error(), "log.level")
}

func TestSourceName(t *testing.T) {
	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, "serial:/dev/ttyUSB0", cfg.SourceName())

	cfg.Source.Type = SourceGPIOEdge
	assert.Equal(t, "gpio-edge:gpiochip0/17,27", cfg.SourceName())

	cfg.Source.Type = SourceMIDI
	assert.Equal(t, "midi:*", cfg.SourceName())
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "paddle-keyer.yaml")
	require.NoError(t, WriteDefault(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultYAML, string(data))

	assert.ErrorIs(t, WriteDefault(path), fs.ErrExist)
	assert.Error(t, WriteDefault(filepath.Join(t.TempDir(), "paddle-keyer.toml")))
}

func TestWatchWithoutFile(t *testing.T) {
	assert.False(t, Watch(New(), nil, func(Config) {}))
}

func TestWatchReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paddle-keyer.yaml")
	require.NoError(t, os.WriteFile(path, []byte("keyer:\n  wpm: 20\n"), 0o644))

	v := New()
	require.NoError(t, Read(v, path))

	var wpm atomic.Int64
	require.True(t, Watch(v, nil, func(c Config) { wpm.Store(int64(c.Keyer.WPM)) }))

	require.NoError(t, os.WriteFile(path, []byte("keyer:\n  wpm: 35\n"), 0o644))
	assert.Eventually(t, func() bool { return wpm.Load() == 35 }, 5*time.Second, 20*time.Millisecond)
}
