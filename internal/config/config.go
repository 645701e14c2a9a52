// Package config loads paddle-keyer settings from a config file, the
// environment (PADDLE_KEYER_*) and command-line flags via viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"

	"github.com/sweeney/paddle-keyer/internal/keyer"
	"github.com/sweeney/paddle-keyer/internal/paddle"
)

// AppName is used for the config file name, config directories and the
// environment prefix.
const AppName = "paddle-keyer"

// Source types.
const (
	SourceSerial   = "serial"
	SourceGPIO     = "gpio"
	SourceGPIOEdge = "gpio-edge"
	SourceMIDI     = "midi"
)

// Config is the complete daemon configuration.
type Config struct {
	Keyer     KeyerConfig   `mapstructure:"keyer"`
	Source    SourceConfig  `mapstructure:"source"`
	MQTT      MQTTConfig    `mapstructure:"mqtt"`
	HTTP      HTTPConfig    `mapstructure:"http"`
	Heartbeat time.Duration `mapstructure:"heartbeat"`
	Log       LogConfig     `mapstructure:"log"`
}

// KeyerConfig holds engine settings. These may be changed at runtime by
// editing the config file.
type KeyerConfig struct {
	WPM  int    `mapstructure:"wpm"`
	Mode string `mapstructure:"mode"`
}

// SourceConfig selects and configures the paddle source.
type SourceConfig struct {
	Type string `mapstructure:"type"`

	// serial
	Port    string `mapstructure:"port"`
	DitLine string `mapstructure:"dit_line"`
	DahLine string `mapstructure:"dah_line"`

	// gpio, gpio-edge
	Chip   string `mapstructure:"chip"`
	DitPin int    `mapstructure:"dit_pin"`
	DahPin int    `mapstructure:"dah_pin"`

	// midi
	Device  string `mapstructure:"device"`
	DitNote int    `mapstructure:"dit_note"`
	DahNote int    `mapstructure:"dah_note"`

	PollInterval time.Duration `mapstructure:"poll_interval"`
	Debounce     int           `mapstructure:"debounce"` // consecutive reads; 0 = source default
	Settle       time.Duration `mapstructure:"settle"`   // gpio-edge only
}

// MQTTConfig configures event publishing.
type MQTTConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Broker        string `mapstructure:"broker"`
	ClientID      string `mapstructure:"client_id"`
	ElementsTopic string `mapstructure:"elements_topic"`
	SystemTopic   string `mapstructure:"system_topic"`
	BufferSize    int    `mapstructure:"buffer_size"`
}

// HTTPConfig configures the status server. An empty Addr disables it.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig configures logging. An empty File logs to stderr.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// SetDefaults registers every key with its default value. Keys must be
// registered for environment variables to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("keyer.wpm", keyer.DefaultWPM)
	v.SetDefault("keyer.mode", "B")

	v.SetDefault("source.type", SourceSerial)
	v.SetDefault("source.port", "/dev/ttyUSB0")
	v.SetDefault("source.dit_line", string(paddle.LineCTS))
	v.SetDefault("source.dah_line", string(paddle.LineDSR))
	v.SetDefault("source.chip", "gpiochip0")
	v.SetDefault("source.dit_pin", 17)
	v.SetDefault("source.dah_pin", 27)
	v.SetDefault("source.device", "")
	v.SetDefault("source.dit_note", paddle.DefaultDitNote)
	v.SetDefault("source.dah_note", paddle.DefaultDahNote)
	v.SetDefault("source.poll_interval", time.Millisecond)
	v.SetDefault("source.debounce", 0)
	v.SetDefault("source.settle", 500*time.Microsecond)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.elements_topic", "cw/keyer/elements")
	v.SetDefault("mqtt.system_topic", "cw/keyer/system")
	v.SetDefault("mqtt.buffer_size", 50)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("heartbeat", 15*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(strings.ReplaceAll(AppName, "-", "_"))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// ConfigDirs returns the directories searched for paddle-keyer.yaml, most
// specific first.
func ConfigDirs() []string {
	var dirs []string
	if c := os.Getenv("PADDLE_KEYER_CONFIG_HOME"); c != "" {
		dirs = append(dirs, c)
	}
	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append(dirs, filepath.Join(c, AppName))
	}
	for _, scope := range []*gap.Scope{gap.NewScope(gap.User, AppName), gap.NewScope(gap.System, AppName)} {
		if d, err := scope.ConfigDirs(); err == nil {
			dirs = append(dirs, d...)
		}
	}
	return dirs
}

// Read loads the config file into v. An explicit file must exist; without
// one, the default directories are searched and a missing file is not an
// error.
func Read(v *viper.Viper, file string) error {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		for _, d := range ConfigDirs() {
			v.AddConfigPath(d)
		}
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
	}

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err != nil && !(file == "" && errors.As(err, &notFound)) {
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings that cannot be corrected silently. An
// out-of-range wpm is not an error; the engine clamps it.
func (c Config) Validate() error {
	var errs []error

	if _, err := keyer.ParseMode(c.Keyer.Mode); err != nil {
		errs = append(errs, err)
	}

	s := c.Source
	switch s.Type {
	case SourceSerial:
		if s.Port == "" {
			errs = append(errs, errors.New("source.port is required for serial"))
		}
		dit, err := paddle.ParseModemLine(s.DitLine)
		if err != nil {
			errs = append(errs, fmt.Errorf("source.dit_line: %w", err))
		}
		dah, err := paddle.ParseModemLine(s.DahLine)
		if err != nil {
			errs = append(errs, fmt.Errorf("source.dah_line: %w", err))
		}
		if dit != "" && dit == dah {
			errs = append(errs, fmt.Errorf("source.dit_line and source.dah_line are both %s", dit))
		}
	case SourceGPIO, SourceGPIOEdge:
		if s.Chip == "" {
			errs = append(errs, errors.New("source.chip is required for gpio"))
		}
		if s.DitPin < 0 || s.DahPin < 0 {
			errs = append(errs, fmt.Errorf("gpio pins must be >= 0 (dit=%d dah=%d)", s.DitPin, s.DahPin))
		}
		if s.DitPin == s.DahPin {
			errs = append(errs, fmt.Errorf("source.dit_pin and source.dah_pin are both %d", s.DitPin))
		}
	case SourceMIDI:
		if s.DitNote < 0 || s.DitNote > 127 || s.DahNote < 0 || s.DahNote > 127 {
			errs = append(errs, fmt.Errorf("midi notes must be 0-127 (dit=%d dah=%d)", s.DitNote, s.DahNote))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown source.type %q (want serial, gpio, gpio-edge or midi)", s.Type))
	}
	if s.PollInterval <= 0 && (s.Type == SourceSerial || s.Type == SourceGPIO) {
		errs = append(errs, fmt.Errorf("source.poll_interval must be > 0, got %v", s.PollInterval))
	}
	if s.Debounce < 0 {
		errs = append(errs, fmt.Errorf("source.debounce must be >= 0, got %d", s.Debounce))
	}

	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
	}
	if c.Heartbeat < 0 {
		errs = append(errs, fmt.Errorf("heartbeat must be >= 0, got %v", c.Heartbeat))
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	return errors.Join(errs...)
}

// EngineConfig returns the engine configuration. Validate must have passed.
func (c Config) EngineConfig() keyer.Config {
	mode, _ := keyer.ParseMode(c.Keyer.Mode)
	return keyer.Config{WPM: c.Keyer.WPM, Mode: mode}
}

// SourceName is a short description of the configured source for logs and
// status output.
func (c Config) SourceName() string {
	s := c.Source
	switch s.Type {
	case SourceSerial:
		return "serial:" + s.Port
	case SourceGPIO, SourceGPIOEdge:
		return fmt.Sprintf("%s:%s/%d,%d", s.Type, s.Chip, s.DitPin, s.DahPin)
	case SourceMIDI:
		if s.Device == "" {
			return "midi:*"
		}
		return "midi:" + s.Device
	}
	return s.Type
}

// Watch reloads the config file on change and passes each valid result to
// onChange. Invalid edits are logged and ignored. Nothing is watched when no
// config file was read.
func Watch(v *viper.Viper, logger *log.Logger, onChange func(Config)) bool {
	if v.ConfigFileUsed() == "" {
		return false
	}
	if logger == nil {
		logger = log.Default()
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := Load(v)
		if err != nil {
			logger.Warn("ignoring invalid config change", "file", e.Name, "err", err)
			return
		}
		logger.Info("config reloaded", "file", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()
	return true
}
