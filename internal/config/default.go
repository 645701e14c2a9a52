package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DefaultYAML is written by "paddle-keyer config init".
const DefaultYAML = `# paddle-keyer configuration

keyer:
  # words per minute, 5-60 (out of range values are clamped)
  wpm: 25
  # iambic mode: A or B
  mode: B

source:
  # serial, gpio, gpio-edge or midi
  type: serial
  # serial: paddle contacts on the input handshake lines (cts, dsr, dcd, ri)
  port: /dev/ttyUSB0
  dit_line: cts
  dah_line: dsr
  # gpio: chip and line offsets, contacts pull to ground
  chip: gpiochip0
  dit_pin: 17
  dah_pin: 27
  # midi: input port name substring (empty = first port) and note numbers
  device: ""
  dit_note: 1
  dah_note: 2
  poll_interval: 1ms
  # consecutive identical reads before a change is accepted (0 = source default)
  debounce: 0
  settle: 500us

mqtt:
  enabled: false
  broker: tcp://localhost:1883
  elements_topic: cw/keyer/elements
  system_topic: cw/keyer/system
  buffer_size: 50

http:
  # empty disables the status server
  addr: ":8080"

# 0 disables heartbeats
heartbeat: 15m

log:
  level: info
  # empty logs to stderr; otherwise the file is rotated
  file: ""
  max_size_mb: 10
  max_backups: 3
  max_age_days: 28
`

// WriteDefault writes DefaultYAML to path, creating parent directories. An
// existing file is left alone and reported with fs.ErrExist.
func WriteDefault(path string) error {
	if ext := filepath.Ext(path); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '.yaml' or '.yml'", ext)
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s: %w", path, fs.ErrExist)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("unable to create directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(DefaultYAML), 0o644); err != nil {
		return fmt.Errorf("unable to write config file: %w", err)
	}
	return nil
}
