// Package status provides a thread-safe view of the keyer daemon's state.
// The run loop writes it; HTTP handlers and MQTT heartbeats read it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/paddle-keyer/internal/keyer"
)

// Config contains daemon configuration for display.
type Config struct {
	Source      string
	PollMs      int64
	Debounce    int
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
}

// SourceStatus describes the paddle source.
type SourceStatus struct {
	Name      string
	Connected bool
	LastError string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Dit           bool
	Dah           bool
	KeyDown       bool
	KeyerState    keyer.State
	WPM           int
	Mode          keyer.Mode
	Counts        keyer.Counts
	Source        SourceStatus
	MQTTConnected bool
	Network       *NetworkInfo
	StartTime     time.Time
	Now           time.Time
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime:  startTime,
			Config:     cfg,
			Source:     SourceStatus{Name: cfg.Source},
			KeyerState: keyer.StateIdle,
		},
		now: time.Now,
	}
}

// SetPaddle records the debounced contact state.
func (t *Tracker) SetPaddle(dit, dah bool) {
	t.mu.Lock()
	t.snap.Dit = dit
	t.snap.Dah = dah
	t.mu.Unlock()
}

// SetKeyDown records whether the key is currently down.
func (t *Tracker) SetKeyDown(down bool) {
	t.mu.Lock()
	t.snap.KeyDown = down
	t.mu.Unlock()
}

// UpdateKeyer records engine state, settings and counters.
func (t *Tracker) UpdateKeyer(state keyer.State, wpm int, mode keyer.Mode, counts keyer.Counts) {
	t.mu.Lock()
	t.snap.KeyerState = state
	t.snap.WPM = wpm
	t.snap.Mode = mode
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetSourceConnected records the paddle source connection state. Connecting
// clears the last error.
func (t *Tracker) SetSourceConnected(connected bool) {
	t.mu.Lock()
	t.snap.Source.Connected = connected
	if connected {
		t.snap.Source.LastError = ""
	}
	t.mu.Unlock()
}

// SetSourceError records a paddle source failure.
func (t *Tracker) SetSourceError(msg string) {
	t.mu.Lock()
	t.snap.Source.LastError = msg
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.Network != nil {
		cp := *s.Network
		s.Network = &cp
	}
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
