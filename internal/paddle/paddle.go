// Package paddle acquires Morse paddle contact state from hardware.
//
// Every source implements Sampler. A sampler owns one worker goroutine (or,
// for MIDI, a driver callback) and reports debounced contact changes and
// connection events on an ordered, bounded channel. Samplers never touch
// keyer state.
package paddle

import (
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/paddle-keyer/internal/debounce"
)

// Sampler is the capability shared by all paddle sources.
type Sampler interface {
	// Start opens the source and starts sampling. It returns a
	// *ConnectionError if the source cannot be opened.
	Start() error

	// Stop ends sampling and releases the source. It is idempotent. Once it
	// returns, no further events are delivered and Events is closed.
	Stop() error

	// Events delivers connection and debounced contact changes in the
	// order they were detected.
	Events() <-chan Event

	// Name identifies the source for logs and status.
	Name() string
}

// EventType identifies a sampler event.
type EventType string

const (
	EventConnected    EventType = "CONNECTED"
	EventDisconnected EventType = "DISCONNECTED"
	EventError        EventType = "ERROR"
	EventDit          EventType = "DIT"
	EventDah          EventType = "DAH"
)

// Event is a sampler notification.
type Event struct {
	Type    EventType
	Pressed bool   // EventDit, EventDah
	Message string // EventError
	Time    time.Time

	// More is set on a contact event when another change taken from the
	// same raw sample follows it. Consumers apply the whole run before
	// acting on the paddle state.
	More bool
}

// DefaultEventBuffer is the capacity of a sampler's event channel.
const DefaultEventBuffer = 64

// ErrInterrupted is returned by a blocking wait that was forced to return
// during shutdown.
var ErrInterrupted = errors.New("paddle: wait interrupted")

// ConnectionError reports that a source could not be opened or failed
// while sampling.
type ConnectionError struct {
	Source string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// State is the debounced contact pair as seen by the keyer side.
type State struct {
	Dit bool
	Dah bool
}

// Apply folds a contact event into s and reports whether the state changed.
// Non-contact events are ignored.
func (s *State) Apply(ev Event) bool {
	switch ev.Type {
	case EventDit:
		if s.Dit == ev.Pressed {
			return false
		}
		s.Dit = ev.Pressed
		return true
	case EventDah:
		if s.Dah == ev.Pressed {
			return false
		}
		s.Dah = ev.Pressed
		return true
	}
	return false
}

// SampleEvents converts the changes accepted from one raw sample into
// contact events stamped with the sample time. Every event but the last
// has More set.
func SampleEvents(changes []debounce.Change, now time.Time) []Event {
	if len(changes) == 0 {
		return nil
	}
	out := make([]Event, len(changes))
	for i, c := range changes {
		t := EventDit
		if c.Paddle == debounce.Dah {
			t = EventDah
		}
		out[i] = Event{Type: t, Pressed: c.Pressed, Time: now, More: i < len(changes)-1}
	}
	return out
}
