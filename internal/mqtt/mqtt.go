// Package mqtt publishes keyer element events and daemon lifecycle events
// to an MQTT broker, with a fake for tests.
package mqtt

import (
	"encoding/json"
	"time"
)

// Default topics.
const (
	TopicElements = "cw/keyer/elements"
	TopicSystem   = "cw/keyer/system"
)

// Publisher publishes events to MQTT. Implementations must not block the
// caller on network round trips: PublishElement is called on the keyer's
// goroutine.
type Publisher interface {
	// PublishElement sends a key-down/key-up event. Element events are
	// dropped while disconnected.
	PublishElement(event ElementEvent) error

	// PublishSystem sends a lifecycle event. System events raised while
	// disconnected are buffered and replayed on reconnect.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// ElementEvent is one keyer output event.
type ElementEvent struct {
	Timestamp time.Time
	Down      bool
	IsDit     bool // meaningful only when Down
	WPM       int
}

// SystemEvent is a daemon lifecycle event (STARTUP, SHUTDOWN, HEARTBEAT,
// SOURCE_CONNECTED, SOURCE_DISCONNECTED, SOURCE_ERROR, WATCHDOG_RESET).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string // shutdown signal or error message
	RawPayload []byte // pre-formatted JSON; if set, FormatSystemPayload returns it as is
	Retained   bool
}

// ElementPayload is the JSON envelope for element events.
type ElementPayload struct {
	Element ElementInner `json:"element"`
}

// ElementInner contains the element event details.
type ElementInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`             // KEY_DOWN or KEY_UP
	Element   string `json:"element,omitempty"` // DIT or DAH on KEY_DOWN
	WPM       int    `json:"wpm"`
}

// FormatElementPayload creates the JSON payload for an element event.
// Timestamps keep millisecond precision; element timing is the point.
func FormatElementPayload(event ElementEvent) ([]byte, error) {
	inner := ElementInner{
		Timestamp: event.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Event:     "KEY_UP",
		WPM:       event.WPM,
	}
	if event.Down {
		inner.Event = "KEY_DOWN"
		inner.Element = "DAH"
		if event.IsDit {
			inner.Element = "DIT"
		}
	}
	return json.Marshal(ElementPayload{Element: inner})
}

// SystemPayload is the JSON envelope for simple system events (LWT,
// RECONNECTED) that do not carry a status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}

// Discard is a Publisher that drops everything. It is used when MQTT is
// disabled.
var Discard Publisher = discard{}

type discard struct{}

func (discard) PublishElement(ElementEvent) error { return nil }
func (discard) PublishSystem(SystemEvent) error   { return nil }
func (discard) Close() error                      { return nil }
