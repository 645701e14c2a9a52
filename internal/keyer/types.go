// Package keyer implements the iambic keyer: a timing state machine that
// turns paddle press/release transitions into timed key-down/key-up events.
//
// The engine is single-threaded. All calls (paddle updates, timer
// callbacks, configuration changes, Stop) must come from one goroutine.
// Time is always injected through a Scheduler.
package keyer

import (
	"fmt"
	"strings"
	"time"
)

// State is the engine's position in the element cycle.
type State int

const (
	StateIdle State = iota
	StateTonePlaying
	StateInterElementSpace
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateTonePlaying:
		return "TONE"
	case StateInterElementSpace:
		return "SPACE"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Mode selects squeeze-release behavior.
type Mode int

const (
	// ModeA stops after the current element when a squeeze is released.
	ModeA Mode = iota
	// ModeB sends one extra alternating element when a squeeze is released.
	ModeB
)

func (m Mode) String() string {
	if m == ModeB {
		return "B"
	}
	return "A"
}

// ParseMode accepts "A", "B", "iambic-a", "iambic-b" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a", "iambic-a", "iambica":
		return ModeA, nil
	case "b", "iambic-b", "iambicb":
		return ModeB, nil
	}
	return ModeA, fmt.Errorf("unknown keyer mode %q", s)
}

// Speed limits in words per minute.
const (
	DefaultWPM = 25
	MinWPM     = 5
	MaxWPM     = 60
)

// SafetyTimeout is how long the engine may sit in one non-idle state
// before the watchdog forces a stop.
const SafetyTimeout = 1000 * time.Millisecond

// NormalizeWPM maps any input to a usable speed: <= 0 becomes DefaultWPM,
// other values are clamped to [MinWPM, MaxWPM].
func NormalizeWPM(wpm int) int {
	switch {
	case wpm <= 0:
		return DefaultWPM
	case wpm < MinWPM:
		return MinWPM
	case wpm > MaxWPM:
		return MaxWPM
	}
	return wpm
}

// DitLength returns the dit duration for wpm (PARIS timing, whole ms).
func DitLength(wpm int) time.Duration {
	return time.Duration(1200/NormalizeWPM(wpm)) * time.Millisecond
}

// DahLength returns the dah duration for wpm: three dits.
func DahLength(wpm int) time.Duration {
	return 3 * DitLength(wpm)
}

// Config is the keyer's speed and mode.
type Config struct {
	WPM  int
	Mode Mode
}

// Listener consumes element events. Implementations must not block: they
// are called on the engine's goroutine.
type Listener interface {
	KeyDown(isDit bool)
	KeyUp()
}

// Counts tracks engine activity since startup.
type Counts struct {
	Dits           int
	Dahs           int
	WatchdogResets int
}
