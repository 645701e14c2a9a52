package keyer

import (
	"time"

	"github.com/charmbracelet/log"
)

// Engine is the iambic keyer state machine.
type Engine struct {
	sched  Scheduler
	out    Listener
	logger *log.Logger

	wpm    int
	mode   Mode
	ditLen time.Duration
	dahLen time.Duration

	state      State
	stateSince time.Time
	lastWasDit bool

	// current paddle state, as last passed to UpdatePaddleState
	dit bool
	dah bool

	ditLatched bool
	dahLatched bool

	ditAtToneStart  bool
	dahAtToneStart  bool
	ditAtSpaceStart bool
	dahAtSpaceStart bool

	timer Timer
	// gen invalidates timer callbacks that were already queued when the
	// timer was cancelled.
	gen uint64

	counts Counts
}

// NewEngine creates an idle engine. A nil logger uses log.Default().
func NewEngine(cfg Config, sched Scheduler, out Listener, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	e := &Engine{
		sched:  sched,
		out:    out,
		logger: logger,
		mode:   cfg.Mode,
		state:  StateIdle,
	}
	e.SetWPM(cfg.WPM)
	e.stateSince = sched.Now()
	return e
}

// SetWPM sets the speed. Values <= 0 select DefaultWPM. An element already
// in progress keeps its scheduled length.
func (e *Engine) SetWPM(wpm int) {
	e.wpm = NormalizeWPM(wpm)
	e.ditLen = DitLength(e.wpm)
	e.dahLen = DahLength(e.wpm)
}

// SetMode selects iambic Mode A or B.
func (e *Engine) SetMode(m Mode) {
	e.mode = m
}

// WPM returns the effective speed.
func (e *Engine) WPM() int { return e.wpm }

// Mode returns the current mode.
func (e *Engine) Mode() Mode { return e.mode }

// DitLength returns the current dit (and inter-element space) length.
func (e *Engine) DitLength() time.Duration { return e.ditLen }

// DahLength returns the current dah length.
func (e *Engine) DahLength() time.Duration { return e.dahLen }

// State returns the current state.
func (e *Engine) State() State { return e.state }

// Counts returns element and watchdog counters.
func (e *Engine) Counts() Counts { return e.counts }

// UpdatePaddleState feeds the debounced paddle contacts to the engine.
func (e *Engine) UpdatePaddleState(dit, dah bool) {
	e.checkWatchdog()

	e.dit = dit
	e.dah = dah

	switch e.state {
	case StateIdle:
		if !dit && !dah {
			return
		}
		if dit && dah {
			e.startTone(e.ditLen)
			return
		}
		if d := e.nextToneDuration(); d > 0 {
			e.startTone(d)
		}

	case StateTonePlaying:
		if e.lastWasDit {
			if dah && !e.dahAtToneStart && !e.dahLatched {
				e.dahLatched = true
			}
		} else {
			if dit && !e.ditAtToneStart && !e.ditLatched {
				e.ditLatched = true
			}
		}

	case StateInterElementSpace:
		if dit && !e.ditAtSpaceStart && !e.ditLatched {
			e.ditLatched = true
		}
		if dah && !e.dahAtSpaceStart && !e.dahLatched {
			e.dahLatched = true
		}
	}
}

// Stop cancels any element in progress and returns to idle. If a tone is
// sounding, exactly one KeyUp is emitted.
func (e *Engine) Stop() {
	e.cancelTimer()
	wasPlaying := e.state == StateTonePlaying
	e.setState(StateIdle)
	e.clearLatches()
	if wasPlaying {
		e.out.KeyUp()
	}
}

// checkWatchdog forces a stop if the engine has been stuck in a non-idle
// state for longer than SafetyTimeout.
func (e *Engine) checkWatchdog() {
	if e.state == StateIdle {
		return
	}
	stuck := e.sched.Now().Sub(e.stateSince)
	if stuck <= SafetyTimeout {
		return
	}
	e.counts.WatchdogResets++
	e.logger.Warn("keyer watchdog reset", "state", e.state, "stuck", stuck)
	e.Stop()
}

func (e *Engine) startTone(d time.Duration) {
	e.ditAtToneStart = e.dit
	e.dahAtToneStart = e.dah
	e.ditLatched = false
	e.dahLatched = false
	e.lastWasDit = d == e.ditLen
	e.setState(StateTonePlaying)
	if e.lastWasDit {
		e.counts.Dits++
	} else {
		e.counts.Dahs++
	}
	e.out.KeyDown(e.lastWasDit)
	e.schedule(d, e.onElementEnd)
}

func (e *Engine) onElementEnd() {
	e.out.KeyUp()
	e.setState(StateInterElementSpace)
	e.ditAtSpaceStart = e.dit
	e.dahAtSpaceStart = e.dah
	e.schedule(e.ditLen, e.onSpaceEnd)
}

func (e *Engine) onSpaceEnd() {
	if d := e.nextToneDuration(); d > 0 {
		e.startTone(d)
		return
	}
	e.setState(StateIdle)
	e.clearLatches()
}

// nextToneDuration picks the next element relative to the one just sent:
// the opposite paddle wins (alternation), then the same paddle (repetition),
// then in Mode B a released squeeze earns one opposite element. Zero means
// no element.
func (e *Engine) nextToneDuration() time.Duration {
	afterDit := e.lastWasDit || e.state == StateIdle
	if afterDit {
		switch {
		case e.dahLatched || e.dah:
			return e.dahLen
		case e.ditLatched || e.dit:
			return e.ditLen
		case e.squeezeReleased():
			return e.dahLen
		}
		return 0
	}

	switch {
	case e.ditLatched || e.dit:
		return e.ditLen
	case e.dahLatched || e.dah:
		return e.dahLen
	case e.squeezeReleased():
		return e.ditLen
	}
	return 0
}

func (e *Engine) squeezeReleased() bool {
	return e.mode == ModeB &&
		e.ditAtToneStart && e.dahAtToneStart &&
		!e.dit && !e.dah
}

// schedule arms the single engine timer. The callback is dropped if the
// timer was cancelled after it had already been queued.
func (e *Engine) schedule(d time.Duration, f func()) {
	e.cancelTimer()
	gen := e.gen
	e.timer = e.sched.AfterFunc(d, func() {
		if gen != e.gen {
			return
		}
		e.timer = nil
		f()
	})
}

func (e *Engine) cancelTimer() {
	e.gen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (e *Engine) setState(s State) {
	e.state = s
	e.stateSince = e.sched.Now()
}

func (e *Engine) clearLatches() {
	e.ditLatched = false
	e.dahLatched = false
	e.ditAtToneStart = false
	e.dahAtToneStart = false
	e.ditAtSpaceStart = false
	e.dahAtSpaceStart = false
}
