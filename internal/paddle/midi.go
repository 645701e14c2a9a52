package paddle

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// NoteSource is a MIDI input delivering note on/off edges.
type NoteSource interface {
	// Listen starts delivering notes to fn. The returned stop function must
	// tear the listener down synchronously: once it returns, fn is never
	// called again.
	Listen(fn func(note uint8, on bool)) (stop func(), err error)

	// Close releases the port.
	Close() error

	// String names the port.
	String() string
}

// NoteOpener finds and opens a NoteSource.
type NoteOpener func() (NoteSource, error)

// Default note numbers for a MIDI paddle adapter.
const (
	DefaultDitNote = 1
	DefaultDahNote = 2
)

// MIDIConfig configures a MIDISampler.
type MIDIConfig struct {
	Name    string
	DitNote uint8
	DahNote uint8
	Buffer  int
	Logger  *log.Logger
}

// MIDISampler forwards note on/off for two note numbers as paddle changes.
// The adapter debounces in hardware, so no counting is applied; repeated
// identical states are dropped.
type MIDISampler struct {
	cfg  MIDIConfig
	open NoteOpener
	now  func() time.Time

	mu      sync.Mutex
	src     NoteSource
	stopFn  func()
	em      *emitter
	started bool
	stopped bool

	// callback-owned: driver callbacks are serialized
	dit bool
	dah bool
}

// NewMIDISampler creates a MIDI passthrough sampler.
func NewMIDISampler(cfg MIDIConfig, open NoteOpener) *MIDISampler {
	if cfg.DitNote == cfg.DahNote {
		cfg.DitNote, cfg.DahNote = DefaultDitNote, DefaultDahNote
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &MIDISampler{
		cfg:  cfg,
		open: open,
		now:  time.Now,
		em:   newEmitter(cfg.Buffer),
	}
}

// Name returns the configured source name.
func (s *MIDISampler) Name() string { return s.cfg.Name }

// Events returns the event channel.
func (s *MIDISampler) Events() <-chan Event { return s.em.events }

// Start opens the MIDI port and installs the note listener.
func (s *MIDISampler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("%s: already started", s.cfg.Name)
	}
	if s.stopped {
		return fmt.Errorf("%s: stopped", s.cfg.Name)
	}

	src, err := s.open()
	if err != nil {
		return &ConnectionError{Source: s.cfg.Name, Err: err}
	}

	// Connected must be queued before the first note can arrive.
	s.em.emit(Event{Type: EventConnected, Time: s.now()})

	stop, err := src.Listen(s.onNote)
	if err != nil {
		s.em.discard()
		src.Close()
		return &ConnectionError{Source: s.cfg.Name, Err: fmt.Errorf("listen on %s: %w", src, err)}
	}
	s.src = src
	s.stopFn = stop
	s.started = true

	s.cfg.Logger.Info("paddle source opened", "source", s.cfg.Name, "port", src.String(),
		"dit_note", s.cfg.DitNote, "dah_note", s.cfg.DahNote)
	return nil
}

func (s *MIDISampler) onNote(note uint8, on bool) {
	var ev Event
	switch note {
	case s.cfg.DitNote:
		if s.dit == on {
			return
		}
		s.dit = on
		ev = Event{Type: EventDit, Pressed: on}
	case s.cfg.DahNote:
		if s.dah == on {
			return
		}
		s.dah = on
		ev = Event{Type: EventDah, Pressed: on}
	default:
		return
	}
	ev.Time = s.now()
	s.em.emit(ev)
}

// Stop removes the listener synchronously and closes the port.
func (s *MIDISampler) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	stop, src := s.stopFn, s.src
	s.stopFn, s.src = nil, nil
	s.mu.Unlock()

	// unblock a callback stuck on a full channel before tearing down
	s.em.cancel()
	if stop != nil {
		stop()
	}
	var err error
	if src != nil {
		err = src.Close()
	}
	s.em.close()
	s.cfg.Logger.Debug("paddle source stopped", "source", s.cfg.Name)
	return err
}
