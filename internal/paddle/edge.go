package paddle

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/sweeney/paddle-keyer/internal/debounce"
)

// EdgeSource is a device that can block until a monitored contact changes.
type EdgeSource interface {
	LineReader

	// Wait blocks until any contact changes level, or until Interrupt is
	// called, in which case it returns ErrInterrupted.
	Wait() error

	// Interrupt forces a blocked (or future) Wait to return. It is the
	// shutdown step that must run before the waiting goroutine is joined.
	Interrupt()
}

// EdgeOpener opens an EdgeSource. It is called once per Start.
type EdgeOpener func() (EdgeSource, error)

// EdgeConfig configures an EdgeSampler.
type EdgeConfig struct {
	Name      string
	Threshold int           // consecutive reads after a wakeup, default 2
	Settle    time.Duration // spacing of the confirming reads, default 500µs
	Buffer    int
	Logger    *log.Logger
}

// EdgeSampler sleeps in EdgeSource.Wait and debounces by re-reading the
// contacts after each wakeup until they have been stable for Threshold
// reads.
type EdgeSampler struct {
	cfg  EdgeConfig
	open EdgeOpener
	now  func() time.Time

	mu      sync.Mutex
	src     EdgeSource
	em      *emitter
	wg      sync.WaitGroup
	started bool

	cancelled atomic.Bool
	stopOnce  sync.Once
}

// NewEdgeSampler creates an edge-triggered sampler.
func NewEdgeSampler(cfg EdgeConfig, open EdgeOpener) *EdgeSampler {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 2
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 500 * time.Microsecond
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &EdgeSampler{
		cfg:  cfg,
		open: open,
		now:  time.Now,
		em:   newEmitter(cfg.Buffer),
	}
}

// Name returns the configured source name.
func (s *EdgeSampler) Name() string { return s.cfg.Name }

// Events returns the event channel.
func (s *EdgeSampler) Events() <-chan Event { return s.em.events }

// Start opens the source and begins waiting for edges.
func (s *EdgeSampler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("%s: already started", s.cfg.Name)
	}
	if s.cancelled.Load() {
		return fmt.Errorf("%s: stopped", s.cfg.Name)
	}

	src, err := s.open()
	if err != nil {
		return &ConnectionError{Source: s.cfg.Name, Err: err}
	}
	s.src = src
	s.started = true

	s.em.emit(Event{Type: EventConnected, Time: s.now()})
	s.cfg.Logger.Info("paddle source opened", "source", s.cfg.Name, "mode", "edge", "debounce", s.cfg.Threshold)

	s.wg.Add(1)
	go s.loop(src)
	return nil
}

func (s *EdgeSampler) loop(src EdgeSource) {
	defer s.wg.Done()

	deb := debounce.New(s.cfg.Threshold)

	// Pick up a contact already closed at startup.
	if !s.settle(src, deb) {
		return
	}

	for !s.cancelled.Load() {
		err := src.Wait()
		if s.cancelled.Load() {
			return
		}
		if err != nil {
			if errors.Is(err, ErrInterrupted) {
				return
			}
			s.fail(err)
			return
		}
		if !s.settle(src, deb) {
			return
		}
	}
}

// settle reads the contacts until the debouncer has seen Threshold
// identical samples, emitting any accepted change. It returns false when
// the loop must exit.
func (s *EdgeSampler) settle(src EdgeSource, deb *debounce.Debouncer) bool {
	for i := 0; ; i++ {
		if s.cancelled.Load() {
			return false
		}
		if i > 0 {
			time.Sleep(s.cfg.Settle)
		}
		dit, dah, err := src.Read()
		if err != nil {
			s.fail(err)
			return false
		}
		now := s.now()
		for _, ev := range SampleEvents(deb.Sample(dit, dah), now) {
			if !s.em.emit(ev) {
				return false
			}
		}
		if deb.Stable() {
			return true
		}
	}
}

func (s *EdgeSampler) fail(err error) {
	s.cfg.Logger.Error("paddle wait failed", "source", s.cfg.Name, "err", err)
	s.em.emit(Event{Type: EventError, Message: err.Error(), Time: s.now()})
	s.closeSource()
	s.em.emit(Event{Type: EventDisconnected, Time: s.now()})
}

func (s *EdgeSampler) closeSource() error {
	s.mu.Lock()
	src := s.src
	s.src = nil
	s.mu.Unlock()
	if src == nil {
		return nil
	}
	return src.Close()
}

// Stop interrupts the blocking wait, joins the worker and closes the
// device.
func (s *EdgeSampler) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.cancelled.Store(true)
		s.em.cancel()

		s.mu.Lock()
		src := s.src
		s.mu.Unlock()
		if src != nil {
			src.Interrupt()
		}

		s.wg.Wait()
		err = s.closeSource()
		s.em.close()
		s.cfg.Logger.Debug("paddle source stopped", "source", s.cfg.Name)
	})
	return err
}
