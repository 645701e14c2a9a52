package paddle

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/sweeney/paddle-keyer/internal/debounce"
)

// LineReader reads the raw (un-debounced) paddle contacts.
type LineReader interface {
	// Read returns the raw contact states, true = closed.
	Read() (dit, dah bool, err error)

	// Close releases the underlying device.
	Close() error
}

// Opener opens a LineReader. It is called once per Start.
type Opener func() (LineReader, error)

// PollingConfig configures a PollingSampler.
type PollingConfig struct {
	Name      string
	Interval  time.Duration // default 1ms
	Threshold int           // consecutive reads, default 3
	Buffer    int
	Logger    *log.Logger
}

// PollingSampler reads a LineReader at a fixed interval and debounces
// every read.
type PollingSampler struct {
	cfg  PollingConfig
	open Opener
	now  func() time.Time

	mu      sync.Mutex
	reader  LineReader
	em      *emitter
	wg      sync.WaitGroup
	started bool

	cancelled atomic.Bool
	stopOnce  sync.Once
}

// NewPollingSampler creates a sampler that opens its device with open.
func NewPollingSampler(cfg PollingConfig, open Opener) *PollingSampler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Millisecond
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &PollingSampler{
		cfg:  cfg,
		open: open,
		now:  time.Now,
		em:   newEmitter(cfg.Buffer),
	}
}

// Name returns the configured source name.
func (s *PollingSampler) Name() string { return s.cfg.Name }

// Events returns the event channel.
func (s *PollingSampler) Events() <-chan Event { return s.em.events }

// Start opens the device and begins polling.
func (s *PollingSampler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("%s: already started", s.cfg.Name)
	}
	if s.cancelled.Load() {
		return fmt.Errorf("%s: stopped", s.cfg.Name)
	}

	r, err := s.open()
	if err != nil {
		return &ConnectionError{Source: s.cfg.Name, Err: err}
	}
	s.reader = r
	s.started = true

	s.em.emit(Event{Type: EventConnected, Time: s.now()})
	s.cfg.Logger.Info("paddle source opened", "source", s.cfg.Name, "poll", s.cfg.Interval, "debounce", s.cfg.Threshold)

	s.wg.Add(1)
	go s.loop(r)
	return nil
}

func (s *PollingSampler) loop(r LineReader) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	deb := debounce.New(s.cfg.Threshold)

	for {
		select {
		case <-s.em.done:
			return
		case <-ticker.C:
		}
		if s.cancelled.Load() {
			return
		}

		dit, dah, err := r.Read()
		if err != nil {
			s.fail(err)
			return
		}

		now := s.now()
		for _, ev := range SampleEvents(deb.Sample(dit, dah), now) {
			if !s.em.emit(ev) {
				return
			}
		}
	}
}

// fail reports a mid-operation read error and closes the device. The loop
// does not retry.
func (s *PollingSampler) fail(err error) {
	s.cfg.Logger.Error("paddle read failed", "source", s.cfg.Name, "err", err)
	s.em.emit(Event{Type: EventError, Message: err.Error(), Time: s.now()})
	s.closeReader()
	s.em.emit(Event{Type: EventDisconnected, Time: s.now()})
}

func (s *PollingSampler) closeReader() error {
	s.mu.Lock()
	r := s.reader
	s.reader = nil
	s.mu.Unlock()
	if r == nil {
		return nil
	}
	return r.Close()
}

// Stop ends polling, waits for the worker to exit and closes the device.
func (s *PollingSampler) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.cancelled.Store(true)
		s.em.cancel()
		s.wg.Wait()
		err = s.closeReader()
		s.em.close()
		s.cfg.Logger.Debug("paddle source stopped", "source", s.cfg.Name)
	})
	return err
}
