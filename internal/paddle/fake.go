package paddle

import (
	"errors"
	"sync"
)

// Sample is a single raw paddle reading.
type Sample struct {
	Dit bool
	Dah bool
}

// FakeReader is a test double that returns scripted raw readings. It is
// safe for use from a sampler goroutine and a test goroutine.
type FakeReader struct {
	mu sync.Mutex

	// Samples contains scripted readings. Each Read consumes the next one;
	// once exhausted the last sample repeats.
	Samples []Sample
	index   int

	// ReadError, if set, is returned by Read after FailAfter successful reads.
	ReadError error
	FailAfter int
	reads     int

	closed bool
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples []Sample) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns the next scripted sample.
func (f *FakeReader) Read() (bool, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ReadError != nil && f.reads >= f.FailAfter {
		return false, false, f.ReadError
	}
	f.reads++

	if len(f.Samples) == 0 {
		return false, false, errors.New("no samples configured")
	}

	s := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return s.Dit, s.Dah, nil
}

// Set replaces the script with a single repeating sample.
func (f *FakeReader) Set(s Sample) {
	f.mu.Lock()
	f.Samples = []Sample{s}
	f.index = 0
	f.mu.Unlock()
}

// Reads returns the number of successful reads.
func (f *FakeReader) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakeReader) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// FakeEdgeSource is an EdgeSource whose Wait returns when the test calls
// Edge.
type FakeEdgeSource struct {
	*FakeReader

	edges     chan struct{}
	interrupt chan struct{}
	once      sync.Once

	mu      sync.Mutex
	waitErr error
}

// NewFakeEdgeSource creates a FakeEdgeSource starting with both contacts
// open.
func NewFakeEdgeSource() *FakeEdgeSource {
	return &FakeEdgeSource{
		FakeReader: NewFakeReader([]Sample{{}}),
		edges:      make(chan struct{}, 16),
		interrupt:  make(chan struct{}),
	}
}

// Edge sets the contact levels and wakes the waiter.
func (f *FakeEdgeSource) Edge(s Sample) {
	f.Set(s)
	f.edges <- struct{}{}
}

// FailWait makes the next Wait return err.
func (f *FakeEdgeSource) FailWait(err error) {
	f.mu.Lock()
	f.waitErr = err
	f.mu.Unlock()
	f.edges <- struct{}{}
}

// Wait blocks until Edge, FailWait or Interrupt.
func (f *FakeEdgeSource) Wait() error {
	select {
	case <-f.interrupt:
		return ErrInterrupted
	case <-f.edges:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.waitErr != nil {
		return f.waitErr
	}
	return nil
}

// Interrupt releases a blocked Wait.
func (f *FakeEdgeSource) Interrupt() {
	f.once.Do(func() { close(f.interrupt) })
}

// FakeNoteSource is a NoteSource driven by Send.
type FakeNoteSource struct {
	mu     sync.Mutex
	fn     func(uint8, bool)
	closed bool

	// ListenError, if set, is returned by Listen.
	ListenError error
}

// NewFakeNoteSource creates a FakeNoteSource.
func NewFakeNoteSource() *FakeNoteSource {
	return &FakeNoteSource{}
}

func (f *FakeNoteSource) String() string { return "fake-midi" }

// Listen installs fn.
func (f *FakeNoteSource) Listen(fn func(uint8, bool)) (func(), error) {
	if f.ListenError != nil {
		return nil, f.ListenError
	}
	f.mu.Lock()
	f.fn = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.fn = nil
		f.mu.Unlock()
	}, nil
}

// Send delivers a note as the driver would. It reports whether a listener
// was installed.
func (f *FakeNoteSource) Send(note uint8, on bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fn == nil {
		return false
	}
	f.fn(note, on)
	return true
}

// Close marks the source closed.
func (f *FakeNoteSource) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakeNoteSource) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
