package paddle

import "sync"

// emitter is the single-producer event channel shared by the samplers.
// Sends block while the buffer is full, so nothing is dropped or reordered,
// but a pending send always gives up once shutdown begins.
type emitter struct {
	events chan Event
	done   chan struct{}

	mu       sync.RWMutex
	closed   bool
	doneOnce sync.Once
}

func newEmitter(capacity int) *emitter {
	if capacity < 1 {
		capacity = DefaultEventBuffer
	}
	return &emitter{
		events: make(chan Event, capacity),
		done:   make(chan struct{}),
	}
}

// emit queues ev. It returns false if the emitter is shutting down.
func (e *emitter) emit(ev Event) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return false
	}
	select {
	case e.events <- ev:
		return true
	case <-e.done:
		return false
	}
}

// cancel unblocks pending emits without closing the channel.
func (e *emitter) cancel() {
	e.doneOnce.Do(func() { close(e.done) })
}

// discard drops undelivered events, leaving the emitter open.
func (e *emitter) discard() {
	for {
		select {
		case <-e.events:
		default:
			return
		}
	}
}

// close cancels, discards undelivered events and closes the channel.
// After close returns, emit is a no-op.
func (e *emitter) close() {
	e.cancel()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for {
		select {
		case <-e.events:
		default:
			close(e.events)
			return
		}
	}
}
