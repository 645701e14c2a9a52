package keyer

import (
	"sync"
	"time"
)

// Timer is a pending scheduled callback.
type Timer interface {
	// Stop prevents the callback from running if it has not been
	// dispatched yet. It reports whether the call stopped the timer.
	Stop() bool
}

// Scheduler schedules one-shot callbacks. Callbacks must be delivered on
// the same goroutine that drives the engine.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
	Now() time.Time
}

// Dispatcher is the production Scheduler. Timer expiries are not run on the
// timer goroutine; they are queued on C and executed by whoever owns the
// engine. Other goroutines may Post work onto the same queue.
type Dispatcher struct {
	tasks     chan func()
	done      chan struct{}
	closeOnce sync.Once
	now       func() time.Time
}

// NewDispatcher creates a Dispatcher with the given queue capacity.
func NewDispatcher(capacity int) *Dispatcher {
	if capacity < 1 {
		capacity = 1
	}
	return &Dispatcher{
		tasks: make(chan func(), capacity),
		done:  make(chan struct{}),
		now:   time.Now,
	}
}

// C is drained by the engine's goroutine; each received func must be called.
func (d *Dispatcher) C() <-chan func() {
	return d.tasks
}

// Now returns the current wall time.
func (d *Dispatcher) Now() time.Time {
	return d.now()
}

// AfterFunc schedules f to be queued after dur.
func (d *Dispatcher) AfterFunc(dur time.Duration, f func()) Timer {
	return time.AfterFunc(dur, func() { d.Post(f) })
}

// Post queues f. It blocks while the queue is full and returns false once
// the dispatcher is closed.
func (d *Dispatcher) Post(f func()) bool {
	select {
	case <-d.done:
		return false
	default:
	}
	select {
	case d.tasks <- f:
		return true
	case <-d.done:
		return false
	}
}

// Close makes further Post calls no-ops. Queued tasks are left for the
// owner to drain or discard.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.done) })
}
