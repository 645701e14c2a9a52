package keyer

import (
	"sort"
	"time"
)

// FakeClock is a virtual-time Scheduler for tests. Callbacks only run
// inside Advance, on the caller's goroutine, in deadline order.
// Not safe for concurrent use.
type FakeClock struct {
	now    time.Time
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *FakeClock
	at      time.Time
	seq     int
	f       func()
	stopped bool
	fired   bool
}

// NewFakeClock creates a FakeClock starting at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the virtual time.
func (c *FakeClock) Now() time.Time {
	return c.now
}

// AfterFunc schedules f at Now()+d.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.seq++
	t := &fakeTimer{clock: c, at: c.now.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves virtual time forward by d, firing every timer that comes
// due. Timers scheduled by callbacks are fired too if they fall inside the
// window.
func (c *FakeClock) Advance(d time.Duration) {
	end := c.now.Add(d)
	for {
		next := c.nextDue(end)
		if next == nil {
			break
		}
		c.now = next.at
		next.fired = true
		next.f()
	}
	c.now = end
}

// Pending returns the number of timers that have neither fired nor been
// stopped.
func (c *FakeClock) Pending() int {
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (c *FakeClock) nextDue(end time.Time) *fakeTimer {
	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	c.timers = live
	if len(live) == 0 {
		return nil
	}
	sort.SliceStable(live, func(i, j int) bool {
		if live[i].at.Equal(live[j].at) {
			return live[i].seq < live[j].seq
		}
		return live[i].at.Before(live[j].at)
	})
	if live[0].at.After(end) {
		return nil
	}
	return live[0]
}

// Recorded is one element event captured by a Recorder.
type Recorded struct {
	At    time.Time
	Down  bool
	IsDit bool
}

// Recorder is a Listener that captures events with their virtual time.
type Recorder struct {
	Clock  Scheduler
	Events []Recorded
}

// NewRecorder creates a Recorder stamping events with clock.Now().
func NewRecorder(clock Scheduler) *Recorder {
	return &Recorder{Clock: clock}
}

func (r *Recorder) KeyDown(isDit bool) {
	r.Events = append(r.Events, Recorded{At: r.Clock.Now(), Down: true, IsDit: isDit})
}

func (r *Recorder) KeyUp() {
	r.Events = append(r.Events, Recorded{At: r.Clock.Now()})
}

// Downs returns only key-down events.
func (r *Recorder) Downs() []Recorded {
	var out []Recorded
	for _, e := range r.Events {
		if e.Down {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears recorded events.
func (r *Recorder) Reset() {
	r.Events = nil
}
