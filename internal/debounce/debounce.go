// Package debounce filters raw paddle contact samples. A contact's
// debounced state only changes after a number of consecutive identical raw
// reads. This package has no I/O and no clock: one call is one sample.
package debounce

// Paddle identifies a paddle contact.
type Paddle int

const (
	Dit Paddle = iota
	Dah
)

func (p Paddle) String() string {
	if p == Dah {
		return "DAH"
	}
	return "DIT"
}

// Change is a debounced state transition.
type Change struct {
	Paddle  Paddle
	Pressed bool
}

// Counter debounces a single contact. The zero value is not usable; use
// NewCounter.
type Counter struct {
	raw       bool
	stable    int
	state     bool
	threshold int
}

// NewCounter creates a Counter that accepts a transition after threshold
// consecutive identical samples. The contact starts released and stable.
func NewCounter(threshold int) *Counter {
	if threshold < 1 {
		threshold = 1
	}
	return &Counter{stable: threshold, threshold: threshold}
}

// Sample feeds one raw read and reports whether the debounced state flipped.
func (c *Counter) Sample(raw bool) bool {
	if raw == c.raw {
		if c.stable < c.threshold {
			c.stable++
		}
	} else {
		c.raw = raw
		c.stable = 1
	}

	if c.stable >= c.threshold && c.state != c.raw {
		c.state = c.raw
		return true
	}
	return false
}

// State returns the debounced state.
func (c *Counter) State() bool {
	return c.state
}

// Stable reports whether the last threshold samples agreed.
func (c *Counter) Stable() bool {
	return c.stable >= c.threshold
}

// Debouncer debounces a dit/dah contact pair.
type Debouncer struct {
	dit *Counter
	dah *Counter
}

// New creates a Debouncer with the same threshold for both contacts.
func New(threshold int) *Debouncer {
	return &Debouncer{
		dit: NewCounter(threshold),
		dah: NewCounter(threshold),
	}
}

// Sample feeds one raw read of both contacts. Changes are returned dit
// first, then dah.
func (d *Debouncer) Sample(dit, dah bool) []Change {
	var changes []Change
	if d.dit.Sample(dit) {
		changes = append(changes, Change{Paddle: Dit, Pressed: d.dit.State()})
	}
	if d.dah.Sample(dah) {
		changes = append(changes, Change{Paddle: Dah, Pressed: d.dah.State()})
	}
	return changes
}

// State returns the debounced contact pair.
func (d *Debouncer) State() (dit, dah bool) {
	return d.dit.State(), d.dah.State()
}

// Stable reports whether both contacts have settled.
func (d *Debouncer) Stable() bool {
	return d.dit.Stable() && d.dah.Stable()
}
