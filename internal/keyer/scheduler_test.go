package keyer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherQueuesTimerCallbacks(t *testing.T) {
	d := NewDispatcher(4)
	defer d.Close()

	ran := false
	d.AfterFunc(time.Millisecond, func() { ran = true })

	select {
	case f := <-d.C():
		assert.False(t, ran, "callback must not run on the timer goroutine")
		f()
	case <-time.After(time.Second):
		t.Fatal("timer callback was not queued")
	}
	assert.True(t, ran)
}

func TestDispatcherStoppedTimerNeverQueues(t *testing.T) {
	d := NewDispatcher(4)
	defer d.Close()

	tm := d.AfterFunc(50*time.Millisecond, func() {})
	assert.True(t, tm.Stop())

	select {
	case <-d.C():
		t.Fatal("stopped timer was queued")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDispatcherPostPreservesOrder(t *testing.T) {
	d := NewDispatcher(3)
	defer d.Close()

	var got []int
	for i := 0; i < 3; i++ {
		i := i
		require.True(t, d.Post(func() { got = append(got, i) }))
	}
	for i := 0; i < 3; i++ {
		(<-d.C())()
	}
	assert.Equal(t, []int{0, 1, 2}, got)
}

func TestDispatcherCloseUnblocksPost(t *testing.T) {
	d := NewDispatcher(1)
	require.True(t, d.Post(func() {}))

	result := make(chan bool)
	go func() { result <- d.Post(func() {}) }()

	time.Sleep(10 * time.Millisecond)
	d.Close()
	d.Close()

	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Post still blocked after Close")
	}
	assert.False(t, d.Post(func() {}))
}

func TestFakeClockFiresInDeadlineOrder(t *testing.T) {
	c := NewFakeClock(epoch)
	var order []string
	c.AfterFunc(20*ms, func() { order = append(order, "b") })
	c.AfterFunc(10*ms, func() {
		order = append(order, "a")
		c.AfterFunc(5*ms, func() { order = append(order, "a2") })
	})
	stopped := c.AfterFunc(12*ms, func() { order = append(order, "never") })
	stopped.Stop()

	c.Advance(9 * ms)
	assert.Empty(t, order)
	assert.Equal(t, 2, c.Pending())

	c.Advance(11 * ms)
	assert.Equal(t, []string{"a", "a2", "b"}, order)
	assert.Equal(t, epoch.Add(20*ms), c.Now())
	assert.Zero(t, c.Pending())
}
