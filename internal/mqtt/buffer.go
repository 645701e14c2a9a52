package mqtt

import (
	"sync"

	"github.com/charmbracelet/log"
)

// bufferedMsg is a serialized system message held for replay.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO of messages raised while the broker
// was unreachable. When full, the oldest message is overwritten. Safe for
// concurrent use: the run loop pushes, paho's connect handler drains.
type ringBuffer struct {
	mu      sync.Mutex
	buf     []bufferedMsg
	head    int // next write position
	count   int
	dropped int // overwritten since last drain
	logger  *log.Logger
}

func newRingBuffer(capacity int, logger *log.Logger) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ringBuffer{buf: make([]bufferedMsg, capacity), logger: logger}
}

func (r *ringBuffer) push(msg bufferedMsg) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.head] = msg
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
		return
	}
	if r.dropped == 0 {
		r.logger.Warn("mqtt buffer full, dropping oldest", "capacity", len(r.buf))
	}
	r.dropped++
}

// drain removes and returns all messages, oldest first, plus how many were
// lost to overflow.
func (r *ringBuffer) drain() ([]bufferedMsg, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := r.dropped
	r.dropped = 0
	if r.count == 0 {
		return nil, dropped
	}

	out := make([]bufferedMsg, r.count)
	start := (r.head - r.count + len(r.buf)) % len(r.buf)
	for i := range out {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	r.count = 0
	r.head = 0
	return out, dropped
}

func (r *ringBuffer) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
