//go:build linux

package paddle

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// GPIOConfig identifies the two paddle lines on a GPIO chip.
type GPIOConfig struct {
	Chip    string // e.g. "gpiochip0"
	DitLine int    // line offset (BCM number on a Pi)
	DahLine int
}

// Contacts are wired to ground with the internal pull-up enabled, so a
// closed contact reads low. Requesting the lines active-low makes a
// closed contact read as 1.
func gpioOptions() []gpiocdev.LineReqOption {
	return []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.AsActiveLow,
		gpiocdev.WithConsumer("paddle-keyer"),
	}
}

// GPIOReader polls the paddle lines through the GPIO character device.
type GPIOReader struct {
	lines *gpiocdev.Lines
	vals  []int
}

// OpenGPIOReader requests the dit and dah lines as inputs.
func OpenGPIOReader(cfg GPIOConfig) (*GPIOReader, error) {
	lines, err := gpiocdev.RequestLines(cfg.Chip, []int{cfg.DitLine, cfg.DahLine}, gpioOptions()...)
	if err != nil {
		return nil, fmt.Errorf("request gpio lines %d,%d on %s: %w", cfg.DitLine, cfg.DahLine, cfg.Chip, err)
	}
	return &GPIOReader{lines: lines, vals: make([]int, 2)}, nil
}

// Read returns the contact states, true = closed.
func (r *GPIOReader) Read() (bool, bool, error) {
	if err := r.lines.Values(r.vals); err != nil {
		return false, false, fmt.Errorf("read gpio lines: %w", err)
	}
	return r.vals[0] == 1, r.vals[1] == 1, nil
}

// Close reconfigures the lines as plain inputs and releases them.
func (r *GPIOReader) Close() error {
	return closeGPIOLines(r.lines)
}

// closeGPIOLines leaves the lines as pulled-up inputs, matching what the
// paddle expects when nothing is driving it, before releasing them.
func closeGPIOLines(lines *gpiocdev.Lines) error {
	var errs []error
	if err := lines.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure lines: %w", err))
	}
	if err := lines.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close lines: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// GPIOEdgeSource waits for kernel edge events on the paddle lines.
type GPIOEdgeSource struct {
	*GPIOReader

	edges     chan struct{}
	interrupt chan struct{}
	once      sync.Once
}

// OpenGPIOEdgeSource requests the lines with both-edge detection. Edge
// events are delivered by gpiocdev's watcher goroutine and only used as
// wakeups; levels are re-read by the sampler.
func OpenGPIOEdgeSource(cfg GPIOConfig) (*GPIOEdgeSource, error) {
	s := &GPIOEdgeSource{
		edges:     make(chan struct{}, 1),
		interrupt: make(chan struct{}),
	}
	opts := append(gpioOptions(),
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(s.onEdge),
	)
	lines, err := gpiocdev.RequestLines(cfg.Chip, []int{cfg.DitLine, cfg.DahLine}, opts...)
	if err != nil {
		return nil, fmt.Errorf("request gpio lines %d,%d on %s with edge detection: %w", cfg.DitLine, cfg.DahLine, cfg.Chip, err)
	}
	s.GPIOReader = &GPIOReader{lines: lines, vals: make([]int, 2)}
	return s, nil
}

func (s *GPIOEdgeSource) onEdge(gpiocdev.LineEvent) {
	select {
	case s.edges <- struct{}{}:
	default:
	}
}

// Wait blocks until an edge arrives or Interrupt is called.
func (s *GPIOEdgeSource) Wait() error {
	select {
	case <-s.interrupt:
		return ErrInterrupted
	case <-s.edges:
		return nil
	}
}

// Interrupt releases a blocked Wait.
func (s *GPIOEdgeSource) Interrupt() {
	s.once.Do(func() { close(s.interrupt) })
}

// Close stops edge delivery and releases the lines.
func (s *GPIOEdgeSource) Close() error {
	s.Interrupt()
	return s.GPIOReader.Close()
}
