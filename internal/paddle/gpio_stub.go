//go:build !linux

package paddle

import "errors"

// GPIOConfig identifies the two paddle lines on a GPIO chip.
type GPIOConfig struct {
	Chip    string
	DitLine int
	DahLine int
}

var errGPIOUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// GPIOReader is not available on non-Linux platforms.
type GPIOReader struct{}

// OpenGPIOReader returns an error on non-Linux platforms.
func OpenGPIOReader(GPIOConfig) (*GPIOReader, error) {
	return nil, errGPIOUnsupported
}

func (r *GPIOReader) Read() (bool, bool, error) { return false, false, errGPIOUnsupported }

func (r *GPIOReader) Close() error { return nil }

// GPIOEdgeSource is not available on non-Linux platforms.
type GPIOEdgeSource struct {
	GPIOReader
}

// OpenGPIOEdgeSource returns an error on non-Linux platforms.
func OpenGPIOEdgeSource(GPIOConfig) (*GPIOEdgeSource, error) {
	return nil, errGPIOUnsupported
}

func (s *GPIOEdgeSource) Wait() error { return errGPIOUnsupported }

func (s *GPIOEdgeSource) Interrupt() {}
