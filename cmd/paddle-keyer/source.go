package main

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // registers the MIDI driver

	"github.com/sweeney/paddle-keyer/internal/config"
	"github.com/sweeney/paddle-keyer/internal/paddle"
)

// Debounce defaults per source when source.debounce is 0.
const (
	serialDebounce = 3
	gpioDebounce   = 2
)

func debounceReads(s config.SourceConfig, def int) int {
	if s.Debounce > 0 {
		return s.Debounce
	}
	return def
}

func serialConfig(s config.SourceConfig) (paddle.SerialConfig, error) {
	dit, err := paddle.ParseModemLine(s.DitLine)
	if err != nil {
		return paddle.SerialConfig{}, err
	}
	dah, err := paddle.ParseModemLine(s.DahLine)
	if err != nil {
		return paddle.SerialConfig{}, err
	}
	return paddle.SerialConfig{Port: s.Port, DitLine: dit, DahLine: dah}, nil
}

func gpioConfig(s config.SourceConfig) paddle.GPIOConfig {
	return paddle.GPIOConfig{Chip: s.Chip, DitLine: s.DitPin, DahLine: s.DahPin}
}

// newSampler builds the sampler for the configured source. The device is
// not opened until Start.
func newSampler(cfg config.Config, logger *log.Logger) (paddle.Sampler, error) {
	s := cfg.Source
	name := cfg.SourceName()

	switch s.Type {
	case config.SourceSerial:
		sc, err := serialConfig(s)
		if err != nil {
			return nil, err
		}
		return paddle.NewPollingSampler(paddle.PollingConfig{
			Name:      name,
			Interval:  s.PollInterval,
			Threshold: debounceReads(s, serialDebounce),
			Logger:    logger,
		}, func() (paddle.LineReader, error) {
			r, err := paddle.OpenSerialReader(sc)
			if err != nil {
				return nil, err
			}
			return r, nil
		}), nil

	case config.SourceGPIO:
		gc := gpioConfig(s)
		return paddle.NewPollingSampler(paddle.PollingConfig{
			Name:      name,
			Interval:  s.PollInterval,
			Threshold: debounceReads(s, gpioDebounce),
			Logger:    logger,
		}, func() (paddle.LineReader, error) {
			r, err := paddle.OpenGPIOReader(gc)
			if err != nil {
				return nil, err
			}
			return r, nil
		}), nil

	case config.SourceGPIOEdge:
		gc := gpioConfig(s)
		return paddle.NewEdgeSampler(paddle.EdgeConfig{
			Name:      name,
			Threshold: debounceReads(s, gpioDebounce),
			Settle:    s.Settle,
			Logger:    logger,
		}, func() (paddle.EdgeSource, error) {
			src, err := paddle.OpenGPIOEdgeSource(gc)
			if err != nil {
				return nil, err
			}
			return src, nil
		}), nil

	case config.SourceMIDI:
		device := s.Device
		return paddle.NewMIDISampler(paddle.MIDIConfig{
			Name:    name,
			DitNote: uint8(s.DitNote),
			DahNote: uint8(s.DahNote),
			Logger:  logger,
		}, func() (paddle.NoteSource, error) {
			return paddle.OpenMIDI(device)
		}), nil
	}
	return nil, fmt.Errorf("unknown source type %q", s.Type)
}

// readOnce opens a polled source, takes one raw reading and closes it.
func readOnce(s config.SourceConfig) (dit, dah bool, err error) {
	var r paddle.LineReader
	switch s.Type {
	case config.SourceSerial:
		sc, err := serialConfig(s)
		if err != nil {
			return false, false, err
		}
		sr, err := paddle.OpenSerialReader(sc)
		if err != nil {
			return false, false, fmt.Errorf("open serial: %w", err)
		}
		r = sr
	case config.SourceGPIO, config.SourceGPIOEdge:
		gr, err := paddle.OpenGPIOReader(gpioConfig(s))
		if err != nil {
			return false, false, fmt.Errorf("open gpio: %w", err)
		}
		r = gr
	case config.SourceMIDI:
		return false, false, errors.New("midi sources report changes only; there is no state to read")
	default:
		return false, false, fmt.Errorf("unknown source type %q", s.Type)
	}

	dit, dah, err = r.Read()
	if cerr := r.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return false, false, fmt.Errorf("read paddle: %w", err)
	}
	return dit, dah, nil
}
