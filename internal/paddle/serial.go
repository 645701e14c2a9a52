package paddle

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// ModemLine is a serial input handshake line a paddle contact can drive.
type ModemLine string

const (
	LineCTS ModemLine = "cts"
	LineDSR ModemLine = "dsr"
	LineDCD ModemLine = "dcd"
	LineRI  ModemLine = "ri"
)

// ParseModemLine accepts cts, dsr, dcd or ri in any case.
func ParseModemLine(s string) (ModemLine, error) {
	l := ModemLine(strings.ToLower(strings.TrimSpace(s)))
	switch l {
	case LineCTS, LineDSR, LineDCD, LineRI:
		return l, nil
	}
	return "", fmt.Errorf("unknown modem line %q (want cts, dsr, dcd or ri)", s)
}

func (l ModemLine) from(bits *serial.ModemStatusBits) bool {
	switch l {
	case LineCTS:
		return bits.CTS
	case LineDSR:
		return bits.DSR
	case LineDCD:
		return bits.DCD
	case LineRI:
		return bits.RI
	}
	return false
}

// SerialConfig describes a paddle wired to a serial port's handshake lines.
// DTR and RTS are asserted to supply the paddle's common contact.
type SerialConfig struct {
	Port    string
	DitLine ModemLine // default cts
	DahLine ModemLine // default dsr
}

// SerialReader reads paddle contacts from modem status bits.
type SerialReader struct {
	port serial.Port
	cfg  SerialConfig
}

// OpenSerialReader opens the port and raises DTR/RTS.
func OpenSerialReader(cfg SerialConfig) (*SerialReader, error) {
	if cfg.DitLine == "" {
		cfg.DitLine = LineCTS
	}
	if cfg.DahLine == "" {
		cfg.DahLine = LineDSR
	}
	if cfg.DitLine == cfg.DahLine {
		return nil, fmt.Errorf("dit and dah cannot share modem line %s", cfg.DitLine)
	}

	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: 9600})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Port, err)
	}
	if err := port.SetDTR(true); err != nil {
		port.Close()
		return nil, fmt.Errorf("assert DTR on %s: %w", cfg.Port, err)
	}
	if err := port.SetRTS(true); err != nil {
		port.Close()
		return nil, fmt.Errorf("assert RTS on %s: %w", cfg.Port, err)
	}
	return &SerialReader{port: port, cfg: cfg}, nil
}

// Read returns the contact states from the configured modem lines.
func (r *SerialReader) Read() (bool, bool, error) {
	bits, err := r.port.GetModemStatusBits()
	if err != nil {
		return false, false, fmt.Errorf("read modem status on %s: %w", r.cfg.Port, err)
	}
	return r.cfg.DitLine.from(bits), r.cfg.DahLine.from(bits), nil
}

// Close drops DTR/RTS and closes the port.
func (r *SerialReader) Close() error {
	var errs []error
	if err := r.port.SetDTR(false); err != nil {
		errs = append(errs, fmt.Errorf("drop DTR: %w", err))
	}
	if err := r.port.SetRTS(false); err != nil {
		errs = append(errs, fmt.Errorf("drop RTS: %w", err))
	}
	if err := r.port.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close port: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// ListSerialPorts returns the serial ports known to the OS.
func ListSerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}
