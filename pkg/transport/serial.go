package transport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// Serial is a Transport over a serial port.
type Serial struct {
	port    serial.Port
	timeout time.Duration
}

// OpenSerial opens and configures a serial port: raw 8N1, no flow control,
// DTR asserted, stale input discarded.
func OpenSerial(path string, baudRate int) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	// the peer only talks when DTR is asserted.
	if err := port.SetDTR(true); err != nil {
		port.Close()
		return nil, fmt.Errorf("set DTR on %s: %w", path, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("flush %s: %w", path, err)
	}
	return &Serial{port: port, timeout: serial.NoTimeout}, nil
}

// Read implements Transport.
func (s *Serial) Read(p []byte, timeout time.Duration) (int, error) {
	if timeout < 0 {
		timeout = serial.NoTimeout
	}
	if timeout != s.timeout {
		if err := s.port.SetReadTimeout(timeout); err != nil {
			return 0, err
		}
		s.timeout = timeout
	}
	return s.port.Read(p)
}

// Write implements Transport.
func (s *Serial) Write(p []byte) (int, error) {
	n, err := s.port.Write(p)
	if err != nil {
		return n, err
	}
	return n, s.port.Drain()
}

// Flush implements Transport.
func (s *Serial) Flush() error {
	return s.port.ResetInputBuffer()
}

// Close implements Transport.
func (s *Serial) Close() error {
	return s.port.Close()
}

// Ports lists serial ports present on the system.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}
