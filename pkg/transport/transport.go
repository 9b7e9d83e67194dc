// Package transport provides byte stream access to the microcontroller.
package transport

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Transport is a raw byte link to the peer.
type Transport interface {
	// Read waits up to timeout for readable data. A zero timeout polls,
	// a negative timeout waits indefinitely. It returns 0, nil on timeout.
	Read(p []byte, timeout time.Duration) (int, error)
	// Write returns after all bytes are handed to the device.
	Write(p []byte) (int, error)
	// Flush discards buffered bytes not read yet.
	Flush() error
	Close() error
}

// Dialer opens a Transport.
type Dialer interface {
	Dial(path string) (Transport, error)
}

// DialFunc is the func form of Dialer.
type DialFunc func(path string) (Transport, error)

// Dial implements Dialer.
func (f DialFunc) Dial(path string) (Transport, error) {
	return f(path)
}

// DefaultBaudRate is the fixed baud rate of the link.
const DefaultBaudRate = 115200

// DefaultPaths are tried in order when no device path is configured.
var DefaultPaths = []string{
	"/dev/ttyS1",
	"/dev/ttyS0",
	"/dev/ttyUSB0",
	"/dev/ttyACM0",
}

var (
	// ErrClosed is returned when using a closed transport.
	ErrClosed = errors.New("transport closed")
	// ErrNoPath is returned when there's nothing to dial.
	ErrNoPath = errors.New("no device path")
)

// DefaultDialer opens websocket bridges for ws:// and wss:// paths and
// serial ports otherwise.
var DefaultDialer Dialer = DialFunc(Open)

// Open opens the transport identified by path.
func Open(path string) (Transport, error) {
	return OpenBaud(path, DefaultBaudRate)
}

// OpenBaud is Open with a serial baud rate.
func OpenBaud(path string, baudRate int) (Transport, error) {
	if strings.HasPrefix(path, "ws://") || strings.HasPrefix(path, "wss://") {
		ws, err := OpenWebSocket(path)
		if err != nil {
			return nil, err
		}
		return ws, nil
	}
	port, err := OpenSerial(path, baudRate)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// BaudDialer returns a Dialer opening serial ports at baudRate.
func BaudDialer(baudRate int) Dialer {
	return DialFunc(func(path string) (Transport, error) {
		return OpenBaud(path, baudRate)
	})
}

// DialAny tries paths in order and returns the first transport opened.
func DialAny(d Dialer, paths []string) (Transport, string, error) {
	if len(paths) == 0 {
		return nil, "", ErrNoPath
	}
	var errs []string
	for _, path := range paths {
		t, err := d.Dial(path)
		if err == nil {
			return t, path, nil
		}
		errs = append(errs, err.Error())
	}
	return nil, "", fmt.Errorf("open %s: %s", strings.Join(paths, ","), strings.Join(errs, "; "))
}
