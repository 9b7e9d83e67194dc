package link

import (
	"errors"
	"fmt"

	"github.com/robotalks/mculink/pkg/frame"
)

var (
	// ErrInvalidParameter indicates malformed call arguments.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrTimeout indicates no matching response arrived before the deadline.
	ErrTimeout = errors.New("timeout")
	// ErrBusy indicates the sequence value is used by a pending request.
	ErrBusy = errors.New("sequence busy")
	// ErrIO indicates a transport failure.
	ErrIO = errors.New("i/o error")
	// ErrProtocol indicates a malformed or unexpected frame.
	ErrProtocol = errors.New("protocol error")
	// ErrChecksumMismatch indicates a file or firmware integrity failure.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrShutdown indicates the engine stopped while a request was in flight.
	ErrShutdown = errors.New("shutdown")
	// ErrDisconnected indicates the link is down.
	ErrDisconnected = errors.New("disconnected")
)

// CommandError is returned when the peer answers with a frame type other
// than Ack or Response.
type CommandError struct {
	Cmd  uint16
	Type frame.Type
	Data []byte
}

// Error implements error.
func (e *CommandError) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("command 0x%04x rejected: %s code %d", e.Cmd, e.Type, e.Data[0])
	}
	return fmt.Sprintf("command 0x%04x rejected: %s", e.Cmd, e.Type)
}

// Code returns the first payload byte which peers use as error code.
func (e *CommandError) Code() byte {
	if len(e.Data) > 0 {
		return e.Data[0]
	}
	return 0
}

// CheckReply turns a Nack or otherwise unexpected reply into a CommandError.
func CheckReply(req, resp *frame.Frame) error {
	if resp == nil {
		return ErrProtocol
	}
	switch resp.Type {
	case frame.TypeAck, frame.TypeResponse:
		return nil
	}
	return &CommandError{Cmd: req.Cmd, Type: resp.Type, Data: resp.Data}
}
