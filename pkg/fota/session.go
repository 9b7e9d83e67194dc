// Package fota pushes firmware images over the link and receives them.
//
// A push is Start carrying the image size, Data packets each prefixed by
// a 16-bit sequence number, then Finish carrying the md5 of the whole
// image as hex. The receiver accepts packets strictly in sequence and
// deletes the image if the size or checksum doesn't match.
package fota

import (
	"errors"
	"fmt"

	"github.com/robotalks/mculink/pkg/link"
)

// Commands.
const (
	CmdStart  uint16 = 0x6010
	CmdData   uint16 = 0x6011
	CmdFinish uint16 = 0x6012
	CmdAbort  uint16 = 0x6013
	CmdStatus uint16 = 0x6014

	CmdMask uint16 = 0xFFF0
)

// Defaults.
const (
	DefaultChunkSize = 4096
	MaxChunkSize     = 16 * 1024
	DefaultRetries   = 3
	DefaultFileName  = "firmware.bin"
)

// Status of a Session.
type Status byte

// Session status values.
const (
	Idle Status = iota
	Receiving
	Verifying
	Success
	Failed
	Sending
)

var statusNames = []string{"idle", "receiving", "verifying", "success", "failed", "sending"}

// String implements fmt.Stringer.
func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", byte(s))
}

// Active returns true while an image is being transferred or verified.
func (s Status) Active() bool {
	return s == Receiving || s == Sending || s == Verifying
}

// Code is the error code carried by Nack and Abort.
type Code byte

// Error codes.
const (
	CodeNone Code = iota
	CodeIO
	CodeNoSpace
	CodeSequence
	CodeSize
	CodeChecksum
	CodeAborted
	CodeBusy
	CodeInvalid
)

var codeNames = []string{"none", "io", "no space", "sequence", "size", "checksum", "aborted", "busy", "invalid"}

// String implements fmt.Stringer.
func (c Code) String() string {
	if int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("code(%d)", byte(c))
}

var (
	// ErrSequence indicates a Data packet out of sequence.
	ErrSequence = fmt.Errorf("%w: packet out of sequence", link.ErrProtocol)
	// ErrSize indicates the image size doesn't match.
	ErrSize = fmt.Errorf("%w: image size mismatch", link.ErrProtocol)
	// ErrNoSpace indicates the destination can't hold the image.
	ErrNoSpace = errors.New("insufficient space")
	// ErrBusy indicates another session is active.
	ErrBusy = errors.New("fota in progress")
	// ErrNoSession indicates no active session.
	ErrNoSession = errors.New("no fota session")
	// ErrAborted indicates the session was aborted.
	ErrAborted = errors.New("fota aborted")
)

// codeFor maps an error to the wire code.
func codeFor(err error) Code {
	switch {
	case err == nil:
		return CodeNone
	case errors.Is(err, ErrSequence):
		return CodeSequence
	case errors.Is(err, ErrSize):
		return CodeSize
	case errors.Is(err, link.ErrChecksumMismatch):
		return CodeChecksum
	case errors.Is(err, ErrNoSpace):
		return CodeNoSpace
	case errors.Is(err, ErrBusy):
		return CodeBusy
	case errors.Is(err, ErrAborted):
		return CodeAborted
	case errors.Is(err, link.ErrInvalidParameter), errors.Is(err, ErrNoSession),
		errors.Is(err, link.ErrProtocol):
		return CodeInvalid
	}
	return CodeIO
}

// Session is the state of one firmware transfer, either direction.
type Session struct {
	Path      string
	TotalSize uint32
	Bytes     uint32
	// Seq is the sequence number of the next Data packet.
	Seq      uint16
	Status   Status
	Code     Code
	Checksum string
}

// Progress returns the completion in percent.
func (s *Session) Progress() int {
	if s.TotalSize == 0 {
		if s.Status == Success {
			return 100
		}
		return 0
	}
	return int(uint64(s.Bytes) * 100 / uint64(s.TotalSize))
}

// String implements fmt.Stringer.
func (s *Session) String() string {
	str := fmt.Sprintf("%s %s %d/%dB (%d%%)", s.Path, s.Status, s.Bytes, s.TotalSize, s.Progress())
	if s.Code != CodeNone {
		str += " " + s.Code.String()
	}
	return str
}

// EventType tags an Event.
type EventType int

// Event types.
const (
	EventStarted EventType = iota
	EventProgress
	EventVerifying
	EventSuccess
	EventFailed
	EventAborted
)

var eventNames = []string{"started", "progress", "verifying", "success", "failed", "aborted"}

// String implements fmt.Stringer.
func (t EventType) String() string {
	if int(t) < len(eventNames) {
		return eventNames[t]
	}
	return "unknown"
}

// Event reports a change of a Session.
type Event struct {
	Type    EventType
	Session Session
	Err     error
}

type events struct {
	hub link.Hub[Event]
}

// Subscribe receives events. Events are dropped if the channel is full.
func (e *events) Subscribe(size int) <-chan Event {
	return e.hub.Subscribe(size)
}

// Unsubscribe cancels a Subscribe.
func (e *events) Unsubscribe(ch <-chan Event) {
	e.hub.Unsubscribe(ch)
}

func (e *events) emit(typ EventType, s *Session, err error) {
	e.hub.Publish(Event{Type: typ, Session: *s, Err: err})
}
