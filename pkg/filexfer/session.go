package filexfer

import (
	"errors"
	"fmt"
)

// Commands.
const (
	CmdNotify   uint16 = 0x6000
	CmdStart    uint16 = 0x6001
	CmdData     uint16 = 0x6002
	CmdComplete uint16 = 0x6003
	CmdCancel   uint16 = 0x6004
	CmdError    uint16 = 0x6005

	// CmdMask matches all file transfer commands. FOTA uses 0x601x.
	CmdMask uint16 = 0xFFF0
)

// Block sizes.
const (
	DefaultBlockSize = 1024
	MaxBlockSize     = 16 * 1024
)

// Code is the error code carried by Cancel, Error and Nack replies.
type Code byte

// Error codes.
const (
	CodeNone Code = iota
	CodeIO
	CodeChecksum
	CodeSequence
	CodeSize
	CodeCancelled
	CodeBusy
	CodeNotFound
	CodeInvalid
)

var codeNames = []string{"none", "io", "checksum", "sequence", "size", "cancelled", "busy", "not found", "invalid"}

// String implements fmt.Stringer.
func (c Code) String() string {
	if int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("code(%d)", byte(c))
}

// Error is a transfer failure with the code sent to or received from the
// peer.
type Error struct {
	Code Code
	Err  error
}

// Error implements error.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("file transfer %s: %v", e.Code, e.Err)
	}
	return "file transfer " + e.Code.String()
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

var (
	// ErrInProgress indicates a transfer is already running.
	ErrInProgress = errors.New("transfer in progress")
	// ErrNoSession indicates a frame arrived without an active transfer.
	ErrNoSession = errors.New("no active transfer")
)

// Direction of a transfer, from the host's point of view.
type Direction byte

// Directions.
const (
	Upload   Direction = 0
	Download Direction = 1
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	if d == Download {
		return "download"
	}
	return "upload"
}

// State is the state of a Session.
type State int

// Session states.
const (
	Idle State = iota
	Notified
	Started
	Transmitting
	Completed
	Failed
	Cancelled
)

var stateNames = []string{"idle", "notified", "started", "transmitting", "completed", "error", "cancelled"}

// String implements fmt.Stringer.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Done returns true for terminal states.
func (s State) Done() bool {
	return s == Completed || s == Failed || s == Cancelled
}

// Session describes one transfer.
type Session struct {
	Direction   Direction
	Name        string
	Path        string
	TotalSize   uint32
	BlockSize   uint16
	Block       uint32
	TotalBlocks uint32
	Bytes       uint32
	State       State
	Code        Code
}

// Progress returns the completion in percent.
func (s *Session) Progress() int {
	if s.TotalSize == 0 {
		if s.State == Completed {
			return 100
		}
		return 0
	}
	return int(uint64(s.Bytes) * 100 / uint64(s.TotalSize))
}

// String implements fmt.Stringer.
func (s *Session) String() string {
	return fmt.Sprintf("%s %s %s %d/%d blocks %d/%dB",
		s.Direction, s.Name, s.State, s.Block, s.TotalBlocks, s.Bytes, s.TotalSize)
}

// BlockCount returns the number of blocks of a file.
func BlockCount(size uint32, blockSize uint16) uint32 {
	if blockSize == 0 {
		return 0
	}
	return uint32((uint64(size) + uint64(blockSize) - 1) / uint64(blockSize))
}
