package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// Wire constants.
const (
	Sync1   byte = 0xaa
	Sync2   byte = 0x55
	Version byte = 0x01

	HeaderSize = 9
	CRCSize    = 2
	// MinSize is the size of a frame without payload.
	MinSize = HeaderSize + CRCSize
	// MaxDataSize is the largest payload the length field can carry.
	MaxDataSize = 0xffff
)

// Type is the frame type.
type Type byte

// Frame types.
const (
	TypeRequest  Type = 0x01
	TypeResponse Type = 0x02
	TypeNotify   Type = 0x03
	TypeAck      Type = 0x04
	TypeNack     Type = 0x05
)

// String implements fmt.Stringer.
func (t Type) String() string {
	switch t {
	case TypeRequest:
		return "REQ"
	case TypeResponse:
		return "RSP"
	case TypeNotify:
		return "NTF"
	case TypeAck:
		return "ACK"
	case TypeNack:
		return "NAK"
	}
	return fmt.Sprintf("TYPE(0x%02x)", byte(t))
}

// IsValid tells if t is a known frame type.
func (t Type) IsValid() bool {
	return t >= TypeRequest && t <= TypeNack
}

// IsReply tells if a frame of this type answers a request.
func (t Type) IsReply() bool {
	return t == TypeResponse || t == TypeAck || t == TypeNack
}

var (
	// ErrShortBuffer indicates the destination can't hold the encoded frame.
	ErrShortBuffer = errors.New("frame: buffer too small")
	// ErrDataTooLarge indicates the payload doesn't fit in the length field.
	ErrDataTooLarge = errors.New("frame: data too large")
)

// Frame is one protocol message.
type Frame struct {
	Version byte
	Type    Type
	Seq     byte
	Cmd     uint16
	Data    []byte
	// CRC is the value carried on the wire. It's filled by Decode and
	// ignored by Encode which always computes a fresh one.
	CRC uint16
}

// New creates a frame of the current protocol version.
func New(typ Type, seq byte, cmd uint16, data []byte) *Frame {
	return &Frame{Version: Version, Type: typ, Seq: seq, Cmd: cmd, Data: data}
}

// EncodedLen returns the number of bytes Encode produces.
func (f *Frame) EncodedLen() int {
	return MinSize + len(f.Data)
}

// EncodeTo writes the encoded frame into dst and returns its length.
func (f *Frame) EncodeTo(dst []byte) (int, error) {
	if len(f.Data) > MaxDataSize {
		return 0, ErrDataTooLarge
	}
	n := f.EncodedLen()
	if len(dst) < n {
		return 0, ErrShortBuffer
	}
	dst[0], dst[1] = Sync1, Sync2
	dst[2], dst[3], dst[4] = f.Version, byte(f.Type), f.Seq
	binary.BigEndian.PutUint16(dst[5:], f.Cmd)
	binary.BigEndian.PutUint16(dst[7:], uint16(len(f.Data)))
	copy(dst[HeaderSize:], f.Data)
	crc := CRC16(dst[2 : HeaderSize+len(f.Data)])
	binary.BigEndian.PutUint16(dst[HeaderSize+len(f.Data):], crc)
	return n, nil
}

// Encode returns the encoded bytes of the frame.
func (f *Frame) Encode() ([]byte, error) {
	b := make([]byte, f.EncodedLen())
	_, err := f.EncodeTo(b)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	c := *f
	if f.Data != nil {
		c.Data = append([]byte(nil), f.Data...)
	}
	return &c
}

// Reply creates a frame answering f with the same seq and cmd.
func (f *Frame) Reply(typ Type, data []byte) *Frame {
	return &Frame{Version: f.Version, Type: typ, Seq: f.Seq, Cmd: f.Cmd, Data: data}
}

// String formats the frame for logging.
func (f *Frame) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s seq=%d cmd=0x%04x len=%d", f.Type, f.Seq, f.Cmd, len(f.Data))
	if len(f.Data) > 0 {
		sb.WriteString(" data=")
		for i, b := range f.Data {
			if i >= 32 {
				sb.WriteString("...")
				break
			}
			fmt.Fprintf(&sb, "%02x", b)
		}
	}
	return sb.String()
}
