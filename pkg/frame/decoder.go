package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrIncomplete means more bytes are needed; nothing is consumed.
	ErrIncomplete = errors.New("frame: incomplete")
	// ErrBadSync means the buffer doesn't start with the sync marker.
	// One byte is consumed so the caller can resynchronize.
	ErrBadSync = errors.New("frame: bad sync")
	// ErrTooLarge means the declared length exceeds the decoder limit.
	// Treated like a bad sync: one byte is consumed.
	ErrTooLarge = errors.New("frame: declared length too large")
)

// ChecksumError is reported by a strict Decoder when the CRC doesn't match.
// The whole frame is consumed.
type ChecksumError struct {
	Expected uint16
	Actual   uint16
}

// Error implements error.
func (e *ChecksumError) Error() string {
	return fmt.Sprintf("frame: CRC mismatch: expected 0x%04X, got 0x%04X", e.Expected, e.Actual)
}

// Decoder decodes frames from an accumulation buffer.
type Decoder struct {
	// Strict rejects frames with a bad CRC. Off by default as many peers
	// send frames without a valid CRC.
	Strict bool
	// MaxData bounds the declared payload length; 0 means MaxDataSize.
	MaxData int
}

// Decode decodes a frame with a non-strict decoder.
func Decode(buf []byte) (*Frame, int, error) {
	var d Decoder
	return d.Decode(buf)
}

// Decode attempts to decode one frame from the front of buf. It returns the
// frame and the number of bytes consumed. The returned frame owns its
// payload. A buffer shorter than MinSize is always ErrIncomplete. On
// ErrIncomplete, consumed is 0; on ErrBadSync and ErrTooLarge, consumed is 1.
func (d *Decoder) Decode(buf []byte) (*Frame, int, error) {
	if len(buf) < MinSize {
		return nil, 0, ErrIncomplete
	}
	if buf[0] != Sync1 || buf[1] != Sync2 {
		return nil, 1, ErrBadSync
	}
	dataLen := int(binary.BigEndian.Uint16(buf[7:]))
	maxData := d.MaxData
	if maxData <= 0 || maxData > MaxDataSize {
		maxData = MaxDataSize
	}
	if dataLen > maxData {
		return nil, 1, ErrTooLarge
	}
	total := MinSize + dataLen
	if len(buf) < total {
		return nil, 0, ErrIncomplete
	}
	f := &Frame{
		Version: buf[2],
		Type:    Type(buf[3]),
		Seq:     buf[4],
		Cmd:     binary.BigEndian.Uint16(buf[5:]),
		CRC:     binary.BigEndian.Uint16(buf[HeaderSize+dataLen:]),
	}
	if dataLen > 0 {
		f.Data = make([]byte, dataLen)
		copy(f.Data, buf[HeaderSize:HeaderSize+dataLen])
	}
	if d.Strict {
		if crc := CRC16(buf[2 : HeaderSize+dataLen]); crc != f.CRC {
			return f, total, &ChecksumError{Expected: crc, Actual: f.CRC}
		}
	}
	return f, total, nil
}

// Valid tells if the carried CRC matches the frame content.
func (f *Frame) Valid() bool {
	var hdr [HeaderSize - 2]byte
	hdr[0], hdr[1], hdr[2] = f.Version, byte(f.Type), f.Seq
	binary.BigEndian.PutUint16(hdr[3:], f.Cmd)
	binary.BigEndian.PutUint16(hdr[5:], uint16(len(f.Data)))
	return UpdateCRC16(CRC16(hdr[:]), f.Data) == f.CRC
}
