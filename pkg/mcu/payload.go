package mcu

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/robotalks/mculink/pkg/link"
)

type payload []byte

// millis converts d to whole milliseconds, failing if it's negative or
// exceeds limit.
func millis(d time.Duration, limit uint64) (uint64, error) {
	ms := d / time.Millisecond
	if ms < 0 || uint64(ms) > limit {
		return 0, fmt.Errorf("%w: duration %s out of range", link.ErrInvalidParameter, d)
	}
	return uint64(ms), nil
}

func (p payload) u8(v byte) payload {
	return append(p, v)
}

func (p payload) bool(v bool) payload {
	if v {
		return append(p, 1)
	}
	return append(p, 0)
}

func (p payload) u16(v uint16) payload {
	return binary.BigEndian.AppendUint16(p, v)
}

func (p payload) u32(v uint32) payload {
	return binary.BigEndian.AppendUint32(p, v)
}

func (p payload) u64(v uint64) payload {
	return binary.BigEndian.AppendUint64(p, v)
}

func (p payload) f32(v float32) payload {
	return p.u32(math.Float32bits(v))
}

func (p payload) str(s string) payload {
	if len(s) > 0xff {
		s = s[:0xff]
	}
	return append(p.u8(byte(len(s))), s...)
}

// DecodeArgs reads a request payload into dst, which are pointers to byte,
// bool, uint16, uint32, uint64 or float32.
func DecodeArgs(data []byte, dst ...interface{}) error {
	r := newReader(data)
	for _, d := range dst {
		switch v := d.(type) {
		case *byte:
			*v = r.u8()
		case *bool:
			*v = r.bool()
		case *uint16:
			*v = r.u16()
		case *uint32:
			*v = r.u32()
		case *uint64:
			*v = r.u64()
		case *float32:
			*v = r.f32()
		default:
			return fmt.Errorf("%w: unsupported argument %T", link.ErrInvalidParameter, d)
		}
	}
	return r.err
}

// reader parses a response payload. The first short read sets err and all
// following reads return zero values.
type reader struct {
	data []byte
	pos  int
	err  error
}

func newReader(data []byte) *reader {
	return &reader{data: data}
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.pos+n > len(r.data) {
		r.err = fmt.Errorf("%w: payload too short, want %d bytes at %d, have %d",
			link.ErrProtocol, n, r.pos, len(r.data))
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) u8() byte {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) bool() bool {
	return r.u8() != 0
}

func (r *reader) i8() int8 {
	return int8(r.u8())
}

func (r *reader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *reader) i16() int16 {
	return int16(r.u16())
}

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *reader) u64() uint64 {
	if b := r.take(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

func (r *reader) f32() float32 {
	return math.Float32frombits(r.u32())
}

// str reads a u8 length prefixed string.
func (r *reader) str() string {
	n := int(r.u8())
	return string(r.take(n))
}

func (r *reader) rest() []byte {
	if r.err != nil {
		return nil
	}
	b := r.data[r.pos:]
	r.pos = len(r.data)
	return b
}
