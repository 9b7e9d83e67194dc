package fota

import (
	"encoding/binary"
	"fmt"

	"github.com/robotalks/mculink/pkg/link"
)

const statusSize = 12

func encodeStart(total uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, total)
}

func decodeStart(b []byte) (uint32, error) {
	if len(b) < 4 {
		return 0, fmt.Errorf("%w: start payload %d bytes", link.ErrProtocol, len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}

func encodeData(seq uint16, chunk []byte) []byte {
	b := make([]byte, 2, 2+len(chunk))
	binary.BigEndian.PutUint16(b, seq)
	return append(b, chunk...)
}

func decodeData(b []byte) (uint16, []byte, error) {
	if len(b) < 2 {
		return 0, nil, fmt.Errorf("%w: data payload %d bytes", link.ErrProtocol, len(b))
	}
	return binary.BigEndian.Uint16(b), b[2:], nil
}

// encodeStatus encodes status u8, code u8, bytes u32, total u32, seq u16.
func encodeStatus(s *Session) []byte {
	b := []byte{byte(s.Status), byte(s.Code)}
	b = binary.BigEndian.AppendUint32(b, s.Bytes)
	b = binary.BigEndian.AppendUint32(b, s.TotalSize)
	return binary.BigEndian.AppendUint16(b, s.Seq)
}

func decodeStatus(b []byte) (s Session, err error) {
	if len(b) < statusSize {
		return s, fmt.Errorf("%w: status payload %d bytes", link.ErrProtocol, len(b))
	}
	s.Status, s.Code = Status(b[0]), Code(b[1])
	s.Bytes = binary.BigEndian.Uint32(b[2:])
	s.TotalSize = binary.BigEndian.Uint32(b[6:])
	s.Seq = binary.BigEndian.Uint16(b[10:])
	return s, nil
}
