package filexfer

import (
	"encoding/binary"
	"fmt"

	"github.com/robotalks/mculink/pkg/link"
)

type notifyMsg struct {
	Direction Direction
	Name      string
}

func (m *notifyMsg) encode() []byte {
	b := []byte{byte(m.Direction), byte(len(m.Name))}
	return append(b, m.Name...)
}

func (m *notifyMsg) decode(b []byte) error {
	if len(b) < 2 || len(b) < 2+int(b[1]) {
		return errShort("notify", b)
	}
	m.Direction = Direction(b[0])
	m.Name = string(b[2 : 2+int(b[1])])
	return nil
}

type startMsg struct {
	Name        string
	TotalSize   uint32
	BlockSize   uint16
	TotalBlocks uint32
}

func (m *startMsg) encode() []byte {
	b := append([]byte{byte(len(m.Name))}, m.Name...)
	b = binary.BigEndian.AppendUint32(b, m.TotalSize)
	b = binary.BigEndian.AppendUint16(b, m.BlockSize)
	return binary.BigEndian.AppendUint32(b, m.TotalBlocks)
}

func (m *startMsg) decode(b []byte) error {
	if len(b) < 1 {
		return errShort("start", b)
	}
	n := int(b[0])
	if len(b) < 1+n+10 {
		return errShort("start", b)
	}
	m.Name = string(b[1 : 1+n])
	b = b[1+n:]
	m.TotalSize = binary.BigEndian.Uint32(b)
	m.BlockSize = binary.BigEndian.Uint16(b[4:])
	m.TotalBlocks = binary.BigEndian.Uint32(b[6:])
	return nil
}

const dataHeaderSize = 8

type dataMsg struct {
	Index uint32
	CRC   uint16
	Data  []byte
}

func (m *dataMsg) encode() []byte {
	b := make([]byte, dataHeaderSize, dataHeaderSize+len(m.Data))
	binary.BigEndian.PutUint32(b, m.Index)
	binary.BigEndian.PutUint16(b[4:], uint16(len(m.Data)))
	binary.BigEndian.PutUint16(b[6:], m.CRC)
	return append(b, m.Data...)
}

func (m *dataMsg) decode(b []byte) error {
	if len(b) < dataHeaderSize {
		return errShort("data", b)
	}
	m.Index = binary.BigEndian.Uint32(b)
	n := int(binary.BigEndian.Uint16(b[4:]))
	m.CRC = binary.BigEndian.Uint16(b[6:])
	if len(b) != dataHeaderSize+n {
		return fmt.Errorf("%w: data length %d, payload %d", link.ErrProtocol, n, len(b)-dataHeaderSize)
	}
	m.Data = b[dataHeaderSize:]
	return nil
}

type completeMsg struct {
	TotalSize   uint32
	TotalBlocks uint32
}

func (m *completeMsg) encode() []byte {
	b := binary.BigEndian.AppendUint32(nil, m.TotalSize)
	return binary.BigEndian.AppendUint32(b, m.TotalBlocks)
}

func (m *completeMsg) decode(b []byte) error {
	if len(b) < 8 {
		return errShort("complete", b)
	}
	m.TotalSize = binary.BigEndian.Uint32(b)
	m.TotalBlocks = binary.BigEndian.Uint32(b[4:])
	return nil
}

func errShort(what string, b []byte) error {
	return fmt.Errorf("%w: %s payload too short (%d bytes)", link.ErrProtocol, what, len(b))
}

func codeOf(b []byte) Code {
	if len(b) > 0 {
		return Code(b[0])
	}
	return CodeNone
}
