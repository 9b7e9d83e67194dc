package fota

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/mculink/pkg/frame"
	"github.com/robotalks/mculink/pkg/link"
)

func md5hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

type fakeLink struct {
	replies []*frame.Frame
	sent    []*frame.Frame
}

func (l *fakeLink) Reply(req *frame.Frame, typ frame.Type, data []byte) error {
	l.replies = append(l.replies, req.Reply(typ, data))
	return nil
}

func (l *fakeLink) Send(f *frame.Frame) error {
	l.sent = append(l.sent, f)
	return nil
}

func newTestReceiver(t *testing.T) (*Receiver, *fakeLink) {
	l := &fakeLink{}
	r := NewReceiver(l, t.TempDir())
	r.Sender = l
	return r, l
}

func TestReceiverOutOfSequence(t *testing.T) {
	r, _ := newTestReceiver(t)
	require.NoError(t, r.Begin(10))
	require.NoError(t, r.Write(0, []byte("hello")))

	err := r.Write(2, []byte("world"))
	require.True(t, errors.Is(err, ErrSequence))
	require.True(t, errors.Is(err, link.ErrProtocol))
	s := r.Session()
	require.Equal(t, uint32(5), s.Bytes)
	require.Equal(t, uint16(1), s.Seq)
	require.Equal(t, Receiving, s.Status)

	// resent previous packet is accepted without writing it again.
	require.NoError(t, r.Write(0, []byte("hello")))
	require.Equal(t, uint32(5), r.Session().Bytes)

	require.NoError(t, r.Write(1, []byte("world")))
	require.NoError(t, r.Finish(md5hex([]byte("helloworld"))))
	s = r.Session()
	require.Equal(t, Success, s.Status)
	require.Equal(t, 100, s.Progress())
	got, err := os.ReadFile(r.Path())
	require.NoError(t, err)
	require.Equal(t, "helloworld", string(got))
}

func TestReceiverStartResent(t *testing.T) {
	r, _ := newTestReceiver(t)
	require.NoError(t, r.Begin(10))
	require.NoError(t, r.Begin(10))
	require.True(t, errors.Is(r.Begin(20), ErrBusy))
	require.Equal(t, Receiving, r.Session().Status)

	require.NoError(t, r.Write(0, []byte("hello")))
	require.True(t, errors.Is(r.Begin(10), ErrBusy))
	require.NoError(t, r.Write(1, []byte("world")))
	require.NoError(t, r.Finish(md5hex([]byte("helloworld"))))
	require.Equal(t, Success, r.Session().Status)
}

func TestReceiverWrongChecksum(t *testing.T) {
	r, _ := newTestReceiver(t)
	events := r.Subscribe(16)
	require.NoError(t, r.Begin(5))
	require.NoError(t, r.Write(0, []byte("hello")))
	_, err := os.Stat(r.Path())
	require.NoError(t, err)

	err = r.Finish("00000000000000000000000000000000")
	require.True(t, errors.Is(err, link.ErrChecksumMismatch))
	s := r.Session()
	require.Equal(t, Failed, s.Status)
	require.Equal(t, CodeChecksum, s.Code)
	_, err = os.Stat(r.Path())
	require.True(t, os.IsNotExist(err))

	var types []EventType
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	require.Equal(t, []EventType{EventStarted, EventProgress, EventVerifying, EventFailed}, types)
}

func TestReceiverSizeMismatch(t *testing.T) {
	r, _ := newTestReceiver(t)
	require.NoError(t, r.Begin(8))
	require.NoError(t, r.Write(0, []byte("abcd")))
	require.True(t, errors.Is(r.Write(1, []byte("efghi")), ErrSize))
	require.Equal(t, uint32(4), r.Session().Bytes)

	err := r.Finish(md5hex([]byte("abcd")))
	require.True(t, errors.Is(err, ErrSize))
	require.Equal(t, Failed, r.Session().Status)
	_, err = os.Stat(r.Path())
	require.True(t, os.IsNotExist(err))
}

func TestReceiverAbort(t *testing.T) {
	r, l := newTestReceiver(t)
	require.Equal(t, ErrNoSession, r.Abort())
	require.NoError(t, r.Begin(8))
	require.Equal(t, ErrBusy, r.Begin(8))
	require.NoError(t, r.Write(0, []byte("abcd")))
	require.NoError(t, r.Abort())
	s := r.Session()
	require.Equal(t, Failed, s.Status)
	require.Equal(t, CodeAborted, s.Code)
	_, err := os.Stat(r.Path())
	require.True(t, os.IsNotExist(err))
	require.Len(t, l.sent, 1)
	require.Equal(t, CmdAbort, l.sent[0].Cmd)
	require.Equal(t, frame.TypeNotify, l.sent[0].Type)
	require.Equal(t, ErrNoSession, r.Write(1, []byte("efgh")))
}

func TestReceiverNoSpace(t *testing.T) {
	r, _ := newTestReceiver(t)
	r.Reserve = 1 << 62
	err := r.Begin(1)
	require.True(t, errors.Is(err, ErrNoSpace))
	s := r.Session()
	require.Equal(t, Failed, s.Status)
	require.Equal(t, CodeNoSpace, s.Code)
}

func TestReceiverHandleRequest(t *testing.T) {
	r, l := newTestReceiver(t)
	image := []byte("firmware-image")
	var seq byte
	request := func(cmd uint16, data []byte) *frame.Frame {
		seq++
		r.HandleRequest(context.Background(), frame.New(frame.TypeRequest, seq, cmd, data))
		return l.replies[len(l.replies)-1]
	}
	testCases := []struct {
		name string
		cmd  uint16
		data []byte
		typ  frame.Type
		code Code
	}{
		{"data before start", CmdData, encodeData(0, image), frame.TypeNack, CodeInvalid},
		{"short start", CmdStart, []byte{1}, frame.TypeNack, CodeInvalid},
		{"start", CmdStart, encodeStart(uint32(len(image))), frame.TypeAck, CodeNone},
		{"out of sequence", CmdData, encodeData(1, image[:4]), frame.TypeNack, CodeSequence},
		{"first", CmdData, encodeData(0, image[:4]), frame.TypeAck, CodeNone},
		{"second", CmdData, encodeData(1, image[4:]), frame.TypeAck, CodeNone},
		{"finish", CmdFinish, []byte(md5hex(image)), frame.TypeAck, CodeNone},
		{"unknown", 0x601f, nil, frame.TypeNack, CodeInvalid},
	}
	for _, tc := range testCases {
		reply := request(tc.cmd, tc.data)
		require.Equalf(t, tc.typ, reply.Type, tc.name)
		require.Equalf(t, tc.cmd, reply.Cmd, tc.name)
		if tc.typ == frame.TypeNack {
			require.Equalf(t, []byte{byte(tc.code)}, reply.Data, tc.name)
		}
	}

	reply := request(CmdStatus, nil)
	require.Equal(t, frame.TypeResponse, reply.Type)
	s, err := decodeStatus(reply.Data)
	require.NoError(t, err)
	require.Equal(t, Success, s.Status)
	require.Equal(t, uint32(len(image)), s.Bytes)
	require.Equal(t, uint32(len(image)), s.TotalSize)
	require.Equal(t, uint16(2), s.Seq)
}

func TestReceiverEvents(t *testing.T) {
	r, _ := newTestReceiver(t)
	events := r.Subscribe(16)
	require.NoError(t, r.Begin(3))
	require.NoError(t, r.Write(0, []byte("abc")))
	require.NoError(t, r.Finish(md5hex([]byte("abc"))))
	select {
	case ev := <-events:
		require.Equal(t, EventStarted, ev.Type)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("no event")
	}
	var last Event
	for len(events) > 0 {
		last = <-events
	}
	require.Equal(t, EventSuccess, last.Type)
	require.Equal(t, md5hex([]byte("abc")), last.Session.Checksum)
}
