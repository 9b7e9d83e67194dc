package filexfer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/mculink/pkg/frame"
	"github.com/robotalks/mculink/pkg/link"
	"github.com/robotalks/mculink/pkg/link/linktest"
	"github.com/robotalks/mculink/pkg/mcu"
)

// linkedPair connects two engines, host and device, back to back.
type linkedPair struct {
	t            *testing.T
	host, device *link.Engine
}

func newLinkedPair(t *testing.T) *linkedPair {
	a, b := linktest.Pipe()
	p := &linkedPair{
		t:    t,
		host:   link.NewEngine(linktest.NewDialer(a), "host"),
		device: link.NewEngine(linktest.NewDialer(b), "device"),
	}
	for _, e := range []*link.Engine{p.host, p.device} {
		e.PollTimeout = 2 * time.Millisecond
	}
	t.Cleanup(func() {
		p.host.Close()
		p.device.Close()
	})
	return p
}

// start runs both engines. Bytes arriving before an engine connects are
// flushed, so it waits for both to connect.
func (p *linkedPair) start() {
	p.host.Start()
	p.device.Start()
	require.Eventually(p.t, func() bool {
		return p.host.State() == link.Connected && p.device.State() == link.Connected
	}, time.Second, time.Millisecond)
}

func writeTestFile(t *testing.T, size int) string {
	path := filepath.Join(t.TempDir(), "source.bin")
	require.NoError(t, os.WriteFile(path, testContent(size), 0644))
	return path
}

func collect(ch <-chan Event, typ EventType, timeout time.Duration) (events []Event) {
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-ch:
			events = append(events, ev)
			if ev.Type == typ {
				return
			}
		case <-deadline:
			return
		}
	}
}

func TestUploadEndToEnd(t *testing.T) {
	testCases := []struct {
		name      string
		size      int
		blockSize int
	}{
		{"multiple blocks", 5000, 1024},
		{"exact blocks", 2048, 512},
		{"single block", 10, 0},
		{"empty", 0, 1024},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pair := newLinkedPair(t)
			dir := t.TempDir()
			receiver := NewReceiver(pair.device, dir)
			pair.device.Handler = link.NewMux(pair.device).Handle(CmdNotify, CmdMask, receiver)
			inbound := receiver.Subscribe(256)
			sender := NewSender(mcu.NewClient(pair.host))
			sender.BlockSize = tc.blockSize
			outbound := sender.Subscribe(256)
			pair.start()

			src := writeTestFile(t, tc.size)
			require.NoError(t, sender.Send(context.Background(), src, "dest.bin"))
			s, ok := sender.Session()
			require.True(t, ok)
			require.Equal(t, Completed, s.State)
			require.Equal(t, uint32(tc.size), s.Bytes)

			events := collect(outbound, EventCompleted, time.Second)
			require.Equal(t, EventNotified, events[0].Type)
			require.Equal(t, EventStarted, events[1].Type)
			require.Equal(t, EventCompleted, events[len(events)-1].Type)
			events = collect(inbound, EventCompleted, time.Second)
			require.Equal(t, EventCompleted, events[len(events)-1].Type)

			got, err := os.ReadFile(filepath.Join(dir, "dest.bin"))
			require.NoError(t, err)
			require.Equal(t, testContent(tc.size), got)
		})
	}
}

func TestDownloadRequest(t *testing.T) {
	pair := newLinkedPair(t)
	hostDir, deviceDir := t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(deviceDir, "boot.log"), testContent(3000), 0644))

	// the device serves files from deviceDir.
	deviceSender := NewSender(mcu.NewClient(pair.device))
	deviceReceiver := NewReceiver(pair.device, t.TempDir())
	deviceReceiver.Uploader, deviceReceiver.UploadDir = deviceSender, deviceDir
	pair.device.Handler = deviceReceiver

	hostReceiver := NewReceiver(pair.host, hostDir)
	pair.host.Handler = hostReceiver
	events := hostReceiver.Subscribe(256)
	pair.start()

	hostSender := NewSender(mcu.NewClient(pair.host))
	require.NoError(t, hostSender.Request(context.Background(), "boot.log"))
	evs := collect(events, EventCompleted, 2*time.Second)
	require.NotEmpty(t, evs)
	require.Equal(t, EventCompleted, evs[len(evs)-1].Type)
	got, err := os.ReadFile(filepath.Join(hostDir, "boot.log"))
	require.NoError(t, err)
	require.Equal(t, testContent(3000), got)

	err = hostSender.Request(context.Background(), "missing.log")
	var cmdErr *link.CommandError
	require.True(t, errors.As(err, &cmdErr))
	require.Equal(t, byte(CodeNotFound), cmdErr.Code())
}

func TestUploadFailure(t *testing.T) {
	host, dev := linktest.Pipe()
	peer := linktest.NewPeer(dev, func(f *frame.Frame) []*frame.Frame {
		if f.Cmd == CmdData {
			return []*frame.Frame{f.Reply(frame.TypeNack, []byte{byte(CodeChecksum)})}
		}
		return linktest.AckAll(f)
	})
	defer peer.Start()()
	e := link.NewEngine(linktest.NewDialer(host), "test")
	e.Start()
	defer e.Close()

	sender := NewSender(mcu.NewClient(e))
	sender.Retries = 2
	events := sender.Subscribe(64)
	err := sender.Send(context.Background(), writeTestFile(t, 100), "")
	var cmdErr *link.CommandError
	require.True(t, errors.As(err, &cmdErr))
	evs := collect(events, EventError, time.Second)
	ev := evs[len(evs)-1]
	require.Equal(t, EventError, ev.Type)
	require.Equal(t, Failed, ev.Session.State)
	require.Equal(t, CodeChecksum, ev.Session.Code)
	require.Equal(t, "source.bin", ev.Session.Name)

	require.Eventually(t, func() bool {
		for _, f := range peer.Received() {
			if f.Cmd == CmdError {
				return bytes.Equal([]byte{byte(CodeChecksum)}, f.Data)
			}
		}
		return false
	}, time.Second, time.Millisecond)
	var dataAttempts int
	for _, f := range peer.Received() {
		if f.Cmd == CmdData {
			dataAttempts++
		}
	}
	require.Equal(t, 3, dataAttempts)
}

func TestSenderInvalid(t *testing.T) {
	sender := NewSender(mcu.NewClient(nil))
	require.Equal(t, link.ErrInvalidParameter, sender.Request(context.Background(), ""))
	sender.BlockSize = MaxBlockSize + 1
	err := sender.Send(context.Background(), writeTestFile(t, 1), "x")
	require.True(t, errors.Is(err, link.ErrInvalidParameter))
	_, ok := sender.Session()
	require.False(t, ok)
}
