package mqtt

import (
	"context"
	"testing"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/mculink/pkg/filexfer"
	"github.com/robotalks/mculink/pkg/frame"
	"github.com/robotalks/mculink/pkg/link"
	"github.com/robotalks/mculink/pkg/link/linktest"
	"github.com/robotalks/mculink/pkg/mcu"
)

const (
	cmdEcho   = 0x0002
	cmdReject = 0x0099
)

type bridgeTestEnv struct {
	engine *link.Engine
	peer   *linktest.Peer
	client *fakeClient
	bridge *Bridge
	files  chan filexfer.Event
	stop   []func()
}

func newBridgeTestEnv(t *testing.T) *bridgeTestEnv {
	host, dev := linktest.Pipe()
	env := &bridgeTestEnv{
		engine: link.NewEngine(linktest.NewDialer(host), "pipe"),
		files:  make(chan filexfer.Event, 4),
	}
	env.engine.PollTimeout = 2 * time.Millisecond
	env.peer = linktest.NewPeer(dev, func(f *frame.Frame) []*frame.Frame {
		if f.Type != frame.TypeRequest {
			return nil
		}
		switch f.Cmd {
		case cmdEcho:
			return []*frame.Frame{f.Reply(frame.TypeResponse, f.Data)}
		case cmdReject:
			return []*frame.Frame{f.Reply(frame.TypeNack, []byte{3})}
		}
		return linktest.AckAll(f)
	})
	q, c := newTestQueue("mcu/")
	env.client = c
	env.bridge = NewBridge(q, env.engine, mcu.NewClient(env.engine), "dev1").WatchFiles(env.files)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.bridge.Run(ctx) }()
	require.Eventually(t, func() bool {
		return env.client.subscribed("mcu/dev1/call")
	}, time.Second, time.Millisecond)
	env.stop = append(env.stop, env.peer.Start())
	env.engine.Start()
	t.Cleanup(func() {
		env.engine.Close()
		for _, stop := range env.stop {
			stop()
		}
		cancel()
		<-done
	})
	return env
}

func (c *fakeClient) subscribed(topic string) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	_, ok := c.subs[topic]
	return ok
}

func (env *bridgeTestEnv) waitState(t *testing.T, state link.State) *LinkState {
	deadline := time.After(time.Second)
	for {
		select {
		case p := <-env.client.pubCh:
			if p.topic != "mcu/dev1/state" {
				continue
			}
			require.True(t, p.retain)
			var msg LinkState
			require.NoError(t, proto.Unmarshal(p.payload, &msg))
			if msg.State == state.String() {
				return &msg
			}
		case <-deadline:
			t.Fatalf("state %s not published", state)
		}
	}
}

func (env *bridgeTestEnv) call(t *testing.T, call *RemoteCall) *RemoteResult {
	payload, err := proto.Marshal(call)
	require.NoError(t, err)
	require.Equal(t, 1, env.client.deliver("mcu/dev1/call", payload))
	p := env.client.next(t, "mcu/dev1/result")
	var result RemoteResult
	require.NoError(t, proto.Unmarshal(p.payload, &result))
	return &result
}

func TestBridgePublishesState(t *testing.T) {
	env := newBridgeTestEnv(t)
	msg := env.waitState(t, link.Connected)
	require.Equal(t, "pipe", msg.Path)
	require.NotZero(t, msg.Timestamp)
}

func TestBridgePublishesNotifications(t *testing.T) {
	env := newBridgeTestEnv(t)
	env.waitState(t, link.Connected)
	require.NoError(t, env.peer.Send(&frame.Frame{Type: frame.TypeNotify, Seq: 9, Cmd: 0x4001, Data: []byte{1, 2}}))
	p := env.client.next(t, "mcu/dev1/notify")
	require.False(t, p.retain)
	var msg Notification
	require.NoError(t, proto.Unmarshal(p.payload, &msg))
	require.Equal(t, uint32(0x4001), msg.Cmd)
	require.Equal(t, uint32(9), msg.Seq)
	require.Equal(t, []byte{1, 2}, msg.Data)
}

func TestBridgeRemoteCall(t *testing.T) {
	env := newBridgeTestEnv(t)
	env.waitState(t, link.Connected)

	result := env.call(t, &RemoteCall{Id: 7, Cmd: cmdEcho, Data: []byte("hi"), TimeoutMs: 500})
	require.Equal(t, uint64(7), result.Id)
	require.True(t, result.Ok)
	require.Equal(t, []byte("hi"), result.Data)
	require.Empty(t, result.Error)

	result = env.call(t, &RemoteCall{Id: 8, Cmd: cmdReject})
	require.Equal(t, uint64(8), result.Id)
	require.False(t, result.Ok)
	require.Equal(t, uint32(3), result.NackCode)
	require.NotEmpty(t, result.Error)

	result = env.call(t, &RemoteCall{Id: 9, Cmd: 0x10000})
	require.False(t, result.Ok)
	require.Equal(t, link.ErrInvalidParameter.Error(), result.Error)
}

func TestBridgeForwardsFileEvents(t *testing.T) {
	env := newBridgeTestEnv(t)
	env.files <- filexfer.Event{
		Type: filexfer.EventProgress,
		Session: filexfer.Session{
			Name:      "log.txt",
			State:     filexfer.Transmitting,
			TotalSize: 200,
			Bytes:     50,
		},
	}
	p := env.client.next(t, "mcu/dev1/event/file")
	var msg TransferEvent
	require.NoError(t, proto.Unmarshal(p.payload, &msg))
	require.Equal(t, "file", msg.Kind)
	require.Equal(t, "log.txt", msg.Name)
	require.Equal(t, int32(25), msg.Progress)
	require.Equal(t, uint32(200), msg.Total)
}
