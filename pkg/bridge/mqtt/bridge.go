package mqtt

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/golang/protobuf/proto"

	"github.com/robotalks/mculink/pkg/filexfer"
	"github.com/robotalks/mculink/pkg/fota"
	"github.com/robotalks/mculink/pkg/frame"
	"github.com/robotalks/mculink/pkg/link"
)

// Topics relative to <prefix><device id>/.
const (
	TopicState     = "state"
	TopicNotify    = "notify"
	TopicFileEvent = "event/file"
	TopicFOTAEvent = "event/fota"
	TopicCall      = "call"
	TopicResult    = "result"
)

// DefaultCallTimeout applies to a RemoteCall without timeout.
const DefaultCallTimeout = 2 * time.Second

// Source is the link as seen by the bridge.
type Source interface {
	State() link.State
	Path() string
	Stats() link.Stats
	SubscribeState(size int) <-chan link.State
	UnsubscribeState(<-chan link.State)
	Subscribe(size int) <-chan *frame.Frame
	Unsubscribe(<-chan *frame.Frame)
}

// Caller executes raw commands.
type Caller interface {
	Call(ctx context.Context, cmd uint16, data []byte) ([]byte, error)
}

// Bridge publishes link activity to MQTT and serves remote calls.
type Bridge struct {
	Queue    *Queue
	Source   Source
	Caller   Caller
	DeviceID string
	// MaxCallTimeout bounds the timeout requested by a RemoteCall.
	MaxCallTimeout time.Duration

	fileEvents []<-chan filexfer.Event
	fotaEvents []<-chan fota.Event
	calls      sync.WaitGroup
}

// NewBridge creates a Bridge.
func NewBridge(q *Queue, src Source, caller Caller, deviceID string) *Bridge {
	return &Bridge{
		Queue:          q,
		Source:         src,
		Caller:         caller,
		DeviceID:       deviceID,
		MaxCallTimeout: 10 * time.Second,
	}
}

// WatchFiles publishes file transfer events from ch.
func (b *Bridge) WatchFiles(ch <-chan filexfer.Event) *Bridge {
	b.fileEvents = append(b.fileEvents, ch)
	return b
}

// WatchFOTA publishes FOTA events from ch.
func (b *Bridge) WatchFOTA(ch <-chan fota.Event) *Bridge {
	b.fotaEvents = append(b.fotaEvents, ch)
	return b
}

func (b *Bridge) topic(name string) string {
	return b.DeviceID + "/" + name
}

func (b *Bridge) publish(topic string, msg proto.Message, retain bool) {
	payload, err := proto.Marshal(msg)
	if err != nil {
		glog.Errorf("marshal %T: %v", msg, err)
		return
	}
	b.Queue.PubWith(b.topic(topic), payload, 0, retain)
}

// Run implements framework.Runnable.
func (b *Bridge) Run(ctx context.Context) error {
	states := b.Source.SubscribeState(16)
	defer b.Source.UnsubscribeState(states)
	notifies := b.Source.Subscribe(64)
	defer b.Source.Unsubscribe(notifies)

	b.Queue.OnConnect = func(*Queue) { b.publishState(b.Source.State()) }
	sub := b.Queue.Sub(b.topic(TopicCall), func(topic string, payload []byte) {
		b.handleCall(ctx, payload)
	})
	token := b.Queue.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		sub.Close()
		return err
	}
	defer b.Queue.Close()

	var wg sync.WaitGroup
	for _, ch := range b.fileEvents {
		wg.Add(1)
		go func(ch <-chan filexfer.Event) {
			defer wg.Done()
			b.forwardFiles(ctx, ch)
		}(ch)
	}
	for _, ch := range b.fotaEvents {
		wg.Add(1)
		go func(ch <-chan fota.Event) {
			defer wg.Done()
			b.forwardFOTA(ctx, ch)
		}(ch)
	}
	defer wg.Wait()
	defer b.calls.Wait()
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case state, ok := <-states:
			if !ok {
				return nil
			}
			b.publishState(state)
		case f, ok := <-notifies:
			if !ok {
				return nil
			}
			b.publish(TopicNotify, &Notification{
				Cmd:       uint32(f.Cmd),
				Seq:       uint32(f.Seq),
				Data:      f.Data,
				Timestamp: time.Now().UnixMilli(),
			}, false)
		}
	}
}

func (b *Bridge) publishState(state link.State) {
	stats := b.Source.Stats()
	b.publish(TopicState, &LinkState{
		State:      state.String(),
		Path:       b.Source.Path(),
		FramesIn:   stats.FramesIn,
		FramesOut:  stats.FramesOut,
		Timeouts:   stats.Timeouts,
		Reconnects: stats.Reconnects,
		Timestamp:  time.Now().UnixMilli(),
	}, true)
}

func (b *Bridge) forwardFiles(ctx context.Context, ch <-chan filexfer.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			b.publish(TopicFileEvent, fileEvent(&ev), false)
		}
	}
}

func (b *Bridge) forwardFOTA(ctx context.Context, ch <-chan fota.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			b.publish(TopicFOTAEvent, fotaEvent(&ev), false)
		}
	}
}

func fileEvent(ev *filexfer.Event) *TransferEvent {
	s := &ev.Session
	msg := &TransferEvent{
		Kind:     "file",
		Event:    ev.Type.String(),
		Name:     s.Name,
		State:    s.State.String(),
		Bytes:    s.Bytes,
		Total:    s.TotalSize,
		Progress: int32(s.Progress()),
		Code:     uint32(s.Code),
	}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}
	return msg
}

func fotaEvent(ev *fota.Event) *TransferEvent {
	s := &ev.Session
	msg := &TransferEvent{
		Kind:     "fota",
		Event:    ev.Type.String(),
		Name:     s.Path,
		State:    s.Status.String(),
		Bytes:    s.Bytes,
		Total:    s.TotalSize,
		Progress: int32(s.Progress()),
		Code:     uint32(s.Code),
	}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}
	return msg
}

// handleCall runs on the MQTT client goroutine; the call itself waits on
// the link so it's run separately.
func (b *Bridge) handleCall(ctx context.Context, payload []byte) {
	var call RemoteCall
	if err := proto.Unmarshal(payload, &call); err != nil {
		glog.Warningf("invalid remote call: %v", err)
		return
	}
	if call.Cmd > 0xffff {
		b.publish(TopicResult, &RemoteResult{Id: call.Id, Error: link.ErrInvalidParameter.Error()}, false)
		return
	}
	timeout := time.Duration(call.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	if b.MaxCallTimeout > 0 && timeout > b.MaxCallTimeout {
		timeout = b.MaxCallTimeout
	}
	b.calls.Add(1)
	go func() {
		defer b.calls.Done()
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		data, err := b.Caller.Call(callCtx, uint16(call.Cmd), call.Data)
		result := &RemoteResult{Id: call.Id, Ok: err == nil, Data: data}
		if err != nil {
			result.Error = err.Error()
			var cmdErr *link.CommandError
			if errors.As(err, &cmdErr) {
				result.NackCode = uint32(cmdErr.Code())
				result.Data = cmdErr.Data
			}
		}
		glog.V(1).Infof("remote call %d cmd 0x%04x: %v", call.Id, call.Cmd, err)
		b.publish(TopicResult, result, false)
	}()
}
