package link

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/mculink/pkg/frame"
	"github.com/robotalks/mculink/pkg/transport"
)

// Defaults of Engine.
const (
	DefaultReconnectInterval = time.Second
	DefaultPollTimeout       = 20 * time.Millisecond
	DefaultTimeout           = 2 * time.Second
	DefaultOutboxSize        = 64
)

// Engine runs the link in a background goroutine.
type Engine struct {
	Dialer            transport.Dialer
	Paths             []string
	ReconnectInterval time.Duration
	PollTimeout       time.Duration
	Decoder           frame.Decoder
	// Handler receives Request frames originated by the peer.
	Handler Handler

	tracker   *Tracker
	seq       uint32
	state     State
	stateLock sync.RWMutex

	// owned by the engine goroutine.
	conn     transport.Transport
	path     string
	lastDial time.Time
	rxBuf    []byte
	txBuf    []byte

	outbox     []*frame.Frame
	outboxLock sync.Mutex
	wakeCh     chan struct{}

	notifyHub Hub[*frame.Frame]
	stateHub  Hub[State]
	counters  counters

	stopped int32
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

// NewEngine creates an Engine dialing paths with d. An empty path list
// falls back to transport.DefaultPaths.
func NewEngine(d transport.Dialer, paths ...string) *Engine {
	return &Engine{
		Dialer:            d,
		Paths:             paths,
		ReconnectInterval: DefaultReconnectInterval,
		PollTimeout:       DefaultPollTimeout,
		tracker:           NewTracker(),
		wakeCh:            make(chan struct{}, 1),
	}
}

// State gets the connection state.
func (e *Engine) State() State {
	e.stateLock.RLock()
	defer e.stateLock.RUnlock()
	return e.state
}

// Path returns the device path of the current connection.
func (e *Engine) Path() string {
	e.stateLock.RLock()
	defer e.stateLock.RUnlock()
	return e.path
}

// Stats returns a snapshot of the link counters.
func (e *Engine) Stats() Stats {
	return e.counters.snapshot()
}

// Pending returns the number of requests waiting for replies.
func (e *Engine) Pending() int {
	return e.tracker.Len()
}

// Subscribe receives Notify frames from the peer.
func (e *Engine) Subscribe(size int) <-chan *frame.Frame {
	return e.notifyHub.Subscribe(size)
}

// Unsubscribe cancels a Subscribe.
func (e *Engine) Unsubscribe(ch <-chan *frame.Frame) {
	e.notifyHub.Unsubscribe(ch)
}

// SubscribeState receives connection state changes.
func (e *Engine) SubscribeState(size int) <-chan State {
	return e.stateHub.Subscribe(size)
}

// UnsubscribeState cancels a SubscribeState.
func (e *Engine) UnsubscribeState(ch <-chan State) {
	e.stateHub.Unsubscribe(ch)
}

// NextSeq allocates a sequence value. It wraps at 256.
func (e *Engine) NextSeq() byte {
	return byte(atomic.AddUint32(&e.seq, 1))
}

// SendAndWait sends req and waits for the reply with the same sequence
// value and command. It fails with ErrBusy if another request occupies the
// sequence value, ErrTimeout if nothing matches before timeout and
// ErrShutdown if the engine stops first.
func (e *Engine) SendAndWait(ctx context.Context, req *frame.Frame, timeout time.Duration) (*frame.Frame, error) {
	if req == nil || req.Type != frame.TypeRequest {
		return nil, ErrInvalidParameter
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r, err := e.tracker.Add(req, time.Now().Add(timeout))
	if err != nil {
		return nil, err
	}
	if glog.V(3) {
		glog.Infof("queued %s", req)
	}
	e.wake()
	select {
	case <-r.Done():
	case <-ctx.Done():
		e.tracker.Cancel(r, ctx.Err())
		<-r.Done()
	}
	state, resp, err := r.Result()
	if state == RequestTimedOut {
		e.counters.add(&e.counters.stats.Timeouts, 1)
	}
	return resp, err
}

// Send queues a frame without waiting for any reply.
func (e *Engine) Send(f *frame.Frame) error {
	if f == nil {
		return ErrInvalidParameter
	}
	if atomic.LoadInt32(&e.stopped) != 0 {
		return ErrShutdown
	}
	e.outboxLock.Lock()
	if len(e.outbox) >= DefaultOutboxSize {
		e.outboxLock.Unlock()
		return ErrBusy
	}
	e.outbox = append(e.outbox, f.Clone())
	e.outboxLock.Unlock()
	e.wake()
	return nil
}

// Reply implements Replier.
func (e *Engine) Reply(req *frame.Frame, typ frame.Type, data []byte) error {
	return e.Send(req.Reply(typ, data))
}

// Start runs the engine in a new goroutine.
func (e *Engine) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.doneCh = make(chan struct{})
	go func() {
		defer close(e.doneCh)
		e.Run(ctx)
	}()
}

// Close stops the engine started by Start and waits for it to exit.
// All pending requests fail with ErrShutdown.
func (e *Engine) Close() error {
	if e.cancel == nil {
		return nil
	}
	e.cancel()
	<-e.doneCh
	return nil
}

// Run runs the engine until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	defer e.shutdown()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if e.conn == nil {
			if time.Since(e.lastDial) >= e.reconnectInterval() {
				e.connect()
			}
			if e.conn == nil {
				e.sweep()
				e.idle(ctx)
				continue
			}
		}
		if e.sendPhase() {
			e.receivePhase(ctx)
		}
		e.sweep()
	}
}

func (e *Engine) reconnectInterval() time.Duration {
	if e.ReconnectInterval > 0 {
		return e.ReconnectInterval
	}
	return DefaultReconnectInterval
}

func (e *Engine) pollTimeout() time.Duration {
	if e.PollTimeout > 0 {
		return e.PollTimeout
	}
	return DefaultPollTimeout
}

func (e *Engine) wake() {
	select {
	case e.wakeCh <- struct{}{}:
	default:
	}
}

func (e *Engine) idle(ctx context.Context) {
	timer := time.NewTimer(e.pollTimeout())
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-e.wakeCh:
	case <-timer.C:
	}
}

func (e *Engine) setState(state State, path string) {
	e.stateLock.Lock()
	changed := e.state != state
	e.state, e.path = state, path
	e.stateLock.Unlock()
	if changed {
		glog.V(1).Infof("link %s %s", state, path)
		e.stateHub.Publish(state)
	}
}

func (e *Engine) connect() {
	e.lastDial = time.Now()
	e.setState(Connecting, "")
	paths := e.Paths
	if len(paths) == 0 {
		paths = transport.DefaultPaths
	}
	dialer := e.Dialer
	if dialer == nil {
		dialer = transport.DefaultDialer
	}
	conn, path, err := transport.DialAny(dialer, paths)
	if err != nil {
		glog.V(1).Infof("connect failed: %v", err)
		e.setState(Disconnected, "")
		return
	}
	if err := conn.Flush(); err != nil {
		glog.Warningf("flush %s: %v", path, err)
	}
	e.conn = conn
	e.rxBuf = e.rxBuf[:0]
	e.counters.add(&e.counters.stats.Reconnects, 1)
	glog.Infof("connected to %s", path)
	e.setState(Connected, path)
}

func (e *Engine) disconnect(err error) {
	glog.Warningf("link %s lost: %v", e.path, err)
	path := e.path
	e.setState(Disconnecting, path)
	if cerr := e.conn.Close(); cerr != nil {
		glog.V(1).Infof("close %s: %v", path, cerr)
	}
	e.conn = nil
	e.setState(Disconnected, "")
}

func (e *Engine) sweep() {
	if n := e.tracker.Expire(time.Now()); n > 0 {
		glog.V(1).Infof("%d request(s) timed out", n)
	}
}

func (e *Engine) takeOutbox() []*frame.Frame {
	e.outboxLock.Lock()
	defer e.outboxLock.Unlock()
	out := e.outbox
	e.outbox = nil
	return out
}

// sendPhase writes queued frames and unsent requests. It returns false if
// the link went down.
func (e *Engine) sendPhase() bool {
	outbox := e.takeOutbox()
	for n, f := range outbox {
		if err := e.write(f); err != nil {
			glog.Warningf("dropped %d queued frame(s)", len(outbox)-n)
			e.disconnect(err)
			return false
		}
	}
	for _, r := range e.tracker.Unsent() {
		if err := e.write(r.Frame()); err != nil {
			e.disconnect(err)
			return false
		}
		e.tracker.MarkSent(r)
	}
	return true
}

func (e *Engine) write(f *frame.Frame) error {
	n := f.EncodedLen()
	if cap(e.txBuf) < n {
		e.txBuf = make([]byte, n)
	}
	buf := e.txBuf[:n]
	if _, err := f.EncodeTo(buf); err != nil {
		// not a link failure, the frame itself is bad.
		glog.Errorf("encode %s: %v", f, err)
		return nil
	}
	if _, err := e.conn.Write(buf); err != nil {
		e.counters.add(&e.counters.stats.WriteErrors, 1)
		return fmt.Errorf("%w: write: %v", ErrIO, err)
	}
	e.counters.add(&e.counters.stats.FramesOut, 1)
	e.counters.add(&e.counters.stats.BytesOut, uint64(n))
	if glog.V(2) {
		glog.Infof("TX %s", f)
	}
	return nil
}

func (e *Engine) receivePhase(ctx context.Context) {
	var buf [512]byte
	n, err := e.conn.Read(buf[:], e.pollTimeout())
	if err != nil {
		e.counters.add(&e.counters.stats.ReadErrors, 1)
		e.disconnect(fmt.Errorf("%w: read: %v", ErrIO, err))
		return
	}
	if n == 0 {
		return
	}
	e.counters.add(&e.counters.stats.BytesIn, uint64(n))
	e.rxBuf = append(e.rxBuf, buf[:n]...)
	e.decodeFrames(ctx)
}

func (e *Engine) decodeFrames(ctx context.Context) {
	pos := 0
	for pos < len(e.rxBuf) {
		f, n, err := e.Decoder.Decode(e.rxBuf[pos:])
		if err == frame.ErrIncomplete {
			break
		}
		pos += n
		var crcErr *frame.ChecksumError
		switch {
		case err == nil:
			if !e.Decoder.Strict && !f.Valid() {
				// relaxed mode: counted and delivered anyway.
				e.counters.add(&e.counters.stats.CRCErrors, 1)
				glog.V(1).Infof("bad crc %s", f)
			}
			e.dispatch(ctx, f)
		case errors.As(err, &crcErr):
			e.counters.add(&e.counters.stats.CRCErrors, 1)
			glog.Warningf("dropped %s: %v", f, err)
		default:
			e.counters.add(&e.counters.stats.Resyncs, 1)
		}
	}
	e.rxBuf = append(e.rxBuf[:0], e.rxBuf[pos:]...)
}

func (e *Engine) dispatch(ctx context.Context, f *frame.Frame) {
	e.counters.add(&e.counters.stats.FramesIn, 1)
	if glog.V(2) {
		glog.Infof("RX %s", f)
	}
	switch {
	case f.Type == frame.TypeNotify:
		e.counters.add(&e.counters.stats.Notifies, 1)
		if dropped := e.notifyHub.Publish(f); dropped > 0 {
			e.counters.add(&e.counters.stats.NotifyDrops, uint64(dropped))
		}
	case f.Type == frame.TypeRequest:
		e.counters.add(&e.counters.stats.PeerRequests, 1)
		if h := e.Handler; h != nil {
			h.HandleRequest(ctx, f)
		} else {
			Nack(e, f)
		}
	case f.Type.IsReply():
		if e.tracker.Match(f) == nil {
			e.counters.add(&e.counters.stats.Unmatched, 1)
			glog.V(1).Infof("unmatched %s", f)
		}
	default:
		glog.Warningf("%v: unknown frame %s", ErrProtocol, f)
	}
}

func (e *Engine) shutdown() {
	atomic.StoreInt32(&e.stopped, 1)
	if n := e.tracker.Close(ErrShutdown); n > 0 {
		glog.Infof("%d pending request(s) aborted by shutdown", n)
	}
	if e.conn != nil {
		path := e.path
		e.setState(Disconnecting, path)
		e.conn.Close()
		e.conn = nil
		e.setState(Disconnected, "")
	}
	e.takeOutbox()
	e.notifyHub.Close()
	e.stateHub.Close()
}
