package linktest

import (
	"context"
	"sync"
	"time"

	"github.com/robotalks/mculink/pkg/frame"
)

// Responder produces the peer's replies to a frame sent by the host.
type Responder func(*frame.Frame) []*frame.Frame

// Peer simulates the microcontroller end of the link.
type Peer struct {
	Conn *Conn
	// Delay is applied before replying.
	Delay time.Duration

	responder Responder
	received  []*frame.Frame
	recvCh    chan *frame.Frame
	lock      sync.Mutex
}

// NewPeer creates a Peer on conn.
func NewPeer(conn *Conn, r Responder) *Peer {
	return &Peer{Conn: conn, responder: r, recvCh: make(chan *frame.Frame, 256)}
}

// AckAll is a Responder acknowledging every request with an empty Ack.
func AckAll(f *frame.Frame) []*frame.Frame {
	if f.Type != frame.TypeRequest {
		return nil
	}
	return []*frame.Frame{f.Reply(frame.TypeAck, nil)}
}

// Respond replies to requests of cmd with a Response carrying data, and
// acknowledges everything else.
func Respond(cmd uint16, data []byte) Responder {
	return func(f *frame.Frame) []*frame.Frame {
		if f.Type == frame.TypeRequest && f.Cmd == cmd {
			return []*frame.Frame{f.Reply(frame.TypeResponse, data)}
		}
		return AckAll(f)
	}
}

// SetResponder replaces the Responder.
func (p *Peer) SetResponder(r Responder) {
	p.lock.Lock()
	p.responder = r
	p.lock.Unlock()
}

// Received returns a copy of frames received so far.
func (p *Peer) Received() []*frame.Frame {
	p.lock.Lock()
	defer p.lock.Unlock()
	return append([]*frame.Frame(nil), p.received...)
}

// Next waits for the next frame from the host.
func (p *Peer) Next(timeout time.Duration) *frame.Frame {
	select {
	case f := <-p.recvCh:
		return f
	case <-time.After(timeout):
		return nil
	}
}

// Send writes a frame to the host.
func (p *Peer) Send(f *frame.Frame) error {
	b, err := f.Encode()
	if err != nil {
		return err
	}
	_, err = p.Conn.Write(b)
	return err
}

// Run serves the host until ctx is done or the link closes.
func (p *Peer) Run(ctx context.Context) error {
	var buf []byte
	chunk := make([]byte, 1024)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := p.Conn.Read(chunk, 10*time.Millisecond)
		if err != nil {
			return err
		}
		buf = append(buf, chunk[:n]...)
		for {
			f, used, err := frame.Decode(buf)
			if err == frame.ErrIncomplete {
				break
			}
			buf = buf[used:]
			if err != nil {
				continue
			}
			p.handle(f)
		}
	}
}

// Start runs the peer in background and returns a func to stop it.
func (p *Peer) Start() func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

func (p *Peer) handle(f *frame.Frame) {
	p.lock.Lock()
	p.received = append(p.received, f)
	r := p.responder
	p.lock.Unlock()
	select {
	case p.recvCh <- f:
	default:
	}
	if r == nil {
		return
	}
	replies := r(f)
	if len(replies) == 0 {
		return
	}
	if p.Delay > 0 {
		time.Sleep(p.Delay)
	}
	for _, reply := range replies {
		if err := p.Send(reply); err != nil {
			return
		}
	}
}
