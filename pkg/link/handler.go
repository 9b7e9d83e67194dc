package link

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/mculink/pkg/frame"
)

// Handler handles a Request frame originated by the peer. It's called from
// the engine goroutine and must not block on the link; replies are queued
// with a Replier.
type Handler interface {
	HandleRequest(context.Context, *frame.Frame)
}

// HandleRequestFunc is the func form of Handler.
type HandleRequestFunc func(context.Context, *frame.Frame)

// HandleRequest implements Handler.
func (f HandleRequestFunc) HandleRequest(ctx context.Context, req *frame.Frame) {
	f(ctx, req)
}

// Replier queues replies to peer requests.
type Replier interface {
	Reply(req *frame.Frame, typ frame.Type, data []byte) error
}

// Caller issues requests and waits for replies.
type Caller interface {
	NextSeq() byte
	SendAndWait(ctx context.Context, req *frame.Frame, timeout time.Duration) (*frame.Frame, error)
}

// Sender queues frames without waiting for a reply.
type Sender interface {
	Send(f *frame.Frame) error
}

// Link is everything sub-protocols need from the engine.
type Link interface {
	Caller
	Sender
	Replier
}

type route struct {
	cmd, mask uint16
	handler   Handler
}

// Mux routes peer requests by command code. Requests nobody handles are
// answered with a Nack.
type Mux struct {
	Replier Replier

	routes []route
}

// NewMux creates a Mux.
func NewMux(r Replier) *Mux {
	return &Mux{Replier: r}
}

// Handle routes requests whose command c satisfies c&mask == cmd&mask to h.
func (m *Mux) Handle(cmd, mask uint16, h Handler) *Mux {
	m.routes = append(m.routes, route{cmd: cmd & mask, mask: mask, handler: h})
	return m
}

// HandleRequest implements Handler.
func (m *Mux) HandleRequest(ctx context.Context, req *frame.Frame) {
	for _, r := range m.routes {
		if req.Cmd&r.mask == r.cmd {
			r.handler.HandleRequest(ctx, req)
			return
		}
	}
	glog.Warningf("unhandled request %s", req)
	if m.Replier != nil {
		Nack(m.Replier, req)
	}
}

// Nack rejects req with an empty Nack. A failure to queue it is logged.
func Nack(r Replier, req *frame.Frame) error {
	err := r.Reply(req, frame.TypeNack, nil)
	if err != nil {
		glog.Warningf("nack %s: %v", req, err)
	}
	return err
}
