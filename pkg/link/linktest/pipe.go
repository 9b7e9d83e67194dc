// Package linktest provides an in-memory link and a scriptable peer.
package linktest

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/robotalks/mculink/pkg/transport"
)

// Conn is one end of an in-memory byte link. It implements
// transport.Transport.
type Conn struct {
	rx  <-chan []byte
	tx  chan<- []byte
	buf []byte

	closed    chan struct{}
	peerGone  <-chan struct{}
	closeOnce sync.Once
	failWrite int32
}

// Pipe creates a connected pair of Conns.
func Pipe() (*Conn, *Conn) {
	ab, ba := make(chan []byte, 1024), make(chan []byte, 1024)
	a := &Conn{rx: ba, tx: ab, closed: make(chan struct{})}
	b := &Conn{rx: ab, tx: ba, closed: make(chan struct{})}
	a.peerGone, b.peerGone = b.closed, a.closed
	return a, b
}

// FailWrites makes subsequent writes fail.
func (c *Conn) FailWrites(fail bool) {
	var v int32
	if fail {
		v = 1
	}
	atomic.StoreInt32(&c.failWrite, v)
}

// Read implements transport.Transport.
func (c *Conn) Read(p []byte, timeout time.Duration) (int, error) {
	if len(c.buf) == 0 {
		var timer <-chan time.Time
		if timeout >= 0 {
			t := time.NewTimer(timeout)
			defer t.Stop()
			timer = t.C
		}
		select {
		case c.buf = <-c.rx:
		case <-c.closed:
			return 0, transport.ErrClosed
		case <-c.peerGone:
			return 0, transport.ErrClosed
		case <-timer:
			return 0, nil
		}
	}
	n := copy(p, c.buf)
	c.buf = c.buf[n:]
	return n, nil
}

// Write implements transport.Transport.
func (c *Conn) Write(p []byte) (int, error) {
	if atomic.LoadInt32(&c.failWrite) != 0 {
		return 0, transport.ErrClosed
	}
	select {
	case <-c.closed:
		return 0, transport.ErrClosed
	case <-c.peerGone:
		return 0, transport.ErrClosed
	case c.tx <- append([]byte(nil), p...):
		return len(p), nil
	}
}

// Flush implements transport.Transport.
func (c *Conn) Flush() error {
	c.buf = nil
	for {
		select {
		case <-c.rx:
		default:
			return nil
		}
	}
}

// Close implements transport.Transport.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// Dialer hands out queued transports, one per Dial. Dial fails when the
// queue is empty.
type Dialer struct {
	conns []transport.Transport
	dials int32
	lock  sync.Mutex
}

// NewDialer creates a Dialer with conns queued.
func NewDialer(conns ...transport.Transport) *Dialer {
	return &Dialer{conns: conns}
}

// Push queues another transport.
func (d *Dialer) Push(conn transport.Transport) {
	d.lock.Lock()
	d.conns = append(d.conns, conn)
	d.lock.Unlock()
}

// Dials returns how many times Dial was called.
func (d *Dialer) Dials() int {
	return int(atomic.LoadInt32(&d.dials))
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(path string) (transport.Transport, error) {
	atomic.AddInt32(&d.dials, 1)
	d.lock.Lock()
	defer d.lock.Unlock()
	if len(d.conns) == 0 {
		return nil, transport.ErrNoPath
	}
	conn := d.conns[0]
	d.conns = d.conns[1:]
	return conn, nil
}
