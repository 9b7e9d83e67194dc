package link

import (
	"sync"
	"time"

	"github.com/robotalks/mculink/pkg/frame"
)

// RequestState is the lifecycle state of a Request.
type RequestState int

// Request states.
const (
	RequestPending RequestState = iota
	RequestCompleted
	RequestTimedOut
	RequestError
)

// Request is a pending request waiting for its reply. Fields are guarded
// by the Tracker lock until done is closed; after that they never change.
type Request struct {
	frame    *frame.Frame
	response *frame.Frame
	state    RequestState
	err      error
	deadline time.Time
	sent     bool
	done     chan struct{}
}

// Seq returns the sequence value of the request.
func (r *Request) Seq() byte {
	return r.frame.Seq
}

// Frame returns the request frame.
func (r *Request) Frame() *frame.Frame {
	return r.frame
}

// Done is closed when the request is resolved.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Result returns the outcome. Only valid after Done is closed.
func (r *Request) Result() (RequestState, *frame.Frame, error) {
	return r.state, r.response, r.err
}

func (r *Request) resolve(state RequestState, resp *frame.Frame, err error) {
	r.state, r.response, r.err = state, resp, err
}

// Tracker correlates pending requests with replies by sequence value.
type Tracker struct {
	slots  [256]*Request
	count  int
	closed error
	lock   sync.Mutex
}

// NewTracker creates a Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Add registers a request for f. It fails with ErrBusy if another pending
// request occupies the same sequence value.
func (t *Tracker) Add(f *frame.Frame, deadline time.Time) (*Request, error) {
	if f == nil {
		return nil, ErrInvalidParameter
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.closed != nil {
		return nil, t.closed
	}
	if t.slots[f.Seq] != nil {
		return nil, ErrBusy
	}
	r := &Request{
		frame:    f.Clone(),
		deadline: deadline,
		done:     make(chan struct{}),
	}
	t.slots[f.Seq] = r
	t.count++
	return r, nil
}

// Len returns the number of pending requests.
func (t *Tracker) Len() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.count
}

// Unsent returns pending requests not written yet.
func (t *Tracker) Unsent() (reqs []*Request) {
	t.lock.Lock()
	defer t.lock.Unlock()
	for _, r := range t.slots {
		if r != nil && !r.sent {
			reqs = append(reqs, r)
		}
	}
	return
}

// MarkSent records the request has been written.
func (t *Tracker) MarkSent(r *Request) {
	t.lock.Lock()
	r.sent = true
	t.lock.Unlock()
}

// Match completes the pending request answered by resp. The request is
// removed before its waiter is woken so a duplicated reply can't match
// twice. It returns nil if nothing matches.
func (t *Tracker) Match(resp *frame.Frame) *Request {
	t.lock.Lock()
	r := t.slots[resp.Seq]
	if r == nil || r.frame.Cmd != resp.Cmd {
		t.lock.Unlock()
		return nil
	}
	t.removeLocked(r)
	r.resolve(RequestCompleted, resp, nil)
	t.lock.Unlock()
	close(r.done)
	return r
}

// Expire times out requests with deadline before now.
func (t *Tracker) Expire(now time.Time) int {
	var expired []*Request
	t.lock.Lock()
	for _, r := range t.slots {
		if r != nil && !r.deadline.After(now) {
			t.removeLocked(r)
			r.resolve(RequestTimedOut, nil, ErrTimeout)
			expired = append(expired, r)
		}
	}
	t.lock.Unlock()
	for _, r := range expired {
		close(r.done)
	}
	return len(expired)
}

// Cancel resolves r with err if it's still pending.
func (t *Tracker) Cancel(r *Request, err error) bool {
	t.lock.Lock()
	if t.slots[r.frame.Seq] != r {
		t.lock.Unlock()
		return false
	}
	t.removeLocked(r)
	r.resolve(RequestError, nil, err)
	t.lock.Unlock()
	close(r.done)
	return true
}

// Close fails all pending requests with err and rejects new ones.
func (t *Tracker) Close(err error) int {
	var failed []*Request
	t.lock.Lock()
	t.closed = err
	for _, r := range t.slots {
		if r != nil {
			t.removeLocked(r)
			r.resolve(RequestError, nil, err)
			failed = append(failed, r)
		}
	}
	t.lock.Unlock()
	for _, r := range failed {
		close(r.done)
	}
	return len(failed)
}

func (t *Tracker) removeLocked(r *Request) {
	t.slots[r.frame.Seq] = nil
	t.count--
}
