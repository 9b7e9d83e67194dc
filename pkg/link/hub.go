package link

import "sync"

// Hub fans values out to subscribers. Publishing never blocks: a value is
// dropped for a subscriber whose buffer is full.
type Hub[T any] struct {
	subs   map[<-chan T]chan T
	closed bool
	lock   sync.Mutex
}

// Subscribe returns a channel receiving published values. The channel is
// closed by Unsubscribe or Close.
func (h *Hub[T]) Subscribe(size int) <-chan T {
	if size <= 0 {
		size = 16
	}
	ch := make(chan T, size)
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.closed {
		close(ch)
		return ch
	}
	if h.subs == nil {
		h.subs = make(map[<-chan T]chan T)
	}
	h.subs[ch] = ch
	return ch
}

// Unsubscribe removes a subscription.
func (h *Hub[T]) Unsubscribe(ch <-chan T) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if c, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(c)
	}
}

// Publish sends v to all subscribers and returns how many missed it.
func (h *Hub[T]) Publish(v T) (dropped int) {
	h.lock.Lock()
	defer h.lock.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- v:
		default:
			dropped++
		}
	}
	return
}

// Close closes all subscriptions.
func (h *Hub[T]) Close() {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.closed = true
	for key, ch := range h.subs {
		delete(h.subs, key)
		close(ch)
	}
}
