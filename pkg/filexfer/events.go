package filexfer

import "github.com/robotalks/mculink/pkg/link"

// EventType tags an Event.
type EventType int

// Event types.
const (
	EventNotified EventType = iota
	EventStarted
	EventProgress
	EventCompleted
	EventError
	EventCancelled
)

var eventNames = []string{"notified", "started", "progress", "completed", "error", "cancelled"}

// String implements fmt.Stringer.
func (t EventType) String() string {
	if int(t) < len(eventNames) {
		return eventNames[t]
	}
	return "unknown"
}

// Event reports a change of a transfer.
type Event struct {
	Type    EventType
	Session Session
	Err     error
}

type events struct {
	hub link.Hub[Event]
}

// Subscribe receives transfer events. Events are dropped if the channel is
// full.
func (e *events) Subscribe(size int) <-chan Event {
	return e.hub.Subscribe(size)
}

// Unsubscribe cancels a Subscribe.
func (e *events) Unsubscribe(ch <-chan Event) {
	e.hub.Unsubscribe(ch)
}

func (e *events) emit(typ EventType, s *Session, err error) {
	e.hub.Publish(Event{Type: typ, Session: *s, Err: err})
}
