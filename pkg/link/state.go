package link

// State is the connection state of the link.
type State int

// Connection states.
const (
	Disconnected State = iota
	Connecting
	Connected
	Disconnecting
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	}
	return "unknown"
}
