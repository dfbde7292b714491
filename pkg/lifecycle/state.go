package lifecycle

// State is the bot's position in its lifecycle. Transitions only move forward.
type State int

const (
	Uninitialized State = iota
	Initialized
	Started
	Stopped
	ShutDown
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Started:
		return "started"
	case Stopped:
		return "stopped"
	case ShutDown:
		return "shut_down"
	default:
		return "unknown"
	}
}
