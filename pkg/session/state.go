package session

// State is a lifecycle phase of a session
type State int32

const (
	// Uninitialized accepts only the initialize request
	Uninitialized State = iota
	// Initializing has answered initialize and waits for the client's acknowledgment
	Initializing
	// Ready dispatches every capability-enabled method
	Ready
	// ShuttingDown rejects new work while in-flight operations drain
	ShuttingDown
	// Closed is terminal
	Closed
)

var stateNames = [...]string{
	Uninitialized: "uninitialized",
	Initializing:  "initializing",
	Ready:         "ready",
	ShuttingDown:  "shutting_down",
	Closed:        "closed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
