package worker

// State is the supervisor lifecycle state.
type State int32

const (
	StateNotStarted State = iota
	StateStarting
	StateRunning
	StateCrashed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateCrashed:
		return "crashed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
