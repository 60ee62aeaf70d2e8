package session

// State is the lifecycle state of a recording session.
type State string

const (
	StateIdle       State = "idle"
	StatePreviewing State = "previewing"
	StateRecording  State = "recording"
	StateFinalizing State = "finalizing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Active reports whether a worker owns the camera in this state.
func (s State) Active() bool {
	switch s {
	case StatePreviewing, StateRecording, StateFinalizing:
		return true
	}
	return false
}

// Terminal reports whether the session has ended and may be replaced.
func (s State) Terminal() bool {
	return s == StateIdle || s == StateCompleted || s == StateFailed
}
