package domain

// SessionState is the lifecycle state of the decode session.
type SessionState string

const (
	SessionIdle     SessionState = "idle"
	SessionStarting SessionState = "starting"
	SessionRunning  SessionState = "running"
	SessionStopping SessionState = "stopping"
)

// allowedTransitions lists every legal edge of the session state machine.
// Starting may fall back to Idle when the camera handshake fails.
var allowedTransitions = map[SessionState][]SessionState{
	SessionIdle:     {SessionStarting},
	SessionStarting: {SessionRunning, SessionIdle},
	SessionRunning:  {SessionStopping},
	SessionStopping: {SessionIdle},
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s SessionState) CanTransitionTo(next SessionState) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// HoldsCamera reports whether a session in this state may own the camera.
func (s SessionState) HoldsCamera() bool {
	return s == SessionStarting || s == SessionRunning || s == SessionStopping
}

func (s SessionState) String() string {
	return string(s)
}
