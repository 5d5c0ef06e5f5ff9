package models

// TaskState is the client-facing state of a submitted task.
type TaskState string

const (
	StatePending  TaskState = "PENDING"
	StateReceived TaskState = "RECEIVED"
	StateStarted  TaskState = "STARTED"
	StateSuccess  TaskState = "SUCCESS"
	StateFailure  TaskState = "FAILURE"
	StateRevoked  TaskState = "REVOKED"
	StateRejected TaskState = "REJECTED"
	StateRetry    TaskState = "RETRY"
	StateIgnored  TaskState = "IGNORED"
)

var terminalStates = map[TaskState]struct{}{
	StateSuccess:  {},
	StateFailure:  {},
	StateRevoked:  {},
	StateRejected: {},
	StateIgnored:  {},
}

// IsTerminal reports whether no further transition is expected.
func (s TaskState) IsTerminal() bool {
	_, ok := terminalStates[s]
	return ok
}

// StateFromBroker collapses a broker-native state string into a gateway
// task state. Unknown states map to PENDING: if the id exists the task
// is assumed queued.
func StateFromBroker(s string) TaskState {
	switch TaskState(s) {
	case StatePending, StateReceived, StateStarted, StateSuccess,
		StateFailure, StateRevoked, StateRejected, StateRetry, StateIgnored:
		return TaskState(s)
	default:
		return StatePending
	}
}
