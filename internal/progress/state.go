package progress

import "github.com/JakeFAU/progress-monitor/internal/metering"

// UnknownTotal marks a source whose expected size is not known.
const UnknownTotal int64 = -1

// State is the lifecycle state of a Source.
type State int

// Source lifecycle states.
const (
	StateNew State = iota
	StateConnected
	StateUpdate
	StateDelete
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateConnected:
		return "CONNECTED"
	case StateUpdate:
		return "UPDATE"
	case StateDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Trigger is an input to the source state machine.
type Trigger int

// Source state machine triggers.
const (
	// TriggerConnect is the first observation of the operation.
	TriggerConnect Trigger = iota
	// TriggerUpdate is any later progress observation.
	TriggerUpdate
	// TriggerComplete fires once the expected total has been reached.
	TriggerComplete
	// TriggerClose is an explicit close or unregistration.
	TriggerClose
)

var transitions = map[State]map[Trigger]State{
	StateNew: {
		TriggerConnect: StateConnected,
		TriggerClose:   StateDelete,
	},
	StateConnected: {
		TriggerUpdate:   StateUpdate,
		TriggerComplete: StateDelete,
		TriggerClose:    StateDelete,
	},
	StateUpdate: {
		TriggerUpdate:   StateUpdate,
		TriggerComplete: StateDelete,
		TriggerClose:    StateDelete,
	},
	StateDelete: {
		TriggerClose: StateDelete,
	},
}

// Transition returns the state reached from cur on t. ok is false when the
// trigger is not accepted in cur, in which case cur is returned unchanged.
func Transition(cur State, t Trigger) (next State, ok bool) {
	next, ok = transitions[cur][t]
	if !ok {
		return cur, false
	}
	return next, true
}

// IsComplete reports whether progress has reached a known, non-zero expected
// total. Any negative expected value counts as unknown.
func IsComplete(progress, expected int64) bool {
	return expected >= 0 && progress >= expected && progress != 0
}

// Bucket returns floor(progress / threshold), clamping threshold to at least 1.
func Bucket(progress, threshold int64) int64 {
	threshold = metering.ClampThreshold(threshold)
	q := progress / threshold
	if progress < 0 && progress%threshold != 0 {
		q--
	}
	return q
}
