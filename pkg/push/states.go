package push

import "fmt"

// State is one step of the push login module's state machine.
type State int

const (
	// StateStart is the initial state before any interaction.
	StateStart State = iota
	// StateUsername awaits the username submission.
	StateUsername
	// StateWait awaits the device's answer, re-entered on each poll.
	StateWait
	// StateEmergency awaits an emergency recovery code.
	StateEmergency
	// StateEmergencyUsed is terminal success via a consumed recovery code.
	StateEmergencyUsed
	// StateComplete is terminal success via device approval.
	StateComplete
	// StateFailed is terminal failure: denial, timeout, or spam.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "START"
	case StateUsername:
		return "USERNAME"
	case StateWait:
		return "WAIT"
	case StateEmergency:
		return "EMERGENCY"
	case StateEmergencyUsed:
		return "EMERGENCY_USED"
	case StateComplete:
		return "COMPLETE"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// transitions is the allowed state graph. Anything not listed is a
// programming error surfaced by the module.
var transitions = map[State][]State{
	StateStart:     {StateUsername},
	StateUsername:  {StateWait, StateFailed},
	StateWait:      {StateWait, StateEmergency, StateComplete, StateFailed},
	StateEmergency: {StateEmergencyUsed, StateWait, StateFailed},
}

// canTransition reports whether from → to is an allowed step.
func canTransition(from, to State) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the state ends the login attempt.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateEmergencyUsed || s == StateFailed
}
