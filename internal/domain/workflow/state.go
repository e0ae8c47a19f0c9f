package workflow

// State is an escrow transaction status as seen by the state machine
type State string

const (
	StatePending   State = "pending"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateDisputed  State = "disputed"
	StateCancelled State = "cancelled"
)

var validStates = map[State]bool{
	StatePending:   true,
	StateActive:    true,
	StateCompleted: true,
	StateDisputed:  true,
	StateCancelled: true,
}

// disputed is not terminal: dispute resolution may be added later,
// but no trigger currently leaves it.
var terminalStates = map[State]bool{
	StateCompleted: true,
	StateCancelled: true,
}

// IsTerminal returns true if no transition may leave the state
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known escrow status
func (s State) IsValid() bool {
	return validStates[s]
}
