package workflow

// State is the status of a request within its workflow definition.
// Non-terminal states are the stage names of a Definition; the only other
// values are the two terminals below. A State is resolved against its
// Definition before use, so an unrecognised value never reaches the engine.
type State string

const (
	StateApproved State = "approved"
	StateRejected State = "rejected"
)

// IsTerminal returns true if no approve/reject is valid from the state
func (s State) IsTerminal() bool {
	return s == StateApproved || s == StateRejected
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}
