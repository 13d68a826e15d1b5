package workflow

// StateMachine validates transitions of a workflow definition. It holds no
// per-request state: callers pass the current state in and receive the next
// one, so a single machine is shared by every request of a definition.
type StateMachine interface {
	// CanFire returns true if the action is configured from the state
	CanFire(from State, action Action) bool

	// Fire resolves the state reached by applying the action to the state
	Fire(from State, action Action, subject Subject) (State, error)

	// PermittedActions returns all actions configured from the state
	PermittedActions(from State) []Action

	// IsValid returns true if the state belongs to the machine
	IsValid(s State) bool
}

// Subject carries the request attributes guards may inspect
type Subject struct {
	RejectedFrom State
}
