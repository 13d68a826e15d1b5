package workflow

import (
	"fmt"
	"sort"
)

// GuardFunc evaluates whether a transition should be taken for a subject
type GuardFunc func(subject Subject) bool

// StateMachineBuilder builds a configured state machine
type StateMachineBuilder interface {
	// Configure returns a state configuration for the given state
	Configure(state State) StateConfiguration

	// Build creates an immutable state machine from the configuration
	Build() StateMachine
}

// StateConfiguration configures transitions for a specific state
type StateConfiguration interface {
	// Permit allows an action to transition to the target state
	Permit(action Action, toState State) StateConfiguration

	// PermitIf allows an action to transition to the target state if the guard passes
	PermitIf(action Action, toState State, guard GuardFunc) StateConfiguration
}

type transition struct {
	toState State
	guard   GuardFunc
}

type stateConfig struct {
	fromState   State
	transitions map[Action][]transition
}

type stateMachineBuilder struct {
	valid          map[State]bool
	configurations map[State]*stateConfig
}

type stateMachine struct {
	valid          map[State]bool
	configurations map[State]*stateConfig
}

// NewBuilder creates a builder whose valid states are the given states plus
// the two terminals
func NewBuilder(states ...State) StateMachineBuilder {
	valid := map[State]bool{
		StateApproved: true,
		StateRejected: true,
	}
	for _, s := range states {
		valid[s] = true
	}

	return &stateMachineBuilder{
		valid:          valid,
		configurations: make(map[State]*stateConfig),
	}
}

// Configure returns a state configuration for the given state
func (b *stateMachineBuilder) Configure(state State) StateConfiguration {
	if !b.valid[state] {
		panic(fmt.Sprintf("invalid state: %s", state))
	}

	config, exists := b.configurations[state]
	if !exists {
		config = &stateConfig{
			fromState:   state,
			transitions: make(map[Action][]transition),
		}
		b.configurations[state] = config
	}

	return &configurator{builder: b, config: config}
}

// Build creates a state machine from a deep copy of the configuration
func (b *stateMachineBuilder) Build() StateMachine {
	configsCopy := make(map[State]*stateConfig, len(b.configurations))
	for state, config := range b.configurations {
		transitionsCopy := make(map[Action][]transition, len(config.transitions))
		for action, transitions := range config.transitions {
			transitionsCopy[action] = append([]transition{}, transitions...)
		}
		configsCopy[state] = &stateConfig{
			fromState:   state,
			transitions: transitionsCopy,
		}
	}

	validCopy := make(map[State]bool, len(b.valid))
	for s := range b.valid {
		validCopy[s] = true
	}

	return &stateMachine{
		valid:          validCopy,
		configurations: configsCopy,
	}
}

type configurator struct {
	builder *stateMachineBuilder
	config  *stateConfig
}

// Permit allows an action to transition to the target state
func (c *configurator) Permit(action Action, toState State) StateConfiguration {
	return c.PermitIf(action, toState, nil)
}

// PermitIf allows an action to transition to the target state if the guard passes
func (c *configurator) PermitIf(action Action, toState State, guard GuardFunc) StateConfiguration {
	if !c.builder.valid[toState] {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}

	c.config.transitions[action] = append(c.config.transitions[action], transition{
		toState: toState,
		guard:   guard,
	})

	return c
}

func (m *stateMachine) IsValid(s State) bool {
	return m.valid[s]
}

func (m *stateMachine) CanFire(from State, action Action) bool {
	config, exists := m.configurations[from]
	if !exists {
		return false
	}
	return len(config.transitions[action]) > 0
}

// Fire tries each configured transition in order and takes the first whose
// guard passes
func (m *stateMachine) Fire(from State, action Action, subject Subject) (State, error) {
	if !m.valid[from] {
		return "", fmt.Errorf("%w: %s", ErrInvalidState, from)
	}

	config, exists := m.configurations[from]
	if !exists {
		return "", fmt.Errorf("%w: cannot fire %s from state %s (no configuration)", ErrInvalidTransition, action, from)
	}

	transitions := config.transitions[action]
	if len(transitions) == 0 {
		return "", fmt.Errorf("%w: cannot fire %s from state %s", ErrInvalidTransition, action, from)
	}

	for _, t := range transitions {
		if t.guard == nil || t.guard(subject) {
			return t.toState, nil
		}
	}

	return "", fmt.Errorf("%w: %s from state %s", ErrGuardFailed, action, from)
}

func (m *stateMachine) PermittedActions(from State) []Action {
	config, exists := m.configurations[from]
	if !exists {
		return []Action{}
	}

	actions := make([]Action, 0, len(config.transitions))
	for action := range config.transitions {
		actions = append(actions, action)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })

	return actions
}
