package workflow

import (
	"fmt"
	"strings"
)

// AmountPolicy bounds the approved amount a stage may record
type AmountPolicy string

const (
	// AmountPolicyAny accepts any non-negative adjusted amount
	AmountPolicyAny AmountPolicy = "any"
	// AmountPolicyNoIncrease rejects adjustments above the requested amount
	AmountPolicyNoIncrease AmountPolicy = "no_increase"
)

// ResubmitPolicy selects the stage a rejected request re-enters on resubmission
type ResubmitPolicy string

const (
	// ResubmitToFirst restarts the chain at stages[0]
	ResubmitToFirst ResubmitPolicy = "first"
	// ResubmitToRejectedStage returns to the stage the rejection happened at
	ResubmitToRejectedStage ResubmitPolicy = "rejected_stage"
)

// Stage is one ordered link of an approval chain
type Stage struct {
	Name               string       `json:"name" yaml:"name"`
	RequiredCapability Capability   `json:"required_capability" yaml:"required_capability"`
	AmountPolicy       AmountPolicy `json:"amount_policy,omitempty" yaml:"amount_policy,omitempty"`
}

// State returns the state a request holds while waiting at this stage
func (s Stage) State() State {
	return State(s.Name)
}

// Definition is the ordered stage chain of a request type
type Definition struct {
	RequestType    string
	Stages         []Stage
	ResubmitPolicy ResubmitPolicy

	index   map[State]int
	machine StateMachine
}

// NewDefinition validates a stage chain and builds its state machine
func NewDefinition(requestType string, stages []Stage, policy ResubmitPolicy) (*Definition, error) {
	requestType = strings.TrimSpace(requestType)
	if requestType == "" {
		return nil, fmt.Errorf("request type is required")
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("workflow %s has no stages", requestType)
	}
	if policy == "" {
		policy = ResubmitToFirst
	}
	if policy != ResubmitToFirst && policy != ResubmitToRejectedStage {
		return nil, fmt.Errorf("workflow %s: unknown resubmit policy %q", requestType, policy)
	}

	d := &Definition{
		RequestType:    requestType,
		Stages:         make([]Stage, len(stages)),
		ResubmitPolicy: policy,
		index:          make(map[State]int, len(stages)),
	}

	for i, stage := range stages {
		if stage.Name == "" {
			return nil, fmt.Errorf("workflow %s: stage %d has no name", requestType, i)
		}
		if stage.State().IsTerminal() {
			return nil, fmt.Errorf("workflow %s: stage name %q is reserved", requestType, stage.Name)
		}
		if stage.RequiredCapability == "" {
			return nil, fmt.Errorf("workflow %s: stage %s has no required capability", requestType, stage.Name)
		}
		if _, dup := d.index[stage.State()]; dup {
			return nil, fmt.Errorf("workflow %s: duplicate stage %s", requestType, stage.Name)
		}
		switch stage.AmountPolicy {
		case "":
			stage.AmountPolicy = AmountPolicyAny
		case AmountPolicyAny, AmountPolicyNoIncrease:
		default:
			return nil, fmt.Errorf("workflow %s: stage %s: unknown amount policy %q", requestType, stage.Name, stage.AmountPolicy)
		}

		d.Stages[i] = stage
		d.index[stage.State()] = i
	}

	d.machine = d.buildMachine()
	return d, nil
}

// buildMachine wires the linear chain: approve advances one stage (or to
// approved from the last stage), reject goes to rejected from any stage and
// resubmit is the only edge out of rejected.
func (d *Definition) buildMachine() StateMachine {
	states := make([]State, len(d.Stages))
	for i, s := range d.Stages {
		states[i] = s.State()
	}

	builder := NewBuilder(states...)

	for i, current := range states {
		next := StateApproved
		if i+1 < len(states) {
			next = states[i+1]
		}
		builder.Configure(current).
			Permit(ActionApprove, next).
			Permit(ActionReject, StateRejected)
	}

	rejected := builder.Configure(StateRejected)
	if d.ResubmitPolicy == ResubmitToRejectedStage {
		for _, s := range states {
			target := s
			rejected.PermitIf(ActionResubmit, target, func(subject Subject) bool {
				return subject.RejectedFrom == target
			})
		}
	}
	rejected.Permit(ActionResubmit, states[0])

	return builder.Build()
}

// First returns the state of stages[0]
func (d *Definition) First() State {
	return d.Stages[0].State()
}

// Contains reports whether the state is a stage of this definition or a terminal
func (d *Definition) Contains(s State) bool {
	return d.machine.IsValid(s)
}

// StageIndex resolves a state to its position: the stage index for stages,
// len(Stages) for approved and -1 for rejected
func (d *Definition) StageIndex(s State) (int, error) {
	switch s {
	case StateApproved:
		return len(d.Stages), nil
	case StateRejected:
		return -1, nil
	}
	i, ok := d.index[s]
	if !ok {
		return 0, fmt.Errorf("%w: %s not in workflow %s", ErrInvalidState, s, d.RequestType)
	}
	return i, nil
}

// StageFor returns the stage a non-terminal state waits at
func (d *Definition) StageFor(s State) (Stage, bool) {
	i, ok := d.index[s]
	if !ok {
		return Stage{}, false
	}
	return d.Stages[i], true
}

// Next resolves the state reached by an action
func (d *Definition) Next(from State, action Action, subject Subject) (State, error) {
	return d.machine.Fire(from, action, subject)
}

// PermittedActions returns the actions configured from a state
func (d *Definition) PermittedActions(from State) []Action {
	return d.machine.PermittedActions(from)
}

// ActionableStates returns the stage states whose capability is in caps
func (d *Definition) ActionableStates(caps CapabilitySet) []State {
	var states []State
	for _, s := range d.Stages {
		if caps.Has(s.RequiredCapability) {
			states = append(states, s.State())
		}
	}
	return states
}

// StageNames returns the stage names in chain order
func (d *Definition) StageNames() []string {
	names := make([]string, len(d.Stages))
	for i, s := range d.Stages {
		names[i] = s.Name
	}
	return names
}
