package entity

import (
	"time"

	"github.com/garyjia/approval-workflow/internal/domain/workflow"
)

// Transition is an immutable record of one committed state change
type Transition struct {
	ID                 string          `json:"id"`
	RequestID          string          `json:"request_id"`
	FromStatus         workflow.State  `json:"from_status"`
	ToStatus           workflow.State  `json:"to_status"`
	ActorID            string          `json:"actor_id"`
	ActorRole          string          `json:"actor_role"`
	Action             workflow.Action `json:"action"`
	Comment            string          `json:"comment,omitempty"`
	AmountAtTransition int64           `json:"amount_at_transition"`
	Timestamp          time.Time       `json:"timestamp"`
	ResultingVersion   int64           `json:"resulting_version"`
}

// ActorRoleRequester marks transitions performed by the requester
const ActorRoleRequester = "requester"

// Step returns the transition in the form used by workflow replay
func (t *Transition) Step() workflow.Step {
	return workflow.Step{
		Action:  t.Action,
		From:    t.FromStatus,
		To:      t.ToStatus,
		Version: t.ResultingVersion,
	}
}

// Steps converts a history to replay steps
func Steps(history []*Transition) []workflow.Step {
	steps := make([]workflow.Step, len(history))
	for i, t := range history {
		steps[i] = t.Step()
	}
	return steps
}
