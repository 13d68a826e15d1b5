package port

import (
	"context"

	"github.com/garyjia/approval-workflow/internal/domain/entity"
	"github.com/garyjia/approval-workflow/internal/domain/workflow"
)

// ActorDirectory resolves actors and their capabilities. Unknown actors
// yield a workflow NotFound error.
type ActorDirectory interface {
	CapabilitiesOf(ctx context.Context, actorID string) (workflow.CapabilitySet, error)

	// ActorsWithCapability lists the actors holding a capability, for
	// notification routing
	ActorsWithCapability(ctx context.Context, capability workflow.Capability) ([]*entity.Actor, error)

	// Lookup returns a single actor entry
	Lookup(ctx context.Context, actorID string) (*entity.Actor, error)
}

// MessageSender delivers a text message to a Lark user
type MessageSender interface {
	SendMessage(ctx context.Context, openID string, content string) error
}

// MetricsRecorder receives workflow operational measurements. Outcome is
// "ok" or the failing error kind.
type MetricsRecorder interface {
	ObserveOperation(requestType string, action workflow.Action, outcome string, seconds float64)
	RecordTransition(requestType string, action workflow.Action)
	RecordBulkItem(action workflow.Action, outcome string)
	RecordNotification(eventType string, delivered bool)
}

// Outcome labels an operation result for metrics
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(workflow.KindOf(err))
}
