package dispatcher

import (
	"context"

	"github.com/garyjia/approval-workflow/internal/domain/event"
)

// Handler reacts to a committed workflow event. Handlers never influence the
// outcome of the operation that produced the event.
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo describes a registered handler
type HandlerInfo struct {
	Name      string
	EventType event.Type
	Handler   Handler
}
