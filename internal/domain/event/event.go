package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/approval-workflow/internal/domain/entity"
)

// Event represents a domain event emitted after a committed transition
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	RequestID     string                 `json:"request_id"`
	Request       *entity.Request        `json:"request,omitempty"`
	Transition    *entity.Transition     `json:"transition,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates a new domain event with auto-generated ID and timestamp
func NewEvent(eventType Type, requestID string, payload map[string]interface{}) *Event {
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		RequestID:     requestID,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: uuid.NewString(),
	}
}

// NewEventWithCorrelation creates an event linked to a correlation chain
func NewEventWithCorrelation(eventType Type, requestID string, payload map[string]interface{}, correlationID string) *Event {
	evt := NewEvent(eventType, requestID, payload)
	evt.CorrelationID = correlationID
	return evt
}

// NewTransitionEvent creates the event for a committed transition. The
// request and transition are copied so handlers cannot observe later changes.
func NewTransitionEvent(req *entity.Request, tr *entity.Transition) *Event {
	t := *tr
	evt := NewEvent(TypeForAction(tr.Action), req.ID, map[string]interface{}{
		"request_type": req.Type,
		"from_status":  tr.FromStatus.String(),
		"to_status":    tr.ToStatus.String(),
		"actor_id":     tr.ActorID,
		"version":      tr.ResultingVersion,
	})
	evt.Request = req.Clone()
	evt.Transition = &t
	return evt
}

// WithPayload returns a new Event with an added payload key-value pair (immutable operation)
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	c := *e
	c.Payload = newPayload
	return &c
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadInt retrieves an int64 value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}
