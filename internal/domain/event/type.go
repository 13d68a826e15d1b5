package event

import "github.com/garyjia/approval-workflow/internal/domain/workflow"

// Type identifies the type of domain event
type Type string

const (
	TypeRequestSubmitted   Type = "request.submitted"
	TypeRequestApproved    Type = "request.approved"
	TypeRequestRejected    Type = "request.rejected"
	TypeRequestResubmitted Type = "request.resubmitted"
	TypeRequestReminder    Type = "request.reminder"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeRequestSubmitted,
		TypeRequestApproved,
		TypeRequestRejected,
		TypeRequestResubmitted,
		TypeRequestReminder:
		return true
	default:
		return false
	}
}

// TypeForAction maps a committed workflow action to the event it emits
func TypeForAction(action workflow.Action) Type {
	switch action {
	case workflow.ActionSubmit:
		return TypeRequestSubmitted
	case workflow.ActionApprove:
		return TypeRequestApproved
	case workflow.ActionReject:
		return TypeRequestRejected
	case workflow.ActionResubmit:
		return TypeRequestResubmitted
	default:
		return ""
	}
}
