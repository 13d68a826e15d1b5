package workflow

import (
	"context"

	"github.com/garyjia/approval-workflow/internal/domain/entity"
)

// Engine is the sole mutator of request state. Every operation touches a
// single request and commits through a version-conditioned write.
type Engine interface {
	// Submit creates a request at the first stage of its workflow, version 0
	Submit(ctx context.Context, in SubmitInput) (*entity.Request, error)

	// Approve advances a request one stage, or to approved from the last stage
	Approve(ctx context.Context, requestID, actorID string, opts ApproveOptions) (*entity.Request, error)

	// Reject moves a request to rejected; the reason is required
	Reject(ctx context.Context, requestID, actorID string, opts RejectOptions) (*entity.Request, error)

	// Resubmit returns a rejected request to the chain; requester only
	Resubmit(ctx context.Context, requestID, actorID string, opts ResubmitOptions) (*entity.Request, error)
}

// SubmitInput describes a new request
type SubmitInput struct {
	Type        string
	RequesterID string
	Amount      int64
	Description string
}

// ApproveOptions carries the optional parts of an approval
type ApproveOptions struct {
	Comment        string
	AdjustedAmount *int64
	// ExpectedVersion, when set, must equal the stored version
	ExpectedVersion *int64
}

// RejectOptions carries the rejection reason
type RejectOptions struct {
	Reason          string
	ExpectedVersion *int64
}

// ResubmitOptions carries the optional parts of a resubmission
type ResubmitOptions struct {
	Comment string
	// Amount replaces the requested amount when set
	Amount          *int64
	ExpectedVersion *int64
}
