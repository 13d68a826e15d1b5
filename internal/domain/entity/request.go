package entity

import (
	"time"

	"github.com/garyjia/approval-workflow/internal/domain/workflow"
)

// Request is a unit of work moving through an approval chain.
// Status and Version are owned by the workflow engine.
type Request struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	RequesterID    string         `json:"requester_id"`
	Description    string         `json:"description,omitempty"`
	Amount         int64          `json:"amount"`
	ApprovedAmount *int64         `json:"approved_amount,omitempty"`
	Status         workflow.State `json:"status"`
	StageIndex     int            `json:"stage_index"`
	Version        int64          `json:"version"`
	// RejectedFrom is the stage the latest rejection happened at
	RejectedFrom workflow.State `json:"rejected_from,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Clone returns a deep copy of the request
func (r *Request) Clone() *Request {
	c := *r
	if r.ApprovedAmount != nil {
		v := *r.ApprovedAmount
		c.ApprovedAmount = &v
	}
	return &c
}
