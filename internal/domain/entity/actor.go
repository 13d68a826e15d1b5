package entity

import "github.com/garyjia/approval-workflow/internal/domain/workflow"

// Actor is a directory entry: an identity with its capabilities and the
// Lark open id used for notifications
type Actor struct {
	ID           string                `json:"id"`
	Name         string                `json:"name,omitempty"`
	LarkOpenID   string                `json:"lark_open_id,omitempty"`
	Capabilities []workflow.Capability `json:"capabilities"`
}
