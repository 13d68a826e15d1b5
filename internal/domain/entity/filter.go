package entity

import (
	"strings"
	"time"

	"github.com/garyjia/approval-workflow/internal/domain/workflow"
)

// RequestFilter narrows a request query. Zero-valued fields do not filter;
// set fields combine with logical AND.
type RequestFilter struct {
	Type string
	// Statuses limits results to requests currently in one of these states;
	// a non-nil empty slice matches nothing
	Statuses []workflow.State
	// Text is a case-insensitive substring matched against requester and description
	Text          string
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
	MinAmount     *int64
	MaxAmount     *int64
	UpdatedBefore *time.Time
	Limit         int
	Offset        int
}

// Matches reports whether a request satisfies every set criterion.
// Limit and Offset are not considered.
func (f RequestFilter) Matches(r *Request) bool {
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.Statuses != nil && !containsState(f.Statuses, r.Status) {
		return false
	}
	if text := strings.TrimSpace(f.Text); text != "" {
		needle := strings.ToLower(text)
		if !strings.Contains(strings.ToLower(r.RequesterID), needle) &&
			!strings.Contains(strings.ToLower(r.Description), needle) {
			return false
		}
	}
	if f.CreatedFrom != nil && r.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && r.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	if f.MinAmount != nil && r.Amount < *f.MinAmount {
		return false
	}
	if f.MaxAmount != nil && r.Amount > *f.MaxAmount {
		return false
	}
	if f.UpdatedBefore != nil && !r.UpdatedAt.Before(*f.UpdatedBefore) {
		return false
	}
	return true
}

func containsState(states []workflow.State, s workflow.State) bool {
	for _, candidate := range states {
		if candidate == s {
			return true
		}
	}
	return false
}
