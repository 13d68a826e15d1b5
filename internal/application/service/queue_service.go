package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/approval-workflow/internal/application/port"
	"github.com/garyjia/approval-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/approval-workflow/internal/domain/workflow"
)

// QueueFilter narrows an actionable queue. Set fields combine with AND.
type QueueFilter struct {
	Text        string
	Statuses    []domainwf.State
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	MinAmount   *int64
	MaxAmount   *int64
	Limit       int
	Offset      int
}

// QueueService derives the requests an actor can act on. It never mutates.
type QueueService interface {
	ListActionable(ctx context.Context, actorID, requestType string, filter QueueFilter) ([]*entity.Request, error)
	GetRequest(ctx context.Context, requestID string) (*entity.Request, error)
}

type queueServiceImpl struct {
	registry    *domainwf.Registry
	requestRepo port.RequestRepository
	directory   port.ActorDirectory
}

// NewQueueService creates a new QueueService
func NewQueueService(registry *domainwf.Registry, requestRepo port.RequestRepository, directory port.ActorDirectory) QueueService {
	return &queueServiceImpl{
		registry:    registry,
		requestRepo: requestRepo,
		directory:   directory,
	}
}

func (s *queueServiceImpl) ListActionable(ctx context.Context, actorID, requestType string, filter QueueFilter) ([]*entity.Request, error) {
	const op = "list_actionable"

	if err := validateQueueFilter(filter); err != nil {
		return nil, err
	}

	def, err := s.registry.Definition(requestType)
	if err != nil {
		return nil, err
	}

	caps, err := s.directory.CapabilitiesOf(ctx, actorID)
	if err != nil {
		return nil, err
	}

	statuses := def.ActionableStates(caps)
	if filter.Statuses != nil {
		statuses = intersectStates(statuses, filter.Statuses)
	}
	if len(statuses) == 0 {
		return []*entity.Request{}, nil
	}

	requests, err := s.requestRepo.Query(ctx, entity.RequestFilter{
		Type:        def.RequestType,
		Statuses:    statuses,
		Text:        filter.Text,
		CreatedFrom: filter.CreatedFrom,
		CreatedTo:   filter.CreatedTo,
		MinAmount:   filter.MinAmount,
		MaxAmount:   filter.MaxAmount,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: query requests: %w", op, err)
	}
	return requests, nil
}

func (s *queueServiceImpl) GetRequest(ctx context.Context, requestID string) (*entity.Request, error) {
	req, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	if req == nil {
		return nil, domainwf.NewError(domainwf.KindNotFound, "get_request", requestID, "request does not exist")
	}
	return req, nil
}

func validateQueueFilter(f QueueFilter) error {
	const op = "list_actionable"
	if f.Limit < 0 || f.Offset < 0 {
		return domainwf.NewError(domainwf.KindValidation, op, "", "limit and offset must not be negative")
	}
	if f.CreatedFrom != nil && f.CreatedTo != nil && f.CreatedFrom.After(*f.CreatedTo) {
		return domainwf.NewError(domainwf.KindValidation, op, "", "created_from is after created_to")
	}
	if f.MinAmount != nil && f.MaxAmount != nil && *f.MinAmount > *f.MaxAmount {
		return domainwf.NewError(domainwf.KindValidation, op, "", "min_amount is greater than max_amount")
	}
	return nil
}

// intersectStates keeps the actionable states that also appear in wanted,
// in actionable order
func intersectStates(actionable, wanted []domainwf.State) []domainwf.State {
	keep := make(map[domainwf.State]bool, len(wanted))
	for _, s := range wanted {
		keep[s] = true
	}
	out := make([]domainwf.State, 0, len(actionable))
	for _, s := range actionable {
		if keep[s] {
			out = append(out, s)
		}
	}
	return out
}
