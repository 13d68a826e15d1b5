package service

import (
	"context"
	"fmt"

	"github.com/garyjia/approval-workflow/internal/application/port"
	"github.com/garyjia/approval-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/approval-workflow/internal/domain/workflow"
)

// HistoryReport is a request's transition log together with the result of
// replaying it against the workflow definition
type HistoryReport struct {
	RequestID   string               `json:"request_id"`
	Status      domainwf.State       `json:"status"`
	Transitions []*entity.Transition `json:"transitions"`
	// Consistent is true when replaying the log reaches the stored status
	Consistent bool   `json:"consistent"`
	ReplayErr  string `json:"replay_error,omitempty"`
}

// HistoryService exposes the append-only transition log for display
type HistoryService interface {
	GetHistory(ctx context.Context, requestID string) ([]*entity.Transition, error)
	Report(ctx context.Context, requestID string) (*HistoryReport, error)
}

type historyServiceImpl struct {
	registry    *domainwf.Registry
	requestRepo port.RequestRepository
	historyRepo port.HistoryRepository
}

// NewHistoryService creates a new HistoryService
func NewHistoryService(registry *domainwf.Registry, requestRepo port.RequestRepository, historyRepo port.HistoryRepository) HistoryService {
	return &historyServiceImpl{
		registry:    registry,
		requestRepo: requestRepo,
		historyRepo: historyRepo,
	}
}

// GetHistory returns transitions ascending by resulting version
func (s *historyServiceImpl) GetHistory(ctx context.Context, requestID string) ([]*entity.Transition, error) {
	_, transitions, err := s.load(ctx, requestID)
	return transitions, err
}

func (s *historyServiceImpl) Report(ctx context.Context, requestID string) (*HistoryReport, error) {
	req, transitions, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}

	report := &HistoryReport{
		RequestID:   req.ID,
		Status:      req.Status,
		Transitions: transitions,
	}

	def, err := s.registry.Definition(req.Type)
	if err != nil {
		return nil, err
	}

	replayed, err := def.Replay(entity.Steps(transitions))
	switch {
	case err != nil:
		report.ReplayErr = err.Error()
	case replayed != req.Status:
		report.ReplayErr = fmt.Sprintf("replay reaches %s, stored status is %s", replayed, req.Status)
	case transitions[len(transitions)-1].ResultingVersion != req.Version:
		report.ReplayErr = fmt.Sprintf("history ends at version %d, stored version is %d",
			transitions[len(transitions)-1].ResultingVersion, req.Version)
	default:
		report.Consistent = true
	}

	return report, nil
}

func (s *historyServiceImpl) load(ctx context.Context, requestID string) (*entity.Request, []*entity.Transition, error) {
	req, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, nil, fmt.Errorf("get request: %w", err)
	}
	if req == nil {
		return nil, nil, domainwf.NewError(domainwf.KindNotFound, "get_history", requestID, "request does not exist")
	}

	transitions, err := s.historyRepo.GetByRequestID(ctx, requestID)
	if err != nil {
		return nil, nil, fmt.Errorf("get history: %w", err)
	}
	if transitions == nil {
		transitions = []*entity.Transition{}
	}
	return req, transitions, nil
}
