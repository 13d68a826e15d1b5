package port

import (
	"context"

	"github.com/garyjia/approval-workflow/internal/domain/entity"
)

// RequestRepository persists requests with optimistic concurrency.
// GetByID returns nil, nil when the request does not exist.
type RequestRepository interface {
	Create(ctx context.Context, req *entity.Request) error
	GetByID(ctx context.Context, id string) (*entity.Request, error)

	// CompareAndSwap replaces the stored request with next only if the stored
	// version still equals expectedVersion. It reports false, nil when the
	// version has moved on or the request is gone.
	CompareAndSwap(ctx context.Context, id string, expectedVersion int64, next *entity.Request) (bool, error)

	// Query returns requests matching the filter ordered by creation time
	Query(ctx context.Context, filter entity.RequestFilter) ([]*entity.Request, error)
}

// HistoryRepository is the append-only transition log
type HistoryRepository interface {
	Append(ctx context.Context, transition *entity.Transition) error

	// GetByRequestID returns transitions ordered by resulting version
	GetByRequestID(ctx context.Context, requestID string) ([]*entity.Transition, error)
}

// ActorRepository stores directory entries
type ActorRepository interface {
	Upsert(ctx context.Context, actor *entity.Actor) error
	GetByID(ctx context.Context, id string) (*entity.Actor, error)
	ListByCapability(ctx context.Context, capability string) ([]*entity.Actor, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
