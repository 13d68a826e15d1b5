package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/garyjia/approval-workflow/internal/application/port"
	"github.com/garyjia/approval-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/approval-workflow/internal/domain/workflow"
	"github.com/garyjia/approval-workflow/internal/infrastructure/persistence/sqlite"
)

// HistoryRepository implements port.HistoryRepository. Rows are never
// updated or deleted; the schema enforces it with triggers.
type HistoryRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sqlite.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

type transitionRow struct {
	ID                 string    `db:"id"`
	RequestID          string    `db:"request_id"`
	FromStatus         string    `db:"from_status"`
	ToStatus           string    `db:"to_status"`
	ActorID            string    `db:"actor_id"`
	ActorRole          string    `db:"actor_role"`
	Action             string    `db:"action"`
	Comment            string    `db:"comment"`
	AmountAtTransition int64     `db:"amount_at_transition"`
	Timestamp          time.Time `db:"timestamp"`
	ResultingVersion   int64     `db:"resulting_version"`
}

// Append records a transition. A second row for the same resulting version
// is reported as a workflow conflict.
func (r *HistoryRepository) Append(ctx context.Context, tr *entity.Transition) error {
	query := `
		INSERT INTO request_transitions (
			id, request_id, from_status, to_status, actor_id, actor_role,
			action, comment, amount_at_transition, timestamp, resulting_version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		tr.ID,
		tr.RequestID,
		tr.FromStatus.String(),
		tr.ToStatus.String(),
		tr.ActorID,
		tr.ActorRole,
		tr.Action.String(),
		tr.Comment,
		tr.AmountAtTransition,
		tr.Timestamp.UTC(),
		tr.ResultingVersion,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return domainwf.NewError(domainwf.KindConflict, "history.append", tr.RequestID,
				"version %d already recorded", tr.ResultingVersion)
		}
		r.logger.Error("Failed to append transition", zap.String("request_id", tr.RequestID), zap.Error(err))
		return fmt.Errorf("failed to append transition: %w", err)
	}
	return nil
}

// GetByRequestID returns transitions ascending by resulting version
func (r *HistoryRepository) GetByRequestID(ctx context.Context, requestID string) ([]*entity.Transition, error) {
	query := `
		SELECT id, request_id, from_status, to_status, actor_id, actor_role,
			action, comment, amount_at_transition, timestamp, resulting_version
		FROM request_transitions
		WHERE request_id = ?
		ORDER BY resulting_version ASC
	`

	var rows []transitionRow
	if err := r.db.Executor(ctx).SelectContext(ctx, &rows, query, requestID); err != nil {
		r.logger.Error("Failed to get history", zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}

	transitions := make([]*entity.Transition, len(rows))
	for i, row := range rows {
		transitions[i] = &entity.Transition{
			ID:                 row.ID,
			RequestID:          row.RequestID,
			FromStatus:         domainwf.State(row.FromStatus),
			ToStatus:           domainwf.State(row.ToStatus),
			ActorID:            row.ActorID,
			ActorRole:          row.ActorRole,
			Action:             domainwf.Action(row.Action),
			Comment:            row.Comment,
			AmountAtTransition: row.AmountAtTransition,
			Timestamp:          row.Timestamp,
			ResultingVersion:   row.ResultingVersion,
		}
	}
	return transitions, nil
}
