package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/approval-workflow/internal/application/port"
	"github.com/garyjia/approval-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/approval-workflow/internal/domain/workflow"
	"github.com/garyjia/approval-workflow/internal/infrastructure/persistence/sqlite"
)

// ActorRepository implements port.ActorRepository
type ActorRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewActorRepository creates a new actor repository
func NewActorRepository(db *sqlite.DB, logger *zap.Logger) port.ActorRepository {
	return &ActorRepository{
		db:     db,
		logger: logger,
	}
}

type actorRow struct {
	ID         string `db:"id"`
	Name       string `db:"name"`
	LarkOpenID string `db:"lark_open_id"`
}

// Upsert replaces an actor and its capability set
func (r *ActorRepository) Upsert(ctx context.Context, actor *entity.Actor) error {
	return r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := r.db.Executor(txCtx)

		_, err := exec.ExecContext(txCtx, `
			INSERT INTO actors (id, name, lark_open_id) VALUES (?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET name = excluded.name, lark_open_id = excluded.lark_open_id
		`, actor.ID, actor.Name, actor.LarkOpenID)
		if err != nil {
			r.logger.Error("Failed to upsert actor", zap.String("id", actor.ID), zap.Error(err))
			return fmt.Errorf("failed to upsert actor: %w", err)
		}

		if _, err := exec.ExecContext(txCtx, `DELETE FROM actor_capabilities WHERE actor_id = ?`, actor.ID); err != nil {
			return fmt.Errorf("failed to clear capabilities: %w", err)
		}

		for _, c := range domainwf.NewCapabilitySet(actor.Capabilities...).Sorted() {
			if _, err := exec.ExecContext(txCtx,
				`INSERT INTO actor_capabilities (actor_id, capability) VALUES (?, ?)`, actor.ID, string(c)); err != nil {
				return fmt.Errorf("failed to insert capability %s: %w", c, err)
			}
		}
		return nil
	})
}

// GetByID returns nil, nil when the actor is unknown
func (r *ActorRepository) GetByID(ctx context.Context, id string) (*entity.Actor, error) {
	exec := r.db.Executor(ctx)

	var row actorRow
	err := exec.GetContext(ctx, &row, `SELECT id, name, lark_open_id FROM actors WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get actor", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get actor: %w", err)
	}

	var caps []string
	if err := exec.SelectContext(ctx, &caps,
		`SELECT capability FROM actor_capabilities WHERE actor_id = ? ORDER BY capability`, id); err != nil {
		return nil, fmt.Errorf("failed to get capabilities: %w", err)
	}

	return toActor(row, caps), nil
}

// ListByCapability returns actors holding a capability, ordered by id
func (r *ActorRepository) ListByCapability(ctx context.Context, capability string) ([]*entity.Actor, error) {
	exec := r.db.Executor(ctx)

	var rows []actorRow
	err := exec.SelectContext(ctx, &rows, `
		SELECT a.id, a.name, a.lark_open_id
		FROM actors a
		JOIN actor_capabilities c ON c.actor_id = a.id
		WHERE c.capability = ?
		ORDER BY a.id
	`, capability)
	if err != nil {
		r.logger.Error("Failed to list actors", zap.String("capability", capability), zap.Error(err))
		return nil, fmt.Errorf("failed to list actors: %w", err)
	}

	actors := make([]*entity.Actor, 0, len(rows))
	for _, row := range rows {
		var caps []string
		if err := exec.SelectContext(ctx, &caps,
			`SELECT capability FROM actor_capabilities WHERE actor_id = ? ORDER BY capability`, row.ID); err != nil {
			return nil, fmt.Errorf("failed to get capabilities: %w", err)
		}
		actors = append(actors, toActor(row, caps))
	}
	return actors, nil
}

func toActor(row actorRow, caps []string) *entity.Actor {
	actor := &entity.Actor{
		ID:           row.ID,
		Name:         row.Name,
		LarkOpenID:   row.LarkOpenID,
		Capabilities: make([]domainwf.Capability, len(caps)),
	}
	for i, c := range caps {
		actor.Capabilities[i] = domainwf.Capability(c)
	}
	return actor
}
