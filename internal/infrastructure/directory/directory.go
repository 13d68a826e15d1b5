package directory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/garyjia/approval-workflow/internal/application/port"
	"github.com/garyjia/approval-workflow/internal/domain/entity"
	"github.com/garyjia/approval-workflow/internal/domain/workflow"
)

// Config holds directory cache settings
type Config struct {
	CacheSize int
	CacheTTL  time.Duration
}

// Directory resolves actors from the actor repository through an
// expiring LRU cache
type Directory struct {
	repo   port.ActorRepository
	cache  *expirable.LRU[string, *entity.Actor]
	logger *zap.Logger
}

// New creates a cached actor directory
func New(repo port.ActorRepository, cfg Config, logger *zap.Logger) *Directory {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1024
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	return &Directory{
		repo:   repo,
		cache:  expirable.NewLRU[string, *entity.Actor](cfg.CacheSize, nil, cfg.CacheTTL),
		logger: logger,
	}
}

// Lookup returns the actor entry, or a NotFound error for unknown ids
func (d *Directory) Lookup(ctx context.Context, actorID string) (*entity.Actor, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return nil, workflow.NewError(workflow.KindValidation, "directory.lookup", "", "actor id is required")
	}

	if actor, ok := d.cache.Get(actorID); ok {
		return cloneActor(actor), nil
	}

	actor, err := d.repo.GetByID(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load actor %s: %w", actorID, err)
	}
	if actor == nil {
		return nil, workflow.NewError(workflow.KindNotFound, "directory.lookup", "", "actor %s not found", actorID)
	}

	d.cache.Add(actorID, actor)
	return cloneActor(actor), nil
}

// CapabilitiesOf returns the capability set held by an actor
func (d *Directory) CapabilitiesOf(ctx context.Context, actorID string) (workflow.CapabilitySet, error) {
	actor, err := d.Lookup(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return workflow.NewCapabilitySet(actor.Capabilities...), nil
}

// ActorsWithCapability lists holders of a capability. Not cached: routing
// must see newly granted capabilities.
func (d *Directory) ActorsWithCapability(ctx context.Context, capability workflow.Capability) ([]*entity.Actor, error) {
	actors, err := d.repo.ListByCapability(ctx, string(capability))
	if err != nil {
		return nil, fmt.Errorf("failed to list actors with %s: %w", capability, err)
	}
	return actors, nil
}

// Upsert stores an actor and drops its cached entry
func (d *Directory) Upsert(ctx context.Context, actor *entity.Actor) error {
	if actor == nil || strings.TrimSpace(actor.ID) == "" {
		return workflow.NewError(workflow.KindValidation, "directory.upsert", "", "actor id is required")
	}
	if err := d.repo.Upsert(ctx, actor); err != nil {
		return fmt.Errorf("failed to store actor %s: %w", actor.ID, err)
	}
	d.cache.Remove(actor.ID)
	return nil
}

// Seed upserts the configured actors at startup
func (d *Directory) Seed(ctx context.Context, actors []*entity.Actor) error {
	for _, actor := range actors {
		if err := d.Upsert(ctx, actor); err != nil {
			return err
		}
	}
	d.logger.Info("Actor directory seeded", zap.Int("actors", len(actors)))
	return nil
}

func cloneActor(a *entity.Actor) *entity.Actor {
	c := *a
	c.Capabilities = append([]workflow.Capability(nil), a.Capabilities...)
	return &c
}

var _ port.ActorDirectory = (*Directory)(nil)
