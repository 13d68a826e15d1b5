package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/garyjia/approval-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/approval-workflow/internal/domain/workflow"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

type memRequestRepo struct {
	mu       sync.Mutex
	requests map[string]*entity.Request
	order    []string
	queryErr error
}

func newMemRequestRepo() *memRequestRepo {
	return &memRequestRepo{requests: make(map[string]*entity.Request)}
}

func (m *memRequestRepo) Create(ctx context.Context, req *entity.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[req.ID] = req.Clone()
	m.order = append(m.order, req.ID)
	return nil
}

func (m *memRequestRepo) GetByID(ctx context.Context, id string) (*entity.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if req, ok := m.requests[id]; ok {
		return req.Clone(), nil
	}
	return nil, nil
}

func (m *memRequestRepo) CompareAndSwap(ctx context.Context, id string, expectedVersion int64, next *entity.Request) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.requests[id]
	if !ok || current.Version != expectedVersion {
		return false, nil
	}
	m.requests[id] = next.Clone()
	return true, nil
}

func (m *memRequestRepo) Query(ctx context.Context, filter entity.RequestFilter) ([]*entity.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	var out []*entity.Request
	for _, id := range m.order {
		if r := m.requests[id]; filter.Matches(r) {
			out = append(out, r.Clone())
		}
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []*entity.Request{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

type memHistoryRepo struct {
	mu          sync.Mutex
	transitions []*entity.Transition
}

func (m *memHistoryRepo) Append(ctx context.Context, tr *entity.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := *tr
	m.transitions = append(m.transitions, &t)
	return nil
}

func (m *memHistoryRepo) GetByRequestID(ctx context.Context, requestID string) ([]*entity.Transition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Transition
	for _, t := range m.transitions {
		if t.RequestID == requestID {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResultingVersion < out[j].ResultingVersion })
	return out, nil
}

type passthroughTx struct{}

func (passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memDirectory struct {
	actors map[string]*entity.Actor
}

func newMemDirectory(actors ...*entity.Actor) *memDirectory {
	d := &memDirectory{actors: make(map[string]*entity.Actor)}
	for _, a := range actors {
		d.actors[a.ID] = a
	}
	return d
}

func (d *memDirectory) CapabilitiesOf(ctx context.Context, actorID string) (domainwf.CapabilitySet, error) {
	a, ok := d.actors[actorID]
	if !ok {
		return nil, domainwf.NewError(domainwf.KindNotFound, "directory.lookup", "", "unknown actor %s", actorID)
	}
	return domainwf.NewCapabilitySet(a.Capabilities...), nil
}

func (d *memDirectory) ActorsWithCapability(ctx context.Context, c domainwf.Capability) ([]*entity.Actor, error) {
	var out []*entity.Actor
	for _, a := range d.actors {
		for _, held := range a.Capabilities {
			if held == c {
				out = append(out, a)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *memDirectory) Lookup(ctx context.Context, actorID string) (*entity.Actor, error) {
	a, ok := d.actors[actorID]
	if !ok {
		return nil, fmt.Errorf("unknown actor %s", actorID)
	}
	return a, nil
}

func testRegistry() *domainwf.Registry {
	expense, err := domainwf.NewDefinition("expense", []domainwf.Stage{
		{Name: "finance_manager_review", RequiredCapability: "finance_manager"},
		{Name: "admin_review", RequiredCapability: "admin"},
	}, domainwf.ResubmitToFirst)
	if err != nil {
		panic(err)
	}
	replenishment, err := domainwf.NewDefinition("replenishment", []domainwf.Stage{
		{Name: "finance_manager_review", RequiredCapability: "finance_manager"},
		{Name: "admin_review", RequiredCapability: "admin"},
	}, domainwf.ResubmitToFirst)
	if err != nil {
		panic(err)
	}
	reg, err := domainwf.NewRegistry(expense, replenishment)
	if err != nil {
		panic(err)
	}
	return reg
}

func testDirectory() *memDirectory {
	return newMemDirectory(
		&entity.Actor{ID: "fm-1", LarkOpenID: "ou_fm1", Capabilities: []domainwf.Capability{"finance_manager"}},
		&entity.Actor{ID: "fm-2", Capabilities: []domainwf.Capability{"finance_manager"}},
		&entity.Actor{ID: "admin-1", LarkOpenID: "ou_admin1", Capabilities: []domainwf.Capability{"admin"}},
		&entity.Actor{ID: "boss", LarkOpenID: "ou_boss", Capabilities: []domainwf.Capability{"finance_manager", "admin"}},
		&entity.Actor{ID: "emp-1", LarkOpenID: "ou_emp1"},
		&entity.Actor{ID: "emp-2", LarkOpenID: "ou_emp2"},
	)
}
