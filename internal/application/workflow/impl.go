package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/approval-workflow/internal/application/dispatcher"
	"github.com/garyjia/approval-workflow/internal/application/port"
	"github.com/garyjia/approval-workflow/internal/domain/entity"
	"github.com/garyjia/approval-workflow/internal/domain/event"
	domainwf "github.com/garyjia/approval-workflow/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type engineImpl struct {
	registry    *domainwf.Registry
	requestRepo port.RequestRepository
	historyRepo port.HistoryRepository
	txManager   port.TransactionManager
	directory   port.ActorDirectory

	dispatcher dispatcher.Dispatcher
	metrics    port.MetricsRecorder
	logger     Logger
	now        func() time.Time
	newID      func() string
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the dispatcher that receives committed transition events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m port.MetricsRecorder) EngineOption {
	return func(e *engineImpl) {
		e.metrics = m
	}
}

// WithLogger sets the engine logger
func WithLogger(l Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = l
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// WithIDGenerator overrides the request and transition id generator
func WithIDGenerator(gen func() string) EngineOption {
	return func(e *engineImpl) {
		e.newID = gen
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	registry *domainwf.Registry,
	requestRepo port.RequestRepository,
	historyRepo port.HistoryRepository,
	txManager port.TransactionManager,
	directory port.ActorDirectory,
	opts ...EngineOption,
) Engine {
	e := &engineImpl{
		registry:    registry,
		requestRepo: requestRepo,
		historyRepo: historyRepo,
		txManager:   txManager,
		directory:   directory,
		now:         time.Now,
		newID:       uuid.NewString,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func (e *engineImpl) Submit(ctx context.Context, in SubmitInput) (req *entity.Request, err error) {
	defer e.observe(in.Type, domainwf.ActionSubmit, time.Now(), &err)

	const op = "submit"
	if strings.TrimSpace(in.RequesterID) == "" {
		return nil, domainwf.NewError(domainwf.KindValidation, op, "", "requester id is required")
	}
	if in.Amount < 0 {
		return nil, domainwf.NewError(domainwf.KindValidation, op, "", "amount must not be negative")
	}

	def, err := e.registry.Definition(in.Type)
	if err != nil {
		return nil, err
	}

	now := e.now()
	req = &entity.Request{
		ID:          e.newID(),
		Type:        def.RequestType,
		RequesterID: in.RequesterID,
		Description: in.Description,
		Amount:      in.Amount,
		Status:      def.First(),
		StageIndex:  0,
		Version:     0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	tr := &entity.Transition{
		ID:                 e.newID(),
		RequestID:          req.ID,
		ToStatus:           req.Status,
		ActorID:            in.RequesterID,
		ActorRole:          entity.ActorRoleRequester,
		Action:             domainwf.ActionSubmit,
		AmountAtTransition: req.Amount,
		Timestamp:          now,
		ResultingVersion:   0,
	}

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.requestRepo.Create(txCtx, req); err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		if err := e.historyRepo.Append(txCtx, tr); err != nil {
			return fmt.Errorf("failed to append history: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, req, tr)
	return req.Clone(), nil
}

func (e *engineImpl) Approve(ctx context.Context, requestID, actorID string, opts ApproveOptions) (req *entity.Request, err error) {
	const op = "approve"
	start := time.Now()
	var requestType string
	defer func() { e.observe(requestType, domainwf.ActionApprove, start, &err) }()

	current, def, stage, err := e.loadActionable(ctx, op, requestID, actorID)
	if err != nil {
		return nil, err
	}
	requestType = current.Type

	if opts.AdjustedAmount != nil {
		if *opts.AdjustedAmount < 0 {
			return nil, domainwf.NewError(domainwf.KindValidation, op, requestID, "adjusted amount must not be negative")
		}
		if stage.AmountPolicy == domainwf.AmountPolicyNoIncrease && *opts.AdjustedAmount > current.Amount {
			return nil, domainwf.NewError(domainwf.KindValidation, op, requestID,
				"stage %s does not allow raising the amount above %d", stage.Name, current.Amount)
		}
	}
	if err := checkVersion(op, current, opts.ExpectedVersion); err != nil {
		return nil, err
	}

	to, err := def.Next(current.Status, domainwf.ActionApprove, domainwf.Subject{})
	if err != nil {
		return nil, domainwf.NewError(domainwf.KindInternal, op, requestID, "%v", err)
	}

	next := current.Clone()
	if opts.AdjustedAmount != nil {
		v := *opts.AdjustedAmount
		next.ApprovedAmount = &v
	} else if to == domainwf.StateApproved && next.ApprovedAmount == nil {
		v := next.Amount
		next.ApprovedAmount = &v
	}

	amount := next.Amount
	if next.ApprovedAmount != nil {
		amount = *next.ApprovedAmount
	}

	return e.apply(ctx, op, def, current, next, to, &entity.Transition{
		ActorID:            actorID,
		ActorRole:          string(stage.RequiredCapability),
		Action:             domainwf.ActionApprove,
		Comment:            opts.Comment,
		AmountAtTransition: amount,
	})
}

func (e *engineImpl) Reject(ctx context.Context, requestID, actorID string, opts RejectOptions) (req *entity.Request, err error) {
	const op = "reject"
	start := time.Now()
	var requestType string
	defer func() { e.observe(requestType, domainwf.ActionReject, start, &err) }()

	current, def, stage, err := e.loadActionable(ctx, op, requestID, actorID)
	if err != nil {
		return nil, err
	}
	requestType = current.Type

	reason := strings.TrimSpace(opts.Reason)
	if reason == "" {
		return nil, domainwf.NewError(domainwf.KindValidation, op, requestID, "rejection reason is required")
	}
	if err := checkVersion(op, current, opts.ExpectedVersion); err != nil {
		return nil, err
	}

	to, err := def.Next(current.Status, domainwf.ActionReject, domainwf.Subject{})
	if err != nil {
		return nil, domainwf.NewError(domainwf.KindInternal, op, requestID, "%v", err)
	}

	next := current.Clone()
	next.RejectedFrom = current.Status

	return e.apply(ctx, op, def, current, next, to, &entity.Transition{
		ActorID:            actorID,
		ActorRole:          string(stage.RequiredCapability),
		Action:             domainwf.ActionReject,
		Comment:            reason,
		AmountAtTransition: current.Amount,
	})
}

func (e *engineImpl) Resubmit(ctx context.Context, requestID, actorID string, opts ResubmitOptions) (req *entity.Request, err error) {
	const op = "resubmit"
	start := time.Now()
	var requestType string
	defer func() { e.observe(requestType, domainwf.ActionResubmit, start, &err) }()

	current, def, err := e.load(ctx, op, requestID)
	if err != nil {
		return nil, err
	}
	requestType = current.Type

	if actorID != current.RequesterID {
		return nil, domainwf.NewError(domainwf.KindAuthorization, op, requestID, "only the requester may resubmit")
	}
	if current.Status != domainwf.StateRejected {
		return nil, domainwf.NewError(domainwf.KindTerminalState, op, requestID, "status %s is not rejected", current.Status)
	}
	if opts.Amount != nil && *opts.Amount < 0 {
		return nil, domainwf.NewError(domainwf.KindValidation, op, requestID, "amount must not be negative")
	}
	if err := checkVersion(op, current, opts.ExpectedVersion); err != nil {
		return nil, err
	}

	to, err := def.Next(current.Status, domainwf.ActionResubmit, domainwf.Subject{RejectedFrom: current.RejectedFrom})
	if err != nil {
		return nil, domainwf.NewError(domainwf.KindInternal, op, requestID, "%v", err)
	}

	next := current.Clone()
	if opts.Amount != nil {
		next.Amount = *opts.Amount
	}
	next.ApprovedAmount = nil
	next.RejectedFrom = ""

	return e.apply(ctx, op, def, current, next, to, &entity.Transition{
		ActorID:            actorID,
		ActorRole:          entity.ActorRoleRequester,
		Action:             domainwf.ActionResubmit,
		Comment:            opts.Comment,
		AmountAtTransition: next.Amount,
	})
}

// load reads a request and its definition, rejecting unknown ids and
// statuses the definition does not recognise
func (e *engineImpl) load(ctx context.Context, op, requestID string) (*entity.Request, *domainwf.Definition, error) {
	req, err := e.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load request %s: %w", requestID, err)
	}
	if req == nil {
		return nil, nil, domainwf.NewError(domainwf.KindNotFound, op, requestID, "request does not exist")
	}

	def, err := e.registry.Definition(req.Type)
	if err != nil {
		return nil, nil, err
	}
	if !def.Contains(req.Status) {
		return nil, nil, domainwf.NewError(domainwf.KindInternal, op, requestID, "stored status %q is not part of workflow %s", req.Status, req.Type)
	}

	return req, def, nil
}

// loadActionable applies the approve/reject gating: the request must exist,
// be in a stage, and the actor must hold the stage's capability
func (e *engineImpl) loadActionable(ctx context.Context, op, requestID, actorID string) (*entity.Request, *domainwf.Definition, domainwf.Stage, error) {
	req, def, err := e.load(ctx, op, requestID)
	if err != nil {
		return nil, nil, domainwf.Stage{}, err
	}

	if req.Status.IsTerminal() {
		return nil, nil, domainwf.Stage{}, domainwf.NewError(domainwf.KindTerminalState, op, requestID, "request is %s", req.Status)
	}

	stage, _ := def.StageFor(req.Status)

	caps, err := e.directory.CapabilitiesOf(ctx, actorID)
	if err != nil {
		return nil, nil, domainwf.Stage{}, err
	}
	if !caps.Has(stage.RequiredCapability) {
		return nil, nil, domainwf.Stage{}, domainwf.NewError(domainwf.KindAuthorization, op, requestID,
			"actor %s lacks %s for stage %s", actorID, stage.RequiredCapability, stage.Name)
	}

	return req, def, stage, nil
}

func checkVersion(op string, current *entity.Request, expected *int64) error {
	if expected != nil && *expected != current.Version {
		return domainwf.NewError(domainwf.KindConflict, op, current.ID,
			"expected version %d, stored version is %d", *expected, current.Version)
	}
	return nil
}

// apply commits a transition: the request is swapped conditionally on the
// version that was read and the history row is appended in the same
// transaction. The event is dispatched only after commit.
func (e *engineImpl) apply(
	ctx context.Context,
	op string,
	def *domainwf.Definition,
	current, next *entity.Request,
	to domainwf.State,
	tr *entity.Transition,
) (*entity.Request, error) {
	stageIndex, err := def.StageIndex(to)
	if err != nil {
		return nil, domainwf.NewError(domainwf.KindInternal, op, current.ID, "%v", err)
	}

	now := e.now()
	next.Status = to
	next.StageIndex = stageIndex
	next.Version = current.Version + 1
	next.UpdatedAt = now

	tr.ID = e.newID()
	tr.RequestID = current.ID
	tr.FromStatus = current.Status
	tr.ToStatus = to
	tr.Timestamp = now
	tr.ResultingVersion = next.Version

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		swapped, err := e.requestRepo.CompareAndSwap(txCtx, current.ID, current.Version, next)
		if err != nil {
			return fmt.Errorf("failed to update request: %w", err)
		}
		if !swapped {
			return domainwf.NewError(domainwf.KindConflict, op, current.ID, "version %d is stale", current.Version)
		}
		if err := e.historyRepo.Append(txCtx, tr); err != nil {
			return fmt.Errorf("failed to append history: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if e.logger != nil {
		e.logger.Info("Transition committed",
			"request_id", current.ID,
			"action", tr.Action,
			"from", tr.FromStatus,
			"to", tr.ToStatus,
			"version", next.Version,
			"actor_id", tr.ActorID,
		)
	}

	e.emit(ctx, next, tr)
	return next.Clone(), nil
}

func (e *engineImpl) emit(ctx context.Context, req *entity.Request, tr *entity.Transition) {
	if e.metrics != nil {
		e.metrics.RecordTransition(req.Type, tr.Action)
	}
	if e.dispatcher != nil {
		e.dispatcher.DispatchAsync(ctx, event.NewTransitionEvent(req, tr))
	}
}

func (e *engineImpl) observe(requestType string, action domainwf.Action, start time.Time, errp *error) {
	if e.metrics == nil {
		return
	}
	e.metrics.ObserveOperation(requestType, action, port.Outcome(*errp), time.Since(start).Seconds())
}
