package service

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/garyjia/approval-workflow/internal/application/port"
	"github.com/garyjia/approval-workflow/internal/application/workflow"
	domainwf "github.com/garyjia/approval-workflow/internal/domain/workflow"
)

// DefaultBulkConcurrency bounds the engine calls a batch runs at once
const DefaultBulkConcurrency = 8

// BulkPayload carries the per-action options applied to every id
type BulkPayload struct {
	Comment        string `json:"comment,omitempty"`
	Reason         string `json:"reason,omitempty"`
	AdjustedAmount *int64 `json:"adjusted_amount,omitempty"`
}

// BulkInput describes a batch operation
type BulkInput struct {
	IDs     []string
	ActorID string
	Action  domainwf.Action
	Payload BulkPayload
}

// FailedItem records why one id of a batch did not apply
type FailedItem struct {
	ID   string        `json:"id"`
	Kind domainwf.Kind `json:"kind"`
}

// BulkResult lists the outcome of every distinct id in input order
type BulkResult struct {
	Succeeded []string     `json:"succeeded"`
	Failed    []FailedItem `json:"failed"`
}

// BulkService fans a batch out to the engine and isolates per-item failures
type BulkService interface {
	BulkApply(ctx context.Context, in BulkInput) (*BulkResult, error)
}

type bulkServiceImpl struct {
	engine      workflow.Engine
	directory   port.ActorDirectory
	metrics     port.MetricsRecorder
	logger      Logger
	concurrency int
}

// BulkOption configures the bulk service
type BulkOption func(*bulkServiceImpl)

// WithConcurrency sets how many items run at once
func WithConcurrency(n int) BulkOption {
	return func(s *bulkServiceImpl) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithBulkMetrics sets the metrics recorder
func WithBulkMetrics(m port.MetricsRecorder) BulkOption {
	return func(s *bulkServiceImpl) {
		s.metrics = m
	}
}

// NewBulkService creates a new BulkService
func NewBulkService(engine workflow.Engine, directory port.ActorDirectory, logger Logger, opts ...BulkOption) BulkService {
	s := &bulkServiceImpl{
		engine:      engine,
		directory:   directory,
		logger:      logger,
		concurrency: DefaultBulkConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BulkApply only returns an error for a malformed batch. Every per-id
// failure is reported in the result.
func (s *bulkServiceImpl) BulkApply(ctx context.Context, in BulkInput) (*BulkResult, error) {
	const op = "bulk_apply"

	if len(in.IDs) == 0 {
		return nil, domainwf.NewError(domainwf.KindValidation, op, "", "id list is empty")
	}
	switch in.Action {
	case domainwf.ActionApprove, domainwf.ActionResubmit:
	case domainwf.ActionReject:
		if strings.TrimSpace(in.Payload.Reason) == "" {
			return nil, domainwf.NewError(domainwf.KindValidation, op, "", "rejection reason is required")
		}
	default:
		return nil, domainwf.NewError(domainwf.KindValidation, op, "", "unsupported bulk action %q", in.Action)
	}
	if _, err := s.directory.CapabilitiesOf(ctx, in.ActorID); err != nil {
		return nil, err
	}

	ids := dedupe(in.IDs)
	errs := make([]error, len(ids))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			errs[i] = s.applyOne(ctx, in, id)
			return nil
		})
	}
	_ = g.Wait()

	result := &BulkResult{
		Succeeded: []string{},
		Failed:    []FailedItem{},
	}
	for i, id := range ids {
		if errs[i] == nil {
			result.Succeeded = append(result.Succeeded, id)
		} else {
			result.Failed = append(result.Failed, FailedItem{ID: id, Kind: domainwf.KindOf(errs[i])})
		}
		if s.metrics != nil {
			s.metrics.RecordBulkItem(in.Action, port.Outcome(errs[i]))
		}
	}

	if s.logger != nil {
		s.logger.Info("Bulk operation finished",
			"action", in.Action,
			"actor_id", in.ActorID,
			"succeeded", len(result.Succeeded),
			"failed", len(result.Failed),
		)
	}

	return result, nil
}

func (s *bulkServiceImpl) applyOne(ctx context.Context, in BulkInput, id string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domainwf.NewError(domainwf.KindInternal, "bulk_apply", id, "panic: %v", r)
			if s.logger != nil {
				s.logger.Error("Bulk item panic recovered", "request_id", id, "panic", r)
			}
		}
	}()

	if strings.TrimSpace(id) == "" {
		return domainwf.NewError(domainwf.KindValidation, "bulk_apply", id, "blank request id")
	}

	switch in.Action {
	case domainwf.ActionApprove:
		_, err = s.engine.Approve(ctx, id, in.ActorID, workflow.ApproveOptions{
			Comment:        in.Payload.Comment,
			AdjustedAmount: in.Payload.AdjustedAmount,
		})
	case domainwf.ActionReject:
		_, err = s.engine.Reject(ctx, id, in.ActorID, workflow.RejectOptions{Reason: in.Payload.Reason})
	case domainwf.ActionResubmit:
		_, err = s.engine.Resubmit(ctx, id, in.ActorID, workflow.ResubmitOptions{Comment: in.Payload.Comment})
	}

	if err != nil && s.logger != nil && domainwf.KindOf(err) == domainwf.KindInternal {
		s.logger.Error("Bulk item failed", "request_id", id, "action", in.Action, "error", err)
	}
	return err
}

// dedupe keeps the first occurrence of every id
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
