package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/approval-workflow/internal/application/dispatcher"
	"github.com/garyjia/approval-workflow/internal/application/port"
	"github.com/garyjia/approval-workflow/internal/domain/entity"
	"github.com/garyjia/approval-workflow/internal/domain/event"
	domainwf "github.com/garyjia/approval-workflow/internal/domain/workflow"
)

// NotificationService routes committed workflow events to the people who
// need to act on them or hear about the outcome
type NotificationService interface {
	// Register subscribes the service to every workflow event type
	Register(d dispatcher.Dispatcher)

	// Handle delivers the notifications for one event
	Handle(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	registry  *domainwf.Registry
	directory port.ActorDirectory
	sender    port.MessageSender
	metrics   port.MetricsRecorder
	logger    Logger
}

// NewNotificationService creates a new NotificationService. metrics may be nil.
func NewNotificationService(
	registry *domainwf.Registry,
	directory port.ActorDirectory,
	sender port.MessageSender,
	metrics port.MetricsRecorder,
	logger Logger,
) NotificationService {
	return &notificationServiceImpl{
		registry:  registry,
		directory: directory,
		sender:    sender,
		metrics:   metrics,
		logger:    logger,
	}
}

func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	d.Subscribe("lark-notifier", s.Handle,
		event.TypeRequestSubmitted,
		event.TypeRequestApproved,
		event.TypeRequestRejected,
		event.TypeRequestResubmitted,
		event.TypeRequestReminder,
	)
}

func (s *notificationServiceImpl) Handle(ctx context.Context, evt *event.Event) error {
	if evt.Request == nil {
		return fmt.Errorf("event %s carries no request", evt.ID)
	}
	req := evt.Request

	var recipients []*entity.Actor
	var message string

	switch {
	case req.Status == domainwf.StateApproved:
		actor, err := s.directory.Lookup(ctx, req.RequesterID)
		if err != nil {
			return fmt.Errorf("lookup requester: %w", err)
		}
		recipients = []*entity.Actor{actor}
		message = approvedMessage(req)

	case req.Status == domainwf.StateRejected:
		actor, err := s.directory.Lookup(ctx, req.RequesterID)
		if err != nil {
			return fmt.Errorf("lookup requester: %w", err)
		}
		recipients = []*entity.Actor{actor}
		message = rejectedMessage(req, evt.Transition)

	default:
		def, err := s.registry.Definition(req.Type)
		if err != nil {
			return err
		}
		stage, ok := def.StageFor(req.Status)
		if !ok {
			return fmt.Errorf("status %s is not a stage of %s", req.Status, req.Type)
		}
		recipients, err = s.directory.ActorsWithCapability(ctx, stage.RequiredCapability)
		if err != nil {
			return fmt.Errorf("list reviewers: %w", err)
		}
		message = pendingMessage(req, stage, evt.Type == event.TypeRequestReminder)
	}

	var errs []error
	for _, actor := range recipients {
		if actor == nil || actor.LarkOpenID == "" {
			continue
		}
		err := s.sender.SendMessage(ctx, actor.LarkOpenID, message)
		if s.metrics != nil {
			s.metrics.RecordNotification(evt.Type.String(), err == nil)
		}
		if err != nil {
			s.logger.Error("Failed to send notification",
				"request_id", req.ID,
				"event_type", evt.Type,
				"correlation_id", evt.CorrelationID,
				"actor_id", actor.ID,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("notify %s: %w", actor.ID, err))
			continue
		}
		s.logger.Info("Notification sent",
			"request_id", req.ID,
			"event_type", evt.Type,
			"actor_id", actor.ID,
		)
	}

	return errors.Join(errs...)
}

func pendingMessage(req *entity.Request, stage domainwf.Stage, reminder bool) string {
	prefix := "[Approval]"
	if reminder {
		prefix = "[Approval reminder]"
	}
	return fmt.Sprintf("%s %s request %s from %s for %s is waiting for %s.",
		prefix, req.Type, req.ID, req.RequesterID, formatAmount(req.Amount), stage.Name)
}

func approvedMessage(req *entity.Request) string {
	amount := req.Amount
	if req.ApprovedAmount != nil {
		amount = *req.ApprovedAmount
	}
	return fmt.Sprintf("[Approval] Your %s request %s was approved for %s.", req.Type, req.ID, formatAmount(amount))
}

func rejectedMessage(req *entity.Request, tr *entity.Transition) string {
	if tr == nil {
		return fmt.Sprintf("[Approval] Your %s request %s was rejected.", req.Type, req.ID)
	}
	return fmt.Sprintf("[Approval] Your %s request %s was rejected at %s: %s",
		req.Type, req.ID, tr.FromStatus, tr.Comment)
}

// formatAmount renders minor units with two decimals
func formatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
