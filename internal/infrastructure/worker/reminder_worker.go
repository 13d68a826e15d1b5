package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/approval-workflow/internal/application/dispatcher"
	"github.com/garyjia/approval-workflow/internal/application/port"
	"github.com/garyjia/approval-workflow/internal/domain/entity"
	"github.com/garyjia/approval-workflow/internal/domain/event"
	"github.com/garyjia/approval-workflow/internal/domain/workflow"
)

// ReminderConfig holds configuration for the reminder worker
type ReminderConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
	BatchSize  int
}

// DefaultReminderConfig returns default configuration
func DefaultReminderConfig() ReminderConfig {
	return ReminderConfig{
		Interval:   15 * time.Minute,
		StaleAfter: 24 * time.Hour,
		BatchSize:  100,
	}
}

// ReminderWorker periodically dispatches reminder events for requests that
// have waited at a stage longer than StaleAfter. Each stage visit (request
// version) is reminded at most once. Requests are never modified.
type ReminderWorker struct {
	config      ReminderConfig
	registry    *workflow.Registry
	requestRepo port.RequestRepository
	dispatcher  dispatcher.Dispatcher
	logger      *zap.Logger
	now         func() time.Time

	mu            sync.RWMutex
	cancel        context.CancelFunc
	done          chan struct{}
	isRunning     bool
	reminded      map[string]int64
	remindedCount int
	lastRun       time.Time
	lastError     error
}

// NewReminderWorker creates a new reminder worker
func NewReminderWorker(
	config ReminderConfig,
	registry *workflow.Registry,
	requestRepo port.RequestRepository,
	d dispatcher.Dispatcher,
	logger *zap.Logger,
) *ReminderWorker {
	defaults := DefaultReminderConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = defaults.StaleAfter
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}

	return &ReminderWorker{
		config:      config,
		registry:    registry,
		requestRepo: requestRepo,
		dispatcher:  d,
		logger:      logger,
		now:         time.Now,
		reminded:    make(map[string]int64),
	}
}

// Start begins the polling loop
func (w *ReminderWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isRunning {
		return fmt.Errorf("reminder worker already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true

	w.logger.Info("ReminderWorker started",
		zap.Duration("interval", w.config.Interval),
		zap.Duration("stale_after", w.config.StaleAfter))

	go w.pollLoop(runCtx, w.done)
	return nil
}

// Stop terminates the loop and waits for an in-flight scan
func (w *ReminderWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	w.mu.RLock()
	w.logger.Info("ReminderWorker stopped", zap.Int("reminded_count", w.remindedCount))
	w.mu.RUnlock()
	return nil
}

// Name returns the worker name for identification
func (w *ReminderWorker) Name() string {
	return "ReminderWorker"
}

// Status reports whether the worker runs and its last scan error
func (w *ReminderWorker) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()

	s := Status{Name: w.Name(), Running: w.isRunning, LastRun: w.lastRun}
	if w.lastError != nil {
		s.LastError = w.lastError.Error()
	}
	return s
}

func (w *ReminderWorker) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Reminder loop context cancelled")
			return

		case <-ticker.C:
			sent, err := w.RunOnce(ctx)
			if err != nil {
				w.logger.Error("Failed to scan for stale requests", zap.Error(err))
			} else if sent > 0 {
				w.logger.Info("Reminders dispatched", zap.Int("count", sent))
			}
		}
	}
}

// RunOnce scans every request type for stale pending requests and
// dispatches one reminder per newly stale stage visit
func (w *ReminderWorker) RunOnce(ctx context.Context) (int, error) {
	cutoff := w.now().Add(-w.config.StaleAfter)
	seen := make(map[string]struct{})
	sent := 0

	var scanErr error
	for _, requestType := range w.registry.Types() {
		def, err := w.registry.Definition(requestType)
		if err != nil {
			scanErr = err
			continue
		}

		stages := make([]workflow.State, len(def.Stages))
		for i, s := range def.Stages {
			stages[i] = s.State()
		}

		for offset := 0; ; offset += w.config.BatchSize {
			requests, err := w.requestRepo.Query(ctx, entity.RequestFilter{
				Type:          requestType,
				Statuses:      stages,
				UpdatedBefore: &cutoff,
				Limit:         w.config.BatchSize,
				Offset:        offset,
			})
			if err != nil {
				scanErr = fmt.Errorf("query stale %s requests: %w", requestType, err)
				break
			}

			for _, req := range requests {
				seen[req.ID] = struct{}{}
				if w.alreadyReminded(req) {
					continue
				}
				w.dispatcher.DispatchAsync(ctx, reminderEvent(req).WithPayload("stale_after", w.config.StaleAfter.String()))
				w.markReminded(req)
				sent++
			}

			if len(requests) < w.config.BatchSize || ctx.Err() != nil {
				break
			}
		}
	}

	w.mu.Lock()
	// forget requests that moved on so the map stays bounded
	if scanErr == nil {
		for id := range w.reminded {
			if _, ok := seen[id]; !ok {
				delete(w.reminded, id)
			}
		}
	}
	w.remindedCount += sent
	w.lastRun = w.now()
	w.lastError = scanErr
	w.mu.Unlock()

	return sent, scanErr
}

func (w *ReminderWorker) alreadyReminded(req *entity.Request) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	v, ok := w.reminded[req.ID]
	return ok && v == req.Version
}

func (w *ReminderWorker) markReminded(req *entity.Request) {
	w.mu.Lock()
	w.reminded[req.ID] = req.Version
	w.mu.Unlock()
}

// reminderEvent correlates every reminder for one stage visit
func reminderEvent(req *entity.Request) *event.Event {
	correlation := fmt.Sprintf("%s@%d", req.ID, req.Version)
	evt := event.NewEventWithCorrelation(event.TypeRequestReminder, req.ID, map[string]interface{}{
		"request_type":  req.Type,
		"status":        req.Status.String(),
		"version":       req.Version,
		"waiting_since": req.UpdatedAt,
	}, correlation)
	evt.Request = req.Clone()
	return evt
}
