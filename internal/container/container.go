package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/garyjia/approval-workflow/internal/application/dispatcher"
	"github.com/garyjia/approval-workflow/internal/application/port"
	appwf "github.com/garyjia/approval-workflow/internal/application/workflow"
	domainwf "github.com/garyjia/approval-workflow/internal/domain/workflow"
	"github.com/garyjia/approval-workflow/internal/infrastructure/directory"
	"github.com/garyjia/approval-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/approval-workflow/internal/infrastructure/resilience"
	"github.com/garyjia/approval-workflow/internal/infrastructure/worker"
	"github.com/garyjia/approval-workflow/pkg/database"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	conn         *database.DB
	db           *sqlite.DB
	repositories *RepositoryBundle
	directory    *directory.Directory

	// Infrastructure - External
	sender  *resilience.Sender
	metrics *MetricsBundle

	// Application
	registry   *domainwf.Registry
	dispatcher dispatcher.Dispatcher
	engine     appwf.Engine
	services   *ServiceBundle

	// Workers
	workers *worker.Manager

	// Lifecycle
	mu     sync.Mutex
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins processing:
// 1. Workflow definitions
// 2. Database, repositories and actor directory
// 3. Metrics and external clients
// 4. Dispatcher and workflow engine
// 5. Application services
// 6. Workers
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.logger.Info("Starting container initialization")

	if err := c.init(runCtx); err != nil {
		c.teardown()
		return err
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

func (c *Container) init(ctx context.Context) error {
	registry, err := ProvideRegistry(&c.config.Workflow, c.logger)
	if err != nil {
		return fmt.Errorf("failed to load workflow definitions: %w", err)
	}
	c.registry = registry

	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.conn = dbBundle.Conn
	c.db = dbBundle.TransactionMgr

	if c.repositories, err = ProvideRepositories(c.db, c.logger); err != nil {
		return fmt.Errorf("failed to initialize repositories: %w", err)
	}
	if c.directory, err = ProvideDirectory(ctx, &c.config.Directory, c.repositories.Actor, c.logger); err != nil {
		return err
	}
	c.logger.Info("Database initialized")

	c.metrics = ProvideMetrics()
	c.sender = ProvideMessageSender(&c.config.Lark, &c.config.Notification, c.logger)

	c.dispatcher = ProvideDispatcher(c.logger)
	c.engine, err = ProvideWorkflowEngine(&WorkflowDeps{
		Registry:   c.registry,
		Repos:      c.repositories,
		TxManager:  c.db,
		Directory:  c.directory,
		Dispatcher: c.dispatcher,
		Metrics:    c.metrics.Recorder,
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize workflow engine: %w", err)
	}
	c.logger.Info("Dispatcher and workflow engine initialized")

	var sender port.MessageSender
	if c.sender != nil {
		sender = c.sender
	}
	c.services, err = ProvideServices(&ServiceDeps{
		Registry:    c.registry,
		Repos:       c.repositories,
		Engine:      c.engine,
		Directory:   c.directory,
		Dispatcher:  c.dispatcher,
		Sender:      sender,
		Metrics:     c.metrics.Recorder,
		Concurrency: c.config.Bulk.Concurrency,
		Logger:      c.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.logger.Info("Application services initialized")

	c.workers = ProvideWorkers(&WorkerDeps{
		Registry:   c.registry,
		Repos:      c.repositories,
		Dispatcher: c.dispatcher,
		Reminder:   &c.config.Reminder,
		Logger:     c.logger,
	})
	if err := c.workers.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	c.logger.Info("Workers started", zap.Int("count", c.workers.WorkerCount()))

	return nil
}

// Close gracefully shuts down all components in reverse order. Workers stop
// first so no new events are produced, then the dispatcher drains in-flight
// handlers before the database closes.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	err := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if err != nil {
		c.logger.Error("Container closed with errors", zap.Error(err))
		return err
	}
	c.logger.Info("Container closed successfully")
	return nil
}

func (c *Container) teardown() error {
	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
	}

	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns the status of each component; "ok" means healthy.
func (c *Container) Health(ctx context.Context) map[string]string {
	status := make(map[string]string)

	switch {
	case c.conn == nil:
		status["database"] = "not initialized"
	default:
		if err := c.conn.Health(ctx); err != nil {
			status["database"] = fmt.Sprintf("ping failed: %v", err)
		} else {
			status["database"] = "ok"
		}
	}

	if c.dispatcher != nil && c.ready.Load() {
		status["dispatcher"] = "ok"
	} else {
		status["dispatcher"] = "not running"
	}

	if c.workers != nil {
		for _, w := range c.workers.Statuses() {
			switch {
			case !w.Running:
				status["worker."+w.Name] = "stopped"
			case w.LastError != "":
				status["worker."+w.Name] = w.LastError
			default:
				status["worker."+w.Name] = "ok"
			}
		}
	}

	if c.sender != nil {
		if c.sender.State() == gobreaker.StateOpen {
			status["notifications"] = "circuit open"
		} else {
			status["notifications"] = "ok"
		}
	}

	return status
}

// Getters for accessing container components

// Registry returns the workflow definitions.
func (c *Container) Registry() *domainwf.Registry {
	return c.registry
}

// Engine returns the workflow engine.
func (c *Container) Engine() appwf.Engine {
	return c.engine
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.Manager {
	return c.workers
}

// Gatherer returns the metrics registry served on /metrics.
func (c *Container) Gatherer() prometheus.Gatherer {
	if c.metrics == nil {
		return nil
	}
	return c.metrics.Registry
}
