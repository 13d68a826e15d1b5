package container

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/garyjia/approval-workflow/internal/application/dispatcher"
	"github.com/garyjia/approval-workflow/internal/application/port"
	"github.com/garyjia/approval-workflow/internal/application/service"
	appwf "github.com/garyjia/approval-workflow/internal/application/workflow"
	"github.com/garyjia/approval-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/approval-workflow/internal/domain/workflow"
	"github.com/garyjia/approval-workflow/internal/infrastructure/directory"
	infraLark "github.com/garyjia/approval-workflow/internal/infrastructure/external/lark"
	"github.com/garyjia/approval-workflow/internal/infrastructure/metrics"
	"github.com/garyjia/approval-workflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/approval-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/approval-workflow/internal/infrastructure/resilience"
	"github.com/garyjia/approval-workflow/internal/infrastructure/worker"
	"github.com/garyjia/approval-workflow/migrations"
	"github.com/garyjia/approval-workflow/pkg/database"
	"github.com/garyjia/approval-workflow/pkg/utils"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Conn           *database.DB
	TransactionMgr *sqlite.DB
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Request port.RequestRepository
	History port.HistoryRepository
	Actor   port.ActorRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Queue        service.QueueService
	History      service.HistoryService
	Bulk         service.BulkService
	Notification service.NotificationService
}

// MetricsBundle holds the Prometheus registry and the workflow recorder.
type MetricsBundle struct {
	Registry *prometheus.Registry
	Recorder *metrics.Recorder
}

// ProvideDatabase opens the database, applies the embedded migrations and
// wraps the handle in a transaction manager.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	conn, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(conn, logger).RunMigrations(migrations.FS); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		Conn:           conn,
		TransactionMgr: sqlite.NewDB(conn.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories over the transaction manager.
func ProvideRepositories(db *sqlite.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}

	return &RepositoryBundle{
		Request: repository.NewRequestRepository(db, logger),
		History: repository.NewHistoryRepository(db, logger),
		Actor:   repository.NewActorRepository(db, logger),
	}, nil
}

// ProvideRegistry loads the workflow definitions.
func ProvideRegistry(cfg *WorkflowConfig, logger *zap.Logger) (*domainwf.Registry, error) {
	registry, err := domainwf.LoadDefinitions(cfg.DefinitionsPath)
	if err != nil {
		return nil, err
	}

	logger.Info("Workflow definitions loaded",
		zap.String("path", cfg.DefinitionsPath),
		zap.Strings("request_types", registry.Types()))
	return registry, nil
}

// ProvideDirectory creates the cached actor directory and seeds the
// configured actors.
func ProvideDirectory(ctx context.Context, cfg *DirectoryConfig, repo port.ActorRepository, logger *zap.Logger) (*directory.Directory, error) {
	dir := directory.New(repo, directory.Config{
		CacheSize: cfg.CacheSize,
		CacheTTL:  cfg.CacheTTL,
	}, logger)

	if len(cfg.Actors) == 0 {
		return dir, nil
	}

	seeds := make([]*entity.Actor, len(cfg.Actors))
	for i, a := range cfg.Actors {
		caps := make([]domainwf.Capability, len(a.Capabilities))
		for j, c := range a.Capabilities {
			caps[j] = domainwf.Capability(c)
		}
		seeds[i] = &entity.Actor{
			ID:           a.ID,
			Name:         a.Name,
			LarkOpenID:   a.LarkOpenID,
			Capabilities: caps,
		}
	}

	if err := dir.Seed(ctx, seeds); err != nil {
		return nil, fmt.Errorf("failed to seed actor directory: %w", err)
	}
	return dir, nil
}

// ProvideMetrics creates a dedicated Prometheus registry with runtime
// collectors and the workflow recorder.
func ProvideMetrics() *MetricsBundle {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &MetricsBundle{
		Registry: reg,
		Recorder: metrics.New(reg),
	}
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) dispatcher.Dispatcher {
	return dispatcher.NewDispatcher(dispatcher.WithLogger(utils.NewKVLogger(logger)))
}

// ProvideMessageSender creates the Lark messenger wrapped with retry and a
// circuit breaker. It returns nil when Lark is disabled.
func ProvideMessageSender(cfg *LarkConfig, ncfg *NotificationConfig, logger *zap.Logger) *resilience.Sender {
	if !cfg.Enabled {
		logger.Info("Lark notifications disabled")
		return nil
	}

	client := infraLark.NewClient(infraLark.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
		BaseURL:   cfg.BaseURL,
	}, logger)

	return resilience.NewSender("lark-im", infraLark.NewMessenger(client, logger), resilience.Config{
		MaxRetries:         ncfg.MaxRetries,
		InitialInterval:    ncfg.InitialInterval,
		MaxInterval:        ncfg.MaxInterval,
		BreakerTimeout:     ncfg.BreakerTimeout,
		BreakerMinRequests: ncfg.BreakerMinRequests,
		FailureRatio:       ncfg.FailureRatio,
	}, logger)
}

// WorkflowDeps holds dependencies for the workflow engine.
type WorkflowDeps struct {
	Registry   *domainwf.Registry
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Directory  port.ActorDirectory
	Dispatcher dispatcher.Dispatcher
	Metrics    port.MetricsRecorder
	Logger     *zap.Logger
}

// ProvideWorkflowEngine creates the workflow engine.
func ProvideWorkflowEngine(deps *WorkflowDeps) (appwf.Engine, error) {
	if deps.Registry == nil || deps.Repos == nil || deps.TxManager == nil || deps.Directory == nil {
		return nil, fmt.Errorf("workflow engine dependencies are incomplete")
	}

	return appwf.NewEngine(
		deps.Registry,
		deps.Repos.Request,
		deps.Repos.History,
		deps.TxManager,
		deps.Directory,
		appwf.WithDispatcher(deps.Dispatcher),
		appwf.WithMetrics(deps.Metrics),
		appwf.WithLogger(utils.NewKVLogger(deps.Logger)),
	), nil
}

// ServiceDeps holds dependencies for application services.
type ServiceDeps struct {
	Registry    *domainwf.Registry
	Repos       *RepositoryBundle
	Engine      appwf.Engine
	Directory   port.ActorDirectory
	Dispatcher  dispatcher.Dispatcher
	Sender      port.MessageSender
	Metrics     port.MetricsRecorder
	Concurrency int
	Logger      *zap.Logger
}

// ProvideServices creates all application services. The notification
// service is only created, and subscribed, when a sender is available.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps.Engine == nil {
		return nil, fmt.Errorf("workflow engine is required")
	}
	kv := utils.NewKVLogger(deps.Logger)

	bundle := &ServiceBundle{
		Queue:   service.NewQueueService(deps.Registry, deps.Repos.Request, deps.Directory),
		History: service.NewHistoryService(deps.Registry, deps.Repos.Request, deps.Repos.History),
		Bulk: service.NewBulkService(deps.Engine, deps.Directory, kv,
			service.WithConcurrency(deps.Concurrency),
			service.WithBulkMetrics(deps.Metrics)),
	}

	if deps.Sender != nil {
		bundle.Notification = service.NewNotificationService(deps.Registry, deps.Directory, deps.Sender, deps.Metrics, kv)
		bundle.Notification.Register(deps.Dispatcher)
	}

	return bundle, nil
}

// WorkerDeps holds dependencies for background workers.
type WorkerDeps struct {
	Registry   *domainwf.Registry
	Repos      *RepositoryBundle
	Dispatcher dispatcher.Dispatcher
	Reminder   *ReminderConfig
	Logger     *zap.Logger
}

// ProvideWorkers creates the worker manager with the enabled workers.
func ProvideWorkers(deps *WorkerDeps) *worker.Manager {
	manager := worker.NewManager(deps.Logger)

	if deps.Reminder != nil && deps.Reminder.Enabled {
		manager.Register(worker.NewReminderWorker(worker.ReminderConfig{
			Interval:   deps.Reminder.Interval,
			StaleAfter: deps.Reminder.StaleAfter,
			BatchSize:  deps.Reminder.BatchSize,
		}, deps.Registry, deps.Repos.Request, deps.Dispatcher, deps.Logger))
	}

	return manager
}
