// Package di provides dependency injection container for managing service lifecycle and dependencies.
package di

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"dailyfeed/internal/cache"
	"dailyfeed/internal/config"
	"dailyfeed/internal/database"
	"dailyfeed/internal/observability"
	"dailyfeed/internal/serviceinterfaces"
	"dailyfeed/internal/services"
	"dailyfeed/internal/store"
	contextutils "dailyfeed/internal/utils"
	"dailyfeed/internal/worker"

	"go.opentelemetry.io/otel"
)

const meterName = "dailyfeed"

// ServiceContainerInterface defines the interface for service containers
type ServiceContainerInterface interface {
	GetService(name string) (interface{}, error)
	GetDailyOrchestrator() (services.DailyOrchestratorInterface, error)
	GetNotificationDispatcher() (services.NotificationDispatcherInterface, error)
	GetAnswerGenerator() (services.AnswerGeneratorInterface, error)
	GetScheduler() (*worker.Scheduler, error)
	GetTaskRunner() (*worker.TaskRunner, error)
	GetDatabase() *sql.DB
	GetConfig() *config.Config
	GetLogger() *observability.Logger
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// Stores bundles the persistence collaborators of the pipeline services
type Stores struct {
	Catalog    serviceinterfaces.CatalogStore
	Selections serviceinterfaces.SelectionStore
	Users      serviceinterfaces.UserStore
	Logs       serviceinterfaces.NotificationLogStore
}

// ServiceContainer manages all service dependencies and lifecycle
type ServiceContainer struct {
	cfg           *config.Config
	logger        *observability.Logger
	dbManager     *database.Manager
	db            *sql.DB
	services      map[string]interface{}
	mu            sync.RWMutex
	shutdownFuncs []func(context.Context) error
	now           func() time.Time
}

// NewServiceContainer creates a new dependency injection container
func NewServiceContainer(cfg *config.Config, logger *observability.Logger) *ServiceContainer {
	return &ServiceContainer{
		cfg:      cfg,
		logger:   logger,
		services: make(map[string]interface{}),
		now:      time.Now,
	}
}

// Initialize opens Postgres, applies migrations and wires the services on top of it
func (sc *ServiceContainer) Initialize(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.dbManager = database.NewManager(sc.logger)
	db, err := sc.dbManager.InitDB(sc.cfg.Database)
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to initialize database")
	}
	sc.db = db
	sc.shutdownFuncs = append(sc.shutdownFuncs, func(_ context.Context) error {
		return db.Close()
	})

	stores := Stores{
		Catalog:    store.NewCatalogStore(db, sc.logger),
		Selections: store.NewSelectionStore(db, sc.logger),
		Users:      store.NewUserStore(db, sc.logger),
		Logs:       store.NewNotificationLogStore(db, sc.logger),
	}
	return sc.initializeLocked(ctx, stores)
}

// InitializeWithStores wires the services over caller-supplied stores, such
// as the in-memory test double. No database is opened.
func (sc *ServiceContainer) InitializeWithStores(ctx context.Context, stores Stores) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.initializeLocked(ctx, stores)
}

func (sc *ServiceContainer) initializeLocked(ctx context.Context, stores Stores) error {
	if err := sc.initializeServices(ctx, stores); err != nil {
		_ = sc.cleanup(ctx)
		return contextutils.WrapErrorf(err, "failed to initialize services")
	}

	if err := sc.startupServices(ctx); err != nil {
		_ = sc.cleanup(ctx)
		return contextutils.WrapErrorf(err, "failed to startup services")
	}
	return nil
}

// GetService retrieves a service by name with type assertion
func (sc *ServiceContainer) GetService(name string) (interface{}, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	service, exists := sc.services[name]
	if !exists {
		return nil, contextutils.ErrorWithContextf("service %s not found", name)
	}
	return service, nil
}

// GetServiceAs performs type-safe service retrieval
func GetServiceAs[T any](sc *ServiceContainer, name string) (T, error) {
	var zero T
	service, err := sc.GetService(name)
	if err != nil {
		return zero, err
	}

	typed, ok := service.(T)
	if !ok {
		return zero, contextutils.ErrorWithContextf("service %s is not of expected type %T", name, zero)
	}
	return typed, nil
}

// GetDailyOrchestrator returns the daily orchestrator
func (sc *ServiceContainer) GetDailyOrchestrator() (services.DailyOrchestratorInterface, error) {
	return GetServiceAs[services.DailyOrchestratorInterface](sc, "orchestrator")
}

// GetNotificationDispatcher returns the notification dispatcher
func (sc *ServiceContainer) GetNotificationDispatcher() (services.NotificationDispatcherInterface, error) {
	return GetServiceAs[services.NotificationDispatcherInterface](sc, "dispatcher")
}

// GetAnswerGenerator returns the answer generator
func (sc *ServiceContainer) GetAnswerGenerator() (services.AnswerGeneratorInterface, error) {
	return GetServiceAs[services.AnswerGeneratorInterface](sc, "generator")
}

// GetScheduler returns the daily job scheduler
func (sc *ServiceContainer) GetScheduler() (*worker.Scheduler, error) {
	return GetServiceAs[*worker.Scheduler](sc, "scheduler")
}

// GetTaskRunner returns the background task runner
func (sc *ServiceContainer) GetTaskRunner() (*worker.TaskRunner, error) {
	return GetServiceAs[*worker.TaskRunner](sc, "task_runner")
}

// GetDatabase returns the database instance, nil when initialized without one
func (sc *ServiceContainer) GetDatabase() *sql.DB {
	return sc.db
}

// GetDatabaseManager returns the migration-capable database manager
func (sc *ServiceContainer) GetDatabaseManager() *database.Manager {
	return sc.dbManager
}

// GetConfig returns the configuration
func (sc *ServiceContainer) GetConfig() *config.Config {
	return sc.cfg
}

// GetLogger returns the logger
func (sc *ServiceContainer) GetLogger() *observability.Logger {
	return sc.logger
}

// Shutdown gracefully shuts down all services
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	return sc.cleanup(ctx)
}

// startupServices starts all services that implement the Lifecycle interface
func (sc *ServiceContainer) startupServices(ctx context.Context) error {
	for name, service := range sc.services {
		if lifecycleService, ok := service.(interface{ Startup(context.Context) error }); ok {
			sc.logger.Info(ctx, "Starting service", map[string]interface{}{"service": name})
			if err := lifecycleService.Startup(ctx); err != nil {
				return contextutils.WrapErrorf(err, "failed to startup service %s", name)
			}
		}
	}
	return nil
}

// cleanup shuts down lifecycle services, then runs shutdown funcs in reverse order
func (sc *ServiceContainer) cleanup(ctx context.Context) error {
	var errs []error

	for name, service := range sc.services {
		if lifecycleService, ok := service.(interface{ Shutdown(context.Context) error }); ok {
			sc.logger.Info(ctx, "Shutting down service", map[string]interface{}{"service": name})
			if err := lifecycleService.Shutdown(ctx); err != nil {
				sc.logger.Error(ctx, "Failed to shutdown service", err, map[string]interface{}{"service": name})
				errs = append(errs, contextutils.WrapErrorf(err, "service %s shutdown failed", name))
			}
		}
	}

	for i := len(sc.shutdownFuncs) - 1; i >= 0; i-- {
		if err := sc.shutdownFuncs[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	sc.shutdownFuncs = nil

	if len(errs) > 0 {
		return contextutils.ErrorWithContextf("shutdown errors: %v", errs)
	}
	return nil
}

// initializeServices builds the gateways, services, scheduler and task runner
func (sc *ServiceContainer) initializeServices(_ context.Context, stores Stores) error {
	metrics, err := observability.NewPipelineMetrics(otel.GetMeterProvider().Meter(meterName))
	if err != nil {
		return contextutils.WrapError(err, "failed to register pipeline metrics")
	}

	// Active topics are read on every daily run and feed request
	catalog := cache.NewCachedCatalog(stores.Catalog, sc.cfg.Cache.TopicsTTL, sc.now)

	textGenerator, err := newTextGenerator(sc.cfg.Generation, sc.logger)
	if err != nil {
		return err
	}
	messenger, err := services.NewMessenger(sc.cfg.Push, sc.logger)
	if err != nil {
		return contextutils.WrapError(err, "failed to create push messenger")
	}

	generator := services.NewAnswerGenerator(catalog, textGenerator, sc.cfg.Generation, sc.logger, metrics)
	sc.services["generator"] = generator

	dispatcher := services.NewNotificationDispatcher(messenger, stores.Users, stores.Logs, stores.Selections,
		sc.cfg.Push, sc.logger, metrics)
	sc.services["dispatcher"] = dispatcher

	orchestrator := services.NewDailyOrchestrator(catalog, stores.Selections, stores.Users, dispatcher,
		sc.cfg.Pipeline, sc.logger).WithClock(sc.now)
	sc.services["orchestrator"] = orchestrator

	runner := worker.NewTaskRunner(sc.logger, 0)
	sc.services["task_runner"] = runner

	scheduler, err := worker.NewScheduler(sc.cfg.Schedule, sc.cfg.Pipeline.Timezone,
		worker.PipelineJobs(orchestrator, dispatcher, generator), runner, sc.logger, metrics)
	if err != nil {
		return err
	}
	sc.services["scheduler"] = scheduler

	sc.logger.Info(context.Background(), "Services initialized", map[string]interface{}{
		"generation_provider": sc.cfg.Generation.Provider,
		"push_provider":       messenger.Name(),
		"timezone":            sc.cfg.Pipeline.Timezone,
	})
	return nil
}

// newTextGenerator picks the text-generation gateway for the configured provider
func newTextGenerator(cfg config.GenerationConfig, logger *observability.Logger) (serviceinterfaces.TextGenerator, error) {
	switch cfg.Provider {
	case "openai", "":
		return services.NewOpenAIClient(cfg, logger), nil
	case "anthropic":
		return services.NewAnthropicClient(cfg, logger), nil
	default:
		return nil, contextutils.WrapErrorf(contextutils.ErrConfigInvalid, "unknown generation provider %q", cfg.Provider)
	}
}
