package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/escrow-engine/internal/application/dispatcher"
	"github.com/garyjia/escrow-engine/internal/application/port"
	"github.com/garyjia/escrow-engine/internal/application/service"
	"github.com/garyjia/escrow-engine/internal/application/workflow"
	"github.com/garyjia/escrow-engine/internal/infrastructure/cache"
	"github.com/garyjia/escrow-engine/internal/infrastructure/persistence/repository"
	"github.com/garyjia/escrow-engine/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/escrow-engine/internal/infrastructure/worker"
	"github.com/garyjia/escrow-engine/internal/interfaces/websocket"
	"github.com/garyjia/escrow-engine/pkg/database"
	"github.com/garyjia/escrow-engine/pkg/metrics"
)

// Container owns the escrow engine and everything it depends on.
// Components come up bottom-up in Start and go down top-down in Close.
type Container struct {
	config *Config
	logger *zap.Logger

	// Storage
	rawDB        *database.DB
	db           *sqlite.DB
	repositories *RepositoryBundle

	// Collaborators
	assessor    port.RiskAssessor
	notifier    port.Notifier
	idempotency *cache.IdempotencyStore
	metrics     *metrics.Collector

	// Engine and subscribers
	dispatcher dispatcher.Dispatcher
	engine     workflow.EscrowEngine
	services   *ServiceBundle

	// Background jobs
	workers *worker.WorkerManager

	// Inbound adapters
	larkAdapter *websocket.LarkAdapter

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle exposes the repositories built over the shared transaction manager.
type RepositoryBundle struct {
	Transaction port.TransactionRepository
	History     port.HistoryRepository
	Product     *repository.ProductRepository
}

// ServiceBundle holds the dispatcher subscribers and the report service.
type ServiceBundle struct {
	Assessment   service.AssessmentService
	Notification service.NotificationService
	Report       service.ReportService
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth reports one dependency.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer validates cfg. Nothing is opened until Start.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("container: nil config")
	}
	if logger == nil {
		return nil, errors.New("container: nil logger")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("container config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start wires the engine in dependency order:
// 1. Database and repositories
// 2. External collaborators (assessor, notifier, redis, metrics)
// 3. Dispatcher and escrow engine
// 4. Application services, subscribed to the dispatcher
// 5. Workers
// 6. Inbound Lark card actions, when enabled
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return errors.New("container: start after close")
	}

	if c.ready.Load() {
		return errors.New("container: already running")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Bringing up escrow engine")

	// 1. storage
	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	c.logger.Info("Storage ready", zap.String("path", c.config.Database.Path))

	// 2. assessor, notifier, redis, metrics
	if err := c.initExternal(); err != nil {
		c.closeDatabase()
		return fmt.Errorf("collaborators: %w", err)
	}
	c.logger.Info("Collaborators ready")

	// 3. dispatcher and engine
	if err := c.initDispatcherAndEngine(); err != nil {
		c.closeDatabase()
		return fmt.Errorf("engine: %w", err)
	}
	c.logger.Info("Dispatcher and escrow engine initialized")

	// 4. subscribers
	if err := c.initServices(); err != nil {
		c.closeDatabase()
		return fmt.Errorf("subscribers: %w", err)
	}
	c.logger.Info("Assessment and notification subscribers attached")

	// 5. background jobs
	if err := c.initWorkers(); err != nil {
		c.closeDatabase()
		return fmt.Errorf("background jobs: %w", err)
	}
	c.logger.Info("Background jobs running")

	// 6. card actions
	c.startLarkAdapter()

	c.ready.Store(true)
	c.logger.Info("Escrow engine ready")

	return nil
}

// Close undoes Start. Every step runs even if an earlier one failed.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return errors.New("container: already closed")
	}

	c.logger.Info("Shutting down escrow engine")

	var errs []error

	// stops the card adapter and anything else started with c.ctx
	if c.cancel != nil {
		c.cancel()
	}

	if c.larkAdapter != nil {
		_ = c.larkAdapter.Stop()
	}

	// background jobs first so nothing new is published
	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Background jobs did not stop cleanly", zap.Error(err))
			errs = append(errs, fmt.Errorf("background jobs: %w", err))
		} else {
			c.logger.Info("Background jobs stopped")
		}
	}

	// waits for in-flight assessments and notifications
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Dispatcher drain failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher drained")
		}
	}

	if c.idempotency != nil {
		if err := c.idempotency.Close(); err != nil {
			c.logger.Error("Failed to close redis client", zap.Error(err))
			errs = append(errs, fmt.Errorf("redis: %w", err))
		} else {
			c.logger.Info("Redis client closed")
		}
	}

	// storage last
	if c.rawDB != nil {
		if err := c.rawDB.Close(); err != nil {
			c.logger.Error("Database close failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Escrow engine shut down with errors", zap.Int("error_count", len(errs)))
		return errors.Join(errs...)
	}

	c.logger.Info("Escrow engine stopped")
	return nil
}

// Ready reports whether Start completed and Close has not run.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health probes storage and redis. Card actions are reported but never fail Overall.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	// database
	if c.rawDB != nil {
		if err := c.rawDB.PingContext(ctx); err != nil {
			status.Components["database"] = ComponentHealth{
				Healthy: false,
				Message: fmt.Sprintf("ping failed: %v", err),
			}
			status.Overall = false
		} else {
			status.Components["database"] = ComponentHealth{Healthy: true}
		}
	} else {
		status.Components["database"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	// Check redis. Idempotency is optional, so a missing store is healthy.
	if c.idempotency != nil {
		if err := c.idempotency.HealthCheck(ctx); err != nil {
			status.Components["redis"] = ComponentHealth{
				Healthy: false,
				Message: fmt.Sprintf("ping failed: %v", err),
			}
			status.Overall = false
		} else {
			status.Components["redis"] = ComponentHealth{Healthy: true}
		}
	} else {
		status.Components["redis"] = ComponentHealth{Healthy: true, Message: "disabled"}
	}

	// assessor
	if c.assessor != nil {
		status.Components["risk_assessor"] = ComponentHealth{Healthy: true}
	} else {
		status.Components["risk_assessor"] = ComponentHealth{Healthy: true, Message: "disabled, manual review only"}
	}

	// background jobs
	if c.workers != nil {
		status.Components["workers"] = ComponentHealth{
			Healthy: c.workers.IsRunning(),
			Message: fmt.Sprintf("worker count: %d", c.workers.GetWorkerCount()),
		}
		if !c.workers.IsRunning() {
			status.Overall = false
		}
	} else {
		status.Components["workers"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	// Lark card actions are optional and do not affect overall health
	switch {
	case c.larkAdapter == nil:
		status.Components["lark_card_actions"] = ComponentHealth{Healthy: true, Message: "disabled"}
	case c.larkAdapter.IsRunning():
		status.Components["lark_card_actions"] = ComponentHealth{Healthy: true}
	default:
		status.Components["lark_card_actions"] = ComponentHealth{Healthy: false, Message: "not connected"}
	}

	// Check dispatcher
	if c.dispatcher != nil {
		status.Components["dispatcher"] = ComponentHealth{Healthy: true}
	} else {
		status.Components["dispatcher"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	return status
}

// initDatabase initializes the database and all repositories using providers.
func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.rawDB = dbBundle.Raw
	c.db = dbBundle.TransactionMgr

	repos, err := ProvideRepositories(c.db, c.logger)
	if err != nil {
		c.closeDatabase()
		return err
	}

	c.repositories = repos
	return nil
}

// initExternal initializes the assessor, notifier, idempotency store and metrics.
func (c *Container) initExternal() error {
	assessor, err := ProvideRiskAssessor(&c.config.OpenAI, c.logger.Named("openai"))
	if err != nil {
		return err
	}
	c.assessor = assessor

	c.notifier = ProvideNotifier(&c.config.Lark, c.logger.Named("lark"))
	c.idempotency = ProvideIdempotencyStore(&c.config.Redis, c.logger.Named("redis"))
	c.metrics = ProvideMetrics()

	return nil
}

// initDispatcherAndEngine initializes the event dispatcher and the escrow engine.
func (c *Container) initDispatcherAndEngine() error {
	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp

	engine, err := ProvideEngine(&EngineDeps{
		Repos:      c.repositories,
		TxManager:  c.db,
		Dispatcher: c.dispatcher,
		Metrics:    c.metrics,
		Risk:       &c.config.Risk,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.engine = engine

	return nil
}

// initServices creates the application services and subscribes them to lifecycle events.
func (c *Container) initServices() error {
	services, err := ProvideServices(&ServiceDeps{
		Engine:   c.engine,
		Repos:    c.repositories,
		Assessor: c.assessor,
		Notifier: c.notifier,
		Metrics:  c.metrics,
		Risk:     &c.config.Risk,
		Logger:   c.logger,
	})
	if err != nil {
		return err
	}

	services.Assessment.Register(c.dispatcher)
	services.Notification.Register(c.dispatcher)

	c.services = services
	return nil
}

// initWorkers initializes and starts all background workers using providers.
func (c *Container) initWorkers() error {
	workers, err := ProvideWorkers(&WorkerDeps{
		Repos:     c.repositories,
		Engine:    c.engine,
		WorkerCfg: &c.config.Worker,
		Logger:    c.logger.Named("worker"),
	})
	if err != nil {
		return err
	}
	c.workers = workers

	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	return nil
}

// startLarkAdapter runs the card action adapter until the container context ends.
func (c *Container) startLarkAdapter() {
	c.larkAdapter = ProvideLarkAdapter(&c.config.Lark, c.engine, c.logger.Named("lark_ws"))
	if c.larkAdapter == nil {
		return
	}

	adapter := c.larkAdapter
	ctx := c.ctx
	go func() {
		if err := adapter.Start(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error("Lark card action adapter exited", zap.Error(err))
		}
	}()
	c.logger.Info("Lark card action adapter started")
}

func (c *Container) closeDatabase() {
	if c.rawDB != nil {
		_ = c.rawDB.Close()
		c.rawDB = nil
	}
}

// Getters for accessing container components

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// RiskAssessor returns the risk assessor, nil when disabled.
func (c *Container) RiskAssessor() port.RiskAssessor {
	return c.assessor
}

// Notifier returns the admin notifier.
func (c *Container) Notifier() port.Notifier {
	return c.notifier
}

// IdempotencyStore returns the idempotency store, nil when redis is not configured.
func (c *Container) IdempotencyStore() port.IdempotencyStore {
	if c.idempotency == nil {
		return nil
	}
	return c.idempotency
}

// Metrics returns the prometheus collector.
func (c *Container) Metrics() *metrics.Collector {
	return c.metrics
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Engine returns the escrow engine.
func (c *Container) Engine() workflow.EscrowEngine {
	return c.engine
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.WorkerManager {
	return c.workers
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}
