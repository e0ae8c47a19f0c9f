package container

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/escrow-engine/internal/application/dispatcher"
	"github.com/garyjia/escrow-engine/internal/application/port"
	"github.com/garyjia/escrow-engine/internal/application/service"
	"github.com/garyjia/escrow-engine/internal/application/workflow"
	"github.com/garyjia/escrow-engine/internal/infrastructure/cache"
	"github.com/garyjia/escrow-engine/internal/infrastructure/export"
	infraLark "github.com/garyjia/escrow-engine/internal/infrastructure/external/lark"
	"github.com/garyjia/escrow-engine/internal/infrastructure/external/openai"
	"github.com/garyjia/escrow-engine/internal/infrastructure/persistence/repository"
	"github.com/garyjia/escrow-engine/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/escrow-engine/internal/infrastructure/worker"
	"github.com/garyjia/escrow-engine/internal/interfaces/websocket"
	"github.com/garyjia/escrow-engine/migrations"
	"github.com/garyjia/escrow-engine/pkg/database"
	"github.com/garyjia/escrow-engine/pkg/metrics"
	"github.com/garyjia/escrow-engine/pkg/utils"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Raw            *database.DB
	TransactionMgr *sqlite.DB
}

// ProvideDatabase opens the sqlite database, applies pending migrations and
// wraps the pool in a context-aware transaction manager.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	raw, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	migrator := database.NewMigrator(raw, logger)
	if cfg.MigrationsDir != "" {
		err = migrator.RunMigrations(cfg.MigrationsDir)
	} else {
		err = migrator.RunMigrationsFS(migrations.FS)
	}
	if err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		Raw:            raw,
		TransactionMgr: sqlite.NewDB(raw.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories on top of the transaction manager.
func ProvideRepositories(db *sqlite.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Transaction: repository.NewTransactionRepository(db, logger),
		History:     repository.NewHistoryRepository(db, logger),
		Product:     repository.NewProductRepository(db, logger),
	}, nil
}

// ProvideRiskAssessor creates the OpenAI-backed assessor.
// It returns nil without an API key; assessments then fall back to manual review.
func ProvideRiskAssessor(cfg *OpenAIConfig, logger *zap.Logger) (port.RiskAssessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("openai config is required")
	}
	if cfg.APIKey == "" {
		logger.Warn("OpenAI API key not configured, risk assessments will go to manual review")
		return nil, nil
	}

	prompts := openai.DefaultPrompts()
	if cfg.PromptsPath != "" {
		loaded, err := openai.LoadPrompts(cfg.PromptsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load prompts: %w", err)
		}
		prompts = loaded
	}

	return openai.NewRiskAssessor(openai.Config{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}, prompts, logger), nil
}

// ProvideNotifier creates the Lark admin-chat notifier, or a log-only
// notifier when Lark is not configured.
func ProvideNotifier(cfg *LarkConfig, logger *zap.Logger) port.Notifier {
	larkCfg := infraLark.Config{
		AppID:       cfg.AppID,
		AppSecret:   cfg.AppSecret,
		AdminChatID: cfg.AdminChatID,
		BaseURL:     cfg.BaseURL,
	}
	if !larkCfg.Enabled() {
		logger.Warn("Lark not configured, notifications will only be logged")
		return infraLark.NewLogNotifier(logger)
	}
	return infraLark.NewNotifierFromConfig(larkCfg, logger)
}

// ProvideLarkAdapter creates the card action adapter. It returns nil unless
// card actions are switched on and Lark credentials are present.
func ProvideLarkAdapter(cfg *LarkConfig, engine websocket.AdminProcessor, logger *zap.Logger) *websocket.LarkAdapter {
	if !cfg.CardActions || cfg.AppID == "" || cfg.AppSecret == "" {
		return nil
	}
	if len(cfg.Admins) == 0 {
		logger.Warn("Lark card actions enabled without admins, ignoring")
		return nil
	}
	return websocket.NewLarkAdapter(websocket.LarkAdapterConfig{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
		Admins:    cfg.Admins,
	}, engine, logger)
}

// ProvideIdempotencyStore connects the redis store. It returns nil when no
// address is configured, which disables Idempotency-Key handling.
func ProvideIdempotencyStore(cfg *RedisConfig, logger *zap.Logger) *cache.IdempotencyStore {
	if cfg.Addr == "" {
		logger.Warn("Redis not configured, Idempotency-Key headers will be ignored")
		return nil
	}
	client := cache.NewRedisClient(cache.RedisConfig{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return cache.NewIdempotencyStore(client, cfg.IdempotencyTTL, logger)
}

// ProvideMetrics creates the prometheus collector.
func ProvideMetrics() *metrics.Collector {
	return metrics.NewCollector()
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(utils.NewKVLogger(logger.Named("dispatcher"))),
	), nil
}

// EngineDeps holds dependencies required for creating the escrow engine.
type EngineDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Metrics    port.EngineMetrics
	Risk       *RiskConfig
	Logger     *zap.Logger
}

// ProvideEngine creates the escrow lifecycle engine.
func ProvideEngine(deps *EngineDeps) (workflow.EscrowEngine, error) {
	if deps == nil {
		return nil, fmt.Errorf("engine dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	opts := []workflow.EngineOption{
		workflow.WithLogger(utils.NewKVLogger(deps.Logger.Named("engine"))),
		workflow.WithRiskPolicy(deps.Risk.Policy),
	}
	if deps.Dispatcher != nil {
		opts = append(opts, workflow.WithDispatcher(deps.Dispatcher))
	}
	if deps.Metrics != nil {
		opts = append(opts, workflow.WithMetrics(deps.Metrics))
	}

	return workflow.NewEngine(
		deps.Repos.Transaction,
		deps.Repos.History,
		deps.Repos.Product,
		deps.TxManager,
		opts...,
	), nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Engine   workflow.EscrowEngine
	Repos    *RepositoryBundle
	Assessor port.RiskAssessor
	Notifier port.Notifier
	Metrics  port.EngineMetrics
	Risk     *RiskConfig
	Logger   *zap.Logger
}

// ProvideServices creates all application services. Event-driven services
// are subscribed to the dispatcher by the caller.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.Notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serviceLogger := utils.NewKVLogger(deps.Logger.Named("service"))

	return &ServiceBundle{
		Assessment: service.NewAssessmentService(
			deps.Engine,
			deps.Repos.Transaction,
			deps.Repos.Product,
			deps.Assessor,
			deps.Metrics,
			deps.Risk.AssessmentTimeout,
			serviceLogger,
		),
		Notification: service.NewNotificationService(
			deps.Repos.Transaction,
			deps.Notifier,
			deps.Risk.Policy,
			serviceLogger,
		),
		Report: service.NewReportService(
			deps.Engine,
			export.NewExcelReportWriter(deps.Logger),
			serviceLogger,
		),
	}, nil
}

// WorkerDeps holds dependencies required for creating workers.
type WorkerDeps struct {
	Repos     *RepositoryBundle
	Engine    workflow.EscrowEngine
	WorkerCfg *WorkerConfig
	Logger    *zap.Logger
}

// ProvideWorkers creates the worker manager with all background workers registered.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}
	if deps.Repos == nil || deps.Engine == nil {
		return nil, fmt.Errorf("repositories and engine are required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewWorkerManager(deps.Logger)

	sweeperCfg := worker.DefaultSweeperConfig()
	if deps.WorkerCfg != nil {
		sweeperCfg.Interval = deps.WorkerCfg.SweepInterval
		sweeperCfg.StaleAfter = deps.WorkerCfg.SweepStaleAfter
		sweeperCfg.BatchSize = deps.WorkerCfg.SweepBatchSize
		if deps.WorkerCfg.SweepProcessTimeout > 0 {
			sweeperCfg.ProcessTimeout = deps.WorkerCfg.SweepProcessTimeout
		}
	}
	manager.Register(worker.NewAssessmentSweeper(sweeperCfg, deps.Repos.Transaction, deps.Engine, deps.Logger))

	return manager, nil
}
