// Package app wires storage adapters and engine services from configuration.
// Both the API server and the admin CLI build on it.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/lorrc/service-desk-workflow/internal/adapters/secondary/memory"
	"github.com/lorrc/service-desk-workflow/internal/adapters/secondary/postgres"
	"github.com/lorrc/service-desk-workflow/internal/adapters/secondary/redis"
	"github.com/lorrc/service-desk-workflow/internal/config"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
	"github.com/lorrc/service-desk-workflow/internal/core/services"
	"github.com/lorrc/service-desk-workflow/internal/workflowdef"
)

// Storage is the selected persistence backend behind the engine ports.
type Storage struct {
	Driver string

	Tickets     ports.TicketRepository
	Workflows   ports.WorkflowRepository
	Approvals   ports.ApprovalRepository
	SLAs        ports.SLARepository
	Definitions ports.SLADefinitionRepository
	History     ports.HistoryRepository
	Comments    ports.CommentRepository
	Activity    ports.ActivityRepository
	Directory   ports.UserDirectory
	TxManager   ports.TransactionManager

	// Seeder writes tenant data from definition files.
	Seeder workflowdef.Seeder

	// Pool is nil for the memory driver; Redis is nil when the cache is disabled.
	Pool  *pgxpool.Pool
	Redis *goredis.Client
}

// OpenStorage connects the configured backend. The memory driver is loaded with the
// built-in workflows and then with WORKFLOW_SEED_FILE when one is configured.
func OpenStorage(ctx context.Context, cfg *config.Config, clock domain.Clock, logger *slog.Logger) (*Storage, error) {
	var (
		s   *Storage
		err error
	)
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		s, err = openMemory(ctx, cfg, clock, logger)
	default:
		s, err = openPostgres(ctx, cfg.Database, logger)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Redis.Enabled() {
		client, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Redis = client
		s.Workflows = redis.NewWorkflowCache(s.Workflows, client, cfg.Redis.CacheTTL, logger)
		logger.Info("workflow cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}
	return s, nil
}

func openPostgres(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*Storage, error) {
	if cfg.AutoMigrate {
		if err := postgres.MigrateUp(cfg.URL); err != nil {
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		logger.Info("database migrations applied")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	logger.Info("database connection established")

	repos := postgres.NewRepositories(pool)
	return &Storage{
		Driver:      config.StoragePostgres,
		Tickets:     repos.Tickets,
		Workflows:   repos.Workflows,
		Approvals:   repos.Approvals,
		SLAs:        repos.SLAs,
		Definitions: repos.Definitions,
		History:     repos.History,
		Comments:    repos.Comments,
		Activity:    repos.Activity,
		Directory:   repos.Directory,
		TxManager:   repos.TxManager,
		Seeder: workflowdef.Seeder{
			Tickets:     repos.Tickets,
			Definitions: repos.Definitions,
			Users:       repos.Directory,
		},
		Pool: pool,
	}, nil
}

func openMemory(ctx context.Context, cfg *config.Config, clock domain.Clock, logger *slog.Logger) (*Storage, error) {
	repos := memory.NewRepositories(memory.NewStore(clock))
	s := &Storage{
		Driver:      config.StorageMemory,
		Tickets:     repos.Tickets,
		Workflows:   repos.Workflows,
		Approvals:   repos.Approvals,
		SLAs:        repos.SLAs,
		Definitions: repos.Definitions,
		History:     repos.History,
		Comments:    repos.Comments,
		Activity:    repos.Activity,
		Directory:   repos.Directory,
		TxManager:   repos.TxManager,
		Seeder: workflowdef.Seeder{
			Tickets:     repos.Tickets,
			Definitions: repos.Definitions,
			Users:       repos.Directory,
		},
	}

	workflows := services.NewWorkflowService(repos.Workflows, logger)
	defaults, err := workflowdef.Defaults()
	if err != nil {
		return nil, fmt.Errorf("load built-in workflows: %w", err)
	}
	if _, err := defaults.ImportWorkflows(ctx, workflows, true); err != nil {
		return nil, err
	}

	if cfg.Storage.SeedFile != "" {
		bundle, err := workflowdef.LoadFile(cfg.Storage.SeedFile)
		if err != nil {
			return nil, err
		}
		if _, err := bundle.ImportWorkflows(ctx, workflows, true); err != nil {
			return nil, err
		}
		res, err := s.Seeder.Seed(ctx, bundle)
		if err != nil {
			return nil, err
		}
		logger.Info("memory store seeded",
			"file", cfg.Storage.SeedFile,
			"workflows", len(bundle.Workflows),
			"users", res.Users,
			"sla_definitions", res.SLADefinitions,
			"tickets", res.Tickets,
		)
	}

	logger.Warn("using in-memory storage; state is lost on restart")
	return s, nil
}

// Close releases the backend connections.
func (s *Storage) Close() {
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.Pool != nil {
		s.Pool.Close()
	}
}

// SettingsFromConfig maps the workflow configuration section onto engine settings.
func SettingsFromConfig(cfg config.WorkflowConfig) services.Settings {
	return services.Settings{
		SuperuserRole:       cfg.SuperuserRole,
		DefaultApprovalRole: cfg.DefaultApprovalRole,
		ApprovalPoolSize:    cfg.ApprovalPoolSize,
		AtRiskThreshold:     cfg.AtRiskThreshold,
		ResolvedStatuses:    cfg.ResolvedStatuses,
	}
}

// EngineDeps are the collaborators the engine pushes side effects to. Both may be nil.
type EngineDeps struct {
	Notifier    ports.Notifier
	Broadcaster ports.EventBroadcaster
	Clock       domain.Clock
	Logger      *slog.Logger
}

// Engine groups the engine services over one storage backend.
type Engine struct {
	Workflows   *services.WorkflowService
	SLAs        *services.SLAService
	Approvals   *services.ApprovalService
	Transitions *services.TransitionService
}

// NewEngine builds the services. The SLA service observes every committed ticket change.
func NewEngine(s *Storage, settings services.Settings, deps EngineDeps) *Engine {
	slas := services.NewSLAService(services.SLAServiceDeps{
		Tickets:     s.Tickets,
		SLAs:        s.SLAs,
		Definitions: s.Definitions,
		Policy:      services.NewSLAPolicy(s.Definitions),
		Comments:    s.Comments,
		Activity:    s.Activity,
		TxManager:   s.TxManager,
		Broadcaster: deps.Broadcaster,
		Clock:       deps.Clock,
		Logger:      deps.Logger,
	}, settings)

	observers := []ports.TicketObserver{slas}
	approvals := services.NewApprovalService(services.ApprovalServiceDeps{
		Tickets:     s.Tickets,
		Workflows:   s.Workflows,
		Approvals:   s.Approvals,
		History:     s.History,
		Comments:    s.Comments,
		Activity:    s.Activity,
		Directory:   s.Directory,
		TxManager:   s.TxManager,
		Notifier:    deps.Notifier,
		Broadcaster: deps.Broadcaster,
		Observers:   observers,
		Clock:       deps.Clock,
		Logger:      deps.Logger,
	}, settings)

	transitions := services.NewTransitionService(services.TransitionServiceDeps{
		Tickets:     s.Tickets,
		Workflows:   s.Workflows,
		History:     s.History,
		Comments:    s.Comments,
		Activity:    s.Activity,
		Approvals:   approvals,
		TxManager:   s.TxManager,
		Notifier:    deps.Notifier,
		Broadcaster: deps.Broadcaster,
		Observers:   observers,
		Clock:       deps.Clock,
		Logger:      deps.Logger,
	}, settings)

	return &Engine{
		Workflows:   services.NewWorkflowService(s.Workflows, deps.Logger),
		SLAs:        slas,
		Approvals:   approvals,
		Transitions: transitions,
	}
}

// Shutdown waits for in-flight side effects of every service.
func (e *Engine) Shutdown() {
	e.Transitions.Shutdown()
	e.Approvals.Shutdown()
	e.SLAs.Shutdown()
}
