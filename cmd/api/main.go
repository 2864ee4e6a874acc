package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpAdapter "github.com/lorrc/service-desk-workflow/internal/adapters/primary/http"
	mw "github.com/lorrc/service-desk-workflow/internal/adapters/primary/http/middleware"
	"github.com/lorrc/service-desk-workflow/internal/adapters/primary/websocket"
	"github.com/lorrc/service-desk-workflow/internal/adapters/secondary/email"
	"github.com/lorrc/service-desk-workflow/internal/app"
	"github.com/lorrc/service-desk-workflow/internal/auth"
	"github.com/lorrc/service-desk-workflow/internal/config"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	"github.com/lorrc/service-desk-workflow/internal/core/services"
	"github.com/lorrc/service-desk-workflow/internal/infrastructure/logging"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})
	slog.SetDefault(logger)

	logger.Info("starting service",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
		"config", cfg.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Open Storage
	clock := domain.SystemClock{}
	storage, err := app.OpenStorage(ctx, cfg, clock, logger)
	if err != nil {
		logger.Error("failed to open storage", "driver", cfg.Storage.Driver, "error", err)
		os.Exit(1)
	}
	defer storage.Close()

	// 4. Initialize Security & Real-time Components
	tokenManager := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)
	hub := websocket.NewHub(storage.Tickets, logger)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	// 5. Engine Services
	notifier := services.Notifiers{
		email.NewMockSMTPNotifier(storage.Directory, logger),
		hub,
	}
	engine := app.NewEngine(storage, app.SettingsFromConfig(cfg.Workflow), app.EngineDeps{
		Notifier:    notifier,
		Broadcaster: hub,
		Clock:       clock,
		Logger:      logger,
	})

	sweeperDone := make(chan struct{})
	if cfg.Workflow.SweepInterval > 0 {
		sweeper := services.NewBreachSweeper(engine.SLAs, cfg.Workflow.SweepInterval, logger)
		go func() {
			defer close(sweeperDone)
			sweeper.Run(ctx)
		}()
	} else {
		close(sweeperDone)
	}

	// 6. HTTP Surface
	var rateLimiter *mw.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = mw.NewRateLimiter(mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.RateLimit.BurstSize,
			CleanupInterval:   time.Minute,
			TTL:               3 * time.Minute,
		})
		defer rateLimiter.Stop()
	}

	checks := map[string]httpAdapter.HealthChecker{}
	if storage.Pool != nil {
		checks["database"] = storage.Pool
	}
	if storage.Redis != nil {
		checks["redis"] = httpAdapter.HealthCheckFunc(func(ctx context.Context) error {
			return storage.Redis.Ping(ctx).Err()
		})
	}

	router := httpAdapter.NewRouter(httpAdapter.RouterDeps{
		Logger:       logger,
		TokenManager: tokenManager,
		CORS:         cfg.CORS,
		RateLimiter:  rateLimiter,
		Transitions:  engine.Transitions,
		Approvals:    engine.Approvals,
		SLAs:         engine.SLAs,
		Workflows:    engine.Workflows,
		Health:       httpAdapter.NewHealthHandler(checks, hub, cfg.App.Version),
		WebSocket:    httpAdapter.NewWebSocketHandler(hub, tokenManager, cfg.WebSocket, cfg.IsDevelopment(), logger),
	})

	// 7. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port, "storage", storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("server error", "error", err)
		exitCode = 1
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		exitCode = 1
	}

	<-sweeperDone
	engine.Shutdown()
	stopHub()

	logger.Info("server shutdown complete")
	if exitCode != 0 {
		storage.Close()
		os.Exit(exitCode)
	}
}
