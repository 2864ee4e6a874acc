// Package main provides workflowctl, the admin CLI for the workflow engine. It talks
// to the configured storage directly.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lorrc/service-desk-workflow/internal/app"
	"github.com/lorrc/service-desk-workflow/internal/config"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	"github.com/lorrc/service-desk-workflow/internal/infrastructure/logging"
	"github.com/spf13/cobra"
)

var (
	version = "dev"

	// Global flags
	databaseURL string
	logLevel    string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "workflowctl",
		Short:         "Administer the service desk workflow engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&databaseURL, "database-url", "", "Postgres URL (overrides DATABASE_URL)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	root.AddCommand(
		newMigrateCmd(),
		newWorkflowsCmd(),
		newSLACmd(),
		newSeedCmd(),
	)
	return root
}

// loadConfig reads the environment and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	if databaseURL != "" {
		if err := os.Setenv("DATABASE_URL", databaseURL); err != nil {
			return nil, err
		}
		if err := os.Setenv("STORAGE_DRIVER", config.StoragePostgres); err != nil {
			return nil, err
		}
	}
	return config.LoadForTooling()
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.NewLogger(logging.Config{
		Level:       logLevel,
		Format:      "text",
		Output:      os.Stderr,
		ServiceName: "workflowctl",
		Environment: cfg.App.Environment,
	})
}

// openStorage connects the configured backend. Commands that write require
// postgres, since memory state would vanish with the process.
func openStorage(ctx context.Context, writes bool) (*app.Storage, *slog.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if writes && cfg.Storage.Driver != config.StoragePostgres {
		return nil, nil, fmt.Errorf("this command requires STORAGE_DRIVER=%s", config.StoragePostgres)
	}

	logger := newLogger(cfg)
	storage, err := app.OpenStorage(ctx, cfg, domain.SystemClock{}, logger)
	if err != nil {
		return nil, nil, err
	}
	return storage, logger, nil
}
