package main

import (
	"fmt"

	"github.com/lorrc/service-desk-workflow/internal/app"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	"github.com/spf13/cobra"
)

func newSLACmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sla",
		Short: "Operate on SLA timers",
	}
	cmd.AddCommand(newSLASweepCmd())
	return cmd
}

func newSLASweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Record breaches for every overdue running timer once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			storage, logger, err := openStorage(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer storage.Close()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			engine := app.NewEngine(storage, app.SettingsFromConfig(cfg.Workflow), app.EngineDeps{
				Clock:  domain.SystemClock{},
				Logger: logger,
			})
			defer engine.Shutdown()

			count, err := engine.SLAs.SweepBreaches(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d timer(s) newly breached\n", count)
			return nil
		},
	}
}
