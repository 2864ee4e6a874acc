package main

import (
	"fmt"

	"github.com/lorrc/service-desk-workflow/internal/core/services"
	"github.com/lorrc/service-desk-workflow/internal/workflowdef"
	"github.com/spf13/cobra"
)

func newSeedCmd() *cobra.Command {
	var skipWorkflows bool

	cmd := &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Load workflows and tenant data from a definition file",
		Long: `Load a definition file: its workflows are imported and activated, then its
users, SLA definitions and tickets are written for the file's organization_id.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bundle, err := workflowdef.LoadFile(args[0])
			if err != nil {
				return err
			}

			storage, logger, err := openStorage(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer storage.Close()

			if !skipWorkflows {
				if _, err := bundle.ImportWorkflows(cmd.Context(), services.NewWorkflowService(storage.Workflows, logger), true); err != nil {
					return err
				}
			}

			res, err := storage.Seeder.Seed(cmd.Context(), bundle)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d user(s), %d SLA definition(s), %d ticket(s)\n",
				res.Users, res.SLADefinitions, res.Tickets)
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipWorkflows, "skip-workflows", false, "Only write tenant data")
	return cmd
}
