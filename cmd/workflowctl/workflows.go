package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
	"github.com/lorrc/service-desk-workflow/internal/core/services"
	"github.com/lorrc/service-desk-workflow/internal/workflowdef"
	"github.com/spf13/cobra"
)

func newWorkflowsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workflows",
		Aliases: []string{"wf"},
		Short:   "Manage workflow definitions",
	}
	cmd.AddCommand(newWorkflowsImportCmd(), newWorkflowsListCmd(), newWorkflowsValidateCmd())
	return cmd
}

func newWorkflowsImportCmd() *cobra.Command {
	var activate bool

	cmd := &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Store every workflow of a definition file as a new version",
		Long: `Store every workflow of a definition file as a new version. With --activate
the new versions replace the active workflow of their ticket type; tickets
already in flight keep their status and follow the new graph from there.`,
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

			saved, err := bundle.ImportWorkflows(cmd.Context(), services.NewWorkflowService(storage.Workflows, logger), activate)
			if err != nil {
				return err
			}
			return printWorkflows(cmd.OutOrStdout(), saved)
		},
	}

	cmd.Flags().BoolVar(&activate, "activate", false, "Make the imported versions active")
	return cmd
}

func newWorkflowsListCmd() *cobra.Command {
	var (
		ticketType string
		activeOnly bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored workflow versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := ports.ListWorkflowsParams{ActiveOnly: activeOnly}
			if ticketType != "" {
				tt := domain.TicketType(ticketType)
				if !tt.IsValid() {
					return fmt.Errorf("unknown ticket type %q", ticketType)
				}
				params.TicketType = &tt
			}

			storage, logger, err := openStorage(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer storage.Close()

			workflows, err := services.NewWorkflowService(storage.Workflows, logger).List(cmd.Context(), params)
			if err != nil {
				return err
			}
			return printWorkflows(cmd.OutOrStdout(), workflows)
		},
	}

	cmd.Flags().StringVar(&ticketType, "type", "", "Only list workflows for this ticket type")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only list active versions")
	return cmd
}

func newWorkflowsValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file.yaml>",
		Short: "Parse and validate a definition file without storing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bundle, err := workflowdef.LoadFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d workflow(s), %d SLA definition(s), %d user(s), %d ticket(s)\n",
				args[0], len(bundle.Workflows), len(bundle.SLADefinitions), len(bundle.Users), len(bundle.Tickets))
			return nil
		},
	}
}

func printWorkflows(out io.Writer, workflows []*domain.Workflow) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tNAME\tVERSION\tACTIVE\tSTATUSES\tTRANSITIONS")
	for _, wf := range workflows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%t\t%s\t%d\n",
			wf.ID, wf.TicketType, wf.Name, wf.Version, wf.IsActive,
			strings.Join(wf.Statuses, ","), len(wf.Transitions))
	}
	return tw.Flush()
}
