package services

import (
	"context"
	"log/slog"

	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
)

// WorkflowService exposes the workflow definition store.
type WorkflowService struct {
	workflows ports.WorkflowRepository
	logger    *slog.Logger
}

var _ ports.WorkflowService = (*WorkflowService)(nil)

// NewWorkflowService creates a new workflow service.
func NewWorkflowService(workflows ports.WorkflowRepository, logger *slog.Logger) *WorkflowService {
	return &WorkflowService{
		workflows: workflows,
		logger:    componentLogger(logger, "workflow_service"),
	}
}

func (s *WorkflowService) List(ctx context.Context, params ports.ListWorkflowsParams) ([]*domain.Workflow, error) {
	return s.workflows.List(ctx, params)
}

func (s *WorkflowService) Get(ctx context.Context, id int64) (*domain.Workflow, error) {
	return s.workflows.GetByID(ctx, id)
}

// Import validates a definition and stores it as a new version.
func (s *WorkflowService) Import(ctx context.Context, workflow *domain.Workflow, activate bool) (*domain.Workflow, error) {
	if err := workflow.Validate(); err != nil {
		return nil, err
	}

	saved, err := s.workflows.Save(ctx, workflow, activate)
	if err != nil {
		return nil, err
	}

	s.logger.Info("workflow imported",
		"workflow_id", saved.ID,
		"name", saved.Name,
		"ticket_type", saved.TicketType,
		"version", saved.Version,
		"active", saved.IsActive,
	)
	return saved, nil
}
