package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-workflow/internal/core/errors"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
)

// DefinitionPolicy resolves SLA budgets from tenant definitions and falls back to
// the built-in per-priority budgets.
type DefinitionPolicy struct {
	definitions ports.SLADefinitionRepository
}

var _ ports.SLAPolicy = (*DefinitionPolicy)(nil)

// NewSLAPolicy creates a policy backed by the definition store. A nil store means
// built-in budgets only.
func NewSLAPolicy(definitions ports.SLADefinitionRepository) *DefinitionPolicy {
	return &DefinitionPolicy{definitions: definitions}
}

// ComputeDueTime picks the most specific active definition for the ticket.
func (p *DefinitionPolicy) ComputeDueTime(ctx context.Context, ticketType domain.TicketType, priority domain.TicketPriority, orgID uuid.UUID) (domain.SLATarget, error) {
	if p.definitions != nil {
		def, err := p.definitions.FindApplicable(ctx, orgID, ticketType, priority)
		switch {
		case err == nil:
			id := def.ID
			return domain.SLATarget{
				DefinitionID: &id,
				Name:         def.Name,
				Budget:       time.Duration(def.ResolutionMinutes) * time.Minute,
			}, nil
		case !errors.Is(err, apperrors.ErrNotFound):
			return domain.SLATarget{}, err
		}
	}

	budget, ok := domain.DefaultSLABudgets[priority]
	if !ok {
		budget = domain.DefaultSLABudgets[domain.PriorityMedium]
	}
	return domain.SLATarget{
		Name:   fmt.Sprintf("default %s", priority),
		Budget: budget,
	}, nil
}
