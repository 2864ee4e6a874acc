package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
)

// TicketRepository reads and writes the workflow-relevant columns of tickets.
type TicketRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	// GetForUpdate locks the ticket for the rest of the surrounding transaction.
	GetForUpdate(ctx context.Context, id int64) (*domain.Ticket, error)
	Update(ctx context.Context, ticket *domain.Ticket) error
}

// ListWorkflowsParams filters workflow listings.
type ListWorkflowsParams struct {
	TicketType *domain.TicketType
	ActiveOnly bool
}

// WorkflowRepository is the workflow definition store.
type WorkflowRepository interface {
	GetActiveByType(ctx context.Context, ticketType domain.TicketType) (*domain.Workflow, error)
	GetByID(ctx context.Context, id int64) (*domain.Workflow, error)
	GetTransition(ctx context.Context, transitionID int64) (*domain.Transition, error)
	List(ctx context.Context, params ListWorkflowsParams) ([]*domain.Workflow, error)
	// Save stores a new workflow version. When activate is set, it replaces the
	// active workflow for its ticket type.
	Save(ctx context.Context, workflow *domain.Workflow, activate bool) (*domain.Workflow, error)
}

// ApprovalRepository persists approvals and their responses.
type ApprovalRepository interface {
	Create(ctx context.Context, approval *domain.TicketApproval) (*domain.TicketApproval, error)
	GetByID(ctx context.Context, id int64) (*domain.TicketApproval, error)
	GetForUpdate(ctx context.Context, id int64) (*domain.TicketApproval, error)
	Update(ctx context.Context, approval *domain.TicketApproval) error
	CreateResponse(ctx context.Context, response *domain.ApprovalResponse) (*domain.ApprovalResponse, error)
	HasResponded(ctx context.Context, approvalID int64, userID uuid.UUID) (bool, error)
	CountApproved(ctx context.Context, approvalID int64) (int, error)
	ListResponses(ctx context.Context, approvalID int64) ([]*domain.ApprovalResponse, error)
	// ListPendingForUser returns pending approvals the user must answer and has not.
	ListPendingForUser(ctx context.Context, userID uuid.UUID) ([]*domain.TicketApproval, error)
}

// ListBreachesParams filters the breach report.
type ListBreachesParams struct {
	OrganizationID uuid.UUID
	Since          time.Time
	TicketType     *domain.TicketType
	Priority       *domain.TicketPriority
	Limit          int
	Offset         int
}

// SLARepository persists timers and their pause history.
type SLARepository interface {
	Create(ctx context.Context, sla *domain.TicketSLA) (*domain.TicketSLA, error)
	GetByID(ctx context.Context, id int64) (*domain.TicketSLA, error)
	GetForUpdate(ctx context.Context, id int64) (*domain.TicketSLA, error)
	Update(ctx context.Context, sla *domain.TicketSLA) error
	// ActiveForTicket returns the newest timer for the ticket that is not completed.
	ActiveForTicket(ctx context.Context, ticketID int64) (*domain.TicketSLA, error)
	ListByTicket(ctx context.Context, ticketID int64) ([]*domain.TicketSLA, error)
	// ListRunning returns in-progress timers; a nil organization means every tenant.
	ListRunning(ctx context.Context, orgID *uuid.UUID) ([]*domain.TicketSLAView, error)
	ListBreached(ctx context.Context, params ListBreachesParams) ([]*domain.TicketSLAView, error)

	CreatePauseEvent(ctx context.Context, event *domain.SLAPauseEvent) (*domain.SLAPauseEvent, error)
	OpenPauseEvent(ctx context.Context, slaID int64) (*domain.SLAPauseEvent, error)
	UpdatePauseEvent(ctx context.Context, event *domain.SLAPauseEvent) error
	ListPauseEvents(ctx context.Context, slaID int64) ([]*domain.SLAPauseEvent, error)
}

// ListSLADefinitionsParams filters a tenant's SLA definitions. A type filter matches
// that type exactly; type-less definitions only appear unfiltered.
type ListSLADefinitionsParams struct {
	TicketType *domain.TicketType
	Active     *bool
}

// SLADefinitionRepository reads a tenant's SLA definitions.
type SLADefinitionRepository interface {
	// FindApplicable returns the most specific active definition for a ticket.
	FindApplicable(ctx context.Context, orgID uuid.UUID, ticketType domain.TicketType, priority domain.TicketPriority) (*domain.SLADefinition, error)
	// List orders by ticket type (type-less first), then priority, then id.
	List(ctx context.Context, orgID uuid.UUID, params ListSLADefinitionsParams) ([]*domain.SLADefinition, error)
}

// HistoryRepository stores the transition log.
type HistoryRepository interface {
	Create(ctx context.Context, entry *domain.TransitionHistory) (*domain.TransitionHistory, error)
	ListByTicket(ctx context.Context, ticketID int64) ([]*domain.TransitionHistory, error)
}

// CommentRepository is the comment store collaborator.
type CommentRepository interface {
	Create(ctx context.Context, comment *domain.Comment) (*domain.Comment, error)
	ListByTicket(ctx context.Context, ticketID int64) ([]*domain.Comment, error)
}

// ActivityRepository is the audit sink.
type ActivityRepository interface {
	Create(ctx context.Context, activity *domain.Activity) error
}

// UserDirectory is the identity collaborator.
type UserDirectory interface {
	// FindByRole returns up to limit active users of the organization holding role,
	// in a stable order.
	FindByRole(ctx context.Context, orgID uuid.UUID, role string, limit int) ([]uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.DirectoryUser, error)
}
