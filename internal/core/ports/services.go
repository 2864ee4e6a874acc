package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
)

// RequestTransitionParams defines the input for firing a workflow transition.
type RequestTransitionParams struct {
	TicketID     int64
	TransitionID int64
	Actor        domain.Actor
	Comment      string
	Metadata     map[string]any
}

// RespondToApprovalParams defines the input for answering an approval.
type RespondToApprovalParams struct {
	ApprovalID int64
	Actor      domain.Actor
	Decision   domain.Decision
	Notes      string
}

// PauseSLAParams defines the input for pausing a timer.
type PauseSLAParams struct {
	SLAID  int64
	Actor  domain.Actor
	Reason string
}

// ListBreachesQuery is the caller-facing breach report filter.
type ListBreachesQuery struct {
	Actor      domain.Actor
	Days       int
	TicketType *domain.TicketType
	Priority   *domain.TicketPriority
	Limit      int
	Offset     int
}

// ApprovalDetails is an approval together with the responses recorded so far.
type ApprovalDetails struct {
	Approval  *domain.TicketApproval
	Responses []*domain.ApprovalResponse
}

// TicketSLAReport is one timer with its pause history, evaluated at read time.
type TicketSLAReport struct {
	SLA         *domain.TicketSLA
	PauseEvents []*domain.SLAPauseEvent
	Breach      domain.BreachStatus
}

// NotificationParams defines the input for sending a notification.
type NotificationParams struct {
	RecipientUserID uuid.UUID
	Subject         string
	Message         string
	TicketID        int64
}

// TransitionService is the transition engine.
type TransitionService interface {
	RequestTransition(ctx context.Context, params RequestTransitionParams) (*domain.TransitionOutcome, error)
	// GetValidTransitions lists the transitions leaving the ticket's status that the
	// actor's role may fire. Field and approval guards are evaluated at request time.
	GetValidTransitions(ctx context.Context, ticketID int64, actor domain.Actor) ([]domain.Transition, error)
	ListHistory(ctx context.Context, ticketID int64, actor domain.Actor) ([]*domain.TransitionHistory, error)
	Shutdown()
}

// ApprovalService is the approval coordinator.
type ApprovalService interface {
	// OpenApproval freezes the approver pool and parks the ticket in awaiting_approval.
	// It joins the caller's transaction when one is active.
	OpenApproval(ctx context.Context, ticketID, transitionID int64, requesterID uuid.UUID) (*domain.TicketApproval, error)
	RespondToApproval(ctx context.Context, params RespondToApprovalParams) (*domain.ApprovalOutcome, error)
	GetApproval(ctx context.Context, approvalID int64, actor domain.Actor) (*ApprovalDetails, error)
	ListPending(ctx context.Context, actor domain.Actor) ([]*domain.TicketApproval, error)
	Shutdown()
}

// SLAService is the SLA timer.
type SLAService interface {
	Start(ctx context.Context, ticketID int64, actor domain.Actor) (*domain.TicketSLA, error)
	Pause(ctx context.Context, params PauseSLAParams) (*domain.TicketSLA, error)
	Resume(ctx context.Context, slaID int64, actor domain.Actor) (*domain.TicketSLA, error)
	CheckBreach(ctx context.Context, slaID int64, actor domain.Actor) (*domain.BreachStatus, error)
	Complete(ctx context.Context, slaID int64, actor domain.Actor) (*domain.TicketSLA, error)
	// Restart supersedes the running timer with a fresh one for the ticket's current priority.
	Restart(ctx context.Context, ticketID int64, actor domain.Actor) (*domain.TicketSLA, error)
	ActiveForTicket(ctx context.Context, ticketID int64, actor domain.Actor) (*domain.TicketSLA, error)
	GetTicketSLAs(ctx context.Context, ticketID int64, actor domain.Actor) ([]*TicketSLAReport, error)
	AtRisk(ctx context.Context, actor domain.Actor, threshold float64) ([]*domain.TicketSLAView, error)
	Breaches(ctx context.Context, query ListBreachesQuery) ([]*domain.TicketSLAView, error)
	// SweepBreaches evaluates every overdue running timer and returns how many newly breached.
	SweepBreaches(ctx context.Context) (int, error)
	// Definitions lists the actor's tenant SLA definitions.
	Definitions(ctx context.Context, actor domain.Actor, params ListSLADefinitionsParams) ([]*domain.SLADefinition, error)
	Shutdown()
}

// WorkflowService exposes the workflow definition store.
type WorkflowService interface {
	List(ctx context.Context, params ListWorkflowsParams) ([]*domain.Workflow, error)
	Get(ctx context.Context, id int64) (*domain.Workflow, error)
	Import(ctx context.Context, workflow *domain.Workflow, activate bool) (*domain.Workflow, error)
}

// SLAPolicy resolves the resolution budget for a ticket.
type SLAPolicy interface {
	ComputeDueTime(ctx context.Context, ticketType domain.TicketType, priority domain.TicketPriority, orgID uuid.UUID) (domain.SLATarget, error)
}

// TicketObserver is told about ticket changes committed by the transition engine.
type TicketObserver interface {
	TicketChanged(ctx context.Context, before, after *domain.Ticket, actor domain.Actor) error
}

// Notifier defines the port for sending asynchronous notifications.
type Notifier interface {
	Notify(ctx context.Context, params NotificationParams)
}

// EventBroadcaster pushes real-time events to subscribed clients.
type EventBroadcaster interface {
	Broadcast(event domain.Event) error
}

// TransactionManager defines the port for running atomic operations.
// Nested calls join the outer transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// DefaultBreachWindow is how far back the breach report looks when no window is given.
const DefaultBreachWindow = 7 * 24 * time.Hour
