package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-workflow/internal/core/errors"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
)

// TransitionServiceDeps groups the collaborators of the transition engine.
type TransitionServiceDeps struct {
	Tickets     ports.TicketRepository
	Workflows   ports.WorkflowRepository
	History     ports.HistoryRepository
	Comments    ports.CommentRepository
	Activity    ports.ActivityRepository
	Approvals   ports.ApprovalService
	TxManager   ports.TransactionManager
	Notifier    ports.Notifier
	Broadcaster ports.EventBroadcaster
	Observers   []ports.TicketObserver
	Clock       domain.Clock
	Logger      *slog.Logger
}

// TransitionService is the transition engine. It validates a requested transition
// against the ticket's active workflow and either applies it or parks it for approval.
type TransitionService struct {
	tickets   ports.TicketRepository
	workflows ports.WorkflowRepository
	history   ports.HistoryRepository
	approvals ports.ApprovalService
	txManager ports.TransactionManager
	observers []ports.TicketObserver
	applier   *transitionApplier
	effects   *effectDispatcher
	settings  Settings
	logger    *slog.Logger
}

var _ ports.TransitionService = (*TransitionService)(nil)

// NewTransitionService creates the transition engine.
func NewTransitionService(deps TransitionServiceDeps, settings Settings) *TransitionService {
	clock := deps.Clock
	if clock == nil {
		clock = domain.SystemClock{}
	}
	logger := componentLogger(deps.Logger, "transition_service")

	return &TransitionService{
		tickets:   deps.Tickets,
		workflows: deps.Workflows,
		history:   deps.History,
		approvals: deps.Approvals,
		txManager: deps.TxManager,
		observers: deps.Observers,
		applier: &transitionApplier{
			tickets:  deps.Tickets,
			history:  deps.History,
			comments: deps.Comments,
			clock:    clock,
		},
		effects:  newEffectDispatcher(deps.Activity, deps.Notifier, deps.Broadcaster, logger),
		settings: settings.withDefaults(),
		logger:   logger,
	}
}

// RequestTransition fires a workflow transition on behalf of the actor.
func (s *TransitionService) RequestTransition(ctx context.Context, params ports.RequestTransitionParams) (*domain.TransitionOutcome, error) {
	var (
		outcome  *domain.TransitionOutcome
		before   *domain.Ticket
		effects  = &sideEffects{}
		approval *domain.TicketApproval
	)

	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		ticket, err := s.loadTicket(ctx, params.TicketID, params.Actor, true)
		if err != nil {
			return err
		}
		before = ticket.Clone()

		transition, err := s.resolveTransition(ctx, ticket, params.TransitionID, params.Actor)
		if err != nil {
			return err
		}

		if transition.RequiresApproval {
			approval, err = s.approvals.OpenApproval(ctx, ticket.ID, transition.ID, params.Actor.ID)
			if err != nil {
				return err
			}
			outcome = &domain.TransitionOutcome{
				Result:     domain.TransitionPendingApproval,
				NewStatus:  domain.StatusAwaitingApproval,
				ApprovalID: approval.ID,
			}
			return nil
		}

		result, err := s.applier.apply(ctx, applyParams{
			ticket:         ticket,
			transition:     transition,
			actorID:        params.Actor.ID,
			historyComment: params.Comment,
			visibleComment: params.Comment,
			metadata:       params.Metadata,
		})
		if err != nil {
			return err
		}

		outcome = &domain.TransitionOutcome{
			Result:    domain.TransitionCompleted,
			Ticket:    result.ticket,
			NewStatus: result.ticket.Status,
		}
		s.collectTransitionEffects(effects, result, params.Actor, transition)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if approval != nil {
		// The ticket moved to awaiting_approval inside OpenApproval; reload for the response.
		ticket, err := s.tickets.GetByID(ctx, params.TicketID)
		if err != nil {
			return nil, err
		}
		outcome.Ticket = ticket
		s.collectApprovalRequestEffects(effects, ticket, approval, params.Actor)
	}

	s.effects.dispatch(effects)
	s.notifyObservers(ctx, before, outcome.Ticket, params.Actor)

	s.logger.Info("transition requested",
		"ticket_id", params.TicketID,
		"transition_id", params.TransitionID,
		"result", outcome.Result,
		"new_status", outcome.NewStatus,
	)
	return outcome, nil
}

// GetValidTransitions lists the transitions leaving the ticket's status that the actor may fire.
func (s *TransitionService) GetValidTransitions(ctx context.Context, ticketID int64, actor domain.Actor) ([]domain.Transition, error) {
	ticket, err := s.loadTicket(ctx, ticketID, actor, false)
	if err != nil {
		return nil, err
	}

	workflow, err := s.workflows.GetActiveByType(ctx, ticket.Type)
	if err != nil {
		return nil, err
	}

	valid := make([]domain.Transition, 0)
	for _, t := range workflow.TransitionsFrom(ticket.Status) {
		if t.AllowsRole(actor.Role, s.settings.SuperuserRole) {
			valid = append(valid, t)
		}
	}
	return valid, nil
}

// ListHistory returns the transition log of a ticket, newest first.
func (s *TransitionService) ListHistory(ctx context.Context, ticketID int64, actor domain.Actor) ([]*domain.TransitionHistory, error) {
	if _, err := s.loadTicket(ctx, ticketID, actor, false); err != nil {
		return nil, err
	}
	return s.history.ListByTicket(ctx, ticketID)
}

// Shutdown waits for in-flight side effects to complete.
func (s *TransitionService) Shutdown() {
	s.effects.wait()
}

// loadTicket fetches a ticket visible to the actor. Deleted tickets and tickets of
// other tenants are reported as not found.
func (s *TransitionService) loadTicket(ctx context.Context, ticketID int64, actor domain.Actor, forUpdate bool) (*domain.Ticket, error) {
	var (
		ticket *domain.Ticket
		err    error
	)
	if forUpdate {
		ticket, err = s.tickets.GetForUpdate(ctx, ticketID)
	} else {
		ticket, err = s.tickets.GetByID(ctx, ticketID)
	}
	if err != nil {
		return nil, err
	}
	if ticket.IsDeleted || !ticket.BelongsTo(actor.OrganizationID) {
		return nil, apperrors.ErrTicketNotFound
	}
	return ticket, nil
}

// resolveTransition runs the guards in order: existence, source status, role,
// then required fields.
func (s *TransitionService) resolveTransition(ctx context.Context, ticket *domain.Ticket, transitionID int64, actor domain.Actor) (*domain.Transition, error) {
	workflow, err := s.workflows.GetActiveByType(ctx, ticket.Type)
	if err != nil {
		return nil, err
	}

	transition, ok := workflow.Transition(transitionID)
	if !ok {
		return nil, apperrors.ErrTransitionNotFound
	}

	if transition.FromStatus != ticket.Status {
		return nil, apperrors.Wrap(apperrors.ErrStatusMismatch,
			"transition %q starts at %q but ticket is %q", transition.Name, transition.FromStatus, ticket.Status)
	}

	if !transition.AllowsRole(actor.Role, s.settings.SuperuserRole) {
		return nil, apperrors.Wrap(apperrors.ErrRoleNotPermitted, "requires role %q", transition.RequiredRole)
	}

	if field, missing := transition.FirstMissingField(ticket); missing {
		return nil, &apperrors.MissingFieldError{Field: field}
	}

	return transition, nil
}

func (s *TransitionService) collectTransitionEffects(effects *sideEffects, result *applyResult, actor domain.Actor, transition *domain.Transition) {
	ticket := result.ticket
	effects.logActivity(&domain.Activity{
		OrganizationID: ticket.OrganizationID,
		ActorID:        actor.ID,
		Action:         domain.ActivityTransitionPerformed,
		ResourceType:   "ticket",
		ResourceID:     ticket.ID,
		Description:    fmt.Sprintf("%s: %s -> %s", transition.Name, result.fromStatus, ticket.Status),
		CreatedAt:      s.applier.clock.Now(),
	})
	effects.broadcast(statusUpdatedEvent(ticket.ID, result.fromStatus, ticket.Status, actor))
	for _, n := range result.notifications {
		effects.notify(n)
	}
}

func (s *TransitionService) collectApprovalRequestEffects(effects *sideEffects, ticket *domain.Ticket, approval *domain.TicketApproval, actor domain.Actor) {
	effects.logActivity(&domain.Activity{
		OrganizationID: ticket.OrganizationID,
		ActorID:        actor.ID,
		Action:         domain.ActivityApprovalRequested,
		ResourceType:   "ticket",
		ResourceID:     ticket.ID,
		Description: fmt.Sprintf("approval %d requested from %d approver(s) for %s -> %s",
			approval.ID, len(approval.RequiredApprovers), approval.FromStatus, approval.ToStatus),
		CreatedAt: s.applier.clock.Now(),
	})
	effects.broadcast(statusUpdatedEvent(ticket.ID, approval.FromStatus, ticket.Status, actor))
	effects.broadcast(domain.Event{
		Type:     domain.EventApprovalRequested,
		TicketID: ticket.ID,
		Payload: domain.ApprovalPayload{
			ApprovalID: approval.ID,
			TicketID:   ticket.ID,
			Status:     string(approval.Status),
		},
	})
	for _, approver := range approval.RequiredApprovers {
		effects.notify(ports.NotificationParams{
			RecipientUserID: approver,
			Subject:         fmt.Sprintf("Approval requested for ticket %s", ticketLabel(ticket)),
			Message: fmt.Sprintf("Your approval is needed to move ticket %s (%s) from %s to %s.",
				ticketLabel(ticket), ticket.Title, approval.FromStatus, approval.ToStatus),
			TicketID: ticket.ID,
		})
	}
}

func (s *TransitionService) notifyObservers(ctx context.Context, before, after *domain.Ticket, actor domain.Actor) {
	notifyObservers(ctx, s.logger, s.observers, before, after, actor)
}

func notifyObservers(ctx context.Context, logger *slog.Logger, observers []ports.TicketObserver, before, after *domain.Ticket, actor domain.Actor) {
	if before == nil || after == nil {
		return
	}
	for _, observer := range observers {
		if err := observer.TicketChanged(ctx, before, after, actor); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("ticket observer failed",
				"ticket_id", after.ID,
				"error", err,
			)
		}
	}
}

func statusUpdatedEvent(ticketID int64, from, to string, actor domain.Actor) domain.Event {
	return domain.Event{
		Type:     domain.EventStatusUpdated,
		TicketID: ticketID,
		Payload: domain.StatusChangedPayload{
			TicketID:   ticketID,
			FromStatus: from,
			ToStatus:   to,
			ActorID:    actor.ID.String(),
		},
	}
}
