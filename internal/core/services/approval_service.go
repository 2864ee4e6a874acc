package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-workflow/internal/core/errors"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
)

const (
	approvalSubmittedComment = "Submitted for approval"
	approvalCompletedHistory = "Approved by all approvers"
	approvalCompletedComment = "All approvals received. Transition completed."
	noRejectionReason        = "No reason provided"
)

// ApprovalServiceDeps groups the collaborators of the approval coordinator.
type ApprovalServiceDeps struct {
	Tickets     ports.TicketRepository
	Workflows   ports.WorkflowRepository
	Approvals   ports.ApprovalRepository
	History     ports.HistoryRepository
	Comments    ports.CommentRepository
	Activity    ports.ActivityRepository
	Directory   ports.UserDirectory
	TxManager   ports.TransactionManager
	Notifier    ports.Notifier
	Broadcaster ports.EventBroadcaster
	Observers   []ports.TicketObserver
	Quorum      domain.QuorumPolicy
	Clock       domain.Clock
	Logger      *slog.Logger
}

// ApprovalService is the approval coordinator. It freezes approver pools, records
// responses, and completes or rolls back the parked transition.
type ApprovalService struct {
	tickets   ports.TicketRepository
	workflows ports.WorkflowRepository
	approvals ports.ApprovalRepository
	history   ports.HistoryRepository
	comments  ports.CommentRepository
	directory ports.UserDirectory
	txManager ports.TransactionManager
	observers []ports.TicketObserver
	quorum    domain.QuorumPolicy
	clock     domain.Clock
	applier   *transitionApplier
	effects   *effectDispatcher
	settings  Settings
	logger    *slog.Logger
}

var _ ports.ApprovalService = (*ApprovalService)(nil)

// NewApprovalService creates the approval coordinator.
func NewApprovalService(deps ApprovalServiceDeps, settings Settings) *ApprovalService {
	clock := deps.Clock
	if clock == nil {
		clock = domain.SystemClock{}
	}
	quorum := deps.Quorum
	if quorum == nil {
		quorum = domain.UnanimousQuorum{}
	}
	logger := componentLogger(deps.Logger, "approval_service")

	return &ApprovalService{
		tickets:   deps.Tickets,
		workflows: deps.Workflows,
		approvals: deps.Approvals,
		history:   deps.History,
		comments:  deps.Comments,
		directory: deps.Directory,
		txManager: deps.TxManager,
		observers: deps.Observers,
		quorum:    quorum,
		clock:     clock,
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

// OpenApproval freezes the approver pool for a guarded transition and parks the ticket
// in awaiting_approval. Side effects are left to the caller.
func (s *ApprovalService) OpenApproval(ctx context.Context, ticketID, transitionID int64, requesterID uuid.UUID) (*domain.TicketApproval, error) {
	var created *domain.TicketApproval

	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		ticket, err := s.tickets.GetForUpdate(ctx, ticketID)
		if err != nil {
			return err
		}

		workflow, err := s.workflows.GetActiveByType(ctx, ticket.Type)
		if err != nil {
			return err
		}
		transition, ok := workflow.Transition(transitionID)
		if !ok {
			return apperrors.ErrTransitionNotFound
		}

		role := transition.ApprovalRole
		if role == "" {
			role = s.settings.DefaultApprovalRole
		}
		approvers, err := s.directory.FindByRole(ctx, ticket.OrganizationID, role, s.settings.ApprovalPoolSize)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		approval, err := domain.NewTicketApproval(ticket, transition, requesterID, approvers, now)
		if err != nil {
			return err
		}
		if created, err = s.approvals.Create(ctx, approval); err != nil {
			return err
		}

		fromStatus := ticket.Status
		ticket.MoveTo(domain.StatusAwaitingApproval, now)
		if err := s.tickets.Update(ctx, ticket); err != nil {
			return err
		}

		_, err = s.history.Create(ctx, &domain.TransitionHistory{
			TicketID:     ticket.ID,
			TransitionID: &transition.ID,
			FromStatus:   fromStatus,
			ToStatus:     domain.StatusAwaitingApproval,
			PerformedBy:  requesterID,
			Comment:      approvalSubmittedComment,
			Metadata:     map[string]any{"approval_id": created.ID, "target_status": transition.ToStatus},
			CreatedAt:    now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("approval opened",
		"approval_id", created.ID,
		"ticket_id", ticketID,
		"approvers", len(created.RequiredApprovers),
	)
	return created, nil
}

// RespondToApproval records one approver's decision. Responses for the same approval
// are serialized by the approval row lock.
func (s *ApprovalService) RespondToApproval(ctx context.Context, params ports.RespondToApprovalParams) (*domain.ApprovalOutcome, error) {
	if !params.Decision.IsValid() {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "unknown decision %q", params.Decision)
	}

	var (
		outcome *domain.ApprovalOutcome
		before  *domain.Ticket
		after   *domain.Ticket
		effects = &sideEffects{}
	)

	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		approval, err := s.approvals.GetForUpdate(ctx, params.ApprovalID)
		if err != nil {
			return err
		}
		if err := approval.CanRespond(params.Actor.ID); err != nil {
			return err
		}
		responded, err := s.approvals.HasResponded(ctx, approval.ID, params.Actor.ID)
		if err != nil {
			return err
		}
		if responded {
			return apperrors.ErrAlreadyResponded
		}

		ticket, err := s.tickets.GetForUpdate(ctx, approval.TicketID)
		if err != nil {
			return err
		}
		before = ticket.Clone()

		now := s.clock.Now()
		if _, err := s.approvals.CreateResponse(ctx, &domain.ApprovalResponse{
			ApprovalID:  approval.ID,
			UserID:      params.Actor.ID,
			Decision:    params.Decision,
			Notes:       params.Notes,
			RespondedAt: now,
		}); err != nil {
			return err
		}

		if params.Decision == domain.DecisionRejected {
			outcome, err = s.reject(ctx, approval, ticket, params, effects)
		} else {
			outcome, err = s.approve(ctx, approval, ticket, params, effects)
		}
		after = ticket
		return err
	})
	if err != nil {
		return nil, err
	}

	s.effects.dispatch(effects)
	if before.Status != after.Status {
		notifyObservers(ctx, s.logger, s.observers, before, after, params.Actor)
	}

	s.logger.Info("approval response recorded",
		"approval_id", params.ApprovalID,
		"decision", params.Decision,
		"result", outcome.Result,
	)
	return outcome, nil
}

func (s *ApprovalService) reject(ctx context.Context, approval *domain.TicketApproval, ticket *domain.Ticket, params ports.RespondToApprovalParams, effects *sideEffects) (*domain.ApprovalOutcome, error) {
	now := s.clock.Now()
	if err := approval.Reject(params.Actor.ID, params.Notes, now); err != nil {
		return nil, err
	}
	if err := s.approvals.Update(ctx, approval); err != nil {
		return nil, err
	}

	ticket.MoveTo(approval.FromStatus, now)
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}

	reason := strings.TrimSpace(params.Notes)
	if reason == "" {
		reason = noRejectionReason
	}
	if _, err := s.comments.Create(ctx, &domain.Comment{
		TicketID:   ticket.ID,
		AuthorID:   params.Actor.ID,
		Body:       "Approval rejected: " + reason,
		IsInternal: true,
		CreatedAt:  now,
	}); err != nil {
		return nil, err
	}

	effects.logActivity(s.approvalActivity(approval, ticket, params.Actor, domain.ActivityApprovalRejected,
		fmt.Sprintf("approval %d rejected: %s", approval.ID, reason)))
	effects.broadcast(approvalResolvedEvent(approval, domain.ResultRejected))
	effects.broadcast(statusUpdatedEvent(ticket.ID, domain.StatusAwaitingApproval, ticket.Status, params.Actor))
	effects.notify(ports.NotificationParams{
		RecipientUserID: approval.RequestedBy,
		Subject:         fmt.Sprintf("Approval rejected for ticket %s", ticketLabel(ticket)),
		Message:         fmt.Sprintf("The request to move ticket %s to %s was rejected: %s", ticketLabel(ticket), approval.ToStatus, reason),
		TicketID:        ticket.ID,
	})

	return &domain.ApprovalOutcome{
		Approval:      approval,
		Result:        domain.ResultRejected,
		TicketStatus:  ticket.Status,
		ApprovedCount: len(approval.ApprovedBy),
		RequiredCount: len(approval.RequiredApprovers),
	}, nil
}

func (s *ApprovalService) approve(ctx context.Context, approval *domain.TicketApproval, ticket *domain.Ticket, params ports.RespondToApprovalParams, effects *sideEffects) (*domain.ApprovalOutcome, error) {
	approvedCount, err := s.approvals.CountApproved(ctx, approval.ID)
	if err != nil {
		return nil, err
	}

	done, err := approval.RecordApproval(params.Actor.ID, approvedCount, s.quorum, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.approvals.Update(ctx, approval); err != nil {
		return nil, err
	}

	outcome := &domain.ApprovalOutcome{
		Approval:      approval,
		Result:        domain.ResultPartial,
		TicketStatus:  ticket.Status,
		ApprovedCount: approvedCount,
		RequiredCount: len(approval.RequiredApprovers),
	}

	if !done {
		effects.logActivity(s.approvalActivity(approval, ticket, params.Actor, domain.ActivityApprovalApproved,
			fmt.Sprintf("approval %d: %d of %d approved", approval.ID, approvedCount, len(approval.RequiredApprovers))))
		return outcome, nil
	}

	transition, err := s.workflows.GetTransition(ctx, approval.TransitionID)
	if err != nil {
		return nil, err
	}
	result, err := s.applier.apply(ctx, applyParams{
		ticket:         ticket,
		transition:     transition,
		actorID:        params.Actor.ID,
		historyComment: approvalCompletedHistory,
		visibleComment: approvalCompletedComment,
		metadata:       map[string]any{"approval_id": approval.ID},
		approvers:      approval.RequiredApprovers,
	})
	if err != nil {
		return nil, err
	}

	outcome.Result = domain.ResultApproved
	outcome.TicketStatus = result.ticket.Status

	effects.logActivity(s.approvalActivity(approval, ticket, params.Actor, domain.ActivityApprovalCompleted,
		fmt.Sprintf("approval %d completed: %s -> %s", approval.ID, approval.FromStatus, approval.ToStatus)))
	effects.broadcast(approvalResolvedEvent(approval, domain.ResultApproved))
	effects.broadcast(statusUpdatedEvent(ticket.ID, domain.StatusAwaitingApproval, ticket.Status, params.Actor))
	effects.notify(ports.NotificationParams{
		RecipientUserID: approval.RequestedBy,
		Subject:         fmt.Sprintf("Approval granted for ticket %s", ticketLabel(ticket)),
		Message:         fmt.Sprintf("Ticket %s moved to %s after all approvals were received.", ticketLabel(ticket), ticket.Status),
		TicketID:        ticket.ID,
	})
	for _, n := range result.notifications {
		effects.notify(n)
	}

	return outcome, nil
}

// GetApproval returns an approval with its responses.
func (s *ApprovalService) GetApproval(ctx context.Context, approvalID int64, actor domain.Actor) (*ports.ApprovalDetails, error) {
	approval, err := s.approvals.GetByID(ctx, approvalID)
	if err != nil {
		return nil, err
	}

	ticket, err := s.tickets.GetByID(ctx, approval.TicketID)
	if err != nil {
		return nil, err
	}
	if !ticket.BelongsTo(actor.OrganizationID) {
		return nil, apperrors.ErrApprovalNotFound
	}

	responses, err := s.approvals.ListResponses(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	return &ports.ApprovalDetails{Approval: approval, Responses: responses}, nil
}

// ListPending returns the approvals still waiting on the actor.
func (s *ApprovalService) ListPending(ctx context.Context, actor domain.Actor) ([]*domain.TicketApproval, error) {
	return s.approvals.ListPendingForUser(ctx, actor.ID)
}

// Shutdown waits for in-flight side effects to complete.
func (s *ApprovalService) Shutdown() {
	s.effects.wait()
}

func (s *ApprovalService) approvalActivity(approval *domain.TicketApproval, ticket *domain.Ticket, actor domain.Actor, action domain.ActivityAction, description string) *domain.Activity {
	return &domain.Activity{
		OrganizationID: ticket.OrganizationID,
		ActorID:        actor.ID,
		Action:         action,
		ResourceType:   "approval",
		ResourceID:     approval.ID,
		Description:    description,
		CreatedAt:      s.clock.Now(),
	}
}

func approvalResolvedEvent(approval *domain.TicketApproval, result domain.ApprovalResult) domain.Event {
	return domain.Event{
		Type:     domain.EventApprovalResolved,
		TicketID: approval.TicketID,
		Payload: domain.ApprovalPayload{
			ApprovalID: approval.ID,
			TicketID:   approval.TicketID,
			Status:     string(approval.Status),
			Result:     string(result),
		},
	}
}
