package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-workflow/internal/core/errors"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
)

// transitionApplier performs the write half of a transition: status move, actions,
// persistence and history. Both the engine and the approval coordinator use it so
// an approved transition behaves exactly like a direct one.
type transitionApplier struct {
	tickets  ports.TicketRepository
	history  ports.HistoryRepository
	comments ports.CommentRepository
	clock    domain.Clock
}

type applyParams struct {
	ticket     *domain.Ticket
	transition *domain.Transition
	actorID    uuid.UUID
	// historyComment is stored on the history entry; visibleComment, when set,
	// is also posted as a public comment.
	historyComment string
	visibleComment string
	metadata       map[string]any
	// approvers resolves the "approvers" notify target.
	approvers []uuid.UUID
}

type applyResult struct {
	fromStatus    string
	ticket        *domain.Ticket
	notifications []ports.NotificationParams
}

// apply must run inside a transaction holding the ticket lock. Action failures come
// back as *apperrors.TransitionFailedError; the caller's rollback undoes partial work.
func (a *transitionApplier) apply(ctx context.Context, p applyParams) (*applyResult, error) {
	now := a.clock.Now()
	ticket := p.ticket
	result := &applyResult{fromStatus: ticket.Status, ticket: ticket}

	ticket.MoveTo(p.transition.ToStatus, now)

	for _, action := range p.transition.Actions {
		if err := a.execute(ctx, action, p, now, result); err != nil {
			return nil, &apperrors.TransitionFailedError{Action: string(action.Kind()), Err: err}
		}
	}

	if err := a.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}

	transitionID := p.transition.ID
	entry := &domain.TransitionHistory{
		TicketID:     ticket.ID,
		TransitionID: &transitionID,
		FromStatus:   result.fromStatus,
		ToStatus:     p.transition.ToStatus,
		PerformedBy:  p.actorID,
		Comment:      p.historyComment,
		Metadata:     p.metadata,
		CreatedAt:    now,
	}
	if _, err := a.history.Create(ctx, entry); err != nil {
		return nil, err
	}

	if p.visibleComment != "" {
		if _, err := a.comments.Create(ctx, &domain.Comment{
			TicketID:  ticket.ID,
			AuthorID:  p.actorID,
			Body:      p.visibleComment,
			CreatedAt: now,
		}); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func (a *transitionApplier) execute(ctx context.Context, action domain.Action, p applyParams, ts time.Time, result *applyResult) error {
	ticket := p.ticket

	switch act := action.(type) {
	case domain.SetFieldAction:
		if act.Now {
			return ticket.SetFieldNow(act.Field, ts)
		}
		return ticket.SetField(act.Field, act.Value, ts)

	case domain.AddCommentAction:
		_, err := a.comments.Create(ctx, &domain.Comment{
			TicketID:   ticket.ID,
			AuthorID:   p.actorID,
			Body:       act.Text,
			IsInternal: true,
			CreatedAt:  ts,
		})
		return err

	case domain.AssignAction:
		ticket.Assign(act.UserID, ts)
		return nil

	case domain.NotifyAction:
		for _, recipient := range notifyRecipients(act.Target, ticket, p.approvers) {
			result.notifications = append(result.notifications, ports.NotificationParams{
				RecipientUserID: recipient,
				Subject:         fmt.Sprintf("Ticket %s moved to %s", ticketLabel(ticket), p.transition.ToStatus),
				Message: fmt.Sprintf("Ticket %s (%s) moved from %s to %s.",
					ticketLabel(ticket), ticket.Title, result.fromStatus, p.transition.ToStatus),
				TicketID: ticket.ID,
			})
		}
		return nil

	default:
		return apperrors.Wrap(apperrors.ErrInvalidAction, "unsupported action %T", action)
	}
}

// notifyRecipients resolves a notify target. Unresolvable targets yield nobody.
func notifyRecipients(target string, ticket *domain.Ticket, approvers []uuid.UUID) []uuid.UUID {
	switch target {
	case "assignee":
		if ticket.AssigneeID != nil {
			return []uuid.UUID{*ticket.AssigneeID}
		}
		return nil
	case "reporter":
		if ticket.ReporterID != uuid.Nil {
			return []uuid.UUID{ticket.ReporterID}
		}
		return nil
	case "approvers":
		return approvers
	default:
		id, err := uuid.Parse(target)
		if err != nil {
			return nil
		}
		return []uuid.UUID{id}
	}
}

func ticketLabel(ticket *domain.Ticket) string {
	if ticket.Key != "" {
		return ticket.Key
	}
	return fmt.Sprintf("#%d", ticket.ID)
}
