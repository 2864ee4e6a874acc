package services_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-workflow/internal/core/errors"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// openCloseApproval fires the guarded close on a resolved ticket.
func openCloseApproval(t *testing.T, e *engine) (*domain.Ticket, int64) {
	t.Helper()
	ticket := e.resolvedTicket()

	outcome, err := e.request(ticket.ID, "resolved", "closed", e.agent)
	require.NoError(t, err)
	require.Equal(t, domain.TransitionPendingApproval, outcome.Result)
	require.NotZero(t, outcome.ApprovalID)
	return ticket, outcome.ApprovalID
}

func TestApprovalService_OpenApproval(t *testing.T) {
	e := newEngine(t)
	ticket, approvalID := openCloseApproval(t, e)

	assert.Equal(t, domain.StatusAwaitingApproval, e.ticket(ticket.ID).Status)

	details, err := e.approvals.GetApproval(context.Background(), approvalID, e.agent)
	require.NoError(t, err)
	approval := details.Approval
	assert.Equal(t, domain.ApprovalPending, approval.Status)
	assert.Equal(t, []uuid.UUID{e.cab[0].ID, e.cab[1].ID, e.cab[2].ID}, approval.RequiredApprovers)
	assert.Equal(t, "resolved", approval.FromStatus)
	assert.Equal(t, "closed", approval.ToStatus)
	assert.Equal(t, e.agent.ID, approval.RequestedBy)
	assert.Empty(t, details.Responses)

	history := e.history(ticket.ID)
	require.Len(t, history, 1)
	assert.Equal(t, "resolved", history[0].FromStatus)
	assert.Equal(t, domain.StatusAwaitingApproval, history[0].ToStatus)

	e.shutdown()
	for _, approver := range e.cab {
		e.notifier.AssertCalled(t, "Notify", mock.Anything, mock.MatchedBy(func(p ports.NotificationParams) bool {
			return p.RecipientUserID == approver.ID
		}))
	}
	e.broadcaster.AssertCalled(t, "Broadcast", mock.MatchedBy(func(ev domain.Event) bool {
		return ev.Type == domain.EventApprovalRequested
	}))

	_, err = e.approvals.GetApproval(context.Background(), approvalID, e.outsider)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestApprovalService_UnanimousApprovalCompletesTransition(t *testing.T) {
	e := newEngine(t)
	ticket, approvalID := openCloseApproval(t, e)

	outcome, err := e.respond(approvalID, e.cab[0], domain.DecisionApproved, "")
	require.NoError(t, err)
	assert.Equal(t, domain.ResultPartial, outcome.Result)
	assert.Equal(t, 1, outcome.ApprovedCount)
	assert.Equal(t, 3, outcome.RequiredCount)
	assert.Equal(t, domain.StatusAwaitingApproval, e.ticket(ticket.ID).Status)

	outcome, err = e.respond(approvalID, e.cab[1], domain.DecisionApproved, "")
	require.NoError(t, err)
	assert.Equal(t, domain.ResultPartial, outcome.Result)
	assert.Equal(t, 2, outcome.ApprovedCount)

	outcome, err = e.respond(approvalID, e.cab[2], domain.DecisionApproved, "lgtm")
	require.NoError(t, err)
	assert.Equal(t, domain.ResultApproved, outcome.Result)
	assert.Equal(t, "closed", outcome.TicketStatus)
	assert.Equal(t, domain.ApprovalApproved, outcome.Approval.Status)
	assert.Equal(t, "closed", e.ticket(ticket.ID).Status)

	history := e.history(ticket.ID)
	require.Len(t, history, 2)
	assert.Equal(t, "closed", history[0].ToStatus)
	assert.Equal(t, "Approved by all approvers", history[0].Comment)
	assert.Equal(t, e.cab[2].ID, history[0].PerformedBy)

	comments := e.store.Comments(ticket.ID)
	require.Len(t, comments, 1)
	assert.Equal(t, "All approvals received. Transition completed.", comments[0].Body)
	assert.False(t, comments[0].IsInternal)

	_, err = e.respond(approvalID, e.cab[0], domain.DecisionRejected, "too late")
	assert.ErrorIs(t, err, apperrors.ErrNotActive)
}

func TestApprovalService_RejectionRestoresStatus(t *testing.T) {
	e := newEngine(t)
	ticket, approvalID := openCloseApproval(t, e)

	_, err := e.respond(approvalID, e.cab[0], domain.DecisionApproved, "")
	require.NoError(t, err)

	outcome, err := e.respond(approvalID, e.cab[1], domain.DecisionRejected, "customer still affected")
	require.NoError(t, err)
	assert.Equal(t, domain.ResultRejected, outcome.Result)
	assert.Equal(t, "resolved", outcome.TicketStatus)
	assert.Equal(t, domain.ApprovalRejected, outcome.Approval.Status)
	require.NotNil(t, outcome.Approval.RejectedBy)
	assert.Equal(t, e.cab[1].ID, *outcome.Approval.RejectedBy)

	assert.Equal(t, "resolved", e.ticket(ticket.ID).Status)

	comments := e.store.Comments(ticket.ID)
	require.Len(t, comments, 1)
	assert.True(t, comments[0].IsInternal)
	assert.Equal(t, "Approval rejected: customer still affected", comments[0].Body)

	// rejection does not log a transition
	assert.Len(t, e.history(ticket.ID), 1)
}

func TestApprovalService_ResponseAfterRejectionIsNotActive(t *testing.T) {
	e := newEngine(t)
	ticket, approvalID := openCloseApproval(t, e)

	_, err := e.respond(approvalID, e.cab[0], domain.DecisionApproved, "")
	require.NoError(t, err)
	outcome, err := e.respond(approvalID, e.cab[1], domain.DecisionRejected, "not yet")
	require.NoError(t, err)
	require.Equal(t, domain.ResultRejected, outcome.Result)

	_, err = e.respond(approvalID, e.cab[2], domain.DecisionApproved, "")
	assert.ErrorIs(t, err, apperrors.ErrNotActive)
	_, err = e.respond(approvalID, e.cab[2], domain.DecisionRejected, "")
	assert.ErrorIs(t, err, apperrors.ErrNotActive)

	assert.Equal(t, "resolved", e.ticket(ticket.ID).Status)
	details, err := e.approvals.GetApproval(context.Background(), approvalID, e.agent)
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalRejected, details.Approval.Status)
	assert.Len(t, details.Responses, 2)
}

func TestApprovalService_ResponsePreconditions(t *testing.T) {
	t.Run("non approver is forbidden", func(t *testing.T) {
		e := newEngine(t)
		_, approvalID := openCloseApproval(t, e)

		_, err := e.respond(approvalID, e.agent, domain.DecisionApproved, "")
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
	})

	t.Run("second response is a duplicate", func(t *testing.T) {
		e := newEngine(t)
		_, approvalID := openCloseApproval(t, e)

		_, err := e.respond(approvalID, e.cab[0], domain.DecisionApproved, "")
		require.NoError(t, err)
		_, err = e.respond(approvalID, e.cab[0], domain.DecisionApproved, "")
		assert.ErrorIs(t, err, apperrors.ErrDuplicateResponse)
		_, err = e.respond(approvalID, e.cab[0], domain.DecisionRejected, "")
		assert.ErrorIs(t, err, apperrors.ErrDuplicateResponse)
	})

	t.Run("unknown approval", func(t *testing.T) {
		e := newEngine(t)
		_, err := e.respond(404, e.cab[0], domain.DecisionApproved, "")
		assert.ErrorIs(t, err, apperrors.ErrApprovalNotFound)
	})

	t.Run("invalid decision", func(t *testing.T) {
		e := newEngine(t)
		_, approvalID := openCloseApproval(t, e)
		_, err := e.respond(approvalID, e.cab[0], domain.Decision("abstain"), "")
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}

func TestApprovalService_NoApproversFailsTransition(t *testing.T) {
	e := newEngine(t)
	wf := incidentWorkflowDef()
	wf.Transitions[2].ApprovalRole = "nobody"
	active, err := e.repos.Workflows.Save(context.Background(), wf, true)
	require.NoError(t, err)
	e.workflow = active

	ticket := e.resolvedTicket()
	_, err = e.request(ticket.ID, "resolved", "closed", e.agent)
	require.Error(t, err)
	assert.Equal(t, "TRANSITION_FAILED", apperrors.Kind(err))
	assert.Equal(t, "resolved", e.ticket(ticket.ID).Status)
	assert.Empty(t, e.history(ticket.ID))

	pending, err := e.approvals.ListPending(context.Background(), e.cab[0])
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestApprovalService_ListPending(t *testing.T) {
	e := newEngine(t)
	_, approvalID := openCloseApproval(t, e)

	pending, err := e.approvals.ListPending(context.Background(), e.cab[0])
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, approvalID, pending[0].ID)

	_, err = e.respond(approvalID, e.cab[0], domain.DecisionApproved, "")
	require.NoError(t, err)

	pending, err = e.approvals.ListPending(context.Background(), e.cab[0])
	require.NoError(t, err)
	assert.Empty(t, pending)

	pending, err = e.approvals.ListPending(context.Background(), e.cab[1])
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

// Concurrent final responses: exactly one completes the transition.
func TestApprovalService_ConcurrentResponses(t *testing.T) {
	e := newEngine(t)
	ticket, approvalID := openCloseApproval(t, e)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes []*domain.ApprovalOutcome
	)
	for _, approver := range e.cab {
		wg.Add(1)
		go func(actor domain.Actor) {
			defer wg.Done()
			outcome, err := e.respond(approvalID, actor, domain.DecisionApproved, "")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			outcomes = append(outcomes, outcome)
			mu.Unlock()
		}(approver)
	}
	wg.Wait()

	require.Len(t, outcomes, 3)
	approved := 0
	for _, o := range outcomes {
		if o.Result == domain.ResultApproved {
			approved++
		}
	}
	assert.Equal(t, 1, approved)
	assert.Equal(t, "closed", e.ticket(ticket.ID).Status)
	assert.Len(t, e.history(ticket.ID), 2)
}
