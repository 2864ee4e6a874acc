package domain

import (
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	apperrors "github.com/lorrc/service-desk-workflow/internal/core/errors"
)

// ApprovalStatus is the lifecycle state of a TicketApproval.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Decision is an approver's answer.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

func (d Decision) IsValid() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// QuorumPolicy decides when enough approvals have been collected.
type QuorumPolicy interface {
	Reached(approved, required int) bool
}

// UnanimousQuorum requires every frozen approver to approve.
type UnanimousQuorum struct{}

func (UnanimousQuorum) Reached(approved, required int) bool {
	return required > 0 && approved >= required
}

// TicketApproval is a pending guarded transition waiting on a frozen approver set.
type TicketApproval struct {
	ID                int64
	TicketID          int64
	TransitionID      int64
	RequestedBy       uuid.UUID
	RequiredApprovers []uuid.UUID
	Status            ApprovalStatus
	ApprovedBy        []uuid.UUID
	RejectedBy        *uuid.UUID
	RejectionReason   string
	FromStatus        string
	ToStatus          string
	RequestedAt       time.Time
	CompletedAt       *time.Time
}

// NewTicketApproval freezes the approver set for a guarded transition. The ticket's
// current status is remembered so a rejection can restore it.
func NewTicketApproval(ticket *Ticket, transition *Transition, requestedBy uuid.UUID, approvers []uuid.UUID, now time.Time) (*TicketApproval, error) {
	seen := mapset.NewThreadUnsafeSet[uuid.UUID]()
	frozen := make([]uuid.UUID, 0, len(approvers))
	for _, id := range approvers {
		if id != uuid.Nil && seen.Add(id) {
			frozen = append(frozen, id)
		}
	}
	if len(frozen) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrNoApprovers, "%q", transition.ApprovalRole)
	}

	return &TicketApproval{
		TicketID:          ticket.ID,
		TransitionID:      transition.ID,
		RequestedBy:       requestedBy,
		RequiredApprovers: frozen,
		Status:            ApprovalPending,
		ApprovedBy:        []uuid.UUID{},
		FromStatus:        ticket.Status,
		ToStatus:          transition.ToStatus,
		RequestedAt:       now,
	}, nil
}

// Clone returns a copy that shares no slices with a.
func (a *TicketApproval) Clone() *TicketApproval {
	c := *a
	c.RequiredApprovers = append([]uuid.UUID(nil), a.RequiredApprovers...)
	c.ApprovedBy = append([]uuid.UUID(nil), a.ApprovedBy...)
	return &c
}

func (a *TicketApproval) IsPending() bool {
	return a.Status == ApprovalPending
}

// IsRequiredApprover reports membership in the frozen approver set.
func (a *TicketApproval) IsRequiredApprover(userID uuid.UUID) bool {
	return mapset.NewThreadUnsafeSet(a.RequiredApprovers...).Contains(userID)
}

// HasApproved reports whether userID is already recorded as approving.
func (a *TicketApproval) HasApproved(userID uuid.UUID) bool {
	return mapset.NewThreadUnsafeSet(a.ApprovedBy...).Contains(userID)
}

// CanRespond checks the response preconditions shared by approve and reject.
func (a *TicketApproval) CanRespond(userID uuid.UUID) error {
	if !a.IsPending() {
		return apperrors.ErrApprovalClosed
	}
	if !a.IsRequiredApprover(userID) {
		return apperrors.ErrNotApprover
	}
	if a.HasApproved(userID) {
		return apperrors.ErrAlreadyResponded
	}
	return nil
}

// RecordApproval adds userID to the approvers and reports whether quorum is now reached,
// in which case the approval becomes terminal.
func (a *TicketApproval) RecordApproval(userID uuid.UUID, approvedCount int, quorum QuorumPolicy, now time.Time) (bool, error) {
	if err := a.CanRespond(userID); err != nil {
		return false, err
	}
	a.ApprovedBy = append(a.ApprovedBy, userID)

	if !quorum.Reached(approvedCount, len(a.RequiredApprovers)) {
		return false, nil
	}
	a.Status = ApprovalApproved
	a.CompletedAt = &now
	return true, nil
}

// Reject finalizes the approval as rejected. The first rejection wins.
func (a *TicketApproval) Reject(userID uuid.UUID, reason string, now time.Time) error {
	if err := a.CanRespond(userID); err != nil {
		return err
	}
	a.Status = ApprovalRejected
	a.RejectedBy = &userID
	a.RejectionReason = reason
	a.CompletedAt = &now
	return nil
}

// ApprovalResponse is one approver's answer. Unique per (approval, user).
type ApprovalResponse struct {
	ID          int64
	ApprovalID  int64
	UserID      uuid.UUID
	Decision    Decision
	Notes       string
	RespondedAt time.Time
}

// ApprovalResult classifies what a response did to its approval.
type ApprovalResult string

const (
	ResultPartial  ApprovalResult = "partial"
	ResultApproved ApprovalResult = "approved"
	ResultRejected ApprovalResult = "rejected"
)

// ApprovalOutcome is returned to the responder.
type ApprovalOutcome struct {
	Approval      *TicketApproval
	Result        ApprovalResult
	TicketStatus  string
	ApprovedCount int
	RequiredCount int
}
