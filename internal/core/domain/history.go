package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransitionHistory is an immutable record of a status change.
type TransitionHistory struct {
	ID           int64
	TicketID     int64
	TransitionID *int64
	FromStatus   string
	ToStatus     string
	PerformedBy  uuid.UUID
	Comment      string
	Metadata     map[string]any
	CreatedAt    time.Time
}

// TransitionResult says whether a requested transition was applied or is waiting on approvers.
type TransitionResult string

const (
	TransitionCompleted       TransitionResult = "completed"
	TransitionPendingApproval TransitionResult = "pending_approval"
)

// TransitionOutcome is returned by the transition engine.
type TransitionOutcome struct {
	Result     TransitionResult
	Ticket     *Ticket
	NewStatus  string
	ApprovalID int64
}
