package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/lorrc/service-desk-workflow/internal/core/errors"
)

// SLAStatus is the lifecycle state of a TicketSLA.
type SLAStatus string

const (
	SLANotStarted SLAStatus = "not_started"
	SLAInProgress SLAStatus = "in_progress"
	SLAPaused     SLAStatus = "paused"
	SLACompleted  SLAStatus = "completed"
)

// DefaultAtRiskThreshold is the percent elapsed at which a running timer counts as at risk.
const DefaultAtRiskThreshold = 75.0

// SLADefinition is a tenant-scoped resolution target. A nil TicketType applies to every type.
type SLADefinition struct {
	ID                int64
	OrganizationID    uuid.UUID
	Name              string
	TicketType        *TicketType
	Priority          TicketPriority
	ResolutionMinutes int
	IsActive          bool
}

// SLATarget is the result of resolving the budget for a ticket.
type SLATarget struct {
	DefinitionID *int64
	Name         string
	Budget       time.Duration
}

// DefaultSLABudgets applies when a tenant has no matching definition.
var DefaultSLABudgets = map[TicketPriority]time.Duration{
	PriorityCritical: 2 * time.Hour,
	PriorityHigh:     4 * time.Hour,
	PriorityMedium:   24 * time.Hour,
	PriorityLow:      72 * time.Hour,
}

// TicketSLA tracks one resolution deadline. DueTime only moves forward and
// IsBreached never resets.
type TicketSLA struct {
	ID                 int64
	TicketID           int64
	OrganizationID     uuid.UUID
	SLADefinitionID    *int64
	Status             SLAStatus
	StartTime          time.Time
	DueTime            time.Time
	TotalPauseDuration time.Duration
	PauseStartTime     *time.Time
	PauseReason        string
	PausedBy           *uuid.UUID
	IsBreached         bool
	BreachTime         *time.Time
	BreachDuration     time.Duration
	ActualDuration     *time.Duration
	CompletedAt        *time.Time
	CreatedAt          time.Time
}

// NewTicketSLA starts a running timer with due = now + budget.
func NewTicketSLA(ticket *Ticket, target SLATarget, now time.Time) *TicketSLA {
	return &TicketSLA{
		TicketID:        ticket.ID,
		OrganizationID:  ticket.OrganizationID,
		SLADefinitionID: target.DefinitionID,
		Status:          SLAInProgress,
		StartTime:       now,
		DueTime:         now.Add(target.Budget),
		CreatedAt:       now,
	}
}

func (s *TicketSLA) Clone() *TicketSLA {
	c := *s
	return &c
}

func (s *TicketSLA) IsActive() bool {
	return s.Status != SLACompleted
}

// Pause stops the clock. Re-pausing a paused timer is rejected. A running timer that is
// already past due is marked breached before the clock stops.
func (s *TicketSLA) Pause(actorID uuid.UUID, reason string, now time.Time) (*SLAPauseEvent, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.ErrPauseReasonRequired
	}
	if s.Status != SLAInProgress && s.Status != SLANotStarted {
		return nil, apperrors.ErrSLANotActive
	}
	if s.Status == SLAInProgress {
		s.CheckBreach(now)
	}

	s.Status = SLAPaused
	s.PauseStartTime = &now
	s.PauseReason = reason
	s.PausedBy = &actorID

	return &SLAPauseEvent{
		TicketSLAID: s.ID,
		PausedAt:    now,
		PauseReason: reason,
		PausedBy:    actorID,
	}, nil
}

// Resume restarts the clock and pushes the deadline out by exactly the paused interval.
func (s *TicketSLA) Resume(now time.Time) (time.Duration, error) {
	if s.Status != SLAPaused || s.PauseStartTime == nil {
		return 0, apperrors.ErrSLANotPaused
	}

	paused := Elapsed(*s.PauseStartTime, now)
	s.DueTime = s.DueTime.Add(paused)
	s.TotalPauseDuration += paused
	s.Status = SLAInProgress
	s.PauseStartTime = nil
	s.PauseReason = ""
	s.PausedBy = nil
	return paused, nil
}

// CheckBreach evaluates the timer at now, recording a breach the first time a running
// timer is found past due.
func (s *TicketSLA) CheckBreach(now time.Time) BreachStatus {
	status := BreachStatus{
		SLAID:    s.ID,
		TicketID: s.TicketID,
		Status:   s.Status,
		DueTime:  s.DueTime,
	}

	switch s.Status {
	case SLAInProgress:
		if now.After(s.DueTime) {
			if !s.IsBreached {
				s.IsBreached = true
				s.BreachTime = &now
				status.NewlyBreached = true
			}
			s.BreachDuration = now.Sub(s.DueTime)
		}
		status.PercentElapsed = PercentElapsed(s.StartTime, s.DueTime, now)
		if now.Before(s.DueTime) {
			status.Remaining = s.DueTime.Sub(now)
		}
	case SLACompleted:
		end := now
		if s.CompletedAt != nil {
			end = *s.CompletedAt
		}
		status.PercentElapsed = PercentElapsed(s.StartTime, s.DueTime, end)
	}

	status.IsBreached = s.IsBreached
	status.BreachTime = s.BreachTime
	status.BreachDuration = s.BreachDuration
	return status
}

// PercentElapsed is the read-only view used by listings. Paused and unstarted timers report 0.
func (s *TicketSLA) PercentElapsed(now time.Time) float64 {
	switch s.Status {
	case SLAInProgress:
		return PercentElapsed(s.StartTime, s.DueTime, now)
	case SLACompleted:
		if s.CompletedAt != nil {
			return PercentElapsed(s.StartTime, s.DueTime, *s.CompletedAt)
		}
	}
	return 0
}

// IsAtRisk reports a running, not yet due timer that has consumed at least threshold percent.
func (s *TicketSLA) IsAtRisk(now time.Time, threshold float64) bool {
	return s.Status == SLAInProgress && s.DueTime.After(now) && s.PercentElapsed(now) >= threshold
}

// Complete stops the timer for good. ActualDuration is wall clock, pauses included.
func (s *TicketSLA) Complete(now time.Time) error {
	if s.Status == SLACompleted {
		return apperrors.ErrSLANotActive
	}
	if s.Status == SLAInProgress {
		s.CheckBreach(now)
	}

	actual := Elapsed(s.StartTime, now)
	s.Status = SLACompleted
	s.ActualDuration = &actual
	s.CompletedAt = &now
	s.PauseStartTime = nil
	s.PauseReason = ""
	s.PausedBy = nil
	return nil
}

// SLAPauseEvent records one pause/resume cycle. At most one is open per timer.
type SLAPauseEvent struct {
	ID          int64
	TicketSLAID int64
	PausedAt    time.Time
	PauseReason string
	PausedBy    uuid.UUID
	ResumedAt   *time.Time
	ResumedBy   *uuid.UUID
	Duration    time.Duration
}

func (e *SLAPauseEvent) IsOpen() bool {
	return e.ResumedAt == nil
}

// Close marks the pause as resumed.
func (e *SLAPauseEvent) Close(actorID uuid.UUID, now time.Time) {
	e.ResumedAt = &now
	e.ResumedBy = &actorID
	e.Duration = Elapsed(e.PausedAt, now)
}

// BreachStatus is the result of evaluating a timer.
type BreachStatus struct {
	SLAID          int64
	TicketID       int64
	Status         SLAStatus
	IsBreached     bool
	NewlyBreached  bool
	PercentElapsed float64
	DueTime        time.Time
	Remaining      time.Duration
	BreachTime     *time.Time
	BreachDuration time.Duration
}

// TicketSLAView joins a timer with the ticket attributes listings filter and display on.
type TicketSLAView struct {
	SLA            *TicketSLA
	TicketKey      string
	TicketTitle    string
	TicketType     TicketType
	TicketPriority TicketPriority
	PercentElapsed float64
}
