package domain

import (
	"slices"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	apperrors "github.com/lorrc/service-desk-workflow/internal/core/errors"
)

// Workflow is a named, versioned status graph for one ticket type.
// At most one workflow per ticket type is active at a time.
type Workflow struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	TicketType  TicketType   `json:"ticketType"`
	Version     int          `json:"version"`
	IsActive    bool         `json:"isActive"`
	Statuses    []string     `json:"statuses"`
	Transitions []Transition `json:"transitions"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// Transition is a guarded edge of a workflow graph.
type Transition struct {
	ID               int64      `json:"id"`
	WorkflowID       int64      `json:"workflowId"`
	Name             string     `json:"name"`
	FromStatus       string     `json:"fromStatus"`
	ToStatus         string     `json:"toStatus"`
	RequiredRole     string     `json:"requiredRole,omitempty"`
	RequiredFields   []string   `json:"requiredFields,omitempty"`
	RequiresApproval bool       `json:"requiresApproval"`
	ApprovalRole     string     `json:"approvalRole,omitempty"`
	Actions          ActionList `json:"actions"`
}

// Transition looks up an edge by id.
func (w *Workflow) Transition(id int64) (*Transition, bool) {
	for i := range w.Transitions {
		if w.Transitions[i].ID == id {
			return &w.Transitions[i], true
		}
	}
	return nil, false
}

// FindTransition looks up the edge between two statuses.
func (w *Workflow) FindTransition(from, to string) (*Transition, bool) {
	for i := range w.Transitions {
		if w.Transitions[i].FromStatus == from && w.Transitions[i].ToStatus == to {
			return &w.Transitions[i], true
		}
	}
	return nil, false
}

// TransitionsFrom returns every edge leaving status, in declaration order.
func (w *Workflow) TransitionsFrom(status string) []Transition {
	var out []Transition
	for _, t := range w.Transitions {
		if t.FromStatus == status {
			out = append(out, t)
		}
	}
	return out
}

// HasStatus reports whether status is a node of the graph. The approval sentinel is always a node.
func (w *Workflow) HasStatus(status string) bool {
	return status == StatusAwaitingApproval || slices.Contains(w.Statuses, status)
}

// Validate checks the graph is well formed: every edge joins declared statuses
// and no two edges share the same (from, to) pair.
func (w *Workflow) Validate() error {
	if strings.TrimSpace(w.Name) == "" {
		return apperrors.Wrap(apperrors.ErrInvalidWorkflow, "name is required")
	}
	if !w.TicketType.IsValid() {
		return apperrors.Wrap(apperrors.ErrInvalidWorkflow, "unknown ticket type %q", w.TicketType)
	}
	if len(w.Statuses) == 0 {
		return apperrors.Wrap(apperrors.ErrInvalidWorkflow, "%s declares no statuses", w.Name)
	}

	statuses := mapset.NewThreadUnsafeSet[string]()
	for _, s := range w.Statuses {
		if s == StatusAwaitingApproval {
			return apperrors.Wrap(apperrors.ErrInvalidWorkflow, "%s is reserved", StatusAwaitingApproval)
		}
		if !statuses.Add(s) {
			return apperrors.Wrap(apperrors.ErrInvalidWorkflow, "status %q declared twice", s)
		}
	}

	edges := mapset.NewThreadUnsafeSet[[2]string]()
	for _, t := range w.Transitions {
		if !statuses.Contains(t.FromStatus) || !statuses.Contains(t.ToStatus) {
			return apperrors.Wrap(apperrors.ErrInvalidWorkflow,
				"transition %q joins undeclared statuses %s -> %s", t.Name, t.FromStatus, t.ToStatus)
		}
		if !edges.Add([2]string{t.FromStatus, t.ToStatus}) {
			return apperrors.Wrap(apperrors.ErrAmbiguousTransition, "%s -> %s", t.FromStatus, t.ToStatus)
		}
	}
	return nil
}

// AllowsRole reports whether an actor with role may fire the transition.
func (t *Transition) AllowsRole(role, superuserRole string) bool {
	if t.RequiredRole == "" {
		return true
	}
	if superuserRole != "" && role == superuserRole {
		return true
	}
	return role == t.RequiredRole
}

// FirstMissingField returns the first required field that is empty on ticket.
func (t *Transition) FirstMissingField(ticket *Ticket) (string, bool) {
	for _, f := range t.RequiredFields {
		if !ticket.HasField(f) {
			return f, true
		}
	}
	return "", false
}
