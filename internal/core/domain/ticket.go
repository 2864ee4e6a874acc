package domain

import (
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/lorrc/service-desk-workflow/internal/core/errors"
)

// TicketType selects which workflow governs a ticket.
type TicketType string

const (
	TypeEpic           TicketType = "epic"
	TypeStory          TicketType = "story"
	TypeTask           TicketType = "task"
	TypeBug            TicketType = "bug"
	TypeIncident       TicketType = "incident"
	TypeServiceRequest TicketType = "service_request"
	TypeProblem        TicketType = "problem"
	TypeChange         TicketType = "change"
)

// TicketTypes lists every supported ticket type.
var TicketTypes = []TicketType{
	TypeEpic, TypeStory, TypeTask, TypeBug,
	TypeIncident, TypeServiceRequest, TypeProblem, TypeChange,
}

func (t TicketType) IsValid() bool {
	for _, known := range TicketTypes {
		if t == known {
			return true
		}
	}
	return false
}

// TicketPriority represents the urgency of a ticket.
type TicketPriority string

const (
	PriorityLow      TicketPriority = "low"
	PriorityMedium   TicketPriority = "medium"
	PriorityHigh     TicketPriority = "high"
	PriorityCritical TicketPriority = "critical"
)

func (p TicketPriority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Rank orders priorities from low (1) to critical (4). Unknown priorities rank 0.
func (p TicketPriority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityCritical:
		return 4
	}
	return 0
}

// StatusAwaitingApproval is the status a ticket holds while an approval is pending.
// Every workflow implicitly contains it.
const StatusAwaitingApproval = "awaiting_approval"

// Ticket fields addressable by workflow actions and required-field guards.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldAssigneeID  = "assignee_id"
	FieldPriority    = "priority"
	FieldResolution  = "resolution"
	FieldDueDate     = "due_date"
	FieldResolvedAt  = "resolved_at"
	FieldClosedAt    = "closed_at"

	customFieldPrefix = "custom_fields."
)

// protectedFields are owned by the engine or by ticket creation and cannot be set by actions.
var protectedFields = map[string]bool{
	"id":              true,
	"key":             true,
	"status":          true,
	"type":            true,
	"organization_id": true,
	"reporter_id":     true,
	"sla_due_time":    true,
	"is_deleted":      true,
	"created_at":      true,
	"updated_at":      true,
}

// Ticket is the subject of the workflow engine. Generic CRUD lives elsewhere;
// the engine only reads guards and writes status and action-targeted fields.
type Ticket struct {
	ID             int64
	Key            string
	OrganizationID uuid.UUID
	Type           TicketType
	Title          string
	Description    string
	Status         string
	Priority       TicketPriority
	ReporterID     uuid.UUID
	AssigneeID     *uuid.UUID
	Resolution     string
	DueDate        *time.Time
	ResolvedAt     *time.Time
	ClosedAt       *time.Time
	SLADueTime     *time.Time
	IsDeleted      bool
	CustomFields   map[string]string
	CreatedAt      time.Time
	UpdatedAt      *time.Time
}

// Clone returns a copy that shares no mutable state with t.
func (t *Ticket) Clone() *Ticket {
	c := *t
	c.CustomFields = maps.Clone(t.CustomFields)
	return &c
}

// BelongsTo reports whether the ticket is visible to the given tenant.
func (t *Ticket) BelongsTo(orgID uuid.UUID) bool {
	return t.OrganizationID == orgID
}

// HasField reports whether the named field is present and non-empty.
// Unknown fields are treated as absent.
func (t *Ticket) HasField(name string) bool {
	switch name {
	case FieldTitle:
		return strings.TrimSpace(t.Title) != ""
	case FieldDescription:
		return strings.TrimSpace(t.Description) != ""
	case FieldAssigneeID:
		return t.AssigneeID != nil && *t.AssigneeID != uuid.Nil
	case FieldPriority:
		return t.Priority != ""
	case FieldResolution:
		return strings.TrimSpace(t.Resolution) != ""
	case FieldDueDate:
		return t.DueDate != nil
	case FieldResolvedAt:
		return t.ResolvedAt != nil
	case FieldClosedAt:
		return t.ClosedAt != nil
	}

	if key, ok := strings.CutPrefix(name, customFieldPrefix); ok {
		return strings.TrimSpace(t.CustomFields[key]) != ""
	}
	return false
}

// SetField assigns a literal value to a named field.
func (t *Ticket) SetField(name, value string, now time.Time) error {
	if protectedFields[name] {
		return apperrors.Wrap(apperrors.ErrProtectedField, "%s", name)
	}

	switch name {
	case FieldTitle:
		if strings.TrimSpace(value) == "" {
			return apperrors.Wrap(apperrors.ErrInvalidFieldValue, "title cannot be empty")
		}
		t.Title = value
	case FieldDescription:
		t.Description = value
	case FieldResolution:
		t.Resolution = value
	case FieldAssigneeID:
		if value == "" {
			t.AssigneeID = nil
			break
		}
		id, err := uuid.Parse(value)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInvalidFieldValue, "assignee_id %q", value)
		}
		t.AssigneeID = &id
	case FieldPriority:
		p := TicketPriority(value)
		if !p.IsValid() {
			return apperrors.Wrap(apperrors.ErrInvalidFieldValue, "priority %q", value)
		}
		t.Priority = p
	case FieldDueDate, FieldResolvedAt, FieldClosedAt:
		ts, err := parseFieldTime(value)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInvalidFieldValue, "%s %q", name, value)
		}
		t.setTimeField(name, ts)
	default:
		key, ok := strings.CutPrefix(name, customFieldPrefix)
		if !ok || key == "" {
			return apperrors.Wrap(apperrors.ErrUnknownField, "%s", name)
		}
		if t.CustomFields == nil {
			t.CustomFields = make(map[string]string)
		}
		t.CustomFields[key] = value
	}

	t.touch(now)
	return nil
}

// SetFieldNow stamps a timestamp field with now.
func (t *Ticket) SetFieldNow(name string, now time.Time) error {
	switch name {
	case FieldDueDate, FieldResolvedAt, FieldClosedAt:
		t.setTimeField(name, now)
		t.touch(now)
		return nil
	}

	if key, ok := strings.CutPrefix(name, customFieldPrefix); ok && key != "" {
		return t.SetField(name, now.Format(time.RFC3339), now)
	}
	if protectedFields[name] {
		return apperrors.Wrap(apperrors.ErrProtectedField, "%s", name)
	}
	return apperrors.Wrap(apperrors.ErrInvalidFieldValue, "%s does not hold a timestamp", name)
}

// Assign sets the assignee of the ticket.
func (t *Ticket) Assign(userID uuid.UUID, now time.Time) {
	t.AssigneeID = &userID
	t.touch(now)
}

// MoveTo changes the ticket's status without any guard evaluation.
func (t *Ticket) MoveTo(status string, now time.Time) {
	t.Status = status
	t.touch(now)
}

func (t *Ticket) setTimeField(name string, ts time.Time) {
	switch name {
	case FieldDueDate:
		t.DueDate = &ts
	case FieldResolvedAt:
		t.ResolvedAt = &ts
	case FieldClosedAt:
		t.ClosedAt = &ts
	}
}

func (t *Ticket) touch(now time.Time) {
	t.UpdatedAt = &now
}

func parseFieldTime(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}
