package domain

import (
	"time"

	"github.com/google/uuid"
)

// ActivityAction names an entry in the audit trail.
type ActivityAction string

const (
	ActivityTransitionPerformed ActivityAction = "transition.performed"
	ActivityApprovalRequested   ActivityAction = "transition.approval_requested"
	ActivityApprovalApproved    ActivityAction = "approval.approved"
	ActivityApprovalCompleted   ActivityAction = "approval.completed"
	ActivityApprovalRejected    ActivityAction = "approval.rejected"
	ActivitySLAStarted          ActivityAction = "sla.started"
	ActivitySLAPaused           ActivityAction = "sla.paused"
	ActivitySLAResumed          ActivityAction = "sla.resumed"
	ActivitySLABreached         ActivityAction = "sla.breached"
	ActivitySLACompleted        ActivityAction = "sla.completed"
)

// Activity is a fire-and-forget audit entry.
type Activity struct {
	ID             int64
	OrganizationID uuid.UUID
	ActorID        uuid.UUID
	Action         ActivityAction
	ResourceType   string
	ResourceID     int64
	Description    string
	CreatedAt      time.Time
}
