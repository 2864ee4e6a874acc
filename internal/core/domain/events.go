package domain

// EventType defines the type of real-time event.
type EventType string

const (
	EventStatusUpdated     EventType = "STATUS_UPDATED"
	EventApprovalRequested EventType = "APPROVAL_REQUESTED"
	EventApprovalResolved  EventType = "APPROVAL_RESOLVED"
	EventSLAPaused         EventType = "SLA_PAUSED"
	EventSLAResumed        EventType = "SLA_RESUMED"
	EventSLABreached       EventType = "SLA_BREACHED"
	EventNotification      EventType = "NOTIFICATION"
)

// Event is the payload sent over WebSocket.
type Event struct {
	Type     EventType   `json:"type"`
	Payload  interface{} `json:"payload"`
	TicketID int64       `json:"ticketId"` // Used for routing to specific ticket "rooms"
}

// StatusChangedPayload accompanies STATUS_UPDATED.
type StatusChangedPayload struct {
	TicketID   int64  `json:"ticketId"`
	FromStatus string `json:"fromStatus"`
	ToStatus   string `json:"toStatus"`
	ActorID    string `json:"actorId"`
}

// ApprovalPayload accompanies APPROVAL_REQUESTED and APPROVAL_RESOLVED.
type ApprovalPayload struct {
	ApprovalID int64  `json:"approvalId"`
	TicketID   int64  `json:"ticketId"`
	Status     string `json:"status"`
	Result     string `json:"result,omitempty"`
}

// SLAPayload accompanies the SLA_* events.
type SLAPayload struct {
	SLAID      int64  `json:"slaId"`
	TicketID   int64  `json:"ticketId"`
	Status     string `json:"status"`
	DueTime    string `json:"dueTime"`
	IsBreached bool   `json:"isBreached"`
}

// NotificationPayload accompanies NOTIFICATION, sent to a single user.
type NotificationPayload struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
}
