package domain

import (
	"time"

	"github.com/google/uuid"
)

// Comment is a note on a ticket. Internal comments are hidden from requesters.
type Comment struct {
	ID         int64
	TicketID   int64
	AuthorID   uuid.UUID
	Body       string
	IsInternal bool
	CreatedAt  time.Time
}
