package domain

import "github.com/google/uuid"

// Actor is the authenticated caller of an engine operation.
type Actor struct {
	ID             uuid.UUID
	Role           string
	OrganizationID uuid.UUID
}

// DirectoryUser is the slice of identity data the engine needs: who holds which role,
// and where to send notifications.
type DirectoryUser struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	FullName       string
	Email          string
	Role           string
	IsActive       bool
}
