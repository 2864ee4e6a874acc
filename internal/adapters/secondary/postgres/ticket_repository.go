package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-workflow/internal/core/errors"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
	"github.com/lorrc/service-desk-workflow/internal/core/utils"
)

// TicketRepository is the secondary adapter for the workflow-relevant ticket columns.
type TicketRepository struct {
	pool *pgxpool.Pool
}

// Ensure TicketRepository implements the ports.TicketRepository interface.
var _ ports.TicketRepository = (*TicketRepository)(nil)

// NewTicketRepository creates a new ticket repository.
func NewTicketRepository(pool *pgxpool.Pool) *TicketRepository {
	return &TicketRepository{pool: pool}
}

const ticketColumns = `id, key, organization_id, type, title, description, status, priority,
	reporter_id, assignee_id, resolution, due_date, resolved_at, closed_at, sla_due_time,
	is_deleted, custom_fields, created_at, updated_at`

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		t          domain.Ticket
		ticketType string
		priority   string
		assignee   pgtype.UUID
		dueDate    pgtype.Timestamptz
		resolvedAt pgtype.Timestamptz
		closedAt   pgtype.Timestamptz
		slaDue     pgtype.Timestamptz
		updatedAt  pgtype.Timestamptz
	)
	err := row.Scan(
		&t.ID, &t.Key, &t.OrganizationID, &ticketType, &t.Title, &t.Description, &t.Status, &priority,
		&t.ReporterID, &assignee, &t.Resolution, &dueDate, &resolvedAt, &closedAt, &slaDue,
		&t.IsDeleted, &t.CustomFields, &t.CreatedAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Type = domain.TicketType(ticketType)
	t.Priority = domain.TicketPriority(priority)
	t.AssigneeID = utils.FromUUID(assignee)
	t.DueDate = utils.FromTimestamptz(dueDate)
	t.ResolvedAt = utils.FromTimestamptz(resolvedAt)
	t.ClosedAt = utils.FromTimestamptz(closedAt)
	t.SLADueTime = utils.FromTimestamptz(slaDue)
	t.UpdatedAt = utils.FromTimestamptz(updatedAt)
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

// Create inserts a ticket. Ticket CRUD belongs to another service; this exists for
// seeding and tests.
func (r *TicketRepository) Create(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	const query = `
INSERT INTO tickets (key, organization_id, type, title, description, status, priority,
	reporter_id, assignee_id, resolution, custom_fields)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING ` + ticketColumns

	custom := ticket.CustomFields
	if custom == nil {
		custom = map[string]string{}
	}
	return scanTicket(GetDBTX(ctx, r.pool).QueryRow(ctx, query,
		ticket.Key, ticket.OrganizationID, string(ticket.Type), ticket.Title, ticket.Description,
		ticket.Status, string(ticket.Priority), ticket.ReporterID, utils.ToUUID(ticket.AssigneeID),
		ticket.Resolution, custom,
	))
}

// GetByID retrieves a single ticket by its ID.
func (r *TicketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1`
	ticket, err := scanTicket(GetDBTX(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, apperrors.ErrTicketNotFound)
	}
	return ticket, nil
}

// GetForUpdate locks the ticket row until the surrounding transaction ends.
func (r *TicketRepository) GetForUpdate(ctx context.Context, id int64) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1 FOR UPDATE`
	ticket, err := scanTicket(GetDBTX(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, apperrors.ErrTicketNotFound)
	}
	return ticket, nil
}

// Update persists the columns the engine is allowed to change.
func (r *TicketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
UPDATE tickets
SET title = $2, description = $3, status = $4, priority = $5, assignee_id = $6,
	resolution = $7, due_date = $8, resolved_at = $9, closed_at = $10, sla_due_time = $11,
	custom_fields = $12, updated_at = COALESCE($13, NOW())
WHERE id = $1`

	custom := ticket.CustomFields
	if custom == nil {
		custom = map[string]string{}
	}
	tag, err := GetDBTX(ctx, r.pool).Exec(ctx, query,
		ticket.ID, ticket.Title, ticket.Description, ticket.Status, string(ticket.Priority),
		utils.ToUUID(ticket.AssigneeID), ticket.Resolution,
		utils.ToTimestamptz(ticket.DueDate), utils.ToTimestamptz(ticket.ResolvedAt),
		utils.ToTimestamptz(ticket.ClosedAt), utils.ToTimestamptz(ticket.SLADueTime),
		custom, utils.ToTimestamptz(ticket.UpdatedAt),
	)
	if err != nil {
		return err
	}
	return rowsAffected(tag, apperrors.ErrTicketNotFound)
}
