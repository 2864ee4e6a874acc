package postgres

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-workflow/internal/core/errors"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
)

// HistoryRepository stores the append-only transition log.
type HistoryRepository struct {
	pool *pgxpool.Pool
}

var _ ports.HistoryRepository = (*HistoryRepository)(nil)

func NewHistoryRepository(pool *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{pool: pool}
}

const historyColumns = `id, ticket_id, transition_id, from_status, to_status, performed_by, comment, metadata, created_at`

func scanHistory(row pgx.Row) (*domain.TransitionHistory, error) {
	var (
		h            domain.TransitionHistory
		transitionID pgtype.Int8
		metadata     []byte
	)
	if err := row.Scan(&h.ID, &h.TicketID, &transitionID, &h.FromStatus, &h.ToStatus, &h.PerformedBy, &h.Comment, &metadata, &h.CreatedAt); err != nil {
		return nil, err
	}
	if transitionID.Valid {
		id := transitionID.Int64
		h.TransitionID = &id
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &h.Metadata); err != nil {
			return nil, err
		}
	}
	h.CreatedAt = h.CreatedAt.UTC()
	return &h, nil
}

func (r *HistoryRepository) Create(ctx context.Context, entry *domain.TransitionHistory) (*domain.TransitionHistory, error) {
	const query = `
INSERT INTO ticket_transition_history (ticket_id, transition_id, from_status, to_status, performed_by, comment, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + historyColumns

	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}

	var transitionID pgtype.Int8
	if entry.TransitionID != nil {
		transitionID = pgtype.Int8{Int64: *entry.TransitionID, Valid: true}
	}
	return scanHistory(GetDBTX(ctx, r.pool).QueryRow(ctx, query,
		entry.TicketID, transitionID, entry.FromStatus, entry.ToStatus, entry.PerformedBy,
		entry.Comment, encoded, entry.CreatedAt,
	))
}

// ListByTicket returns the ticket's history, newest first.
func (r *HistoryRepository) ListByTicket(ctx context.Context, ticketID int64) ([]*domain.TransitionHistory, error) {
	query := `SELECT ` + historyColumns + ` FROM ticket_transition_history WHERE ticket_id = $1 ORDER BY created_at DESC, id DESC`
	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.TransitionHistory, error) {
		return scanHistory(row)
	})
}

// CommentRepository is the secondary adapter for comment persistence.
type CommentRepository struct {
	pool *pgxpool.Pool
}

var _ ports.CommentRepository = (*CommentRepository)(nil)

func NewCommentRepository(pool *pgxpool.Pool) *CommentRepository {
	return &CommentRepository{pool: pool}
}

func scanComment(row pgx.Row) (*domain.Comment, error) {
	var c domain.Comment
	if err := row.Scan(&c.ID, &c.TicketID, &c.AuthorID, &c.Body, &c.IsInternal, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (r *CommentRepository) Create(ctx context.Context, comment *domain.Comment) (*domain.Comment, error) {
	const query = `
INSERT INTO comments (ticket_id, author_id, body, is_internal, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, ticket_id, author_id, body, is_internal, created_at`

	return scanComment(GetDBTX(ctx, r.pool).QueryRow(ctx, query,
		comment.TicketID, comment.AuthorID, comment.Body, comment.IsInternal, comment.CreatedAt,
	))
}

func (r *CommentRepository) ListByTicket(ctx context.Context, ticketID int64) ([]*domain.Comment, error) {
	const query = `
SELECT id, ticket_id, author_id, body, is_internal, created_at
FROM comments
WHERE ticket_id = $1
ORDER BY created_at, id`

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Comment, error) {
		return scanComment(row)
	})
}

// ActivityRepository writes the audit log.
type ActivityRepository struct {
	pool *pgxpool.Pool
}

var _ ports.ActivityRepository = (*ActivityRepository)(nil)

func NewActivityRepository(pool *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{pool: pool}
}

func (r *ActivityRepository) Create(ctx context.Context, activity *domain.Activity) error {
	const query = `
INSERT INTO activity_log (organization_id, actor_id, action, resource_type, resource_id, description, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := GetDBTX(ctx, r.pool).Exec(ctx, query,
		activity.OrganizationID, activity.ActorID, string(activity.Action), activity.ResourceType,
		activity.ResourceID, activity.Description, activity.CreatedAt,
	)
	return err
}

// UserDirectory reads approvers and notification recipients from the users table.
type UserDirectory struct {
	pool *pgxpool.Pool
}

var _ ports.UserDirectory = (*UserDirectory)(nil)

func NewUserDirectory(pool *pgxpool.Pool) *UserDirectory {
	return &UserDirectory{pool: pool}
}

// Create inserts a directory user; identity management lives elsewhere.
func (d *UserDirectory) Create(ctx context.Context, user *domain.DirectoryUser) error {
	const query = `
INSERT INTO users (id, organization_id, full_name, email, role, is_active)
VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := GetDBTX(ctx, d.pool).Exec(ctx, query,
		user.ID, user.OrganizationID, user.FullName, user.Email, user.Role, user.IsActive,
	)
	return err
}

// FindByRole returns active users of the organization holding role, oldest account first.
// A limit of zero or less returns everyone.
func (d *UserDirectory) FindByRole(ctx context.Context, orgID uuid.UUID, role string, limit int) ([]uuid.UUID, error) {
	const query = `
SELECT id
FROM users
WHERE organization_id = $1 AND role = $2 AND is_active
ORDER BY created_at, id
LIMIT NULLIF($3::int, 0)`

	if limit < 0 {
		limit = 0
	}
	rows, err := GetDBTX(ctx, d.pool).Query(ctx, query, orgID, role, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func (d *UserDirectory) GetByID(ctx context.Context, id uuid.UUID) (*domain.DirectoryUser, error) {
	const query = `SELECT id, organization_id, full_name, email, role, is_active FROM users WHERE id = $1`

	var u domain.DirectoryUser
	err := GetDBTX(ctx, d.pool).QueryRow(ctx, query, id).
		Scan(&u.ID, &u.OrganizationID, &u.FullName, &u.Email, &u.Role, &u.IsActive)
	if err != nil {
		return nil, notFound(err, apperrors.ErrUserNotFound)
	}
	return &u, nil
}
