package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-workflow/internal/core/errors"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
	"github.com/lorrc/service-desk-workflow/internal/core/utils"
)

// ApprovalRepository persists approvals and their responses.
type ApprovalRepository struct {
	pool *pgxpool.Pool
}

var _ ports.ApprovalRepository = (*ApprovalRepository)(nil)

func NewApprovalRepository(pool *pgxpool.Pool) *ApprovalRepository {
	return &ApprovalRepository{pool: pool}
}

const approvalColumns = `id, ticket_id, transition_id, requested_by, required_approvers, status,
	approved_by, rejected_by, rejection_reason, from_status, to_status, requested_at, completed_at`

func scanApproval(row pgx.Row) (*domain.TicketApproval, error) {
	var (
		a           domain.TicketApproval
		status      string
		rejectedBy  pgtype.UUID
		completedAt pgtype.Timestamptz
	)
	err := row.Scan(&a.ID, &a.TicketID, &a.TransitionID, &a.RequestedBy, &a.RequiredApprovers, &status,
		&a.ApprovedBy, &rejectedBy, &a.RejectionReason, &a.FromStatus, &a.ToStatus, &a.RequestedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	a.Status = domain.ApprovalStatus(status)
	a.RejectedBy = utils.FromUUID(rejectedBy)
	a.CompletedAt = utils.FromTimestamptz(completedAt)
	a.RequestedAt = a.RequestedAt.UTC()
	return &a, nil
}

func collectApprovals(rows pgx.Rows) ([]*domain.TicketApproval, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.TicketApproval, error) {
		return scanApproval(row)
	})
}

func (r *ApprovalRepository) Create(ctx context.Context, approval *domain.TicketApproval) (*domain.TicketApproval, error) {
	const query = `
INSERT INTO ticket_approvals (ticket_id, transition_id, requested_by, required_approvers, status,
	approved_by, from_status, to_status, requested_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + approvalColumns

	approvedBy := approval.ApprovedBy
	if approvedBy == nil {
		approvedBy = []uuid.UUID{}
	}
	return scanApproval(GetDBTX(ctx, r.pool).QueryRow(ctx, query,
		approval.TicketID, approval.TransitionID, approval.RequestedBy, approval.RequiredApprovers,
		string(approval.Status), approvedBy, approval.FromStatus, approval.ToStatus, approval.RequestedAt,
	))
}

func (r *ApprovalRepository) GetByID(ctx context.Context, id int64) (*domain.TicketApproval, error) {
	query := `SELECT ` + approvalColumns + ` FROM ticket_approvals WHERE id = $1`
	a, err := scanApproval(GetDBTX(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, apperrors.ErrApprovalNotFound)
	}
	return a, nil
}

// GetForUpdate locks the approval row so responses are counted one at a time.
func (r *ApprovalRepository) GetForUpdate(ctx context.Context, id int64) (*domain.TicketApproval, error) {
	query := `SELECT ` + approvalColumns + ` FROM ticket_approvals WHERE id = $1 FOR UPDATE`
	a, err := scanApproval(GetDBTX(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, apperrors.ErrApprovalNotFound)
	}
	return a, nil
}

func (r *ApprovalRepository) Update(ctx context.Context, approval *domain.TicketApproval) error {
	const query = `
UPDATE ticket_approvals
SET status = $2, approved_by = $3, rejected_by = $4, rejection_reason = $5, completed_at = $6
WHERE id = $1`

	tag, err := GetDBTX(ctx, r.pool).Exec(ctx, query,
		approval.ID, string(approval.Status), approval.ApprovedBy, utils.ToUUID(approval.RejectedBy),
		approval.RejectionReason, utils.ToTimestamptz(approval.CompletedAt),
	)
	if err != nil {
		return err
	}
	return rowsAffected(tag, apperrors.ErrApprovalNotFound)
}

// CreateResponse relies on the (approval_id, user_id) unique key to reject a second answer.
func (r *ApprovalRepository) CreateResponse(ctx context.Context, response *domain.ApprovalResponse) (*domain.ApprovalResponse, error) {
	const query = `
INSERT INTO approval_responses (approval_id, user_id, response, notes, responded_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`

	created := *response
	err := GetDBTX(ctx, r.pool).QueryRow(ctx, query,
		response.ApprovalID, response.UserID, string(response.Decision), response.Notes, response.RespondedAt,
	).Scan(&created.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.ErrAlreadyResponded
		}
		return nil, err
	}
	return &created, nil
}

func (r *ApprovalRepository) HasResponded(ctx context.Context, approvalID int64, userID uuid.UUID) (bool, error) {
	var exists bool
	err := GetDBTX(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM approval_responses WHERE approval_id = $1 AND user_id = $2)`,
		approvalID, userID,
	).Scan(&exists)
	return exists, err
}

func (r *ApprovalRepository) CountApproved(ctx context.Context, approvalID int64) (int, error) {
	var count int
	err := GetDBTX(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM approval_responses WHERE approval_id = $1 AND response = 'approved'`,
		approvalID,
	).Scan(&count)
	return count, err
}

func (r *ApprovalRepository) ListResponses(ctx context.Context, approvalID int64) ([]*domain.ApprovalResponse, error) {
	rows, err := GetDBTX(ctx, r.pool).Query(ctx, `
SELECT id, approval_id, user_id, response, notes, responded_at
FROM approval_responses
WHERE approval_id = $1
ORDER BY responded_at, id`, approvalID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.ApprovalResponse, error) {
		var (
			resp     domain.ApprovalResponse
			decision string
		)
		if err := row.Scan(&resp.ID, &resp.ApprovalID, &resp.UserID, &decision, &resp.Notes, &resp.RespondedAt); err != nil {
			return nil, err
		}
		resp.Decision = domain.Decision(decision)
		resp.RespondedAt = resp.RespondedAt.UTC()
		return &resp, nil
	})
}

func (r *ApprovalRepository) ListPendingForUser(ctx context.Context, userID uuid.UUID) ([]*domain.TicketApproval, error) {
	query := `
SELECT ` + approvalColumns + `
FROM ticket_approvals a
WHERE a.status = 'pending'
  AND $1 = ANY (a.required_approvers)
  AND NOT EXISTS (
    SELECT 1 FROM approval_responses r WHERE r.approval_id = a.id AND r.user_id = $1
  )
ORDER BY a.id`

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return collectApprovals(rows)
}
