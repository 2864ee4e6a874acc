package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-workflow/internal/core/errors"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
)

// WorkflowRepository stores versioned workflow graphs and their transitions.
type WorkflowRepository struct {
	pool *pgxpool.Pool
	tx   *TransactionManager
}

var _ ports.WorkflowRepository = (*WorkflowRepository)(nil)

func NewWorkflowRepository(pool *pgxpool.Pool) *WorkflowRepository {
	return &WorkflowRepository{pool: pool, tx: NewTransactionManager(pool)}
}

const workflowColumns = `id, name, description, ticket_type, version, is_active, statuses, created_at`

const transitionColumns = `id, workflow_id, name, from_status, to_status, required_role,
	required_fields, requires_approval, approval_role, actions`

func scanWorkflow(row pgx.Row) (*domain.Workflow, error) {
	var (
		w          domain.Workflow
		ticketType string
	)
	if err := row.Scan(&w.ID, &w.Name, &w.Description, &ticketType, &w.Version, &w.IsActive, &w.Statuses, &w.CreatedAt); err != nil {
		return nil, err
	}
	w.TicketType = domain.TicketType(ticketType)
	w.CreatedAt = w.CreatedAt.UTC()
	return &w, nil
}

func scanTransition(row pgx.Row) (*domain.Transition, error) {
	var (
		t       domain.Transition
		actions []byte
	)
	err := row.Scan(&t.ID, &t.WorkflowID, &t.Name, &t.FromStatus, &t.ToStatus, &t.RequiredRole,
		&t.RequiredFields, &t.RequiresApproval, &t.ApprovalRole, &actions)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(actions, &t.Actions); err != nil {
		return nil, fmt.Errorf("decode actions of transition %d: %w", t.ID, err)
	}
	return &t, nil
}

func (r *WorkflowRepository) loadTransitions(ctx context.Context, db DBTX, w *domain.Workflow) error {
	query := `SELECT ` + transitionColumns + ` FROM workflow_transitions WHERE workflow_id = $1 ORDER BY position`
	rows, err := db.Query(ctx, query, w.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	w.Transitions = make([]domain.Transition, 0)
	for rows.Next() {
		t, err := scanTransition(rows)
		if err != nil {
			return err
		}
		w.Transitions = append(w.Transitions, *t)
	}
	return rows.Err()
}

func (r *WorkflowRepository) getOne(ctx context.Context, where string, args ...any) (*domain.Workflow, error) {
	db := GetDBTX(ctx, r.pool)
	w, err := scanWorkflow(db.QueryRow(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE `+where, args...))
	if err != nil {
		return nil, notFound(err, apperrors.ErrWorkflowNotFound)
	}
	if err := r.loadTransitions(ctx, db, w); err != nil {
		return nil, err
	}
	return w, nil
}

func (r *WorkflowRepository) GetActiveByType(ctx context.Context, ticketType domain.TicketType) (*domain.Workflow, error) {
	return r.getOne(ctx, `ticket_type = $1 AND is_active`, string(ticketType))
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id int64) (*domain.Workflow, error) {
	return r.getOne(ctx, `id = $1`, id)
}

func (r *WorkflowRepository) GetTransition(ctx context.Context, transitionID int64) (*domain.Transition, error) {
	query := `SELECT ` + transitionColumns + ` FROM workflow_transitions WHERE id = $1`
	t, err := scanTransition(GetDBTX(ctx, r.pool).QueryRow(ctx, query, transitionID))
	if err != nil {
		return nil, notFound(err, apperrors.ErrTransitionNotFound)
	}
	return t, nil
}

func (r *WorkflowRepository) List(ctx context.Context, params ports.ListWorkflowsParams) ([]*domain.Workflow, error) {
	var (
		conds []string
		args  []any
	)
	if params.TicketType != nil {
		args = append(args, string(*params.TicketType))
		conds = append(conds, fmt.Sprintf("ticket_type = $%d", len(args)))
	}
	if params.ActiveOnly {
		conds = append(conds, "is_active")
	}

	query := `SELECT ` + workflowColumns + ` FROM workflows`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY id`

	db := GetDBTX(ctx, r.pool)
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	workflows, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Workflow, error) {
		return scanWorkflow(row)
	})
	if err != nil {
		return nil, err
	}

	for _, w := range workflows {
		if err := r.loadTransitions(ctx, db, w); err != nil {
			return nil, err
		}
	}
	return workflows, nil
}

// Save inserts the workflow as the next version for its ticket type.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *domain.Workflow, activate bool) (*domain.Workflow, error) {
	var saved *domain.Workflow
	err := r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		db := GetDBTX(ctx, r.pool)

		// serialize concurrent imports for the same type
		if _, err := db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, string(workflow.TicketType)); err != nil {
			return err
		}

		var version int
		if err := db.QueryRow(ctx,
			`SELECT COALESCE(MAX(version), 0) + 1 FROM workflows WHERE ticket_type = $1`,
			string(workflow.TicketType),
		).Scan(&version); err != nil {
			return err
		}

		if activate {
			if _, err := db.Exec(ctx,
				`UPDATE workflows SET is_active = FALSE WHERE ticket_type = $1 AND is_active`,
				string(workflow.TicketType),
			); err != nil {
				return err
			}
		}

		const insertWorkflow = `
INSERT INTO workflows (name, description, ticket_type, version, is_active, statuses)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + workflowColumns
		w, err := scanWorkflow(db.QueryRow(ctx, insertWorkflow,
			workflow.Name, workflow.Description, string(workflow.TicketType), version, activate, workflow.Statuses,
		))
		if err != nil {
			return err
		}

		const insertTransition = `
INSERT INTO workflow_transitions (workflow_id, position, name, from_status, to_status,
	required_role, required_fields, requires_approval, approval_role, actions)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + transitionColumns
		w.Transitions = make([]domain.Transition, 0, len(workflow.Transitions))
		for i, t := range workflow.Transitions {
			actions, err := json.Marshal(t.Actions.Specs())
			if err != nil {
				return err
			}
			fields := t.RequiredFields
			if fields == nil {
				fields = []string{}
			}
			created, err := scanTransition(db.QueryRow(ctx, insertTransition,
				w.ID, i, t.Name, t.FromStatus, t.ToStatus, t.RequiredRole, fields,
				t.RequiresApproval, t.ApprovalRole, actions,
			))
			if err != nil {
				if isUniqueViolation(err) {
					return apperrors.Wrap(apperrors.ErrAmbiguousTransition, "%s -> %s", t.FromStatus, t.ToStatus)
				}
				return err
			}
			w.Transitions = append(w.Transitions, *created)
		}

		saved = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}
