package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-workflow/internal/core/errors"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
	"github.com/lorrc/service-desk-workflow/internal/core/utils"
)

// SLARepository persists ticket SLA timers and their pause events.
type SLARepository struct {
	pool *pgxpool.Pool
}

var _ ports.SLARepository = (*SLARepository)(nil)

func NewSLARepository(pool *pgxpool.Pool) *SLARepository {
	return &SLARepository{pool: pool}
}

const slaColumns = `s.id, s.ticket_id, s.organization_id, s.sla_definition_id, s.status, s.start_time,
	s.due_time, s.total_pause_ms, s.pause_start_time, s.pause_reason, s.paused_by, s.is_breached,
	s.breach_time, s.breach_duration_ms, s.actual_duration_ms, s.completed_at, s.created_at`

// slaViewColumns extends slaColumns with the ticket fields of TicketSLAView.
const slaViewColumns = slaColumns + `, t.key, t.title, t.type, t.priority`

// rowScanner lets scanSLA read the leading columns of a wider row.
type rowScanner interface {
	Scan(dest ...any) error
}

func slaTargets(s *domain.TicketSLA, raw *slaRow) []any {
	return []any{
		&s.ID, &s.TicketID, &s.OrganizationID, &raw.definitionID, &raw.status, &s.StartTime,
		&s.DueTime, &raw.totalPauseMs, &raw.pauseStart, &s.PauseReason, &raw.pausedBy, &s.IsBreached,
		&raw.breachTime, &raw.breachMs, &raw.actualMs, &raw.completedAt, &s.CreatedAt,
	}
}

type slaRow struct {
	definitionID pgtype.Int8
	status       string
	totalPauseMs int64
	pauseStart   pgtype.Timestamptz
	pausedBy     pgtype.UUID
	breachTime   pgtype.Timestamptz
	breachMs     int64
	actualMs     pgtype.Int8
	completedAt  pgtype.Timestamptz
}

func (raw *slaRow) apply(s *domain.TicketSLA) {
	if raw.definitionID.Valid {
		id := raw.definitionID.Int64
		s.SLADefinitionID = &id
	}
	s.Status = domain.SLAStatus(raw.status)
	s.TotalPauseDuration = utils.FromMillis(raw.totalPauseMs)
	s.PauseStartTime = utils.FromTimestamptz(raw.pauseStart)
	s.PausedBy = utils.FromUUID(raw.pausedBy)
	s.BreachTime = utils.FromTimestamptz(raw.breachTime)
	s.BreachDuration = utils.FromMillis(raw.breachMs)
	if raw.actualMs.Valid {
		d := utils.FromMillis(raw.actualMs.Int64)
		s.ActualDuration = &d
	}
	s.CompletedAt = utils.FromTimestamptz(raw.completedAt)
	s.StartTime = s.StartTime.UTC()
	s.DueTime = s.DueTime.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
}

func scanSLA(row rowScanner) (*domain.TicketSLA, error) {
	var (
		s   domain.TicketSLA
		raw slaRow
	)
	if err := row.Scan(slaTargets(&s, &raw)...); err != nil {
		return nil, err
	}
	raw.apply(&s)
	return &s, nil
}

func scanSLAView(row rowScanner) (*domain.TicketSLAView, error) {
	var (
		s          domain.TicketSLA
		raw        slaRow
		view       domain.TicketSLAView
		ticketType string
		priority   string
	)
	dest := append(slaTargets(&s, &raw), &view.TicketKey, &view.TicketTitle, &ticketType, &priority)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	raw.apply(&s)
	view.SLA = &s
	view.TicketType = domain.TicketType(ticketType)
	view.TicketPriority = domain.TicketPriority(priority)
	return &view, nil
}

func collectSLAViews(rows pgx.Rows) ([]*domain.TicketSLAView, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.TicketSLAView, error) {
		return scanSLAView(row)
	})
}

func slaArgs(s *domain.TicketSLA) []any {
	var definitionID pgtype.Int8
	if s.SLADefinitionID != nil {
		definitionID = pgtype.Int8{Int64: *s.SLADefinitionID, Valid: true}
	}
	var actual pgtype.Int8
	if s.ActualDuration != nil {
		actual = pgtype.Int8{Int64: utils.ToMillis(*s.ActualDuration), Valid: true}
	}
	return []any{
		s.TicketID, s.OrganizationID, definitionID, string(s.Status), s.StartTime, s.DueTime,
		utils.ToMillis(s.TotalPauseDuration), utils.ToTimestamptz(s.PauseStartTime), s.PauseReason,
		utils.ToUUID(s.PausedBy), s.IsBreached, utils.ToTimestamptz(s.BreachTime),
		utils.ToMillis(s.BreachDuration), actual, utils.ToTimestamptz(s.CompletedAt),
	}
}

func (r *SLARepository) Create(ctx context.Context, sla *domain.TicketSLA) (*domain.TicketSLA, error) {
	query := `
INSERT INTO ticket_slas AS s (ticket_id, organization_id, sla_definition_id, status, start_time, due_time,
	total_pause_ms, pause_start_time, pause_reason, paused_by, is_breached, breach_time,
	breach_duration_ms, actual_duration_ms, completed_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
RETURNING ` + slaColumns

	args := append(slaArgs(sla), sla.CreatedAt)
	return scanSLA(GetDBTX(ctx, r.pool).QueryRow(ctx, query, args...))
}

func (r *SLARepository) GetByID(ctx context.Context, id int64) (*domain.TicketSLA, error) {
	query := `SELECT ` + slaColumns + ` FROM ticket_slas s WHERE s.id = $1`
	s, err := scanSLA(GetDBTX(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, apperrors.ErrSLANotFound)
	}
	return s, nil
}

func (r *SLARepository) GetForUpdate(ctx context.Context, id int64) (*domain.TicketSLA, error) {
	query := `SELECT ` + slaColumns + ` FROM ticket_slas s WHERE s.id = $1 FOR UPDATE`
	s, err := scanSLA(GetDBTX(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, apperrors.ErrSLANotFound)
	}
	return s, nil
}

func (r *SLARepository) Update(ctx context.Context, sla *domain.TicketSLA) error {
	const query = `
UPDATE ticket_slas
SET ticket_id = $1, organization_id = $2, sla_definition_id = $3, status = $4, start_time = $5,
	due_time = $6, total_pause_ms = $7, pause_start_time = $8, pause_reason = $9, paused_by = $10,
	is_breached = $11, breach_time = $12, breach_duration_ms = $13, actual_duration_ms = $14,
	completed_at = $15
WHERE id = $16`

	args := append(slaArgs(sla), sla.ID)
	tag, err := GetDBTX(ctx, r.pool).Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	return rowsAffected(tag, apperrors.ErrSLANotFound)
}

func (r *SLARepository) ActiveForTicket(ctx context.Context, ticketID int64) (*domain.TicketSLA, error) {
	query := `
SELECT ` + slaColumns + `
FROM ticket_slas s
WHERE s.ticket_id = $1 AND s.status <> 'completed'
ORDER BY s.id DESC
LIMIT 1`
	s, err := scanSLA(GetDBTX(ctx, r.pool).QueryRow(ctx, query, ticketID))
	if err != nil {
		return nil, notFound(err, apperrors.ErrSLANotFound)
	}
	return s, nil
}

func (r *SLARepository) ListByTicket(ctx context.Context, ticketID int64) ([]*domain.TicketSLA, error) {
	query := `SELECT ` + slaColumns + ` FROM ticket_slas s WHERE s.ticket_id = $1 ORDER BY s.id`
	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.TicketSLA, error) {
		return scanSLA(row)
	})
}

func (r *SLARepository) ListRunning(ctx context.Context, orgID *uuid.UUID) ([]*domain.TicketSLAView, error) {
	query := `
SELECT ` + slaViewColumns + `
FROM ticket_slas s
JOIN tickets t ON t.id = s.ticket_id
WHERE s.status = 'in_progress'
  AND NOT t.is_deleted
  AND ($1::uuid IS NULL OR s.organization_id = $1)
ORDER BY s.due_time, s.id`

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query, utils.ToUUID(orgID))
	if err != nil {
		return nil, err
	}
	return collectSLAViews(rows)
}

// ListBreached returns breached timers, most recent breach first.
func (r *SLARepository) ListBreached(ctx context.Context, params ports.ListBreachesParams) ([]*domain.TicketSLAView, error) {
	conds := []string{"s.is_breached", "NOT t.is_deleted", "s.organization_id = $1", "s.breach_time >= $2"}
	args := []any{params.OrganizationID, params.Since}

	if params.TicketType != nil {
		args = append(args, string(*params.TicketType))
		conds = append(conds, fmt.Sprintf("t.type = $%d", len(args)))
	}
	if params.Priority != nil {
		args = append(args, string(*params.Priority))
		conds = append(conds, fmt.Sprintf("t.priority = $%d", len(args)))
	}

	query := `
SELECT ` + slaViewColumns + `
FROM ticket_slas s
JOIN tickets t ON t.id = s.ticket_id
WHERE ` + strings.Join(conds, " AND ") + `
ORDER BY s.breach_time DESC, s.id DESC`

	if params.Limit > 0 {
		args = append(args, params.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if params.Offset > 0 {
		args = append(args, params.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectSLAViews(rows)
}

const pauseColumns = `id, ticket_sla_id, paused_at, pause_reason, paused_by, resumed_at, resumed_by, duration_ms`

func scanPauseEvent(row rowScanner) (*domain.SLAPauseEvent, error) {
	var (
		e          domain.SLAPauseEvent
		resumedAt  pgtype.Timestamptz
		resumedBy  pgtype.UUID
		durationMs int64
	)
	if err := row.Scan(&e.ID, &e.TicketSLAID, &e.PausedAt, &e.PauseReason, &e.PausedBy, &resumedAt, &resumedBy, &durationMs); err != nil {
		return nil, err
	}
	e.PausedAt = e.PausedAt.UTC()
	e.ResumedAt = utils.FromTimestamptz(resumedAt)
	e.ResumedBy = utils.FromUUID(resumedBy)
	e.Duration = utils.FromMillis(durationMs)
	return &e, nil
}

func (r *SLARepository) CreatePauseEvent(ctx context.Context, event *domain.SLAPauseEvent) (*domain.SLAPauseEvent, error) {
	const query = `
INSERT INTO sla_pause_events (ticket_sla_id, paused_at, pause_reason, paused_by)
VALUES ($1, $2, $3, $4)
RETURNING ` + pauseColumns

	created, err := scanPauseEvent(GetDBTX(ctx, r.pool).QueryRow(ctx, query,
		event.TicketSLAID, event.PausedAt, event.PauseReason, event.PausedBy,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.ErrSLANotActive
		}
		return nil, err
	}
	return created, nil
}

func (r *SLARepository) OpenPauseEvent(ctx context.Context, slaID int64) (*domain.SLAPauseEvent, error) {
	query := `SELECT ` + pauseColumns + ` FROM sla_pause_events WHERE ticket_sla_id = $1 AND resumed_at IS NULL`
	e, err := scanPauseEvent(GetDBTX(ctx, r.pool).QueryRow(ctx, query, slaID))
	if err != nil {
		return nil, notFound(err, apperrors.ErrPauseNotFound)
	}
	return e, nil
}

func (r *SLARepository) UpdatePauseEvent(ctx context.Context, event *domain.SLAPauseEvent) error {
	const query = `
UPDATE sla_pause_events
SET resumed_at = $2, resumed_by = $3, duration_ms = $4
WHERE id = $1`

	tag, err := GetDBTX(ctx, r.pool).Exec(ctx, query,
		event.ID, utils.ToTimestamptz(event.ResumedAt), utils.ToUUID(event.ResumedBy), utils.ToMillis(event.Duration),
	)
	if err != nil {
		return err
	}
	return rowsAffected(tag, apperrors.ErrPauseNotFound)
}

func (r *SLARepository) ListPauseEvents(ctx context.Context, slaID int64) ([]*domain.SLAPauseEvent, error) {
	query := `SELECT ` + pauseColumns + ` FROM sla_pause_events WHERE ticket_sla_id = $1 ORDER BY paused_at, id`
	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query, slaID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.SLAPauseEvent, error) {
		return scanPauseEvent(row)
	})
}

// SLADefinitionRepository reads tenant SLA definitions.
type SLADefinitionRepository struct {
	pool *pgxpool.Pool
}

var _ ports.SLADefinitionRepository = (*SLADefinitionRepository)(nil)

func NewSLADefinitionRepository(pool *pgxpool.Pool) *SLADefinitionRepository {
	return &SLADefinitionRepository{pool: pool}
}

const definitionColumns = `id, organization_id, name, ticket_type, priority, resolution_minutes, is_active`

func scanDefinition(row rowScanner) (*domain.SLADefinition, error) {
	var (
		d          domain.SLADefinition
		ticketType pgtype.Text
		priority   string
	)
	if err := row.Scan(&d.ID, &d.OrganizationID, &d.Name, &ticketType, &priority, &d.ResolutionMinutes, &d.IsActive); err != nil {
		return nil, err
	}
	if tt := utils.FromNullString(ticketType); tt != nil {
		t := domain.TicketType(*tt)
		d.TicketType = &t
	}
	d.Priority = domain.TicketPriority(priority)
	return &d, nil
}

// Create inserts a definition; used by seeding and tests.
func (r *SLADefinitionRepository) Create(ctx context.Context, def *domain.SLADefinition) (*domain.SLADefinition, error) {
	const query = `
INSERT INTO sla_definitions (organization_id, name, ticket_type, priority, resolution_minutes, is_active)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + definitionColumns

	var ticketType *string
	if def.TicketType != nil {
		tt := string(*def.TicketType)
		ticketType = &tt
	}
	return scanDefinition(GetDBTX(ctx, r.pool).QueryRow(ctx, query,
		def.OrganizationID, def.Name, utils.ToNullString(ticketType), string(def.Priority),
		def.ResolutionMinutes, def.IsActive,
	))
}

// FindApplicable prefers a definition for the ticket type over a type-less one.
func (r *SLADefinitionRepository) FindApplicable(ctx context.Context, orgID uuid.UUID, ticketType domain.TicketType, priority domain.TicketPriority) (*domain.SLADefinition, error) {
	query := `
SELECT ` + definitionColumns + `
FROM sla_definitions
WHERE organization_id = $1
  AND priority = $3
  AND is_active
  AND (ticket_type = $2 OR ticket_type IS NULL)
ORDER BY ticket_type IS NULL, id
LIMIT 1`

	d, err := scanDefinition(GetDBTX(ctx, r.pool).QueryRow(ctx, query, orgID, string(ticketType), string(priority)))
	if err != nil {
		return nil, notFound(err, apperrors.Wrap(apperrors.ErrNotFound, "no SLA definition for %s/%s", ticketType, priority))
	}
	return d, nil
}

func (r *SLADefinitionRepository) List(ctx context.Context, orgID uuid.UUID, params ports.ListSLADefinitionsParams) ([]*domain.SLADefinition, error) {
	query := `
SELECT ` + definitionColumns + `
FROM sla_definitions
WHERE organization_id = $1
  AND ($2::text IS NULL OR ticket_type = $2)
  AND ($3::boolean IS NULL OR is_active = $3)
ORDER BY ticket_type NULLS FIRST,
  CASE priority WHEN 'low' THEN 1 WHEN 'medium' THEN 2 WHEN 'high' THEN 3 WHEN 'critical' THEN 4 ELSE 0 END,
  id`

	var ticketType *string
	if params.TicketType != nil {
		tt := string(*params.TicketType)
		ticketType = &tt
	}
	active := pgtype.Bool{}
	if params.Active != nil {
		active = pgtype.Bool{Bool: *params.Active, Valid: true}
	}

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query, orgID, utils.ToNullString(ticketType), active)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.SLADefinition, error) {
		return scanDefinition(row)
	})
}
