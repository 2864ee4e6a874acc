package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-workflow/internal/core/errors"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
)

// SLARepository implements ports.SLARepository.
type SLARepository struct {
	store *Store
}

var _ ports.SLARepository = (*SLARepository)(nil)

func NewSLARepository(store *Store) *SLARepository {
	return &SLARepository{store: store}
}

func (r *SLARepository) Create(ctx context.Context, sla *domain.TicketSLA) (*domain.TicketSLA, error) {
	var created *domain.TicketSLA
	err := r.store.do(ctx, func(st *state) error {
		s := sla.Clone()
		s.ID = st.id("ticket_slas")
		st.slas[s.ID] = s
		created = s.Clone()
		return nil
	})
	return created, err
}

func (r *SLARepository) GetByID(ctx context.Context, id int64) (*domain.TicketSLA, error) {
	var found *domain.TicketSLA
	err := r.store.do(ctx, func(st *state) error {
		s, ok := st.slas[id]
		if !ok {
			return apperrors.ErrSLANotFound
		}
		found = s.Clone()
		return nil
	})
	return found, err
}

func (r *SLARepository) GetForUpdate(ctx context.Context, id int64) (*domain.TicketSLA, error) {
	return r.GetByID(ctx, id)
}

func (r *SLARepository) Update(ctx context.Context, sla *domain.TicketSLA) error {
	return r.store.do(ctx, func(st *state) error {
		if _, ok := st.slas[sla.ID]; !ok {
			return apperrors.ErrSLANotFound
		}
		st.slas[sla.ID] = sla.Clone()
		return nil
	})
}

func (r *SLARepository) ActiveForTicket(ctx context.Context, ticketID int64) (*domain.TicketSLA, error) {
	var found *domain.TicketSLA
	err := r.store.do(ctx, func(st *state) error {
		for _, s := range st.slas {
			if s.TicketID != ticketID || !s.IsActive() {
				continue
			}
			if found == nil || s.ID > found.ID {
				found = s
			}
		}
		if found == nil {
			return apperrors.ErrSLANotFound
		}
		found = found.Clone()
		return nil
	})
	return found, err
}

func (r *SLARepository) ListByTicket(ctx context.Context, ticketID int64) ([]*domain.TicketSLA, error) {
	out := make([]*domain.TicketSLA, 0)
	err := r.store.do(ctx, func(st *state) error {
		for _, s := range st.slas {
			if s.TicketID == ticketID {
				out = append(out, s.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r *SLARepository) ListRunning(ctx context.Context, orgID *uuid.UUID) ([]*domain.TicketSLAView, error) {
	out := make([]*domain.TicketSLAView, 0)
	err := r.store.do(ctx, func(st *state) error {
		for _, s := range st.slas {
			if s.Status != domain.SLAInProgress {
				continue
			}
			if orgID != nil && s.OrganizationID != *orgID {
				continue
			}
			if view, ok := viewOf(st, s); ok {
				out = append(out, view)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].SLA.DueTime.Before(out[j].SLA.DueTime) })
	return out, err
}

// ListBreached returns breached timers, most recent breach first.
func (r *SLARepository) ListBreached(ctx context.Context, params ports.ListBreachesParams) ([]*domain.TicketSLAView, error) {
	out := make([]*domain.TicketSLAView, 0)
	err := r.store.do(ctx, func(st *state) error {
		for _, s := range st.slas {
			if !s.IsBreached || s.OrganizationID != params.OrganizationID {
				continue
			}
			if s.BreachTime == nil || s.BreachTime.Before(params.Since) {
				continue
			}
			view, ok := viewOf(st, s)
			if !ok {
				continue
			}
			if params.TicketType != nil && view.TicketType != *params.TicketType {
				continue
			}
			if params.Priority != nil && view.TicketPriority != *params.Priority {
				continue
			}
			out = append(out, view)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].SLA.BreachTime.After(*out[j].SLA.BreachTime) })
	return paginate(out, params.Limit, params.Offset), nil
}

func (r *SLARepository) CreatePauseEvent(ctx context.Context, event *domain.SLAPauseEvent) (*domain.SLAPauseEvent, error) {
	var created *domain.SLAPauseEvent
	err := r.store.do(ctx, func(st *state) error {
		cp := *event
		cp.ID = st.id("sla_pause_history")
		st.pauses[cp.ID] = &cp
		out := cp
		created = &out
		return nil
	})
	return created, err
}

func (r *SLARepository) OpenPauseEvent(ctx context.Context, slaID int64) (*domain.SLAPauseEvent, error) {
	var found *domain.SLAPauseEvent
	err := r.store.do(ctx, func(st *state) error {
		for _, p := range st.pauses {
			if p.TicketSLAID == slaID && p.IsOpen() {
				cp := *p
				found = &cp
				return nil
			}
		}
		return apperrors.ErrPauseNotFound
	})
	return found, err
}

func (r *SLARepository) UpdatePauseEvent(ctx context.Context, event *domain.SLAPauseEvent) error {
	return r.store.do(ctx, func(st *state) error {
		if _, ok := st.pauses[event.ID]; !ok {
			return apperrors.ErrPauseNotFound
		}
		cp := *event
		st.pauses[event.ID] = &cp
		return nil
	})
}

func (r *SLARepository) ListPauseEvents(ctx context.Context, slaID int64) ([]*domain.SLAPauseEvent, error) {
	out := make([]*domain.SLAPauseEvent, 0)
	err := r.store.do(ctx, func(st *state) error {
		for _, p := range st.pauses {
			if p.TicketSLAID == slaID {
				cp := *p
				out = append(out, &cp)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].PausedAt.Before(out[j].PausedAt) })
	return out, err
}

// SLADefinitionRepository implements ports.SLADefinitionRepository.
type SLADefinitionRepository struct {
	store *Store
}

var _ ports.SLADefinitionRepository = (*SLADefinitionRepository)(nil)

func NewSLADefinitionRepository(store *Store) *SLADefinitionRepository {
	return &SLADefinitionRepository{store: store}
}

func (r *SLADefinitionRepository) Create(ctx context.Context, def *domain.SLADefinition) (*domain.SLADefinition, error) {
	var created *domain.SLADefinition
	err := r.store.do(ctx, func(st *state) error {
		created = st.addDefinition(def)
		return nil
	})
	return created, err
}

// FindApplicable prefers a definition for the ticket type over a type-less one.
func (r *SLADefinitionRepository) FindApplicable(ctx context.Context, orgID uuid.UUID, ticketType domain.TicketType, priority domain.TicketPriority) (*domain.SLADefinition, error) {
	var found *domain.SLADefinition
	err := r.store.do(ctx, func(st *state) error {
		for _, d := range st.definitions {
			if !d.IsActive || d.OrganizationID != orgID || d.Priority != priority {
				continue
			}
			if d.TicketType != nil && *d.TicketType != ticketType {
				continue
			}
			if found == nil || (found.TicketType == nil && d.TicketType != nil) {
				found = d
			}
		}
		if found == nil {
			return apperrors.Wrap(apperrors.ErrNotFound, "no SLA definition for %s/%s", ticketType, priority)
		}
		cp := *found
		found = &cp
		return nil
	})
	return found, err
}

func (r *SLADefinitionRepository) List(ctx context.Context, orgID uuid.UUID, params ports.ListSLADefinitionsParams) ([]*domain.SLADefinition, error) {
	out := make([]*domain.SLADefinition, 0)
	err := r.store.do(ctx, func(st *state) error {
		for _, d := range st.definitions {
			if d.OrganizationID != orgID {
				continue
			}
			if params.TicketType != nil && (d.TicketType == nil || *d.TicketType != *params.TicketType) {
				continue
			}
			if params.Active != nil && d.IsActive != *params.Active {
				continue
			}
			cp := *d
			out = append(out, &cp)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if ta, tb := definitionType(a), definitionType(b); ta != tb {
			return ta < tb
		}
		if a.Priority != b.Priority {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		return a.ID < b.ID
	})
	return out, nil
}

// definitionType sorts type-less definitions first.
func definitionType(d *domain.SLADefinition) string {
	if d.TicketType == nil {
		return ""
	}
	return string(*d.TicketType)
}

func viewOf(st *state, sla *domain.TicketSLA) (*domain.TicketSLAView, bool) {
	ticket, ok := st.tickets[sla.TicketID]
	if !ok || ticket.IsDeleted {
		return nil, false
	}
	return &domain.TicketSLAView{
		SLA:            sla.Clone(),
		TicketKey:      ticket.Key,
		TicketTitle:    ticket.Title,
		TicketType:     ticket.Type,
		TicketPriority: ticket.Priority,
	}, true
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return items[:0]
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
