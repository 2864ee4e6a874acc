package memory

import (
	"context"

	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-workflow/internal/core/errors"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
)

// TicketRepository implements ports.TicketRepository.
type TicketRepository struct {
	store *Store
}

var _ ports.TicketRepository = (*TicketRepository)(nil)

func NewTicketRepository(store *Store) *TicketRepository {
	return &TicketRepository{store: store}
}

// Create stores a new ticket. Used for seeding.
func (r *TicketRepository) Create(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	var created *domain.Ticket
	err := r.store.do(ctx, func(st *state) error {
		created = st.addTicket(ticket, r.store.now())
		return nil
	})
	return created, err
}

func (r *TicketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	var ticket *domain.Ticket
	err := r.store.do(ctx, func(st *state) error {
		t, ok := st.tickets[id]
		if !ok {
			return apperrors.ErrTicketNotFound
		}
		ticket = t.Clone()
		return nil
	})
	return ticket, err
}

// GetForUpdate is GetByID; the store lock held by the transaction is the row lock.
func (r *TicketRepository) GetForUpdate(ctx context.Context, id int64) (*domain.Ticket, error) {
	return r.GetByID(ctx, id)
}

func (r *TicketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	return r.store.do(ctx, func(st *state) error {
		if _, ok := st.tickets[ticket.ID]; !ok {
			return apperrors.ErrTicketNotFound
		}
		now := r.store.now()
		updated := ticket.Clone()
		updated.UpdatedAt = &now
		st.tickets[ticket.ID] = updated
		return nil
	})
}
