package memory

import (
	"context"
	"maps"
	"sort"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-workflow/internal/core/errors"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
)

// HistoryRepository implements ports.HistoryRepository.
type HistoryRepository struct {
	store *Store
}

var _ ports.HistoryRepository = (*HistoryRepository)(nil)

func NewHistoryRepository(store *Store) *HistoryRepository {
	return &HistoryRepository{store: store}
}

func (r *HistoryRepository) Create(ctx context.Context, entry *domain.TransitionHistory) (*domain.TransitionHistory, error) {
	var created *domain.TransitionHistory
	err := r.store.do(ctx, func(st *state) error {
		cp := *entry
		cp.ID = st.id("ticket_transitions")
		cp.Metadata = maps.Clone(entry.Metadata)
		st.history = append(st.history, &cp)
		out := cp
		created = &out
		return nil
	})
	return created, err
}

// ListByTicket returns the ticket's history, newest first.
func (r *HistoryRepository) ListByTicket(ctx context.Context, ticketID int64) ([]*domain.TransitionHistory, error) {
	out := make([]*domain.TransitionHistory, 0)
	err := r.store.do(ctx, func(st *state) error {
		for _, h := range st.history {
			if h.TicketID == ticketID {
				cp := *h
				out = append(out, &cp)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, err
}

// CommentRepository implements ports.CommentRepository.
type CommentRepository struct {
	store *Store
}

var _ ports.CommentRepository = (*CommentRepository)(nil)

func NewCommentRepository(store *Store) *CommentRepository {
	return &CommentRepository{store: store}
}

func (r *CommentRepository) Create(ctx context.Context, comment *domain.Comment) (*domain.Comment, error) {
	var created *domain.Comment
	err := r.store.do(ctx, func(st *state) error {
		cp := *comment
		cp.ID = st.id("comments")
		st.comments = append(st.comments, &cp)
		out := cp
		created = &out
		return nil
	})
	return created, err
}

func (r *CommentRepository) ListByTicket(ctx context.Context, ticketID int64) ([]*domain.Comment, error) {
	var out []*domain.Comment
	err := r.store.do(ctx, func(st *state) error {
		out = commentsFor(st, ticketID)
		return nil
	})
	return out, err
}

func commentsFor(st *state, ticketID int64) []*domain.Comment {
	out := make([]*domain.Comment, 0)
	for _, c := range st.comments {
		if c.TicketID == ticketID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out
}

// ActivityRepository implements ports.ActivityRepository.
type ActivityRepository struct {
	store *Store
}

var _ ports.ActivityRepository = (*ActivityRepository)(nil)

func NewActivityRepository(store *Store) *ActivityRepository {
	return &ActivityRepository{store: store}
}

func (r *ActivityRepository) Create(ctx context.Context, activity *domain.Activity) error {
	return r.store.do(ctx, func(st *state) error {
		cp := *activity
		cp.ID = st.id("activity_log")
		st.activities = append(st.activities, &cp)
		return nil
	})
}

// UserDirectory implements ports.UserDirectory over the users registered with AddUser.
type UserDirectory struct {
	store *Store
}

var _ ports.UserDirectory = (*UserDirectory)(nil)

func NewUserDirectory(store *Store) *UserDirectory {
	return &UserDirectory{store: store}
}

func (d *UserDirectory) Create(ctx context.Context, user *domain.DirectoryUser) error {
	return d.store.do(ctx, func(st *state) error {
		if _, ok := st.users[user.ID]; ok {
			return apperrors.Wrap(apperrors.ErrInvalidInput, "user %s already exists", user.ID)
		}
		st.addUser(user)
		return nil
	})
}

func (d *UserDirectory) FindByRole(ctx context.Context, orgID uuid.UUID, role string, limit int) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0)
	err := d.store.do(ctx, func(st *state) error {
		for _, id := range st.userOrder {
			u := st.users[id]
			if !u.IsActive || u.OrganizationID != orgID || u.Role != role {
				continue
			}
			out = append(out, u.ID)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (d *UserDirectory) GetByID(ctx context.Context, id uuid.UUID) (*domain.DirectoryUser, error) {
	var found *domain.DirectoryUser
	err := d.store.do(ctx, func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return apperrors.ErrUserNotFound
		}
		cp := *u
		found = &cp
		return nil
	})
	return found, err
}
