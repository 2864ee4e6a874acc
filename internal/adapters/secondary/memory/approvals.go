package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-workflow/internal/core/errors"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
)

// ApprovalRepository implements ports.ApprovalRepository.
type ApprovalRepository struct {
	store *Store
}

var _ ports.ApprovalRepository = (*ApprovalRepository)(nil)

func NewApprovalRepository(store *Store) *ApprovalRepository {
	return &ApprovalRepository{store: store}
}

func (r *ApprovalRepository) Create(ctx context.Context, approval *domain.TicketApproval) (*domain.TicketApproval, error) {
	var created *domain.TicketApproval
	err := r.store.do(ctx, func(st *state) error {
		a := approval.Clone()
		a.ID = st.id("ticket_approvals")
		st.approvals[a.ID] = a
		created = a.Clone()
		return nil
	})
	return created, err
}

func (r *ApprovalRepository) GetByID(ctx context.Context, id int64) (*domain.TicketApproval, error) {
	var found *domain.TicketApproval
	err := r.store.do(ctx, func(st *state) error {
		a, ok := st.approvals[id]
		if !ok {
			return apperrors.ErrApprovalNotFound
		}
		found = a.Clone()
		return nil
	})
	return found, err
}

func (r *ApprovalRepository) GetForUpdate(ctx context.Context, id int64) (*domain.TicketApproval, error) {
	return r.GetByID(ctx, id)
}

func (r *ApprovalRepository) Update(ctx context.Context, approval *domain.TicketApproval) error {
	return r.store.do(ctx, func(st *state) error {
		if _, ok := st.approvals[approval.ID]; !ok {
			return apperrors.ErrApprovalNotFound
		}
		st.approvals[approval.ID] = approval.Clone()
		return nil
	})
}

// CreateResponse enforces one response per approver.
func (r *ApprovalRepository) CreateResponse(ctx context.Context, response *domain.ApprovalResponse) (*domain.ApprovalResponse, error) {
	var created *domain.ApprovalResponse
	err := r.store.do(ctx, func(st *state) error {
		for _, existing := range st.responses {
			if existing.ApprovalID == response.ApprovalID && existing.UserID == response.UserID {
				return apperrors.ErrAlreadyResponded
			}
		}
		cp := *response
		cp.ID = st.id("approval_responses")
		st.responses = append(st.responses, &cp)
		out := cp
		created = &out
		return nil
	})
	return created, err
}

func (r *ApprovalRepository) HasResponded(ctx context.Context, approvalID int64, userID uuid.UUID) (bool, error) {
	var responded bool
	err := r.store.do(ctx, func(st *state) error {
		for _, resp := range st.responses {
			if resp.ApprovalID == approvalID && resp.UserID == userID {
				responded = true
				break
			}
		}
		return nil
	})
	return responded, err
}

func (r *ApprovalRepository) CountApproved(ctx context.Context, approvalID int64) (int, error) {
	count := 0
	err := r.store.do(ctx, func(st *state) error {
		for _, resp := range st.responses {
			if resp.ApprovalID == approvalID && resp.Decision == domain.DecisionApproved {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (r *ApprovalRepository) ListResponses(ctx context.Context, approvalID int64) ([]*domain.ApprovalResponse, error) {
	out := make([]*domain.ApprovalResponse, 0)
	err := r.store.do(ctx, func(st *state) error {
		for _, resp := range st.responses {
			if resp.ApprovalID == approvalID {
				cp := *resp
				out = append(out, &cp)
			}
		}
		return nil
	})
	return out, err
}

func (r *ApprovalRepository) ListPendingForUser(ctx context.Context, userID uuid.UUID) ([]*domain.TicketApproval, error) {
	out := make([]*domain.TicketApproval, 0)
	err := r.store.do(ctx, func(st *state) error {
		responded := make(map[int64]bool)
		for _, resp := range st.responses {
			if resp.UserID == userID {
				responded[resp.ApprovalID] = true
			}
		}
		for _, a := range st.approvals {
			if a.IsPending() && a.IsRequiredApprover(userID) && !responded[a.ID] {
				out = append(out, a.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}
