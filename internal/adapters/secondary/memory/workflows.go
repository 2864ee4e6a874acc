package memory

import (
	"context"
	"sort"

	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-workflow/internal/core/errors"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
)

// WorkflowRepository implements ports.WorkflowRepository.
type WorkflowRepository struct {
	store *Store
}

var _ ports.WorkflowRepository = (*WorkflowRepository)(nil)

func NewWorkflowRepository(store *Store) *WorkflowRepository {
	return &WorkflowRepository{store: store}
}

func (r *WorkflowRepository) GetActiveByType(ctx context.Context, ticketType domain.TicketType) (*domain.Workflow, error) {
	var found *domain.Workflow
	err := r.store.do(ctx, func(st *state) error {
		for _, w := range st.workflows {
			if w.TicketType == ticketType && w.IsActive {
				found = cloneWorkflow(w)
				return nil
			}
		}
		return apperrors.ErrWorkflowNotFound
	})
	return found, err
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id int64) (*domain.Workflow, error) {
	var found *domain.Workflow
	err := r.store.do(ctx, func(st *state) error {
		w, ok := st.workflows[id]
		if !ok {
			return apperrors.ErrWorkflowNotFound
		}
		found = cloneWorkflow(w)
		return nil
	})
	return found, err
}

func (r *WorkflowRepository) GetTransition(ctx context.Context, transitionID int64) (*domain.Transition, error) {
	var found *domain.Transition
	err := r.store.do(ctx, func(st *state) error {
		for _, w := range st.workflows {
			if t, ok := cloneWorkflow(w).Transition(transitionID); ok {
				found = t
				return nil
			}
		}
		return apperrors.ErrTransitionNotFound
	})
	return found, err
}

func (r *WorkflowRepository) List(ctx context.Context, params ports.ListWorkflowsParams) ([]*domain.Workflow, error) {
	var out []*domain.Workflow
	err := r.store.do(ctx, func(st *state) error {
		out = make([]*domain.Workflow, 0, len(st.workflows))
		for _, w := range st.workflows {
			if params.TicketType != nil && w.TicketType != *params.TicketType {
				continue
			}
			if params.ActiveOnly && !w.IsActive {
				continue
			}
			out = append(out, cloneWorkflow(w))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

// Save stores the workflow as the next version for its ticket type.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *domain.Workflow, activate bool) (*domain.Workflow, error) {
	var saved *domain.Workflow
	err := r.store.do(ctx, func(st *state) error {
		w := cloneWorkflow(workflow)
		w.ID = st.id("workflows")
		w.CreatedAt = r.store.now()
		w.IsActive = activate

		w.Version = 1
		for _, existing := range st.workflows {
			if existing.TicketType != w.TicketType {
				continue
			}
			if existing.Version >= w.Version {
				w.Version = existing.Version + 1
			}
			if activate {
				existing.IsActive = false
			}
		}

		for i := range w.Transitions {
			w.Transitions[i].ID = st.id("workflow_transitions")
			w.Transitions[i].WorkflowID = w.ID
		}

		st.workflows[w.ID] = w
		saved = cloneWorkflow(w)
		return nil
	})
	return saved, err
}
