// Package memory is an in-process implementation of the repository ports. It backs
// the dev-mode server and the service tests.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
)

// Store holds every table. A transaction holds the store lock for its whole duration,
// so transactions are serialized and row locks are implied.
//
// Every transaction starts by deep-copying the whole state, so its cost grows with
// the number of stored rows. That suits dev mode and tests; production deployments
// use the postgres adapter.
type Store struct {
	mu    sync.Mutex
	data  *state
	clock domain.Clock
}

type state struct {
	tickets     map[int64]*domain.Ticket
	workflows   map[int64]*domain.Workflow
	approvals   map[int64]*domain.TicketApproval
	responses   []*domain.ApprovalResponse
	slas        map[int64]*domain.TicketSLA
	pauses      map[int64]*domain.SLAPauseEvent
	definitions []*domain.SLADefinition
	history     []*domain.TransitionHistory
	comments    []*domain.Comment
	activities  []*domain.Activity
	users       map[uuid.UUID]*domain.DirectoryUser
	userOrder   []uuid.UUID
	nextID      map[string]int64
}

// NewStore creates an empty store. A nil clock uses the system clock.
func NewStore(clock domain.Clock) *Store {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Store{
		clock: clock,
		data: &state{
			tickets:   make(map[int64]*domain.Ticket),
			workflows: make(map[int64]*domain.Workflow),
			approvals: make(map[int64]*domain.TicketApproval),
			slas:      make(map[int64]*domain.TicketSLA),
			pauses:    make(map[int64]*domain.SLAPauseEvent),
			users:     make(map[uuid.UUID]*domain.DirectoryUser),
			nextID:    make(map[string]int64),
		},
	}
}

func (st *state) id(table string) int64 {
	st.nextID[table]++
	return st.nextID[table]
}

// snapshot deep-copies the state so a failed transaction can be rolled back.
func (st *state) snapshot() *state {
	c := &state{
		tickets:     make(map[int64]*domain.Ticket, len(st.tickets)),
		workflows:   make(map[int64]*domain.Workflow, len(st.workflows)),
		approvals:   make(map[int64]*domain.TicketApproval, len(st.approvals)),
		responses:   make([]*domain.ApprovalResponse, 0, len(st.responses)),
		slas:        make(map[int64]*domain.TicketSLA, len(st.slas)),
		pauses:      make(map[int64]*domain.SLAPauseEvent, len(st.pauses)),
		definitions: append([]*domain.SLADefinition(nil), st.definitions...),
		history:     append([]*domain.TransitionHistory(nil), st.history...),
		comments:    append([]*domain.Comment(nil), st.comments...),
		activities:  append([]*domain.Activity(nil), st.activities...),
		users:       maps.Clone(st.users),
		userOrder:   append([]uuid.UUID(nil), st.userOrder...),
		nextID:      maps.Clone(st.nextID),
	}
	for id, t := range st.tickets {
		c.tickets[id] = t.Clone()
	}
	for id, w := range st.workflows {
		c.workflows[id] = cloneWorkflow(w)
	}
	for id, a := range st.approvals {
		c.approvals[id] = a.Clone()
	}
	for _, r := range st.responses {
		cp := *r
		c.responses = append(c.responses, &cp)
	}
	for id, s := range st.slas {
		c.slas[id] = s.Clone()
	}
	for id, p := range st.pauses {
		cp := *p
		c.pauses[id] = &cp
	}
	return c
}

type txKey struct{}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// do runs fn against the state, taking the store lock unless ctx already holds it.
func (s *Store) do(ctx context.Context, fn func(st *state) error) error {
	if !s.inTx(ctx) {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(s.data)
}

func (s *Store) now() time.Time {
	return s.clock.Now()
}

// TransactionManager serializes units of work on the store and rolls back the state
// when the unit fails or panics.
type TransactionManager struct {
	store *Store
}

var _ ports.TransactionManager = (*TransactionManager)(nil)

func NewTransactionManager(store *Store) *TransactionManager {
	return &TransactionManager{store: store}
}

// WithTransaction runs fn atomically. Nested calls join the outer transaction.
// Rollback restores the snapshot taken on entry, id sequences included.
func (tm *TransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	s := tm.store
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	saved := s.data.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.data = saved
			panic(p)
		}
		if err != nil {
			s.data = saved
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, s))
}

// AddTicket stores a ticket, assigning an id when it has none.
func (s *Store) AddTicket(ticket *domain.Ticket) *domain.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.addTicket(ticket, s.now())
}

func (st *state) addTicket(ticket *domain.Ticket, now time.Time) *domain.Ticket {
	t := ticket.Clone()
	if t.ID == 0 {
		t.ID = st.id("tickets")
	} else if t.ID > st.nextID["tickets"] {
		st.nextID["tickets"] = t.ID
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	st.tickets[t.ID] = t
	return t.Clone()
}

// AddUser registers a directory user. Users are returned by role in insertion order.
func (s *Store) AddUser(user *domain.DirectoryUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.addUser(user)
}

func (st *state) addUser(user *domain.DirectoryUser) {
	cp := *user
	if _, ok := st.users[cp.ID]; !ok {
		st.userOrder = append(st.userOrder, cp.ID)
	}
	st.users[cp.ID] = &cp
}

// AddSLADefinition registers a tenant SLA definition.
func (s *Store) AddSLADefinition(def *domain.SLADefinition) *domain.SLADefinition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.addDefinition(def)
}

func (st *state) addDefinition(def *domain.SLADefinition) *domain.SLADefinition {
	cp := *def
	if cp.ID == 0 {
		cp.ID = st.id("sla_definitions")
	}
	st.definitions = append(st.definitions, &cp)
	out := cp
	return &out
}

// Comments returns every comment on a ticket, for inspection in tests and dev mode.
func (s *Store) Comments(ticketID int64) []*domain.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return commentsFor(s.data, ticketID)
}

// Activities returns the recorded audit trail.
func (s *Store) Activities() []*domain.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Activity, 0, len(s.data.activities))
	for _, a := range s.data.activities {
		cp := *a
		out = append(out, &cp)
	}
	return out
}

func cloneWorkflow(w *domain.Workflow) *domain.Workflow {
	c := *w
	c.Statuses = append([]string(nil), w.Statuses...)
	c.Transitions = make([]domain.Transition, len(w.Transitions))
	for i, t := range w.Transitions {
		t.RequiredFields = append([]string(nil), t.RequiredFields...)
		t.Actions = append(domain.ActionList(nil), t.Actions...)
		c.Transitions[i] = t
	}
	return &c
}

// Repositories bundles every repository over one store.
type Repositories struct {
	Tickets     *TicketRepository
	Workflows   *WorkflowRepository
	Approvals   *ApprovalRepository
	SLAs        *SLARepository
	Definitions *SLADefinitionRepository
	History     *HistoryRepository
	Comments    *CommentRepository
	Activity    *ActivityRepository
	Directory   *UserDirectory
	TxManager   *TransactionManager
}

func NewRepositories(store *Store) Repositories {
	return Repositories{
		Tickets:     NewTicketRepository(store),
		Workflows:   NewWorkflowRepository(store),
		Approvals:   NewApprovalRepository(store),
		SLAs:        NewSLARepository(store),
		Definitions: NewSLADefinitionRepository(store),
		History:     NewHistoryRepository(store),
		Comments:    NewCommentRepository(store),
		Activity:    NewActivityRepository(store),
		Directory:   NewUserDirectory(store),
		TxManager:   NewTransactionManager(store),
	}
}
