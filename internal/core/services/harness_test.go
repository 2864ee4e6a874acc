package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-workflow/internal/adapters/secondary/memory"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	"github.com/lorrc/service-desk-workflow/internal/core/mocks"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
	"github.com/lorrc/service-desk-workflow/internal/core/services"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// engine wires the three services over one in-memory store.
type engine struct {
	t           *testing.T
	store       *memory.Store
	repos       memory.Repositories
	clock       *fakeClock
	transitions *services.TransitionService
	approvals   *services.ApprovalService
	slas        *services.SLAService
	broadcaster *mocks.MockEventBroadcaster
	notifier    *mocks.MockNotifier
	workflow    *domain.Workflow

	org      uuid.UUID
	reporter uuid.UUID
	agent    domain.Actor
	outsider domain.Actor
	root     domain.Actor
	cab      []domain.Actor
}

// incidentWorkflowDef:
//
//	open -> in_progress (agent) -> resolved (needs resolution) -> closed (cab approval)
//	resolved -> in_progress, in_progress -> open (broken action)
func incidentWorkflowDef() *domain.Workflow {
	return &domain.Workflow{
		Name:       "Incident",
		TicketType: domain.TypeIncident,
		Statuses:   []string{"open", "in_progress", "resolved", "closed"},
		Transitions: []domain.Transition{
			{Name: "Start", FromStatus: "open", ToStatus: "in_progress", RequiredRole: "agent"},
			{
				Name:           "Resolve",
				FromStatus:     "in_progress",
				ToStatus:       "resolved",
				RequiredFields: []string{domain.FieldResolution},
				Actions: domain.ActionList{
					domain.SetFieldAction{Field: domain.FieldResolvedAt, Now: true},
					domain.AddCommentAction{Text: "Resolved via workflow"},
					domain.NotifyAction{Target: "reporter"},
				},
			},
			{Name: "Close", FromStatus: "resolved", ToStatus: "closed", RequiresApproval: true, ApprovalRole: "cab"},
			{Name: "Reopen", FromStatus: "resolved", ToStatus: "in_progress"},
			{
				Name:       "Send back",
				FromStatus: "in_progress",
				ToStatus:   "open",
				Actions: domain.ActionList{
					domain.AddCommentAction{Text: "Sent back"},
					domain.SetFieldAction{Field: "colour", Value: "red"},
				},
			},
		},
	}
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	ctx := context.Background()

	clock := &fakeClock{now: epoch}
	store := memory.NewStore(clock)
	repos := memory.NewRepositories(store)

	e := &engine{
		t:           t,
		store:       store,
		repos:       repos,
		clock:       clock,
		broadcaster: mocks.NewMockEventBroadcaster(),
		notifier:    mocks.NewMockNotifier(),
		org:         uuid.New(),
		reporter:    uuid.New(),
	}
	e.broadcaster.On("Broadcast", mock.Anything).Return(nil).Maybe()
	e.notifier.On("Notify", mock.Anything, mock.Anything).Return().Maybe()

	e.agent = e.addUser("agent")
	e.root = e.addUser("super_admin")
	e.outsider = domain.Actor{ID: uuid.New(), Role: "agent", OrganizationID: uuid.New()}
	e.cab = []domain.Actor{e.addUser("cab"), e.addUser("cab"), e.addUser("cab")}

	wf, err := services.NewWorkflowService(repos.Workflows, nil).Import(ctx, incidentWorkflowDef(), true)
	require.NoError(t, err)
	e.workflow = wf

	settings := services.DefaultSettings()
	e.slas = services.NewSLAService(services.SLAServiceDeps{
		Tickets:     repos.Tickets,
		SLAs:        repos.SLAs,
		Definitions: repos.Definitions,
		Policy:      services.NewSLAPolicy(repos.Definitions),
		Comments:    repos.Comments,
		Activity:    repos.Activity,
		TxManager:   repos.TxManager,
		Broadcaster: e.broadcaster,
		Clock:       clock,
	}, settings)
	e.approvals = services.NewApprovalService(services.ApprovalServiceDeps{
		Tickets:     repos.Tickets,
		Workflows:   repos.Workflows,
		Approvals:   repos.Approvals,
		History:     repos.History,
		Comments:    repos.Comments,
		Activity:    repos.Activity,
		Directory:   repos.Directory,
		TxManager:   repos.TxManager,
		Notifier:    e.notifier,
		Broadcaster: e.broadcaster,
		Observers:   []ports.TicketObserver{e.slas},
		Clock:       clock,
	}, settings)
	e.transitions = services.NewTransitionService(services.TransitionServiceDeps{
		Tickets:     repos.Tickets,
		Workflows:   repos.Workflows,
		History:     repos.History,
		Comments:    repos.Comments,
		Activity:    repos.Activity,
		Approvals:   e.approvals,
		TxManager:   repos.TxManager,
		Notifier:    e.notifier,
		Broadcaster: e.broadcaster,
		Observers:   []ports.TicketObserver{e.slas},
		Clock:       clock,
	}, settings)

	t.Cleanup(e.shutdown)
	return e
}

func (e *engine) shutdown() {
	e.transitions.Shutdown()
	e.approvals.Shutdown()
	e.slas.Shutdown()
}

func (e *engine) addUser(role string) domain.Actor {
	actor := domain.Actor{ID: uuid.New(), Role: role, OrganizationID: e.org}
	e.store.AddUser(&domain.DirectoryUser{
		ID:             actor.ID,
		OrganizationID: e.org,
		FullName:       role + " user",
		Email:          role + "@example.com",
		Role:           role,
		IsActive:       true,
	})
	return actor
}

func (e *engine) newTicket(status string) *domain.Ticket {
	return e.store.AddTicket(&domain.Ticket{
		Key:            "INC-1",
		OrganizationID: e.org,
		Type:           domain.TypeIncident,
		Title:          "Printer on fire",
		Status:         status,
		Priority:       domain.PriorityHigh,
		ReporterID:     e.reporter,
	})
}

func (e *engine) ticket(id int64) *domain.Ticket {
	e.t.Helper()
	ticket, err := e.repos.Tickets.GetByID(context.Background(), id)
	require.NoError(e.t, err)
	return ticket
}

func (e *engine) transitionID(from, to string) int64 {
	e.t.Helper()
	tr, ok := e.workflow.FindTransition(from, to)
	require.True(e.t, ok, "no transition %s -> %s", from, to)
	return tr.ID
}

func (e *engine) history(ticketID int64) []*domain.TransitionHistory {
	e.t.Helper()
	entries, err := e.repos.History.ListByTicket(context.Background(), ticketID)
	require.NoError(e.t, err)
	return entries
}

func (e *engine) request(ticketID int64, from, to string, actor domain.Actor) (*domain.TransitionOutcome, error) {
	return e.transitions.RequestTransition(context.Background(), ports.RequestTransitionParams{
		TicketID:     ticketID,
		TransitionID: e.transitionID(from, to),
		Actor:        actor,
	})
}

func (e *engine) respond(approvalID int64, actor domain.Actor, decision domain.Decision, notes string) (*domain.ApprovalOutcome, error) {
	return e.approvals.RespondToApproval(context.Background(), ports.RespondToApprovalParams{
		ApprovalID: approvalID,
		Actor:      actor,
		Decision:   decision,
		Notes:      notes,
	})
}

// resolvedTicket returns a ticket sitting in resolved, ready for the guarded close.
func (e *engine) resolvedTicket() *domain.Ticket {
	return e.store.AddTicket(&domain.Ticket{
		Key:            "INC-2",
		OrganizationID: e.org,
		Type:           domain.TypeIncident,
		Title:          "Disk full",
		Status:         "resolved",
		Priority:       domain.PriorityMedium,
		ReporterID:     e.reporter,
		Resolution:     "cleaned up",
	})
}
