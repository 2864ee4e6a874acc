package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-workflow/internal/core/errors"
	"github.com/lorrc/service-desk-workflow/internal/core/mocks"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
	"github.com/lorrc/service-desk-workflow/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func (e *engine) startSLA(ticket *domain.Ticket) *domain.TicketSLA {
	e.t.Helper()
	sla, err := e.slas.Start(context.Background(), ticket.ID, e.agent)
	require.NoError(e.t, err)
	return sla
}

func (e *engine) pause(slaID int64, reason string) (*domain.TicketSLA, error) {
	return e.slas.Pause(context.Background(), ports.PauseSLAParams{SLAID: slaID, Actor: e.agent, Reason: reason})
}

func TestSLAService_Start(t *testing.T) {
	e := newEngine(t)
	ticket := e.newTicket("open")

	sla := e.startSLA(ticket)
	assert.Equal(t, domain.SLAInProgress, sla.Status)
	assert.Equal(t, epoch, sla.StartTime)
	assert.Equal(t, epoch.Add(4*time.Hour), sla.DueTime, "high priority default budget")
	assert.Nil(t, sla.SLADefinitionID)

	got := e.ticket(ticket.ID)
	require.NotNil(t, got.SLADueTime)
	assert.Equal(t, sla.DueTime, *got.SLADueTime)

	_, err := e.slas.Start(context.Background(), ticket.ID, e.agent)
	assert.ErrorIs(t, err, apperrors.ErrNotActive)

	_, err = e.slas.Start(context.Background(), ticket.ID, e.outsider)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSLAService_StartUsesTenantDefinition(t *testing.T) {
	e := newEngine(t)
	incident := domain.TypeIncident
	def := e.store.AddSLADefinition(&domain.SLADefinition{
		OrganizationID:    e.org,
		Name:              "P2 incidents",
		TicketType:        &incident,
		Priority:          domain.PriorityHigh,
		ResolutionMinutes: 90,
		IsActive:          true,
	})

	sla := e.startSLA(e.newTicket("open"))
	assert.Equal(t, epoch.Add(90*time.Minute), sla.DueTime)
	require.NotNil(t, sla.SLADefinitionID)
	assert.Equal(t, def.ID, *sla.SLADefinitionID)
}

// High priority ticket, 4h budget, paused after 1h for 2h: due at 6h, not breached at 5h.
func TestSLAService_PauseResumeScenario(t *testing.T) {
	e := newEngine(t)
	ticket := e.newTicket("open")
	sla := e.startSLA(ticket)

	e.clock.Advance(time.Hour)
	paused, err := e.pause(sla.ID, "waiting on vendor")
	require.NoError(t, err)
	assert.Equal(t, domain.SLAPaused, paused.Status)

	e.clock.Advance(2 * time.Hour)
	resumed, err := e.slas.Resume(context.Background(), sla.ID, e.agent)
	require.NoError(t, err)
	assert.Equal(t, epoch.Add(6*time.Hour), resumed.DueTime)
	assert.Equal(t, 2*time.Hour, resumed.TotalPauseDuration)

	got := e.ticket(ticket.ID)
	require.NotNil(t, got.SLADueTime)
	assert.Equal(t, epoch.Add(6*time.Hour), *got.SLADueTime)

	e.clock.Advance(2 * time.Hour)
	status, err := e.slas.CheckBreach(context.Background(), sla.ID, e.agent)
	require.NoError(t, err)
	assert.False(t, status.IsBreached)
	assert.InDelta(t, 83.33, status.PercentElapsed, 0.01)

	comments := e.store.Comments(ticket.ID)
	require.Len(t, comments, 2)
	assert.Equal(t, "SLA paused: waiting on vendor", comments[0].Body)
	assert.True(t, comments[0].IsInternal)
	assert.Equal(t, "SLA resumed", comments[1].Body)

	reports, err := e.slas.GetTicketSLAs(context.Background(), ticket.ID, e.agent)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.Len(t, reports[0].PauseEvents, 1)
	event := reports[0].PauseEvents[0]
	assert.Equal(t, "waiting on vendor", event.PauseReason)
	require.NotNil(t, event.ResumedAt)
	assert.Equal(t, 2*time.Hour, event.Duration)
}

func TestSLAService_PauseGuards(t *testing.T) {
	e := newEngine(t)
	sla := e.startSLA(e.newTicket("open"))

	_, err := e.pause(sla.ID, "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = e.slas.Resume(context.Background(), sla.ID, e.agent)
	assert.ErrorIs(t, err, apperrors.ErrNotActive)

	_, err = e.pause(sla.ID, "first")
	require.NoError(t, err)
	_, err = e.pause(sla.ID, "second")
	assert.ErrorIs(t, err, apperrors.ErrNotActive)

	_, err = e.slas.Pause(context.Background(), ports.PauseSLAParams{SLAID: sla.ID, Actor: e.outsider, Reason: "x"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSLAService_CheckBreachIsSticky(t *testing.T) {
	e := newEngine(t)
	sla := e.startSLA(e.newTicket("open"))

	e.clock.Advance(4*time.Hour + time.Minute)
	status, err := e.slas.CheckBreach(context.Background(), sla.ID, e.agent)
	require.NoError(t, err)
	assert.True(t, status.IsBreached)
	assert.True(t, status.NewlyBreached)
	breachTime := *status.BreachTime

	e.clock.Advance(time.Hour)
	status, err = e.slas.CheckBreach(context.Background(), sla.ID, e.agent)
	require.NoError(t, err)
	assert.True(t, status.IsBreached)
	assert.False(t, status.NewlyBreached)
	assert.Equal(t, breachTime, *status.BreachTime)
	assert.Equal(t, time.Hour+time.Minute, status.BreachDuration)

	_, err = e.pause(sla.ID, "hold")
	require.NoError(t, err)
	e.clock.Advance(time.Hour)
	resumed, err := e.slas.Resume(context.Background(), sla.ID, e.agent)
	require.NoError(t, err)
	assert.True(t, resumed.IsBreached, "pause and resume never clear a breach")

	e.shutdown()
	e.broadcaster.AssertNumberOfCalls(t, "Broadcast", 3)
	e.broadcaster.AssertCalled(t, "Broadcast", mock.MatchedBy(func(ev domain.Event) bool {
		return ev.Type == domain.EventSLABreached
	}))
}

func TestSLAService_Complete(t *testing.T) {
	t.Run("on time", func(t *testing.T) {
		e := newEngine(t)
		sla := e.startSLA(e.newTicket("open"))

		e.clock.Advance(3 * time.Hour)
		done, err := e.slas.Complete(context.Background(), sla.ID, e.agent)
		require.NoError(t, err)
		assert.Equal(t, domain.SLACompleted, done.Status)
		assert.False(t, done.IsBreached)
		require.NotNil(t, done.ActualDuration)
		assert.Equal(t, 3*time.Hour, *done.ActualDuration)

		_, err = e.slas.Complete(context.Background(), sla.ID, e.agent)
		assert.ErrorIs(t, err, apperrors.ErrNotActive)
		_, err = e.pause(sla.ID, "late")
		assert.ErrorIs(t, err, apperrors.ErrNotActive)
	})

	t.Run("while paused closes the pause", func(t *testing.T) {
		e := newEngine(t)
		sla := e.startSLA(e.newTicket("open"))

		_, err := e.pause(sla.ID, "customer away")
		require.NoError(t, err)
		e.clock.Advance(30 * time.Minute)

		_, err = e.slas.Complete(context.Background(), sla.ID, e.agent)
		require.NoError(t, err)

		events, err := e.repos.SLAs.ListPauseEvents(context.Background(), sla.ID)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.False(t, events[0].IsOpen())
	})

	t.Run("pausing an overdue timer keeps the breach", func(t *testing.T) {
		e := newEngine(t)
		sla := e.startSLA(e.newTicket("open"))

		e.clock.Advance(5 * time.Hour)
		paused, err := e.pause(sla.ID, "waiting on customer")
		require.NoError(t, err)
		assert.True(t, paused.IsBreached)

		breaches, err := e.slas.Breaches(context.Background(), ports.ListBreachesQuery{Actor: e.agent})
		require.NoError(t, err)
		require.Len(t, breaches, 1)
		assert.Equal(t, sla.ID, breaches[0].SLA.ID)

		e.clock.Advance(time.Hour)
		done, err := e.slas.Complete(context.Background(), sla.ID, e.agent)
		require.NoError(t, err)
		assert.True(t, done.IsBreached)
		assert.Equal(t, time.Hour, done.BreachDuration)
		require.NotNil(t, done.ActualDuration)
		assert.Equal(t, 6*time.Hour, *done.ActualDuration)

		e.shutdown()
		e.broadcaster.AssertCalled(t, "Broadcast", mock.MatchedBy(func(ev domain.Event) bool {
			return ev.Type == domain.EventSLABreached && ev.TicketID == sla.TicketID
		}))
		var breached int
		for _, a := range e.store.Activities() {
			if a.Action == domain.ActivitySLABreached {
				breached++
			}
		}
		assert.Equal(t, 1, breached)
	})
}

func TestSLAService_ResolvingTicketCompletesTimer(t *testing.T) {
	e := newEngine(t)
	ticket := e.newTicket("in_progress")
	ticket.Resolution = "fixed"
	require.NoError(t, e.repos.Tickets.Update(context.Background(), ticket))
	sla := e.startSLA(ticket)

	e.clock.Advance(time.Hour)
	_, err := e.request(ticket.ID, "in_progress", "resolved", e.agent)
	require.NoError(t, err)

	got, err := e.repos.SLAs.GetByID(context.Background(), sla.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SLACompleted, got.Status)
	require.NotNil(t, got.ActualDuration)
	assert.Equal(t, time.Hour, *got.ActualDuration)
}

func TestSLAService_PriorityChangeRestartsTimer(t *testing.T) {
	e := newEngine(t)
	ticket := e.newTicket("open")
	first := e.startSLA(ticket)

	before := e.ticket(ticket.ID)
	after := before.Clone()
	after.Priority = domain.PriorityCritical
	require.NoError(t, e.repos.Tickets.Update(context.Background(), after))

	e.clock.Advance(10 * time.Minute)
	require.NoError(t, e.slas.TicketChanged(context.Background(), before, after, e.agent))

	old, err := e.repos.SLAs.GetByID(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SLACompleted, old.Status)

	active, err := e.slas.ActiveForTicket(context.Background(), ticket.ID, e.agent)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, active.ID)
	assert.Equal(t, e.clock.Now().Add(2*time.Hour), active.DueTime, "critical budget")
}

func TestSLAService_AtRisk(t *testing.T) {
	e := newEngine(t)

	// high: 4h budget, medium: 24h budget
	high := e.startSLA(e.newTicket("open"))
	medium := e.startSLA(e.store.AddTicket(&domain.Ticket{
		OrganizationID: e.org, Type: domain.TypeIncident, Status: "open", Priority: domain.PriorityMedium,
	}))
	overdue := e.startSLA(e.store.AddTicket(&domain.Ticket{
		OrganizationID: e.org, Type: domain.TypeIncident, Status: "open", Priority: domain.PriorityCritical,
	}))

	e.clock.Advance(3 * time.Hour)

	atRisk, err := e.slas.AtRisk(context.Background(), e.agent, 0)
	require.NoError(t, err)
	require.Len(t, atRisk, 1)
	assert.Equal(t, high.ID, atRisk[0].SLA.ID)
	assert.InDelta(t, 75.0, atRisk[0].PercentElapsed, 0.001)

	atRisk, err = e.slas.AtRisk(context.Background(), e.agent, 10)
	require.NoError(t, err)
	require.Len(t, atRisk, 2)
	assert.Equal(t, high.ID, atRisk[0].SLA.ID, "soonest due first")
	assert.Equal(t, medium.ID, atRisk[1].SLA.ID)
	for _, v := range atRisk {
		assert.NotEqual(t, overdue.ID, v.SLA.ID, "overdue timers are not at risk")
	}

	_, err = e.slas.AtRisk(context.Background(), e.agent, 150)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	other, err := e.slas.AtRisk(context.Background(), e.outsider, 10)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSLAService_SweepAndBreaches(t *testing.T) {
	e := newEngine(t)
	critical := e.startSLA(e.store.AddTicket(&domain.Ticket{
		OrganizationID: e.org, Type: domain.TypeIncident, Status: "open", Priority: domain.PriorityCritical,
	}))
	e.startSLA(e.newTicket("open"))

	e.clock.Advance(3 * time.Hour)
	count, err := e.slas.SweepBreaches(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = e.slas.SweepBreaches(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count, "breaches are recorded once")

	breaches, err := e.slas.Breaches(context.Background(), ports.ListBreachesQuery{Actor: e.agent})
	require.NoError(t, err)
	require.Len(t, breaches, 1)
	assert.Equal(t, critical.ID, breaches[0].SLA.ID)
	assert.Equal(t, 100.0, breaches[0].PercentElapsed)

	e.clock.Advance(8 * 24 * time.Hour)
	breaches, err = e.slas.Breaches(context.Background(), ports.ListBreachesQuery{Actor: e.agent})
	require.NoError(t, err)
	assert.Empty(t, breaches, "outside the default 7 day window")

	breaches, err = e.slas.Breaches(context.Background(), ports.ListBreachesQuery{Actor: e.agent, Days: 30})
	require.NoError(t, err)
	assert.Len(t, breaches, 1)
}

func TestSLAPolicy_ComputeDueTime(t *testing.T) {
	ctx := context.Background()
	org := uuid.New()

	t.Run("definition wins", func(t *testing.T) {
		defs := mocks.NewMockSLADefinitionRepository()
		defs.On("FindApplicable", ctx, org, domain.TypeBug, domain.PriorityLow).
			Return(&domain.SLADefinition{ID: 4, Name: "bugs", ResolutionMinutes: 30}, nil)

		target, err := services.NewSLAPolicy(defs).ComputeDueTime(ctx, domain.TypeBug, domain.PriorityLow, org)
		require.NoError(t, err)
		assert.Equal(t, 30*time.Minute, target.Budget)
		require.NotNil(t, target.DefinitionID)
		assert.Equal(t, int64(4), *target.DefinitionID)
		defs.AssertExpectations(t)
	})

	t.Run("falls back to the priority default", func(t *testing.T) {
		defs := mocks.NewMockSLADefinitionRepository()
		defs.On("FindApplicable", ctx, org, domain.TypeBug, domain.PriorityLow).Return(nil, apperrors.ErrNotFound)

		target, err := services.NewSLAPolicy(defs).ComputeDueTime(ctx, domain.TypeBug, domain.PriorityLow, org)
		require.NoError(t, err)
		assert.Equal(t, 72*time.Hour, target.Budget)
		assert.Nil(t, target.DefinitionID)
	})

	t.Run("store failures propagate", func(t *testing.T) {
		defs := mocks.NewMockSLADefinitionRepository()
		boom := errors.New("connection reset")
		defs.On("FindApplicable", ctx, org, domain.TypeBug, domain.PriorityLow).Return(nil, boom)

		_, err := services.NewSLAPolicy(defs).ComputeDueTime(ctx, domain.TypeBug, domain.PriorityLow, org)
		assert.ErrorIs(t, err, boom)
	})
}

func TestBreachSweeper_Run(t *testing.T) {
	slas := mocks.NewMockSLAService()
	ctx, cancel := context.WithCancel(context.Background())

	swept := make(chan struct{})
	slas.On("SweepBreaches", mock.Anything).Return(2, nil).Once().Run(func(mock.Arguments) {
		close(swept)
	})
	slas.On("SweepBreaches", mock.Anything).Return(0, nil).Maybe()

	done := make(chan struct{})
	go func() {
		services.NewBreachSweeper(slas, 5*time.Millisecond, nil).Run(ctx)
		close(done)
	}()

	select {
	case <-swept:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper never ran")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
	slas.AssertExpectations(t)
}
