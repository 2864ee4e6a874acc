package domain_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-workflow/internal/core/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var slaStart = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func newRunningSLA(budget time.Duration) *domain.TicketSLA {
	ticket := &domain.Ticket{ID: 1, OrganizationID: uuid.New()}
	return domain.NewTicketSLA(ticket, domain.SLATarget{Budget: budget}, slaStart)
}

func TestPercentElapsed(t *testing.T) {
	due := slaStart.Add(4 * time.Hour)

	tests := []struct {
		name string
		now  time.Time
		want float64
	}{
		{"at start", slaStart, 0},
		{"before start", slaStart.Add(-time.Hour), 0},
		{"half way", slaStart.Add(2 * time.Hour), 50},
		{"three quarters", slaStart.Add(3 * time.Hour), 75},
		{"past due is clamped", slaStart.Add(10 * time.Hour), 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, domain.PercentElapsed(slaStart, due, tt.now), 0.0001)
		})
	}
}

func TestTicketSLA_PauseResumeShiftsDueTime(t *testing.T) {
	sla := newRunningSLA(4 * time.Hour)
	actor := uuid.New()
	pausedAt := slaStart.Add(1 * time.Hour)
	resumedAt := pausedAt.Add(2 * time.Hour)
	dueBefore := sla.DueTime

	event, err := sla.Pause(actor, "waiting on customer", pausedAt)
	require.NoError(t, err)
	assert.Equal(t, domain.SLAPaused, sla.Status)
	assert.Equal(t, "waiting on customer", event.PauseReason)
	assert.True(t, event.IsOpen())

	paused, err := sla.Resume(resumedAt)
	require.NoError(t, err)
	event.Close(actor, resumedAt)

	assert.Equal(t, 2*time.Hour, paused)
	assert.Equal(t, dueBefore.Add(resumedAt.Sub(pausedAt)), sla.DueTime)
	assert.Equal(t, 2*time.Hour, sla.TotalPauseDuration)
	assert.Equal(t, domain.SLAInProgress, sla.Status)
	assert.Nil(t, sla.PauseStartTime)
	assert.False(t, event.IsOpen())
	assert.Equal(t, 2*time.Hour, event.Duration)
}

// High priority, 4h budget, paused after 1h for 2h: due is 6h from start and
// the 5h mark is not a breach.
func TestTicketSLA_PausedBudgetScenario(t *testing.T) {
	sla := newRunningSLA(4 * time.Hour)

	_, err := sla.Pause(uuid.New(), "vendor", slaStart.Add(time.Hour))
	require.NoError(t, err)
	_, err = sla.Resume(slaStart.Add(3 * time.Hour))
	require.NoError(t, err)

	assert.Equal(t, slaStart.Add(6*time.Hour), sla.DueTime)

	status := sla.CheckBreach(slaStart.Add(5 * time.Hour))
	assert.False(t, status.IsBreached)
	assert.False(t, sla.IsBreached)
	assert.Equal(t, time.Hour, status.Remaining)
}

func TestTicketSLA_PauseGuards(t *testing.T) {
	sla := newRunningSLA(time.Hour)

	_, err := sla.Pause(uuid.New(), "  ", slaStart)
	assert.ErrorIs(t, err, apperrors.ErrPauseReasonRequired)

	_, err = sla.Resume(slaStart)
	assert.ErrorIs(t, err, apperrors.ErrSLANotPaused)

	_, err = sla.Pause(uuid.New(), "first", slaStart)
	require.NoError(t, err)
	_, err = sla.Pause(uuid.New(), "second", slaStart)
	assert.ErrorIs(t, err, apperrors.ErrNotActive)
}

func TestTicketSLA_CheckBreachIsSticky(t *testing.T) {
	sla := newRunningSLA(time.Hour)
	first := slaStart.Add(90 * time.Minute)
	later := slaStart.Add(3 * time.Hour)

	status := sla.CheckBreach(first)
	assert.True(t, status.IsBreached)
	assert.True(t, status.NewlyBreached)
	assert.Equal(t, 100.0, status.PercentElapsed)
	require.NotNil(t, sla.BreachTime)
	assert.Equal(t, first, *sla.BreachTime)
	assert.Equal(t, 30*time.Minute, sla.BreachDuration)

	status = sla.CheckBreach(later)
	assert.True(t, status.IsBreached)
	assert.False(t, status.NewlyBreached)
	assert.Equal(t, first, *sla.BreachTime)
	assert.Equal(t, 2*time.Hour, sla.BreachDuration)

	// pausing and resuming never clears the flag
	_, err := sla.Pause(uuid.New(), "hold", later)
	require.NoError(t, err)
	status = sla.CheckBreach(later.Add(time.Hour))
	assert.True(t, status.IsBreached)
	assert.Zero(t, status.PercentElapsed)

	_, err = sla.Resume(later.Add(2 * time.Hour))
	require.NoError(t, err)
	assert.True(t, sla.IsBreached)
}

func TestTicketSLA_PausedIsNotBreached(t *testing.T) {
	sla := newRunningSLA(time.Hour)
	_, err := sla.Pause(uuid.New(), "hold", slaStart.Add(30*time.Minute))
	require.NoError(t, err)

	status := sla.CheckBreach(slaStart.Add(5 * time.Hour))
	assert.False(t, status.IsBreached)
	assert.Zero(t, status.PercentElapsed)
}

func TestTicketSLA_Complete(t *testing.T) {
	sla := newRunningSLA(4 * time.Hour)
	_, err := sla.Pause(uuid.New(), "hold", slaStart.Add(time.Hour))
	require.NoError(t, err)
	_, err = sla.Resume(slaStart.Add(2 * time.Hour))
	require.NoError(t, err)

	done := slaStart.Add(3 * time.Hour)
	require.NoError(t, sla.Complete(done))

	assert.Equal(t, domain.SLACompleted, sla.Status)
	require.NotNil(t, sla.ActualDuration)
	assert.Equal(t, 3*time.Hour, *sla.ActualDuration)
	assert.False(t, sla.IsBreached)
	assert.InDelta(t, 60.0, sla.PercentElapsed(done.Add(10*time.Hour)), 0.0001)

	assert.ErrorIs(t, sla.Complete(done), apperrors.ErrSLANotActive)
	_, err = sla.Pause(uuid.New(), "again", done)
	assert.ErrorIs(t, err, apperrors.ErrSLANotActive)
}

func TestTicketSLA_CompleteLateRecordsBreach(t *testing.T) {
	sla := newRunningSLA(time.Hour)
	require.NoError(t, sla.Complete(slaStart.Add(2*time.Hour)))

	assert.True(t, sla.IsBreached)
	assert.Equal(t, time.Hour, sla.BreachDuration)
}

func TestTicketSLA_PausingOverdueTimerRecordsBreach(t *testing.T) {
	sla := newRunningSLA(4 * time.Hour)
	pausedAt := slaStart.Add(5 * time.Hour)

	_, err := sla.Pause(uuid.New(), "waiting on customer", pausedAt)
	require.NoError(t, err)
	assert.True(t, sla.IsBreached)
	require.NotNil(t, sla.BreachTime)
	assert.Equal(t, pausedAt, *sla.BreachTime)
	assert.Equal(t, time.Hour, sla.BreachDuration)

	require.NoError(t, sla.Complete(pausedAt.Add(time.Hour)))
	assert.True(t, sla.IsBreached)
	assert.Equal(t, time.Hour, sla.BreachDuration)
	require.NotNil(t, sla.ActualDuration)
	assert.Equal(t, 6*time.Hour, *sla.ActualDuration)
}

func TestTicketSLA_IsAtRisk(t *testing.T) {
	sla := newRunningSLA(4 * time.Hour)

	assert.False(t, sla.IsAtRisk(slaStart.Add(2*time.Hour), domain.DefaultAtRiskThreshold))
	assert.True(t, sla.IsAtRisk(slaStart.Add(3*time.Hour), domain.DefaultAtRiskThreshold))
	assert.False(t, sla.IsAtRisk(slaStart.Add(5*time.Hour), domain.DefaultAtRiskThreshold), "overdue timers are breached, not at risk")
}
