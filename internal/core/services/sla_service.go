package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-workflow/internal/core/errors"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
)

// maxAtRisk caps the at-risk listing.
const maxAtRisk = 50

// SLAServiceDeps groups the collaborators of the SLA timer.
type SLAServiceDeps struct {
	Tickets     ports.TicketRepository
	SLAs        ports.SLARepository
	Definitions ports.SLADefinitionRepository
	Policy      ports.SLAPolicy
	Comments    ports.CommentRepository
	Activity    ports.ActivityRepository
	TxManager   ports.TransactionManager
	Broadcaster ports.EventBroadcaster
	Clock       domain.Clock
	Logger      *slog.Logger
}

// SLAService runs resolution timers: start, pause, resume, breach checks and completion.
// It also observes ticket changes to complete or restart timers.
type SLAService struct {
	tickets     ports.TicketRepository
	slas        ports.SLARepository
	definitions ports.SLADefinitionRepository
	policy      ports.SLAPolicy
	comments    ports.CommentRepository
	txManager   ports.TransactionManager
	clock       domain.Clock
	effects     *effectDispatcher
	settings    Settings
	logger      *slog.Logger
}

var (
	_ ports.SLAService     = (*SLAService)(nil)
	_ ports.TicketObserver = (*SLAService)(nil)
)

// NewSLAService creates the SLA timer service.
func NewSLAService(deps SLAServiceDeps, settings Settings) *SLAService {
	clock := deps.Clock
	if clock == nil {
		clock = domain.SystemClock{}
	}
	policy := deps.Policy
	if policy == nil {
		policy = NewSLAPolicy(nil)
	}
	logger := componentLogger(deps.Logger, "sla_service")

	return &SLAService{
		tickets:     deps.Tickets,
		slas:        deps.SLAs,
		definitions: deps.Definitions,
		policy:      policy,
		comments:    deps.Comments,
		txManager:   deps.TxManager,
		clock:       clock,
		effects:     newEffectDispatcher(deps.Activity, nil, deps.Broadcaster, logger),
		settings:    settings.withDefaults(),
		logger:      logger,
	}
}

// Start begins a timer for the ticket using the applicable budget.
func (s *SLAService) Start(ctx context.Context, ticketID int64, actor domain.Actor) (*domain.TicketSLA, error) {
	var (
		started *domain.TicketSLA
		effects = &sideEffects{}
	)

	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		ticket, err := s.lockTicket(ctx, ticketID, actor.OrganizationID)
		if err != nil {
			return err
		}

		active, err := s.slas.ActiveForTicket(ctx, ticket.ID)
		switch {
		case err == nil && active != nil:
			return apperrors.ErrSLAAlreadyRunning
		case err != nil && !errors.Is(err, apperrors.ErrNotFound):
			return err
		}

		started, err = s.startTimer(ctx, ticket, actor.ID, effects)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.effects.dispatch(effects)
	s.logger.Info("SLA started", "sla_id", started.ID, "ticket_id", ticketID, "due_time", started.DueTime)
	return started, nil
}

// Pause stops the clock and records why.
func (s *SLAService) Pause(ctx context.Context, params ports.PauseSLAParams) (*domain.TicketSLA, error) {
	var (
		paused  *domain.TicketSLA
		effects = &sideEffects{}
	)

	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		sla, err := s.lockSLA(ctx, params.SLAID, params.Actor.OrganizationID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		wasBreached := sla.IsBreached
		event, err := sla.Pause(params.Actor.ID, params.Reason, now)
		if err != nil {
			return err
		}
		if err := s.slas.Update(ctx, sla); err != nil {
			return err
		}
		if _, err := s.slas.CreatePauseEvent(ctx, event); err != nil {
			return err
		}
		if err := s.addInternalComment(ctx, sla.TicketID, params.Actor.ID, "SLA paused: "+sla.PauseReason, now); err != nil {
			return err
		}

		if sla.IsBreached && !wasBreached {
			s.recordBreach(effects, sla, params.Actor.ID)
		}
		effects.logActivity(s.slaActivity(sla, params.Actor.ID, domain.ActivitySLAPaused, "SLA paused: "+sla.PauseReason))
		effects.broadcast(slaEvent(domain.EventSLAPaused, sla))
		paused = sla
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.effects.dispatch(effects)
	s.logger.Info("SLA paused", "sla_id", paused.ID, "ticket_id", paused.TicketID)
	return paused, nil
}

// Resume restarts the clock and pushes the due time out by the paused interval.
func (s *SLAService) Resume(ctx context.Context, slaID int64, actor domain.Actor) (*domain.TicketSLA, error) {
	var (
		resumed *domain.TicketSLA
		effects = &sideEffects{}
	)

	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		sla, err := s.lockSLA(ctx, slaID, actor.OrganizationID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		pausedFor, err := sla.Resume(now)
		if err != nil {
			return err
		}
		if err := s.slas.Update(ctx, sla); err != nil {
			return err
		}
		if err := s.closePauseEvent(ctx, sla.ID, actor.ID, now); err != nil {
			return err
		}
		if err := s.mirrorDueTime(ctx, sla); err != nil {
			return err
		}
		if err := s.addInternalComment(ctx, sla.TicketID, actor.ID, "SLA resumed", now); err != nil {
			return err
		}

		effects.logActivity(s.slaActivity(sla, actor.ID, domain.ActivitySLAResumed,
			fmt.Sprintf("SLA resumed after %s", pausedFor.Round(time.Second))))
		effects.broadcast(slaEvent(domain.EventSLAResumed, sla))
		resumed = sla
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.effects.dispatch(effects)
	s.logger.Info("SLA resumed", "sla_id", resumed.ID, "ticket_id", resumed.TicketID, "due_time", resumed.DueTime)
	return resumed, nil
}

// CheckBreach evaluates the timer now and persists a newly detected breach.
func (s *SLAService) CheckBreach(ctx context.Context, slaID int64, actor domain.Actor) (*domain.BreachStatus, error) {
	return s.checkBreach(ctx, slaID, &actor)
}

// Complete stops the timer for good, closing any open pause.
func (s *SLAService) Complete(ctx context.Context, slaID int64, actor domain.Actor) (*domain.TicketSLA, error) {
	var (
		completed *domain.TicketSLA
		effects   = &sideEffects{}
	)

	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		sla, err := s.lockSLA(ctx, slaID, actor.OrganizationID)
		if err != nil {
			return err
		}
		if err := s.completeTimer(ctx, sla, actor.ID, effects); err != nil {
			return err
		}
		completed = sla
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.effects.dispatch(effects)
	s.logger.Info("SLA completed", "sla_id", completed.ID, "ticket_id", completed.TicketID, "breached", completed.IsBreached)
	return completed, nil
}

// Restart completes the active timer, if any, and starts a new one for the ticket's
// current type and priority.
func (s *SLAService) Restart(ctx context.Context, ticketID int64, actor domain.Actor) (*domain.TicketSLA, error) {
	var (
		started *domain.TicketSLA
		effects = &sideEffects{}
	)

	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		ticket, err := s.lockTicket(ctx, ticketID, actor.OrganizationID)
		if err != nil {
			return err
		}
		started, err = s.restartTimer(ctx, ticket, actor.ID, effects)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.effects.dispatch(effects)
	s.logger.Info("SLA restarted", "sla_id", started.ID, "ticket_id", ticketID, "due_time", started.DueTime)
	return started, nil
}

// ActiveForTicket returns the ticket's running or paused timer.
func (s *SLAService) ActiveForTicket(ctx context.Context, ticketID int64, actor domain.Actor) (*domain.TicketSLA, error) {
	if _, err := s.visibleTicket(ctx, ticketID, actor.OrganizationID); err != nil {
		return nil, err
	}
	return s.slas.ActiveForTicket(ctx, ticketID)
}

// GetTicketSLAs returns every timer of the ticket with its pause history, evaluated now.
// Evaluation here is read-only; breaches are persisted by CheckBreach and the sweeper.
func (s *SLAService) GetTicketSLAs(ctx context.Context, ticketID int64, actor domain.Actor) ([]*ports.TicketSLAReport, error) {
	if _, err := s.visibleTicket(ctx, ticketID, actor.OrganizationID); err != nil {
		return nil, err
	}

	slas, err := s.slas.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	reports := make([]*ports.TicketSLAReport, 0, len(slas))
	for _, sla := range slas {
		events, err := s.slas.ListPauseEvents(ctx, sla.ID)
		if err != nil {
			return nil, err
		}
		reports = append(reports, &ports.TicketSLAReport{
			SLA:         sla,
			PauseEvents: events,
			Breach:      sla.Clone().CheckBreach(now),
		})
	}
	return reports, nil
}

// AtRisk lists the tenant's running timers that have consumed at least threshold percent
// and are not yet due, soonest due first.
func (s *SLAService) AtRisk(ctx context.Context, actor domain.Actor, threshold float64) ([]*domain.TicketSLAView, error) {
	if threshold <= 0 {
		threshold = s.settings.AtRiskThreshold
	}
	if threshold > 100 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "threshold must be between 0 and 100")
	}

	orgID := actor.OrganizationID
	running, err := s.slas.ListRunning(ctx, &orgID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	atRisk := make([]*domain.TicketSLAView, 0)
	for _, view := range running {
		if !view.SLA.IsAtRisk(now, threshold) {
			continue
		}
		view.PercentElapsed = view.SLA.PercentElapsed(now)
		atRisk = append(atRisk, view)
	}

	slices.SortStableFunc(atRisk, func(a, b *domain.TicketSLAView) int {
		return a.SLA.DueTime.Compare(b.SLA.DueTime)
	})
	if len(atRisk) > maxAtRisk {
		atRisk = atRisk[:maxAtRisk]
	}
	return atRisk, nil
}

// Breaches lists the tenant's breached timers within the window.
func (s *SLAService) Breaches(ctx context.Context, query ports.ListBreachesQuery) ([]*domain.TicketSLAView, error) {
	window := ports.DefaultBreachWindow
	if query.Days > 0 {
		window = time.Duration(query.Days) * 24 * time.Hour
	}

	now := s.clock.Now()
	views, err := s.slas.ListBreached(ctx, ports.ListBreachesParams{
		OrganizationID: query.Actor.OrganizationID,
		Since:          now.Add(-window),
		TicketType:     query.TicketType,
		Priority:       query.Priority,
		Limit:          query.Limit,
		Offset:         query.Offset,
	})
	if err != nil {
		return nil, err
	}

	for _, view := range views {
		view.PercentElapsed = view.SLA.PercentElapsed(now)
	}
	return views, nil
}

// Definitions lists the actor's tenant SLA definitions. Without a definition store the
// priority defaults apply and the list is empty.
func (s *SLAService) Definitions(ctx context.Context, actor domain.Actor, params ports.ListSLADefinitionsParams) ([]*domain.SLADefinition, error) {
	if s.definitions == nil {
		return []*domain.SLADefinition{}, nil
	}
	return s.definitions.List(ctx, actor.OrganizationID, params)
}

// SweepBreaches evaluates every overdue running timer across tenants.
func (s *SLAService) SweepBreaches(ctx context.Context) (int, error) {
	running, err := s.slas.ListRunning(ctx, nil)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	breached := 0
	for _, view := range running {
		if ctx.Err() != nil {
			return breached, ctx.Err()
		}
		if view.SLA.IsBreached || !now.After(view.SLA.DueTime) {
			continue
		}

		status, err := s.checkBreach(ctx, view.SLA.ID, nil)
		if err != nil {
			s.logger.Warn("breach check failed", "sla_id", view.SLA.ID, "error", err)
			continue
		}
		if status.NewlyBreached {
			breached++
		}
	}
	return breached, nil
}

// TicketChanged completes the running timer when a ticket is resolved and restarts it
// when the priority changes.
func (s *SLAService) TicketChanged(ctx context.Context, before, after *domain.Ticket, actor domain.Actor) error {
	resolved := s.isResolved(after.Status) && !s.isResolved(before.Status)
	reprioritized := before.Priority != after.Priority
	if !resolved && !reprioritized {
		return nil
	}

	effects := &sideEffects{}
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		active, err := s.slas.ActiveForTicket(ctx, after.ID)
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if resolved {
			sla, err := s.slas.GetForUpdate(ctx, active.ID)
			if err != nil {
				return err
			}
			return s.completeTimer(ctx, sla, actor.ID, effects)
		}

		ticket, err := s.tickets.GetForUpdate(ctx, after.ID)
		if err != nil {
			return err
		}
		_, err = s.restartTimer(ctx, ticket, actor.ID, effects)
		return err
	})
	if err != nil {
		return err
	}

	s.effects.dispatch(effects)
	return nil
}

func (s *SLAService) recordBreach(effects *sideEffects, sla *domain.TicketSLA, actorID uuid.UUID) {
	effects.logActivity(s.slaActivity(sla, actorID, domain.ActivitySLABreached,
		fmt.Sprintf("SLA breached, due %s", sla.DueTime.Format(time.RFC3339))))
	effects.broadcast(slaEvent(domain.EventSLABreached, sla))
}

// Shutdown waits for in-flight side effects to complete.
func (s *SLAService) Shutdown() {
	s.effects.wait()
}

// checkBreach evaluates one timer. A nil actor means the system sweeper, which skips
// the tenant check.
func (s *SLAService) checkBreach(ctx context.Context, slaID int64, actor *domain.Actor) (*domain.BreachStatus, error) {
	var (
		status  domain.BreachStatus
		effects = &sideEffects{}
	)

	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		var (
			sla *domain.TicketSLA
			err error
		)
		if actor != nil {
			sla, err = s.lockSLA(ctx, slaID, actor.OrganizationID)
		} else {
			sla, err = s.slas.GetForUpdate(ctx, slaID)
		}
		if err != nil {
			return err
		}

		status = sla.CheckBreach(s.clock.Now())
		if sla.Status != domain.SLAInProgress || !status.IsBreached {
			return nil
		}
		if err := s.slas.Update(ctx, sla); err != nil {
			return err
		}

		if status.NewlyBreached {
			var actorID uuid.UUID
			if actor != nil {
				actorID = actor.ID
			}
			s.recordBreach(effects, sla, actorID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.effects.dispatch(effects)
	if status.NewlyBreached {
		s.logger.Warn("SLA breached", "sla_id", status.SLAID, "ticket_id", status.TicketID)
	}
	return &status, nil
}

func (s *SLAService) startTimer(ctx context.Context, ticket *domain.Ticket, actorID uuid.UUID, effects *sideEffects) (*domain.TicketSLA, error) {
	target, err := s.policy.ComputeDueTime(ctx, ticket.Type, ticket.Priority, ticket.OrganizationID)
	if err != nil {
		return nil, err
	}

	sla, err := s.slas.Create(ctx, domain.NewTicketSLA(ticket, target, s.clock.Now()))
	if err != nil {
		return nil, err
	}

	due := sla.DueTime
	ticket.SLADueTime = &due
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}

	effects.logActivity(s.slaActivity(sla, actorID, domain.ActivitySLAStarted,
		fmt.Sprintf("SLA %q started, due %s", target.Name, due.Format(time.RFC3339))))
	return sla, nil
}

func (s *SLAService) restartTimer(ctx context.Context, ticket *domain.Ticket, actorID uuid.UUID, effects *sideEffects) (*domain.TicketSLA, error) {
	active, err := s.slas.ActiveForTicket(ctx, ticket.ID)
	switch {
	case err == nil:
		sla, err := s.slas.GetForUpdate(ctx, active.ID)
		if err != nil {
			return nil, err
		}
		if err := s.completeTimer(ctx, sla, actorID, effects); err != nil {
			return nil, err
		}
	case !errors.Is(err, apperrors.ErrNotFound):
		return nil, err
	}
	return s.startTimer(ctx, ticket, actorID, effects)
}

func (s *SLAService) completeTimer(ctx context.Context, sla *domain.TicketSLA, actorID uuid.UUID, effects *sideEffects) error {
	wasPaused := sla.Status == domain.SLAPaused
	now := s.clock.Now()

	if err := sla.Complete(now); err != nil {
		return err
	}
	if err := s.slas.Update(ctx, sla); err != nil {
		return err
	}
	if wasPaused {
		if err := s.closePauseEvent(ctx, sla.ID, actorID, now); err != nil {
			return err
		}
	}

	effects.logActivity(s.slaActivity(sla, actorID, domain.ActivitySLACompleted,
		fmt.Sprintf("SLA completed in %s, breached: %t", sla.ActualDuration.Round(time.Second), sla.IsBreached)))
	return nil
}

// closePauseEvent closes the open pause record. A timer paused without a record
// is tolerated so the clock can always be resumed.
func (s *SLAService) closePauseEvent(ctx context.Context, slaID int64, actorID uuid.UUID, now time.Time) error {
	event, err := s.slas.OpenPauseEvent(ctx, slaID)
	if errors.Is(err, apperrors.ErrNotFound) {
		s.logger.Warn("no open pause event for SLA", "sla_id", slaID)
		return nil
	}
	if err != nil {
		return err
	}
	event.Close(actorID, now)
	return s.slas.UpdatePauseEvent(ctx, event)
}

func (s *SLAService) mirrorDueTime(ctx context.Context, sla *domain.TicketSLA) error {
	ticket, err := s.tickets.GetForUpdate(ctx, sla.TicketID)
	if err != nil {
		return err
	}
	due := sla.DueTime
	ticket.SLADueTime = &due
	return s.tickets.Update(ctx, ticket)
}

func (s *SLAService) addInternalComment(ctx context.Context, ticketID int64, authorID uuid.UUID, body string, now time.Time) error {
	_, err := s.comments.Create(ctx, &domain.Comment{
		TicketID:   ticketID,
		AuthorID:   authorID,
		Body:       body,
		IsInternal: true,
		CreatedAt:  now,
	})
	return err
}

func (s *SLAService) lockTicket(ctx context.Context, ticketID int64, orgID uuid.UUID) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetForUpdate(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.IsDeleted || !ticket.BelongsTo(orgID) {
		return nil, apperrors.ErrTicketNotFound
	}
	return ticket, nil
}

func (s *SLAService) visibleTicket(ctx context.Context, ticketID int64, orgID uuid.UUID) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.IsDeleted || !ticket.BelongsTo(orgID) {
		return nil, apperrors.ErrTicketNotFound
	}
	return ticket, nil
}

func (s *SLAService) lockSLA(ctx context.Context, slaID int64, orgID uuid.UUID) (*domain.TicketSLA, error) {
	sla, err := s.slas.GetForUpdate(ctx, slaID)
	if err != nil {
		return nil, err
	}
	if sla.OrganizationID != orgID {
		return nil, apperrors.ErrSLANotFound
	}
	return sla, nil
}

func (s *SLAService) isResolved(status string) bool {
	return slices.Contains(s.settings.ResolvedStatuses, status)
}

func (s *SLAService) slaActivity(sla *domain.TicketSLA, actorID uuid.UUID, action domain.ActivityAction, description string) *domain.Activity {
	return &domain.Activity{
		OrganizationID: sla.OrganizationID,
		ActorID:        actorID,
		Action:         action,
		ResourceType:   "ticket",
		ResourceID:     sla.TicketID,
		Description:    description,
		CreatedAt:      s.clock.Now(),
	}
}

func slaEvent(eventType domain.EventType, sla *domain.TicketSLA) domain.Event {
	return domain.Event{
		Type:     eventType,
		TicketID: sla.TicketID,
		Payload: domain.SLAPayload{
			SLAID:      sla.ID,
			TicketID:   sla.TicketID,
			Status:     string(sla.Status),
			DueTime:    sla.DueTime.Format(time.RFC3339),
			IsBreached: sla.IsBreached,
		},
	}
}
