package services

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
)

// sideEffects collects the fire-and-forget work of one operation. It is only
// dispatched after the operation's transaction has committed.
type sideEffects struct {
	activities    []*domain.Activity
	events        []domain.Event
	notifications []ports.NotificationParams
}

func (e *sideEffects) logActivity(activity *domain.Activity) {
	e.activities = append(e.activities, activity)
}

func (e *sideEffects) broadcast(event domain.Event) {
	e.events = append(e.events, event)
}

func (e *sideEffects) notify(params ports.NotificationParams) {
	e.notifications = append(e.notifications, params)
}

// effectDispatcher runs side effects in the background. Failures are logged and never
// reach the caller.
type effectDispatcher struct {
	activity    ports.ActivityRepository
	notifier    ports.Notifier
	broadcaster ports.EventBroadcaster
	logger      *slog.Logger
	wg          sync.WaitGroup
}

func newEffectDispatcher(activity ports.ActivityRepository, notifier ports.Notifier, broadcaster ports.EventBroadcaster, logger *slog.Logger) *effectDispatcher {
	return &effectDispatcher{
		activity:    activity,
		notifier:    notifier,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

func (d *effectDispatcher) dispatch(effects *sideEffects) {
	if effects == nil {
		return
	}

	for _, event := range effects.events {
		if d.broadcaster == nil {
			break
		}
		if err := d.broadcaster.Broadcast(event); err != nil {
			d.logger.Warn("failed to broadcast event",
				"event_type", event.Type,
				"ticket_id", event.TicketID,
				"error", err,
			)
		}
	}

	if len(effects.activities) == 0 && len(effects.notifications) == 0 {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		// Use background context since the request may be done
		ctx := context.Background()

		for _, activity := range effects.activities {
			if d.activity == nil {
				break
			}
			if err := d.activity.Create(ctx, activity); err != nil {
				d.logger.Warn("failed to record activity",
					"action", activity.Action,
					"resource_id", activity.ResourceID,
					"error", err,
				)
			}
		}

		for _, params := range effects.notifications {
			if d.notifier == nil {
				break
			}
			d.notifier.Notify(ctx, params)
		}
	}()
}

// wait blocks until every dispatched side effect has finished.
func (d *effectDispatcher) wait() {
	d.wg.Wait()
}

// Notifiers fans one notification out to several channels.
type Notifiers []ports.Notifier

var _ ports.Notifier = Notifiers(nil)

func (n Notifiers) Notify(ctx context.Context, params ports.NotificationParams) {
	for _, notifier := range n {
		if notifier != nil {
			notifier.Notify(ctx, params)
		}
	}
}
