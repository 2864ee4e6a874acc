package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-workflow/internal/adapters/secondary/memory"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hubFixture struct {
	hub    *Hub
	store  *memory.Store
	org    uuid.UUID
	ticket *domain.Ticket
	cancel context.CancelFunc
	done   chan struct{}
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()
	store := memory.NewStore(nil)
	org := uuid.New()
	ticket := store.AddTicket(&domain.Ticket{
		OrganizationID: org,
		Type:           domain.TypeIncident,
		Status:         "new",
		Priority:       domain.PriorityHigh,
		ReporterID:     uuid.New(),
	})

	hub := NewHub(memory.NewTicketRepository(store), slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	f := &hubFixture{hub: hub, store: store, org: org, ticket: ticket, cancel: cancel, done: make(chan struct{})}
	go func() {
		hub.Run(ctx)
		close(f.done)
	}()
	t.Cleanup(f.stop)
	return f
}

func (f *hubFixture) stop() {
	f.cancel()
	<-f.done
}

// connect registers a client without a network connection.
func (f *hubFixture) connect(t *testing.T, org uuid.UUID) *Client {
	t.Helper()
	actor := domain.Actor{ID: uuid.New(), Role: "agent", OrganizationID: org}
	c := NewClient(f.hub, nil, actor, f.hub.logger)
	f.hub.Register <- c
	require.Eventually(t, func() bool { return f.hub.GetClientCount() > 0 }, time.Second, 5*time.Millisecond)
	return c
}

func subscribeMessage(t *testing.T, ticketID int64) []byte {
	t.Helper()
	payload, err := json.Marshal(SubscribePayload{TicketID: ticketID})
	require.NoError(t, err)
	msg, err := json.Marshal(ClientMessage{Type: MessageSubscribe, Payload: payload})
	require.NoError(t, err)
	return msg
}

func receive(t *testing.T, c *Client) domain.Event {
	t.Helper()
	select {
	case ev := <-c.Send:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return domain.Event{}
	}
}

func TestHub_SubscribeIsTenantScoped(t *testing.T) {
	f := newHubFixture(t)

	member := f.connect(t, f.org)
	member.handleIncomingMessage(subscribeMessage(t, f.ticket.ID))
	ack := receive(t, member)
	assert.Equal(t, EventSubscribed, ack.Type)
	assert.True(t, member.HasSubscription(f.ticket.ID))

	outsider := f.connect(t, uuid.New())
	outsider.handleIncomingMessage(subscribeMessage(t, f.ticket.ID))
	refused := receive(t, outsider)
	assert.Equal(t, EventError, refused.Type)
	assert.False(t, outsider.HasSubscription(f.ticket.ID))

	missing := f.connect(t, f.org)
	missing.handleIncomingMessage(subscribeMessage(t, 999))
	assert.Equal(t, EventError, receive(t, missing).Type)

	assert.Equal(t, 1, f.hub.GetClientsInRoom(f.ticket.ID))
}

func TestHub_BroadcastReachesRoomOnly(t *testing.T) {
	f := newHubFixture(t)

	subscriber := f.connect(t, f.org)
	require.NoError(t, f.hub.subscribe(context.Background(), subscriber, f.ticket.ID))
	bystander := f.connect(t, f.org)

	require.NoError(t, f.hub.Broadcast(domain.Event{
		Type:     domain.EventStatusUpdated,
		TicketID: f.ticket.ID,
		Payload:  domain.StatusChangedPayload{TicketID: f.ticket.ID, FromStatus: "new", ToStatus: "in_progress"},
	}))

	ev := receive(t, subscriber)
	assert.Equal(t, domain.EventStatusUpdated, ev.Type)
	assert.Equal(t, f.ticket.ID, ev.TicketID)

	select {
	case ev := <-bystander.Send:
		t.Fatalf("unexpected event %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_NotifyTargetsUser(t *testing.T) {
	f := newHubFixture(t)
	c := f.connect(t, f.org)

	f.hub.Notify(context.Background(), ports.NotificationParams{
		RecipientUserID: c.UserID,
		Subject:         "Approval requested",
		TicketID:        f.ticket.ID,
	})

	ev := receive(t, c)
	assert.Equal(t, domain.EventNotification, ev.Type)
	assert.Equal(t, "Approval requested", ev.Payload.(domain.NotificationPayload).Subject)
}

func TestHub_DropsSlowConsumer(t *testing.T) {
	f := newHubFixture(t)
	c := f.connect(t, f.org)
	require.NoError(t, f.hub.subscribe(context.Background(), c, f.ticket.ID))

	for i := 0; i < sendBufferSize; i++ {
		require.True(t, c.trySend(domain.Event{Type: "FILL"}))
	}
	require.NoError(t, f.hub.Broadcast(domain.Event{Type: domain.EventSLABreached, TicketID: f.ticket.ID}))

	require.Eventually(t, func() bool { return f.hub.GetClientCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, f.hub.GetRoomCount())
}

func TestHub_RunStopsAndClosesClients(t *testing.T) {
	f := newHubFixture(t)
	c := f.connect(t, f.org)

	f.stop()

	for range c.Send {
	}
	assert.Equal(t, 0, f.hub.GetClientCount())
	assert.True(t, c.trySend(domain.Event{Type: "LATE"}), "send after close is a no-op")
}
