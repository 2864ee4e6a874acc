package websocket

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-workflow/internal/core/errors"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
)

// TicketLookup is the slice of the ticket store the hub needs to authorize subscriptions.
type TicketLookup interface {
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
}

// Hub maintains the set of active Clients and fans engine events out to ticket rooms.
type Hub struct {
	// clients maps user IDs to their active connections
	// A single user can have multiple connections (multiple tabs/devices)
	clients map[uuid.UUID]map[*Client]bool

	// rooms maps ticket IDs to subscribed clients
	rooms map[int64]map[*Client]bool

	broadcast chan domain.Event

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	tickets TicketLookup

	// mu protects the clients and rooms maps
	mu sync.RWMutex

	logger *slog.Logger
}

var (
	_ ports.EventBroadcaster = (*Hub)(nil)
	_ ports.Notifier         = (*Hub)(nil)
)

// NewHub creates a new WebSocket hub. Subscriptions are only granted for tickets
// of the client's own organization.
func NewHub(tickets TicketLookup, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]bool),
		rooms:      make(map[int64]map[*Client]bool),
		broadcast:  make(chan domain.Event, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client, 16),
		tickets:    tickets,
		logger:     logger.With("component", "websocket_hub"),
	}
}

// Broadcast queues an event for the ticket's room. A full queue drops the event.
func (h *Hub) Broadcast(event domain.Event) error {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("broadcast channel full, dropping event",
			"event_type", event.Type,
			"ticket_id", event.TicketID,
		)
	}
	return nil
}

// Notify pushes a notification to every live connection of the recipient.
func (h *Hub) Notify(_ context.Context, params ports.NotificationParams) {
	h.SendToUser(params.RecipientUserID, domain.Event{
		Type:     domain.EventNotification,
		TicketID: params.TicketID,
		Payload: domain.NotificationPayload{
			Subject: params.Subject,
			Message: params.Message,
		},
	})
}

// Run starts the hub's event loop and returns when ctx is cancelled,
// disconnecting every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case event := <-h.broadcast:
			h.broadcastEvent(event)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.UserID] == nil {
		h.clients[client.UserID] = make(map[*Client]bool)
	}
	h.clients[client.UserID][client] = true

	h.logger.Info("client registered",
		"user_id", client.UserID,
		"total_connections", len(h.clients[client.UserID]),
	)
}

// unregisterClient removes a client from the hub and all rooms
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)

	h.logger.Info("client unregistered",
		"user_id", client.UserID,
	)
}

func (h *Hub) removeLocked(client *Client) {
	if userClients, ok := h.clients[client.UserID]; ok {
		delete(userClients, client)
		if len(userClients) == 0 {
			delete(h.clients, client.UserID)
		}
	}

	for _, ticketID := range client.GetSubscriptions() {
		if room, ok := h.rooms[ticketID]; ok {
			delete(room, client)
			if len(room) == 0 {
				delete(h.rooms, ticketID)
			}
		}
	}

	client.CloseSend()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, userClients := range h.clients {
		for client := range userClients {
			h.removeLocked(client)
		}
	}
	h.logger.Info("hub stopped")
}

// broadcastEvent sends an event to all clients subscribed to the ticket
func (h *Hub) broadcastEvent(event domain.Event) {
	h.mu.RLock()
	room := h.rooms[event.TicketID]
	clients := make([]*Client, 0, len(room))
	for client := range room {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	h.logger.Debug("broadcasting event",
		"event_type", event.Type,
		"ticket_id", event.TicketID,
		"client_count", len(clients),
	)

	for _, client := range clients {
		if !client.trySend(event) {
			// slow consumer; Run owns the maps so drop it inline
			h.logger.Warn("client send buffer full, unregistering",
				"user_id", client.UserID,
			)
			h.unregisterClient(client)
		}
	}
}

// subscribe adds the client to a ticket's room when the ticket belongs to its organization.
func (h *Hub) subscribe(ctx context.Context, client *Client, ticketID int64) error {
	ticket, err := h.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return err
	}
	if !ticket.BelongsTo(client.OrgID) {
		// same answer as a missing ticket
		return apperrors.ErrTicketNotFound
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[ticketID] == nil {
		h.rooms[ticketID] = make(map[*Client]bool)
	}
	h.rooms[ticketID][client] = true
	client.AddSubscription(ticketID)

	h.logger.Debug("client subscribed to ticket",
		"user_id", client.UserID,
		"ticket_id", ticketID,
	)
	return nil
}

func (h *Hub) unsubscribe(client *Client, ticketID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if room, ok := h.rooms[ticketID]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, ticketID)
		}
	}
	client.RemoveSubscription(ticketID)
}

// GetClientCount returns the total number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, userClients := range h.clients {
		count += len(userClients)
	}
	return count
}

// GetRoomCount returns the number of active rooms
func (h *Hub) GetRoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// GetClientsInRoom returns the number of clients subscribed to a ticket
func (h *Hub) GetClientsInRoom(ticketID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[ticketID])
}

// SendToUser sends an event directly to a specific user (all their connections)
func (h *Hub) SendToUser(userID uuid.UUID, event domain.Event) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients[userID]))
	for client := range h.clients[userID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.trySend(event)
	}
}
