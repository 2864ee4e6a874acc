package email

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-workflow/internal/adapters/secondary/memory"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
	"github.com/stretchr/testify/assert"
)

func TestMockSMTPNotifier_Notify(t *testing.T) {
	store := memory.NewStore(nil)
	active := &domain.DirectoryUser{ID: uuid.New(), FullName: "Ada", Email: "ada@example.com", Role: "agent", IsActive: true}
	inactive := &domain.DirectoryUser{ID: uuid.New(), FullName: "Bob", Email: "bob@example.com", Role: "agent"}
	store.AddUser(active)
	store.AddUser(inactive)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	n := NewMockSMTPNotifier(memory.NewUserDirectory(store), logger)

	// a cancelled request context must not stop the lookup
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n.Notify(ctx, ports.NotificationParams{RecipientUserID: active.ID, Subject: "Ticket resolved", TicketID: 3})
	assert.Contains(t, buf.String(), "mock email sent")
	assert.Contains(t, buf.String(), "to_email=ada@example.com")

	buf.Reset()
	n.Notify(ctx, ports.NotificationParams{RecipientUserID: inactive.ID, TicketID: 3})
	assert.Contains(t, buf.String(), "skipped for inactive user")

	buf.Reset()
	n.Notify(ctx, ports.NotificationParams{RecipientUserID: uuid.New(), TicketID: 3})
	assert.Contains(t, buf.String(), "recipient lookup failed")
}
