package email

import (
	"context"
	"log/slog"
	"time"

	"github.com/lorrc/service-desk-workflow/internal/core/ports"
)

const lookupTimeout = 5 * time.Second

// MockSMTPNotifier is a secondary adapter that logs notifications instead of
// delivering them. Delivery mechanics belong to the mail service.
type MockSMTPNotifier struct {
	directory ports.UserDirectory
	logger    *slog.Logger
}

var _ ports.Notifier = (*MockSMTPNotifier)(nil)

// NewMockSMTPNotifier creates a notifier that resolves recipients through the directory.
// A nil logger uses slog.Default().
func NewMockSMTPNotifier(directory ports.UserDirectory, logger *slog.Logger) *MockSMTPNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &MockSMTPNotifier{
		directory: directory,
		logger:    logger.With("component", "email_notifier"),
	}
}

// Notify is best-effort: lookup failures and inactive recipients are logged and dropped.
func (n *MockSMTPNotifier) Notify(ctx context.Context, params ports.NotificationParams) {
	// the request context may already be cancelled when this runs
	lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
	defer cancel()

	user, err := n.directory.GetByID(lookupCtx, params.RecipientUserID)
	if err != nil {
		n.logger.WarnContext(ctx, "notification recipient lookup failed",
			"user_id", params.RecipientUserID,
			"ticket_id", params.TicketID,
			"error", err,
		)
		return
	}
	if !user.IsActive {
		n.logger.DebugContext(ctx, "notification skipped for inactive user",
			"user_id", user.ID,
			"ticket_id", params.TicketID,
		)
		return
	}

	n.logger.InfoContext(ctx, "mock email sent",
		"to_name", user.FullName,
		"to_email", user.Email,
		"subject", params.Subject,
		"ticket_id", params.TicketID,
	)
}
