package notifications

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// LogNotifier writes messages to the log instead of an email provider. Dev and tests.
type LogNotifier struct {
	log *slog.Logger

	// Delay simulates a slow provider.
	Delay time.Duration
	// Fail simulates a provider outage.
	Fail bool
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

var errProviderDown = errors.New("provider down (simulated)")

func (n *LogNotifier) send(ctx context.Context, kind string, msg TokenMessage) error {
	if n.Delay > 0 {
		select {
		case <-time.After(n.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if n.Fail {
		return errProviderDown
	}

	// the token itself is never logged
	n.log.InfoContext(ctx, "notification_sent",
		"kind", kind,
		"email", msg.Email,
		"expires", msg.Expires,
	)
	return nil
}

func (n *LogNotifier) SendResetPassword(ctx context.Context, msg TokenMessage) error {
	return n.send(ctx, "reset_password", msg)
}

func (n *LogNotifier) SendVerifyEmail(ctx context.Context, msg TokenMessage) error {
	return n.send(ctx, "verify_email", msg)
}
