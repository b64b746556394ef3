package notifications

import (
	"context"
	"time"
)

// TokenMessage carries a one-time token to the account owner.
type TokenMessage struct {
	Email   string
	Name    string
	Token   string
	Expires time.Time
}

type Notifier interface {
	SendResetPassword(ctx context.Context, msg TokenMessage) error
	SendVerifyEmail(ctx context.Context, msg TokenMessage) error
}
