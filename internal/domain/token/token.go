package token

import (
	"errors"
	"time"
)

type Type string

const (
	TypeAccess        Type = "access"
	TypeRefresh       Type = "refresh"
	TypeResetPassword Type = "reset-password"
	TypeVerifyEmail   Type = "verify-email"
)

func (t Type) IsValid() bool {
	switch t {
	case TypeAccess, TypeRefresh, TypeResetPassword, TypeVerifyEmail:
		return true
	default:
		return false
	}
}

// Token is the persisted record of an issued credential. Value holds the
// keyed digest of the signed string, never the string itself.
type Token struct {
	ID        string
	UserID    string
	Value     string
	Type      Type
	Expires   time.Time
	CreatedAt time.Time
}

func (t Token) Expired(now time.Time) bool {
	return !now.Before(t.Expires)
}

var ErrNotFound = errors.New("token not found")

// Session is the "last seen" projection over a user's live access token.
type Session struct {
	UserID   string
	IssuedAt time.Time
}
