// Package service holds the use cases behind the HTTP handlers. Services speak
// apperr; they never choose status codes.
package service

import (
	"context"
	"time"

	"github.com/geocoder89/orderhub/internal/auth"
	"github.com/geocoder89/orderhub/internal/domain/order"
	"github.com/geocoder89/orderhub/internal/domain/token"
	"github.com/geocoder89/orderhub/internal/domain/user"
)

type UserStore interface {
	Create(ctx context.Context, u user.User) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByUsername(ctx context.Context, username string) (user.User, error)
	Update(ctx context.Context, id string, patch user.Patch) (user.User, error)
	SoftDelete(ctx context.Context, id string, at time.Time) error
	List(ctx context.Context, f user.ListFilter) ([]user.User, int, error)
}

type SessionReader interface {
	LastSessions(ctx context.Context, userIDs []string) ([]token.Session, error)
}

type OrderStore interface {
	Create(ctx context.Context, o order.Order) (order.Order, error)
	GetByID(ctx context.Context, id string) (order.Order, error)
	ListByUser(ctx context.Context, userID string) ([]order.Order, error)
	Update(ctx context.Context, id string, p order.Patch) (order.Order, error)
	Delete(ctx context.Context, id string) error
	AddItems(ctx context.Context, id string, items []order.Item) (order.Order, error)
	RemoveItems(ctx context.Context, id string, itemIDs []string) (order.Order, error)
}

// Tokens is the slice of *auth.Issuer the services use.
type Tokens interface {
	Issue(ctx context.Context, userID string, typ token.Type, ttl time.Duration) (auth.Issued, error)
	IssuePair(ctx context.Context, userID string) (auth.Pair, error)
	Verify(ctx context.Context, raw string, expected token.Type) (token.Token, error)
	Lookup(ctx context.Context, raw string, typ token.Type) (token.Token, error)
	Consume(ctx context.Context, row token.Token) error
	RevokeAllOfType(ctx context.Context, userID string, typ token.Type) error
	RevokeAll(ctx context.Context, userID string) error
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Matches(plain, hash string) bool
	Burn(plain string)
}

var _ Tokens = (*auth.Issuer)(nil)

func nowUTC() time.Time { return time.Now().UTC() }
