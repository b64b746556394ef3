package auth

import (
	"context"
	"errors"

	"github.com/geocoder89/orderhub/internal/apperr"
	"github.com/geocoder89/orderhub/internal/domain/token"
	"github.com/geocoder89/orderhub/internal/domain/user"
	"github.com/geocoder89/orderhub/internal/rbac"
)

// Keep these small so tests can fake them easily.
type AccessVerifier interface {
	Verify(ctx context.Context, raw string, expected token.Type) (token.Token, error)
}

type UserLoader interface {
	GetByID(ctx context.Context, id string) (user.User, error)
}

// Gate resolves a bearer token to a user and checks a permission.
type Gate struct {
	tokens  AccessVerifier
	users   UserLoader
	perms   *rbac.Registry
	observe func(outcome string)
}

func NewGate(tokens AccessVerifier, users UserLoader, perms *rbac.Registry) *Gate {
	return &Gate{tokens: tokens, users: users, perms: perms, observe: func(string) {}}
}

// OnDecision registers a hook receiving "allowed", "unauthenticated", "forbidden" or "error".
func (g *Gate) OnDecision(fn func(outcome string)) *Gate {
	if fn != nil {
		g.observe = fn
	}
	return g
}

func errPleaseAuthenticate() *apperr.Error {
	return apperr.Unauthenticated("unauthorized", "Please authenticate")
}

// Authorize runs the checks in order and stops at the first failure, so the
// caller only ever learns 401 versus 403. With no required permissions any
// authenticated, non-deleted user passes.
func (g *Gate) Authorize(ctx context.Context, raw string, required ...rbac.Permission) (user.User, error) {
	u, err := g.authorize(ctx, raw, required)
	g.observe(outcomeOf(err))
	return u, err
}

func outcomeOf(err error) string {
	if err == nil {
		return "allowed"
	}
	switch apperr.KindOf(err) {
	case apperr.KindUnauthenticated:
		return "unauthenticated"
	case apperr.KindForbidden:
		return "forbidden"
	default:
		return "error"
	}
}

func (g *Gate) authorize(ctx context.Context, raw string, required []rbac.Permission) (user.User, error) {
	if raw == "" {
		return user.User{}, errPleaseAuthenticate()
	}

	row, err := g.tokens.Verify(ctx, raw, token.TypeAccess)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrTokenNotFound) {
			return user.User{}, errPleaseAuthenticate()
		}
		return user.User{}, apperr.Internal("Could not verify token", err)
	}

	u, err := g.users.GetByID(ctx, row.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.User{}, errPleaseAuthenticate()
		}
		return user.User{}, apperr.Internal("Could not load user", err)
	}
	if u.IsDeleted() {
		return user.User{}, errPleaseAuthenticate()
	}

	granted := g.perms.PermissionsFor(u.Role)
	for _, p := range required {
		if !granted.Has(p) {
			return user.User{}, apperr.Forbidden("forbidden", "Forbidden")
		}
	}

	return u, nil
}
