package memory

import (
	"context"
	"sync"
	"time"

	"github.com/geocoder89/orderhub/internal/domain/token"
)

type TokensRepo struct {
	mu    sync.Mutex
	items map[string]token.Token
}

func NewTokensRepo() *TokensRepo {
	return &TokensRepo{
		items: make(map[string]token.Token),
	}
}

func (r *TokensRepo) Replace(_ context.Context, t token.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, existing := range r.items {
		if existing.UserID == t.UserID && existing.Type == t.Type {
			delete(r.items, id)
		}
	}
	r.items[t.ID] = t
	return nil
}

func (r *TokensRepo) Find(_ context.Context, userID, value string, typ token.Type) (token.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.items {
		if t.UserID == userID && t.Value == value && t.Type == typ {
			return t, nil
		}
	}
	return token.Token{}, token.ErrNotFound
}

func (r *TokensRepo) FindByValue(_ context.Context, value string, typ token.Type) (token.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.items {
		if t.Value == value && t.Type == typ {
			return t, nil
		}
	}
	return token.Token{}, token.ErrNotFound
}

// Delete reports token.ErrNotFound when the row is already gone, so a
// token can be consumed at most once.
func (r *TokensRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return token.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *TokensRepo) DeleteByUserAndType(_ context.Context, userID string, typ token.Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, t := range r.items {
		if t.UserID == userID && t.Type == typ {
			delete(r.items, id)
		}
	}
	return nil
}

func (r *TokensRepo) DeleteAllForUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, t := range r.items {
		if t.UserID == userID {
			delete(r.items, id)
		}
	}
	return nil
}

func (r *TokensRepo) LastSessions(_ context.Context, userIDs []string) ([]token.Session, error) {
	wanted := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]token.Session, 0, len(userIDs))
	for _, t := range r.items {
		if t.Type != token.TypeAccess {
			continue
		}
		if _, ok := wanted[t.UserID]; ok {
			out = append(out, token.Session{UserID: t.UserID, IssuedAt: t.CreatedAt})
		}
	}
	return out, nil
}

func (r *TokensRepo) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, t := range r.items {
		if t.Expired(now) {
			delete(r.items, id)
			n++
		}
	}
	return n, nil
}

// Count is a test helper.
func (r *TokensRepo) Count(userID string, typ token.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, t := range r.items {
		if t.UserID == userID && t.Type == typ {
			n++
		}
	}
	return n
}
