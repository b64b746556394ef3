package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/geocoder89/orderhub/internal/domain/user"
)

type UsersRepo struct {
	mu    sync.RWMutex
	items map[string]user.User
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		items: make(map[string]user.User),
	}
}

// caller holds the lock
func (r *UsersRepo) conflict(email, username, exceptID string) error {
	for _, u := range r.items {
		if u.IsDeleted() || u.ID == exceptID {
			continue
		}
		if email != "" && strings.EqualFold(u.Email, email) {
			return user.ErrEmailTaken
		}
		if username != "" && strings.EqualFold(u.Username, username) {
			return user.ErrUsernameTaken
		}
	}
	return nil
}

func (r *UsersRepo) Create(_ context.Context, u user.User) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.conflict(u.Email, u.Username, ""); err != nil {
		return user.User{}, err
	}

	r.items[u.ID] = u
	return u, nil
}

func (r *UsersRepo) GetByID(_ context.Context, id string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.items[id]
	if !ok || u.IsDeleted() {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (r *UsersRepo) find(match func(user.User) bool) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.items {
		if !u.IsDeleted() && match(u) {
			return u, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (r *UsersRepo) GetByEmail(_ context.Context, email string) (user.User, error) {
	return r.find(func(u user.User) bool { return strings.EqualFold(u.Email, email) })
}

func (r *UsersRepo) GetByUsername(_ context.Context, username string) (user.User, error) {
	return r.find(func(u user.User) bool { return strings.EqualFold(u.Username, username) })
}

func (r *UsersRepo) Update(_ context.Context, id string, patch user.Patch) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]
	if !ok || u.IsDeleted() {
		return user.User{}, user.ErrNotFound
	}

	if patch.Email != nil {
		if err := r.conflict(*patch.Email, "", id); err != nil {
			return user.User{}, err
		}
	}

	u = patch.Apply(u, time.Now().UTC())
	r.items[id] = u
	return u, nil
}

func (r *UsersRepo) SoftDelete(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]
	if !ok || u.IsDeleted() {
		return user.ErrNotFound
	}
	u.DeletedAt = &at
	u.UpdatedAt = at
	r.items[id] = u
	return nil
}

func (r *UsersRepo) List(_ context.Context, f user.ListFilter) ([]user.User, int, error) {
	r.mu.RLock()
	matched := make([]user.User, 0, len(r.items))
	for _, u := range r.items {
		if u.IsDeleted() {
			continue
		}
		if f.Name != nil && u.Name != *f.Name {
			continue
		}
		if f.Role != nil && u.Role != *f.Role {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(u.Email), strings.ToLower(f.Search)) {
			continue
		}
		matched = append(matched, u)
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if f.SortDesc {
			return lessBy(f.SortBy, matched[j], matched[i])
		}
		return lessBy(f.SortBy, matched[i], matched[j])
	})

	total := len(matched)
	start := f.Offset()
	if start >= total {
		return []user.User{}, total, nil
	}
	end := total
	if f.Limit > 0 && start+f.Limit < total {
		end = start + f.Limit
	}
	return matched[start:end], total, nil
}

func lessBy(field string, a, b user.User) bool {
	switch field {
	case "email":
		return a.Email < b.Email
	case "username":
		return a.Username < b.Username
	case "name":
		return a.Name < b.Name
	case "role":
		return a.Role < b.Role
	case "updatedAt":
		return a.UpdatedAt.Before(b.UpdatedAt)
	default:
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	}
}
