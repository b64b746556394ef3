package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/geocoder89/orderhub/internal/apperr"
	"github.com/geocoder89/orderhub/internal/domain/user"
	"github.com/geocoder89/orderhub/internal/security"
)

type CreateUserInput struct {
	Email    string
	Password string
	Username string
	Role     user.Role
	Status   user.Status
	Name     string
	Avatar   string
	Note     string
}

// UpdateUserInput has no username: it is fixed at creation.
type UpdateUserInput struct {
	Email    *string
	Password *string
	Name     *string
	Avatar   *string
	Note     *string
	Role     *user.Role
	Status   *user.Status
}

type UserService struct {
	users    UserStore
	sessions SessionReader
	tokens   Tokens
	hasher   PasswordHasher
	log      *slog.Logger
	now      func() time.Time
}

func NewUserService(users UserStore, sessions SessionReader, tokens Tokens, hasher PasswordHasher, log *slog.Logger) *UserService {
	if log == nil {
		log = slog.Default()
	}
	return &UserService{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		hasher:   hasher,
		log:      log,
		now:      nowUTC,
	}
}

func (s *UserService) Create(ctx context.Context, in CreateUserInput) (user.User, error) {
	if err := security.Validate(in.Password); err != nil {
		return user.User{}, apperr.Validation("validation_error", "Password is too long")
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return user.User{}, apperr.Internal("Could not create user", err)
	}

	u := user.NewUser{
		Email:        normalizeEmail(in.Email),
		Username:     in.Username,
		PasswordHash: &hash,
		Role:         in.Role,
		Status:       in.Status,
		Name:         in.Name,
		Avatar:       in.Avatar,
		Note:         in.Note,
	}.Build(s.now())

	created, err := s.users.Create(ctx, u)
	if err != nil {
		return user.User{}, mapUserWriteErr(err, "Could not create user")
	}

	s.log.InfoContext(ctx, "user_created", "user_id", created.ID, "role", created.Role)
	return created, nil
}

// List decorates each user with lastSeen, the creation time of its live access token.
func (s *UserService) List(ctx context.Context, f user.ListFilter) ([]user.Listed, int, error) {
	if f.SortBy != "" {
		if _, ok := user.SortColumns[f.SortBy]; !ok {
			return nil, 0, apperr.Validation("validation_error", "Unsupported sortBy field")
		}
	}

	users, total, err := s.users.List(ctx, f)
	if err != nil {
		return nil, 0, apperr.Internal("Could not list users", err)
	}

	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}

	lastSeen := make(map[string]int64, len(users))
	if len(ids) > 0 {
		sessions, err := s.sessions.LastSessions(ctx, ids)
		if err != nil {
			return nil, 0, apperr.Internal("Could not list users", err)
		}
		for _, sess := range sessions {
			ms := sess.IssuedAt.UnixMilli()
			if ms > lastSeen[sess.UserID] {
				lastSeen[sess.UserID] = ms
			}
		}
	}

	out := make([]user.Listed, 0, len(users))
	for _, u := range users {
		item := user.Listed{User: u}
		if ms, ok := lastSeen[u.ID]; ok {
			item.LastSeen = &ms
		}
		out = append(out, item)
	}

	return out, total, nil
}

func (s *UserService) Get(ctx context.Context, id string) (user.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return user.User{}, mapUserWriteErr(err, "Could not load user")
	}
	return u, nil
}

func (s *UserService) Update(ctx context.Context, id string, in UpdateUserInput) (user.User, error) {
	patch := user.Patch{
		Name:   in.Name,
		Avatar: in.Avatar,
		Note:   in.Note,
		Role:   in.Role,
		Status: in.Status,
	}

	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		patch.Email = &email
	}

	if in.Password != nil {
		if err := security.Validate(*in.Password); err != nil {
			return user.User{}, apperr.Validation("validation_error", "Password is too long")
		}
		hash, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return user.User{}, apperr.Internal("Could not update user", err)
		}
		patch.PasswordHash = &hash
	}

	updated, err := s.users.Update(ctx, id, patch)
	if err != nil {
		return user.User{}, mapUserWriteErr(err, "Could not update user")
	}

	return updated, nil
}

// Delete soft-deletes the user and drops every token it holds.
func (s *UserService) Delete(ctx context.Context, id string) error {
	if err := s.users.SoftDelete(ctx, id, s.now()); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return apperr.NotFound("user_not_found", "User not found")
		}
		return apperr.Internal("Could not delete user", err)
	}

	if err := s.tokens.RevokeAll(ctx, id); err != nil {
		return apperr.Internal("Could not revoke user tokens", err)
	}

	s.log.InfoContext(ctx, "user_deleted", "user_id", id)
	return nil
}
