package db

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/orderhub/internal/config"
	"github.com/geocoder89/orderhub/internal/domain/user"
)

type AdminStore interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	Create(ctx context.Context, u user.User) (user.User, error)
}

type Hasher interface {
	Hash(plain string) (string, error)
}

// EnsureAdminUser creates the configured admin account once. It is a no-op when
// no admin credentials are configured or the email is already registered.
func EnsureAdminUser(ctx context.Context, users AdminStore, hasher Hasher, cfg config.Config) (bool, error) {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return false, nil
	}

	_, err := users.GetByEmail(ctx, cfg.AdminEmail)

	if err == nil {
		return false, nil
	}

	if !errors.Is(err, user.ErrNotFound) {
		return false, err
	}

	hash, err := hasher.Hash(cfg.AdminPassword)

	if err != nil {
		return false, err
	}

	u := user.NewUser{
		Email:        cfg.AdminEmail,
		PasswordHash: &hash,
		Name:         cfg.AdminName,
		Role:         user.RoleAdmin,
		Status:       user.StatusActive,
	}.Build(time.Now().UTC())

	if _, err := users.Create(ctx, u); err != nil {
		// lost a race with another instance
		if errors.Is(err, user.ErrEmailTaken) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}
