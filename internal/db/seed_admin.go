package db

import (
	"context"
	"errors"

	"github.com/geocoder89/authgate/internal/config"
	"github.com/geocoder89/authgate/internal/domain/user"
	"github.com/geocoder89/authgate/internal/security"
)

type AdminSeeder interface {
	FindByEmail(ctx context.Context, email string) (user.User, error)
	FindOrCreate(ctx context.Context, params user.CreateParams) (user.User, bool, error)
}

// EnsureAdminUser creates the configured admin account on first start. It is
// the only code path that writes the admin role. An existing row with the
// same email is left as is.
func EnsureAdminUser(ctx context.Context, users AdminSeeder, cfg config.Admin) (created bool, err error) {
	if cfg.Email == "" || cfg.Password == "" {
		return false, nil
	}

	// check if the user exists
	_, err = users.FindByEmail(ctx, cfg.Email)

	if err == nil {
		return false, nil
	}

	if !errors.Is(err, user.ErrNotFound) {
		return false, err
	}

	hash, err := security.HashPassword(cfg.Password)

	if err != nil {
		return false, err
	}

	_, created, err = users.FindOrCreate(ctx, user.CreateParams{
		Email:        cfg.Email,
		Name:         user.StringPtr(cfg.Name),
		PasswordHash: &hash,
		Role:         user.RoleAdmin,
	})

	return created, err
}
