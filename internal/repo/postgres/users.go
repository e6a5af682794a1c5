package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/authgate/internal/domain/user"
	"github.com/geocoder89/authgate/internal/observability"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, email, name, image, password_hash, role, created_at, updated_at`

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *UsersRepo) FindByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User

	err := r.observe("users.find_by_email", func() error {
		var err error
		u, err = scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+`
			FROM users
			WHERE email = $1`,
			email,
		))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}
	return u, nil
}

func (r *UsersRepo) Create(ctx context.Context, params user.CreateParams) (user.User, error) {
	var u user.User

	err := r.observe("users.create", func() error {
		var err error
		u, err = scanUser(r.pool.QueryRow(ctx,
			`INSERT INTO users (id, email, name, image, password_hash, role, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
			RETURNING `+userColumns,
			insertArgs(params)...,
		))
		return err
	})

	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrDuplicateEmail
		}
		return user.User{}, err
	}
	return u, nil
}

// FindOrCreate inserts the row unless one with the same email exists, in
// which case the existing row is returned. Two concurrent first sign-ins for
// one email both end up with the winner's row.
func (r *UsersRepo) FindOrCreate(ctx context.Context, params user.CreateParams) (user.User, bool, error) {
	var u user.User

	err := r.observe("users.find_or_create", func() error {
		var err error
		u, err = scanUser(r.pool.QueryRow(ctx,
			`INSERT INTO users (id, email, name, image, password_hash, role, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
			ON CONFLICT (email) DO NOTHING
			RETURNING `+userColumns,
			insertArgs(params)...,
		))
		return err
	})

	if err == nil {
		return u, true, nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return user.User{}, false, err
	}

	// lost the race, read the winner
	u, err = r.FindByEmail(ctx, params.Email)
	if err != nil {
		return user.User{}, false, err
	}
	return u, false, nil
}

func (r *UsersRepo) DeleteByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User

	err := r.observe("users.delete_by_email", func() error {
		var err error
		u, err = scanUser(r.pool.QueryRow(ctx,
			`DELETE FROM users
			WHERE email = $1
			RETURNING `+userColumns,
			email,
		))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}
	return u, nil
}

func (r *UsersRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func insertArgs(params user.CreateParams) []any {
	return []any{
		uuid.NewString(),
		params.Email,
		params.Name,
		params.Image,
		params.PasswordHash,
		params.Role.Nullable(),
		time.Now().UTC(),
	}
}

func scanUser(row pgx.Row) (user.User, error) {
	var (
		u    user.User
		role *string
	)

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.Image,
		&u.PasswordHash,
		&role,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return user.User{}, err
	}

	u.Role, err = user.RoleFromNullable(role)
	if err != nil {
		return user.User{}, fmt.Errorf("user %s: %w", u.ID, err)
	}

	return u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "users_email_key"
}
