package memory

import (
	"context"
	"sync"
	"time"

	"github.com/geocoder89/authgate/internal/domain/user"
	"github.com/google/uuid"
)

// UsersRepo keeps users in a map keyed by email. It backs USER_STORE=memory
// and the handler tests.
type UsersRepo struct {
	mu    sync.RWMutex
	items map[string]user.User // {"email": user}
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		items: make(map[string]user.User),
	}
}

func (r *UsersRepo) FindByEmail(ctx context.Context, email string) (user.User, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, err
	}

	r.mu.RLock()
	u, ok := r.items[email]
	r.mu.RUnlock()

	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (r *UsersRepo) Create(ctx context.Context, params user.CreateParams) (user.User, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[params.Email]; exists {
		return user.User{}, user.ErrDuplicateEmail
	}

	u := newUser(params)
	r.items[u.Email] = u
	return u, nil
}

func (r *UsersRepo) FindOrCreate(ctx context.Context, params user.CreateParams) (user.User, bool, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.items[params.Email]; ok {
		return existing, false, nil
	}

	u := newUser(params)
	r.items[u.Email] = u
	return u, true, nil
}

func (r *UsersRepo) DeleteByEmail(ctx context.Context, email string) (user.User, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[email]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	delete(r.items, email)
	return u, nil
}

func (r *UsersRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

func (r *UsersRepo) Ping(ctx context.Context) error {
	return ctx.Err()
}

func newUser(params user.CreateParams) user.User {
	now := time.Now().UTC()
	return user.User{
		ID:           uuid.NewString(),
		Email:        params.Email,
		Name:         params.Name,
		Image:        params.Image,
		PasswordHash: params.PasswordHash,
		Role:         params.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
