package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/geocoder89/authgate/internal/domain/user"
	"github.com/geocoder89/authgate/internal/security"
)

// UserStore is the part of the user store the verifier needs.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (user.User, error)
	FindOrCreate(ctx context.Context, params user.CreateParams) (user.User, bool, error)
}

// PasswordChecker returns nil when plain matches hash.
type PasswordChecker func(hash, plain string) error

type Verifier struct {
	users         UserStore
	checkPassword PasswordChecker
}

func NewVerifier(users UserStore) *Verifier {
	return &Verifier{
		users:         users,
		checkPassword: security.CheckPassword,
	}
}

// WithPasswordChecker replaces the bcrypt comparison, mainly for tests.
func (v *Verifier) WithPasswordChecker(fn PasswordChecker) *Verifier {
	v.checkPassword = fn
	return v
}

// Verify reconciles a submission with a stored user.
func (v *Verifier) Verify(ctx context.Context, sub Submission) (Identity, error) {
	if sub == nil {
		return Identity{}, ErrInvalidSubmission
	}

	if err := sub.validate(); err != nil {
		return Identity{}, err
	}

	switch s := sub.(type) {
	case LocalCredential:
		return v.verifyLocal(ctx, s)
	case ProviderIdentity:
		return v.verifyProvider(ctx, s)
	default:
		return Identity{}, ErrInvalidSubmission
	}
}

// Local sign-in never creates an account.
func (v *Verifier) verifyLocal(ctx context.Context, c LocalCredential) (Identity, error) {
	u, err := v.users.FindByEmail(ctx, strings.TrimSpace(c.Email))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return Identity{}, ErrNotFoundLocally
		}
		return Identity{}, storeUnavailable(err)
	}

	if !u.HasPassword() {
		return Identity{}, ErrInvalidCredentials
	}

	if err := v.checkPassword(*u.PasswordHash, c.Password); err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}

	return IdentityFromUser(u), nil
}

// Repeat provider sign-ins return the stored row untouched; name, image and
// role are only written when the row is created.
func (v *Verifier) verifyProvider(ctx context.Context, p ProviderIdentity) (Identity, error) {
	email := p.LookupEmail()

	u, err := v.users.FindByEmail(ctx, email)
	if err == nil {
		return IdentityFromUser(u), nil
	}
	if !errors.Is(err, user.ErrNotFound) {
		return Identity{}, storeUnavailable(err)
	}

	u, _, err = v.users.FindOrCreate(ctx, user.CreateParams{
		Email: email,
		Name:  user.StringPtr(strings.TrimSpace(p.Name)),
		Image: user.StringPtr(strings.TrimSpace(p.Image)),
		Role:  user.DefaultRole,
	})
	if err != nil {
		return Identity{}, storeUnavailable(err)
	}

	return IdentityFromUser(u), nil
}
