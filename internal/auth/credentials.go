package auth

import (
	"strings"

	"github.com/geocoder89/authgate/internal/domain/user"
)

// SyntheticEmailDomain is used to build a placeholder email for provider
// identities that come back without one (LINE does this unless the email
// scope was granted).
const SyntheticEmailDomain = "line.com"

// Submission is a sign-in attempt. It is implemented only by
// LocalCredential and ProviderIdentity.
type Submission interface {
	validate() error
}

// LocalCredential is an email/password pair checked against a stored hash.
type LocalCredential struct {
	Email    string
	Password string
}

func (c LocalCredential) validate() error {
	if strings.TrimSpace(c.Email) == "" || c.Password == "" {
		return ErrInvalidSubmission
	}
	return nil
}

// ProviderIdentity is a profile asserted by an identity provider after its
// own handshake succeeded.
type ProviderIdentity struct {
	Provider string
	ID       string
	Email    string
	Name     string
	Image    string
}

func (p ProviderIdentity) validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrInvalidSubmission
	}
	return nil
}

// LookupEmail is the email the identity is keyed on: the asserted email, or
// "{id}@line.com" when none was supplied.
func (p ProviderIdentity) LookupEmail() string {
	if email := strings.TrimSpace(p.Email); email != "" {
		return email
	}
	return strings.TrimSpace(p.ID) + "@" + SyntheticEmailDomain
}

// Identity is the normalized result of a successful verification.
type Identity struct {
	ID    string
	Name  *string
	Email string
	Image *string
	Role  user.Role
}

func IdentityFromUser(u user.User) Identity {
	return Identity{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Image: u.Image,
		Role:  u.Role,
	}
}
