package user

import (
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already in use")
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         *string   `json:"name"`
	Image        *string   `json:"image"`
	PasswordHash *string   `json:"-"` // never expose hash in JSON
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CreateParams carries the fields a new row is inserted with. ID and
// timestamps are assigned by the store.
type CreateParams struct {
	Email        string
	Name         *string
	Image        *string
	PasswordHash *string
	Role         Role
}

// HasPassword reports whether the account can sign in locally.
func (u User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// StringPtr returns nil for the empty string so optional columns stay NULL.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
