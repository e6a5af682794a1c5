package handlers

import (
	"time"

	"github.com/geocoder89/authgate/internal/auth"
	"github.com/geocoder89/authgate/internal/domain/user"
)

type SessionUser struct {
	ID    string    `json:"id"`
	Role  user.Role `json:"role"`
	Name  *string   `json:"name"`
	Email string    `json:"email"`
	Image *string   `json:"image"`
}

// SessionView is the session as callers see it: the user under "user" and
// the expiry beside it.
type SessionView struct {
	User    SessionUser `json:"user"`
	Expires time.Time   `json:"expires"`
}

// NewSessionView returns nil for a nil session so it encodes as null.
func NewSessionView(c *auth.SessionClaims) *SessionView {
	if c == nil {
		return nil
	}

	return &SessionView{
		User: SessionUser{
			ID:    c.ID,
			Role:  c.Role,
			Name:  c.Name,
			Email: c.Email,
			Image: c.Image,
		},
		Expires: c.ExpiresAt,
	}
}
