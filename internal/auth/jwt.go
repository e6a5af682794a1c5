package auth

import (
	"errors"
	"time"

	"github.com/geocoder89/authgate/internal/domain/user"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RedirectAfterSignIn is where every successful sign-in sends the client.
// It is never derived from request input.
const RedirectAfterSignIn = "/profile"

// SessionClaims is the decoded session carried by a token.
type SessionClaims struct {
	ID        string    `json:"id"`
	Role      user.Role `json:"role"`
	Name      *string   `json:"name"`
	Email     string    `json:"email"`
	Image     *string   `json:"image"`
	ExpiresAt time.Time `json:"expires"`
}

// Identity drops the token metadata.
func (c SessionClaims) Identity() Identity {
	return Identity{
		ID:    c.ID,
		Name:  c.Name,
		Email: c.Email,
		Image: c.Image,
		Role:  c.Role,
	}
}

type Claims struct {
	UserID  string    `json:"id"`
	Role    roleClaim `json:"role"`
	Name    *string   `json:"name"`
	Email   string    `json:"email"`
	Picture *string   `json:"picture"`
	jwt.RegisteredClaims
}

// roleClaim records whether the role key was present at all, so a token
// that omits it can be told apart from one that carries null. A value that
// is not a known role is kept as invalid instead of failing the decode.
type roleClaim struct {
	role    user.Role
	present bool
	invalid bool
}

func (r roleClaim) MarshalJSON() ([]byte, error) {
	return r.role.MarshalJSON()
}

func (r *roleClaim) UnmarshalJSON(b []byte) error {
	r.present = true
	if err := r.role.UnmarshalJSON(b); err != nil {
		r.role = user.RoleUnset
		r.invalid = true
	}
	return nil
}

type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(secret string, ttl time.Duration) *Manager {
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Mint signs a token for id. The role and id claims are always written,
// an unset role as null.
func (m *Manager) Mint(id Identity) (token string, expiresAt time.Time, err error) {
	if id.ID == "" {
		return "", time.Time{}, ErrInvalidSubmission
	}

	now := m.now().UTC()
	expiresAt = now.Add(m.ttl)

	claims := Claims{
		UserID:  id.ID,
		Role:    roleClaim{role: id.Role, present: true},
		Name:    id.Name,
		Email:   id.Email,
		Picture: id.Image,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	return
}

// Verify validates signature and expiry and decodes the session.
func (m *Manager) Verify(tokenStr string) (*SessionClaims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		// Enforce HS256
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.UserID == "" || !claims.Role.present || claims.Role.invalid {
		return nil, ErrMalformed
	}

	return &SessionClaims{
		ID:        claims.UserID,
		Role:      claims.Role.role,
		Name:      claims.Name,
		Email:     claims.Email,
		Image:     claims.Picture,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
