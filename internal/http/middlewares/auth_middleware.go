package middlewares

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/authgate/internal/auth"
	"github.com/geocoder89/authgate/internal/observability"
)

// SessionCookieName carries the signed session token.
const SessionCookieName = "session_token"

// Keep this small interface so tests can fake it easily.
type TokenVerifier interface {
	Verify(token string) (*auth.SessionClaims, error)
}

type SessionMiddleware struct {
	tokens TokenVerifier
	prom   *observability.Prom
}

func NewSessionMiddleware(tokens TokenVerifier, prom *observability.Prom) *SessionMiddleware {
	return &SessionMiddleware{tokens: tokens, prom: prom}
}

// LoadSession decodes the caller's token, if any, and stashes the claims on
// the context. It never aborts: a bad token is the same as no session.
func (m *SessionMiddleware) LoadSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := TokenFromRequest(c)
		if raw == "" {
			m.prom.ObserveSession("absent")
			c.Next()
			return
		}

		claims, err := m.tokens.Verify(raw)
		if err != nil {
			result := sessionResult(err)
			m.prom.ObserveSession(result)
			slog.Default().DebugContext(c.Request.Context(), "session_rejected",
				"result", result,
				"err", err,
			)
			c.Next()
			return
		}

		m.prom.ObserveSession("valid")
		c.Set(CtxSession, claims)
		c.Next()
	}
}

// TokenFromRequest prefers the session cookie and falls back to a bearer
// Authorization header.
func TokenFromRequest(c *gin.Context) string {
	if v, err := c.Cookie(SessionCookieName); err == nil && v != "" {
		return v
	}

	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
}

func SessionFromContext(c *gin.Context) (*auth.SessionClaims, bool) {
	v, ok := c.Get(CtxSession)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.SessionClaims)
	return claims, ok && claims != nil
}

func UserIDFromContext(c *gin.Context) (string, bool) {
	claims, ok := SessionFromContext(c)
	if !ok {
		return "", false
	}
	return claims.ID, claims.ID != ""
}

func sessionResult(err error) string {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "expired"
	case errors.Is(err, auth.ErrMalformed):
		return "malformed"
	default:
		return "invalid"
	}
}
