package auth

import "strings"

const (
	// ProtectedPrefix is matched as a raw string prefix, so "/protectedx"
	// is protected too.
	ProtectedPrefix = "/protected"
	HomePath        = "/"
)

type Decision struct {
	Allow      bool
	RedirectTo string
}

func Allow() Decision { return Decision{Allow: true} }

func RedirectTo(path string) Decision { return Decision{RedirectTo: path} }

// Gate decides whether a request may proceed. A nil session means no valid
// token was presented.
func Gate(path string, session *SessionClaims) Decision {
	if strings.HasPrefix(path, ProtectedPrefix) && (session == nil || !session.Role.IsAdmin()) {
		return RedirectTo(HomePath)
	}
	return Allow()
}
