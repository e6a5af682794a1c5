package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/authgate/internal/auth"
)

// RouteGate applies auth.Gate to every request. It must run after
// LoadSession. Denied requests get a temporary redirect and nothing else.
func (m *SessionMiddleware) RouteGate() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, _ := SessionFromContext(c)

		d := auth.Gate(c.Request.URL.Path, session)
		if d.Allow {
			m.prom.ObserveGate("allow")
			c.Next()
			return
		}

		m.prom.ObserveGate("redirect")
		c.Redirect(http.StatusTemporaryRedirect, d.RedirectTo)
		c.Abort()
	}
}
