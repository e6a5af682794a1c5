package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geocoder89/authgate/internal/auth"
	"github.com/geocoder89/authgate/internal/config"
	"github.com/geocoder89/authgate/internal/domain/user"
	apphttp "github.com/geocoder89/authgate/internal/http"
	"github.com/geocoder89/authgate/internal/http/middlewares"
	"github.com/geocoder89/authgate/internal/observability"
	"github.com/geocoder89/authgate/internal/provider"
	"github.com/geocoder89/authgate/internal/repo/memory"
	"github.com/geocoder89/authgate/internal/security"
)

type testApp struct {
	router   *gin.Engine
	users    *memory.UsersRepo
	sessions *auth.Manager
}

func newTestApp(t *testing.T) testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := memory.NewUsersRepo()
	sessions := auth.NewManager("test-secret-key", time.Hour)
	reg := prometheus.NewRegistry()

	router := apphttp.NewRouter(apphttp.Deps{
		Config:    config.Config{Env: "test"},
		Users:     users,
		Sessions:  sessions,
		Providers: provider.NewRegistry(),
		States:    provider.NewMemoryStateStore(),
		Prom:      observability.NewProm(reg),
		Gatherer:  reg,
	})

	return testApp{router: router, users: users, sessions: sessions}
}

func (a testApp) do(method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = "192.0.2.1:1234"
	for _, c := range cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a testApp) seed(t *testing.T, email, password string, role user.Role) user.User {
	t.Helper()
	hash, err := security.HashPassword(password)
	require.NoError(t, err)

	u, err := a.users.Create(context.Background(), user.CreateParams{
		Email:        email,
		Name:         user.StringPtr("Seeded"),
		PasswordHash: &hash,
		Role:         role,
	})
	require.NoError(t, err)
	return u
}

func (a testApp) sessionCookie(t *testing.T, u user.User) *http.Cookie {
	t.Helper()
	tok, _, err := a.sessions.Mint(auth.IdentityFromUser(u))
	require.NoError(t, err)
	return &http.Cookie{Name: middlewares.SessionCookieName, Value: tok}
}

func keysOf(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func sessionCookieFrom(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == middlewares.SessionCookieName {
			return c
		}
	}
	return nil
}

func TestSignUp(t *testing.T) {
	app := newTestApp(t)

	w := app.do(http.MethodPost, "/api/auth/signup", `{"email":"ada@example.com","name":"Ada","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Message string         `json:"message"`
		Data    map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "User registered successfully", resp.Message)
	assert.Equal(t, "ada@example.com", resp.Data["email"])
	assert.Equal(t, "member", resp.Data["role"])
	assert.NotContains(t, w.Body.String(), "correct-horse")
	assert.NotContains(t, resp.Data, "passwordHash")
}

func TestSignUp_DuplicateEmailIsServerErrorAndKeepsRow(t *testing.T) {
	app := newTestApp(t)
	original := app.seed(t, "dup@example.com", "first-password", user.RoleMember)

	w := app.do(http.MethodPost, "/api/auth/signup", `{"email":"dup@example.com","name":"Other","password":"second-password"}`)
	require.Equal(t, http.StatusInternalServerError, w.Code, w.Body.String())
	assert.JSONEq(t, `{"error":"Failed to register"}`, w.Body.String())

	stored, err := app.users.FindByEmail(context.Background(), "dup@example.com")
	require.NoError(t, err)
	assert.Equal(t, original, stored)
	assert.Equal(t, 1, app.users.Count())
}

func TestSignUp_ShortPasswordIsAccepted(t *testing.T) {
	app := newTestApp(t)

	w := app.do(http.MethodPost, "/api/auth/signup", `{"email":"a@x.com","name":"A","password":"abc"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stored, err := app.users.FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, stored.PasswordHash)
	assert.NoError(t, security.CheckPassword(*stored.PasswordHash, "abc"))
}

func TestSignUp_BadBodyIsServerError(t *testing.T) {
	cases := []struct {
		name        string
		body        string
		contentType string
	}{
		{name: "missing password", body: `{"email":"nope@example.com","name":"N"}`},
		{name: "missing email", body: `{"name":"N","password":"secret"}`},
		{name: "syntax error", body: `{"email":`},
		{name: "wrong type", body: `{"email":"n@example.com","password":123}`},
		{name: "empty body"},
		{name: "not json", body: "email=n@example.com", contentType: "application/x-www-form-urlencoded"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(t)

			req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", bytes.NewBufferString(tc.body))
			ct := tc.contentType
			if ct == "" {
				ct = "application/json"
			}
			req.Header.Set("Content-Type", ct)

			w := httptest.NewRecorder()
			app.router.ServeHTTP(w, req)

			require.Equal(t, http.StatusInternalServerError, w.Code, w.Body.String())
			assert.JSONEq(t, `{"error":"Failed to register"}`, w.Body.String())
			assert.Equal(t, 0, app.users.Count())
		})
	}
}

func TestDeleteAccount(t *testing.T) {
	app := newTestApp(t)
	admin := app.seed(t, "admin@example.com", "admin-password", user.RoleAdmin)
	app.seed(t, "gone@example.com", "whatever-pass", user.RoleMember)
	cookie := app.sessionCookie(t, admin)

	t.Run("deletes and returns the row", func(t *testing.T) {
		w := app.do(http.MethodDelete, "/protected/users", `{"email":"gone@example.com"}`, cookie)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var deleted map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &deleted))
		assert.Equal(t, "gone@example.com", deleted["email"])

		_, err := app.users.FindByEmail(context.Background(), "gone@example.com")
		require.ErrorIs(t, err, user.ErrNotFound)
	})

	t.Run("nonexistent email is a server error", func(t *testing.T) {
		w := app.do(http.MethodDelete, "/protected/users", `{"email":"ghost@example.com"}`, cookie)
		require.Equal(t, http.StatusInternalServerError, w.Code, w.Body.String())
		assert.JSONEq(t, `{"error":"Failed to delete"}`, w.Body.String())
	})

	t.Run("bad body is a server error", func(t *testing.T) {
		before := app.users.Count()

		for _, body := range []string{`{}`, `{"email":`, `{"email":42}`} {
			w := app.do(http.MethodDelete, "/protected/users", body, cookie)
			require.Equal(t, http.StatusInternalServerError, w.Code, body)
			assert.JSONEq(t, `{"error":"Failed to delete"}`, w.Body.String())
		}
		assert.Equal(t, before, app.users.Count())
	})

	t.Run("non-admin is redirected home", func(t *testing.T) {
		member := app.seed(t, "member@example.com", "member-password", user.RoleMember)

		w := app.do(http.MethodDelete, "/protected/users", `{"email":"admin@example.com"}`, app.sessionCookie(t, member))
		require.Equal(t, http.StatusTemporaryRedirect, w.Code)
		assert.Equal(t, "/", w.Header().Get("Location"))

		_, err := app.users.FindByEmail(context.Background(), "admin@example.com")
		require.NoError(t, err)
	})
}

func TestSignInCredentials(t *testing.T) {
	app := newTestApp(t)
	app.seed(t, "ada@example.com", "correct-horse", user.RoleMember)

	t.Run("success sets cookie and points at profile", func(t *testing.T) {
		w := app.do(http.MethodPost, "/api/auth/signin/credentials", `{"email":"ada@example.com","password":"correct-horse"}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.JSONEq(t, `{"url":"/profile"}`, w.Body.String())

		c := sessionCookieFrom(w)
		require.NotNil(t, c)
		assert.True(t, c.HttpOnly)

		claims, err := app.sessions.Verify(c.Value)
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", claims.Email)
		assert.Equal(t, user.RoleMember, claims.Role)
	})

	t.Run("wrong password", func(t *testing.T) {
		w := app.do(http.MethodPost, "/api/auth/signin/credentials", `{"email":"ada@example.com","password":"wrong"}`)
		require.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Empty(t, w.Header().Get("Location"))
		assert.Nil(t, sessionCookieFrom(w))
	})

	t.Run("unknown email creates nothing", func(t *testing.T) {
		before := app.users.Count()

		w := app.do(http.MethodPost, "/api/auth/signin/credentials", `{"email":"nobody@example.com","password":"whatever"}`)
		require.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, before, app.users.Count())
	})
}

func TestSessionIntrospection(t *testing.T) {
	app := newTestApp(t)
	u := app.seed(t, "ada@example.com", "correct-horse", user.RoleAdmin)

	for _, path := range []string{"/api/auth/session", "/api/profile", "/profile"} {
		t.Run(path, func(t *testing.T) {
			w := app.do(http.MethodGet, path, "")
			require.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, `{"message":"User profile","session":null}`, w.Body.String())

			w = app.do(http.MethodGet, path, "", app.sessionCookie(t, u))
			require.Equal(t, http.StatusOK, w.Code)

			var resp struct {
				Session struct {
					User struct {
						ID    string  `json:"id"`
						Role  *string `json:"role"`
						Name  *string `json:"name"`
						Email string  `json:"email"`
					} `json:"user"`
					Expires time.Time `json:"expires"`
				} `json:"session"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, u.ID, resp.Session.User.ID)
			assert.Equal(t, "ada@example.com", resp.Session.User.Email)
			require.NotNil(t, resp.Session.User.Role)
			assert.Equal(t, "admin", *resp.Session.User.Role)
			require.NotNil(t, resp.Session.User.Name)
			assert.Equal(t, "Seeded", *resp.Session.User.Name)
			assert.WithinDuration(t, time.Now().Add(time.Hour), resp.Session.Expires, time.Minute)

			var raw struct {
				Session map[string]json.RawMessage `json:"session"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
			assert.ElementsMatch(t, []string{"user", "expires"}, keysOf(raw.Session))
		})
	}
}

func TestProtectedLanding(t *testing.T) {
	app := newTestApp(t)
	admin := app.seed(t, "admin@example.com", "admin-password", user.RoleAdmin)

	w := app.do(http.MethodGet, "/protected", "")
	require.Equal(t, http.StatusTemporaryRedirect, w.Code)

	w = app.do(http.MethodGet, "/protected", "", app.sessionCookie(t, admin))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Session struct {
			User struct {
				ID string `json:"id"`
			} `json:"user"`
		} `json:"session"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, admin.ID, resp.Session.User.ID)
}

func TestDeleteAccount_RateLimitedPerAdmin(t *testing.T) {
	app := newTestApp(t)
	first := app.seed(t, "first@example.com", "admin-password", user.RoleAdmin)
	second := app.seed(t, "second@example.com", "admin-password", user.RoleAdmin)
	firstCookie := app.sessionCookie(t, first)

	// Every request comes from the same address; the limit follows the user.
	for i := 0; i < 30; i++ {
		w := app.do(http.MethodDelete, "/protected/users", `{"email":"ghost@example.com"}`, firstCookie)
		require.Equal(t, http.StatusInternalServerError, w.Code, "request %d", i)
	}

	w := app.do(http.MethodDelete, "/protected/users", `{"email":"ghost@example.com"}`, firstCookie)
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	w = app.do(http.MethodDelete, "/protected/users", `{"email":"ghost@example.com"}`, app.sessionCookie(t, second))
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestSignOutClearsCookie(t *testing.T) {
	app := newTestApp(t)

	w := app.do(http.MethodPost, "/api/auth/signout", "")
	require.Equal(t, http.StatusNoContent, w.Code)

	c := sessionCookieFrom(w)
	require.NotNil(t, c)
	assert.Empty(t, c.Value)
	assert.Less(t, c.MaxAge, 0)
}

func TestHealthAndMetrics(t *testing.T) {
	app := newTestApp(t)

	require.Equal(t, http.StatusOK, app.do(http.MethodGet, "/healthz", "").Code)
	require.Equal(t, http.StatusOK, app.do(http.MethodGet, "/readyz", "").Code)

	app.do(http.MethodPost, "/api/auth/signin/credentials", `{"email":"x@example.com","password":"nope"}`)

	w := app.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `authgate_auth_sign_ins_total{method="credentials",result="rejected"} 1`), w.Body.String())
}
