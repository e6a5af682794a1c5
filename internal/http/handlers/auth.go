package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/authgate/internal/auth"
	"github.com/geocoder89/authgate/internal/domain/user"
	"github.com/geocoder89/authgate/internal/http/middlewares"
	"github.com/geocoder89/authgate/internal/observability"
	"github.com/geocoder89/authgate/internal/provider"
	"github.com/geocoder89/authgate/internal/security"
)

const (
	stateCookieName = "oauth_state"
	storeTimeout    = 3 * time.Second
)

type UserWriter interface {
	Create(ctx context.Context, params user.CreateParams) (user.User, error)
	DeleteByEmail(ctx context.Context, email string) (user.User, error)
}

type CredentialVerifier interface {
	Verify(ctx context.Context, sub auth.Submission) (auth.Identity, error)
}

type SessionIssuer interface {
	Mint(id auth.Identity) (token string, expiresAt time.Time, err error)
}

type AuthDeps struct {
	Users     UserWriter
	Verifier  CredentialVerifier
	Sessions  SessionIssuer
	Providers *provider.Registry
	States    provider.StateStore
	Prom      *observability.Prom
	// SecureCookies marks cookies Secure; on in prod.
	SecureCookies bool
}

type AuthHandler struct {
	users     UserWriter
	verifier  CredentialVerifier
	sessions  SessionIssuer
	providers *provider.Registry
	states    provider.StateStore
	prom      *observability.Prom
	secure    bool
}

func NewAuthHandler(d AuthDeps) *AuthHandler {
	return &AuthHandler{
		users:     d.Users,
		verifier:  d.Verifier,
		sessions:  d.Sessions,
		providers: d.Providers,
		states:    d.States,
		prom:      d.Prom,
		secure:    d.SecureCookies,
	}
}

type SignUpRequest struct {
	Email    string `json:"email" binding:"required"`
	Name     string `json:"name"`
	Password string `json:"password" binding:"required"`
}

type DeleteAccountRequest struct {
	Email string `json:"email" binding:"required"`
}

type SignInRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SignUp registers a local account. Every failure, an unreadable body or a
// duplicate email included, is reported as the same 500.
func (h *AuthHandler) SignUp(ctx *gin.Context) {
	var req SignUpRequest

	if err := ctx.ShouldBindJSON(&req); err != nil {
		slog.Default().WarnContext(ctx.Request.Context(), "signup_rejected", "err", err)
		RespondMessage(ctx, http.StatusInternalServerError, "Failed to register")
		return
	}

	hash, err := security.HashPassword(req.Password)
	if err != nil {
		RespondMessage(ctx, http.StatusInternalServerError, "Failed to register")
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	u, err := h.users.Create(cctx, user.CreateParams{
		Email:        req.Email,
		Name:         user.StringPtr(req.Name),
		PasswordHash: &hash,
		Role:         user.DefaultRole,
	})
	if err != nil {
		slog.Default().WarnContext(ctx.Request.Context(), "signup_failed",
			"duplicate", errors.Is(err, user.ErrDuplicateEmail),
			"err", err,
		)
		RespondMessage(ctx, http.StatusInternalServerError, "Failed to register")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message": "User registered successfully",
		"data":    u,
	})
}

// DeleteAccount removes the account with the given email and returns it.
func (h *AuthHandler) DeleteAccount(ctx *gin.Context) {
	var req DeleteAccountRequest

	if err := ctx.ShouldBindJSON(&req); err != nil {
		slog.Default().WarnContext(ctx.Request.Context(), "delete_account_rejected", "err", err)
		RespondMessage(ctx, http.StatusInternalServerError, "Failed to delete")
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	u, err := h.users.DeleteByEmail(cctx, req.Email)
	if err != nil {
		slog.Default().WarnContext(ctx.Request.Context(), "delete_account_failed",
			"not_found", errors.Is(err, user.ErrNotFound),
			"err", err,
		)
		RespondMessage(ctx, http.StatusInternalServerError, "Failed to delete")
		return
	}

	slog.Default().InfoContext(ctx.Request.Context(), "account_deleted", "user_id", u.ID)
	ctx.JSON(http.StatusOK, u)
}

// SignInCredentials checks an email/password pair. On success the session
// cookie is set and the caller is told where to go; on failure an error
// string comes back and nothing is redirected.
func (h *AuthHandler) SignInCredentials(ctx *gin.Context) {
	var req SignInRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	id, err := h.verifier.Verify(cctx, auth.LocalCredential{Email: req.Email, Password: req.Password})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrNotFoundLocally), errors.Is(err, auth.ErrInvalidCredentials):
			h.prom.ObserveSignIn("credentials", "rejected")
			RespondMessage(ctx, http.StatusUnauthorized, "Invalid email or password")
		case errors.Is(err, auth.ErrInvalidSubmission):
			h.prom.ObserveSignIn("credentials", "invalid")
			RespondMessage(ctx, http.StatusUnauthorized, "Email and password are required")
		default:
			h.prom.ObserveSignIn("credentials", "error")
			slog.Default().ErrorContext(ctx.Request.Context(), "signin_failed", "method", "credentials", "err", err)
			RespondMessage(ctx, http.StatusInternalServerError, "Sign in is unavailable")
		}
		return
	}

	if !h.startSession(ctx, id) {
		return
	}

	h.prom.ObserveSignIn("credentials", "ok")
	ctx.JSON(http.StatusOK, gin.H{"url": auth.RedirectAfterSignIn})
}

// SignInProvider starts a provider handshake.
func (h *AuthHandler) SignInProvider(ctx *gin.Context) {
	p, err := h.providers.Get(ctx.Param("provider"))
	if err != nil {
		RespondNotFound(ctx, "Unknown sign-in provider")
		return
	}

	state := provider.NewState()
	if err := h.states.Put(ctx.Request.Context(), state, p.Name(), provider.StateTTL); err != nil {
		slog.Default().ErrorContext(ctx.Request.Context(), "oauth_state_store_failed", "provider", p.Name(), "err", err)
		RespondInternal(ctx, "Could not start sign in")
		return
	}

	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(stateCookieName, state, int(provider.StateTTL.Seconds()), "/api/auth/callback", "", h.secure, true)

	ctx.Redirect(http.StatusFound, p.AuthCodeURL(state))
}

// ProviderCallback finishes the handshake and funnels the asserted profile
// through the verifier's provider path.
func (h *AuthHandler) ProviderCallback(ctx *gin.Context) {
	name := ctx.Param("provider")
	p, err := h.providers.Get(name)
	if err != nil {
		RespondNotFound(ctx, "Unknown sign-in provider")
		return
	}

	state := ctx.Query("state")
	cookieState, _ := ctx.Cookie(stateCookieName)
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(stateCookieName, "", -1, "/api/auth/callback", "", h.secure, true)

	if state == "" || state != cookieState {
		h.prom.ObserveSignIn(name, "bad_state")
		RespondUnAuthorized(ctx, "invalid_state", "Sign in request is invalid or expired")
		return
	}

	issuedFor, err := h.states.Take(ctx.Request.Context(), state)
	if err != nil || issuedFor != p.Name() {
		h.prom.ObserveSignIn(name, "bad_state")
		RespondUnAuthorized(ctx, "invalid_state", "Sign in request is invalid or expired")
		return
	}

	if denied := ctx.Query("error"); denied != "" {
		h.prom.ObserveSignIn(name, "denied")
		RespondUnAuthorized(ctx, "provider_denied", "Sign in was cancelled at the provider")
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 10*time.Second)
	defer cancel()

	identity, err := p.Exchange(cctx, ctx.Query("code"))
	if err != nil {
		h.prom.ObserveSignIn(name, "rejected")
		slog.Default().WarnContext(ctx.Request.Context(), "provider_exchange_failed", "provider", name, "err", err)
		RespondUnAuthorized(ctx, "provider_signin_failed", "Could not sign in with "+name)
		return
	}

	id, err := h.verifier.Verify(cctx, identity)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidSubmission) {
			h.prom.ObserveSignIn(name, "invalid")
			RespondUnAuthorized(ctx, "provider_signin_failed", "Could not sign in with "+name)
			return
		}
		h.prom.ObserveSignIn(name, "error")
		slog.Default().ErrorContext(ctx.Request.Context(), "signin_failed", "method", name, "err", err)
		RespondInternal(ctx, "Sign in is unavailable")
		return
	}

	if !h.startSession(ctx, id) {
		return
	}

	h.prom.ObserveSignIn(name, "ok")
	ctx.Redirect(http.StatusFound, auth.RedirectAfterSignIn)
}

// SignOut drops the session cookie. Tokens are stateless, so a copied token
// stays valid until it expires.
func (h *AuthHandler) SignOut(ctx *gin.Context) {
	h.clearSessionCookie(ctx)
	ctx.Status(http.StatusNoContent)
}

// Session reports the decoded session, or null, for the caller.
func (h *AuthHandler) Session(ctx *gin.Context) {
	claims, _ := middlewares.SessionFromContext(ctx)

	ctx.JSON(http.StatusOK, gin.H{"message": "User profile", "session": NewSessionView(claims)})
}

func (h *AuthHandler) Providers(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"providers": append([]string{"credentials"}, h.providers.Names()...),
	})
}

func (h *AuthHandler) startSession(ctx *gin.Context, id auth.Identity) bool {
	token, expiresAt, err := h.sessions.Mint(id)
	if err != nil {
		slog.Default().ErrorContext(ctx.Request.Context(), "session_mint_failed", "user_id", id.ID, "err", err)
		RespondInternal(ctx, "Could not create session")
		return false
	}

	h.setSessionCookie(ctx, token, expiresAt)
	return true
}

func (h *AuthHandler) setSessionCookie(ctx *gin.Context, token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())

	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(
		middlewares.SessionCookieName,
		token,
		maxAge,
		"/",
		"",
		h.secure,
		true, // HttpOnly.
	)
}

func (h *AuthHandler) clearSessionCookie(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(middlewares.SessionCookieName, "", -1, "/", "", h.secure, true)
}
