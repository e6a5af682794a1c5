package http

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/geocoder89/authgate/internal/auth"
	"github.com/geocoder89/authgate/internal/config"
	"github.com/geocoder89/authgate/internal/http/handlers"
	"github.com/geocoder89/authgate/internal/http/middlewares"
	"github.com/geocoder89/authgate/internal/observability"
	"github.com/geocoder89/authgate/internal/provider"
)

const serviceName = "authgate"

// UserStore is everything the HTTP layer needs from the user store.
type UserStore interface {
	auth.UserStore
	handlers.UserWriter
	Ping(ctx context.Context) error
}

type Deps struct {
	Config    config.Config
	Users     UserStore
	Sessions  *auth.Manager
	Providers *provider.Registry
	States    provider.StateStore

	// Prom and Gatherer are optional; without them /metrics is not mounted.
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer
}

func NewRouter(d Deps) *gin.Engine {
	if d.Config.Env != "dev" && gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	sessions := middlewares.NewSessionMiddleware(d.Sessions, d.Prom)

	// middleware
	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger())
	r.Use(otelgin.Middleware(serviceName))
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.SecurityHeaders(d.Config.IsProd()))
	r.Use(middlewares.CORSMiddleware(d.Config.CORSOrigins))

	// Every request, routed or not, passes the gate.
	r.Use(sessions.LoadSession())
	r.Use(sessions.RouteGate())

	// health
	ping := func() error {
		if d.Users == nil {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		return d.Users.Ping(ctx)
	}

	h := handlers.NewHealthHandler(ping)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	states := d.States
	if states == nil {
		states = provider.NewMemoryStateStore()
	}

	authHandler := handlers.NewAuthHandler(handlers.AuthDeps{
		Users:         d.Users,
		Verifier:      auth.NewVerifier(d.Users),
		Sessions:      d.Sessions,
		Providers:     d.Providers,
		States:        states,
		Prom:          d.Prom,
		SecureCookies: d.Config.IsProd(),
	})

	signInLimiter := middlewares.NewRateLimiter(10, time.Minute)
	signUpLimiter := middlewares.NewRateLimiter(5, time.Minute)
	adminLimiter := middlewares.NewRateLimiter(30, time.Minute)

	// Signup and deletion answer every failure with the same 500, so only
	// sign-in enforces the JSON content type.
	maxBody := middlewares.MaxBodyBytes(middlewares.DefaultMaxBody)

	r.GET("/", authHandler.Providers)

	api := r.Group("/api", maxBody)
	{
		a := api.Group("/auth")
		a.POST("/signup", signUpLimiter.RateLimiterMiddleware(middlewares.KeyByIP), authHandler.SignUp)
		a.POST("/signin/credentials",
			middlewares.RequireJSON(),
			signInLimiter.RateLimiterMiddleware(middlewares.KeyByIP),
			authHandler.SignInCredentials,
		)
		a.GET("/signin/:provider", authHandler.SignInProvider)
		a.GET("/callback/:provider", authHandler.ProviderCallback)
		a.POST("/signout", authHandler.SignOut)
		a.GET("/session", authHandler.Session)
		a.GET("/providers", authHandler.Providers)

		api.GET("/profile", authHandler.Session)
	}

	r.GET("/profile", authHandler.Session)

	// Admin only; the gate has already redirected everyone else.
	protected := r.Group("/protected")
	{
		protected.GET("", handlers.ProtectedHome)
		protected.DELETE("/users",
			maxBody,
			adminLimiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP),
			authHandler.DeleteAccount,
		)
	}

	return r
}
