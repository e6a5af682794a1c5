package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/geocoder89/authgate/internal/auth"
	"github.com/geocoder89/authgate/internal/config"
	"github.com/geocoder89/authgate/internal/db"
	httpx "github.com/geocoder89/authgate/internal/http"
	"github.com/geocoder89/authgate/internal/observability"
	"github.com/geocoder89/authgate/internal/provider"
	"github.com/geocoder89/authgate/internal/redisclient"
	"github.com/geocoder89/authgate/internal/repo/memory"
	"github.com/geocoder89/authgate/internal/repo/postgres"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Load the config set up; a missing secret stops the process here.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// start up the observability logger
	log := observability.NewLogger("authgate", cfg.Env)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx := context.Background()

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName:    "authgate",
		ServiceVersion: version,
		Env:            cfg.Env,
		Endpoint:       cfg.OTelEndpoint,
		SampleRatio:    cfg.OTelSample,
	})
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	users, closeStore, err := openUserStore(ctx, cfg, prom, log)
	if err != nil {
		return err
	}
	defer closeStore()

	seedCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	created, err := db.EnsureAdminUser(seedCtx, users, cfg.Admin)
	cancel()
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if created {
		log.Info("admin user created", "email", cfg.Admin.Email)
	}

	states, closeStates, err := openStateStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStates()

	providers := provider.FromConfig(ctx, cfg)
	log.Info("identity providers configured", "providers", providers.Names())

	router := httpx.NewRouter(httpx.Deps{
		Config:    cfg,
		Users:     users,
		Sessions:  auth.NewManager(cfg.Auth.Secret, cfg.Auth.SessionTTL),
		Providers: providers,
		States:    states,
		Prom:      prom,
		Gatherer:  reg,
	})

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.UserStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("listen: %w", err)
	case <-stop:
	}
	log.Info("server shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	log.Info("shutdown complete")
	return nil
}

// openUserStore returns the store handle every component shares and the
// func that releases it.
func openUserStore(ctx context.Context, cfg config.Config, prom *observability.Prom, log *slog.Logger) (httpx.UserStore, func(), error) {
	if cfg.UserStore == "memory" {
		log.Warn("using in-memory user store; data is lost on restart")
		return memory.NewUsersRepo(), func() {}, nil
	}

	pool, err := db.NewPool(ctx, cfg.DB.DSN(), cfg.DB.MaxConns)
	if err != nil {
		return nil, nil, fmt.Errorf("db connect: %w", err)
	}

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}

	return postgres.NewUsersRepo(pool, prom), pool.Close, nil
}

func openStateStore(ctx context.Context, cfg config.Config, log *slog.Logger) (provider.StateStore, func(), error) {
	if cfg.Redis.Addr == "" {
		return provider.NewMemoryStateStore(), func() {}, nil
	}

	rdb := redisclient.New(redisclient.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Info("oauth state stored in redis", "addr", cfg.Redis.Addr)
	return provider.NewRedisStateStore(rdb), func() { _ = rdb.Close() }, nil
}
