package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/geocoder89/authgate/internal/config"
	"github.com/geocoder89/authgate/internal/db"
	"github.com/geocoder89/authgate/internal/observability"
	"github.com/geocoder89/authgate/internal/repo/postgres"
)

// migrate applies the schema and seeds the admin account, then exits. It is
// meant for deploys that run the API with RUN_MIGRATIONS=false.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := observability.NewLogger("authgate-migrate", cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	err = run(ctx, cfg, log)
	stop()

	if err != nil {
		log.Error("migrate failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	pool, err := db.NewPool(ctx, cfg.DB.DSN(), cfg.DB.MaxConns)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	log.Info("migrations applied")

	created, err := db.EnsureAdminUser(ctx, postgres.NewUsersRepo(pool, nil), cfg.Admin)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	log.Info("migrate complete", "admin_created", created)
	return nil
}
