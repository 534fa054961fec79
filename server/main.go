// server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/rexlx/expertposts/config"
	"github.com/rexlx/expertposts/forum"
	"github.com/rexlx/expertposts/logger"
)

// backend is what the server needs from a persistence implementation.
type backend interface {
	forum.Store
	forum.UserStore
	forum.Directory
}

var demoAccounts = []forum.DemoAccount{
	{Email: "mod@example.com", Handle: "mod", Password: "moderator-pass", Admin: true},
	{Email: "expert@example.com", Handle: "expert", Password: "expert-pass"},
}

// openStore picks PostgreSQL when a database URL is configured and the
// in-memory store otherwise, then seeds demo data if asked to.
func openStore(ctx context.Context, cfg config.Config, log zerolog.Logger) (backend, func(), error) {
	var (
		store     backend
		closeFunc = func() {}
	)
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL is not set, using in-memory store")
		store = forum.NewMemoryStore()
	} else {
		db, err := forum.NewDatabase(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("could not initialize database: %w", err)
		}
		if err := db.CreateTables(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("could not create tables: %w", err)
		}
		log.Info().Msg("connected to the database")
		store, closeFunc = db, db.Close
	}

	if cfg.SeedDemo {
		if _, err := forum.SeedDemo(ctx, store, store, demoAccounts, log); err != nil {
			closeFunc()
			return nil, nil, fmt.Errorf("could not seed demo data: %w", err)
		}
	}
	return store, closeFunc, nil
}

func main() {
	bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()
	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal().Err(err).Msg("could not load configuration")
	}
	level, _ := cfg.Level()
	logs, err := logger.New().FromPath(cfg.LogPath).WithLevel(level).Make()
	if err != nil {
		bootLog.Fatal().Err(err).Msg("could not open log")
	}
	defer logs.Close()
	log := logs.Logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("could not open store")
	}
	defer closeStore()

	service := forum.NewService(store, forum.Settings{
		ExpertWorkflowEnabled:      cfg.ExpertWorkflowEnabled,
		ExpertPostsRequireApproval: cfg.ExpertPostsRequireApproval,
	}, log)
	handlers := forum.NewHandlers(service, store, cfg.SessionLifetime, log)

	svr := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handlers.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = svr.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("addr", svr.Addr).
		Bool("expert_workflow", cfg.ExpertWorkflowEnabled).
		Bool("require_approval", cfg.ExpertPostsRequireApproval).
		Msg("starting forum server")
	if err := svr.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}
}
