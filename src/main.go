package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"expense-tracker-server/src/api"
	"expense-tracker-server/src/config"
	"expense-tracker-server/src/db"
	store "expense-tracker-server/src/db/sql"
	"expense-tracker-server/src/handlers"
	"expense-tracker-server/src/logger"
	"expense-tracker-server/src/reconcile"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("DB connection failed")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, log); err != nil {
		log.Fatal().Err(err).Msg("DB migration failed")
	}

	reportCache, err := db.NewReportCache(cfg.ReportCacheMaxCost)
	if err != nil {
		log.Fatal().Err(err).Msg("report cache init failed")
	}
	defer reportCache.Close()

	users := store.NewUserStore(pool)
	transactions := store.NewTransactionStore(pool)
	audit := store.NewAuditStore(pool)

	engine := reconcile.NewEngine(transactions, audit,
		reconcile.WithLogger(log.With().Str("component", "reconcile").Logger()),
		reconcile.WithItemTimeout(cfg.SyncItemTimeout),
	)

	router := api.NewRouter(api.Handlers{
		Auth: handlers.NewAuthHandler(users, store.NewTokenStore(pool), handlers.AuthConfig{
			Secret:           cfg.JWTSecret,
			AccessTTL:        cfg.JWTTTL,
			RefreshTTL:       cfg.RefreshTokenTTL,
			ResetTTL:         cfg.PasswordResetTTL,
			ExposeResetToken: !cfg.Production(),
		}),
		Users:        handlers.NewUserHandler(users),
		Categories:   handlers.NewCategoryHandler(store.NewCategoryStore(pool), reportCache),
		Transactions: handlers.NewTransactionHandler(transactions, reportCache),
		Sync:         handlers.NewSyncHandler(engine, audit, reportCache, cfg.SyncMaxItems),
		Reports:      handlers.NewReportHandler(store.NewReportStore(pool), reportCache),
	}, api.Options{
		JWTSecret:       cfg.JWTSecret,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		ReadOnly:        cfg.ReadOnly,
		RateLimitMax:    cfg.RateLimitMax,
		RateLimitWindow: cfg.RateLimitWindow,
		TrustProxy:      cfg.TrustProxy,
	}, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Bool("read_only", cfg.ReadOnly).Msg("API server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
