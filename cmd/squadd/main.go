package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/SalehHamed1978UAE/squadbot/internal/api"
	"github.com/SalehHamed1978UAE/squadbot/internal/config"
	"github.com/SalehHamed1978UAE/squadbot/internal/models"
	"github.com/SalehHamed1978UAE/squadbot/internal/orchestrator"
	"github.com/SalehHamed1978UAE/squadbot/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Initialize store
	var (
		st  store.DataStore
		err error
	)
	switch cfg.Store {
	case "postgres":
		st, err = store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		logger.Info().Msg("connected to PostgreSQL")
	case "memory":
		st = store.NewMemoryStore()
		logger.Warn().Msg("using in-memory store, state is lost on restart")
	default:
		st, err = store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened SQLite store")
	}
	defer st.Close()

	// Initialize Redis for rate limiting
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisClient.Close()
		logger.Info().Msg("connected to Redis")
	}

	// Create squad registry
	registry := orchestrator.NewRegistry(st, logger, orchestrator.Defaults{
		ConsensusMode:        models.ConsensusMode(cfg.ConsensusMode),
		CommitTimeoutSeconds: cfg.CommitTimeoutSeconds,
		MaxMembers:           cfg.MaxMembers,
		ConvergenceWindow:    cfg.ConvergenceWindow,
	})
	defer registry.Close()

	// Create router
	router := api.NewRouter(logger, registry, st, api.RouterConfig{
		Redis:              redisClient,
		RateLimitWhitelist: cfg.RateLimitWhitelist,
		AutoBlockEnabled:   cfg.AutoBlockEnabled,
	})

	// Create server. No Read/Write timeouts: /ws connections are
	// long-lived event streams.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("store", cfg.Store).
			Msg("starting squadbot server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
