package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/SalehHamed1978UAE/squadbot/internal/api/middleware"
	"github.com/SalehHamed1978UAE/squadbot/internal/handlers"
	"github.com/SalehHamed1978UAE/squadbot/internal/orchestrator"
	"github.com/SalehHamed1978UAE/squadbot/internal/store"
)

// RouterConfig carries the optional pieces of the HTTP stack.
type RouterConfig struct {
	// Redis enables rate limiting when non-nil.
	Redis *redis.Client

	RateLimitWhitelist []string
	AutoBlockEnabled   bool
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, registry *orchestrator.Registry, st store.DataStore, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(16 * 1024)) // 16KB max body
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting, when Redis is configured
	if cfg.Redis != nil {
		limiter := middleware.NewRateLimiter(cfg.Redis, logger, middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		})
		r.Use(limiter.Middleware)
	}

	// CORS - allow all origins (agents call from anywhere)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Squad-Member"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(registry, st, logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	r.Route("/api/squads", func(r chi.Router) {
		r.Post("/", h.CreateSquad)
		r.Get("/", h.ListSquads)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetSquad)
			r.Delete("/", h.DeleteSquad)

			r.Post("/join", h.Join)
			r.Post("/leave", h.Leave)
			r.Get("/members", h.ListMembers)

			r.Post("/send", h.SendMessage)
			r.Get("/messages", h.GetMessages)

			r.Post("/propose", h.Propose)
			r.Post("/vote", h.Vote)
			r.Get("/pending", h.Pending)

			r.Get("/context", h.GetContext)
			r.Get("/status", h.Status)
			r.Get("/ws", h.Watch)
		})
	})

	return r
}
