package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/albapepper/burrito-league/internal/api/handler"
	"github.com/albapepper/burrito-league/internal/config"
	"github.com/albapepper/burrito-league/internal/sentry"
)

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(h *handler.Handler, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(TimingMiddleware)
	r.Use(sentry.Middleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5)) // gzip

	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Authorization", "Content-Type", "If-None-Match", "Cache-Control"},
		ExposedHeaders:   []string{"X-Process-Time", "X-Cache", "X-Cache-Stale", "ETag"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// --- Routes ---
	r.Get("/", h.Root)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
		r.Get("/cache", h.HealthCheckCache)
	})

	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/docs/doc.json")))

	// Cron routes are exempt from the per-IP limiter; the scheduler calls
	// them from a single address.
	r.Route("/api/cron", func(r chi.Router) {
		r.Use(CronAuth(cfg.CronSecret))
		r.Get("/poll-strava", h.PollStrava)
		r.Post("/poll-strava", h.PollStrava)
		r.Get("/pre-poll", h.PrePoll)
		r.Post("/pre-poll", h.PrePoll)
	})

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimitEnabled {
			r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}
		r.Get("/chapters", h.Chapters)
		r.Get("/stats", h.Stats)
		r.Get("/coordinates", h.Coordinates)
		r.Get("/poll-runs/latest", h.LatestPollRun)
		r.Get("/segments/{segmentID}", h.Segment)
		r.Get("/segments/{segmentID}/history", h.SegmentHistory)
		r.Get("/debug/chapters", h.DebugChapters)
	})

	return r
}
