// Package api provides the HTTP API for routenav.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/breatheroute/routenav/internal/api/handler"
	"github.com/breatheroute/routenav/internal/api/middleware"
	"github.com/breatheroute/routenav/internal/api/response"
	"github.com/breatheroute/routenav/internal/directions"
	"github.com/breatheroute/routenav/internal/navigation"
	"github.com/breatheroute/routenav/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	Store       *navigation.Store
	Decoder     *directions.Decoder
	Registry    *resilience.Registry
	RequireTLS  bool
	// PositionRateLimit is the number of position updates per minute per
	// session (default: 600).
	PositionRateLimit int
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "routenav-api"
	}
	if cfg.Decoder == nil {
		cfg.Decoder = directions.NewDecoder(directions.DecoderConfig{Logger: cfg.Logger})
	}
	if cfg.Store == nil {
		cfg.Store = navigation.NewStore(navigation.StoreConfig{Logger: cfg.Logger})
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement
	r.Use(middleware.ContentTypeJSON)            // JSON content type
	r.Use(middleware.RequireJSON)                // JSON request bodies

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "no route for "+r.Method+" "+r.URL.Path)
	})
	r.MethodNotAllowed(response.MethodNotAllowed)

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Registry, cfg.Store)
	directionsHandler := handler.NewDirectionsHandler(cfg.Decoder, cfg.Logger)
	geocodeHandler := handler.NewGeocodeHandler()
	sessionHandler := handler.NewSessionHandler(cfg.Store, cfg.Decoder, cfg.Logger)

	positionLimit := middleware.PositionRateLimit
	if cfg.PositionRateLimit > 0 {
		positionLimit = middleware.RateLimitConfig{
			RequestLimit: cfg.PositionRateLimit,
			WindowLength: time.Minute,
		}
	}

	// Create rate limit middleware for different endpoint categories
	expensiveRateLimit := middleware.RateLimitByIP(middleware.ExpensiveRateLimit) // 30 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)   // 100 req/min
	positionRateLimit := middleware.RateLimitBySession(positionLimit)             // 600 req/min per session

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		// Payload decoding - expensive, strict rate limiting
		r.With(expensiveRateLimit).Post("/directions:decode", directionsHandler.Decode)
		r.With(expensiveRateLimit).Post("/geocode:minimize", geocodeHandler.Minimize)

		// Navigation sessions
		r.Route("/sessions", func(r chi.Router) {
			r.With(standardRateLimit).Get("/", sessionHandler.ListSessions)
			r.With(expensiveRateLimit).Post("/", sessionHandler.CreateSession)

			r.Route("/{sessionId}", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(standardRateLimit)
					r.Get("/", sessionHandler.GetSession)
					r.Delete("/", sessionHandler.DeleteSession)
					r.Post("/start", sessionHandler.StartNavigation)
					r.Post("/stop", sessionHandler.StopNavigation)
					r.Get("/events", sessionHandler.ListEvents)
					r.Get("/debug.geojson", sessionHandler.DebugGeoJSON)
					r.Get("/debug.kml", sessionHandler.DebugKML)
				})

				// Position updates are keyed by session so one noisy client
				// cannot starve another.
				r.With(positionRateLimit).Post("/positions", sessionHandler.UpdatePositions)
				r.With(expensiveRateLimit).Post("/simulate", sessionHandler.Simulate)
			})
		})
	})

	return r
}
