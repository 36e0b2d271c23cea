package api

import (
	"io"

	"pulse/internal/engine"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SchedulerInterface defines the scheduler methods used by the API.
// This interface enables mocking for tests without spinning up the full loop.
// Keep this minimal - only include methods the API layer actually calls.
type SchedulerInterface interface {
	// Status returns the latest lock-free status snapshot
	Status() engine.Status
	// IsRunning reports whether the loop is live
	IsRunning() bool
	// IsPaused reports whether updates are suspended
	IsPaused() bool
	// Pause suspends update processing
	Pause()
	// Resume reinstates update processing
	Resume()
	// SetTargetRate changes the update rate; invalid rates are rejected
	SetTargetRate(n int) error
	// SetVerbose toggles per-second rate logging
	SetVerbose(v bool)
}

// PipelineInterface defines the presentation methods used by the API.
// This interface enables mocking for tests that don't need a real canvas.
type PipelineInterface interface {
	// GetStats returns presentation statistics
	GetStats() map[string]interface{}
	// EncodeFrontPNG writes the front page as PNG
	EncodeFrontPNG(w io.Writer) error
}

// JournalInterface exposes the session recorder. May be nil when no
// journal is configured.
type JournalInterface interface {
	// Emit records one event; returns false when the event was shed
	Emit(kind string, tick uint64, payload interface{}) bool
	// GetStats returns recording statistics
	GetStats() map[string]interface{}
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
// This struct is designed for dependency injection and testability.
//
// Example usage in tests:
//
//	cfg := api.RouterConfig{
//	    Scheduler: mockScheduler,
//	    Pipeline:  mockPipeline,
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000, // High limit for tests
//	        Burst:             1000,
//	    },
//	}
//	router := api.NewRouter(cfg)
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Scheduler is the loop being controlled (required)
	Scheduler SchedulerInterface

	// Pipeline is the presentation pipeline (required)
	Pipeline PipelineInterface

	// Journal is the optional session recorder
	Journal JournalInterface

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is optional configuration for the rate limiter.
	// Only used if RateLimiter is nil. If both are nil, uses DefaultRateLimitConfig.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is an optional list of allowed CORS origins.
	// If nil, uses the default local origins.
	CORSOrigins []string

	// SessionManager handles admin sessions. Required when EnableAdminAuth
	// is set.
	SessionManager *SessionManager

	// EnableAdminAuth guards the mutating endpoints behind admin sessions.
	EnableAdminAuth bool

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

// routerHandlers holds the handler functions for the router.
// This is used internally to pass handlers to route setup.
type routerHandlers struct {
	sched   SchedulerInterface
	pipe    PipelineInterface
	journal JournalInterface
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// IMPORTANT: This function is PURE - it has no side effects:
//   - No goroutines are started
//   - No network listeners are opened
//   - No background workers are launched
//
// This makes it safe to use in tests with httptest.NewServer.
//
// Example:
//
//	router := api.NewRouter(cfg)
//	ts := httptest.NewServer(router)
//	defer ts.Close()
//	resp, _ := http.Get(ts.URL + "/api/status")
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	// Rate limiting (BEFORE CORS to reject early and save CPU)
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	// CORS configuration
	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	// Create handlers struct
	h := &routerHandlers{
		sched:   cfg.Scheduler,
		pipe:    cfg.Pipeline,
		journal: cfg.Journal,
	}

	r.Get("/health", h.handleHealth)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Read-only surface
		r.Get("/status", h.handleGetStatus)
		r.Get("/metrics", h.handleGetMetrics)
		r.Get("/frame.png", h.handleFramePNG)

		// Session endpoints
		if cfg.SessionManager != nil {
			r.Post("/auth/login", cfg.SessionManager.HandleLogin)
			r.Post("/auth/logout", cfg.SessionManager.HandleLogout)
			r.Get("/auth/status", cfg.SessionManager.HandleAuthStatus)
		}

		// Loop control; guarded when admin auth is enabled
		r.Group(func(r chi.Router) {
			if cfg.EnableAdminAuth && cfg.SessionManager != nil {
				r.Use(cfg.SessionManager.AdminAuthMiddleware)
			}
			r.Post("/pause", h.handlePause)
			r.Post("/resume", h.handleResume)
			r.Post("/rate", h.handleSetRate)
			r.Post("/verbose", h.handleSetVerbose)
		})
	})

	return r
}
