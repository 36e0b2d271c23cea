package api

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Server is the HTTP API server with WebSocket support.
// It combines the HTTP router with WebSocket hub for real-time updates.
type Server struct {
	sched       SchedulerInterface
	pipe        PipelineInterface
	journal     JournalInterface
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
	sessions    *SessionManager
}

// ServerOptions configures the API server composition.
type ServerOptions struct {
	// Scheduler is the loop being controlled (required)
	Scheduler SchedulerInterface

	// Pipeline is the presentation pipeline (required)
	Pipeline PipelineInterface

	// Journal is the optional session recorder
	Journal JournalInterface

	// AdminToken guards the mutating endpoints. Empty disables admin auth.
	AdminToken string

	// CORSOrigins overrides the default local CORS origins
	CORSOrigins []string

	// DisableLogging disables the request logger middleware
	DisableLogging bool
}

// NewServer creates a new API server with default production configuration.
//
// IMPORTANT: Background workers do NOT start until Start() is called.
// This enables testing by allowing the server to be constructed without
// starting goroutines or opening network listeners.
//
// For testing HTTP endpoints without WebSocket support, use NewRouter() directly.
func NewServer(opts ServerOptions) *Server {
	s := &Server{
		sched:   opts.Scheduler,
		pipe:    opts.Pipeline,
		journal: opts.Journal,
		wsHub:   NewWebSocketHub(),
	}

	if opts.AdminToken != "" {
		s.sessions = NewSessionManager(opts.AdminToken)
	}

	// Create rate limiter (we track it for cleanup on Stop)
	s.rateLimiter = NewIPRateLimiter(DefaultRateLimitConfig)

	// Build router using the factory
	s.router = NewRouter(RouterConfig{
		Scheduler:       opts.Scheduler,
		Pipeline:        opts.Pipeline,
		Journal:         opts.Journal,
		RateLimiter:     s.rateLimiter,
		CORSOrigins:     opts.CORSOrigins,
		SessionManager:  s.sessions,
		EnableAdminAuth: s.sessions != nil,
		DisableLogging:  opts.DisableLogging,
	})

	// Add WebSocket routes (these need the wsHub instance)
	s.setupWebSocketRoutes()

	return s
}

// setupWebSocketRoutes adds WebSocket-specific routes to the router.
// These routes need access to the wsHub instance, so they can't be
// part of the generic NewRouter factory.
func (s *Server) setupWebSocketRoutes() {
	s.router.Get("/ws", s.handleWS)
}

// Start begins the HTTP server AND starts background workers.
// This is the ONLY method that starts goroutines or opens network listeners.
//
// Call this method only once. To stop background workers, call Stop.
func (s *Server) Start(addr string) error {
	// Start background workers NOW, not in constructor
	// This is critical for testability - tests can construct the server
	// and use Router() without these workers running.
	go s.wsHub.Run()
	s.wsHub.StartBroadcastLoop(s.sched, s.pipe)

	log.Printf("🌐 API server starting on %s", addr)
	if s.sessions != nil {
		log.Printf("🔐 Admin authentication enabled")
	}

	return http.ListenAndServe(addr, s.router)
}

// Router returns the HTTP handler for use with httptest.
// Use this in integration tests instead of calling Start().
//
// Example:
//
//	server := api.NewServer(opts)
//	ts := httptest.NewServer(server.Router())
//	defer ts.Close()
//	resp, _ := http.Get(ts.URL + "/api/status")
func (s *Server) Router() http.Handler {
	return s.router
}

// Stop performs graceful shutdown of background workers.
// Call this before process exit to ensure clean cleanup.
func (s *Server) Stop() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	s.wsHub.Stop()
}

// handleWS upgrades and registers a WebSocket client.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.wsHub.HandleWebSocket(w, r)
}
