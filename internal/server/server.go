package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fxarena/fxarena/internal/server/handler"
	"github.com/fxarena/fxarena/internal/server/middleware"
	"github.com/fxarena/fxarena/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit is requests per client IP per RateLimitWindow. Zero
	// disables rate limiting.
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health       *handler.HealthHandler
	Contests     *handler.ContestHandler
	Participants *handler.ParticipantHandler
	Settlement   *handler.SettlementHandler
	Events       *handler.EventsHandler
}

// Server is the HTTP + WebSocket API for the settlement service: contest
// and leaderboard reads, operator settlement actions, event replay, and
// the live event feed.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (rate limiting, logging, CORS, auth) and attaches
// the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, limiter middleware.RateLimiter, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Contest reads.
	mux.HandleFunc("GET /api/contests", handlers.Contests.ListContests)
	mux.HandleFunc("GET /api/contests/{id}", handlers.Contests.GetContest)
	mux.HandleFunc("GET /api/contests/{id}/leaderboard", handlers.Contests.GetLeaderboard)

	// Participant and position reads.
	mux.HandleFunc("GET /api/participants/{id}", handlers.Participants.GetParticipant)
	mux.HandleFunc("GET /api/positions/{id}", handlers.Participants.GetPosition)

	// Settlement operations and audit.
	mux.HandleFunc("POST /api/contests/{id}/finalize", handlers.Settlement.Finalize)
	mux.HandleFunc("GET /api/contests/{id}/ledger", handlers.Settlement.GetLedger)
	mux.HandleFunc("POST /api/settlement/sweep", handlers.Settlement.Sweep)

	// Event replay.
	if handlers.Events != nil {
		mux.HandleFunc("GET /api/events/{stream}", handlers.Events.ListEvents)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	// Apply rate limiting outermost so rejected requests are cheap.
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateLimitWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
