// Package server exposes the chat HTTP API: session lifecycle, the chat
// turn endpoint, conversation history, and operational endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sdrlabs/leadqual/internal/assistant"
	"github.com/sdrlabs/leadqual/internal/slotmap"
	"github.com/sdrlabs/leadqual/internal/storage"
	"github.com/sdrlabs/leadqual/internal/tokens"
)

// ThreadManager is the slice of the conversation-runtime client the HTTP
// layer needs for session lifecycle and history.
type ThreadManager interface {
	CreateThread(ctx context.Context) (string, error)
	DeleteThread(ctx context.Context, threadID string) error
	ListMessages(ctx context.Context, threadID string) ([]assistant.Message, error)
}

// TurnDriver runs one chat turn and always returns chat-shaped text.
type TurnDriver interface {
	ProcessTurn(ctx context.Context, threadID, message string) string
}

// Config carries the server's tunables.
type Config struct {
	Port           int
	SessionTTL     time.Duration
	RequestTimeout time.Duration
	AllowedOrigins []string
}

// Server is the chat API over chi.
type Server struct {
	Router *chi.Mux

	cfg      Config
	sessions storage.SessionStore
	threads  ThreadManager
	driver   TurnDriver
	slots    slotmap.Store
	guard    *tokens.Guard
	logger   *slog.Logger
	now      func() time.Time

	httpServer *http.Server
}

// New wires the router and middleware chain.
func New(cfg Config, sessions storage.SessionStore, threads ThreadManager, driver TurnDriver,
	slots slotmap.Store, guard *tokens.Guard, metricsHandler http.Handler, logger *slog.Logger) *Server {

	if cfg.RequestTimeout <= 0 {
		// Must outlive the run-polling ceiling.
		cfg.RequestTimeout = 200 * time.Second
	}

	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		threads:  threads,
		driver:   driver,
		slots:    slots,
		guard:    guard,
		logger:   logger,
		now:      time.Now,
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(CORSMiddleware(cfg.AllowedOrigins))
	r.Use(TimeoutMiddleware(cfg.RequestTimeout))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "leadqual")
	})

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/session", s.handleCreateSession)
		r.Delete("/session/{sessionID}", s.handleDeleteSession)
		r.Post("/session/{sessionID}/reset", s.handleResetSession)
		r.Post("/chat", s.handleChat)
		r.Get("/history/{sessionID}", s.handleHistory)
	})

	s.Router = r
	return s
}

// Start blocks serving HTTP until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Port),
		Handler: s.Router,
	}
	s.logger.Info("starting server", slog.Int("port", s.cfg.Port))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
