package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/blackmichael/discovery/internal/auth"
	"github.com/blackmichael/discovery/internal/config"
	"github.com/blackmichael/discovery/internal/domain"
	"github.com/blackmichael/discovery/internal/realtime"
	"github.com/blackmichael/discovery/internal/session"
)

// Services are the collaborators the HTTP API dispatches to.
type Services struct {
	Sessions *session.Manager
	Rooms    domain.RoomRepository

	// Messages should publish inserts to the hub behind Chat.
	Messages domain.MessageRepository
	Chat     *realtime.Handler
	Verifier *auth.Verifier
}

// Server is the HTTP server for the discovery and chat API.
type Server struct {
	cfg        *config.Config
	svc        Services
	limiter    *viewerLimiter
	logger     *slog.Logger
	handler    http.Handler
	httpServer *http.Server
}

// NewServer creates a new HTTP server over svc.
func NewServer(cfg *config.Config, svc Services, logger *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		svc:     svc,
		limiter: newViewerLimiter(cfg.RateLimit, cfg.RateBurst),
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.Handle("POST /v1/session", s.authed(s.handleStartSession))
	mux.Handle("DELETE /v1/session", s.authed(s.handleEndSession))

	mux.Handle("GET /v1/discovery/current", s.authed(s.handleCurrent))
	mux.Handle("POST /v1/discovery/reload", s.authed(s.handleReload))
	mux.Handle("POST /v1/discovery/visibility", s.authed(s.handleVisibility))
	mux.Handle("POST /v1/discovery/{listingID}/like", s.authed(s.limited(s.handleLike)))
	mux.Handle("POST /v1/discovery/{listingID}/dismiss", s.authed(s.limited(s.handleDismiss)))

	mux.Handle("GET /v1/likes", s.authed(s.handleListLikes))
	mux.Handle("DELETE /v1/likes/{listingID}", s.authed(s.limited(s.handleUnlike)))

	mux.Handle("GET /v1/rooms", s.authed(s.handleListRooms))
	mux.Handle("GET /v1/rooms/{roomID}/messages", s.authed(s.handleListMessages))
	mux.Handle("POST /v1/rooms/{roomID}/messages", s.authed(s.limited(s.handleSendMessage)))
	mux.Handle("GET /v1/rooms/{roomID}/ws", s.authed(s.handleRoomSocket))

	s.handler = withLogging(logger, mux)
	s.httpServer = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.svc.Sessions.Len(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack hands the connection to the websocket upgrader.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
