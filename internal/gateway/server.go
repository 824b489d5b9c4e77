// Package gateway exposes towns over HTTP: the websocket session endpoint and
// the REST town administration API.
package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/covey/internal/config"
	"github.com/cory-johannsen/covey/internal/town"
)

const (
	// SessionHeader carries a player's session token on REST calls.
	SessionHeader = "X-Session-Token"

	shutdownTimeout = 5 * time.Second
)

// HealthFunc reports whether a dependency is usable.
type HealthFunc func(ctx context.Context) error

// Options configures a Server.
type Options struct {
	HTTP config.HTTPConfig
	// AnyOrigin accepts websocket upgrades from every origin.
	AnyOrigin bool
	// Health, when set, backs /healthz.
	Health HealthFunc
}

// Server serves the websocket and REST endpoints.
type Server struct {
	opts     Options
	towns    *town.Manager
	logger   *zap.Logger
	upgrader websocket.Upgrader
	srv      *http.Server
}

// New creates a Server.
//
// Precondition: towns and logger must be non-nil.
func New(opts Options, towns *town.Manager, logger *zap.Logger) *Server {
	if opts.HTTP.WriteTimeout <= 0 {
		opts.HTTP.WriteTimeout = 10 * time.Second
	}
	s := &Server{opts: opts, towns: towns, logger: logger}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.srv = &http.Server{
		Addr:              opts.HTTP.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: opts.HTTP.ReadTimeout,
	}
	return s
}

// Handler returns the routed endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.healthz)
	mux.HandleFunc("GET /ws", s.serveWS)
	mux.HandleFunc("GET /towns", s.listTowns)
	mux.HandleFunc("POST /towns", s.createTown)
	mux.HandleFunc("PATCH /towns/{id}", s.updateTown)
	mux.HandleFunc("DELETE /towns/{id}", s.deleteTown)
	mux.HandleFunc("POST /towns/{id}/conversationAreas", s.createConversation)
	mux.HandleFunc("GET /towns/{id}/chat", s.chatHistory)
	mux.HandleFunc("GET /towns/{id}/leaderboard", s.leaderboards)
	return mux
}

// Start listens until Stop is called.
//
// Postcondition: Returns nil after Stop, or the listener error.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("gateway listening", zap.String("addr", ln.Addr().String()))
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops accepting requests and waits for in-flight REST calls.
// Websocket sessions end when their towns close.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Warn("gateway shutdown", zap.Error(err))
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if s.opts.AnyOrigin {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(s.opts.HTTP.AllowedOrigins, origin)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.opts.Health != nil {
		if err := s.opts.Health(r.Context()); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok"))
}
