// Package server assembles the relay server's routes and middleware.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/core/chat"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/gateway/config"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/gateway/handlers"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/gateway/lifecycle"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/gateway/mw"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/gateway/ratelimit"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/gateway/relay/sessions"
)

type Dependencies struct {
	Provider  chat.Provider
	Logger    *slog.Logger
	Lifecycle *lifecycle.Lifecycle
	Sessions  *sessions.Tracker
	Limiter   *ratelimit.Limiter
}

type Server struct {
	cfg    config.Config
	deps   Dependencies
	logger *slog.Logger
	mux    *http.ServeMux
}

func New(cfg config.Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Lifecycle == nil {
		deps.Lifecycle = &lifecycle.Lifecycle{}
	}
	if deps.Sessions == nil {
		deps.Sessions = sessions.NewTracker()
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.New(ratelimit.Config{MaxConnectionsPerClient: cfg.LimitConnectionsPerClient})
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger,
		mux:    http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.handle("/healthz", handlers.HealthHandler{})
	s.handle("/readyz", handlers.ReadyHandler{
		Model:     s.cfg.GeminiModel,
		Lifecycle: s.deps.Lifecycle,
		Sessions:  s.deps.Sessions,
	})
	s.handle("/metrics", promhttp.Handler())

	wsPath := s.cfg.WSPath
	if wsPath == "" {
		wsPath = "/ws"
	}
	s.handle(wsPath, handlers.RelayHandler{
		Config:    s.cfg,
		Provider:  s.deps.Provider,
		Logger:    s.logger,
		Lifecycle: s.deps.Lifecycle,
		Sessions:  s.deps.Sessions,
		Limiter:   s.deps.Limiter,
	})

	s.mux.Handle("/", mw.Instrument("not_found", handlers.NotFoundHandler{}))
}

func (s *Server) handle(route string, h http.Handler) {
	s.mux.Handle(route, mw.Instrument(route, h))
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg.AllowedOrigins, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining makes the relay route and /readyz refuse new work.
func (s *Server) SetDraining(draining bool) {
	s.deps.Lifecycle.SetDraining(draining)
}

// CloseSessions sends a going-away close frame to every open relay
// connection and reports how many were sent.
func (s *Server) CloseSessions() int {
	n := s.deps.Sessions.CloseAll(websocket.CloseGoingAway, "server shutting down")
	if n > 0 {
		s.logger.Info("closing relay connections", "count", n)
	}
	return n
}

// WaitSessions blocks until every relay connection has ended or ctx is done.
func (s *Server) WaitSessions(ctx context.Context) bool {
	return s.deps.Sessions.Wait(ctx)
}

// CancelSessions drops the remaining relay connections without a handshake.
func (s *Server) CancelSessions() int {
	n := s.deps.Sessions.CancelAll()
	if n > 0 {
		s.logger.Warn("canceling relay connections", "count", n)
	}
	return n
}
