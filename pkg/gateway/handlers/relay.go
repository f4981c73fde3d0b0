package handlers

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/core"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/core/chat"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/gateway/config"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/gateway/lifecycle"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/gateway/metrics"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/gateway/mw"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/gateway/ratelimit"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/gateway/relay/session"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/gateway/relay/sessions"
)

// RelayHandler upgrades the relay endpoint and runs one ChannelSession per
// connection.
type RelayHandler struct {
	Config    config.Config
	Provider  chat.Provider
	Logger    *slog.Logger
	Lifecycle *lifecycle.Lifecycle
	Sessions  *sessions.Tracker
	Limiter   *ratelimit.Limiter
}

func (h RelayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodGet {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrInvalidRequest, Message: "method not allowed", Code: "method_not_allowed"}, http.StatusMethodNotAllowed)
		return
	}
	if h.Lifecycle.IsDraining() {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrOverloaded, Message: "server is draining", Code: "draining"}, http.StatusServiceUnavailable)
		return
	}
	if !h.originAllowed(r) {
		writeCoreErrorJSON(w, reqID, core.NewPermissionError("origin is not allowed"), http.StatusForbidden)
		return
	}

	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	decision := h.Limiter.AcquireConnection(clientKey(r), time.Now())
	if !decision.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfter))
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrOverloaded, Message: "too many connections from this client", Code: core.CodeRateLimited}, http.StatusTooManyRequests)
		return
	}
	defer decision.Permit.Release()

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "request_id", reqID, "error", err)
		return
	}
	defer conn.Close()

	connID := "conn_" + uuid.NewString()
	logger = logger.With("conn_id", connID, "request_id", reqID)

	s, err := session.New(session.Dependencies{
		Conn:      conn,
		Logger:    logger,
		Provider:  h.Provider,
		SessionID: connID,
		Config: session.Config{
			MaxMessageBytes:   h.Config.WSMaxMessageBytes,
			PingInterval:      h.Config.WSPingInterval,
			WriteTimeout:      h.Config.WSWriteTimeout,
			ReadTimeout:       h.Config.WSReadTimeout,
			OutboundQueueSize: h.Config.WSOutboundQueueSize,
			MessagesPerSecond: h.Config.LimitMessagesPerSecond,
			MessageBurst:      h.Config.LimitMessageBurst,
			Chat: chat.Config{
				SystemInstruction: h.Config.SystemInstruction,
				Timeout:           h.Config.ProviderTimeout,
				Logger:            logger,
			},
		},
	})
	if err != nil {
		logger.Error("failed to create relay session", "error", err)
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "internal error"))
		return
	}

	unregister := h.Sessions.Register(connID, sessions.Handle{
		Cancel: s.Cancel,
		Close:  s.Close,
	})
	defer unregister()

	metrics.ActiveConnections.Inc()
	defer metrics.ActiveConnections.Dec()

	logger.Info("relay connection opened", "remote_addr", r.RemoteAddr)
	if err := s.Run(); err != nil {
		logger.Warn("relay connection ended with error", "error", err)
		return
	}
	logger.Info("relay connection closed")
}

// originAllowed accepts non-browser clients, which send no Origin header, and
// browser origins on the allowlist.
func (h RelayHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	_, ok := h.Config.AllowedOrigins[origin]
	return ok
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
