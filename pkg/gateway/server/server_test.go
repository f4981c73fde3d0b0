package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/core/chat"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/gateway/config"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/gateway/lifecycle"
)

type replyProvider struct{}

func (replyProvider) Name() string { return "reply" }

func (replyProvider) NewSession(context.Context, string) (chat.Handle, error) {
	return replyHandle{}, nil
}

type replyHandle struct{}

func (replyHandle) Send(context.Context, string) (string, error) {
	return "ok", nil
}

func testConfig() config.Config {
	return config.Config{
		GeminiModel:         "gemini-2.0-flash",
		AllowedOrigins:      map[string]struct{}{"http://localhost:5173": {}},
		WSPath:              "/ws",
		WSPingInterval:      time.Hour,
		WSWriteTimeout:      time.Second,
		WSMaxMessageBytes:   1024,
		WSOutboundQueueSize: 4,
		ProviderTimeout:     time.Second,
	}
}

func newTestServer(lc *lifecycle.Lifecycle) *Server {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return New(testConfig(), Dependencies{Provider: replyProvider{}, Logger: logger, Lifecycle: lc})
}

func TestServer_UnknownRoute_ReturnsJSON404(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestServer(nil).Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/does-not-exist", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%q", ct)
	}
	if !strings.Contains(rr.Body.String(), `"type":"not_found_error"`) {
		t.Fatalf("unexpected body: %q", rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID")
	}
}

func TestServer_MetricsRoute(t *testing.T) {
	h := newTestServer(nil).Handler()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "revolt_voice_http_requests_total") {
		t.Fatalf("expected request counter in metrics output")
	}
}

func TestServer_ReadyzReflectsDraining(t *testing.T) {
	lc := &lifecycle.Lifecycle{}
	h := newTestServer(lc).Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}

	lc.SetDraining(true)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestServer_WebsocketThroughMiddleware(t *testing.T) {
	srv := httptest.NewServer(newTestServer(nil).Handler())
	defer srv.Close()

	header := http.Header{}
	header.Set("Origin", "http://localhost:5173")
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"start_chat"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != `{"type":"chat_started"}` {
		t.Fatalf("got %s", data)
	}
}

func TestServer_DrainClosesSessions(t *testing.T) {
	s := newTestServer(nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.deps.Sessions.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	s.SetDraining(true)
	if n := s.CloseSessions(); n != 1 {
		t.Fatalf("CloseSessions()=%d, want 1", n)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("err=%v, want going-away close", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if !s.WaitSessions(ctx) {
		t.Fatalf("sessions did not finish")
	}
	if n := s.CancelSessions(); n != 0 {
		t.Fatalf("CancelSessions()=%d after drain", n)
	}

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d while draining", rr.Code)
	}
}
