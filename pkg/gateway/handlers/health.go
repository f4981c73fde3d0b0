package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/gateway/lifecycle"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/gateway/relay/sessions"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Model     string
	Lifecycle *lifecycle.Lifecycle
	Sessions  *sessions.Tracker
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK          bool   `json:"ok"`
		Draining    bool   `json:"draining"`
		Model       string `json:"model"`
		Connections int    `json:"connections"`
	}

	draining := h.Lifecycle.IsDraining()
	status := http.StatusOK
	if draining {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:          !draining,
		Draining:    draining,
		Model:       h.Model,
		Connections: h.Sessions.Count(),
	})
}
