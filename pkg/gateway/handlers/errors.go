package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/core"
)

type errorEnvelope struct {
	Error     *core.Error `json:"error"`
	RequestID string      `json:"request_id,omitempty"`
}

func writeCoreErrorJSON(w http.ResponseWriter, reqID string, coreErr *core.Error, status int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: coreErr, RequestID: reqID})
}
