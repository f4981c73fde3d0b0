package handlers

import (
	"net/http"

	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/core"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/gateway/mw"
)

type NotFoundHandler struct{}

func (NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	writeCoreErrorJSON(w, reqID, core.NewNotFoundError("route not found"), http.StatusNotFound)
}
