package api

import (
	"net/http"
)

// HandleSessionWebSocket upgrades to the realtime session protocol.
func (h *Handler) HandleSessionWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsHandler.HandleConnection(w, r)
}
