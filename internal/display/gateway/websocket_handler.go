package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler exposes the /ws upgrade endpoint for display and
// control clients.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{connectionManager: cm}
}

// HandleConnection upgrades a client connection. tenant is optional:
// clients from before multi-tenancy connect without one and become
// legacy members of every broadcast.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant")

	kind := ClientKind(r.URL.Query().Get("kind"))
	switch kind {
	case KindDisplay, KindControl:
	case "":
		kind = KindDisplay
	default:
		http.Error(w, "unknown client kind", http.StatusBadRequest)
		return
	}

	if err := h.connectionManager.UpgradeConnection(w, r, tenantID, kind); err != nil {
		log.Error().
			Err(err).
			Str("tenant_id", tenantID).
			Msg("websocket upgrade failed")
		return
	}
}

// HandleStats reports connection counts.
func (h *WebSocketHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.Stats()); err != nil {
		log.Error().Err(err).Msg("encode stats response")
	}
}

// RegisterRoutes wires the WebSocket routes onto the mux.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleConnection)
	mux.HandleFunc("/ws/stats", h.HandleStats)
}
