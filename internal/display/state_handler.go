package display

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/openmat/courtcast/internal/bracket"
)

// StateHandler serves the re-seed endpoint clients poll on (re)connect:
// GET /state/{tenant} returns the latest snapshot with staleness info.
type StateHandler struct {
	service *Service
}

func NewStateHandler(service *Service) *StateHandler {
	return &StateHandler{service: service}
}

type stateResponse struct {
	Snapshot   *bracket.TournamentSnapshot `json:"snapshot"`
	Stale      bool                        `json:"stale"`
	AgeSeconds int                         `json:"age_seconds"`
}

func (h *StateHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tenantID := strings.TrimPrefix(r.URL.Path, "/state/")
	if tenantID == "" || strings.Contains(tenantID, "/") {
		http.Error(w, "tenant is required", http.StatusBadRequest)
		return
	}

	res, err := h.service.RequestLatest(r.Context(), tenantID)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("load latest snapshot")
		http.Error(w, "failed to load state", http.StatusInternalServerError)
		return
	}
	if res.Snapshot == nil {
		http.Error(w, "no snapshot for tenant", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	resp := stateResponse{
		Snapshot:   res.Snapshot,
		Stale:      res.Stale,
		AgeSeconds: int(res.Age.Seconds()),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("encode state response")
	}
}

// RegisterRoutes wires the state routes onto the mux.
func (h *StateHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/state/", h.HandleGetState)
}
