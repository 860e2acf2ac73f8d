package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RegisterRoutes mounts the websocket endpoint and connection stats.
func (h *Hub) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/sessions", h.HandleSession)
	mux.HandleFunc("/ws/stats", h.HandleStats)
}

// HandleSession upgrades a request carrying ?session_id= to a websocket
func (h *Hub) HandleSession(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("session_id")
	if raw == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	sessionID, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "invalid session_id format", http.StatusBadRequest)
		return
	}

	// Upgrade writes its own error response on failure.
	if err := h.Upgrade(w, r, sessionID); err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to upgrade websocket connection")
	}
}

// HandleStats reports open connections per session
func (h *Hub) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats := h.Stats()
	total := 0
	for _, n := range stats {
		total += n
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"total_connections":   total,
		"session_connections": stats,
	})
}
