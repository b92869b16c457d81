package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/saqiah/waterbot/internal/services/pause"
)

// PauseHandler exposes the conversation-pause endpoints used by the human
// agent tooling.
type PauseHandler struct {
	registry *pause.Registry
}

func NewPauseHandler(registry *pause.Registry) *PauseHandler {
	return &PauseHandler{registry: registry}
}

type pauseRequest struct {
	Phone    string  `json:"phone"`
	Agent    string  `json:"agent"`
	TTLHours float64 `json:"ttl_hours"`
}

// Create pauses the conversation in the path. The conversation id is the
// user's phone number; an omitted phone field falls back to it.
func (h *PauseHandler) Create(w http.ResponseWriter, r *http.Request) {
	conversationID := mux.Vars(r)["id"]

	var req pauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Phone == "" {
		req.Phone = conversationID
	}

	ttl := time.Duration(req.TTLHours * float64(time.Hour))
	created, err := h.registry.CreatePause(r.Context(), conversationID, req.Phone, req.Agent, ttl)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create pause")
		return
	}
	respondJSON(w, http.StatusCreated, apiResponse{Status: "success", Data: created})
}

// Get returns the active pause, or paused=false when none is in force.
func (h *PauseHandler) Get(w http.ResponseWriter, r *http.Request) {
	conversationID := mux.Vars(r)["id"]

	info, err := h.registry.Info(r.Context(), conversationID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to look up pause")
		return
	}
	if info == nil || !info.InForce(time.Now()) {
		respondData(w, map[string]bool{"paused": false})
		return
	}
	respondData(w, map[string]interface{}{"paused": true, "pause": info})
}
