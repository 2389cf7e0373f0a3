package voice

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/rehearsal/backend/internal/model/voice"
	"github.com/zhouzirui/rehearsal/backend/pkg/utils"
)

// Handler serves the voice/accent catalog.
type Handler struct {
	voices voice.Store
}

// New creates a voice handler.
func New(voices voice.Store) *Handler {
	return &Handler{voices: voices}
}

// RegisterRoutes mounts the voice routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/voices", h.handleListVoices)
	r.Post("/voices/match", h.handleMatchVoice)
}

func (h *Handler) handleListVoices(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.voices.List())
}

// handleMatchVoice resolves a free-text accent such as "uk male" to a voice.
func (h *Handler) handleMatchVoice(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AccentQuery string `json:"accentQuery"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.AccentQuery) == "" {
		utils.RespondError(w, http.StatusBadRequest, "accentQuery is required")
		return
	}

	match, ok := h.voices.Match(payload.AccentQuery)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "no matching voice")
		return
	}
	utils.RespondJSON(w, http.StatusOK, match)
}
