package session

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	speechhandler "github.com/zhouzirui/rehearsal/backend/internal/handler/speech"
	"github.com/zhouzirui/rehearsal/backend/internal/model/session"
	"github.com/zhouzirui/rehearsal/backend/internal/model/speech"
	"github.com/zhouzirui/rehearsal/backend/internal/service/exchange"
	"github.com/zhouzirui/rehearsal/backend/internal/service/feedback"
	sessionsvc "github.com/zhouzirui/rehearsal/backend/internal/service/session"
	"github.com/zhouzirui/rehearsal/backend/pkg/utils"
)

// Exchanger runs conversational turns.
type Exchanger interface {
	RunTurn(ctx context.Context, sessionID string, clip speech.Clip, opts ...exchange.TurnOption) (*exchange.Result, error)
	RunText(ctx context.Context, sessionID, text string, opts ...exchange.TurnOption) (*exchange.Result, error)
}

// Coach produces end-of-session feedback.
type Coach interface {
	Generate(ctx context.Context, sessionID string) (string, error)
}

// Handler serves practice sessions and their turns.
type Handler struct {
	store     sessionsvc.Store
	exchanges Exchanger
	coach     Coach
}

// New creates a session handler.
func New(store sessionsvc.Store, exchanges Exchanger, coach Coach) *Handler {
	return &Handler{store: store, exchanges: exchanges, coach: coach}
}

// RegisterRoutes mounts the session routes. The live socket is mounted separately.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Get("/sessions/{sessionID}", h.handleGetSession)
	r.Get("/sessions/{sessionID}/transcript", h.handleExportTranscript)
	r.Post("/sessions/{sessionID}/exchanges", h.handleTextTurn)
	r.Post("/sessions/{sessionID}/turns", h.handleAudioTurn)
	r.Post("/sessions/{sessionID}/feedback", h.handleFeedback)
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var scenario session.Scenario
	if err := json.NewDecoder(r.Body).Decode(&scenario); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.store.Create(r.Context(), scenario)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	log.Printf("[session] created session=%s type=%q", created.ID, created.Type)
	utils.RespondJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.store.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleExportTranscript(w http.ResponseWriter, r *http.Request) {
	sess, err := h.store.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	transcript, err := sessionsvc.Export(sess, r.URL.Query().Get("format"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondAttachment(w, transcript.Filename, transcript.ContentType, transcript.Body)
}

func (h *Handler) handleTextTurn(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text  string `json:"text"`
		Voice string `json:"voice"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.exchanges.RunText(r.Context(), chi.URLParam(r, "sessionID"), payload.Text, exchange.WithVoice(payload.Voice))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

// handleAudioTurn runs the full pipeline on one uploaded recording. A recording without
// recognisable speech is not an error: the turn is dropped and nothing is recorded.
func (h *Handler) handleAudioTurn(w http.ResponseWriter, r *http.Request) {
	data, filename, err := speechhandler.ReadAudioUpload(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	clip := speech.Clip{Data: data, Format: speechhandler.InferAudioFormat(filename)}
	if rate, err := strconv.Atoi(r.FormValue("sampleRate")); err == nil && rate > 0 {
		clip.SampleRate = rate
	}

	result, err := h.exchanges.RunTurn(r.Context(), chi.URLParam(r, "sessionID"), clip, exchange.WithVoice(r.FormValue("voice")))
	if errors.Is(err, exchange.ErrNoSpeech) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{"noSpeech": true, "segments": []exchange.Segment{}})
		return
	}
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleFeedback(w http.ResponseWriter, r *http.Request) {
	text, err := h.coach.Generate(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"feedback": text})
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sessionsvc.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrInvalidScenario),
		errors.Is(err, sessionsvc.ErrUnsupportedFormat),
		errors.Is(err, exchange.ErrEmptyText),
		errors.Is(err, feedback.ErrEmptyTranscript):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, exchange.ErrGeneration), errors.Is(err, feedback.ErrGeneration):
		log.Printf("[session] generation failed: %v", err)
		utils.RespondError(w, http.StatusBadGateway, "the AI could not reply, please try again")
	case errors.Is(err, context.Canceled):
		log.Printf("[session] request cancelled: %v", err)
		utils.RespondError(w, http.StatusRequestTimeout, "request cancelled")
	default:
		log.Printf("[session] internal error: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
