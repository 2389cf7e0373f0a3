package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/rehearsal/backend/internal/model/speech"
	"github.com/zhouzirui/rehearsal/backend/internal/model/voice"
	speechsvc "github.com/zhouzirui/rehearsal/backend/internal/service/speech"
	"github.com/zhouzirui/rehearsal/backend/pkg/utils"
)

const maxUploadBytes = 32 << 20

// SpeechService is the subset of the speech service the proxy endpoints need.
type SpeechService interface {
	Transcribe(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error)
	Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error)
}

// Handler exposes the STT and TTS proxies.
type Handler struct {
	speechSvc SpeechService
	voices    voice.Store
}

// New creates a speech handler. voices may be nil.
func New(speechSvc SpeechService, voices voice.Store) *Handler {
	return &Handler{speechSvc: speechSvc, voices: voices}
}

// RegisterRoutes mounts the speech routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/speech", func(sr chi.Router) {
		sr.Post("/transcribe", h.handleTranscribe)
		sr.Post("/synthesize", h.handleSynthesize)
	})
}

func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	data, filename, err := ReadAudioUpload(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := &speech.ASRRequest{
		SessionID: r.FormValue("sessionId"),
		AudioData: bytes.NewReader(data),
		Format:    InferAudioFormat(filename),
		Language:  r.FormValue("language"),
	}

	resp, err := h.speechSvc.Transcribe(r.Context(), req)
	if err != nil {
		log.Printf("[speech] transcription error: %v", err)
		utils.RespondError(w, statusFor(err), "speech recognition failed")
		return
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req speech.TTSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	if req.Voice == "" {
		req.Voice = voice.DefaultVoiceID
	}
	if h.voices != nil && req.Language == "" {
		if opt, ok := h.voices.FindByID(req.Voice); ok {
			req.Language = opt.LanguageCode
		}
	}

	resp, err := h.speechSvc.Synthesize(r.Context(), &req)
	if err != nil {
		log.Printf("[speech] synthesis error: %v", err)
		utils.RespondError(w, statusFor(err), "speech synthesis failed")
		return
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.AudioData)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp.AudioData); err != nil {
		log.Printf("[speech] failed to write audio response: %v", err)
	}
}

// ReadAudioUpload reads the multipart "audio" field.
func ReadAudioUpload(r *http.Request) ([]byte, string, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, "", errors.New("failed to parse multipart form")
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		return nil, "", errors.New("audio file is required")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", errors.New("failed to read audio file")
	}
	if len(data) == 0 {
		return nil, "", errors.New("audio file is empty")
	}
	return data, header.Filename, nil
}

// InferAudioFormat maps an upload's extension to a provider format name.
func InferAudioFormat(filename string) string {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".mp3", ".webm", ".m4a", ".ogg", ".pcm":
		return strings.TrimPrefix(ext, ".")
	default:
		return "wav"
	}
}

func statusFor(err error) int {
	if errors.Is(err, speechsvc.ErrProviderUnavailable) {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}
