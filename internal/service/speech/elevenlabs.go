package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zhouzirui/rehearsal/backend/internal/config"
	"github.com/zhouzirui/rehearsal/backend/internal/model/speech"
)

const (
	defaultElevenLabsBaseURL = "https://api.elevenlabs.io"
	defaultElevenLabsModel   = "eleven_monolingual_v1"
)

// ElevenLabsSynthesizer calls the ElevenLabs text-to-speech REST endpoint.
type ElevenLabsSynthesizer struct {
	apiKey     string
	baseURL    string
	model      string
	voiceID    string
	httpClient *http.Client
}

var _ Synthesizer = (*ElevenLabsSynthesizer)(nil)

// ElevenLabsOption customises an ElevenLabsSynthesizer.
type ElevenLabsOption func(*ElevenLabsSynthesizer)

// WithElevenLabsHTTPClient replaces the HTTP client.
func WithElevenLabsHTTPClient(c *http.Client) ElevenLabsOption {
	return func(s *ElevenLabsSynthesizer) { s.httpClient = c }
}

// NewElevenLabsSynthesizer builds a synthesizer from cfg.
func NewElevenLabsSynthesizer(cfg config.ElevenLabsConfig, timeout time.Duration, opts ...ElevenLabsOption) (*ElevenLabsSynthesizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("elevenlabs: %w: missing api key", ErrProviderUnavailable)
	}

	s := &ElevenLabsSynthesizer{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(firstNonEmpty(cfg.BaseURL, defaultElevenLabsBaseURL), "/"),
		model:      firstNonEmpty(cfg.ModelID, defaultElevenLabsModel),
		voiceID:    cfg.VoiceID,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

type elevenLabsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// Synthesize returns MPEG audio for req.Text in req.Voice, or the configured default voice.
func (s *ElevenLabsSynthesizer) Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, fmt.Errorf("elevenlabs: text is empty")
	}
	voice := firstNonEmpty(req.Voice, s.voiceID)
	if voice == "" {
		return nil, fmt.Errorf("elevenlabs: no voice id")
	}

	body, err := json.Marshal(elevenLabsRequest{Text: text, ModelID: s.model})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: marshal request: %w", err)
	}

	endpoint := s.baseURL + "/v1/text-to-speech/" + url.PathEscape(voice)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: build request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", s.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("elevenlabs: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("elevenlabs: %w", ErrEmptyAudio)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return &speech.TTSResponse{
		SessionID:   req.SessionID,
		AudioData:   audio,
		Format:      "mp3",
		ContentType: contentType,
		RequestID:   resp.Header.Get("request-id"),
		CreatedAt:   time.Now(),
	}, nil
}
