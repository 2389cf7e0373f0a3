package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/zhouzirui/rehearsal/backend/internal/audio/wav"
	"github.com/zhouzirui/rehearsal/backend/internal/config"
	"github.com/zhouzirui/rehearsal/backend/internal/model/speech"
)

// WhisperTranscriber uses the OpenAI audio transcription endpoint.
type WhisperTranscriber struct {
	client   oai.Client
	model    string
	language string
}

var _ Transcriber = (*WhisperTranscriber)(nil)

// NewWhisperTranscriber builds a transcriber from cfg.
func NewWhisperTranscriber(cfg config.WhisperConfig, timeout time.Duration) (*WhisperTranscriber, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("whisper: %w: missing api key", ErrProviderUnavailable)
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: timeout}))
	}

	model := cfg.Model
	if model == "" {
		model = string(oai.AudioModelWhisper1)
	}
	return &WhisperTranscriber{
		client:   oai.NewClient(opts...),
		model:    model,
		language: cfg.Language,
	}, nil
}

// Transcribe uploads the recording as a file. Raw PCM is wrapped in a WAV container first.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error) {
	data, err := io.ReadAll(req.AudioData)
	if err != nil {
		return nil, fmt.Errorf("whisper: read audio: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("whisper: %w", ErrEmptyAudio)
	}

	format := strings.ToLower(req.Format)
	if format == "" || format == "pcm" {
		rate := req.SampleRate
		if rate <= 0 {
			rate = 16000
		}
		data = wav.Encode(data, rate)
		format = "wav"
	}

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(data), "audio."+format, audioContentType(format)),
		Model: oai.AudioModel(w.model),
	}
	if lang := languageCode(firstNonEmpty(req.Language, w.language)); lang != "" {
		params.Language = oai.String(lang)
	}

	started := time.Now()
	resp, err := w.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("whisper: transcription: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	return &speech.ASRResponse{
		SessionID:  req.SessionID,
		Text:       text,
		Confidence: estimateConfidence(text),
		Duration:   time.Since(started).Milliseconds(),
		CreatedAt:  time.Now(),
	}, nil
}

// languageCode reduces a locale such as en-US to the ISO-639-1 code Whisper expects.
func languageCode(locale string) string {
	locale = strings.TrimSpace(locale)
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		locale = locale[:i]
	}
	return strings.ToLower(locale)
}

func audioContentType(format string) string {
	switch format {
	case "webm":
		return "audio/webm"
	case "mp3":
		return "audio/mpeg"
	case "ogg":
		return "audio/ogg"
	case "m4a":
		return "audio/mp4"
	default:
		return "audio/wav"
	}
}
