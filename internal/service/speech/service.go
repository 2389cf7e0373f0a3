package speech

import (
	"bytes"
	"context"
	"fmt"
	"log"

	"github.com/zhouzirui/rehearsal/backend/internal/config"
	"github.com/zhouzirui/rehearsal/backend/internal/model/speech"
)

// Service pairs the configured transcriber and synthesizer.
type Service struct {
	stt       Transcriber
	tts       Synthesizer
	sttName   string
	ttsName   string
	language  string
	sttFailed error
	ttsFailed error
}

// NewService wraps explicit providers.
func NewService(stt Transcriber, tts Synthesizer) *Service {
	return &Service{stt: stt, tts: tts, sttName: "custom", ttsName: "custom"}
}

// NewServiceFromConfig selects providers by cfg.STTProvider and cfg.TTSProvider.
// A provider that cannot be built is reported by every call instead of failing startup.
func NewServiceFromConfig(cfg config.SpeechConfig) *Service {
	s := &Service{sttName: cfg.STTProvider, ttsName: cfg.TTSProvider, language: cfg.Whisper.Language}

	switch cfg.STTProvider {
	case config.ProviderVolcengine:
		s.stt = NewVolcengineASRClient(cfg.Volcengine)
		s.language = cfg.Volcengine.ASRLanguage
	default:
		stt, err := NewWhisperTranscriber(cfg.Whisper, cfg.Timeout)
		if err != nil {
			log.Printf("[speech] transcriber disabled: %v", err)
			s.sttFailed = err
		} else {
			s.stt = stt
		}
	}

	switch cfg.TTSProvider {
	case config.ProviderVolcengine:
		s.tts = NewVolcengineTTSClient(cfg.Volcengine)
	default:
		tts, err := NewElevenLabsSynthesizer(cfg.ElevenLabs, cfg.Timeout)
		if err != nil {
			log.Printf("[speech] synthesizer disabled: %v", err)
			s.ttsFailed = err
		} else {
			s.tts = tts
		}
	}
	return s
}

// STTProvider names the active transcriber.
func (s *Service) STTProvider() string { return s.sttName }

// TTSProvider names the active synthesizer.
func (s *Service) TTSProvider() string { return s.ttsName }

// Transcribe implements Transcriber.
func (s *Service) Transcribe(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error) {
	if s.stt == nil {
		return nil, s.unavailable(s.sttFailed, "transcriber")
	}
	if req.Language == "" {
		req.Language = s.language
	}
	return s.stt.Transcribe(ctx, req)
}

// Synthesize implements Synthesizer.
func (s *Service) Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	if s.tts == nil {
		return nil, s.unavailable(s.ttsFailed, "synthesizer")
	}
	return s.tts.Synthesize(ctx, req)
}

// TranscribeClip transcribes one captured clip.
func (s *Service) TranscribeClip(ctx context.Context, sessionID string, clip speech.Clip) (*speech.ASRResponse, error) {
	return s.Transcribe(ctx, &speech.ASRRequest{
		SessionID:  sessionID,
		AudioData:  bytes.NewReader(clip.Data),
		Format:     clip.Format,
		SampleRate: clip.SampleRate,
	})
}

// TranscribeBuffer transcribes an in-memory recording.
func (s *Service) TranscribeBuffer(ctx context.Context, sessionID string, audioData []byte, format, language string) (*speech.ASRResponse, error) {
	return s.Transcribe(ctx, &speech.ASRRequest{
		SessionID: sessionID,
		AudioData: bytes.NewReader(audioData),
		Format:    format,
		Language:  language,
	})
}

// SynthesizeToBuffer speaks text in voice and returns the encoded audio.
func (s *Service) SynthesizeToBuffer(ctx context.Context, sessionID, text, voice, language string) (*speech.TTSResponse, error) {
	return s.Synthesize(ctx, &speech.TTSRequest{
		SessionID: sessionID,
		Text:      text,
		Voice:     voice,
		Language:  language,
	})
}

func (s *Service) unavailable(cause error, what string) error {
	if cause != nil {
		return cause
	}
	return fmt.Errorf("%s: %w", what, ErrProviderUnavailable)
}
