package speech

import (
	"context"
	"errors"

	"github.com/zhouzirui/rehearsal/backend/internal/model/speech"
)

var (
	// ErrProviderUnavailable is returned when a provider is not configured.
	ErrProviderUnavailable = errors.New("speech provider unavailable")
	// ErrEmptyAudio is returned when there is no audio to send or none came back.
	ErrEmptyAudio = errors.New("empty audio")
)

// Transcriber converts recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error)
}

// Synthesizer converts text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error)
}
