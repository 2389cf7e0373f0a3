package speech

import (
	"io"
)

// ASRRequest asks a transcriber for the text of one recording.
type ASRRequest struct {
	SessionID  string    `json:"sessionId"`
	AudioData  io.Reader `json:"-"`
	Format     string    `json:"format"`   // wav, webm, mp3, pcm
	SampleRate int       `json:"sampleRate,omitempty"`
	Language   string    `json:"language"` // en-US, en-GB, ...
}

// TTSRequest asks a synthesizer to speak a piece of text.
type TTSRequest struct {
	SessionID string  `json:"sessionId"`
	Text      string  `json:"text"`
	Voice     string  `json:"voice"`
	Speed     float32 `json:"speed,omitempty"`  // 0.5-2.0
	Volume    float32 `json:"volume,omitempty"` // 0.0-1.0
	Format    string  `json:"format,omitempty"`
	Language  string  `json:"language,omitempty"`
}

// Clip is one recorded user utterance.
// PCM clips carry raw 16-bit little-endian mono samples at SampleRate.
type Clip struct {
	Data       []byte
	Format     string
	SampleRate int
}

// Empty reports whether the clip holds no audio.
func (c Clip) Empty() bool {
	return len(c.Data) == 0
}
