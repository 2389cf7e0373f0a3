// Package exchange runs one conversational turn: transcribe, prompt, generate,
// split cues, synthesize, record, and produce an ordered playback plan.
package exchange

import (
	"errors"

	"github.com/zhouzirui/rehearsal/backend/internal/cue"
	"github.com/zhouzirui/rehearsal/backend/internal/model/session"
)

var (
	// ErrNoSpeech means transcription produced no text. Nothing is recorded.
	ErrNoSpeech = errors.New("no speech recognised")
	// ErrGeneration means the language model could not produce a reply.
	ErrGeneration = errors.New("reply generation failed")
	// ErrEmptyText is returned by RunText for blank input.
	ErrEmptyText = errors.New("text is required")
)

// Segment is one playable item. Speech segments carry synthesized audio;
// cue segments carry the sound asset path.
type Segment struct {
	Kind        cue.Kind `json:"kind"`
	Text        string   `json:"text"`
	Audio       []byte   `json:"audio,omitempty"`
	ContentType string   `json:"contentType,omitempty"`
	Asset       string   `json:"asset,omitempty"`
}

// Result is the outcome of a completed turn.
type Result struct {
	UserText string          `json:"userText"`
	AIText   string          `json:"aiText"`
	Cues     []string        `json:"cues"`
	Segments []Segment       `json:"segments"`
	TextOnly bool            `json:"textOnly"`
	Session  session.Session `json:"session"`
}

// Empty reports a turn with nothing to play.
func (r *Result) Empty() bool {
	return r == nil || len(r.Segments) == 0
}
