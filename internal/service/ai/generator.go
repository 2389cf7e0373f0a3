package ai

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when a provider answers with no text.
var ErrEmptyResponse = errors.New("language model returned an empty response")

// Prompt is one generation request: behavioral instructions plus the user turn.
type Prompt struct {
	System string
	User   string
}

// Options are per-call generation controls.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, p Prompt, opts Options) (string, error)
}
