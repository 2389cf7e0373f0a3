package feedback

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/zhouzirui/rehearsal/backend/internal/metrics"
	"github.com/zhouzirui/rehearsal/backend/internal/service/ai"
	sessionsvc "github.com/zhouzirui/rehearsal/backend/internal/service/session"
)

var (
	// ErrEmptyTranscript is returned when there is nothing to coach on yet.
	ErrEmptyTranscript = errors.New("transcript is empty")
	// ErrGeneration wraps language model failures.
	ErrGeneration = errors.New("feedback generation failed")
)

// Service produces communication-coach feedback for a session.
type Service struct {
	store    sessionsvc.Store
	llm      ai.Generator
	opts     ai.Options
	provider string
	metrics  *metrics.Metrics
}

// New creates a feedback service.
func New(store sessionsvc.Store, llm ai.Generator, opts ai.Options, provider string, m *metrics.Metrics) *Service {
	return &Service{store: store, llm: llm, opts: opts, provider: provider, metrics: m}
}

// Generate coaches on the full transcript and persists the result on the session.
func (s *Service) Generate(ctx context.Context, sessionID string) (string, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if len(sess.Exchanges) == 0 {
		return "", ErrEmptyTranscript
	}

	started := time.Now()
	text, err := s.llm.Generate(ctx, ai.BuildFeedbackPrompt(sess.Exchanges), s.opts)
	s.metrics.ObserveStage(metrics.StageLLM, time.Since(started))
	if err != nil {
		s.metrics.RecordProviderError(s.provider, metrics.StageLLM)
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	if err := s.store.SaveFeedback(ctx, sessionID, text); err != nil {
		return "", fmt.Errorf("save feedback: %w", err)
	}
	log.Printf("[feedback] session=%s feedback saved (%d chars)", sessionID, len(text))
	return text, nil
}
