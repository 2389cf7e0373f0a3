package exchange

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/rehearsal/backend/internal/cue"
	"github.com/zhouzirui/rehearsal/backend/internal/metrics"
	"github.com/zhouzirui/rehearsal/backend/internal/model/session"
	"github.com/zhouzirui/rehearsal/backend/internal/model/speech"
	"github.com/zhouzirui/rehearsal/backend/internal/model/voice"
	"github.com/zhouzirui/rehearsal/backend/internal/service/ai"
	sessionsvc "github.com/zhouzirui/rehearsal/backend/internal/service/session"
	speechsvc "github.com/zhouzirui/rehearsal/backend/internal/service/speech"
)

// Voices resolves voice options and cue sound assets.
type Voices interface {
	FindByID(id string) (voice.Option, bool)
	Sound(cue string) (string, bool)
}

// Config names the providers for metrics and sets generation limits.
type Config struct {
	Generation   ai.Options
	DefaultVoice string
	STTProvider  string
	TTSProvider  string
	LLMProvider  string
	// MaxParallelTTS bounds concurrent synthesis requests within one turn.
	MaxParallelTTS int
}

// Service orchestrates turns against a session store and the external providers.
type Service struct {
	store   sessionsvc.Store
	stt     speechsvc.Transcriber
	tts     speechsvc.Synthesizer
	llm     ai.Generator
	voices  Voices
	cfg     Config
	metrics *metrics.Metrics
}

// New wires a Service. tts and voices may be nil: turns are then text-only.
func New(store sessionsvc.Store, stt speechsvc.Transcriber, tts speechsvc.Synthesizer, llm ai.Generator, voices Voices, cfg Config, m *metrics.Metrics) *Service {
	if cfg.MaxParallelTTS <= 0 {
		cfg.MaxParallelTTS = 3
	}
	if cfg.DefaultVoice == "" {
		cfg.DefaultVoice = voice.DefaultVoiceID
	}
	return &Service{store: store, stt: stt, tts: tts, llm: llm, voices: voices, cfg: cfg, metrics: m}
}

// TurnOption adjusts a single turn.
type TurnOption func(*turnOptions)

type turnOptions struct {
	voiceID string
}

// WithVoice selects the synthesis voice for this turn.
func WithVoice(id string) TurnOption {
	return func(o *turnOptions) { o.voiceID = strings.TrimSpace(id) }
}

// RunTurn transcribes clip and continues as RunText. Transcription failure or an
// empty transcript returns ErrNoSpeech without touching the session.
func (s *Service) RunTurn(ctx context.Context, sessionID string, clip speech.Clip, opts ...TurnOption) (*Result, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if clip.Empty() || s.stt == nil {
		s.metrics.RecordTurn(metrics.OutcomeNoSpeech)
		return nil, ErrNoSpeech
	}

	started := time.Now()
	resp, err := s.stt.Transcribe(ctx, &speech.ASRRequest{
		SessionID:  sessionID,
		AudioData:  bytes.NewReader(clip.Data),
		Format:     clip.Format,
		SampleRate: clip.SampleRate,
	})
	s.metrics.ObserveStage(metrics.StageSTT, time.Since(started))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Printf("[exchange] transcription failed for session=%s: %v", sessionID, err)
		s.metrics.RecordProviderError(s.cfg.STTProvider, metrics.StageSTT)
		s.metrics.RecordTurn(metrics.OutcomeNoSpeech)
		return nil, fmt.Errorf("%w: %w", ErrNoSpeech, err)
	}

	userText := strings.TrimSpace(resp.Text)
	if userText == "" {
		s.metrics.RecordTurn(metrics.OutcomeNoSpeech)
		return nil, ErrNoSpeech
	}

	return s.respond(ctx, sess, userText, opts)
}

// RunText runs a turn from already-transcribed user text.
func (s *Service) RunText(ctx context.Context, sessionID, text string, opts ...TurnOption) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.respond(ctx, sess, text, opts)
}

func (s *Service) respond(ctx context.Context, sess session.Session, userText string, opts []TurnOption) (*Result, error) {
	var o turnOptions
	for _, opt := range opts {
		opt(&o)
	}

	started := time.Now()
	raw, err := s.llm.Generate(ctx, ai.BuildTurnPrompt(sess, userText), s.cfg.Generation)
	s.metrics.ObserveStage(metrics.StageLLM, time.Since(started))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.metrics.RecordProviderError(s.cfg.LLMProvider, metrics.StageLLM)
		s.metrics.RecordTurn(metrics.OutcomeFailed)
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	tokens := cue.Tokenize(raw)
	aiText := cue.SpokenText(tokens)
	cues := cue.Cues(tokens)
	if aiText == "" && len(cues) == 0 {
		s.metrics.RecordTurn(metrics.OutcomeFailed)
		return nil, fmt.Errorf("%w: reply had no speakable content", ErrGeneration)
	}

	audio, textOnly := s.synthesize(ctx, sess.ID, tokens, o.voiceID)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	started = time.Now()
	updated, err := s.store.AppendExchanges(ctx, sess.ID,
		session.Exchange{Speaker: session.SpeakerUser, Text: userText},
		session.Exchange{Speaker: sess.AISpeaker(), Text: aiText, Cues: cues},
	)
	s.metrics.ObserveStage(metrics.StageAppend, time.Since(started))
	if err != nil {
		s.metrics.RecordTurn(metrics.OutcomeFailed)
		return nil, fmt.Errorf("record exchange: %w", err)
	}

	result := &Result{
		UserText: userText,
		AIText:   aiText,
		Cues:     cues,
		TextOnly: textOnly,
		Session:  updated,
	}
	if !textOnly {
		result.Segments = s.plan(tokens, audio)
	}

	if textOnly {
		s.metrics.RecordTurn(metrics.OutcomeTextOnly)
	} else {
		s.metrics.RecordTurn(metrics.OutcomeOK)
	}
	log.Printf("[exchange] session=%s turn recorded (segments=%d, textOnly=%v)", sess.ID, len(result.Segments), textOnly)
	return result, nil
}

type synthesized struct {
	data        []byte
	contentType string
}

// synthesize speaks every speech segment. Any failure or empty payload turns
// the whole reply text-only.
func (s *Service) synthesize(ctx context.Context, sessionID string, tokens []cue.Segment, voiceID string) (map[int]synthesized, bool) {
	if s.tts == nil {
		return nil, true
	}

	voiceID, language := s.resolveVoice(voiceID)
	out := make([]synthesized, len(tokens))

	started := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxParallelTTS)
	for i, tok := range tokens {
		if tok.Kind != cue.Speech {
			continue
		}
		i, tok := i, tok
		g.Go(func() error {
			resp, err := s.tts.Synthesize(gctx, &speech.TTSRequest{
				SessionID: sessionID,
				Text:      tok.Text,
				Voice:     voiceID,
				Language:  language,
			})
			if err != nil {
				return err
			}
			if len(resp.AudioData) == 0 {
				return speechsvc.ErrEmptyAudio
			}
			out[i] = synthesized{data: resp.AudioData, contentType: resp.ContentType}
			return nil
		})
	}
	err := g.Wait()
	s.metrics.ObserveStage(metrics.StageTTS, time.Since(started))
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Printf("[exchange] synthesis failed for session=%s, continuing text-only: %v", sessionID, err)
			s.metrics.RecordProviderError(s.cfg.TTSProvider, metrics.StageTTS)
		}
		return nil, true
	}

	audio := make(map[int]synthesized, len(tokens))
	for i, a := range out {
		if a.data != nil {
			audio[i] = a
		}
	}
	return audio, false
}

// plan lays out speech audio and cue sounds in textual order. Cues without an asset are skipped.
func (s *Service) plan(tokens []cue.Segment, audio map[int]synthesized) []Segment {
	var segments []Segment
	for i, tok := range tokens {
		switch tok.Kind {
		case cue.Speech:
			a, ok := audio[i]
			if !ok {
				continue
			}
			segments = append(segments, Segment{Kind: cue.Speech, Text: tok.Text, Audio: a.data, ContentType: a.contentType})
		case cue.Cue:
			if s.voices == nil {
				continue
			}
			asset, ok := s.voices.Sound(tok.Text)
			if !ok {
				continue
			}
			segments = append(segments, Segment{Kind: cue.Cue, Text: tok.Text, Asset: asset})
		}
	}
	return segments
}

func (s *Service) resolveVoice(id string) (string, string) {
	if id == "" {
		id = s.cfg.DefaultVoice
	}
	if s.voices != nil {
		if opt, ok := s.voices.FindByID(id); ok {
			return opt.VoiceID, opt.LanguageCode
		}
	}
	return id, ""
}
