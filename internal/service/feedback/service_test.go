package feedback_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/zhouzirui/rehearsal/backend/internal/model/session"
	"github.com/zhouzirui/rehearsal/backend/internal/service/ai"
	"github.com/zhouzirui/rehearsal/backend/internal/service/feedback"
	sessionsvc "github.com/zhouzirui/rehearsal/backend/internal/service/session"
)

type stubLLM struct {
	reply  string
	err    error
	prompt ai.Prompt
	opts   ai.Options
}

func (s *stubLLM) Generate(_ context.Context, p ai.Prompt, opts ai.Options) (string, error) {
	s.prompt = p
	s.opts = opts
	return s.reply, s.err
}

func TestGenerateSavesFeedback(t *testing.T) {
	ctx := context.Background()
	store := sessionsvc.NewMemoryStore()
	sess, _ := store.Create(ctx, session.Scenario{AIRole: "Manager"})
	store.AppendExchanges(ctx, sess.ID,
		session.Exchange{Speaker: "user", Text: "I want a raise."},
		session.Exchange{Speaker: "Manager", Text: "Why?"},
	)

	llm := &stubLLM{reply: "Strengths: direct. Improve: give evidence."}
	svc := feedback.New(store, llm, ai.Options{MaxTokens: 400}, "openai", nil)

	text, err := svc.Generate(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}
	if text != llm.reply || llm.opts.MaxTokens != 400 {
		t.Fatalf("unexpected result %q opts %+v", text, llm.opts)
	}
	if !strings.Contains(llm.prompt.User, "user: I want a raise.\nManager: Why?\n") {
		t.Fatalf("transcript missing from prompt:\n%s", llm.prompt.User)
	}

	stored, _ := store.Get(ctx, sess.ID)
	if stored.Feedback != llm.reply {
		t.Fatalf("feedback not persisted: %q", stored.Feedback)
	}
}

func TestGenerateErrors(t *testing.T) {
	ctx := context.Background()
	store := sessionsvc.NewMemoryStore()
	sess, _ := store.Create(ctx, session.Scenario{})

	svc := feedback.New(store, &stubLLM{reply: "x"}, ai.Options{}, "ark", nil)
	if _, err := svc.Generate(ctx, sess.ID); !errors.Is(err, feedback.ErrEmptyTranscript) {
		t.Fatalf("expected ErrEmptyTranscript, got %v", err)
	}
	if _, err := svc.Generate(ctx, "missing"); !errors.Is(err, sessionsvc.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	store.AppendExchanges(ctx, sess.ID, session.Exchange{Speaker: "user", Text: "hi"})
	svc = feedback.New(store, &stubLLM{err: errors.New("down")}, ai.Options{}, "ark", nil)
	if _, err := svc.Generate(ctx, sess.ID); !errors.Is(err, feedback.ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
}
