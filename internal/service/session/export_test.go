package session

import (
	"errors"
	"testing"

	"github.com/zhouzirui/rehearsal/backend/internal/model/session"
)

func TestExportText(t *testing.T) {
	s := session.Session{
		ID: "abc",
		Exchanges: []session.Exchange{
			{Speaker: "user", Text: "I would like a raise"},
			{Speaker: "Manager", Text: "Let's talk about that."},
		},
	}

	out, err := Export(s, "TXT")
	if err != nil {
		t.Fatalf("Export err: %v", err)
	}
	if out.Filename != "transcript-abc.txt" {
		t.Fatalf("unexpected filename: %s", out.Filename)
	}
	want := "user: I would like a raise\nManager: Let's talk about that."
	if string(out.Body) != want {
		t.Fatalf("unexpected body: %q", out.Body)
	}
}

func TestExportEmptyJSON(t *testing.T) {
	out, err := Export(session.Session{ID: "empty"}, FormatJSON)
	if err != nil {
		t.Fatalf("Export err: %v", err)
	}
	if string(out.Body) != "[]" {
		t.Fatalf("expected empty array, got %q", out.Body)
	}
	if out.ContentType != "application/json" || out.Filename != "transcript-empty.json" {
		t.Fatalf("unexpected metadata: %+v", out)
	}
}

func TestExportUnknownFormat(t *testing.T) {
	if _, err := Export(session.Session{}, "pdf"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}
