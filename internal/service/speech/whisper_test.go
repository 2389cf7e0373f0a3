package speech

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zhouzirui/rehearsal/backend/internal/audio/wav"
	"github.com/zhouzirui/rehearsal/backend/internal/config"
	"github.com/zhouzirui/rehearsal/backend/internal/model/speech"
)

func TestWhisperWrapsPCMAsWAV(t *testing.T) {
	pcm := bytes.Repeat([]byte{0x01, 0x02}, 800)
	var (
		gotModel    string
		gotLanguage string
		gotFile     []byte
		gotPath     string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
			return
		}
		gotModel = r.FormValue("model")
		gotLanguage = r.FormValue("language")
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		gotFile, _ = io.ReadAll(f)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"  I'd like a raise. "}`))
	}))
	defer srv.Close()

	stt, err := NewWhisperTranscriber(config.WhisperConfig{APIKey: "sk", BaseURL: srv.URL + "/v1/", Language: "en-US"}, time.Second)
	if err != nil {
		t.Fatalf("NewWhisperTranscriber err: %v", err)
	}

	resp, err := stt.Transcribe(context.Background(), &speech.ASRRequest{
		SessionID:  "s1",
		AudioData:  bytes.NewReader(pcm),
		Format:     "pcm",
		SampleRate: 16000,
	})
	if err != nil {
		t.Fatalf("Transcribe err: %v", err)
	}
	if resp.Text != "I'd like a raise." || resp.SessionID != "s1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if gotPath != "/v1/audio/transcriptions" || gotModel != "whisper-1" || gotLanguage != "en" {
		t.Fatalf("unexpected request path=%s model=%s language=%s", gotPath, gotModel, gotLanguage)
	}

	decoded, rate, err := wav.Decode(gotFile)
	if err != nil {
		t.Fatalf("uploaded file is not WAV: %v", err)
	}
	if rate != 16000 || !bytes.Equal(decoded, pcm) {
		t.Fatalf("unexpected upload: rate=%d len=%d", rate, len(decoded))
	}
}

func TestWhisperRejectsMissingKeyAndEmptyAudio(t *testing.T) {
	if _, err := NewWhisperTranscriber(config.WhisperConfig{}, time.Second); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}

	stt, _ := NewWhisperTranscriber(config.WhisperConfig{APIKey: "sk"}, time.Second)
	if _, err := stt.Transcribe(context.Background(), &speech.ASRRequest{AudioData: bytes.NewReader(nil)}); !errors.Is(err, ErrEmptyAudio) {
		t.Fatalf("expected ErrEmptyAudio, got %v", err)
	}
}

func TestLanguageCode(t *testing.T) {
	cases := map[string]string{"en-US": "en", "en_GB": "en", "FR": "fr", "": ""}
	for in, want := range cases {
		if got := languageCode(in); got != want {
			t.Fatalf("languageCode(%q) = %q, want %q", in, got, want)
		}
	}
}
