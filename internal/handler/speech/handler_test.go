package speech

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	speechmodel "github.com/zhouzirui/rehearsal/backend/internal/model/speech"
	"github.com/zhouzirui/rehearsal/backend/internal/model/voice"
	speechsvc "github.com/zhouzirui/rehearsal/backend/internal/service/speech"
)

type fakeSpeechService struct {
	asr      *speechmodel.ASRRequest
	asrAudio []byte
	tts      *speechmodel.TTSRequest
	err      error
}

func (f *fakeSpeechService) Transcribe(_ context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error) {
	f.asr = req
	f.asrAudio, _ = io.ReadAll(req.AudioData)
	if f.err != nil {
		return nil, f.err
	}
	return &speechmodel.ASRResponse{SessionID: req.SessionID, Text: "ok"}, nil
}

func (f *fakeSpeechService) Synthesize(_ context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	f.tts = req
	if f.err != nil {
		return nil, f.err
	}
	return &speechmodel.TTSResponse{AudioData: []byte("audio"), ContentType: "audio/mpeg"}, nil
}

func setupRouter(svc SpeechService) *chi.Mux {
	r := chi.NewRouter()
	New(svc, voice.NewCatalog(voice.Seed(), nil)).RegisterRoutes(r)
	return r
}

func multipartAudio(t *testing.T, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		writer.WriteField(k, v)
	}
	part, err := writer.CreateFormFile("audio", filename)
	if err != nil {
		t.Fatalf("CreateFormFile err: %v", err)
	}
	part.Write(data)
	if err := writer.Close(); err != nil {
		t.Fatalf("writer.Close err: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestTranscribe(t *testing.T) {
	svc := &fakeSpeechService{}
	r := setupRouter(svc)

	body, contentType := multipartAudio(t, "clip.webm", []byte("audio"), map[string]string{"sessionId": "s1", "language": "en-GB"})
	req := httptest.NewRequest(http.MethodPost, "/speech/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d %s", rr.Code, rr.Body.String())
	}
	if svc.asr.SessionID != "s1" || svc.asr.Format != "webm" || svc.asr.Language != "en-GB" || string(svc.asrAudio) != "audio" {
		t.Fatalf("unexpected request: %+v", svc.asr)
	}
}

func TestTranscribeRequiresAudio(t *testing.T) {
	r := setupRouter(&fakeSpeechService{})

	req := httptest.NewRequest(http.MethodPost, "/speech/transcribe", strings.NewReader("not multipart"))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestSynthesizeResolvesDefaultVoice(t *testing.T) {
	svc := &fakeSpeechService{}
	r := setupRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/speech/synthesize", strings.NewReader(`{"text":"Hello"}`))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK || rr.Body.String() != "audio" || rr.Header().Get("Content-Type") != "audio/mpeg" {
		t.Fatalf("unexpected response: %d %q %v", rr.Code, rr.Body.String(), rr.Header())
	}
	if svc.tts.Voice != voice.DefaultVoiceID || svc.tts.Language != "en-US" {
		t.Fatalf("unexpected tts request: %+v", svc.tts)
	}
}

func TestSynthesizeErrors(t *testing.T) {
	r := setupRouter(&fakeSpeechService{})
	req := httptest.NewRequest(http.MethodPost, "/speech/synthesize", strings.NewReader(`{"text":"  "}`))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank text, got %d", rr.Code)
	}

	r = setupRouter(&fakeSpeechService{err: speechsvc.ErrProviderUnavailable})
	req = httptest.NewRequest(http.MethodPost, "/speech/synthesize", strings.NewReader(`{"text":"hi"}`))
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestInferAudioFormat(t *testing.T) {
	cases := map[string]string{"a.MP3": "mp3", "b.webm": "webm", "c.wav": "wav", "d": "wav", "e.pcm": "pcm"}
	for name, want := range cases {
		if got := InferAudioFormat(name); got != want {
			t.Fatalf("InferAudioFormat(%q) = %q, want %q", name, got, want)
		}
	}
}
