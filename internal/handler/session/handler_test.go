package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/rehearsal/backend/internal/cue"
	"github.com/zhouzirui/rehearsal/backend/internal/model/session"
	"github.com/zhouzirui/rehearsal/backend/internal/model/speech"
	"github.com/zhouzirui/rehearsal/backend/internal/service/exchange"
	"github.com/zhouzirui/rehearsal/backend/internal/service/feedback"
	sessionsvc "github.com/zhouzirui/rehearsal/backend/internal/service/session"
)

type fakeExchanger struct {
	store   sessionsvc.Store
	clip    speech.Clip
	turnErr error
	textErr error
}

func (f *fakeExchanger) RunTurn(ctx context.Context, sessionID string, clip speech.Clip, _ ...exchange.TurnOption) (*exchange.Result, error) {
	f.clip = clip
	if f.turnErr != nil {
		return nil, f.turnErr
	}
	return f.RunText(ctx, sessionID, "from audio")
}

func (f *fakeExchanger) RunText(ctx context.Context, sessionID, text string, _ ...exchange.TurnOption) (*exchange.Result, error) {
	if f.textErr != nil {
		return nil, f.textErr
	}
	updated, err := f.store.AppendExchanges(ctx, sessionID,
		session.Exchange{Speaker: session.SpeakerUser, Text: text},
		session.Exchange{Speaker: "Manager", Text: "Go on."},
	)
	if err != nil {
		return nil, err
	}
	return &exchange.Result{
		UserText: text,
		AIText:   "Go on.",
		Segments: []exchange.Segment{{Kind: cue.Speech, Text: "Go on.", Audio: []byte("mp3"), ContentType: "audio/mpeg"}},
		Session:  updated,
	}, nil
}

type fakeCoach struct {
	err error
}

func (f *fakeCoach) Generate(context.Context, string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "Speak more slowly.", nil
}

func setupRouter(exchanger *fakeExchanger, coach *fakeCoach) (*chi.Mux, sessionsvc.Store) {
	store := sessionsvc.NewMemoryStore()
	if exchanger == nil {
		exchanger = &fakeExchanger{}
	}
	exchanger.store = store
	if coach == nil {
		coach = &fakeCoach{}
	}
	r := chi.NewRouter()
	New(store, exchanger, coach).RegisterRoutes(r)
	return r, store
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rr
}

func createSession(t *testing.T, r http.Handler) session.Session {
	t.Helper()
	rr := do(r, http.MethodPost, "/sessions", `{"scenarioType":"negotiation","userRole":"Employee","aiRole":"Manager","context":"raise","formality":"Formal"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: unexpected status %d %s", rr.Code, rr.Body.String())
	}
	var created session.Session
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	return created
}

func TestCreateAndGetSession(t *testing.T) {
	r, _ := setupRouter(nil, nil)
	created := createSession(t, r)

	if created.ID == "" || created.Formality != session.FormalityFormal {
		t.Fatalf("unexpected session: %+v", created)
	}

	rr := do(r, http.MethodGet, "/sessions/"+created.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get: unexpected status %d", rr.Code)
	}

	rr = do(r, http.MethodGet, "/sessions/missing", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", rr.Code)
	}
}

func TestCreateSessionRejectsInvalidScenario(t *testing.T) {
	r, _ := setupRouter(nil, nil)

	if rr := do(r, http.MethodPost, "/sessions", `{"difficulty":"impossible"}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if rr := do(r, http.MethodPost, "/sessions", `{`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rr.Code)
	}
}

func TestTextTurnAndTranscriptExport(t *testing.T) {
	r, _ := setupRouter(nil, nil)
	created := createSession(t, r)

	rr := do(r, http.MethodPost, "/sessions/"+created.ID+"/exchanges", `{"text":"I deserve a raise"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("turn: unexpected status %d %s", rr.Code, rr.Body.String())
	}

	var result exchange.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if result.AIText != "Go on." || string(result.Segments[0].Audio) != "mp3" {
		t.Fatalf("unexpected result: %+v", result)
	}

	rr = do(r, http.MethodGet, "/sessions/"+created.ID+"/transcript?format=txt", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("export: unexpected status %d", rr.Code)
	}
	if got := rr.Body.String(); got != "user: I deserve a raise\nManager: Go on." {
		t.Fatalf("unexpected transcript: %q", got)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "transcript-"+created.ID+".txt") {
		t.Fatalf("unexpected Content-Disposition: %q", cd)
	}

	rr = do(r, http.MethodGet, "/sessions/"+created.ID+"/transcript?format=json", "")
	var exported []session.Exchange
	if err := json.Unmarshal(rr.Body.Bytes(), &exported); err != nil || len(exported) != 2 {
		t.Fatalf("unexpected json transcript: %s (%v)", rr.Body.String(), err)
	}

	if rr := do(r, http.MethodGet, "/sessions/"+created.ID+"/transcript?format=pdf", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown format, got %d", rr.Code)
	}
}

func TestTextTurnErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: boom", exchange.ErrGeneration), http.StatusBadGateway},
		{exchange.ErrEmptyText, http.StatusBadRequest},
		{sessionsvc.ErrSessionNotFound, http.StatusNotFound},
	}

	for _, tc := range cases {
		r, _ := setupRouter(&fakeExchanger{textErr: tc.err}, nil)
		if rr := do(r, http.MethodPost, "/sessions/s1/exchanges", `{"text":"hi"}`); rr.Code != tc.status {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.status, rr.Code)
		}
	}
}

func audioRequest(t *testing.T, path string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	writer.WriteField("sampleRate", "16000")
	part, err := writer.CreateFormFile("audio", "clip.pcm")
	if err != nil {
		t.Fatalf("CreateFormFile err: %v", err)
	}
	part.Write(make([]byte, 640))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestAudioTurn(t *testing.T) {
	exchanger := &fakeExchanger{}
	r, store := setupRouter(exchanger, nil)
	created := createSession(t, r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, audioRequest(t, "/sessions/"+created.ID+"/turns"))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d %s", rr.Code, rr.Body.String())
	}
	if exchanger.clip.Format != "pcm" || exchanger.clip.SampleRate != 16000 || len(exchanger.clip.Data) != 640 {
		t.Fatalf("unexpected clip: format=%s rate=%d len=%d", exchanger.clip.Format, exchanger.clip.SampleRate, len(exchanger.clip.Data))
	}

	sess, _ := store.Get(context.Background(), created.ID)
	if len(sess.Exchanges) != 2 || sess.Exchanges[0].Text != "from audio" {
		t.Fatalf("unexpected exchanges: %+v", sess.Exchanges)
	}
}

func TestAudioTurnWithoutSpeech(t *testing.T) {
	r, store := setupRouter(&fakeExchanger{turnErr: exchange.ErrNoSpeech}, nil)
	created := createSession(t, r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, audioRequest(t, "/sessions/"+created.ID+"/turns"))

	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"noSpeech":true`) {
		t.Fatalf("unexpected response: %d %s", rr.Code, rr.Body.String())
	}
	sess, _ := store.Get(context.Background(), created.ID)
	if len(sess.Exchanges) != 0 {
		t.Fatalf("no exchange should be recorded, got %+v", sess.Exchanges)
	}
}

func TestFeedback(t *testing.T) {
	r, _ := setupRouter(nil, nil)
	rr := do(r, http.MethodPost, "/sessions/s1/feedback", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Speak more slowly.") {
		t.Fatalf("unexpected response: %d %s", rr.Code, rr.Body.String())
	}

	r, _ = setupRouter(nil, &fakeCoach{err: feedback.ErrEmptyTranscript})
	if rr := do(r, http.MethodPost, "/sessions/s1/feedback", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty transcript, got %d", rr.Code)
	}
}
