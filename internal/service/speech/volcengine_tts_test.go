package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/zhouzirui/rehearsal/backend/internal/config"
	"github.com/zhouzirui/rehearsal/backend/internal/model/speech"
)

func TestResourceCandidates(t *testing.T) {
	tests := []struct {
		name  string
		voice string
		want  []string
	}{
		{name: "default voice", voice: "", want: []string{"volc.service_type.10029", "seed-tts-2.0"}},
		{name: "clone voice", voice: "S_clone_speaker", want: []string{"volc.megatts.default"}},
		{name: "bigtts voice", voice: "en_female_amy_jupiter_bigtts", want: []string{"seed-tts-2.0", "volc.service_type.10029"}},
		{name: "legacy voice", voice: "en_male_adam", want: []string{"volc.service_type.10029", "seed-tts-2.0"}},
	}

	for _, tt := range tests {
		if got := resourceCandidates(tt.voice); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s: resourceCandidates(%q) = %v, want %v", tt.name, tt.voice, got, tt.want)
		}
	}
}

func TestSpeakerCandidates(t *testing.T) {
	tests := []struct {
		name     string
		request  string
		fallback string
		want     []string
	}{
		{name: "request and fallback", request: "voice-a", fallback: "voice-b", want: []string{"voice-a", "voice-b"}},
		{name: "request empty", request: " ", fallback: "voice-b", want: []string{"voice-b"}},
		{name: "duplicates ignored", request: "EN_voice", fallback: "en_voice", want: []string{"EN_voice"}},
		{name: "nothing configured", want: nil},
	}

	for _, tt := range tests {
		if got := speakerCandidates(tt.request, tt.fallback); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s: speakerCandidates(%q, %q) = %v, want %v", tt.name, tt.request, tt.fallback, got, tt.want)
		}
	}
}

func TestIsResourceMismatch(t *testing.T) {
	if isResourceMismatch(nil) {
		t.Fatal("nil error is not a mismatch")
	}
	if isResourceMismatch(errors.New("some other error")) {
		t.Fatal("unrelated error is not a mismatch")
	}
	if !isResourceMismatch(fmt.Errorf(`server error: {"error":"resource ID is mismatched with speaker related resource"}`)) {
		t.Fatal("expected mismatch")
	}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func writeFrame(t *testing.T, conn *websocket.Conn, msg *Message) {
	t.Helper()
	data, err := EncodeMessage(msg)
	if err != nil {
		t.Errorf("encode: %v", err)
		return
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		t.Errorf("write: %v", err)
	}
}

func TestVolcengineTTSSynthesize(t *testing.T) {
	var gotReq volcengineTTSRequest
	var gotResource string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotResource = r.Header.Get("X-Api-Resource-Id")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Errorf("read request: %v", err)
			return
		}
		msg, err := DecodeMessage(bytes.NewReader(data))
		if err != nil || msg.Header.MessageType != FullClientRequest {
			t.Errorf("unexpected request frame: %+v %v", msg, err)
			return
		}
		if err := json.Unmarshal(msg.Payload, &gotReq); err != nil {
			t.Errorf("request payload: %v", err)
			return
		}

		writeFrame(t, conn, &Message{
			Header:      NewHeader(AudioOnlyServerResponse, NoSequenceNumber, NoSerialization, NoCompression),
			PayloadSize: 3,
			Payload:     []byte{1, 2, 3},
		})
		done := []byte(`{"code":0,"reqid":"req-1"}`)
		writeFrame(t, conn, &Message{
			Header:      NewHeader(FullServerResponse, WithEvent, JSONSerialization, NoCompression),
			EventType:   EventTypeSessionFinished,
			SessionID:   "sess",
			PayloadSize: uint32(len(done)),
			Payload:     done,
		})
	}))
	defer srv.Close()

	client := NewVolcengineTTSClient(config.VolcengineConfig{
		AppID:       "app",
		AccessToken: "token",
		TTSVoice:    "en_female_amy_jupiter_bigtts",
		TTSSpeed:    1.0,
	}, WithVolcengineEndpoint(wsURL(srv)))

	resp, err := client.Synthesize(context.Background(), &speech.TTSRequest{SessionID: "s1", Text: "Hello there"})
	if err != nil {
		t.Fatalf("Synthesize err: %v", err)
	}
	if !bytes.Equal(resp.AudioData, []byte{1, 2, 3}) || resp.RequestID != "req-1" || resp.ContentType != "audio/mpeg" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if gotReq.ReqParams.Speaker != "en_female_amy_jupiter_bigtts" || gotReq.ReqParams.Text != "Hello there" {
		t.Fatalf("unexpected request: %+v", gotReq)
	}
	if gotReq.ReqParams.AudioParams.SpeedRatio != 0 {
		t.Fatalf("unit speed should be omitted, got %v", gotReq.ReqParams.AudioParams.SpeedRatio)
	}
	if gotResource != "seed-tts-2.0" {
		t.Fatalf("unexpected resource id %q", gotResource)
	}
}

func TestVolcengineTTSRequiresCredentials(t *testing.T) {
	client := NewVolcengineTTSClient(config.VolcengineConfig{})
	if _, err := client.Synthesize(context.Background(), &speech.TTSRequest{Text: "hi"}); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}
