package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zhouzirui/rehearsal/backend/internal/config"
	"github.com/zhouzirui/rehearsal/backend/internal/model/speech"
)

func TestVolcengineASRTranscribe(t *testing.T) {
	audio := bytes.Repeat([]byte{0x10, 0x00}, 4000) // two chunks
	var (
		gotReq      volcengineASRRequest
		gotAudio    []byte
		gotSeqs     []int32
		gotResource string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotResource = r.Header.Get("X-Api-Resource-Id")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				t.Errorf("read: %v", err)
				return
			}
			msg, err := DecodeMessage(bytes.NewReader(data))
			if err != nil {
				t.Errorf("decode: %v", err)
				return
			}
			payload, err := framePayload(msg)
			if err != nil {
				t.Errorf("payload: %v", err)
				return
			}

			if msg.Header.MessageType == FullClientRequest {
				if err := json.Unmarshal(payload, &gotReq); err != nil {
					t.Errorf("request json: %v", err)
				}
				continue
			}

			gotAudio = append(gotAudio, payload...)
			gotSeqs = append(gotSeqs, msg.Sequence)
			if !msg.IsLastPacket() {
				continue
			}

			result, _ := json.Marshal(map[string]any{
				"code":   20000000,
				"result": map[string]any{"utterances": []map[string]any{{"text": "hello"}, {"text": "there"}}},
			})
			compressed, _ := CompressPayload(result, GzipCompression)
			writeFrame(t, conn, &Message{
				Header:      NewHeader(FullServerResponse, NegativeSequenceNumber, JSONSerialization, GzipCompression),
				Sequence:    -3,
				PayloadSize: uint32(len(compressed)),
				Payload:     compressed,
			})
			return
		}
	}))
	defer srv.Close()

	client := NewVolcengineASRClient(config.VolcengineConfig{AppID: "app", AccessToken: "token", ConcurrentMode: true},
		WithVolcengineEndpoint(wsURL(srv)), WithChunkInterval(time.Millisecond))

	resp, err := client.Transcribe(context.Background(), &speech.ASRRequest{
		SessionID:  "s1",
		AudioData:  bytes.NewReader(audio),
		Format:     "pcm",
		SampleRate: 16000,
	})
	if err != nil {
		t.Fatalf("Transcribe err: %v", err)
	}
	if resp.Text != "hello there" || resp.Confidence == 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if !bytes.Equal(gotAudio, audio) {
		t.Fatalf("audio not reassembled: got %d bytes, want %d", len(gotAudio), len(audio))
	}
	if len(gotSeqs) != 2 || gotSeqs[0] != 2 || gotSeqs[1] != -3 {
		t.Fatalf("unexpected sequences %v", gotSeqs)
	}
	if gotReq.Audio.Format != "pcm" || gotReq.Audio.Language != "en-US" || gotReq.Audio.Rate != 16000 {
		t.Fatalf("unexpected request: %+v", gotReq.Audio)
	}
	if gotResource != "volc.bigasr.sauc.concurrent" {
		t.Fatalf("unexpected resource %q", gotResource)
	}
}

func TestVolcengineASRRejectsEmptyAudio(t *testing.T) {
	client := NewVolcengineASRClient(config.VolcengineConfig{AppID: "app", AccessToken: "token"})
	_, err := client.Transcribe(context.Background(), &speech.ASRRequest{AudioData: bytes.NewReader(nil)})
	if !errors.Is(err, ErrEmptyAudio) {
		t.Fatalf("expected ErrEmptyAudio, got %v", err)
	}
}

func TestVolcengineASRServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		detail := []byte("quota exceeded")
		writeFrame(t, conn, &Message{
			Header:      NewHeader(ErrorMessage, NoSequenceNumber, JSONSerialization, NoCompression),
			ErrorCode:   45000001,
			PayloadSize: uint32(len(detail)),
			Payload:     detail,
		})
		// Drain until the client hangs up.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	client := NewVolcengineASRClient(config.VolcengineConfig{AppID: "app", AccessToken: "token"},
		WithVolcengineEndpoint(wsURL(srv)), WithChunkInterval(time.Millisecond))

	_, err := client.Transcribe(context.Background(), &speech.ASRRequest{AudioData: bytes.NewReader([]byte{1, 2})})
	if err == nil || !bytes.Contains([]byte(err.Error()), []byte("quota exceeded")) {
		t.Fatalf("expected server error, got %v", err)
	}
}
