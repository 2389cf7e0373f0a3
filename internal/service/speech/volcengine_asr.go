package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/zhouzirui/rehearsal/backend/internal/config"
	"github.com/zhouzirui/rehearsal/backend/internal/model/speech"
)

const (
	volcengineASREndpoint = "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_nostream"

	// 200ms of 16kHz 16-bit mono audio.
	asrChunkSize     = 6400
	asrChunkInterval = 200 * time.Millisecond
)

// VolcengineASRClient transcribes audio over the openspeech streaming-input WebSocket API.
type VolcengineASRClient struct {
	cfg      config.VolcengineConfig
	dialer   *websocket.Dialer
	endpoint string
	interval time.Duration
}

var _ Transcriber = (*VolcengineASRClient)(nil)

// VolcengineOption customises the Volcengine clients.
type VolcengineOption func(endpoint *string, interval *time.Duration)

// WithVolcengineEndpoint overrides the WebSocket URL.
func WithVolcengineEndpoint(url string) VolcengineOption {
	return func(endpoint *string, _ *time.Duration) { *endpoint = url }
}

// WithChunkInterval overrides the pacing between uploaded audio chunks.
func WithChunkInterval(d time.Duration) VolcengineOption {
	return func(_ *string, interval *time.Duration) { *interval = d }
}

type asrServerMessage struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Result   struct {
		Text       string         `json:"text"`
		Utterances []asrUtterance `json:"utterances,omitempty"`
	} `json:"result,omitempty"`
	AudioInfo struct {
		Duration int64 `json:"duration"`
	} `json:"audio_info,omitempty"`
}

type asrUtterance struct {
	Text      string `json:"text"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time"`
	Definite  bool   `json:"definite"`
}

type volcengineASRRequest struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user,omitempty"`
	Audio struct {
		Language string `json:"language,omitempty"`
		Format   string `json:"format"`
		Codec    string `json:"codec,omitempty"`
		Rate     int    `json:"rate,omitempty"`
		Bits     int    `json:"bits,omitempty"`
		Channel  int    `json:"channel,omitempty"`
	} `json:"audio"`
	Request struct {
		ModelName      string `json:"model_name"`
		EnableITN      bool   `json:"enable_itn,omitempty"`
		EnablePunc     bool   `json:"enable_punc,omitempty"`
		ShowUtterances bool   `json:"show_utterances,omitempty"`
		ResultType     string `json:"result_type,omitempty"`
		EndWindowSize  int    `json:"end_window_size,omitempty"`
	} `json:"request"`
}

// NewVolcengineASRClient builds a client from the Volcengine credentials.
func NewVolcengineASRClient(cfg config.VolcengineConfig, opts ...VolcengineOption) *VolcengineASRClient {
	c := &VolcengineASRClient{
		cfg:      cfg,
		dialer:   &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
		endpoint: volcengineASREndpoint,
		interval: asrChunkInterval,
	}
	for _, opt := range opts {
		opt(&c.endpoint, &c.interval)
	}
	return c
}

// Transcribe uploads the whole recording in paced chunks and waits for the final result.
func (c *VolcengineASRClient) Transcribe(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error) {
	if !c.cfg.Enabled() {
		return nil, fmt.Errorf("volcengine asr: %w: missing app id or access token", ErrProviderUnavailable)
	}

	audio, err := io.ReadAll(req.AudioData)
	if err != nil {
		return nil, fmt.Errorf("volcengine asr: read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("volcengine asr: %w", ErrEmptyAudio)
	}

	connectID := req.SessionID
	if connectID == "" {
		connectID = uuid.NewString()
	}

	resourceID := "volc.bigasr.sauc.duration"
	if c.cfg.ConcurrentMode {
		resourceID = "volc.bigasr.sauc.concurrent"
	}

	header := http.Header{}
	header.Set("X-Api-App-Key", c.cfg.AppID)
	header.Set("X-Api-Access-Key", c.cfg.AccessToken)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)

	conn, resp, err := c.dialer.DialContext(ctx, c.endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("volcengine asr: connect: %w", err)
	}
	defer conn.Close()

	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			log.Printf("[asr] connected with logid: %s", logid)
		}
	}

	payload, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("volcengine asr: marshal request: %w", err)
	}
	compressed, err := CompressPayload(payload, GzipCompression)
	if err != nil {
		return nil, fmt.Errorf("volcengine asr: %w", err)
	}
	frame, err := encodeFrame(CreateFullClientRequest(compressed, GzipCompression))
	if err != nil {
		return nil, fmt.Errorf("volcengine asr: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return nil, fmt.Errorf("volcengine asr: send request: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Closing the socket unblocks the reader when ctx ends first.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	sendErr := make(chan error, 1)
	go func() {
		sendErr <- c.sendAudio(ctx, conn, audio)
	}()

	result, recvErr := c.receive(conn, req.SessionID)
	if recvErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		select {
		case err := <-sendErr:
			if err != nil {
				log.Printf("[asr] send audio failed: %v", err)
			}
		default:
		}
		return nil, recvErr
	}
	return result, nil
}

func (c *VolcengineASRClient) buildRequest(req *speech.ASRRequest) *volcengineASRRequest {
	out := &volcengineASRRequest{}
	out.User.UID = req.SessionID

	out.Audio.Format = req.Format
	if out.Audio.Format == "" {
		out.Audio.Format = "wav"
	}
	out.Audio.Language = firstNonEmpty(req.Language, c.cfg.ASRLanguage, "en-US")
	out.Audio.Codec = "raw"
	out.Audio.Rate = req.SampleRate
	if out.Audio.Rate <= 0 {
		out.Audio.Rate = 16000
	}
	out.Audio.Bits = 16
	out.Audio.Channel = 1

	out.Request.ModelName = "bigmodel"
	out.Request.EnableITN = true
	out.Request.EnablePunc = true
	out.Request.ShowUtterances = true
	out.Request.ResultType = "full"
	out.Request.EndWindowSize = 800
	return out
}

// sendAudio streams chunks starting at sequence 2; the request frame holds 1.
func (c *VolcengineASRClient) sendAudio(ctx context.Context, conn *websocket.Conn, audio []byte) error {
	sequence := int32(2)
	for start := 0; start < len(audio); start += asrChunkSize {
		end := min(start+asrChunkSize, len(audio))
		isLast := end == len(audio)

		chunk, err := CompressPayload(audio[start:end], GzipCompression)
		if err != nil {
			return err
		}
		frame, err := encodeFrame(CreateAudioOnlyRequest(chunk, sequence, isLast, GzipCompression))
		if err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			return fmt.Errorf("failed to send audio chunk: %w", err)
		}
		sequence++

		if isLast {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.interval):
		}
	}
	return nil
}

func (c *VolcengineASRClient) receive(conn *websocket.Conn, sessionID string) (*speech.ASRResponse, error) {
	var (
		finalText string
		duration  int64
	)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("volcengine asr: read response: %w", err)
		}

		msg, err := DecodeMessage(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("volcengine asr: decode response: %w", err)
		}

		switch msg.Header.MessageType {
		case ErrorMessage:
			payload, _ := framePayload(msg)
			return nil, fmt.Errorf("volcengine asr: server error %d: %s", msg.ErrorCode, string(payload))

		case FullServerResponse:
			payload, err := framePayload(msg)
			if err != nil {
				return nil, fmt.Errorf("volcengine asr: %w", err)
			}

			var serverResp asrServerMessage
			if err := json.Unmarshal(payload, &serverResp); err != nil {
				log.Printf("[asr] failed to unmarshal response: %v", err)
				continue
			}
			if serverResp.Code != 0 && serverResp.Code != 20000000 {
				return nil, fmt.Errorf("volcengine asr: api error %d: %s", serverResp.Code, serverResp.Message)
			}

			text := serverResp.Result.Text
			if text == "" {
				text = joinUtterances(serverResp.Result.Utterances)
			}
			if text != "" {
				finalText = text
			}
			if serverResp.AudioInfo.Duration > 0 {
				duration = serverResp.AudioInfo.Duration
			}

			if msg.IsLastPacket() || serverResp.Sequence < 0 {
				finalText = strings.TrimSpace(finalText)
				if finalText == "" {
					log.Printf("[asr] empty transcript for session %s", sessionID)
				}
				return &speech.ASRResponse{
					SessionID:  sessionID,
					Text:       finalText,
					Confidence: estimateConfidence(finalText),
					Duration:   duration,
					RequestID:  sessionID,
					CreatedAt:  time.Now(),
				}, nil
			}
		}
	}
}

func joinUtterances(utterances []asrUtterance) string {
	parts := make([]string, 0, len(utterances))
	for _, u := range utterances {
		if t := strings.TrimSpace(u.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

func estimateConfidence(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	return 0.95
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
