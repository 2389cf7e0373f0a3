package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/zhouzirui/rehearsal/backend/internal/config"
	"github.com/zhouzirui/rehearsal/backend/internal/model/speech"
)

const volcengineTTSEndpoint = "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"

const (
	ttsResourceDefault = "volc.service_type.10029"
	ttsResourceSeed    = "seed-tts-2.0"
	ttsResourceClone   = "volc.megatts.default"
)

// VolcengineTTSClient synthesizes speech over the openspeech unidirectional stream API.
type VolcengineTTSClient struct {
	cfg      config.VolcengineConfig
	dialer   *websocket.Dialer
	endpoint string
}

var _ Synthesizer = (*VolcengineTTSClient)(nil)

type ttsServerMessage struct {
	ReqID    string `json:"reqid"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
	Addition struct {
		Duration string `json:"duration,omitempty"`
	} `json:"addition,omitempty"`
}

type volcengineTTSRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string                   `json:"speaker"`
		Text        string                   `json:"text"`
		AudioParams volcengineTTSAudioParams `json:"audio_params"`
		Additions   string                   `json:"additions,omitempty"`
		Language    string                   `json:"language,omitempty"`
	} `json:"req_params"`
}

type volcengineTTSAudioParams struct {
	Format          string  `json:"format"`
	SampleRate      int     `json:"sample_rate"`
	EnableTimestamp bool    `json:"enable_timestamp"`
	SpeedRatio      float32 `json:"speed_ratio,omitempty"`
	VolumeRatio     float32 `json:"volume_ratio,omitempty"`
}

// NewVolcengineTTSClient builds a client from the Volcengine credentials.
func NewVolcengineTTSClient(cfg config.VolcengineConfig, opts ...VolcengineOption) *VolcengineTTSClient {
	c := &VolcengineTTSClient{
		cfg:      cfg,
		dialer:   &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
		endpoint: volcengineTTSEndpoint,
	}
	var unused time.Duration
	for _, opt := range opts {
		opt(&c.endpoint, &unused)
	}
	return c
}

// Synthesize tries each speaker and resource pairing until one is accepted.
// Only resource mismatches fall through to the next candidate.
func (c *VolcengineTTSClient) Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("volcengine tts: text is empty")
	}
	if !c.cfg.Enabled() {
		return nil, fmt.Errorf("volcengine tts: %w: missing app id or access token", ErrProviderUnavailable)
	}

	encoding := strings.TrimSpace(req.Format)
	if encoding == "" || encoding == "wav" {
		encoding = "mp3"
	}

	var lastMismatch error
	for _, speaker := range speakerCandidates(req.Voice, c.cfg.TTSVoice) {
		for _, resourceID := range resourceCandidates(speaker) {
			resp, err := c.synthesizeWith(ctx, req, speaker, encoding, resourceID)
			if err == nil {
				return resp, nil
			}
			if !isResourceMismatch(err) {
				return nil, err
			}
			log.Printf("[tts] voice %s resource %s mismatch: %v", speaker, resourceID, err)
			lastMismatch = err
		}
	}

	if lastMismatch != nil {
		return nil, lastMismatch
	}
	return nil, fmt.Errorf("volcengine tts: no voice configured")
}

func (c *VolcengineTTSClient) synthesizeWith(ctx context.Context, req *speech.TTSRequest, speaker, encoding, resourceID string) (*speech.TTSResponse, error) {
	connectID := uuid.NewString()

	header := http.Header{}
	header.Set("X-Api-App-Key", c.cfg.AppID)
	header.Set("X-Api-Access-Key", c.cfg.AccessToken)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)

	conn, resp, err := c.dialer.DialContext(ctx, c.endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("volcengine tts: connect: %w", err)
	}
	defer conn.Close()

	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			log.Printf("[tts] connected with logid: %s", logid)
		}
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	ttsReq := c.buildRequest(req, speaker, encoding)
	payload, err := json.Marshal(ttsReq)
	if err != nil {
		return nil, fmt.Errorf("volcengine tts: marshal request: %w", err)
	}
	frame, err := encodeFrame(CreateFullClientRequest(payload, NoCompression))
	if err != nil {
		return nil, fmt.Errorf("volcengine tts: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return nil, fmt.Errorf("volcengine tts: send request: %w", err)
	}

	var (
		audio    bytes.Buffer
		reqID    string
		duration int64
	)
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = ttsReq.User.UID
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("volcengine tts: read response: %w", err)
		}

		msg, err := DecodeMessage(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("volcengine tts: decode response: %w", err)
		}

		switch msg.Header.MessageType {
		case ErrorMessage:
			payload, _ := framePayload(msg)
			return nil, fmt.Errorf("volcengine tts: server error %d: %s", msg.ErrorCode, string(payload))

		case AudioOnlyServerResponse:
			chunk, err := framePayload(msg)
			if err != nil {
				return nil, fmt.Errorf("volcengine tts: %w", err)
			}
			audio.Write(chunk)

		case FullServerResponse:
			payload, err := framePayload(msg)
			if err != nil {
				return nil, fmt.Errorf("volcengine tts: %w", err)
			}

			var serverResp ttsServerMessage
			if len(payload) > 0 {
				if err := json.Unmarshal(payload, &serverResp); err != nil {
					log.Printf("[tts] failed to unmarshal response payload: %v", err)
				} else {
					if serverResp.Code != 0 && serverResp.Code != 3000 {
						return nil, fmt.Errorf("volcengine tts: api error %d: %s", serverResp.Code, serverResp.Message)
					}
					if serverResp.ReqID != "" {
						reqID = serverResp.ReqID
					}
					if ms, err := strconv.ParseInt(serverResp.Addition.Duration, 10, 64); err == nil {
						duration = ms
					}
					if serverResp.Data != "" {
						chunk, err := base64.StdEncoding.DecodeString(serverResp.Data)
						if err != nil {
							return nil, fmt.Errorf("volcengine tts: decode audio chunk: %w", err)
						}
						audio.Write(chunk)
					}
				}
			}

			if msg.FinishesSession() || msg.IsLastPacket() || serverResp.Sequence < 0 {
				if audio.Len() == 0 {
					return nil, fmt.Errorf("volcengine tts: %w", ErrEmptyAudio)
				}
				if reqID == "" {
					reqID = connectID
				}
				return &speech.TTSResponse{
					SessionID:   sessionID,
					AudioData:   audio.Bytes(),
					Duration:    duration,
					Format:      encoding,
					ContentType: contentTypeFor(encoding),
					RequestID:   reqID,
					CreatedAt:   time.Now(),
				}, nil
			}
		}
	}
}

func (c *VolcengineTTSClient) buildRequest(req *speech.TTSRequest, speaker, encoding string) *volcengineTTSRequest {
	out := &volcengineTTSRequest{}

	out.User.UID = strings.TrimSpace(req.SessionID)
	if out.User.UID == "" {
		out.User.UID = uuid.NewString()
	}

	out.ReqParams.Speaker = speaker
	out.ReqParams.Text = req.Text
	out.ReqParams.AudioParams.Format = encoding
	out.ReqParams.AudioParams.SampleRate = 24000
	out.ReqParams.AudioParams.EnableTimestamp = true

	speed := req.Speed
	if speed <= 0 {
		speed = c.cfg.TTSSpeed
	}
	if speed > 0 && speed != 1.0 {
		out.ReqParams.AudioParams.SpeedRatio = speed
	}

	volume := req.Volume
	if volume <= 0 {
		volume = c.cfg.TTSVolume
	}
	if volume > 0 && volume != 1.0 {
		out.ReqParams.AudioParams.VolumeRatio = volume
	}

	out.ReqParams.Language = firstNonEmpty(req.Language, c.cfg.TTSLanguage)
	out.ReqParams.Additions = `{"disable_markdown_filter":false}`
	return out
}

// resourceCandidates orders resource IDs by how likely they are to host the voice.
// Cloned voices (S_ prefix) only live on the clone resource.
func resourceCandidates(voice string) []string {
	voice = strings.TrimSpace(voice)
	if strings.HasPrefix(voice, "S_") {
		return []string{ttsResourceClone}
	}

	normalized := strings.ToLower(voice)
	for _, hint := range []string{"bigtts", "seed", "megatts", "uranus", "venus", "jupiter", "saturn", "neptune", "mercury", "pluto", "mars"} {
		if strings.Contains(normalized, hint) {
			return []string{ttsResourceSeed, ttsResourceDefault}
		}
	}
	return []string{ttsResourceDefault, ttsResourceSeed}
}

// speakerCandidates returns the requested voice then the configured default, without duplicates.
func speakerCandidates(requested, fallback string) []string {
	var out []string
	for _, v := range []string{requested, fallback} {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		dup := false
		for _, existing := range out {
			if strings.EqualFold(existing, v) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out
}

func isResourceMismatch(err error) bool {
	return err != nil && strings.Contains(err.Error(), "resource ID is mismatched with speaker related resource")
}

func contentTypeFor(format string) string {
	switch strings.ToLower(format) {
	case "mp3", "mpeg":
		return "audio/mpeg"
	case "ogg_opus", "ogg":
		return "audio/ogg"
	case "pcm":
		return "audio/L16"
	case "wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}
