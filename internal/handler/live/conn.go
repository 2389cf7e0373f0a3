package live

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
)

// Server to client message types.
const (
	msgState      = "state"
	msgMetrics    = "metrics"
	msgTranscript = "transcript"
	msgSegment    = "segment"
	msgError      = "error"
	msgInfo       = "info"
)

// Client to server message types.
const (
	msgStart     = "start"
	msgStop      = "stop"
	msgListening = "listening"
	msgPlayback  = "playback"
	msgConfig    = "config"
)

// Playback ack statuses.
const (
	playbackStarted = "started"
	playbackEnded   = "ended"
	playbackError   = "error"
)

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type playbackAck struct {
	Turn    uint64 `json:"turn"`
	Segment int    `json:"segment"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

// conn wraps one live socket. gorilla/websocket allows a single concurrent writer,
// so every write goes through send.
type conn struct {
	ws        *websocket.Conn
	sessionID string

	writeMu sync.Mutex
	acks    chan playbackAck

	mu      sync.Mutex
	voiceID string
	// playing is the turn whose segments are being played, 0 when none.
	playing uint64

	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, sessionID string) *conn {
	return &conn{
		ws:        ws,
		sessionID: sessionID,
		acks:      make(chan playbackAck, 16),
	}
}

func (c *conn) send(msgType string, data any) error {
	msg := outgoingMessage{
		Type:      msgType,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteJSON(msg); err != nil {
		log.Printf("[live] session=%s write %s failed: %v", c.sessionID, msgType, err)
		return err
	}
	return nil
}

func (c *conn) sendError(message string) {
	c.send(msgError, map[string]string{"message": message})
}

// ping and close use WriteControl, which may run alongside send.
func (c *conn) ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// deliverAck hands a playback ack to the player of the current turn. Acks for
// another turn, or arriving while nothing is playing, are dropped.
func (c *conn) deliverAck(ack playbackAck) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.playing == 0 || (ack.Turn != 0 && ack.Turn != c.playing) {
		log.Printf("[live] session=%s ignored stale playback ack turn=%d segment=%d", c.sessionID, ack.Turn, ack.Segment)
		return
	}
	select {
	case c.acks <- ack:
	default:
		log.Printf("[live] session=%s dropped playback ack turn=%d segment=%d", c.sessionID, ack.Turn, ack.Segment)
	}
}

// beginPlayback marks turn as playing and discards acks left over from earlier turns.
func (c *conn) beginPlayback(turn uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playing = turn
	c.drainAcksLocked()
}

func (c *conn) endPlayback() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playing = 0
	c.drainAcksLocked()
}

func (c *conn) drainAcksLocked() {
	for {
		select {
		case <-c.acks:
		default:
			return
		}
	}
}

func (c *conn) voice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voiceID
}

func (c *conn) setVoice(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.voiceID = id
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.ws.Close()
	})
}
