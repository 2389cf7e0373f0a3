// Package live runs the hands-free conversation loop over a WebSocket: the browser
// streams PCM, the server decides when the user has finished, replies, and paces
// playback on the client's acks.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/rehearsal/backend/internal/audio/feature"
	"github.com/zhouzirui/rehearsal/backend/internal/metrics"
	"github.com/zhouzirui/rehearsal/backend/internal/model/speech"
	"github.com/zhouzirui/rehearsal/backend/internal/service/exchange"
	sessionsvc "github.com/zhouzirui/rehearsal/backend/internal/service/session"
	"github.com/zhouzirui/rehearsal/backend/internal/turn"
	"github.com/zhouzirui/rehearsal/backend/pkg/utils"
)

const (
	defaultTickInterval    = 100 * time.Millisecond
	defaultMetricsInterval = 100 * time.Millisecond
	defaultPlaybackTimeout = 2 * time.Minute
)

// Exchanger runs one audio turn.
type Exchanger interface {
	RunTurn(ctx context.Context, sessionID string, clip speech.Clip, opts ...exchange.TurnOption) (*exchange.Result, error)
}

// Handler upgrades live connections and drives one turn controller per socket.
type Handler struct {
	store     sessionsvc.Store
	exchanges Exchanger
	turnCfg   turn.Config
	metrics   *metrics.Metrics
	registry  *Registry
	upgrader  websocket.Upgrader

	tickInterval    time.Duration
	metricsInterval time.Duration
	playbackTimeout time.Duration
}

// Option customises a Handler.
type Option func(*Handler)

// WithPlaybackTimeout bounds how long a segment may wait for its ended ack.
func WithPlaybackTimeout(d time.Duration) Option {
	return func(h *Handler) { h.playbackTimeout = d }
}

// WithMetricsInterval throttles feature snapshots sent to the client.
func WithMetricsInterval(d time.Duration) Option {
	return func(h *Handler) { h.metricsInterval = d }
}

// New creates a live handler. An empty allowedOrigins accepts any origin.
func New(store sessionsvc.Store, exchanges Exchanger, cfg turn.Config, allowedOrigins []string, m *metrics.Metrics, opts ...Option) *Handler {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}

	h := &Handler{
		store:           store,
		exchanges:       exchanges,
		turnCfg:         cfg,
		metrics:         m,
		registry:        NewRegistry(),
		tickInterval:    defaultTickInterval,
		metricsInterval: defaultMetricsInterval,
		playbackTimeout: defaultPlaybackTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes mounts the live socket.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/live", h.handleLive)
}

// Registry exposes the open connections.
func (h *Handler) Registry() *Registry {
	return h.registry
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if len(set) == 0 || origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.store.Get(r.Context(), sessionID); err != nil {
		if errors.Is(err, sessionsvc.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, "session not found")
			return
		}
		log.Printf("[live] load session %s: %v", sessionID, err)
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[live] upgrade failed: %v", err)
		return
	}

	c := newConn(ws, sessionID)
	h.registry.add(sessionID, c)
	h.metrics.LiveOpened()
	defer h.metrics.LiveClosed()
	defer h.registry.remove(sessionID, c)

	log.Printf("[live] session=%s connected", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	frames := make(chan []float64, 8)
	snapshots := feature.NewEstimator(h.turnCfg.SampleRate).Run(ctx, frames)
	go h.forwardMetrics(c, snapshots)

	ctrl := turn.NewController(ctx, &responder{c: c, exchanges: h.exchanges, timeout: h.playbackTimeout}, h.turnCfg,
		turn.WithObserver(observer{c: c}),
		turn.WithFeatureSink(frames),
	)
	defer func() {
		ctrl.Close()
		close(frames)
		log.Printf("[live] session=%s disconnected", sessionID)
	}()

	go h.tickLoop(ctx, c, ctrl)

	c.send(msgInfo, map[string]any{
		"event":      "connected",
		"state":      ctrl.State().String(),
		"sampleRate": h.turnCfg.SampleRate,
	})

	ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[live] session=%s read error: %v", sessionID, err)
			}
			return
		}
		ws.SetReadDeadline(time.Now().Add(readTimeout))

		switch msgType {
		case websocket.BinaryMessage:
			if len(data)%2 != 0 {
				c.sendError("malformed audio frame: expected 16-bit PCM")
				continue
			}
			ctrl.Feed(data)
		case websocket.TextMessage:
			h.handleMessage(c, ctrl, data)
		}
	}
}

func (h *Handler) handleMessage(c *conn, ctrl *turn.Controller, raw []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("invalid message")
		return
	}
	if msg.SessionID != "" && msg.SessionID != c.sessionID {
		c.sendError("session mismatch")
		return
	}

	switch msg.Type {
	case msgStart:
		if !ctrl.StartRecording() {
			c.send(msgInfo, map[string]string{"event": "busy", "state": ctrl.State().String()})
		}
	case msgStop:
		ctrl.StopRecording()
	case msgListening:
		var payload struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			c.sendError("invalid listening payload")
			return
		}
		ctrl.SetListening(payload.Enabled)
	case msgPlayback:
		var ack playbackAck
		if err := json.Unmarshal(msg.Data, &ack); err != nil {
			c.sendError("invalid playback payload")
			return
		}
		if ack.Status != playbackStarted {
			c.deliverAck(ack)
		}
	case msgConfig:
		var payload struct {
			Voice string `json:"voice"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			c.sendError("invalid config payload")
			return
		}
		c.setVoice(payload.Voice)
		log.Printf("[live] session=%s config voice=%q", c.sessionID, payload.Voice)
		c.send(msgInfo, map[string]string{"event": "config", "voice": payload.Voice})
	default:
		c.sendError("unsupported message type: " + msg.Type)
	}
}

// forwardMetrics sends at most one snapshot per metricsInterval until the estimator stops.
func (h *Handler) forwardMetrics(c *conn, snapshots <-chan feature.Metrics) {
	var last time.Time
	for m := range snapshots {
		if now := time.Now(); now.Sub(last) >= h.metricsInterval {
			last = now
			c.send(msgMetrics, m)
		}
	}
}

// tickLoop drives the silence timeout when frames stop and keeps the socket alive.
func (h *Handler) tickLoop(ctx context.Context, c *conn, ctrl *turn.Controller) {
	tick := time.NewTicker(h.tickInterval)
	defer tick.Stop()
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			ctrl.Tick()
		case <-ping.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
