package turn

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/zhouzirui/rehearsal/backend/internal/audio/feature"
	"github.com/zhouzirui/rehearsal/backend/internal/model/speech"
)

// Clock abstracts time so the silence timeout and re-arm delay can be driven by tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Reply is the outcome of one submitted clip.
type Reply interface {
	// Empty reports a turn that produced nothing to play (no speech recognised, or text only).
	Empty() bool
	// Play blocks until playback has ended or failed.
	Play(ctx context.Context) error
}

// Responder turns a captured clip into a playable reply.
type Responder interface {
	Respond(ctx context.Context, clip speech.Clip) (Reply, error)
}

// Observer receives controller events. Calls are made while the controller lock is held,
// so implementations must not call back into the Controller.
type Observer interface {
	StateChanged(from, to State)
	TurnFailed(err error)
}

type nopObserver struct{}

func (nopObserver) StateChanged(State, State) {}
func (nopObserver) TurnFailed(error)          {}

// Config tunes capture and turn-taking.
type Config struct {
	SampleRate int
	Threshold  float64
	Silence    time.Duration
	RearmDelay time.Duration
}

// Option customises a Controller.
type Option func(*Controller)

// WithClock replaces the wall clock.
func WithClock(clock Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithObserver registers the event observer.
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

// WithFeatureSink forwards decoded frames to an estimator. Sends never block:
// frames are dropped while the sink is busy.
func WithFeatureSink(sink chan<- []float64) Option {
	return func(c *Controller) { c.sink = sink }
}

// Controller is the turn state machine for one live session.
type Controller struct {
	mu sync.Mutex

	cfg       Config
	clock     Clock
	responder Responder
	observer  Observer
	sink      chan<- []float64
	vad       *VAD

	state     State
	listening bool
	clip      []byte

	turnSeq    uint64
	cancelTurn context.CancelFunc
	stopRearm  func() bool

	ctx    context.Context
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// NewController creates an idle controller. Turns inherit ctx.
func NewController(ctx context.Context, responder Responder, cfg Config, opts ...Option) *Controller {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.RearmDelay <= 0 {
		cfg.RearmDelay = DefaultRearmDelay
	}

	c := &Controller{
		cfg:       cfg,
		clock:     systemClock{},
		responder: responder,
		observer:  nopObserver{},
		vad:       NewVAD(cfg.Threshold, cfg.Silence),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Listening reports whether continuous listening is armed.
func (c *Controller) Listening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listening
}

// StartRecording opens a capture. It is a no-op unless the controller is idle,
// so redundant calls never open a second capture.
func (c *Controller) StartRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked()
}

func (c *Controller) startLocked() bool {
	if c.closed || !c.fireLocked(EventStartRecording) {
		return false
	}
	c.clip = c.clip[:0]
	c.vad.Arm(c.clock.Now())
	return true
}

// Feed accepts one frame of 16-bit LE PCM. Frames always reach the feature sink;
// they are only recorded while the user holds the floor.
func (c *Controller) Feed(pcm []byte) {
	samples := feature.DecodePCM16LE(pcm)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	if c.sink != nil {
		select {
		case c.sink <- samples:
		default:
		}
	}

	if c.state != UserSpeaking {
		return
	}
	c.clip = append(c.clip, pcm...)
	if c.vad.Observe(feature.RMS(samples), c.clock.Now()) {
		c.submitLocked()
	}
}

// Tick re-evaluates the silence timeout when no frames are arriving.
func (c *Controller) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == UserSpeaking && c.vad.Check(c.clock.Now()) {
		c.submitLocked()
	}
}

// StopRecording ends the capture early and submits what was recorded.
func (c *Controller) StopRecording() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == UserSpeaking {
		c.vad.Disarm()
		c.submitLocked()
	}
}

// SetListening toggles continuous listening. Turning it on from idle starts a capture.
// Turning it off force-stops whatever is in flight and discards its result.
func (c *Controller) SetListening(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.listening = on
	if on {
		if c.state == Idle {
			c.startLocked()
		}
		return
	}
	c.cancelRearmLocked()
	c.forceStopLocked()
}

// Close force-stops the controller and waits for the in-flight turn to unwind.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.listening = false
	c.cancelRearmLocked()
	c.forceStopLocked()
	c.closed = true
	c.cancel()
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Controller) fireLocked(e Event) bool {
	next, ok := Next(c.state, e)
	if !ok {
		return false
	}
	prev := c.state
	c.state = next
	c.observer.StateChanged(prev, next)
	return true
}

// submitLocked moves to AIThinking immediately and hands the clip to the responder.
func (c *Controller) submitLocked() {
	if !c.fireLocked(EventCaptureStopped) {
		return
	}

	clip := speech.Clip{Data: c.clip, Format: "pcm", SampleRate: c.cfg.SampleRate}
	c.clip = nil

	c.turnSeq++
	ctx, cancel := context.WithCancel(c.ctx)
	c.cancelTurn = cancel

	c.wg.Add(1)
	go c.runTurn(ctx, c.turnSeq, clip)
}

func (c *Controller) runTurn(ctx context.Context, seq uint64, clip speech.Clip) {
	defer c.wg.Done()

	reply, err := c.responder.Respond(ctx, clip)

	c.mu.Lock()
	if seq != c.turnSeq {
		c.mu.Unlock()
		return
	}
	if err != nil || reply == nil || reply.Empty() {
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[turn] respond failed: %v", err)
			c.observer.TurnFailed(err)
		}
		c.fireLocked(EventTurnAborted)
		c.finishLocked()
		c.mu.Unlock()
		return
	}
	c.fireLocked(EventPlaybackStarted)
	c.mu.Unlock()

	playErr := reply.Play(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.turnSeq {
		return
	}
	if playErr != nil {
		log.Printf("[turn] playback failed: %v", playErr)
		c.observer.TurnFailed(playErr)
		c.fireLocked(EventPlaybackFailed)
	} else {
		c.fireLocked(EventPlaybackEnded)
	}
	c.finishLocked()
}

// finishLocked closes out a turn and schedules the next capture when listening is armed.
func (c *Controller) finishLocked() {
	if c.cancelTurn != nil {
		c.cancelTurn()
		c.cancelTurn = nil
	}
	if !c.listening || c.closed {
		return
	}

	c.cancelRearmLocked()
	c.stopRearm = c.clock.AfterFunc(c.cfg.RearmDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.stopRearm = nil
		if c.listening && c.state == Idle {
			c.startLocked()
		}
	})
}

func (c *Controller) forceStopLocked() {
	switch c.state {
	case UserSpeaking:
		c.vad.Disarm()
		c.clip = nil
	case AIThinking, AISpeaking:
		c.turnSeq++
		if c.cancelTurn != nil {
			c.cancelTurn()
			c.cancelTurn = nil
		}
	default:
		return
	}
	c.fireLocked(EventForceStop)
}

func (c *Controller) cancelRearmLocked() {
	if c.stopRearm != nil {
		c.stopRearm()
		c.stopRearm = nil
	}
}
