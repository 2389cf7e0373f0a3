package live

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/zhouzirui/rehearsal/backend/internal/model/speech"
	"github.com/zhouzirui/rehearsal/backend/internal/service/exchange"
	"github.com/zhouzirui/rehearsal/backend/internal/turn"
)

// ErrPlaybackTimeout is returned when the client never reports the end of a segment.
var ErrPlaybackTimeout = errors.New("playback ack timed out")

// responder adapts the exchange orchestrator to the turn controller.
type responder struct {
	c         *conn
	exchanges Exchanger
	timeout   time.Duration
	turns     atomic.Uint64
}

var _ turn.Responder = (*responder)(nil)

type transcriptData struct {
	Turn     uint64   `json:"turn"`
	UserText string   `json:"userText"`
	AIText   string   `json:"aiText"`
	Cues     []string `json:"cues"`
	TextOnly bool     `json:"textOnly"`
}

// Respond runs one turn. A clip without speech becomes an empty reply so the
// controller goes back to idle without reporting an error.
func (r *responder) Respond(ctx context.Context, clip speech.Clip) (turn.Reply, error) {
	result, err := r.exchanges.RunTurn(ctx, r.c.sessionID, clip, exchange.WithVoice(r.c.voice()))
	if errors.Is(err, exchange.ErrNoSpeech) {
		log.Printf("[live] session=%s no speech in clip (%d bytes)", r.c.sessionID, len(clip.Data))
		r.c.send(msgInfo, map[string]string{"event": "noSpeech"})
		return emptyReply{}, nil
	}
	if err != nil {
		return nil, err
	}

	id := r.turns.Add(1)
	r.c.send(msgTranscript, transcriptData{
		Turn:     id,
		UserText: result.UserText,
		AIText:   result.AIText,
		Cues:     result.Cues,
		TextOnly: result.TextOnly,
	})
	return &reply{c: r.c, turn: id, segments: result.Segments, timeout: r.timeout}, nil
}

type emptyReply struct{}

func (emptyReply) Empty() bool                { return true }
func (emptyReply) Play(context.Context) error { return nil }

// reply streams segments to the browser, which plays them and acks each one.
type reply struct {
	c        *conn
	turn     uint64
	segments []exchange.Segment
	timeout  time.Duration
}

type segmentData struct {
	Turn  uint64 `json:"turn"`
	Index int    `json:"index"`
	exchange.Segment
}

func (r *reply) Empty() bool {
	return len(r.segments) == 0
}

func (r *reply) Play(ctx context.Context) error {
	r.c.beginPlayback(r.turn)
	defer r.c.endPlayback()
	return exchange.Play(ctx, r.segments, r)
}

// PlaySegment sends one segment and blocks until the client reports it ended.
func (r *reply) PlaySegment(ctx context.Context, index int, seg exchange.Segment) error {
	if err := r.c.send(msgSegment, segmentData{Turn: r.turn, Index: index, Segment: seg}); err != nil {
		return err
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return ErrPlaybackTimeout
		case ack := <-r.c.acks:
			if ack.Segment != index {
				continue
			}
			switch ack.Status {
			case playbackEnded:
				return nil
			case playbackError:
				return fmt.Errorf("client playback: %s", ack.Error)
			}
		}
	}
}

// observer reports controller events to the client. It runs under the
// controller lock and only writes to the socket.
type observer struct {
	c *conn
}

func (o observer) StateChanged(from, to turn.State) {
	o.c.send(msgState, map[string]string{"from": from.String(), "to": to.String()})
}

func (o observer) TurnFailed(err error) {
	switch {
	case errors.Is(err, exchange.ErrGeneration):
		o.c.sendError("The AI could not reply. Please try again.")
	case errors.Is(err, ErrPlaybackTimeout):
		o.c.sendError("Playback did not finish.")
	default:
		o.c.sendError("The turn failed. Please try again.")
	}
}
