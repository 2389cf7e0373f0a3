package exchange

import (
	"context"
	"fmt"
)

// Player plays one segment and returns once it has ended.
type Player interface {
	PlaySegment(ctx context.Context, index int, seg Segment) error
}

// Play runs segments strictly in order. Segment k+1 starts only after segment k
// has ended; the first error ends playback.
func Play(ctx context.Context, segments []Segment, player Player) error {
	for i, seg := range segments {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := player.PlaySegment(ctx, i, seg); err != nil {
			return fmt.Errorf("segment %d (%s): %w", i, seg.Kind, err)
		}
	}
	return nil
}
