package render

import (
	"context"

	"github.com/janelia-flyem/volview/viewer"
)

// StateProvider returns the viewer.State a PainterLoop should paint
// against for its next Paint call. It is polled once per coalesced
// repaint, after the loop wakes, so the painter always sees the latest
// state rather than whatever was current when RequestRepaint fired.
type StateProvider func() viewer.State

// PainterLoop is a concrete viewer.PainterThread that coalesces
// back-to-back RequestRepaint calls into a single pending paint: a storm
// of UI events (mouse drags, timepoint scrubs) produces at most one Paint
// call once the loop is free, not one per event.
type PainterLoop struct {
	renderer *Renderer
	states   StateProvider
	wake     chan struct{}
}

// NewPainterLoop returns a PainterLoop driving renderer.Paint against
// whatever viewer.State states() returns at the time each coalesced
// repaint is serviced.
func NewPainterLoop(renderer *Renderer, states StateProvider) *PainterLoop {
	return &PainterLoop{
		renderer: renderer,
		states:   states,
		wake:     make(chan struct{}, 1),
	}
}

// RequestRepaint implements viewer.PainterThread. It never blocks: if a
// paint is already pending, this call is absorbed into it.
func (pl *PainterLoop) RequestRepaint() {
	select {
	case pl.wake <- struct{}{}:
	default:
	}
}

// Run services coalesced repaints until ctx is cancelled, calling
// renderer.Paint once per wakeup. Intended to run on its own goroutine so
// paints stay serial.
func (pl *PainterLoop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-pl.wake:
			pl.renderer.Paint(ctx, pl.states())
		}
	}
}
