package render

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/janelia-flyem/volview/viewer"
)

// TestRequestRepaintNeverBlocks exercises the coalescing contract: calling
// RequestRepaint any number of times before the loop drains it must never
// block, since a single pending slot absorbs bursts.
func TestRequestRepaintNeverBlocks(t *testing.T) {
	target := &fakeTarget{w: 2, h: 2}
	r := newTestRenderer(t, target, int64(50*time.Millisecond))
	state := &fakeState{delay: 0}

	loop := NewPainterLoop(r, func() viewer.State { return state })
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			loop.RequestRepaint()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("RequestRepaint blocked under a burst of calls")
	}
}

// TestPainterLoopRunServicesPendingRepaint confirms Run drains a pending
// wakeup by actually calling renderer.Paint.
func TestPainterLoopRunServicesPendingRepaint(t *testing.T) {
	target := &fakeTarget{w: 2, h: 2}
	r := newTestRenderer(t, target, int64(50*time.Millisecond))
	state := &fakeState{delay: 0}

	var paints int64
	loop := NewPainterLoop(r, func() viewer.State {
		atomic.AddInt64(&paints, 1)
		return state
	})

	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)

	loop.RequestRepaint()
	loop.RequestRepaint()
	loop.RequestRepaint()

	time.Sleep(50 * time.Millisecond)
	cancel()

	if atomic.LoadInt64(&paints) == 0 {
		t.Fatalf("expected at least one paint to have been serviced")
	}
}
