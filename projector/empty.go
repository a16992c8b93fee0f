package projector

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/janelia-flyem/volview/viewer"
)

// Empty is the zero-visible-sources projector: it zeroes the target and is
// immediately and permanently valid.
type Empty struct {
	target    *viewer.Image
	lastNanos atomic.Int64
}

// NewEmpty returns an Empty projector writing to target.
func NewEmpty(target *viewer.Image) *Empty {
	return &Empty{target: target}
}

func (e *Empty) Map(ctx context.Context, clearUntouchedTargetPixels bool) bool {
	start := time.Now()
	for i := range e.target.Pix {
		e.target.Pix[i] = 0
	}
	e.lastNanos.Store(int64(time.Since(start)))
	return true
}

func (e *Empty) Cancel()               {}
func (e *Empty) IsValid() bool         { return true }
func (e *Empty) LastFrameNanos() int64 { return e.lastNanos.Load() }
