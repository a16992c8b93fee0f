package projector

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/janelia-flyem/volview/viewer"
)

// Accumulate maps a set of per-source sub-projectors into their own
// images, then sums the ARGB channels of every source's image into target
// with per-channel saturation to 255.
type Accumulate struct {
	subs       []Projector
	subImages  []*viewer.Image
	target     *viewer.Image
	numWorkers int

	cancelled atomic.Bool
	lastNanos atomic.Int64
}

// NewAccumulate constructs an Accumulate projector: subs[i] renders into
// subImages[i], and the combined result is written to target.
func NewAccumulate(subs []Projector, subImages []*viewer.Image, target *viewer.Image, numWorkers int) *Accumulate {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Accumulate{subs: subs, subImages: subImages, target: target, numWorkers: numWorkers}
}

// Map implements Projector.Map: runs every sub-projector concurrently,
// then combines their images if every one succeeded.
func (a *Accumulate) Map(ctx context.Context, clearUntouchedTargetPixels bool) bool {
	start := time.Now()
	defer func() { a.lastNanos.Store(int64(time.Since(start))) }()

	a.cancelled.Store(false)
	results := make([]bool, len(a.subs))
	g, gctx := errgroup.WithContext(ctx)
	for i, sub := range a.subs {
		i, sub := i, sub
		g.Go(func() error {
			results[i] = sub.Map(gctx, clearUntouchedTargetPixels)
			return nil
		})
	}
	_ = g.Wait()

	for _, ok := range results {
		if !ok {
			return false
		}
	}
	if a.cancelled.Load() {
		return false
	}

	a.combine()
	return true
}

func (a *Accumulate) combine() {
	n := len(a.target.Pix)
	if n == 0 {
		return
	}
	chunk := (n + a.numWorkers - 1) / a.numWorkers

	var wg errgroup.Group
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		start, end := start, end
		wg.Go(func() error {
			for idx := start; idx < end; idx++ {
				var a8, r8, g8, b8 uint32
				for _, img := range a.subImages {
					if idx >= len(img.Pix) {
						continue
					}
					px := img.Pix[idx]
					a8 = saturatingAdd(a8, (px>>24)&0xff)
					r8 = saturatingAdd(r8, (px>>16)&0xff)
					g8 = saturatingAdd(g8, (px>>8)&0xff)
					b8 = saturatingAdd(b8, px&0xff)
				}
				a.target.Pix[idx] = a8<<24 | r8<<16 | g8<<8 | b8
			}
			return nil
		})
	}
	_ = wg.Wait()
}

func saturatingAdd(sum, v uint32) uint32 {
	sum += v
	if sum > 255 {
		return 255
	}
	return sum
}

// Cancel cancels every sub-projector in addition to this one.
func (a *Accumulate) Cancel() {
	a.cancelled.Store(true)
	for _, sub := range a.subs {
		sub.Cancel()
	}
}

// IsValid is true only once every sub-projector reports valid.
func (a *Accumulate) IsValid() bool {
	for _, sub := range a.subs {
		if !sub.IsValid() {
			return false
		}
	}
	return true
}

func (a *Accumulate) LastFrameNanos() int64 {
	return a.lastNanos.Load()
}
