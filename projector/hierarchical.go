package projector

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/janelia-flyem/volview/viewer"
)

// unresolvedMask marks a pixel no pass has touched yet. It must compare
// greater than any real mipmap level a caller will ever pass in; levels
// fit comfortably under a byte.
const unresolvedMask = 255

var errCancelled = errors.New("projector: cancelled")

// Hierarchical walks a
// caller-supplied list of mipmap levels (finest to coarsest) and, for every
// still-unresolved pixel, samples the source at decreasing resolution
// until something resident is found or the level list is exhausted.
type Hierarchical struct {
	// sources[i] samples at levels[i]; both finest-to-coarsest, matching
	// the caller-narrowed list (normally bestLevel..coarsest, or just
	// {bestLevel, coarsest} right after a timepoint change). One
	// InterpolatedSource per level because each is already bound to that
	// level's mipmap data.
	sources []viewer.InterpolatedSource
	levels  []int

	convert    viewer.Converter
	target     *viewer.Image
	numWorkers int

	mask []uint8

	cancelled atomic.Bool
	valid     atomic.Bool
	lastNanos atomic.Int64
}

// NewHierarchical constructs a Hierarchical projector. sources and levels
// must have the same length and share index alignment: sources[i] is the
// InterpolatedSource for levels[i], ordered finest level first. Each
// Map pass is split across up to numWorkers goroutines.
func NewHierarchical(sources []viewer.InterpolatedSource, levels []int, convert viewer.Converter, target *viewer.Image, numWorkers int) *Hierarchical {
	if numWorkers < 1 {
		numWorkers = 1
	}
	mask := make([]uint8, target.Width*target.Height)
	for i := range mask {
		mask[i] = unresolvedMask
	}
	return &Hierarchical{
		sources:    append([]viewer.InterpolatedSource(nil), sources...),
		levels:     append([]int(nil), levels...),
		convert:    convert,
		target:     target,
		numWorkers: numWorkers,
		mask:       mask,
	}
}

// Map implements Projector.Map, running one pass per supplied level,
// finest first, stopping early once every pixel has resolved at the
// finest (best) level or cancellation fires.
func (h *Hierarchical) Map(ctx context.Context, clearUntouchedTargetPixels bool) bool {
	start := time.Now()
	defer func() { h.lastNanos.Store(int64(time.Since(start))) }()

	// A cancellation only aborts the Map call it raced with; the renderer
	// may re-map the same projector on the next frame to refine further.
	h.cancelled.Store(false)

	if len(h.levels) == 0 {
		h.valid.Store(true)
		return true
	}
	bestLevel := uint8(h.levels[0])

	fullyResolved := false
	for i, passLevel := range h.levels {
		if h.cancelled.Load() {
			return false
		}
		if err := h.pass(ctx, h.sources[i], passLevel); err != nil {
			return false
		}
		if h.maskUniformly(bestLevel) {
			fullyResolved = true
			break
		}
	}

	if fullyResolved {
		h.valid.Store(true)
	} else if clearUntouchedTargetPixels {
		for i, m := range h.mask {
			if m == unresolvedMask {
				h.target.Pix[i] = 0
			}
		}
	}
	return true
}

func (h *Hierarchical) maskUniformly(level uint8) bool {
	for _, m := range h.mask {
		if m != level {
			return false
		}
	}
	return true
}

// pass runs one sweep at passLevel, writing only pixels whose mask is
// still coarser (numerically greater) than passLevel, partitioned into row
// ranges across h.numWorkers goroutines.
func (h *Hierarchical) pass(ctx context.Context, source viewer.InterpolatedSource, passLevel int) error {
	w, ht := h.target.Width, h.target.Height
	if w == 0 || ht == 0 {
		return nil
	}
	rowsPerWorker := (ht + h.numWorkers - 1) / h.numWorkers

	g, gctx := errgroup.WithContext(ctx)
	for worker := 0; worker < h.numWorkers; worker++ {
		y0 := worker * rowsPerWorker
		y1 := y0 + rowsPerWorker
		if y1 > ht {
			y1 = ht
		}
		if y0 >= y1 {
			continue
		}
		g.Go(func() error {
			pl := uint8(passLevel)
			for y := y0; y < y1; y++ {
				if h.cancelled.Load() {
					return errCancelled
				}
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				rowOffset := y * w
				for x := 0; x < w; x++ {
					idx := rowOffset + x
					if h.mask[idx] <= pl {
						continue
					}
					raw, ok := source.Sample(ctx, x, y)
					if !ok {
						continue
					}
					h.target.Pix[idx] = h.convert(raw)
					h.mask[idx] = pl
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// Cancel implements Projector.Cancel.
func (h *Hierarchical) Cancel() {
	h.cancelled.Store(true)
}

// IsValid implements Projector.IsValid.
func (h *Hierarchical) IsValid() bool {
	return h.valid.Load()
}

// LastFrameNanos implements Projector.LastFrameNanos.
func (h *Hierarchical) LastFrameNanos() int64 {
	return h.lastNanos.Load()
}
