// Package render implements the multi-resolution renderer: a
// coarse-to-fine screen-scale ladder with triple-buffered render targets,
// cancellation, and an adaptive scale-index controller that trades
// resolution for a bounded per-frame render time.
package render

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/janelia-flyem/volview/blockcache"
	"github.com/janelia-flyem/volview/projector"
	"github.com/janelia-flyem/volview/viewer"
	"github.com/janelia-flyem/volview/vvlog"
)

// scaleTransform is the per-scale affine from canvas pixels to render-image
// pixels, with half-pixel centering.
type scaleTransform struct {
	ScaleX, ScaleY         float64
	TranslateX, TranslateY float64
}

// Config configures a Renderer at construction. Configuration errors (an
// empty or non-descending scale ladder) are fatal and surfaced here.
type Config struct {
	Display       viewer.RenderTarget
	PainterThread viewer.PainterThread
	Cache         *blockcache.Cache

	// ScreenScales must be strictly descending with ScreenScales[0] <= 1.0.
	ScreenScales      []float64
	TargetRenderNanos int64

	// DoubleBuffered allocates three images per scale and rotates through
	// them so the displayed image is never written (the name is kept for
	// historical reasons). When false, exactly one image per scale is used.
	DoubleBuffered bool

	NumRenderingThreads int

	// UseVolatileIfAvailable selects the multi-level hierarchical pass
	// list; when false, a source renders only its best level once, with
	// no coarser fallback.
	UseVolatileIfAvailable bool

	// IoBudgetPerFrame is the per-level nanosecond budget installed before
	// each frame's BUDGETED loads; monotone non-increasing.
	IoBudgetPerFrame []int64

	// PrefetchCells is a best-effort hint; this implementation accepts it
	// but does not act on it.
	PrefetchCells bool
}

// Renderer drives the coarse-to-fine rendering loop: every Paint renders
// one pass at the requested scale, publishes to the display if successful,
// then schedules either the next finer scale or another pass at the same
// scale until the projector is fully valid.
type Renderer struct {
	mu sync.Mutex

	display       viewer.RenderTarget
	painterThread viewer.PainterThread
	cache         *blockcache.Cache

	screenScales           []float64
	targetRenderNanos      int64
	doubleBuffered         bool
	numRenderingThreads    int
	useVolatileIfAvailable bool
	ioBudgetPerFrame       []int64

	canvasW, canvasH int
	screenImages     [][]*viewer.Image // [scaleIndex][bufferIndex]
	imageToRenderID  map[*viewer.Image]int
	renderIDQueue    []int
	scaleTransforms  []scaleTransform

	renderImages          [][]*viewer.Image // [scaleIndex][sourceSlot], only used with >1 visible source
	numRenderImageSources int

	currentScale      int
	maxScale          int
	requestedScale    int
	mayBeCancelled    bool
	newFrameRequest   bool
	previousTimepoint int32
	visibleSetups     map[int32]bool

	currentProjector projector.Projector
}

// New validates cfg and constructs a Renderer.
func New(cfg Config) (*Renderer, error) {
	if len(cfg.ScreenScales) == 0 {
		return nil, errors.New("render: screenScales must be non-empty")
	}
	for i, s := range cfg.ScreenScales {
		if i == 0 && s > 1.0 {
			return nil, fmt.Errorf("render: screenScales[0]=%v must be <= 1.0", s)
		}
		if i > 0 && s >= cfg.ScreenScales[i-1] {
			return nil, fmt.Errorf("render: screenScales must be strictly descending, got %v at index %d", cfg.ScreenScales, i)
		}
	}
	numThreads := cfg.NumRenderingThreads
	if numThreads < 1 {
		numThreads = 1
	}
	maxScale := len(cfg.ScreenScales) - 1
	return &Renderer{
		display:                cfg.Display,
		painterThread:          cfg.PainterThread,
		cache:                  cfg.Cache,
		screenScales:           append([]float64(nil), cfg.ScreenScales...),
		targetRenderNanos:      cfg.TargetRenderNanos,
		doubleBuffered:         cfg.DoubleBuffered,
		numRenderingThreads:    numThreads,
		useVolatileIfAvailable: cfg.UseVolatileIfAvailable,
		ioBudgetPerFrame:       append([]int64(nil), cfg.IoBudgetPerFrame...),
		imageToRenderID:        make(map[*viewer.Image]int),
		currentScale:           -1,
		maxScale:               maxScale,
		requestedScale:         maxScale,
		mayBeCancelled:         true,
		previousTimepoint:      -1,
	}, nil
}

// SetPainterThread installs the viewer.PainterThread a Renderer signals for
// progressive refinement, mirroring blockcache.Cache.SetPauser: a
// PainterLoop wraps an already-constructed Renderer, so the two cannot be
// wired in a single New call.
func (r *Renderer) SetPainterThread(pt viewer.PainterThread) {
	r.mu.Lock()
	r.painterThread = pt
	r.mu.Unlock()
}

// MaxScale reports the current coarsest-allowed scale index, always within
// [0, len(screenScales)-1].
func (r *Renderer) MaxScale() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxScale
}

// CurrentScale reports the scale index of the most recently started paint.
func (r *Renderer) CurrentScale() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentScale
}

// RequestRepaint requests a brand new frame at the current maxScale,
// implying cache.PrepareNextFrame on the next paint.
func (r *Renderer) RequestRepaint() {
	r.mu.Lock()
	r.newFrameRequest = true
	scale := r.maxScale
	r.mu.Unlock()
	r.RequestRepaintAt(scale)
}

// RequestRepaintAt requests a repaint at a specific scale index without
// forcing a new frame (used internally to progressively refine within the
// same frame).
func (r *Renderer) RequestRepaintAt(scaleIndex int) {
	r.mu.Lock()
	if r.mayBeCancelled && r.currentProjector != nil {
		r.currentProjector.Cancel()
	}
	r.requestedScale = scaleIndex
	r.mu.Unlock()
	if r.painterThread != nil {
		r.painterThread.RequestRepaint()
	}
}

// checkResize recreates screenImages/scaleTransforms if the canvas size
// changed, and reports whether it did.
func (r *Renderer) checkResize() bool {
	w, h := r.display.Width(), r.display.Height()
	if r.screenImages != nil && r.canvasW == w && r.canvasH == h {
		return false
	}
	r.canvasW, r.canvasH = w, h

	bufCount := 1
	if r.doubleBuffered {
		bufCount = 3
	}
	r.renderIDQueue = r.renderIDQueue[:0]
	for b := 0; b < bufCount; b++ {
		r.renderIDQueue = append(r.renderIDQueue, b)
	}
	r.imageToRenderID = make(map[*viewer.Image]int)
	r.screenImages = make([][]*viewer.Image, len(r.screenScales))
	r.scaleTransforms = make([]scaleTransform, len(r.screenScales))

	for i, s := range r.screenScales {
		iw := int(s * float64(w))
		ih := int(s * float64(h))
		bufs := make([]*viewer.Image, bufCount)
		for b := 0; b < bufCount; b++ {
			img := viewer.NewImage(iw, ih)
			bufs[b] = img
			r.imageToRenderID[img] = b
		}
		r.screenImages[i] = bufs

		xScale := float64(0)
		yScale := float64(0)
		if w > 0 {
			xScale = float64(iw) / float64(w)
		}
		if h > 0 {
			yScale = float64(ih) / float64(h)
		}
		r.scaleTransforms[i] = scaleTransform{
			ScaleX: xScale, ScaleY: yScale,
			TranslateX: 0.5*xScale - 0.5, TranslateY: 0.5*yScale - 0.5,
		}
	}
	return true
}

// checkRenewRenderImages allocates per-source render images when the
// visible-source count requires them (more than one visible source needs
// a per-source accumulate stage); it reports whether it reallocated.
func (r *Renderer) checkRenewRenderImages(numVisibleSources int) bool {
	n := 0
	if numVisibleSources > 1 {
		n = numVisibleSources
	}
	sameDims := n == r.numRenderImageSources
	if sameDims && (n == 0 || (len(r.renderImages) > 0 && len(r.renderImages[0]) == n &&
		r.renderImages[0][0].SameSize(r.screenImages[0][0].Width, r.screenImages[0][0].Height))) {
		return false
	}
	r.renderImages = make([][]*viewer.Image, len(r.screenScales))
	for i, bufs := range r.screenImages {
		w, h := bufs[0].Width, bufs[0].Height
		row := make([]*viewer.Image, n)
		for j := 0; j < n; j++ {
			row[j] = viewer.NewImage(w, h)
		}
		r.renderImages[i] = row
	}
	r.numRenderImageSources = n
	return true
}

// createProjector builds a fresh projector for the current visible-source
// set at scaleIndex, writing into target.
func (r *Renderer) createProjector(state viewer.State, scaleIndex int, target *viewer.Image) projector.Projector {
	r.cache.InitIoBudget(r, nil) // clear budget so prefetching doesn't wait for loading blocks.

	visible := state.VisibleSourceIndices()
	var proj projector.Projector
	switch {
	case len(visible) == 0:
		proj = projector.NewEmpty(target)
	case len(visible) == 1:
		proj = r.createSingleSourceProjector(state, visible[0], scaleIndex, target)
	default:
		subs := make([]projector.Projector, len(visible))
		subImages := make([]*viewer.Image, len(visible))
		for j, srcIdx := range visible {
			img := r.renderImages[scaleIndex][j]
			subs[j] = r.createSingleSourceProjector(state, srcIdx, scaleIndex, img)
			subImages[j] = img
		}
		proj = projector.NewAccumulate(subs, subImages, target, r.numRenderingThreads)
	}

	r.previousTimepoint = state.CurrentTimepoint()
	r.cache.InitIoBudget(r, r.ioBudgetPerFrame)
	return proj
}

func (r *Renderer) createSingleSourceProjector(state viewer.State, sourceIndex int32, scaleIndex int, target *viewer.Image) projector.Projector {
	st := r.scaleTransforms[scaleIndex]
	bestLevel := state.BestMipmapLevel(st.ScaleX, sourceIndex)
	maxLevel := state.MaxLevel(sourceIndex)
	convert := state.SourceConverter(sourceIndex)
	timepoint := state.CurrentTimepoint()

	var levels []int
	switch {
	case !r.useVolatileIfAvailable:
		levels = []int{bestLevel}
	case timepoint != r.previousTimepoint:
		// Scrolling through time: restrict to {bestLevel, coarsest} so we
		// spend at most two passes on data we expect to miss entirely.
		levels = []int{bestLevel}
		if maxLevel != bestLevel {
			levels = append(levels, maxLevel)
		}
		r.newFrameRequest = true
	default:
		for lvl := bestLevel; lvl <= maxLevel; lvl++ {
			levels = append(levels, lvl)
		}
	}

	sources := make([]viewer.InterpolatedSource, len(levels))
	for i, lvl := range levels {
		sources[i] = state.Source(sourceIndex, lvl)
	}
	return projector.NewHierarchical(sources, levels, convert, target, r.numRenderingThreads)
}

// Paint renders one pass and reports whether it completed without
// cancellation. It is intended to be called serially from a single painter
// goroutine.
func (r *Renderer) Paint(ctx context.Context, state viewer.State) bool {
	if r.display.Width() <= 0 || r.display.Height() <= 0 {
		return false
	}

	r.mu.Lock()
	resized := r.checkResize()
	visible := state.VisibleSourceIndices()
	r.checkRenewRenderImages(len(visible))
	r.releaseHiddenSources(visible)

	r.mayBeCancelled = r.requestedScale < r.maxScale

	if r.newFrameRequest {
		r.cache.PrepareNextFrame()
	}
	createNew := r.newFrameRequest || resized || r.requestedScale != r.currentScale
	r.newFrameRequest = false

	var target *viewer.Image
	var renderID int
	var proj projector.Projector
	if createNew {
		renderID = r.renderIDQueue[0]
		r.currentScale = r.requestedScale
		target = r.screenImages[r.currentScale][renderID]
		proj = r.createProjector(state, r.currentScale, target)
		r.currentProjector = proj
	} else {
		proj = r.currentProjector
	}
	r.mu.Unlock()

	frame := vvlog.StartFrameTimer()
	success := proj.Map(ctx, createNew)
	renderNanos := int64(frame.Elapsed())
	if ln := proj.LastFrameNanos(); ln > 0 {
		renderNanos = ln
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	frame.Logf(vvlog.Debug, "painted scale=%d maxScale=%d success=%v valid=%v", r.currentScale, r.maxScale, success, proj.IsValid())

	if success {
		if createNew {
			prev := r.display.SetImage(target)
			if r.doubleBuffered {
				r.renderIDQueue = r.renderIDQueue[1:]
				if id, ok := r.imageToRenderID[prev]; ok {
					r.renderIDQueue = append(r.renderIDQueue, id)
				}
			}
			r.adaptScale(renderNanos)
		}

		if r.currentScale > 0 {
			r.requestRepaintAtLocked(r.currentScale - 1)
		} else if !proj.IsValid() {
			time.Sleep(time.Millisecond)
			r.requestRepaintAtLocked(r.currentScale)
		}
	}

	return success
}

// adaptScale coarsens maxScale when a full-scale frame ran over the target
// render time and refines it when frames finish well under it. Must be
// called with r.mu held.
func (r *Renderer) adaptScale(renderNanos int64) {
	switch {
	case r.currentScale == r.maxScale:
		if renderNanos > r.targetRenderNanos && r.maxScale < len(r.screenScales)-1 {
			r.maxScale++
		} else if renderNanos < r.targetRenderNanos/3 && r.maxScale > 0 {
			r.maxScale--
		}
	case r.currentScale == r.maxScale-1:
		if renderNanos < r.targetRenderNanos && r.maxScale > 0 {
			r.maxScale--
		}
	}
}

// releaseHiddenSources tells the cache to drop blocks for setups that were
// visible on a previous frame but no longer are. Must be called with r.mu
// held.
func (r *Renderer) releaseHiddenSources(visible []int32) {
	active := make(map[int32]bool, len(visible))
	for _, s := range visible {
		active[s] = true
	}
	shrunk := false
	for s := range r.visibleSetups {
		if !active[s] {
			shrunk = true
			break
		}
	}
	if shrunk {
		r.cache.Cleanup(active)
	}
	r.visibleSetups = active
}

// requestRepaintAtLocked is RequestRepaintAt's body, for use when r.mu is
// already held (Paint calls it while finishing a frame).
func (r *Renderer) requestRepaintAtLocked(scaleIndex int) {
	if r.mayBeCancelled && r.currentProjector != nil {
		r.currentProjector.Cancel()
	}
	r.requestedScale = scaleIndex
	if r.painterThread != nil {
		r.painterThread.RequestRepaint()
	}
}
