// Package viewer defines the external collaborators the rendering core
// consumes but never implements: the interpolated volume sampler, the
// canvas render target, the painter thread signal, and viewer state.
// Concrete implementations live outside this module (window toolkit,
// on-disk formats, affine math).
package viewer

import "context"

// Interpolation selects how an InterpolatedSource evaluates between
// samples.
type Interpolation int

const (
	NearestNeighbor Interpolation = iota
	NLinear
)

// InterpolatedSource is fixed to one (timepoint, source, mipmap level) and
// sampled once per unresolved pixel per projector pass. It transitively
// touches a VolatileBlockGrid and BlockCache; ok=false means the backing
// block is not yet resident at this level.
type InterpolatedSource interface {
	Sample(ctx context.Context, px, py int) (raw uint64, ok bool)
}

// Converter maps one raw sample to a packed 0xAARRGGBB pixel, the
// core-side stand-in for a source's intensity-to-color transfer function.
type Converter func(raw uint64) uint32

// Image is a screen-space ARGB pixel buffer, packed 0xAARRGGBB per pixel
// in row-major order.
type Image struct {
	Width, Height int
	Pix           []uint32
}

// NewImage allocates a zeroed w×h image.
func NewImage(w, h int) *Image {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return &Image{Width: w, Height: h, Pix: make([]uint32, w*h)}
}

// SameSize reports whether img has the given dimensions.
func (img *Image) SameSize(w, h int) bool {
	return img != nil && img.Width == w && img.Height == h
}

// RenderTarget is the canvas collaborator paint publishes finished images
// to. SetImage installs img as the currently displayed image and returns
// whatever image was previously displayed, for the renderer to recycle.
type RenderTarget interface {
	Width() int
	Height() int
	SetImage(img *Image) *Image
}

// PainterThread is signalled whenever a repaint should eventually happen;
// it is expected to schedule a call to a MultiResolutionRenderer's Paint on
// its own thread.
type PainterThread interface {
	RequestRepaint()
}

// State is the external viewer-state collaborator carrying current
// timepoint, visible sources, and best-level selection.
type State interface {
	CurrentTimepoint() int32
	VisibleSourceIndices() []int32
	Interpolation() Interpolation

	// BestMipmapLevel returns the coarsest mipmap level whose projected
	// footprint is still <= 1 screen pixel for sourceIndex at screenScale.
	BestMipmapLevel(screenScale float64, sourceIndex int32) int

	// MaxLevel returns the coarsest level available for sourceIndex.
	MaxLevel(sourceIndex int32) int

	// Source returns the InterpolatedSource collaborator for sourceIndex,
	// already composed with the current viewer transform and timepoint.
	Source(sourceIndex int32, level int) InterpolatedSource

	// SourceConverter returns the ARGB converter for sourceIndex.
	SourceConverter(sourceIndex int32) Converter
}
