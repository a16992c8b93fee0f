// Package projector implements mask-driven multi-pass compositors that
// build a best-effort screen image out of whatever mipmap data is
// currently resident, without ever blocking on I/O themselves.
package projector

import "context"

// Projector is the contract shared by the Empty, Hierarchical and
// Accumulate variants; the renderer holds whichever one the current frame
// needs behind this interface.
type Projector interface {
	// Map performs one call's worth of passes (a Hierarchical projector may
	// run several internally) and reports whether it completed without
	// cancellation. clearUntouchedTargetPixels, when true and the
	// projector did not reach full validity, zeroes pixels that never
	// received any sample across the whole call.
	Map(ctx context.Context, clearUntouchedTargetPixels bool) bool

	// Cancel requests that the Map call in progress return early. Map
	// clears any pending request on entry, so a Cancel issued while no Map
	// is running does not affect the next call. It is safe to call from
	// any goroutine, any number of times.
	Cancel()

	// IsValid is sticky-true once a Map call resolved every pixel.
	IsValid() bool

	// LastFrameNanos reports the wall-clock duration of the most recently
	// completed Map call.
	LastFrameNanos() int64
}
