// Package loader defines the narrow BlockLoader boundary the core renders
// through, and bundles two reference implementations: an in-memory loader
// for tests and demos, and a Badger-backed disk loader. Networked and
// bulk-format loaders are external collaborators implementing the same
// interface.
package loader

import (
	"context"

	"github.com/janelia-flyem/volview/blockkey"
)

// BlockLoader is consumed, never implemented, by the core.
// LoadArray may block on real I/O and must return promptly with
// ctx.Err() if ctx is cancelled mid-fetch; the cache's BLOCKING strategy
// retries on a plain interruption and gives up on any other error,
// leaving the block a placeholder for the next caller to retry.
type BlockLoader interface {
	// BytesPerElement is the size in bytes of one sample, used to size
	// placeholder payloads.
	BytesPerElement() int

	// LoadArray fetches one block's samples. dims and origin describe the
	// block's shape and position in the given mipmap level's voxel grid.
	LoadArray(ctx context.Context, timepoint, setup, level int32, dims [3]int, origin [3]int64) (blockkey.Payload, error)

	// EmptyArray returns an invalid placeholder payload sized for dims,
	// used to populate a freshly created Entry before it has been loaded.
	EmptyArray(dims [3]int) blockkey.Payload
}
