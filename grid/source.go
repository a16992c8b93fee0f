package grid

import (
	"context"

	"github.com/janelia-flyem/volview/blockcache"
)

// VoxelProjector maps a screen pixel to a voxel-space coordinate under
// whatever affine transform the viewer currently has in effect. It is pure
// geometry, supplied by the caller.
type VoxelProjector func(px, py int) (vx, vy, vz int64)

// Source adapts a Grid into the projector package's sampling contract
// using nearest-neighbor selection: it resolves a screen pixel to a voxel
// via Project, locates the owning block through Grid, and extracts
// BytesPerVoxel raw bytes from that block's payload. It is the reference
// sampler this module ships; real interpolation (tri-linear, etc.) lives
// outside alongside the affine math.
type Source struct {
	Grid          *Grid
	Project       VoxelProjector
	Strategy      blockcache.Strategy
	Opts          blockcache.StrategyOpts
	BytesPerVoxel int
}

// Sample implements viewer.InterpolatedSource.
func (s *Source) Sample(ctx context.Context, px, py int) (uint64, bool) {
	vx, vy, vz := s.Project(px, py)
	coords, localOffset, ok := s.Grid.Layout.Locate([3]int64{vx, vy, vz})
	if !ok {
		return 0, false
	}
	block := s.Grid.GetByCoords(ctx, coords, s.Strategy, s.Opts)
	if block.IsPlaceholder() {
		return 0, false
	}
	data := block.Payload.Bytes()
	byteOffset := localOffset * s.BytesPerVoxel
	if s.BytesPerVoxel <= 0 || byteOffset < 0 || byteOffset+s.BytesPerVoxel > len(data) {
		return 0, false
	}
	var v uint64
	for i := 0; i < s.BytesPerVoxel && i < 8; i++ {
		v = v<<8 | uint64(data[byteOffset+i])
	}
	return v, true
}
