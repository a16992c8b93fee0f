// Package grid implements a block-addressed view over one mipmap level of
// one source, translating linear block indices into blockkey.Key values
// and the block dims/origin a BlockCache needs to install a placeholder.
package grid

import (
	"context"

	"github.com/janelia-flyem/volview/blockcache"
	"github.com/janelia-flyem/volview/blockkey"
)

// Layout describes how a source's volume at one mipmap level is tiled into
// blocks: its block shape and the number of blocks along each axis. Index
// linearization matches blockkey.Key.Index's expectations: a row-major scan
// of (x, y, z) block coordinates.
type Layout struct {
	BlockDims     [3]int
	GridDims      [3]int // number of blocks along x, y, z
	MaxLevels     int32  // levels for this setup, used for key hashing and priority
	NumSetups     int32
	NumTimepoints int32
}

// Coords returns the (x, y, z) block coordinates for a linear index,
// matching the row-major scan Index assumes.
func (l Layout) Coords(index int64) [3]int64 {
	gx := int64(l.GridDims[0])
	gy := int64(l.GridDims[1])
	z := index / (gx * gy)
	rem := index % (gx * gy)
	y := rem / gx
	x := rem % gx
	return [3]int64{x, y, z}
}

// Index linearizes block coordinates back to the index BlockKey carries.
func (l Layout) Index(coords [3]int64) int64 {
	gx := int64(l.GridDims[0])
	gy := int64(l.GridDims[1])
	return (coords[2]*gy+coords[1])*gx + coords[0]
}

// Origin returns the voxel-space origin of the block at coords.
func (l Layout) Origin(coords [3]int64) [3]int64 {
	return [3]int64{
		coords[0] * int64(l.BlockDims[0]),
		coords[1] * int64(l.BlockDims[1]),
		coords[2] * int64(l.BlockDims[2]),
	}
}

// NumBlocks returns the total block count covered by the layout.
func (l Layout) NumBlocks() int64 {
	return int64(l.GridDims[0]) * int64(l.GridDims[1]) * int64(l.GridDims[2])
}

// Locate maps a voxel-space coordinate to the block coordinates containing
// it and the voxel's linear offset within that block (row-major x, then
// y, then z). ok is false if voxel falls outside the grid's bounds.
func (l Layout) Locate(voxel [3]int64) (coords [3]int64, localOffset int, ok bool) {
	for i := 0; i < 3; i++ {
		if voxel[i] < 0 {
			return coords, 0, false
		}
		coords[i] = voxel[i] / int64(l.BlockDims[i])
		if coords[i] >= int64(l.GridDims[i]) {
			return coords, 0, false
		}
	}
	lx := voxel[0] % int64(l.BlockDims[0])
	ly := voxel[1] % int64(l.BlockDims[1])
	lz := voxel[2] % int64(l.BlockDims[2])
	bw := int64(l.BlockDims[0])
	bh := int64(l.BlockDims[1])
	return coords, int((lz*bh+ly)*bw + lx), true
}

// Grid is one (timepoint, setup, level)'s view over a cache.
type Grid struct {
	Cache     *blockcache.Cache
	Layout    Layout
	Timepoint int32
	Setup     int32
	Level     int32
}

// New returns a Grid bound to cache for the given (timepoint, setup, level)
// addressed by layout.
func New(cache *blockcache.Cache, layout Layout, timepoint, setup, level int32) *Grid {
	return &Grid{Cache: cache, Layout: layout, Timepoint: timepoint, Setup: setup, Level: level}
}

func (g *Grid) keyFor(index int64) blockkey.Key {
	return blockkey.NewKey(g.Timepoint, g.Setup, g.Level, index, g.Layout.MaxLevels, g.Layout.NumSetups, g.Layout.NumTimepoints)
}

// Priority is maxLevels - level, so coarser levels enqueue ahead of finer
// ones.
func (g *Grid) Priority() int {
	p := int(g.Layout.MaxLevels) - int(g.Level)
	if p < 0 {
		p = 0
	}
	return p
}

// Get looks up the block at index, installing a placeholder with freshly
// computed dims/origin if absent. It never blocks unless strategy is
// blockcache.Blocking.
func (g *Grid) Get(ctx context.Context, index int64, strategy blockcache.Strategy, opts blockcache.StrategyOpts) blockkey.Block {
	key := g.keyFor(index)
	if opts.Priority == 0 {
		opts.Priority = g.Priority()
	}
	if block, ok := g.Cache.GetIfPresent(ctx, key, strategy, opts); ok {
		return block
	}
	coords := g.Layout.Coords(index)
	origin := g.Layout.Origin(coords)
	return g.Cache.GetOrCreate(ctx, key, g.Layout.BlockDims, origin, strategy, opts)
}

// GetByCoords is a convenience wrapper over Get for callers that already
// have block coordinates instead of a linear index.
func (g *Grid) GetByCoords(ctx context.Context, coords [3]int64, strategy blockcache.Strategy, opts blockcache.StrategyOpts) blockkey.Block {
	return g.Get(ctx, g.Layout.Index(coords), strategy, opts)
}
