package grid

import (
	"context"
	"testing"
	"time"

	"github.com/janelia-flyem/volview/blockcache"
	"github.com/janelia-flyem/volview/loader"
)

func testLayout() Layout {
	return Layout{
		BlockDims:     [3]int{32, 32, 32},
		GridDims:      [3]int{4, 4, 4},
		MaxLevels:     4,
		NumSetups:     1,
		NumTimepoints: 1,
	}
}

func TestCoordsIndexRoundTrip(t *testing.T) {
	l := testLayout()
	for _, coords := range [][3]int64{{0, 0, 0}, {3, 0, 0}, {1, 2, 3}, {3, 3, 3}} {
		idx := l.Index(coords)
		got := l.Coords(idx)
		if got != coords {
			t.Fatalf("round trip mismatch: coords=%v -> index=%d -> coords=%v", coords, idx, got)
		}
	}
}

func TestOriginScalesByBlockDims(t *testing.T) {
	l := testLayout()
	origin := l.Origin([3]int64{1, 2, 3})
	want := [3]int64{32, 64, 96}
	if origin != want {
		t.Fatalf("Origin = %v, want %v", origin, want)
	}
}

func TestGetInstallsPlaceholderThenResolves(t *testing.T) {
	ml := &loader.MemLoader{Delay: 5 * time.Millisecond}
	cache := blockcache.New(blockcache.Config{Loader: ml, NumPriorities: 8})
	g := New(cache, testLayout(), 0, 0, 0)

	block := g.Get(context.Background(), 0, blockcache.Volatile, blockcache.StrategyOpts{})
	if !block.IsPlaceholder() {
		t.Fatalf("expected VOLATILE to return a placeholder immediately")
	}
	if block.Dims != testLayout().BlockDims {
		t.Fatalf("placeholder dims = %v, want %v", block.Dims, testLayout().BlockDims)
	}

	block = g.Get(context.Background(), 0, blockcache.Blocking, blockcache.StrategyOpts{})
	if block.IsPlaceholder() {
		t.Fatalf("expected BLOCKING to return a resolved block")
	}
}

func TestPriorityDerivesFromMaxLevelsMinusLevel(t *testing.T) {
	cache := blockcache.New(blockcache.Config{Loader: &loader.MemLoader{}, NumPriorities: 8})
	g := New(cache, testLayout(), 0, 0, 2)
	if got, want := g.Priority(), 2; got != want {
		t.Fatalf("Priority() = %d, want %d", got, want)
	}
}

func TestLocateMapsVoxelToBlockAndOffset(t *testing.T) {
	l := testLayout()
	coords, offset, ok := l.Locate([3]int64{33, 1, 0})
	if !ok {
		t.Fatalf("expected voxel within bounds to locate successfully")
	}
	if coords != ([3]int64{1, 0, 0}) {
		t.Fatalf("coords = %v, want {1,0,0}", coords)
	}
	wantOffset := (0*32+1)*32 + 1 // lz=0, ly=1, lx=1
	if offset != wantOffset {
		t.Fatalf("offset = %d, want %d", offset, wantOffset)
	}
}

func TestLocateRejectsOutOfBoundsVoxel(t *testing.T) {
	l := testLayout()
	if _, _, ok := l.Locate([3]int64{-1, 0, 0}); ok {
		t.Fatalf("expected negative voxel coordinate to be rejected")
	}
	if _, _, ok := l.Locate([3]int64{1000, 0, 0}); ok {
		t.Fatalf("expected out-of-grid voxel coordinate to be rejected")
	}
}

func TestSourceSamplesResolvedBlockNearestNeighbor(t *testing.T) {
	ml := &loader.MemLoader{BytesPerElemVal: 1}
	cache := blockcache.New(blockcache.Config{Loader: ml, NumPriorities: 8})
	g := New(cache, testLayout(), 0, 0, 0)
	src := &Source{
		Grid: g,
		Project: func(px, py int) (int64, int64, int64) {
			return int64(px), int64(py), 0
		},
		Strategy:      blockcache.Blocking,
		BytesPerVoxel: 1,
	}

	_, ok := src.Sample(context.Background(), 5, 5)
	if !ok {
		t.Fatalf("expected BLOCKING strategy to resolve a valid sample")
	}
}

func TestSourceRejectsOutOfBoundsPixel(t *testing.T) {
	ml := &loader.MemLoader{}
	cache := blockcache.New(blockcache.Config{Loader: ml, NumPriorities: 8})
	g := New(cache, testLayout(), 0, 0, 0)
	src := &Source{
		Grid: g,
		Project: func(px, py int) (int64, int64, int64) {
			return -1, -1, -1
		},
		Strategy:      blockcache.Blocking,
		BytesPerVoxel: 1,
	}

	if _, ok := src.Sample(context.Background(), 0, 0); ok {
		t.Fatalf("expected an out-of-bounds projection to report no sample")
	}
}
