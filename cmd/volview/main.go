// Command volview wires the rendering core together against a synthetic
// multi-resolution volume and drives it for a fixed demo duration,
// periodically snapshotting the displayed image to disk. Window/canvas
// management, real viewer state, and bulk I/O formats live outside the
// core; this command supplies minimal stand-ins for all three so the
// pipeline (cache, fetcher pool, projector, renderer) can be exercised end
// to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/janelia-flyem/volview/blockcache"
	"github.com/janelia-flyem/volview/fetcher"
	"github.com/janelia-flyem/volview/grid"
	"github.com/janelia-flyem/volview/loader"
	"github.com/janelia-flyem/volview/render"
	"github.com/janelia-flyem/volview/telemetry"
	"github.com/janelia-flyem/volview/viewer"
	"github.com/janelia-flyem/volview/vvconfig"
	"github.com/janelia-flyem/volview/vvlog"
)

var (
	configPath = flag.String("config", "", "path to a TOML configuration file (defaults applied if omitted)")
	outDir     = flag.String("out", "volview-snapshots", "directory snapshots of the displayed image are written to")
	duration   = flag.Duration("duration", 5*time.Second, "how long to run the demo painter loop before exiting")
	canvasW    = flag.Int("width", 512, "demo canvas width in pixels")
	canvasH    = flag.Int("height", 512, "demo canvas height in pixels")
	numSetups  = flag.Int("sources", 1, "number of synthetic visible sources")
	verbose    = flag.Bool("verbose", false, "enable debug-level logging")
)

const (
	demoMaxLevel  = 4
	demoBlockEdge = 32
	demoGridEdge  = 8 // blocks per axis at level 0
	bytesPerVoxel = 1
)

func main() {
	flag.Parse()
	if *verbose {
		vvlog.SetLevel(vvlog.Debug)
	}

	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = defaultConfigPath()
	}
	cfg, err := vvconfig.Load(cfgPath)
	if err != nil {
		vvlog.Errorf("could not load configuration: %v", err)
		os.Exit(1)
	}
	cfg.Logging.Apply()
	defer vvlog.Close()

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		vvlog.Errorf("could not create snapshot directory %s: %v", *outDir, err)
		os.Exit(1)
	}

	var bl loader.BlockLoader = &loader.MemLoader{BytesPerElemVal: bytesPerVoxel}
	var dl *loader.DiskLoader
	if cfg.Store.Directory != "" {
		dl, err = loader.NewDiskLoader(loader.DiskLoaderConfig{
			Directory:       cfg.Store.Directory,
			BytesPerElement: cfg.Store.BytesPerElement,
			Codec:           cfg.Store.Codec,
		})
		if err != nil {
			vvlog.Errorf("could not open disk store: %v", err)
			os.Exit(1)
		}
		defer dl.Close()
		seedDiskLoader(dl, *numSetups)
		bl = dl
	}

	cache := blockcache.New(blockcache.Config{
		Loader:           bl,
		NumPriorities:    cfg.Cache.NumPriorities,
		SoftCeilingBytes: cfg.Cache.SoftCeilingBytes,
		ByteCacheBytes:   cfg.Cache.ByteCacheBytes,
	})

	pool := fetcher.New(cache, cfg.Cache.NumFetchers, "volview-demo")
	cache.SetPauser(pool)

	var telem *telemetry.Publisher
	if cfg.Kafka.KafkaEnabled() {
		telem, err = telemetry.New(telemetry.Config{
			Servers:       cfg.Kafka.Servers,
			TopicActivity: cfg.Kafka.TopicActivity,
			Interval:      time.Duration(cfg.Kafka.IntervalMs) * time.Millisecond,
		})
		if err != nil {
			vvlog.Errorf("telemetry disabled: could not connect to kafka: %v", err)
			telem = nil
		}
	} else {
		telem, _ = telemetry.New(telemetry.Config{})
	}

	target := newPNGTarget(*canvasW, *canvasH, *outDir)
	state := newDemoState(cache, *numSetups)

	r, err := render.New(render.Config{
		Display:                target,
		Cache:                  cache,
		ScreenScales:           cfg.Render.ScreenScales,
		TargetRenderNanos:      cfg.Render.TargetRenderNanos,
		DoubleBuffered:         cfg.Render.DoubleBuffered,
		NumRenderingThreads:    cfg.Render.NumRenderingThreads,
		UseVolatileIfAvailable: cfg.Render.UseVolatileIfAvailable,
		IoBudgetPerFrame:       cfg.Render.IoBudgetPerFrame,
		PrefetchCells:          cfg.Render.PrefetchCells,
	})
	if err != nil {
		vvlog.Errorf("could not construct renderer: %v", err)
		os.Exit(1)
	}
	loop := render.NewPainterLoop(r, func() viewer.State { return state })
	r.SetPainterThread(loop)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	stopSig := make(chan os.Signal, 1)
	signal.Notify(stopSig, os.Interrupt, syscall.SIGTERM)

	go loop.Run(ctx)
	if telem != nil {
		go telem.RunLoop(time.Duration(cfg.Kafka.IntervalMs)*time.Millisecond, "volview-demo", cache)
	}

	ticker := time.NewTicker(33 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(*duration)

	vvlog.Infof("volview demo running for %s (canvas %dx%d, %d source(s))", *duration, *canvasW, *canvasH, *numSetups)
	r.RequestRepaint()
	lastTimepoint := state.CurrentTimepoint()
loop_:
	for {
		select {
		case <-stopSig:
			vvlog.Infof("stop signal received, shutting down")
			break loop_
		case <-deadline:
			break loop_
		case <-ticker.C:
			// A timepoint change is the demo's stand-in for a UI event and
			// starts a fresh frame; between changes the renderer refines on
			// its own via the painter loop.
			if tp := state.CurrentTimepoint(); tp != lastTimepoint {
				lastTimepoint = tp
				r.RequestRepaint()
			}
		}
	}

	cancel()
	pool.Stop()
	if telem != nil {
		telem.Close()
	}
	if err := target.writeFinal(); err != nil {
		vvlog.Errorf("could not write final snapshot: %v", err)
	}
	vvlog.Infof("volview demo exiting")
}

// defaultConfigPath points vvconfig.Load at an empty scratch file so a run
// with no -config flag still goes through Load's normal decode-then-default
// sequence instead of constructing a Config by hand.
func defaultConfigPath() string {
	f, err := os.CreateTemp("", "volview-default-*.toml")
	if err != nil {
		return ""
	}
	f.Close()
	return f.Name()
}

// --- synthetic viewer state -------------------------------------------

// demoState is a minimal viewer.State: numSetups visible sources, each a
// deterministic synthetic volume tiled the same way across levels.
type demoState struct {
	cache     *blockcache.Cache
	numSetups int
	timepoint atomic.Int32
	hints     *grid.Hints
}

func newDemoState(cache *blockcache.Cache, numSetups int) *demoState {
	hints := grid.NewHints(blockcache.Volatile)
	// The coarsest fallback level never shows a placeholder: pin it to
	// BLOCKING so every source always paints something once it is first
	// touched.
	for s := 0; s < numSetups; s++ {
		hints.Set(int32(s), demoMaxLevel, blockcache.Blocking)
	}
	d := &demoState{cache: cache, numSetups: numSetups, hints: hints}
	go d.advanceTimepoint()
	return d
}

// advanceTimepoint cycles the current timepoint every few seconds,
// exercising the renderer's timepoint-change shortcut.
func (d *demoState) advanceTimepoint() {
	ticker := time.NewTicker(4 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		d.timepoint.Add(1)
	}
}

func (d *demoState) CurrentTimepoint() int32 { return d.timepoint.Load() }

func (d *demoState) VisibleSourceIndices() []int32 {
	out := make([]int32, d.numSetups)
	for i := range out {
		out[i] = int32(i)
	}
	return out
}

func (d *demoState) Interpolation() viewer.Interpolation { return viewer.NearestNeighbor }

// BestMipmapLevel picks the coarsest level whose voxel size at screenScale
// still resolves to roughly one screen pixel: level log2(1/screenScale),
// clamped to [0, demoMaxLevel].
func (d *demoState) BestMipmapLevel(screenScale float64, sourceIndex int32) int {
	if screenScale <= 0 {
		return demoMaxLevel
	}
	level := int(math.Round(math.Log2(1 / screenScale)))
	if level < 0 {
		level = 0
	}
	if level > demoMaxLevel {
		level = demoMaxLevel
	}
	return level
}

func (d *demoState) MaxLevel(sourceIndex int32) int { return demoMaxLevel }

func (d *demoState) Source(sourceIndex int32, level int) viewer.InterpolatedSource {
	g := grid.New(d.cache, demoLayout(level), d.timepoint.Load(), sourceIndex, int32(level))
	return &grid.Source{
		Grid: g,
		Project: func(px, py int) (int64, int64, int64) {
			return int64(px), int64(py), 0
		},
		Strategy:      d.hints.Resolve(sourceIndex, level),
		Opts:          blockcache.StrategyOpts{JobKey: "volview-demo"},
		BytesPerVoxel: bytesPerVoxel,
	}
}

func (d *demoState) SourceConverter(sourceIndex int32) viewer.Converter {
	return func(raw uint64) uint32 {
		v := uint32(raw % 256)
		return 0xff000000 | v<<16 | v<<8 | v
	}
}

// demoLayout returns the block grid layout for level, halving the grid
// extent per level the way an image pyramid's mipmap levels do.
func demoLayout(level int) grid.Layout {
	edge := demoGridEdge >> uint(level)
	if edge < 1 {
		edge = 1
	}
	return grid.Layout{
		BlockDims:     [3]int{demoBlockEdge, demoBlockEdge, demoBlockEdge},
		GridDims:      [3]int{edge, edge, edge},
		MaxLevels:     demoMaxLevel + 1,
		NumSetups:     8,
		NumTimepoints: 1 << 16,
	}
}

// --- disk loader seeding -----------------------------------------------

// seedDiskLoader pre-populates dl's Badger store with synthetic block data
// for every (setup, level) combination this demo ever requests, since
// DiskLoader (unlike the in-memory loader) only ever reads what was
// previously written.
func seedDiskLoader(dl *loader.DiskLoader, numSetups int) {
	for setup := 0; setup < numSetups; setup++ {
		for level := 0; level <= demoMaxLevel; level++ {
			layout := demoLayout(level)
			n := layout.NumBlocks()
			for idx := int64(0); idx < n; idx++ {
				coords := layout.Coords(idx)
				origin := layout.Origin(coords)
				data := make([]byte, demoBlockEdge*demoBlockEdge*demoBlockEdge*bytesPerVoxel)
				for i := range data {
					data[i] = byte(origin[0] + origin[1] + origin[2] + int64(i) + int64(setup*37))
				}
				if err := dl.StoreArray(0, int32(setup), int32(level), layout.BlockDims, origin, data); err != nil {
					vvlog.Warnf("could not seed disk store block (setup=%d level=%d idx=%d): %v", setup, level, idx, err)
				}
			}
		}
	}
}

// --- PNG render target ---------------------------------------------------

// pngTarget is a minimal viewer.RenderTarget that snapshots every tenth
// published image as a PNG file, the demo stand-in for real canvas
// management.
type pngTarget struct {
	w, h    int
	dir     string
	current atomic.Pointer[viewer.Image]
	frame   atomic.Int64
}

func newPNGTarget(w, h int, dir string) *pngTarget {
	return &pngTarget{w: w, h: h, dir: dir}
}

func (t *pngTarget) Width() int  { return t.w }
func (t *pngTarget) Height() int { return t.h }

func (t *pngTarget) SetImage(img *viewer.Image) *viewer.Image {
	prev := t.current.Swap(img)
	n := t.frame.Add(1)
	if n%10 == 0 { // throttle disk writes to every 10th published frame
		if err := writePNG(img, filepath.Join(t.dir, fmt.Sprintf("frame-%05d.png", n))); err != nil {
			vvlog.Warnf("could not write snapshot: %v", err)
		}
	}
	return prev
}

func (t *pngTarget) writeFinal() error {
	img := t.current.Load()
	if img == nil {
		return nil
	}
	return writePNG(img, filepath.Join(t.dir, "final.png"))
}

func writePNG(img *viewer.Image, path string) error {
	if img == nil || img.Width == 0 || img.Height == 0 {
		return nil
	}
	out := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			px := img.Pix[y*img.Width+x]
			out.Set(x, y, color.RGBA{
				R: byte(px >> 16),
				G: byte(px >> 8),
				B: byte(px),
				A: byte(px >> 24),
			})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, out)
}
