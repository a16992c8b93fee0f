// Package vvconfig loads the renderer core's process configuration from a
// TOML file: one struct tree decoded in a single toml.DecodeFile call,
// with defaults applied afterward rather than inline in struct tags.
package vvconfig

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/janelia-flyem/volview/vvlog"
)

// RenderConfig mirrors render.Config's TOML-settable fields.
type RenderConfig struct {
	ScreenScales           []float64 `toml:"screen_scales"`
	TargetRenderNanos      int64     `toml:"target_render_nanos"`
	DoubleBuffered         bool      `toml:"double_buffered"`
	NumRenderingThreads    int       `toml:"num_rendering_threads"`
	UseVolatileIfAvailable bool      `toml:"use_volatile_if_available"`
	IoBudgetPerFrame       []int64   `toml:"io_budget_per_frame"`
	PrefetchCells          bool      `toml:"prefetch_cells"`
}

// CacheConfig configures blockcache.Cache's soft-reclamation ceilings and
// fetcher pool shape.
type CacheConfig struct {
	NumPriorities    int   `toml:"num_priorities"`
	SoftCeilingBytes int64 `toml:"soft_ceiling_bytes"`
	ByteCacheBytes   int   `toml:"byte_cache_bytes"`
	NumFetchers      int   `toml:"num_fetchers"`
}

// StoreConfig configures the bundled reference loader.DiskLoader.
type StoreConfig struct {
	Directory       string `toml:"directory"`
	BytesPerElement int    `toml:"bytes_per_element"`
	Codec           string `toml:"codec"` // "none", "snappy", or "zstd"
}

// KafkaConfig carries what telemetry.Publisher needs: a server list and
// an activity topic name. Telemetry is disabled whenever Servers is empty.
type KafkaConfig struct {
	Servers       []string `toml:"servers"`
	TopicActivity string   `toml:"topic_activity"`
	IntervalMs    int64    `toml:"interval_ms"`
}

// Config is the root of the TOML document, decoded with a single
// toml.DecodeFile call by Load.
type Config struct {
	Render  RenderConfig    `toml:"render"`
	Cache   CacheConfig     `toml:"cache"`
	Store   StoreConfig     `toml:"store"`
	Logging vvlog.LogConfig `toml:"logging"`
	Kafka   KafkaConfig     `toml:"kafka"`
}

// applyDefaults fills in zero-valued fields imperatively; toml struct tags
// carry no defaults.
func (c *Config) applyDefaults() {
	if len(c.Render.ScreenScales) == 0 {
		c.Render.ScreenScales = []float64{1.0, 0.5, 0.25, 0.125}
	}
	if c.Render.TargetRenderNanos == 0 {
		c.Render.TargetRenderNanos = int64(30_000_000) // 30ms, ~33fps
	}
	if c.Render.NumRenderingThreads < 1 {
		c.Render.NumRenderingThreads = 4
	}
	if c.Cache.NumPriorities < 1 {
		c.Cache.NumPriorities = len(c.Render.ScreenScales) + 1
	}
	if c.Cache.NumFetchers < 1 {
		c.Cache.NumFetchers = 2
	}
	if c.Store.BytesPerElement < 1 {
		c.Store.BytesPerElement = 1
	}
	if c.Store.Codec == "" {
		c.Store.Codec = "none"
	}
	if c.Kafka.TopicActivity == "" {
		c.Kafka.TopicActivity = "volview-activity"
	}
	if c.Kafka.IntervalMs == 0 {
		c.Kafka.IntervalMs = 5000
	}
}

// Validate checks the invariants Config.applyDefaults cannot safely guess
// at, surfacing configuration errors before anything is constructed.
func (c *Config) Validate() error {
	scales := c.Render.ScreenScales
	if len(scales) == 0 {
		return fmt.Errorf("vvconfig: render.screen_scales must be non-empty")
	}
	if scales[0] > 1.0 {
		return fmt.Errorf("vvconfig: render.screen_scales[0]=%v must be <= 1.0", scales[0])
	}
	for i := 1; i < len(scales); i++ {
		if scales[i] >= scales[i-1] {
			return fmt.Errorf("vvconfig: render.screen_scales must be strictly descending, got %v at index %d", scales, i)
		}
	}
	for i := 1; i < len(c.Render.IoBudgetPerFrame); i++ {
		if c.Render.IoBudgetPerFrame[i] > c.Render.IoBudgetPerFrame[i-1] {
			return fmt.Errorf("vvconfig: render.io_budget_per_frame must be monotone non-increasing, got %v at index %d", c.Render.IoBudgetPerFrame, i)
		}
	}
	switch c.Store.Codec {
	case "none", "snappy", "zstd":
	default:
		return fmt.Errorf("vvconfig: store.codec %q not one of none|snappy|zstd", c.Store.Codec)
	}
	return nil
}

// Load decodes filename as TOML into a Config, applies defaults for any
// field the file left zero, and validates the result. A malformed or
// invalid config is a fatal construction-time error.
func Load(filename string) (*Config, error) {
	var c Config
	if _, err := toml.DecodeFile(filename, &c); err != nil {
		return nil, fmt.Errorf("vvconfig: could not decode TOML config %s: %w", filename, err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// KafkaEnabled reports whether telemetry publishing was configured.
func (c *KafkaConfig) KafkaEnabled() bool {
	return c != nil && len(c.Servers) > 0
}
