// Package blockcache implements the keyed block residency table, its three
// loading strategies, soft reclamation, and fetch-queue enqueueing.
package blockcache

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"weak"

	"github.com/janelia-flyem/volview/blockkey"
	"github.com/janelia-flyem/volview/iobudget"
	"github.com/janelia-flyem/volview/iostats"
	"github.com/janelia-flyem/volview/loader"
	"github.com/janelia-flyem/volview/queue"
	"github.com/janelia-flyem/volview/vvlog"
)

// FetchRequest is what VOLATILE/BUDGETED enqueue onto the shared priority
// queue for the fetcher pool to drain.
type FetchRequest struct {
	Key      blockkey.Key
	Priority int
}

// Pauser lets the cache delegate PauseFetchersUntil/WakeFetchers to
// whatever owns the fetcher pool, without blockcache depending on package
// fetcher directly.
type Pauser interface {
	PauseUntil(t time.Time)
	Wake()
}

// Config configures a Cache's soft-reclamation ceiling and I/O queue
// shape.
type Config struct {
	Loader loader.BlockLoader

	// NumPriorities is the number of live priority sub-queues the fetch
	// queue exposes; it should be at least MaxLevel+1 across every setup
	// since priority is derived from maxLevels[setup]-level.
	NumPriorities int

	// SoftCeilingBytes bounds the soft tier's retained payload bytes; 0
	// means unbounded (promoted entries stay strongly held, and so
	// resident, until Cleanup drops them).
	SoftCeilingBytes int64

	// ByteCacheBytes sizes the freecache-backed second-chance byte cache;
	// 0 disables it.
	ByteCacheBytes int

	Pauser Pauser
}

// Cache is the block residency table shared by every grid and renderer in
// the process. Strong references to entries live only in the current-frame
// pin list and the soft tier; the residency map itself holds weak pointers
// so unreferenced placeholders can be reclaimed.
type Cache struct {
	mu         sync.Mutex
	residency  map[blockkey.Key]weak.Pointer[blockkey.Entry]
	pin        []*blockkey.Entry
	generation atomic.Uint64

	soft   *softTier
	loader loader.BlockLoader
	queue  *queue.PriorityQueue[FetchRequest]
	pauser Pauser

	budgets sync.Map // interface{} job key -> *iobudget.Budget
	stats   *iostats.Registry
}

// New constructs a Cache.
func New(cfg Config) *Cache {
	if cfg.NumPriorities < 1 {
		cfg.NumPriorities = 1
	}
	c := &Cache{
		residency: make(map[blockkey.Key]weak.Pointer[blockkey.Entry]),
		soft:      newSoftTier(cfg.SoftCeilingBytes, cfg.ByteCacheBytes),
		loader:    cfg.Loader,
		queue:     queue.New[FetchRequest](cfg.NumPriorities),
		pauser:    cfg.Pauser,
		stats:     iostats.NewRegistry(),
	}
	// Generation 0 is reserved by blockkey.NeverEnqueued; frames are
	// numbered starting at 1 so TryEnqueue's "< gen" comparison admits the
	// very first enqueue of a freshly created entry.
	c.generation.Store(1)
	return c
}

// Queue exposes the shared fetch queue so a FetcherPool can drain it.
func (c *Cache) Queue() *queue.PriorityQueue[FetchRequest] {
	return c.queue
}

// SetPauser installs the Pauser a Cache delegates PauseFetchersUntil/
// WakeFetchers to. It exists because a FetcherPool is constructed against
// an already-built Cache (fetcher.New takes *Cache), so the two can't be
// wired in a single New call; callers assemble Cache, then FetcherPool,
// then SetPauser(pool) to close the loop.
func (c *Cache) SetPauser(p Pauser) {
	c.mu.Lock()
	c.pauser = p
	c.mu.Unlock()
}

// Stats returns the IoStatistics registry backing this cache's
// thread-groups.
func (c *Cache) Stats() *iostats.Registry {
	return c.stats
}

func (c *Cache) lookup(key blockkey.Key) (*blockkey.Entry, bool) {
	c.mu.Lock()
	wp, ok := c.residency[key]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	entry := wp.Value()
	if entry == nil {
		return nil, false
	}
	c.soft.Touch(key)
	return entry, true
}

func (c *Cache) lookupOrCreate(key blockkey.Key, dims [3]int, origin [3]int64) *blockkey.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if wp, ok := c.residency[key]; ok {
		if entry := wp.Value(); entry != nil {
			return entry
		}
	}
	placeholder := c.loader.EmptyArray(dims)
	entry := blockkey.NewEntry(key, blockkey.Block{Dims: dims, Origin: origin, Payload: placeholder})
	c.residency[key] = weak.Make(entry)
	runtime.AddCleanup(entry, c.purge, key)
	return entry
}

// purge removes key from the residency table once its entry has actually
// been collected (the weak pointer resolves to nil). Registered as the
// entry's runtime.AddCleanup callback.
func (c *Cache) purge(key blockkey.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if wp, ok := c.residency[key]; ok && wp.Value() == nil {
		delete(c.residency, key)
	}
}

// GetIfPresent returns (Block{}, false) if no entry exists for key.
// Otherwise it applies strategy and returns the entry's block, which may
// still be a placeholder.
func (c *Cache) GetIfPresent(ctx context.Context, key blockkey.Key, strategy Strategy, opts StrategyOpts) (blockkey.Block, bool) {
	entry, ok := c.lookup(key)
	if !ok {
		return blockkey.Block{}, false
	}
	c.apply(ctx, entry, strategy, opts)
	return entry.Block(), true
}

// GetOrCreate installs a placeholder if key is absent, then applies
// strategy.
func (c *Cache) GetOrCreate(ctx context.Context, key blockkey.Key, dims [3]int, origin [3]int64, strategy Strategy, opts StrategyOpts) blockkey.Block {
	entry := c.lookupOrCreate(key, dims, origin)
	c.apply(ctx, entry, strategy, opts)
	return entry.Block()
}

// EntryIfPresent returns the live *blockkey.Entry for key, or nil if it is
// absent or has already been collected. It exists for FetcherPool, which
// needs the actual Entry (not just its Block snapshot) to drive LoadEntry
// and PromoteToSoftTier from a worker goroutine.
func (c *Cache) EntryIfPresent(key blockkey.Key) *blockkey.Entry {
	entry, _ := c.lookup(key)
	return entry
}

// PromoteToSoftTier moves entry into the soft reclamation tier, matching
// what applyBlocking/applyBudgeted do for their own loads. FetcherPool
// calls this after a successful worker-driven load.
func (c *Cache) PromoteToSoftTier(entry *blockkey.Entry) {
	c.soft.Promote(entry)
}

// LoadEntry performs the actual synchronous load for entry: a freecache
// byte-cache hit short-circuits the real loader; otherwise it calls
// through to the configured BlockLoader under I/O statistics timing. It
// is exported so FetcherPool can reuse the exact same load path VOLATILE
// and BUDGETED fetches eventually run on a worker goroutine.
func (c *Cache) LoadEntry(ctx context.Context, jobKey interface{}, entry *blockkey.Entry) error {
	return entry.LoadIfInvalid(func() (blockkey.Payload, error) {
		if data, ok := c.soft.RecoverBytes(entry.Key); ok {
			return blockkey.NewValidPayload(data), nil
		}
		stats := c.stats.For(jobKey)
		var payload blockkey.Payload
		err := stats.Timed(func() (int64, error) {
			block := entry.Block()
			p, err := c.loader.LoadArray(ctx, entry.Key.Timepoint, entry.Key.Setup, entry.Key.Level, block.Dims, block.Origin)
			if err != nil {
				return 0, err
			}
			payload = p
			return int64(len(p.Bytes())), nil
		})
		if err != nil {
			return nil, err
		}
		return payload, nil
	})
}

func (c *Cache) apply(ctx context.Context, entry *blockkey.Entry, strategy Strategy, opts StrategyOpts) {
	switch strategy {
	case Volatile:
		if !entry.IsValid() {
			c.enqueue(entry, opts.Priority)
		}
	case Blocking:
		c.applyBlocking(ctx, entry, opts)
	case Budgeted:
		c.applyBudgeted(ctx, entry, opts)
	default:
		vvlog.Warnf("unknown loading strategy %v, treating as VOLATILE", strategy)
		if !entry.IsValid() {
			c.enqueue(entry, opts.Priority)
		}
	}
}

func (c *Cache) applyBlocking(ctx context.Context, entry *blockkey.Entry, opts StrategyOpts) {
	for !entry.IsValid() {
		err := c.LoadEntry(ctx, opts.JobKey, entry)
		if err == nil {
			c.soft.Promote(entry)
			return
		}
		if errors.Is(err, context.Canceled) {
			// Spurious interruption; retry until the payload is valid.
			continue
		}
		// LoaderFailure: log and leave the block a placeholder; the next
		// caller to touch this entry will retry.
		vvlog.Errorf("blocking load of %s failed: %v", entry.Key, err)
		return
	}
}

func (c *Cache) applyBudgeted(ctx context.Context, entry *blockkey.Entry, opts StrategyOpts) {
	level := int(entry.Key.Level)
	budget := c.budgetFor(opts.JobKey)
	if budget.TimeLeft(level) > 0 {
		c.enqueue(entry, opts.Priority)
		waitFor := time.Duration(budget.TimeLeft(level)) * time.Nanosecond
		start := time.Now()
		if entry.WaitValid(waitFor) {
			c.soft.Promote(entry)
		}
		budget.Use(time.Since(start).Nanoseconds(), level)
	} else {
		c.enqueue(entry, opts.Priority)
	}
}

// enqueue is idempotent per generation: it pushes (key, priority) onto the
// shared queue at most once per frame, and adds entry to the current-frame
// pin list so it cannot be reclaimed while outstanding.
func (c *Cache) enqueue(entry *blockkey.Entry, priority int) {
	gen := c.generation.Load()
	if !entry.TryEnqueue(gen) {
		return
	}
	c.queue.Put(FetchRequest{Key: entry.Key, Priority: priority}, priority)
	c.mu.Lock()
	c.pin = append(c.pin, entry)
	c.mu.Unlock()
}

// PrepareNextFrame moves queued-but-unserved fetches to the prefetch
// shadow, drops the current-frame pin list, and advances the generation
// counter so the new frame's lookups re-enqueue still-invalid entries.
func (c *Cache) PrepareNextFrame() {
	c.queue.Clear()
	c.mu.Lock()
	c.pin = nil
	c.mu.Unlock()
	c.generation.Add(1)
}

// InitIoBudget installs (or resets) the I/O time budget for jobKey's
// rendering job.
func (c *Cache) InitIoBudget(jobKey interface{}, partial []int64) {
	c.budgets.Store(jobKey, iobudget.New(partial))
}

func (c *Cache) budgetFor(jobKey interface{}) *iobudget.Budget {
	if v, ok := c.budgets.Load(jobKey); ok {
		return v.(*iobudget.Budget)
	}
	b := iobudget.New(nil)
	actual, _ := c.budgets.LoadOrStore(jobKey, b)
	return actual.(*iobudget.Budget)
}

// PauseFetchersUntil delegates to the configured Pauser.
func (c *Cache) PauseFetchersUntil(t time.Time) {
	c.mu.Lock()
	p := c.pauser
	c.mu.Unlock()
	if p != nil {
		p.PauseUntil(t)
	}
}

// WakeFetchers delegates to the configured Pauser.
func (c *Cache) WakeFetchers() {
	c.mu.Lock()
	p := c.pauser
	c.mu.Unlock()
	if p != nil {
		p.Wake()
	}
}

// Cleanup releases blocks whose Setup is not in activeSetups, called when
// the visible-source set shrinks. It drops the soft tier's strong
// references so those entries become reclaimable, and purges residency
// keys that have already been collected; entries still pinned by the
// current frame are freed once the pin list rolls over.
func (c *Cache) Cleanup(activeSetups map[int32]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, wp := range c.residency {
		if activeSetups[key.Setup] {
			continue
		}
		c.soft.Drop(key)
		if wp.Value() == nil {
			delete(c.residency, key)
		}
	}
}

// Len reports how many entries currently have a live (non-collected)
// strong-or-weak-resolvable reference. Intended for tests and diagnostics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, wp := range c.residency {
		if wp.Value() != nil {
			n++
		}
	}
	return n
}
