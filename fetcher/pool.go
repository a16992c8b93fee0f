// Package fetcher implements the fetcher pool: a fixed set of worker
// goroutines draining a blockcache.Cache's shared priority queue and
// performing the actual BlockLoader I/O off the rendering/painting
// goroutines.
package fetcher

import (
	"context"
	"sync"
	"time"

	"github.com/janelia-flyem/volview/blockcache"
	"github.com/janelia-flyem/volview/vvlog"
)

// Pool is a fixed-size group of worker goroutines that drain a
// blockcache.Cache's fetch queue and call its loading path. It implements
// blockcache.Pauser so a Cache can pause/wake it without an import cycle.
type Pool struct {
	cache   *blockcache.Cache
	jobKey  interface{}
	workers int

	mu        sync.Mutex
	pausedTil time.Time
	wake      chan struct{}

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New creates a Pool of the given worker count against cache. jobKey
// identifies the I/O-statistics and budget bookkeeping group this pool's
// loads are charged to.
func New(cache *blockcache.Cache, workers int, jobKey interface{}) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		cache:   cache,
		jobKey:  jobKey,
		workers: workers,
		wake:    make(chan struct{}, 1),
	}
}

// Start launches the worker goroutines. It is safe to call only once per
// Pool; call Stop to shut it down.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Stop cancels every worker, closes the cache's fetch queue so any worker
// blocked in Take unblocks immediately, and waits for them to return.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.cache.Queue().Close()
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		if err := p.awaitUnpaused(ctx); err != nil {
			return
		}
		req, ok := p.cache.Queue().Take()
		if !ok {
			return // queue closed
		}
		if err := p.awaitUnpaused(ctx); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := p.loadByKey(ctx, req); err != nil {
			vvlog.Debugf("fetcher worker %d: load of %s ended with %v", id, req.Key, err)
		}
	}
}

// loadByKey re-fetches the live *blockkey.Entry for req.Key (if still
// resident) and runs the cache's normal load path against it. The entry is
// re-resolved rather than carried through the queue so a request whose
// entry was already loaded by a concurrent BLOCKING caller, or collected
// outright, costs nothing.
func (p *Pool) loadByKey(ctx context.Context, req blockcache.FetchRequest) error {
	entry := p.cache.EntryIfPresent(req.Key)
	if entry == nil || entry.IsValid() {
		return nil
	}
	if err := p.cache.LoadEntry(ctx, p.jobKey, entry); err != nil {
		return err
	}
	p.cache.PromoteToSoftTier(entry)
	return nil
}

// awaitUnpaused blocks the caller until the pool is unpaused or ctx is
// cancelled, in which case it returns ctx.Err().
func (p *Pool) awaitUnpaused(ctx context.Context) error {
	for {
		p.mu.Lock()
		until := p.pausedTil
		p.mu.Unlock()
		remaining := time.Until(until)
		if remaining <= 0 {
			return nil
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		case <-p.wake:
			timer.Stop()
		}
	}
}

// PauseUntil implements blockcache.Pauser: no worker will start loading
// another fetch request until t, letting a caller throttle I/O, e.g. to back off
// after a storm of cancelled requests.
func (p *Pool) PauseUntil(t time.Time) {
	p.mu.Lock()
	if t.After(p.pausedTil) {
		p.pausedTil = t
	}
	p.mu.Unlock()
}

// Wake implements blockcache.Pauser: clears any pause and lets workers
// resume immediately.
func (p *Pool) Wake() {
	p.mu.Lock()
	p.pausedTil = time.Time{}
	p.mu.Unlock()
	for i := 0; i < p.workers; i++ {
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
}
