package fetcher

import (
	"context"
	"testing"
	"time"

	"github.com/janelia-flyem/volview/blockcache"
	"github.com/janelia-flyem/volview/blockkey"
	"github.com/janelia-flyem/volview/loader"
)

func TestPoolDrainsQueueAndLoadsEntry(t *testing.T) {
	ml := &loader.MemLoader{Delay: 5 * time.Millisecond}
	cache := blockcache.New(blockcache.Config{Loader: ml, NumPriorities: 4})

	pool := New(cache, 2, "render-job")
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	defer func() {
		cancel()
		pool.Stop()
	}()

	key := blockkey.NewKey(0, 0, 0, 1, 4, 1, 1)
	cache.GetOrCreate(context.Background(), key, [3]int{1, 1, 1}, [3]int64{0, 0, 0}, blockcache.Volatile, blockcache.StrategyOpts{Priority: 0})

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		block, ok := cache.GetIfPresent(context.Background(), key, blockcache.Volatile, blockcache.StrategyOpts{})
		if ok && !block.IsPlaceholder() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("fetcher pool never loaded the requested block within the deadline")
}

func TestPauseUntilBlocksDequeue(t *testing.T) {
	ml := &loader.MemLoader{}
	cache := blockcache.New(blockcache.Config{Loader: ml, NumPriorities: 4})
	pool := New(cache, 1, "render-job")

	pool.PauseUntil(time.Now().Add(100 * time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	defer func() {
		cancel()
		pool.Stop()
	}()

	key := blockkey.NewKey(0, 0, 0, 2, 4, 1, 1)
	cache.GetOrCreate(context.Background(), key, [3]int{1, 1, 1}, [3]int64{0, 0, 0}, blockcache.Volatile, blockcache.StrategyOpts{Priority: 0})

	time.Sleep(20 * time.Millisecond)
	block, _ := cache.GetIfPresent(context.Background(), key, blockcache.Volatile, blockcache.StrategyOpts{})
	if !block.IsPlaceholder() {
		t.Fatalf("expected the pause to prevent any load within 20ms")
	}

	pool.Wake()
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		block, ok := cache.GetIfPresent(context.Background(), key, blockcache.Volatile, blockcache.StrategyOpts{})
		if ok && !block.IsPlaceholder() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected wake to unblock the fetcher within the deadline")
}

func TestStopUnblocksWorkers(t *testing.T) {
	ml := &loader.MemLoader{Delay: time.Hour}
	cache := blockcache.New(blockcache.Config{Loader: ml, NumPriorities: 2})
	pool := New(cache, 3, "render-job")

	ctx := context.Background()
	pool.Start(ctx)

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop did not return promptly after cancellation")
	}
}
