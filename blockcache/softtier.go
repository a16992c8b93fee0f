package blockcache

import (
	"fmt"
	"sync"

	"github.com/DmitriyVTitov/size"
	"github.com/coocood/freecache"
	"github.com/dustin/go-humanize"
	"github.com/golang/groupcache/lru"

	"github.com/janelia-flyem/volview/blockkey"
	"github.com/janelia-flyem/volview/vvlog"
)

// softTier keeps loaded blocks alive past the current frame: an
// LRU-bounded table of *strong* references to loaded Entry values, pruned
// under a configurable memory ceiling. As long as an
// entry is in softTier, the weak pointer held in the residency map's
// table resolves; once evicted (and not pinned by the current frame) the
// entry becomes eligible for garbage collection and the residency map
// entry is purged by its cleanup callback.
//
// byteCache is a second-chance tier: it survives past the Entry object's
// own collection and stores only the raw payload bytes, keyed by the
// block's identity, under freecache's native byte-quota eviction. A block
// whose Entry was fully reclaimed can still be served from byteCache
// without returning to the BlockLoader, at the cost of reconstructing a
// fresh Entry and RawPayload around the bytes.
type softTier struct {
	mu        sync.Mutex
	lru       *lru.Cache
	bytes     int64
	ceiling   int64
	byteCache *freecache.Cache
}

func newSoftTier(ceilingBytes int64, byteCacheBytes int) *softTier {
	t := &softTier{ceiling: ceilingBytes}
	t.lru = lru.New(0) // unbounded by count; we enforce the byte ceiling ourselves
	t.lru.OnEvicted = func(key lru.Key, value interface{}) {
		t.bytes -= entryFootprint(value.(*blockkey.Entry))
	}
	if byteCacheBytes > 0 {
		t.byteCache = freecache.NewCache(byteCacheBytes)
	}
	return t
}

func entryFootprint(e *blockkey.Entry) int64 {
	n := size.Of(e.Block().Payload)
	if n < 0 {
		return 0
	}
	return int64(n)
}

func byteCacheKey(key blockkey.Key) []byte {
	return []byte(fmt.Sprintf("%d|%d|%d|%d", key.Timepoint, key.Setup, key.Level, key.Index))
}

// Promote adds entry (now valid) to the soft tier, evicting the
// least-recently-used entries until the configured byte ceiling is
// satisfied, and mirrors its bytes into the byte cache.
func (t *softTier) Promote(entry *blockkey.Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.lru.Get(entry.Key); ok {
		t.lru.Add(entry.Key, entry) // touch recency
	} else {
		t.lru.Add(entry.Key, entry)
		t.bytes += entryFootprint(entry)
	}
	for t.ceiling > 0 && t.bytes > t.ceiling && t.lru.Len() > 0 {
		t.lru.RemoveOldest()
	}
	vvlog.Debugf("soft tier holds %s across %d entries", humanize.Bytes(uint64(max64(t.bytes, 0))), t.lru.Len())

	if t.byteCache != nil {
		payload := entry.Block().Payload
		if payload != nil && payload.IsValid() {
			_ = t.byteCache.Set(byteCacheKey(entry.Key), payload.Bytes(), 0)
		}
	}
}

// Touch records recent use of an already-resident entry without changing
// its byte accounting, keeping it from being the next LRU victim.
func (t *softTier) Touch(key blockkey.Key) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.lru.Get(key); ok {
		t.lru.Add(key, v)
	}
}

// Drop removes key's strong reference from the LRU and its bytes from the
// byte cache, making the entry reclaimable once unpinned.
func (t *softTier) Drop(key blockkey.Key) {
	t.mu.Lock()
	t.lru.Remove(key)
	t.mu.Unlock()
	if t.byteCache != nil {
		t.byteCache.Del(byteCacheKey(key))
	}
}

// RecoverBytes looks up previously-evicted raw bytes for key in the byte
// cache, returning (nil, false) on a miss.
func (t *softTier) RecoverBytes(key blockkey.Key) ([]byte, bool) {
	if t.byteCache == nil {
		return nil, false
	}
	data, err := t.byteCache.Get(byteCacheKey(key))
	if err != nil {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

func (t *softTier) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lru.Len()
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
