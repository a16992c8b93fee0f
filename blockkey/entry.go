package blockkey

import (
	"sync"
	"time"
)

// NeverEnqueued is the initial value of Entry.EnqueueGeneration: the entry
// has never been pushed onto the fetch queue.
const NeverEnqueued uint64 = 0

// ValidGeneration is the sentinel EnqueueGeneration value meaning "payload
// is valid, never re-enqueue this entry."
const ValidGeneration uint64 = ^uint64(0) // math.MaxUint64, kept local to avoid importing math for one constant

// Entry ties a Key's residency bookkeeping to its Block. Payload state
// changes happen under the entry's own monitor (mu/cond) so that a loader
// running on a fetcher goroutine and a painter goroutine observing the
// block never race: the monitor is the acquire/release point through which
// payload validity is published.
type Entry struct {
	mu   sync.Mutex
	cond *sync.Cond

	Key   Key
	block Block

	// EnqueueGeneration is NeverEnqueued until first enqueued, the frame
	// generation it was last enqueued at while invalid, or ValidGeneration
	// once its payload is valid.
	EnqueueGeneration uint64
}

// NewEntry wraps a freshly created placeholder block for key.
func NewEntry(key Key, block Block) *Entry {
	e := &Entry{Key: key, block: block}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Block returns a snapshot of the entry's block. The Payload within it is
// itself safe to query concurrently (IsValid/Bytes are read-only once
// valid), so callers do not need to hold the entry lock to use the
// returned value.
func (e *Entry) Block() Block {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.block
}

// IsValid reports whether the entry's payload has finished loading.
func (e *Entry) IsValid() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.block.Payload != nil && e.block.Payload.IsValid()
}

// LoadIfInvalid re-checks validity under the entry monitor and, if still
// invalid, runs load (which may block on real I/O) to obtain a new valid
// Payload, installs it, marks the generation ValidGeneration, and wakes any
// waiters. It is idempotent: concurrent callers that lose the race simply
// observe the winner's result. The returned error is whatever load
// returned; on error the entry remains a placeholder for the next caller
// to retry.
func (e *Entry) LoadIfInvalid(load func() (Payload, error)) error {
	e.mu.Lock()
	if e.block.Payload != nil && e.block.Payload.IsValid() {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	payload, err := load()
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.block.Payload != nil && e.block.Payload.IsValid() {
		// A concurrent caller's load finished first; keep its payload.
		return nil
	}
	e.block.Payload = payload
	e.EnqueueGeneration = ValidGeneration
	e.cond.Broadcast()
	return nil
}

// TryEnqueue reports whether this entry should be (re)enqueued for
// generation gen: it returns false if the payload is already valid, or if
// EnqueueGeneration is already at least gen. Otherwise it stamps
// EnqueueGeneration to gen and returns true, so concurrent callers within
// the same generation enqueue at most once.
func (e *Entry) TryEnqueue(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.block.Payload != nil && e.block.Payload.IsValid() {
		return false
	}
	if e.EnqueueGeneration >= gen {
		return false
	}
	e.EnqueueGeneration = gen
	return true
}

// WaitValid blocks until the payload becomes valid or timeout elapses,
// returning true iff it observed validity. timeout<=0 is a non-blocking
// poll. Used by the BUDGETED loading strategy, which bounds its wait by
// the calling thread-group's remaining I/O time budget.
func (e *Entry) WaitValid(timeout time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.block.Payload != nil && e.block.Payload.IsValid() {
		return true
	}
	if timeout <= 0 {
		return false
	}
	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, e.cond.Broadcast)
	defer timer.Stop()
	for e.block.Payload == nil || !e.block.Payload.IsValid() {
		if time.Now().After(deadline) {
			return false
		}
		e.cond.Wait()
	}
	return true
}
