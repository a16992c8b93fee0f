package loader

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/janelia-flyem/volview/blockkey"
)

// MemLoader is an in-memory, always-succeeds BlockLoader used by tests
// across the core packages (blockcache, fetcher, grid, projector, render)
// to exercise the pipeline's timing and cancellation behavior without real
// disk or network I/O. Delay simulates a fixed per-block latency.
type MemLoader struct {
	Delay           time.Duration
	BytesPerElemVal int
	calls           int64
}

func (m *MemLoader) BytesPerElement() int {
	if m.BytesPerElemVal <= 0 {
		return 1
	}
	return m.BytesPerElemVal
}

func (m *MemLoader) EmptyArray(dims [3]int) blockkey.Payload {
	return blockkey.NewPlaceholderPayload(dims, m.BytesPerElement())
}

// LoadArray sleeps Delay (honoring ctx cancellation) then returns a valid
// payload of deterministic content derived from origin, so tests can
// assert on which block was actually loaded.
func (m *MemLoader) LoadArray(ctx context.Context, timepoint, setup, level int32, dims [3]int, origin [3]int64) (blockkey.Payload, error) {
	atomic.AddInt64(&m.calls, 1)
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	n := dims[0] * dims[1] * dims[2] * m.BytesPerElement()
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(origin[0] + origin[1] + origin[2] + int64(i))
	}
	return blockkey.NewValidPayload(data), nil
}

// Calls reports how many times LoadArray has been invoked.
func (m *MemLoader) Calls() int64 {
	return atomic.LoadInt64(&m.calls)
}
