package grid

import "github.com/janelia-flyem/volview/blockcache"

// hintKey identifies one (source, level) pair a Hints table can override.
type hintKey struct {
	SourceIndex int32
	Level       int
}

// Hints resolves the blockcache.Strategy a caller should use for a given
// (sourceIndex, level) pair: a paint call need not apply one strategy
// uniformly across every level of every source. Absent an override,
// Resolve falls back to a single default (typically VOLATILE).
//
// A Hints table is built once per viewer-state change and only read while
// rendering; callers must not mutate it concurrently with Resolve.
type Hints struct {
	defaultStrategy blockcache.Strategy
	overrides       map[hintKey]blockcache.Strategy
}

// NewHints returns a Hints table that resolves to defaultStrategy until
// overrides are installed with Set.
func NewHints(defaultStrategy blockcache.Strategy) *Hints {
	return &Hints{defaultStrategy: defaultStrategy, overrides: make(map[hintKey]blockcache.Strategy)}
}

// Set pins (sourceIndex, level) to strategy, e.g. forcing BLOCKING for a
// source's coarsest fallback level so it never paints a placeholder.
func (h *Hints) Set(sourceIndex int32, level int, strategy blockcache.Strategy) {
	h.overrides[hintKey{sourceIndex, level}] = strategy
}

// Clear removes any override for (sourceIndex, level), reverting it to the
// table's default strategy.
func (h *Hints) Clear(sourceIndex int32, level int) {
	delete(h.overrides, hintKey{sourceIndex, level})
}

// Resolve returns the strategy (sourceIndex, level) should load under.
func (h *Hints) Resolve(sourceIndex int32, level int) blockcache.Strategy {
	if s, ok := h.overrides[hintKey{sourceIndex, level}]; ok {
		return s
	}
	return h.defaultStrategy
}
