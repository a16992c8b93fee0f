package grid

import (
	"testing"

	"github.com/janelia-flyem/volview/blockcache"
)

func TestHintsResolveDefault(t *testing.T) {
	h := NewHints(blockcache.Volatile)
	if got := h.Resolve(0, 3); got != blockcache.Volatile {
		t.Fatalf("Resolve with no override = %v, want VOLATILE", got)
	}
}

func TestHintsSetOverridesOnlyThatPair(t *testing.T) {
	h := NewHints(blockcache.Volatile)
	h.Set(0, 4, blockcache.Blocking)

	if got := h.Resolve(0, 4); got != blockcache.Blocking {
		t.Fatalf("Resolve(0,4) = %v, want BLOCKING", got)
	}
	if got := h.Resolve(0, 3); got != blockcache.Volatile {
		t.Fatalf("Resolve(0,3) = %v, want VOLATILE (unaffected by override)", got)
	}
	if got := h.Resolve(1, 4); got != blockcache.Volatile {
		t.Fatalf("Resolve(1,4) = %v, want VOLATILE (different source)", got)
	}
}

func TestHintsClearRevertsToDefault(t *testing.T) {
	h := NewHints(blockcache.Volatile)
	h.Set(2, 1, blockcache.Budgeted)
	h.Clear(2, 1)
	if got := h.Resolve(2, 1); got != blockcache.Volatile {
		t.Fatalf("Resolve after Clear = %v, want VOLATILE", got)
	}
}
