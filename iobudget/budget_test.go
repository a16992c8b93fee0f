package iobudget

import "testing"

func assertMonotone(t *testing.T, b *Budget) {
	t.Helper()
	n := b.NumLevels()
	for i := 1; i < n; i++ {
		if b.TimeLeft(i) > b.TimeLeft(i-1) {
			t.Fatalf("budget[%d]=%d > budget[%d]=%d, invariant violated", i, b.TimeLeft(i), i-1, b.TimeLeft(i-1))
		}
	}
}

func TestResetExtendsAndClampsMonotone(t *testing.T) {
	b := New([]int64{100, 50})
	b.ResetForLevels([]int64{100, 50}, 4)
	assertMonotone(t, b)
	if got := b.TimeLeft(3); got != 50 {
		t.Fatalf("expected extension with last value 50, got %d", got)
	}
}

func TestResetEnforcesNonIncreasing(t *testing.T) {
	b := &Budget{}
	b.Reset([]int64{10, 50, 5}) // 50 violates monotonicity, must clamp to 10
	assertMonotone(t, b)
	if got := b.TimeLeft(1); got != 10 {
		t.Fatalf("expected level 1 clamped to 10, got %d", got)
	}
}

func TestUseChargesAndReclampsCoarserLevels(t *testing.T) {
	b := New([]int64{100, 100, 100})
	b.Use(60, 0) // charges level 0 only, leaves [40, 100, 100] before reclamp
	assertMonotone(t, b)
	if got := b.TimeLeft(0); got != 40 {
		t.Fatalf("expected level 0 = 40, got %d", got)
	}
	if got := b.TimeLeft(1); got != 40 {
		t.Fatalf("expected level 1 clamped down to 40, got %d", got)
	}
	if got := b.TimeLeft(2); got != 40 {
		t.Fatalf("expected level 2 clamped down to 40, got %d", got)
	}
}

func TestUseAtHigherLevelChargesAllFiner(t *testing.T) {
	b := New([]int64{100, 100, 100})
	b.Use(30, 2)
	if got := b.TimeLeft(0); got != 70 {
		t.Fatalf("expected level 0 charged to 70, got %d", got)
	}
	if got := b.TimeLeft(2); got != 70 {
		t.Fatalf("expected level 2 charged to 70, got %d", got)
	}
	assertMonotone(t, b)
}

func TestBudgetCanGoNegative(t *testing.T) {
	b := New([]int64{5})
	b.Use(50, 0)
	if got := b.TimeLeft(0); got != -45 {
		t.Fatalf("expected negative budget -45, got %d", got)
	}
}

func TestOutOfRangeLevelClampsToCoarsest(t *testing.T) {
	b := New([]int64{100, 20})
	if got := b.TimeLeft(5); got != 20 {
		t.Fatalf("expected coarsest-level value 20 for out-of-range query, got %d", got)
	}
}
