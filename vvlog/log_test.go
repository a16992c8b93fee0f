package vvlog

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

// capture swaps the package sink for a buffer for the duration of the
// test, restoring the previous sink and threshold afterward.
func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	mu.Lock()
	prevSink, prevThreshold := sink, threshold
	sink = log.New(&buf, "", 0)
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		sink, threshold = prevSink, prevThreshold
		mu.Unlock()
	})
	return &buf
}

func TestThresholdFiltersLowerLevels(t *testing.T) {
	buf := capture(t)
	SetLevel(Warn)

	Debugf("frame detail")
	Infof("lifecycle")
	Warnf("degraded")
	Errorf("failed")

	out := buf.String()
	if strings.Contains(out, "frame detail") || strings.Contains(out, "lifecycle") {
		t.Fatalf("expected sub-threshold messages dropped, got %q", out)
	}
	if !strings.Contains(out, "WARN degraded") || !strings.Contains(out, "ERROR failed") {
		t.Fatalf("expected WARN and ERROR messages written, got %q", out)
	}
}

func TestSilentDropsEverything(t *testing.T) {
	buf := capture(t)
	SetLevel(Silent)

	Errorf("even errors")
	if got := buf.String(); got != "" {
		t.Fatalf("expected no output at Silent, got %q", got)
	}
}

func TestFrameTimerAppendsElapsed(t *testing.T) {
	buf := capture(t)
	SetLevel(Debug)

	ft := StartFrameTimer()
	ft.Logf(Debug, "painted scale=%d", 2)

	out := strings.TrimSpace(buf.String())
	if !strings.HasPrefix(out, "DEBUG painted scale=2 [") || !strings.HasSuffix(out, "]") {
		t.Fatalf("expected elapsed-time suffix, got %q", out)
	}
}
