package vvconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTemp(t, `
[render]
target_render_nanos = 16000000
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []float64{1.0, 0.5, 0.25, 0.125}
	if diff := cmp.Diff(want, cfg.Render.ScreenScales); diff != "" {
		t.Errorf("ScreenScales mismatch (-want +got):\n%s", diff)
	}
	if cfg.Render.NumRenderingThreads != 4 {
		t.Errorf("NumRenderingThreads = %d, want 4", cfg.Render.NumRenderingThreads)
	}
	if cfg.Cache.NumFetchers != 2 {
		t.Errorf("NumFetchers = %d, want 2", cfg.Cache.NumFetchers)
	}
	if cfg.Kafka.KafkaEnabled() {
		t.Errorf("expected kafka disabled with no servers configured")
	}
}

func TestLoadRejectsNonDescendingScales(t *testing.T) {
	path := writeTemp(t, `
[render]
screen_scales = [0.5, 0.5]
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for non-descending screen_scales")
	}
}

func TestLoadRejectsBadIoBudget(t *testing.T) {
	path := writeTemp(t, `
[render]
io_budget_per_frame = [1000, 2000]
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for non-monotone io_budget_per_frame")
	}
}

func TestLoadRejectsUnknownCodec(t *testing.T) {
	path := writeTemp(t, `
[store]
codec = "lz4"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown store codec")
	}
}

func TestKafkaEnabled(t *testing.T) {
	path := writeTemp(t, `
[kafka]
servers = ["localhost:9092"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Kafka.KafkaEnabled() {
		t.Errorf("expected kafka enabled with servers configured")
	}
}
