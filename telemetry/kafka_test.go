package telemetry

import "testing"

func TestNewDisabledWithoutServers(t *testing.T) {
	p, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Publish/Close/RunLoop must all be no-ops on a disabled Publisher.
	p.Publish(Snapshot{CacheLen: 3})
	p.Close()
}
