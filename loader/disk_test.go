package loader

import (
	"context"
	"testing"
)

func TestDiskLoaderRoundTripSnappy(t *testing.T) {
	dl, err := NewDiskLoader(DiskLoaderConfig{
		Directory:       t.TempDir(),
		BytesPerElement: 2,
		Codec:           CodecSnappy,
	})
	if err != nil {
		t.Fatalf("NewDiskLoader: %v", err)
	}
	defer dl.Close()

	dims := [3]int{4, 4, 4}
	origin := [3]int64{0, 32, 64}
	want := make([]byte, dims[0]*dims[1]*dims[2]*2)
	for i := range want {
		want[i] = byte(i)
	}

	if err := dl.StoreArray(0, 0, 1, dims, origin, want); err != nil {
		t.Fatalf("StoreArray: %v", err)
	}

	payload, err := dl.LoadArray(context.Background(), 0, 0, 1, dims, origin)
	if err != nil {
		t.Fatalf("LoadArray: %v", err)
	}
	if !payload.IsValid() {
		t.Fatalf("expected valid payload")
	}
	got := payload.Bytes()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d mismatch: got %d want %d", i, got[i], want[i])
		}
	}
}

func TestDiskLoaderMissingBlockErrors(t *testing.T) {
	dl, err := NewDiskLoader(DiskLoaderConfig{Directory: t.TempDir(), BytesPerElement: 1})
	if err != nil {
		t.Fatalf("NewDiskLoader: %v", err)
	}
	defer dl.Close()

	if _, err := dl.LoadArray(context.Background(), 0, 0, 0, [3]int{1, 1, 1}, [3]int64{0, 0, 0}); err == nil {
		t.Fatalf("expected error loading a block that was never stored")
	}
}

func TestDiskLoaderEmptyArrayIsInvalid(t *testing.T) {
	dl, err := NewDiskLoader(DiskLoaderConfig{Directory: t.TempDir(), BytesPerElement: 1})
	if err != nil {
		t.Fatalf("NewDiskLoader: %v", err)
	}
	defer dl.Close()

	p := dl.EmptyArray([3]int{2, 2, 2})
	if p.IsValid() {
		t.Fatalf("placeholder payload must be invalid")
	}
	if len(p.Bytes()) != 8 {
		t.Fatalf("expected 8 placeholder bytes, got %d", len(p.Bytes()))
	}
}
