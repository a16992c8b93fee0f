package projector

import (
	"context"
	"testing"

	"github.com/janelia-flyem/volview/viewer"
)

// fakeProjector is a minimal Projector double for exercising Accumulate in
// isolation from Hierarchical.
type fakeProjector struct {
	mapResult bool
	valid     bool
	cancelled bool
	fill      func(img *viewer.Image)
}

func (f *fakeProjector) Map(ctx context.Context, clearUntouchedTargetPixels bool) bool {
	if f.fill != nil {
		f.fill(nil)
	}
	return f.mapResult
}
func (f *fakeProjector) Cancel()               { f.cancelled = true }
func (f *fakeProjector) IsValid() bool         { return f.valid }
func (f *fakeProjector) LastFrameNanos() int64 { return 0 }

func TestAccumulateSumsChannelsWithSaturation(t *testing.T) {
	target := viewer.NewImage(1, 1)
	img1 := viewer.NewImage(1, 1)
	img2 := viewer.NewImage(1, 1)
	img1.Pix[0] = 0x10101010
	img2.Pix[0] = 0xF0F0F0F0

	sub1 := &fakeProjector{mapResult: true, valid: true}
	sub2 := &fakeProjector{mapResult: true, valid: true}
	acc := NewAccumulate([]Projector{sub1, sub2}, []*viewer.Image{img1, img2}, target, 2)

	ok := acc.Map(context.Background(), false)
	if !ok {
		t.Fatalf("expected Map success when every sub-projector succeeds")
	}
	// 0x10 + 0xF0 = 0x100, saturates to 0xFF in every channel.
	if target.Pix[0] != 0xFFFFFFFF {
		t.Fatalf("got %#x, want saturated 0xffffffff", target.Pix[0])
	}
}

func TestAccumulateFailsIfAnySubFails(t *testing.T) {
	target := viewer.NewImage(1, 1)
	img1 := viewer.NewImage(1, 1)
	img2 := viewer.NewImage(1, 1)

	sub1 := &fakeProjector{mapResult: true, valid: true}
	sub2 := &fakeProjector{mapResult: false, valid: false}
	acc := NewAccumulate([]Projector{sub1, sub2}, []*viewer.Image{img1, img2}, target, 2)

	if ok := acc.Map(context.Background(), false); ok {
		t.Fatalf("expected Map to fail when one sub-projector is cancelled")
	}
}

func TestAccumulateCancelPropagatesToSubs(t *testing.T) {
	sub1 := &fakeProjector{mapResult: true, valid: true}
	sub2 := &fakeProjector{mapResult: true, valid: true}
	acc := NewAccumulate([]Projector{sub1, sub2}, nil, viewer.NewImage(1, 1), 1)

	acc.Cancel()
	if !sub1.cancelled || !sub2.cancelled {
		t.Fatalf("expected Cancel to propagate to every sub-projector")
	}
}

func TestAccumulateIsValidRequiresAllSubsValid(t *testing.T) {
	sub1 := &fakeProjector{mapResult: true, valid: true}
	sub2 := &fakeProjector{mapResult: true, valid: false}
	acc := NewAccumulate([]Projector{sub1, sub2}, nil, viewer.NewImage(1, 1), 1)
	acc.Map(context.Background(), false)

	if acc.IsValid() {
		t.Fatalf("expected IsValid to require every sub-projector valid")
	}
}
