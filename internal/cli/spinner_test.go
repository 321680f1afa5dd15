package cli

import (
	"context"
	"testing"
	"time"
)

func TestSpinnerStartStop(t *testing.T) {
	s := newSpinner("working")
	s.Start()
	time.Sleep(20 * time.Millisecond)
	s.Stop()

	// A second Stop must not panic.
	s.Stop()
}

func TestSpinnerSetMessage(t *testing.T) {
	s := newSpinner("phase one")
	s.Start()
	s.SetMessage("phase two with a longer line")
	time.Sleep(20 * time.Millisecond)
	s.Stop()
}

func TestSpinnerParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := newSpinnerWithContext(ctx, "cancellable")
	s.Start()
	cancel()

	if !s.Cancelled() {
		t.Error("spinner should report cancellation")
	}
	s.Stop()
}
