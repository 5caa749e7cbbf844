package audio

import (
	"context"
	"errors"
	"testing"

	"github.com/goblinnotes/goblin/internal/failure"
)

func TestSelector_UnlockRequiresGesture(t *testing.T) {
	dev := NewMockDevice(MockOptions{RequireGesture: true})
	defer dev.Close()
	sel := NewSelector(dev, NewGraph())
	ctx := context.Background()

	if sel.State() != StateUninitialized {
		t.Errorf("initial state = %v", sel.State())
	}
	if sel.CanUseLowLatency() {
		t.Error("low latency available before unlock")
	}

	if got := sel.Acquire(); got != StateProbing {
		t.Errorf("Acquire() = %v, want probing", got)
	}

	if sel.Unlock(ctx, false) {
		t.Error("Unlock without gesture succeeded")
	}
	if sel.State() != StateLocked {
		t.Errorf("state = %v, want locked", sel.State())
	}

	if !sel.Unlock(ctx, true) {
		t.Fatal("Unlock with gesture failed")
	}
	if sel.State() != StateRunning || !sel.CanUseLowLatency() {
		t.Errorf("state = %v, want running", sel.State())
	}

	players := dev.Players()
	if len(players) != 1 || !players[0].IsPlaying() {
		t.Error("graph output not playing after unlock")
	}

	// running stays running without touching the device
	calls := dev.ResumeCalls
	if !sel.Unlock(ctx, false) || dev.ResumeCalls != calls {
		t.Error("second Unlock resumed the device again")
	}
}

func TestSelector_ForceUnsupported(t *testing.T) {
	dev := NewMockDevice(MockOptions{})
	defer dev.Close()
	sel := NewSelector(dev, NewGraph())

	sel.ForceUnsupported()
	if sel.Unlock(context.Background(), true) {
		t.Error("Unlock succeeded on unsupported selector")
	}
	if sel.State() != StateUnsupported || sel.CanUseLowLatency() {
		t.Errorf("state = %v, want unsupported", sel.State())
	}
}

func TestSelector_NoOutputIsUnsupported(t *testing.T) {
	dev := NewMockDevice(MockOptions{})
	_ = dev.Close()

	sel := NewSelector(dev, NewGraph())
	if got := sel.Acquire(); got != StateUnsupported {
		t.Errorf("Acquire() = %v, want unsupported", got)
	}
}

func TestSelector_ResumeFailure(t *testing.T) {
	dev := NewMockDevice(MockOptions{ResumeErr: errors.New("device busy")})
	defer dev.Close()
	sel := NewSelector(dev, NewGraph())

	if sel.Unlock(context.Background(), true) {
		t.Error("Unlock succeeded despite resume error")
	}
	if sel.State() != StateLocked {
		t.Errorf("state = %v, want locked", sel.State())
	}
}

func TestIsPolicyRejection(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"sentinel", failure.ErrPlaybackBlocked, true},
		{"coded", failure.New(failure.CodePlaybackBlocked, "blocked", nil), true},
		{"message", errors.New("NotAllowedError: denied"), true},
		{"other", errors.New("device busy"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isPolicyRejection(tt.err); got != tt.want {
				t.Errorf("isPolicyRejection(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestEngine_BackendFollowsSelector(t *testing.T) {
	dev := NewMockDevice(MockOptions{RequireGesture: true})
	src := &testSource{}
	engine := NewEngine(dev, src.load, testDecoder(100), DefaultTiming())
	defer engine.Close()

	if engine.Backend() != Backend(engine.Elements) {
		t.Error("locked engine should use elements")
	}
	engine.Selector.Unlock(WithUserGesture(context.Background()), true)
	if engine.Backend() != Backend(engine.Voices) {
		t.Error("running engine should use voices")
	}
}

func TestMockDevice_Gesture(t *testing.T) {
	dev := NewMockDevice(MockOptions{RequireGesture: true})
	defer dev.Close()
	ctx := context.Background()

	err := dev.Resume(ctx)
	if !errors.Is(err, failure.ErrPlaybackBlocked) {
		t.Fatalf("Resume() error = %v, want ErrPlaybackBlocked", err)
	}
	if !IsUserGesture(WithUserGesture(ctx)) || IsUserGesture(ctx) {
		t.Error("gesture marker not carried by context")
	}
	if err := dev.Resume(WithUserGesture(ctx)); err != nil {
		t.Fatalf("Resume() with gesture error = %v", err)
	}
	if err := dev.Resume(ctx); err != nil {
		t.Errorf("Resume() after unlock error = %v", err)
	}
}
