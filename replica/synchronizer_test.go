package replica

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/luminal-games/driftsync/shared/messages"
	"github.com/luminal-games/driftsync/shared/syncmath"
)

func TestNewSynchronizerValidatesConfig(t *testing.T) {
	cfg := Config{CadenceMode: CadenceInterval} // no properties, no interval
	if _, err := NewSynchronizer(1, newFakeTransform(), nil, cfg, false); err == nil {
		t.Fatal("invalid config must be rejected")
	}
	if _, err := NewSynchronizer(1, nil, nil, DefaultConfig(), false); err == nil {
		t.Fatal("nil transform must be rejected")
	}
}

func TestObserverRendersPrediction(t *testing.T) {
	tr := newFakeTransform()
	s, err := NewSynchronizer(1, tr, nil, interpConfig(), false)
	if err != nil {
		t.Fatalf("NewSynchronizer: %v", err)
	}

	// Nothing received yet: the transform is left untouched.
	tr.pos = mgl64.Vec3{7, 7, 7}
	_ = s.Tick(0.1)
	if tr.pos != (mgl64.Vec3{7, 7, 7}) {
		t.Fatalf("empty observer wrote %v to the transform", tr.pos)
	}

	s.Handle(messages.UpdatePosition{Entity: 1, Value: [3]float64{0, 0, 0}})
	s.Handle(messages.UpdatePosition{Entity: 1, Value: [3]float64{10, 0, 0}})
	_ = s.Tick(0.5)
	if !tr.pos.ApproxEqual(mgl64.Vec3{5, 0, 0}) {
		t.Fatalf("render wrote %v, want (5,0,0)", tr.pos)
	}
}

func TestObserverIgnoresOtherEntities(t *testing.T) {
	tr := newFakeTransform()
	s, _ := NewSynchronizer(1, tr, nil, interpConfig(), false)

	s.Handle(messages.UpdatePosition{Entity: 2, Value: [3]float64{10, 0, 0}})
	_ = s.Tick(0.5)
	if tr.pos != (mgl64.Vec3{}) {
		t.Fatalf("foreign entity's update leaked into transform: %v", tr.pos)
	}
}

func TestAuthorityIgnoresInbound(t *testing.T) {
	tr := newFakeTransform()
	s, _ := NewSynchronizer(1, tr, &recordingSender{}, interpConfig(), true)

	s.Handle(messages.ForcePosition{Entity: 1, Value: [3]float64{99, 0, 0}})
	if tr.pos != (mgl64.Vec3{}) {
		t.Fatal("authority transform must never be written from the network")
	}
}

func TestForceWinsWithinBatch(t *testing.T) {
	tr := newFakeTransform()
	s, _ := NewSynchronizer(1, tr, nil, interpConfig(), false)

	// A force and a stale unreliable sample land in the same batch, in
	// arbitrary transport order. The force must decide the next render.
	s.HandleBatch([]any{
		messages.ForcePosition{Entity: 1, Value: [3]float64{50, 0, 0}},
		messages.UpdatePosition{Entity: 1, Value: [3]float64{3, 0, 0}},
		messages.UpdatePosition{Entity: 1, Value: [3]float64{4, 0, 0}},
	})
	_ = s.Tick(0.1)
	if tr.pos != (mgl64.Vec3{50, 0, 0}) {
		t.Fatalf("render after batch = %v, want the forced (50,0,0)", tr.pos)
	}
}

func TestForceRotationSnapsExactly(t *testing.T) {
	tr := newFakeTransform()
	s, _ := NewSynchronizer(1, tr, nil, interpConfig(), false)

	want := mgl64.QuatRotate(1.9, mgl64.Vec3{1, 2, 0}.Normalize())
	s.Handle(messages.ForceRotation{Entity: 1, Value: syncmath.EncodeRotation(want)})
	_ = s.Tick(0.2)
	if !syncmath.ApproxEqualQuat(tr.rot, want, 1e-7) {
		t.Fatalf("forced rotation = %+v, want %+v", tr.rot, want)
	}
}

func TestAuthorityIntervalCadence(t *testing.T) {
	tr := newFakeTransform()
	out := &recordingSender{}
	cfg := interpConfig() // interval cadence, 1s
	s, _ := NewSynchronizer(1, tr, out, cfg, true)

	// Sub-interval frames accumulate without firing.
	for i := 0; i < 9; i++ {
		if err := s.Tick(0.1); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	if len(out.log) != 0 {
		t.Fatalf("timer fired early: %d messages", len(out.log))
	}

	// Crossing the interval fires exactly once and re-arms.
	_ = s.Tick(0.15)
	if len(out.log) != 2 {
		t.Fatalf("first firing sent %d messages, want 2", len(out.log))
	}
}

func TestPhysicsCadenceOnlyFiresOnPhysicsTick(t *testing.T) {
	tr := newFakeTransform()
	out := &recordingSender{}
	s, _ := NewSynchronizer(1, tr, out, DefaultConfig(), true)

	_ = s.Tick(0.016)
	if len(out.log) != 0 {
		t.Fatalf("frame tick fired the physics cadence: %d messages", len(out.log))
	}

	if err := s.PhysicsTick(); err != nil {
		t.Fatalf("PhysicsTick: %v", err)
	}
	if len(out.log) != 2 {
		t.Fatalf("physics tick sent %d messages, want 2", len(out.log))
	}
}

func TestForceUpdateRequiresAuthority(t *testing.T) {
	s, _ := NewSynchronizer(1, newFakeTransform(), &recordingSender{}, interpConfig(), false)
	if err := s.ForceUpdate(); !errors.Is(err, ErrNotAuthority) {
		t.Fatalf("ForceUpdate as observer = %v, want ErrNotAuthority", err)
	}
	if err := s.SeedPeer(7); !errors.Is(err, ErrNotAuthority) {
		t.Fatalf("SeedPeer as observer = %v, want ErrNotAuthority", err)
	}
}

func TestRoleSwitchKeepsChannelState(t *testing.T) {
	tr := newFakeTransform()
	s, _ := NewSynchronizer(1, tr, &recordingSender{}, interpConfig(), false)

	s.Handle(messages.UpdatePosition{Entity: 1, Value: [3]float64{0, 0, 0}})
	s.Handle(messages.UpdatePosition{Entity: 1, Value: [3]float64{10, 0, 0}})
	_ = s.Tick(0.25)

	// Briefly authoritative, then observer again: the in-flight blend
	// continues where it left off.
	s.SetAuthority(true)
	s.SetAuthority(false)
	_ = s.Tick(0.25)
	if !tr.pos.ApproxEqual(mgl64.Vec3{5, 0, 0}) {
		t.Fatalf("blend after role round-trip = %v, want (5,0,0)", tr.pos)
	}
}
