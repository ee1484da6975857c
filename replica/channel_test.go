package replica

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/luminal-games/driftsync/shared/syncmath"
)

func interpConfig() Config {
	return Config{
		SyncPosition:  true,
		SyncRotation:  true,
		CadenceMode:   CadenceInterval,
		FixedInterval: 1.0,
		Interpolate:   true,
	}
}

func extrapConfig(max float64) Config {
	cfg := interpConfig()
	cfg.Extrapolate = true
	cfg.MaxExtrapolation = max
	return cfg
}

func TestChannelEmptyProducesNothing(t *testing.T) {
	c := NewChannel(PositionKind, interpConfig())
	if _, ok := c.Advance(0.1); ok {
		t.Fatal("empty channel must not produce a value")
	}
}

func TestChannelSingleHolds(t *testing.T) {
	c := NewChannel(PositionKind, interpConfig())
	c.Ingest(mgl64.Vec3{3, 4, 5})

	for i := 0; i < 5; i++ {
		v, ok := c.Advance(0.25)
		if !ok || !v.ApproxEqual(mgl64.Vec3{3, 4, 5}) {
			t.Fatalf("single-sample channel must hold: got %v ok=%v", v, ok)
		}
	}
}

func TestChannelInterpolatesMidpoint(t *testing.T) {
	c := NewChannel(PositionKind, interpConfig())
	c.Ingest(mgl64.Vec3{0, 0, 0})
	c.Ingest(mgl64.Vec3{10, 0, 0})

	v, ok := c.Advance(0.5)
	if !ok {
		t.Fatal("double channel must produce a value")
	}
	if !v.ApproxEqual(mgl64.Vec3{5, 0, 0}) {
		t.Fatalf("halfway render = %v, want (5,0,0)", v)
	}
}

func TestChannelWeightClampedWithoutExtrapolation(t *testing.T) {
	c := NewChannel(PositionKind, interpConfig())
	c.Ingest(mgl64.Vec3{0, 0, 0})
	c.Ingest(mgl64.Vec3{10, 0, 0})

	v, _ := c.Advance(7.5)
	if w := c.Weight(); w != 1.0 {
		t.Fatalf("weight = %v, want clamp at 1", w)
	}
	if !v.ApproxEqual(mgl64.Vec3{10, 0, 0}) {
		t.Fatalf("clamped render = %v, want (10,0,0)", v)
	}
}

func TestChannelExtrapolates(t *testing.T) {
	c := NewChannel(PositionKind, extrapConfig(2))
	c.Ingest(mgl64.Vec3{0, 0, 0})
	c.Ingest(mgl64.Vec3{10, 0, 0})

	v, _ := c.Advance(2.5)
	if w := c.Weight(); math.Abs(w-2.5) > 1e-12 {
		t.Fatalf("weight = %v, want 2.5", w)
	}
	if !v.ApproxEqual(mgl64.Vec3{25, 0, 0}) {
		t.Fatalf("extrapolated render = %v, want (25,0,0)", v)
	}

	// Weight caps at MaxExtrapolation+1 however long updates stay away.
	c.Advance(100)
	if w := c.Weight(); w != 3.0 {
		t.Fatalf("weight = %v, want cap at 3", w)
	}
}

func TestChannelSupersedeStartsFromRenderedValue(t *testing.T) {
	c := NewChannel(PositionKind, interpConfig())
	c.Ingest(mgl64.Vec3{0, 0, 0})
	c.Ingest(mgl64.Vec3{10, 0, 0})
	c.Advance(0.4) // rendering (4,0,0)

	c.Ingest(mgl64.Vec3{20, 0, 0})

	// No visible jump: the new blend starts exactly where the old one
	// was rendering, and the fractional elapsed carries forward.
	if v := c.Value(); !v.ApproxEqualThreshold(mgl64.Vec3{4 + 0.4*16, 0, 0}, 1e-9) {
		t.Fatalf("post-supersede render = %v", v)
	}
}

func TestChannelElapsedRemainderCarries(t *testing.T) {
	c := NewChannel(PositionKind, extrapConfig(5))
	c.Ingest(mgl64.Vec3{0, 0, 0})
	c.Ingest(mgl64.Vec3{10, 0, 0})
	c.Advance(2.25) // extrapolating, weight 2.25

	// Accept: new sample sits further out than the extrapolated point.
	if !c.Ingest(mgl64.Vec3{40, 0, 0}) {
		t.Fatal("consistent sample must be accepted")
	}
	if w := c.Weight(); math.Abs(w-0.25) > 1e-12 {
		t.Fatalf("carried weight = %v, want 0.25", w)
	}
}

func TestChannelOvershootGuard(t *testing.T) {
	c := NewChannel(PositionKind, extrapConfig(3))
	c.Ingest(mgl64.Vec3{0, 0, 0})
	c.Ingest(mgl64.Vec3{10, 0, 0})
	c.Advance(2.0) // rendering (20,0,0), 10 past end

	// Ground truth only reached 12: we overshot, reject this cycle.
	if c.Ingest(mgl64.Vec3{12, 0, 0}) {
		t.Fatal("overshot sample must be rejected")
	}
	if v := c.Value(); !v.ApproxEqual(mgl64.Vec3{20, 0, 0}) {
		t.Fatalf("rejected ingest must leave render at %v, got %v", mgl64.Vec3{20, 0, 0}, v)
	}

	// A subsequent sample past the extrapolated point is accepted.
	if !c.Ingest(mgl64.Vec3{22, 0, 0}) {
		t.Fatal("consistent sample after rejection must be accepted")
	}
	if v := c.Value(); !v.ApproxEqual(mgl64.Vec3{20, 0, 0}) {
		t.Fatalf("accepted blend must restart from rendered point, got %v", v)
	}
}

func TestChannelNoGuardWhileInterpolating(t *testing.T) {
	c := NewChannel(PositionKind, extrapConfig(3))
	c.Ingest(mgl64.Vec3{0, 0, 0})
	c.Ingest(mgl64.Vec3{10, 0, 0})
	c.Advance(0.5) // still inside the confirmed pair

	// Even a "backwards" sample is accepted while not extrapolating.
	if !c.Ingest(mgl64.Vec3{2, 0, 0}) {
		t.Fatal("samples must not be rejected while interpolating")
	}
}

func TestChannelForceSnaps(t *testing.T) {
	c := NewChannel(PositionKind, extrapConfig(2))
	c.Ingest(mgl64.Vec3{0, 0, 0})
	c.Ingest(mgl64.Vec3{10, 0, 0})
	c.Advance(1.7)

	c.Force(mgl64.Vec3{-50, 8, 0})

	v, ok := c.Advance(0.25)
	if !ok || v != (mgl64.Vec3{-50, 8, 0}) {
		t.Fatalf("render after force = %v ok=%v, want exact forced value", v, ok)
	}
	if c.Extrapolating() {
		t.Fatal("force must leave the channel out of extrapolation")
	}
}

func TestChannelSnapModeRendersNewestSample(t *testing.T) {
	cfg := interpConfig()
	cfg.Interpolate = false
	c := NewChannel(PositionKind, cfg)
	c.Ingest(mgl64.Vec3{0, 0, 0})
	c.Ingest(mgl64.Vec3{10, 0, 0})
	c.Ingest(mgl64.Vec3{30, 0, 0})

	v, _ := c.Advance(0.01)
	if !v.ApproxEqual(mgl64.Vec3{30, 0, 0}) {
		t.Fatalf("snap render = %v, want newest sample", v)
	}
}

func TestRotationChannelBlendsShortestArc(t *testing.T) {
	c := NewChannel(RotationKind, interpConfig())
	a := mgl64.QuatIdent()
	b := mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{0, 0, 1})
	c.Ingest(a)
	// Negated representation must not change the blend.
	c.Ingest(mgl64.Quat{W: -b.W, V: b.V.Mul(-1)})

	v, ok := c.Advance(0.5)
	if !ok {
		t.Fatal("double rotation channel must produce a value")
	}
	want := mgl64.QuatRotate(math.Pi/4, mgl64.Vec3{0, 0, 1})
	if !syncmath.ApproxEqualQuat(v, want, 1e-7) {
		t.Fatalf("rotation midpoint = %+v, want %+v", v, want)
	}
}
