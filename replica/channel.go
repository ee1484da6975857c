package replica

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/luminal-games/driftsync/shared/syncmath"
)

// Kind bundles the value-type operations a channel needs: blending,
// a distance metric for the overshoot guard, and approximate equality
// for change detection.
type Kind[V any] struct {
	Blend    func(a, b V, t float64) V
	Distance func(a, b V) float64
	Equal    func(a, b V, tol float64) bool
}

// PositionKind blends linearly and measures Euclidean distance.
var PositionKind = Kind[mgl64.Vec3]{
	Blend:    syncmath.Lerp,
	Distance: syncmath.Distance,
	Equal:    syncmath.ApproxEqualVec,
}

// RotationKind blends along the shortest arc and measures arc angle.
var RotationKind = Kind[mgl64.Quat]{
	Blend:    syncmath.SlerpShortest,
	Distance: syncmath.AngleBetween,
	Equal:    syncmath.ApproxEqualQuat,
}

// Channel is the prediction state machine for one replicated property.
// It holds the last two accepted samples and the time elapsed since the
// current pair began interpolating. States: empty (no data), single
// (start only, hold), double (start and end, blend). Extrapolation is a
// mode within double, not a separate state.
//
// Channels are not safe for concurrent use: samples arrive and renders
// run on the same logical tick thread.
type Channel[V any] struct {
	kind Kind[V]

	// interval is the estimated time between authority updates;
	// weight = elapsed / interval.
	interval         float64
	interpolate      bool
	extrapolate      bool
	maxExtrapolation float64

	start, end       V
	startSet, endSet bool
	elapsed          float64
}

// NewChannel creates an empty channel tuned from cfg.
func NewChannel[V any](kind Kind[V], cfg Config) *Channel[V] {
	return &Channel[V]{
		kind:             kind,
		interval:         cfg.SendInterval(),
		interpolate:      cfg.Interpolate,
		extrapolate:      cfg.Extrapolate,
		maxExtrapolation: cfg.MaxExtrapolation,
	}
}

// Ingest feeds one received sample into the state machine. It reports
// whether the sample was accepted; rejection happens only under the
// overshoot guard, when the channel has already extrapolated further
// from the last confirmed sample than the new ground truth sits. A
// rejected sample is dropped for this cycle so a bad prediction is not
// compounded by a sudden correction; the next consistent sample is
// accepted normally.
func (c *Channel[V]) Ingest(sample V) bool {
	switch {
	case !c.startSet:
		c.start = sample
		c.startSet = true
		return true

	case !c.endSet:
		c.end = sample
		c.endSet = true
		return true

	case !c.interpolate:
		// Snapping mode: the render step jumps straight to end.
		c.end = sample
		return true
	}

	if c.extrapolate && c.elapsed > c.interval {
		rendered := c.Value()
		realDelta := c.kind.Distance(c.end, sample)
		extrapDelta := c.kind.Distance(c.end, rendered)
		if extrapDelta > realDelta {
			return false
		}
	}

	// Restart the blend from the value currently on screen, not the
	// old start, so the hand-off to the new target shows no jump. The
	// fractional remainder of elapsed carries over the boundary.
	c.start = c.Value()
	c.end = sample
	c.elapsed = math.Mod(c.elapsed, c.interval)
	return true
}

// Force collapses the channel to a single known-good value, discarding
// any in-flight interpolation or extrapolation. The next render yields
// exactly value.
func (c *Channel[V]) Force(value V) {
	c.start = value
	c.startSet = true
	c.endSet = false
	c.elapsed = 0
}

// Advance moves the channel's local clock forward by dt seconds and
// returns the value to apply to the live transform. ok is false while
// the channel is empty, in which case the transform is left untouched.
func (c *Channel[V]) Advance(dt float64) (value V, ok bool) {
	if c.endSet {
		c.elapsed += dt
	}
	return c.Value(), c.startSet
}

// Value computes the current output without advancing the clock.
func (c *Channel[V]) Value() V {
	switch {
	case !c.startSet:
		var zero V
		return zero
	case !c.endSet:
		return c.start
	case !c.interpolate:
		return c.end
	}
	return c.kind.Blend(c.start, c.end, c.Weight())
}

// Weight returns the current blend weight: elapsed scaled by the update
// interval, clamped to [0,1] without extrapolation and to
// [0, MaxExtrapolation+1] with it.
func (c *Channel[V]) Weight() float64 {
	w := c.elapsed / c.interval
	limit := 1.0
	if c.extrapolate {
		limit = c.maxExtrapolation + 1
	}
	return mgl64.Clamp(w, 0, limit)
}

// Extrapolating reports whether the channel is currently past its last
// confirmed sample.
func (c *Channel[V]) Extrapolating() bool {
	return c.endSet && c.extrapolate && c.elapsed > c.interval
}
