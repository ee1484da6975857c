// Package syncmath provides the blend primitives and metrics used by
// transform replication: linear position blending, shortest-arc rotation
// blending, and the compact 3-float rotation encoding used on the wire.
// It must have zero dependencies on the transport or any game library so
// both authority and observer code can share it.
package syncmath

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// DefaultTolerance is the approximate-equality threshold used by the
// change detector. Values closer than this are considered unchanged so
// floating-point jitter never produces outbound messages.
const DefaultTolerance = 1e-4

// Lerp linearly blends between two positions. t is not clamped: values
// above 1 extrapolate past b along the same direction.
func Lerp(a, b mgl64.Vec3, t float64) mgl64.Vec3 {
	return a.Add(b.Sub(a).Mul(t))
}

// Distance returns the Euclidean distance between two positions.
func Distance(a, b mgl64.Vec3) float64 {
	return b.Sub(a).Len()
}

// SlerpShortest spherically blends between two orientations along the
// minimal arc. The result is identical whether a quaternion or its
// negation is used for either endpoint. t is not clamped.
func SlerpShortest(a, b mgl64.Quat, t float64) mgl64.Quat {
	a = a.Normalize()
	b = b.Normalize()
	if a.Dot(b) < 0 {
		b = negate(b)
	}

	dot := mgl64.Clamp(a.Dot(b), -1, 1)
	// Nearly parallel: acos is numerically unstable, fall back to a
	// normalized linear blend.
	if dot > 0.9995 {
		return nlerp(a, b, t)
	}

	theta := math.Acos(dot)
	sinTheta := math.Sin(theta)
	wa := math.Sin((1-t)*theta) / sinTheta
	wb := math.Sin(t*theta) / sinTheta
	return mgl64.Quat{
		W: wa*a.W + wb*b.W,
		V: a.V.Mul(wa).Add(b.V.Mul(wb)),
	}.Normalize()
}

// AngleBetween returns the rotation angle in radians separating two
// orientations, in [0, π]. Sign of either quaternion does not matter.
func AngleBetween(a, b mgl64.Quat) float64 {
	dot := math.Abs(a.Normalize().Dot(b.Normalize()))
	return 2 * math.Acos(mgl64.Clamp(dot, 0, 1))
}

// ApproxEqualVec reports whether two positions are within tol of each
// other on every axis.
func ApproxEqualVec(a, b mgl64.Vec3, tol float64) bool {
	return a.ApproxEqualThreshold(b, tol)
}

// ApproxEqualQuat reports whether two quaternions represent nearly the
// same orientation. The comparison is sign-blind: q and -q are equal.
func ApproxEqualQuat(a, b mgl64.Quat, tol float64) bool {
	return AngleBetween(a, b) <= tol
}

// EncodeRotation packs a unit quaternion into a scaled axis-angle
// vector: direction is the rotation axis, length is the angle in
// radians. Three floats instead of four on the wire; DecodeRotation
// reverses it exactly up to quaternion sign.
func EncodeRotation(q mgl64.Quat) [3]float64 {
	q = q.Normalize()
	// Canonical hemisphere so the encoded angle stays in [0, π].
	if q.W < 0 {
		q = negate(q)
	}
	w := mgl64.Clamp(q.W, -1, 1)
	angle := 2 * math.Acos(w)
	s := math.Sqrt(1 - w*w)
	if s < 1e-9 {
		return [3]float64{}
	}
	axis := q.V.Mul(1 / s)
	rv := axis.Mul(angle)
	return [3]float64{rv.X(), rv.Y(), rv.Z()}
}

// DecodeRotation reconstructs a unit quaternion from a scaled
// axis-angle vector produced by EncodeRotation.
func DecodeRotation(v [3]float64) mgl64.Quat {
	rv := mgl64.Vec3{v[0], v[1], v[2]}
	angle := rv.Len()
	if angle < 1e-9 {
		return mgl64.QuatIdent()
	}
	return mgl64.QuatRotate(angle, rv.Mul(1/angle)).Normalize()
}

func nlerp(a, b mgl64.Quat, t float64) mgl64.Quat {
	return mgl64.Quat{
		W: a.W + (b.W-a.W)*t,
		V: Lerp(a.V, b.V, t),
	}.Normalize()
}

func negate(q mgl64.Quat) mgl64.Quat {
	return mgl64.Quat{W: -q.W, V: q.V.Mul(-1)}
}
