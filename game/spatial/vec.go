// Package spatial holds the geometry types the behavior engine works in and
// the query service it consumes for walkability, reachability and occlusion.
//
// The ground plane is X/Z; Y is up. Range checks ignore Y.
package spatial

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Vec is a world-space point or direction.
type Vec = r3.Vec

// HorizontalDistSq returns the squared ground-plane distance between a and b.
func HorizontalDistSq(a, b Vec) float64 {
	dx := a.X - b.X
	dz := a.Z - b.Z
	return dx*dx + dz*dz
}

// HorizontalDist returns the ground-plane distance between a and b.
func HorizontalDist(a, b Vec) float64 {
	return math.Sqrt(HorizontalDistSq(a, b))
}

// WithinSq reports whether a and b are within r of each other on the ground plane.
func WithinSq(a, b Vec, r float64) bool {
	return HorizontalDistSq(a, b) <= r*r
}

// Flat drops the vertical component.
func Flat(v Vec) Vec {
	return Vec{X: v.X, Z: v.Z}
}

// HorizontalDir returns the unit ground-plane direction from a to b and
// false when the two points coincide on the ground plane.
func HorizontalDir(from, to Vec) (Vec, bool) {
	d := Flat(r3.Sub(to, from))
	n := r3.Norm(d)
	if n < 1e-9 {
		return Vec{}, false
	}
	return r3.Scale(1/n, d), true
}

// Offset returns p moved by dist along dir.
func Offset(p, dir Vec, dist float64) Vec {
	return r3.Add(p, r3.Scale(dist, dir))
}

// Polar returns the ground-plane unit vector at angle a (radians, from +X toward +Z).
func Polar(a float64) Vec {
	return Vec{X: math.Cos(a), Z: math.Sin(a)}
}

// Lerp interpolates between a and b by t without clamping.
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// LerpVec interpolates between two points by t without clamping.
func LerpVec(a, b Vec, t float64) Vec {
	return r3.Add(a, r3.Scale(t, r3.Sub(b, a)))
}

// Clamp01 clamps t into [0,1].
func Clamp01(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}
