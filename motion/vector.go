package pogo

import (
	"math"

	Pt "github.com/maroda/pogo/types"
)

// Vec is a local alias so vector math can hang off the core type
type Vec Pt.Vec3

func (v Vec) Dot(o Vec) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

func (v Vec) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

func (v Vec) Sub(o Vec) Vec {
	return Vec{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Lerp moves v toward o by alpha, the single-pole low-pass step
func (v Vec) Lerp(o Vec, alpha float64) Vec {
	return Vec{
		X: alpha*o.X + (1-alpha)*v.X,
		Y: alpha*o.Y + (1-alpha)*v.Y,
		Z: alpha*o.Z + (1-alpha)*v.Z,
	}
}

// ReadingVec converts a wire reading into a vector.
// Any missing or non-finite axis makes the whole reading unusable.
func ReadingVec(r *Pt.Reading) (Vec, bool) {
	if r == nil || r.X == nil || r.Y == nil || r.Z == nil {
		return Vec{}, false
	}
	v := Vec{X: *r.X, Y: *r.Y, Z: *r.Z}
	for _, f := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Vec{}, false
		}
	}
	return v, true
}

// NewReading is a convenience for sources and tests that have all three axes
func NewReading(x, y, z float64) Pt.Reading {
	return Pt.Reading{X: &x, Y: &y, Z: &z}
}
