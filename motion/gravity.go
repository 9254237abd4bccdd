package pogo

import (
	Pt "github.com/maroda/pogo/types"
)

const (
	StandardGravity  = 9.81  // m/s², also the default baseline
	AlphaDetect      = 0.005 // ~3s time constant at typical sensor rates
	AlphaCalibrate   = 0.1   // fast reconvergence while calibrating
	degenerateCutoff = 0.1   // below this the gravity direction is undefined
)

// Gravity tracks the current "down" direction in device coordinates
type Gravity struct {
	Est Vec
}

func NewGravity() *Gravity {
	g := &Gravity{}
	g.Reset()
	return g
}

// Reset returns to the degenerate default, pointing down the Z axis
func (g *Gravity) Reset() {
	g.Est = Vec{X: 0, Y: 0, Z: StandardGravity}
}

// Restore seeds the estimate from persisted settings.
// A zero vector is ignored so a fresh store does not wipe the default.
func (g *Gravity) Restore(v Pt.Vec3) {
	if Vec(v).Norm() <= degenerateCutoff {
		return
	}
	g.Est = Vec(v)
}

// Update mutates the estimate for one sample and reports which derivation was used.
// Direct is only possible when the mode asks for the sensor AND a linear reading exists.
func (g *Gravity) Update(acc Vec, lin *Vec, mode Pt.GravityMode, calibrating bool) Pt.GravityDerivation {
	if mode == Pt.GravitySensor && lin != nil {
		g.Est = acc.Sub(*lin)
		return Pt.Direct
	}

	alpha := AlphaDetect
	if calibrating {
		alpha = AlphaCalibrate
	}
	g.Est = g.Est.Lerp(acc, alpha)
	return Pt.Filtered
}

func (g *Gravity) Magnitude() float64 {
	return g.Est.Norm()
}

// VerticalMagnitude projects the incoming motion onto the gravity axis,
// which makes detection independent of how the device is held.
//
// Direct: baseline plus the linear acceleration along gravity,
// holding the baseline when gravity is degenerate.
// Filtered: the absolute projection of total acceleration,
// falling back to the raw Euclidean norm when gravity is degenerate.
func (g *Gravity) VerticalMagnitude(d Pt.GravityDerivation, acc Vec, lin *Vec, baseline float64) float64 {
	gm := g.Magnitude()

	if d == Pt.Direct && lin != nil {
		if gm <= degenerateCutoff {
			return baseline
		}
		return baseline + lin.Dot(g.Est)/gm
	}

	if gm <= degenerateCutoff {
		return acc.Norm()
	}
	p := acc.Dot(g.Est) / gm
	if p < 0 {
		p = -p
	}
	return p
}
