// Package bfield provides magnetic field maps and the tolerance-bounded
// stepping policy used to decide where a trajectory needs a fresh field
// sample. Maps are read-only after construction and safe for concurrent use.
package bfield

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/wildstyl3r/tracktoy/internal/constants"
	"github.com/wildstyl3r/tracktoy/internal/timerange"
)

// Path is the part of a trajectory piece the stepper needs.
type Path interface {
	Range() timerange.Range
	Position(t float64) r3.Vec
	Velocity(t float64) r3.Vec
	Momentum(t float64) r3.Vec
	NominalField() r3.Vec
	Charge() int
}

type Map interface {
	// FieldAt returns the field [T] at pos [mm].
	FieldAt(pos r3.Vec) r3.Vec
	ZMin() float64
	ZMax() float64
	// ToleranceStep returns the largest t1 > t0 within the path range for
	// which approximating the field by the path's nominal field keeps the
	// position error below tol [mm].
	ToleranceStep(p Path, t0, tol float64) float64
}

// Inside reports whether z lies in the map envelope.
func Inside(m Map, pos r3.Vec) bool {
	return pos.Z >= m.ZMin() && pos.Z <= m.ZMax()
}

// Stepper is the stepping policy shared by all maps. Lengths are path
// lengths in mm.
type Stepper struct {
	MaxStep float64 // longest piece
	MinStep float64 // shortest step, guarantees progress
	Probe   float64 // sampling interval of the deviation integral
}

func DefaultStepper() Stepper {
	return Stepper{
		MaxStep: 100,
		MinStep: 0.01,
		Probe:   5,
	}
}

// Step walks p from t0 and accumulates the transverse deviation caused by
// the difference between the true field and the nominal one,
//
//	dx += s·(t - t0)·Δt·|B(x(t)) - Bnom|,  s = Curvature·|q|·v²/|p|
//
// stopping at the last probe still under tol. A nil field skips the
// integral, leaving only the step caps. The result lies in (t0, end] when
// t0 < end.
func (s Stepper) Step(field func(r3.Vec) r3.Vec, p Path, t0, tol float64) float64 {
	end := p.Range().End
	if !(t0 < end) {
		return end
	}
	speed := r3.Norm(p.Velocity(t0))
	if speed == 0 {
		return end
	}
	tmax := end
	if s.MaxStep > 0 {
		tmax = math.Min(end, t0+s.MaxStep/speed)
	}
	tmin := tmax
	if s.MinStep > 0 {
		tmin = math.Min(tmax, t0+s.MinStep/speed)
	}
	if !(tmin > t0) {
		// step too small to be represented at this time
		tmin = math.Min(end, math.Nextafter(t0, math.Inf(1)))
	}
	mom := r3.Norm(p.Momentum(t0))
	if field == nil || p.Charge() == 0 || mom == 0 {
		return tmax
	}
	sfac := math.Abs(constants.Curvature * float64(p.Charge()) * speed * speed / mom)
	dt := (tmax - t0) / 16
	if s.Probe > 0 {
		dt = math.Min(dt, s.Probe/speed)
	}
	bnom := p.NominalField()
	dx := 0.
	tend := t0
	for tend < tmax {
		tnext := math.Min(tend+dt, tmax)
		db := r3.Norm(r3.Sub(field(p.Position(tnext)), bnom))
		dx += sfac * (tnext - t0) * (tnext - tend) * db
		if dx >= tol {
			return math.Max(tend, tmin)
		}
		tend = tnext
	}
	return tmax
}
