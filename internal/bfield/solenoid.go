package bfield

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Solenoid is an axial field B0 between Z1 and Z2 with tanh fringes of
// width Fringe. The radial component is the first-order term that keeps the
// field divergence free: Br = -(r/2)·dBz/dz.
type Solenoid struct {
	Stepper
	B0         float64 // [T]
	Z1, Z2     float64 // [mm]
	Fringe     float64 // [mm]
	zmin, zmax float64
}

func NewSolenoid(b0, z1, z2, fringe, zmin, zmax float64) *Solenoid {
	return &Solenoid{
		Stepper: DefaultStepper(),
		B0:      b0,
		Z1:      z1,
		Z2:      z2,
		Fringe:  fringe,
		zmin:    zmin,
		zmax:    zmax,
	}
}

func (s *Solenoid) axial(z float64) (bz, dbz float64) {
	u1 := (z - s.Z1) / s.Fringe
	u2 := (z - s.Z2) / s.Fringe
	t1, t2 := math.Tanh(u1), math.Tanh(u2)
	bz = 0.5 * s.B0 * (t1 - t2)
	dbz = 0.5 * s.B0 / s.Fringe * ((1 - t1*t1) - (1 - t2*t2))
	return
}

func (s *Solenoid) FieldAt(pos r3.Vec) r3.Vec {
	bz, dbz := s.axial(pos.Z)
	return r3.Vec{X: -0.5 * pos.X * dbz, Y: -0.5 * pos.Y * dbz, Z: bz}
}

func (s *Solenoid) ZMin() float64 { return s.zmin }
func (s *Solenoid) ZMax() float64 { return s.zmax }

func (s *Solenoid) ToleranceStep(p Path, t0, tol float64) float64 {
	return s.Step(s.FieldAt, p, t0, tol)
}
