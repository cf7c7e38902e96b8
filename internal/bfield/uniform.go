package bfield

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Uniform is a constant field over a z envelope.
type Uniform struct {
	Stepper
	B          r3.Vec
	zmin, zmax float64
}

func NewUniform(b r3.Vec, zmin, zmax float64) *Uniform {
	return &Uniform{Stepper: DefaultStepper(), B: b, zmin: zmin, zmax: zmax}
}

func (u *Uniform) FieldAt(r3.Vec) r3.Vec { return u.B }
func (u *Uniform) ZMin() float64         { return u.zmin }
func (u *Uniform) ZMax() float64         { return u.zmax }

// ToleranceStep never samples the field: the nominal field of a piece built
// in this map is exact, so only the step caps apply.
func (u *Uniform) ToleranceStep(p Path, t0, tol float64) float64 {
	return u.Step(nil, p, t0, tol)
}
