package bfield

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Gradient is an axial field varying linearly along z, Bz = B0 + G·(z - Z0),
// with the matching radial component.
type Gradient struct {
	Stepper
	B0         float64 // [T]
	G          float64 // [T / mm]
	Z0         float64 // [mm]
	zmin, zmax float64
}

func NewGradient(b0, g, z0, zmin, zmax float64) *Gradient {
	return &Gradient{Stepper: DefaultStepper(), B0: b0, G: g, Z0: z0, zmin: zmin, zmax: zmax}
}

func (g *Gradient) FieldAt(pos r3.Vec) r3.Vec {
	return r3.Vec{
		X: -0.5 * pos.X * g.G,
		Y: -0.5 * pos.Y * g.G,
		Z: g.B0 + g.G*(pos.Z-g.Z0),
	}
}

func (g *Gradient) ZMin() float64 { return g.zmin }
func (g *Gradient) ZMax() float64 { return g.zmax }

func (g *Gradient) ToleranceStep(p Path, t0, tol float64) float64 {
	return g.Step(g.FieldAt, p, t0, tol)
}
