package piece

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/wildstyl3r/tracktoy/internal/constants"
	"github.com/wildstyl3r/tracktoy/internal/particle"
	"github.com/wildstyl3r/tracktoy/internal/timerange"
)

// Line is straight-line motion. The nominal field is recorded but does not
// bend the path.
type Line struct {
	pos0   r3.Vec // position at t0 [mm]
	vel    r3.Vec // [mm / ns]
	t0     float64
	mass   float64
	charge int
	mom    float64 // |p| [MeV/c]
	energy float64
	bnom   r3.Vec
	rng    timerange.Range
}

func NewLine(s particle.State, bnom r3.Vec, r timerange.Range) (Line, error) {
	if err := validate(s, bnom, r); err != nil {
		return Line{}, err
	}
	return Line{
		pos0:   s.Position,
		vel:    s.Velocity(),
		t0:     s.Time,
		mass:   s.Mass,
		charge: s.Charge,
		mom:    s.MomentumMag(),
		energy: s.Energy(),
		bnom:   bnom,
		rng:    r,
	}, nil
}

func (l Line) Range() timerange.Range { return l.rng }
func (l Line) Mass() float64          { return l.mass }
func (l Line) Charge() int            { return l.charge }
func (l Line) NominalField() r3.Vec   { return l.bnom }
func (l Line) Energy() float64        { return l.energy }

func (l Line) Position(t float64) r3.Vec {
	return r3.Add(l.pos0, r3.Scale(t-l.t0, l.vel))
}

func (l Line) Direction(float64) r3.Vec {
	return unit(l.vel)
}

func (l Line) Velocity(float64) r3.Vec {
	return l.vel
}

func (l Line) Momentum(t float64) r3.Vec {
	return r3.Scale(l.energy/constants.SpeedOfLight, l.Velocity(t))
}

func (l Line) State(t float64) particle.State {
	return particle.New(l.Position(t), l.Momentum(t), t, l.mass, l.charge)
}

// TimeAtZ is +Inf when the line has no z motion.
func (l Line) TimeAtZ(z float64) float64 {
	if l.vel.Z == 0 {
		return math.Inf(1)
	}
	return l.t0 + (z-l.pos0.Z)/l.vel.Z
}

func (l Line) Rebuild(s particle.State, bnom r3.Vec, r timerange.Range) (Line, error) {
	return NewLine(s, bnom, r)
}

func (l Line) WithRange(r timerange.Range) Line {
	l.rng = r
	return l
}
