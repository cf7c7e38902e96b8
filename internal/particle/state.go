// Package particle carries the kinematic snapshot passed between trajectory
// pieces.
package particle

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/wildstyl3r/tracktoy/internal/constants"
)

// State is a particle snapshot at one time. Position in mm, momentum in
// MeV/c, time in ns, mass in MeV, charge in units of e.
type State struct {
	Position r3.Vec
	Momentum r3.Vec
	Time     float64
	Mass     float64
	Charge   int
}

func New(position, momentum r3.Vec, time, mass float64, charge int) State {
	return State{
		Position: position,
		Momentum: momentum,
		Time:     time,
		Mass:     mass,
		Charge:   charge,
	}
}

func (s State) MomentumMag() float64 {
	return r3.Norm(s.Momentum)
}

func (s State) Energy() float64 {
	return math.Sqrt(r3.Norm2(s.Momentum) + s.Mass*s.Mass)
}

func (s State) KineticEnergy() float64 {
	return s.Energy() - s.Mass
}

// Direction is the unit momentum vector; zero for a particle at rest.
func (s State) Direction() r3.Vec {
	p := s.MomentumMag()
	if p == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/p, s.Momentum)
}

// Velocity in mm/ns.
func (s State) Velocity() r3.Vec {
	return r3.Scale(constants.SpeedOfLight/s.Energy(), s.Momentum)
}

func (s State) Speed() float64 {
	return r3.Norm(s.Velocity())
}

func (s State) Beta() float64 {
	return s.MomentumMag() / s.Energy()
}

func (s State) Gamma() float64 {
	if s.Mass == 0 {
		return math.Inf(1)
	}
	return s.Energy() / s.Mass
}

// WithEnergy returns the state with the momentum magnitude rescaled to match
// total energy e, direction unchanged. ok is false when e does not exceed the
// mass.
func (s State) WithEnergy(e float64) (State, bool) {
	if !(e > s.Mass) {
		return s, false
	}
	s.Momentum = r3.Scale(math.Sqrt(e*e-s.Mass*s.Mass), s.Direction())
	return s, true
}

func (s State) Valid() error {
	for _, v := range []float64{s.Position.X, s.Position.Y, s.Position.Z, s.Momentum.X, s.Momentum.Y, s.Momentum.Z, s.Time, s.Mass} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite particle state %v", s)
		}
	}
	if s.Mass < 0 {
		return fmt.Errorf("negative mass %g", s.Mass)
	}
	return nil
}

func (s State) String() string {
	return fmt.Sprintf("pos=(%g, %g, %g) mom=(%g, %g, %g) t=%g m=%g q=%d",
		s.Position.X, s.Position.Y, s.Position.Z,
		s.Momentum.X, s.Momentum.Y, s.Momentum.Z,
		s.Time, s.Mass, s.Charge)
}
