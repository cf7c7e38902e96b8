package piece

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/wildstyl3r/tracktoy/internal/constants"
	"github.com/wildstyl3r/tracktoy/internal/particle"
	"github.com/wildstyl3r/tracktoy/internal/timerange"
	"github.com/wildstyl3r/tracktoy/internal/utils"
)

const (
	zTolerance   = 1e-9 // [mm]
	newtonSteps  = 50
	scanSteps    = 64 // brackets per two revolutions
	flatBendingZ = 1e-12
)

// Helix is the exact motion of a charged particle in the uniform field bnom.
// The velocity splits into a drift along the field and a perpendicular part
// rotating with angular frequency omega:
//
//	v(τ) = vpar·b + vperp·cos(ωτ) + vcross·sin(ωτ),  vcross = vperp × b
//
// A neutral particle or a null field gives omega = 0 and a straight line.
type Helix struct {
	pos0   r3.Vec
	t0     float64
	mass   float64
	charge int
	mom    float64
	energy float64
	bnom   r3.Vec
	bhat   r3.Vec
	omega  float64 // [rad / ns], signed by charge
	vpar   float64
	vperp  r3.Vec
	vcross r3.Vec
	rng    timerange.Range
}

func NewHelix(s particle.State, bnom r3.Vec, r timerange.Range) (Helix, error) {
	if err := validate(s, bnom, r); err != nil {
		return Helix{}, err
	}
	h := Helix{
		pos0:   s.Position,
		t0:     s.Time,
		mass:   s.Mass,
		charge: s.Charge,
		mom:    s.MomentumMag(),
		energy: s.Energy(),
		bnom:   bnom,
		rng:    r,
	}
	vel := s.Velocity()
	bmag := r3.Norm(bnom)
	if s.Charge == 0 || bmag == 0 {
		h.vperp = vel
		return h, nil
	}
	h.bhat = r3.Scale(1/bmag, bnom)
	h.omega = constants.Curvature * float64(s.Charge) * bmag * constants.SpeedOfLight / h.energy
	h.vpar = r3.Dot(vel, h.bhat)
	h.vperp = r3.Sub(vel, r3.Scale(h.vpar, h.bhat))
	h.vcross = r3.Cross(h.vperp, h.bhat)
	return h, nil
}

func (h Helix) Range() timerange.Range { return h.rng }
func (h Helix) Mass() float64          { return h.mass }
func (h Helix) Charge() int            { return h.charge }
func (h Helix) NominalField() r3.Vec   { return h.bnom }
func (h Helix) Energy() float64        { return h.energy }
func (h Helix) Omega() float64         { return h.omega }

// Radius of the transverse circle [mm]; +Inf for a straight line.
func (h Helix) Radius() float64 {
	if h.omega == 0 {
		return math.Inf(1)
	}
	return r3.Norm(h.vperp) / math.Abs(h.omega)
}

// Period of one revolution [ns]; +Inf for a straight line.
func (h Helix) Period() float64 {
	if h.omega == 0 {
		return math.Inf(1)
	}
	return 2 * math.Pi / math.Abs(h.omega)
}

func (h Helix) Position(t float64) r3.Vec {
	tau := t - h.t0
	if h.omega == 0 {
		return r3.Add(h.pos0, r3.Scale(tau, h.vperp))
	}
	phi := h.omega * tau
	half := math.Sin(0.5 * phi)
	pos := r3.Add(h.pos0, r3.Scale(h.vpar*tau, h.bhat))
	pos = r3.Add(pos, r3.Scale(math.Sin(phi)/h.omega, h.vperp))
	return r3.Add(pos, r3.Scale(2*half*half/h.omega, h.vcross))
}

func (h Helix) Velocity(t float64) r3.Vec {
	if h.omega == 0 {
		return h.vperp
	}
	sin, cos := math.Sincos(h.omega * (t - h.t0))
	vel := r3.Scale(h.vpar, h.bhat)
	vel = r3.Add(vel, r3.Scale(cos, h.vperp))
	return r3.Add(vel, r3.Scale(sin, h.vcross))
}

func (h Helix) Direction(t float64) r3.Vec {
	return unit(h.Velocity(t))
}

func (h Helix) Momentum(t float64) r3.Vec {
	return r3.Scale(h.energy/constants.SpeedOfLight, h.Velocity(t))
}

func (h Helix) State(t float64) particle.State {
	return particle.New(h.Position(t), h.Momentum(t), t, h.mass, h.charge)
}

// TimeAtZ solves z(t) = z. When the field is along z the motion in z is
// linear and the inverse is exact. Otherwise Newton iteration starts from the
// drift estimate and falls back to bisection on a bracket within a
// revolution of it. Returns +Inf when no solution is found.
func (h Helix) TimeAtZ(z float64) float64 {
	dz := z - h.pos0.Z
	if h.omega == 0 {
		if h.vperp.Z == 0 {
			return math.Inf(1)
		}
		return h.t0 + dz/h.vperp.Z
	}
	drift := h.vpar * h.bhat.Z
	amplitude := math.Hypot(h.vperp.Z, h.vcross.Z) / math.Abs(h.omega)
	if amplitude < flatBendingZ {
		if drift == 0 {
			return math.Inf(1)
		}
		return h.t0 + dz/drift
	}

	guess := 0.
	if drift != 0 {
		guess = dz / drift
	}
	f := func(tau float64) float64 {
		return h.Position(h.t0+tau).Z - z
	}
	tau := guess
	for range newtonSteps {
		fz := f(tau)
		if math.Abs(fz) < zTolerance {
			return h.t0 + tau
		}
		vz := h.Velocity(h.t0 + tau).Z
		if vz == 0 {
			break
		}
		tau -= fz / vz
		if math.IsNaN(tau) || math.IsInf(tau, 0) {
			break
		}
	}

	period := h.Period()
	step := 2 * period / scanSteps
	left := guess - period
	fLeft := f(left)
	bracket := false
	var lo, hi float64
	for i := 1; i <= scanSteps; i++ {
		right := guess - period + float64(i)*step
		fRight := f(right)
		if (fLeft <= 0) != (fRight <= 0) {
			lo, hi = left, right
			bracket = true
			if right >= 0 {
				break
			}
		}
		left, fLeft = right, fRight
	}
	if !bracket {
		return math.Inf(1)
	}
	hiPositive := f(hi) > 0
	_, root := utils.BinarySearch(func(tau float64) bool {
		return (f(tau) > 0) == hiPositive
	}, lo, hi, zTolerance*period)
	return h.t0 + root
}

func (h Helix) Rebuild(s particle.State, bnom r3.Vec, r timerange.Range) (Helix, error) {
	return NewHelix(s, bnom, r)
}

func (h Helix) WithRange(r timerange.Range) Helix {
	h.rng = r
	return h
}
