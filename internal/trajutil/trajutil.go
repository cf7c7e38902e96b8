// Package trajutil manipulates piecewise trajectories: energy splices,
// tolerance-bounded extension through a field map and inversion of z(t).
//
// A trajectory must not be mutated concurrently; field maps may be shared.
package trajutil

import (
	"errors"
	"fmt"
	"math"

	"github.com/wildstyl3r/tracktoy/internal/bfield"
	"github.com/wildstyl3r/tracktoy/internal/particle"
	"github.com/wildstyl3r/tracktoy/internal/timerange"
	"github.com/wildstyl3r/tracktoy/internal/traj"
)

// NoCrossingOffset [ns] is added to the trajectory end to mark a failed z
// search.
const NoCrossingOffset = 1e-6

var (
	ErrOutOfRange = errors.New("time outside trajectory range")
	ErrTolerance  = errors.New("tolerance must be positive")
)

// UpdateEnergy changes the total energy of the particle at time t. If the new
// energy is above the mass, a piece starting at t with the rescaled momentum
// and the nominal field of the piece it replaces is appended, discarding
// everything after t, and continued is true. Otherwise the trajectory ends at
// t and continued is false.
func UpdateEnergy[P traj.Piece[P]](tr *traj.Trajectory[P], t, energy float64) (continued bool, err error) {
	r := tr.Range()
	if !r.Contains(t) {
		return false, fmt.Errorf("%w: t=%g, trajectory %v", ErrOutOfRange, t, r)
	}
	if math.IsNaN(energy) || math.IsInf(energy, 0) {
		return false, fmt.Errorf("non-finite energy %g", energy)
	}
	if !(energy > tr.Mass()) {
		if err := tr.SetRange(timerange.New(r.Begin, t), true); err != nil {
			return false, fmt.Errorf("terminating at t=%g: %w", t, err)
		}
		return false, nil
	}
	near := tr.NearestPiece(t)
	state, _ := near.State(t).WithEnergy(energy)
	p, err := near.Rebuild(state, near.NominalField(), timerange.New(t, r.End))
	if err != nil {
		return false, fmt.Errorf("splicing at t=%g: %w", t, err)
	}
	if err := tr.Append(p, true); err != nil {
		return false, fmt.Errorf("splicing at t=%g: %w", t, err)
	}
	return true, nil
}

// ExtendZ refines the open end of the trajectory by appending pieces built
// from fresh field samples until z reaches zmax, the particle leaves the map
// envelope, or stepping no longer advances inside the trajectory range. It
// reports whether zmax was reached. No piece is started outside the envelope.
func ExtendZ[P traj.Piece[P]](tr *traj.Trajectory[P], field bfield.Map, zmax, tol float64) (reached bool, err error) {
	if !(tol > 0) {
		return false, fmt.Errorf("%w: %g", ErrTolerance, tol)
	}
	if math.IsNaN(zmax) {
		return false, fmt.Errorf("%w: target z is NaN", ErrOutOfRange)
	}
	end := tr.Range().End
	t := tr.Back().Range().Begin
	pos := tr.Position(t)
	for pos.Z < zmax && bfield.Inside(field, pos) && t < end {
		back := tr.Back()
		next := field.ToleranceStep(back, t, tol)
		if !(next > t) || !(next < end) {
			pos = tr.Position(end)
			break
		}
		state := back.State(next)
		pos = state.Position
		if !bfield.Inside(field, pos) {
			break
		}
		if err := appendSample(tr, back, field, state, timerange.New(next, end)); err != nil {
			return false, err
		}
		t = next
	}
	return pos.Z >= zmax, nil
}

// ExtendTraj is ExtendZ with a time target: pieces are appended until the
// open end begins at or after tEnd or stepping stops advancing.
func ExtendTraj[P traj.Piece[P]](tr *traj.Trajectory[P], field bfield.Map, tEnd, tol float64) error {
	if !(tol > 0) {
		return fmt.Errorf("%w: %g", ErrTolerance, tol)
	}
	if math.IsNaN(tEnd) {
		return fmt.Errorf("%w: target time is NaN", ErrOutOfRange)
	}
	end := tr.Range().End
	t := tr.Back().Range().Begin
	for t < tEnd && t < end {
		back := tr.Back()
		next := field.ToleranceStep(back, t, tol)
		if !(next > t) || !(next < end) {
			break
		}
		if err := appendSample(tr, back, field, back.State(next), timerange.New(next, end)); err != nil {
			return err
		}
		t = next
	}
	return nil
}

func appendSample[P traj.Piece[P]](tr *traj.Trajectory[P], back P, field bfield.Map, state particle.State, r timerange.Range) error {
	p, err := back.Rebuild(state, field.FieldAt(state.Position), r)
	if err != nil {
		return fmt.Errorf("extending at t=%g: %w", r.Begin, err)
	}
	if err := tr.Append(p, false); err != nil {
		return fmt.Errorf("extending at t=%g: %w", r.Begin, err)
	}
	return nil
}
