// Package piece provides the closed-form trajectory pieces: a helix in a
// uniform magnetic field and a field-free kinematic line.
package piece

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/wildstyl3r/tracktoy/internal/particle"
	"github.com/wildstyl3r/tracktoy/internal/timerange"
)

var (
	ErrAtRest   = errors.New("particle has no momentum")
	ErrBadRange = errors.New("invalid piece range")
	ErrBadField = errors.New("non-finite nominal field")
)

func validate(s particle.State, bnom r3.Vec, r timerange.Range) error {
	if err := s.Valid(); err != nil {
		return err
	}
	if s.MomentumMag() == 0 {
		return fmt.Errorf("%w: %v", ErrAtRest, s)
	}
	if !r.Valid() {
		return fmt.Errorf("%w: %v", ErrBadRange, r)
	}
	for _, b := range []float64{bnom.X, bnom.Y, bnom.Z} {
		if math.IsNaN(b) || math.IsInf(b, 0) {
			return fmt.Errorf("%w: %v", ErrBadField, bnom)
		}
	}
	return nil
}

func unit(v r3.Vec) r3.Vec {
	n := r3.Norm(v)
	if n == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/n, v)
}
