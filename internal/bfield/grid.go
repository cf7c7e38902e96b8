package bfield

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/wildstyl3r/tracktoy/internal/utils"
)

var ErrGrid = errors.New("malformed field grid")

// Grid is a field tabulated on a regular x-y-z grid and interpolated
// trilinearly. Queries outside the grid are clamped to its boundary.
type Grid struct {
	Stepper
	origin     r3.Vec
	spacing    r3.Vec
	nx, ny, nz int
	values     []r3.Vec // index (i*ny + j)*nz + k
}

func NewGrid(origin, spacing r3.Vec, nx, ny, nz int, values []r3.Vec) (*Grid, error) {
	if nx < 1 || ny < 1 || nz < 1 {
		return nil, fmt.Errorf("%w: dimensions %dx%dx%d", ErrGrid, nx, ny, nz)
	}
	if len(values) != nx*ny*nz {
		return nil, fmt.Errorf("%w: %d values for %dx%dx%d points", ErrGrid, len(values), nx, ny, nz)
	}
	for _, d := range []struct {
		n    int
		step float64
	}{{nx, spacing.X}, {ny, spacing.Y}, {nz, spacing.Z}} {
		if d.n > 1 && !(d.step > 0) {
			return nil, fmt.Errorf("%w: non-positive spacing %v", ErrGrid, spacing)
		}
	}
	return &Grid{
		Stepper: DefaultStepper(),
		origin:  origin,
		spacing: spacing,
		nx:      nx,
		ny:      ny,
		nz:      nz,
		values:  values,
	}, nil
}

// LoadGrid reads "x y z bx by bz" rows covering a full regular grid in any
// order. Coordinates in mm, field in T.
func LoadGrid(filename string) (*Grid, error) {
	rows, err := utils.ReadFloatRows(filename, 6)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s has no points", ErrGrid, filename)
	}
	var axes [3]axis
	for a := range axes {
		axes[a], err = inferAxis(rows, a)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
	}
	nx, ny, nz := len(axes[0].points), len(axes[1].points), len(axes[2].points)
	if nx*ny*nz != len(rows) {
		return nil, fmt.Errorf("%w: %s has %d rows for a %dx%dx%d grid", ErrGrid, filename, len(rows), nx, ny, nz)
	}
	values := make([]r3.Vec, len(rows))
	for _, row := range rows {
		i, j, k := axes[0].index(row[0]), axes[1].index(row[1]), axes[2].index(row[2])
		values[(i*ny+j)*nz+k] = r3.Vec{X: row[3], Y: row[4], Z: row[5]}
	}
	origin := r3.Vec{X: axes[0].points[0], Y: axes[1].points[0], Z: axes[2].points[0]}
	spacing := r3.Vec{X: axes[0].step, Y: axes[1].step, Z: axes[2].step}
	return NewGrid(origin, spacing, nx, ny, nz, values)
}

type axis struct {
	points []float64
	step   float64
}

func (a axis) index(v float64) int {
	if len(a.points) == 1 {
		return 0
	}
	return int(math.Round((v - a.points[0]) / a.step))
}

func inferAxis(rows [][]float64, column int) (axis, error) {
	var points []float64
	for _, row := range rows {
		points = append(points, row[column])
	}
	slices.Sort(points)
	points = slices.Compact(points)
	a := axis{points: points}
	if len(points) == 1 {
		return a, nil
	}
	a.step = (points[len(points)-1] - points[0]) / float64(len(points)-1)
	for k, p := range points {
		if math.Abs(p-(points[0]+float64(k)*a.step)) > 1e-6*a.step {
			return a, fmt.Errorf("%w: irregular spacing on axis %d at %g", ErrGrid, column, p)
		}
	}
	return a, nil
}

func cell(c, origin, step float64, n int) (i0, i1 int, f float64) {
	if n == 1 {
		return 0, 0, 0
	}
	u := min(max((c-origin)/step, 0), float64(n-1))
	i0 = min(int(u), n-2)
	return i0, i0 + 1, u - float64(i0)
}

func (g *Grid) at(i, j, k int) r3.Vec {
	return g.values[(i*g.ny+j)*g.nz+k]
}

func (g *Grid) FieldAt(pos r3.Vec) r3.Vec {
	i0, i1, fx := cell(pos.X, g.origin.X, g.spacing.X, g.nx)
	j0, j1, fy := cell(pos.Y, g.origin.Y, g.spacing.Y, g.ny)
	k0, k1, fz := cell(pos.Z, g.origin.Z, g.spacing.Z, g.nz)
	var b r3.Vec
	for _, c := range [8]struct {
		i, j, k int
		w       float64
	}{
		{i0, j0, k0, (1 - fx) * (1 - fy) * (1 - fz)},
		{i1, j0, k0, fx * (1 - fy) * (1 - fz)},
		{i0, j1, k0, (1 - fx) * fy * (1 - fz)},
		{i1, j1, k0, fx * fy * (1 - fz)},
		{i0, j0, k1, (1 - fx) * (1 - fy) * fz},
		{i1, j0, k1, fx * (1 - fy) * fz},
		{i0, j1, k1, (1 - fx) * fy * fz},
		{i1, j1, k1, fx * fy * fz},
	} {
		if c.w != 0 {
			b = r3.Add(b, r3.Scale(c.w, g.at(c.i, c.j, c.k)))
		}
	}
	return b
}

func (g *Grid) ZMin() float64 { return g.origin.Z }
func (g *Grid) ZMax() float64 { return g.origin.Z + g.spacing.Z*float64(g.nz-1) }

func (g *Grid) ToleranceStep(p Path, t0, tol float64) float64 {
	return g.Step(g.FieldAt, p, t0, tol)
}
