package trajutil_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/wildstyl3r/tracktoy/internal/bfield"
	"github.com/wildstyl3r/tracktoy/internal/constants"
	"github.com/wildstyl3r/tracktoy/internal/particle"
	"github.com/wildstyl3r/tracktoy/internal/piece"
	"github.com/wildstyl3r/tracktoy/internal/timerange"
	"github.com/wildstyl3r/tracktoy/internal/traj"
	"github.com/wildstyl3r/tracktoy/internal/trajutil"
)

func helixTraj(t *testing.T, field bfield.Map, s particle.State, end float64) *traj.Trajectory[piece.Helix] {
	t.Helper()
	h, err := piece.NewHelix(s, field.FieldAt(s.Position), timerange.New(s.Time, end))
	require.NoError(t, err)
	tr, err := traj.New(h)
	require.NoError(t, err)
	return tr
}

func lineTraj(t *testing.T, s particle.State, end float64) *traj.Trajectory[piece.Line] {
	t.Helper()
	l, err := piece.NewLine(s, r3.Vec{}, timerange.New(s.Time, end))
	require.NoError(t, err)
	tr, err := traj.New(l)
	require.NoError(t, err)
	return tr
}

func muonAt(pos, mom r3.Vec) particle.State {
	return particle.New(pos, mom, 0, constants.MuonMass, 1)
}

// contiguous checks the container invariants after an extension.
func contiguous[P traj.Piece[P]](t *testing.T, tr *traj.Trajectory[P]) {
	t.Helper()
	for i := 1; i < tr.PieceCount(); i++ {
		assert.Equal(t, tr.Piece(i-1).Range().End, tr.Piece(i).Range().Begin)
		assert.Equal(t, tr.Front().Mass(), tr.Piece(i).Mass())
		assert.Equal(t, tr.Front().Charge(), tr.Piece(i).Charge())
	}
	dpos, ddir := tr.Gaps()
	assert.Less(t, dpos, 1e-6)
	assert.Less(t, ddir, 1e-9)
}

func TestStraightLineInZeroField(t *testing.T) {
	s := particle.New(r3.Vec{}, r3.Vec{Z: 1000}, 0, constants.ElectronMass, -1)
	tr := lineTraj(t, s, 10)
	vz := s.Velocity().Z

	assert.InDelta(t, 100/vz, trajutil.ZTime(tr, 0, 100), 1e-12)

	field := bfield.NewUniform(r3.Vec{}, -1000, 1000)
	reached, err := trajutil.ExtendZ(tr, field, 100, 1e-3)
	require.NoError(t, err)
	assert.True(t, reached)
	assert.GreaterOrEqual(t, tr.PieceCount(), 2)
	assert.LessOrEqual(t, tr.PieceCount(), 3)
	assert.Equal(t, timerange.New(0, 10), tr.Range())
	contiguous(t, tr)

	assert.InDelta(t, 100/vz, trajutil.ZTime(tr, 0, 100), 1e-9)
}

func TestHelixInUniformField(t *testing.T) {
	field := bfield.NewUniform(r3.Vec{Z: 1}, -1000, 1000)
	s := muonAt(r3.Vec{}, r3.Vec{X: 100, Z: 50})
	tr := helixTraj(t, field, s, 20)

	reached, err := trajutil.ExtendZ(tr, field, 500, 1e-4)
	require.NoError(t, err)
	assert.True(t, reached)
	assert.Greater(t, tr.PieceCount(), 2)
	contiguous(t, tr)

	lastZ := math.Inf(-1)
	for _, p := range tr.Pieces() {
		assert.Equal(t, r3.Vec{Z: 1}, p.NominalField())
		z := p.Position(p.Range().Begin).Z
		assert.Greater(t, z, lastZ)
		lastZ = z
		assert.InDelta(t, s.MomentumMag(), r3.Norm(p.Momentum(p.Range().Begin)), 1e-9)
	}
	backZ := tr.Position(tr.Back().Range().Begin).Z
	assert.GreaterOrEqual(t, backZ, 500.)
	assert.Less(t, backZ, 500+field.MaxStep)
	assert.GreaterOrEqual(t, tr.Position(tr.Range().End).Z, 500.)
}

func TestEnergyLossSplice(t *testing.T) {
	field := bfield.NewUniform(r3.Vec{Z: 1}, -3000, 3000)
	tr := helixTraj(t, field, muonAt(r3.Vec{}, r3.Vec{X: 100, Z: 50}), 25)
	_, err := trajutil.ExtendZ(tr, field, 2000, 1e-4)
	require.NoError(t, err)

	tmid := tr.Range().Mid()
	before := tr.State(tmid)
	energy := before.Energy() - 2

	continued, err := trajutil.UpdateEnergy(tr, tmid, energy)
	require.NoError(t, err)
	require.True(t, continued)
	require.GreaterOrEqual(t, tr.PieceCount(), 2)

	back := tr.Back()
	prev := tr.Piece(tr.PieceCount() - 2)
	assert.Equal(t, timerange.New(tmid, 25), back.Range())
	assert.Equal(t, tmid, prev.Range().End)
	assert.Equal(t, tr.Range(), timerange.New(0, 25))

	after := back.State(tmid)
	assert.InDelta(t, 0., r3.Norm(r3.Sub(before.Position, after.Position)), 1e-9)
	assert.InDelta(t, 0., r3.Norm(r3.Sub(prev.Position(tmid), after.Position)), 1e-9)
	assert.InDelta(t, 1., r3.Dot(before.Direction(), after.Direction()), 1e-12)
	assert.InDelta(t, energy, after.Energy(), 1e-9)
	assert.InDelta(t, math.Sqrt(energy*energy-constants.MuonMass*constants.MuonMass), after.MomentumMag(), 1e-9)
	assert.Less(t, after.MomentumMag(), before.MomentumMag())
	assert.Equal(t, prev.NominalField(), back.NominalField())

	// the particle keeps going with the new momentum
	reached, err := trajutil.ExtendZ(tr, field, 2000, 1e-4)
	require.NoError(t, err)
	assert.True(t, reached)
	contiguous(t, tr)
	for _, p := range tr.Pieces() {
		assert.Equal(t, constants.MuonMass, p.Mass())
		assert.Equal(t, 1, p.Charge())
		if p.Range().Begin >= tmid {
			assert.InDelta(t, after.MomentumMag(), r3.Norm(p.Momentum(p.Range().Begin)), 1e-9)
		}
	}
}

func TestSpliceOnJoin(t *testing.T) {
	field := bfield.NewUniform(r3.Vec{Z: 1}, -3000, 3000)
	tr := helixTraj(t, field, muonAt(r3.Vec{}, r3.Vec{X: 100, Z: 50}), 25)
	require.NoError(t, trajutil.ExtendTraj(tr, field, 25, 1e-4))
	require.Greater(t, tr.PieceCount(), 4)

	join := tr.Piece(2).Range().Begin
	energy := tr.State(join).Energy() - 1
	continued, err := trajutil.UpdateEnergy(tr, join, energy)
	require.NoError(t, err)
	assert.True(t, continued)
	assert.Equal(t, 3, tr.PieceCount())
	assert.Equal(t, join, tr.Back().Range().Begin)
	assert.InDelta(t, energy, tr.Back().State(join).Energy(), 1e-9)
}

func TestTerminationBySubMassEnergy(t *testing.T) {
	field := bfield.NewUniform(r3.Vec{Z: 1}, -3000, 3000)
	tr := helixTraj(t, field, muonAt(r3.Vec{}, r3.Vec{X: 100, Z: 50}), 25)
	require.NoError(t, trajutil.ExtendTraj(tr, field, 25, 1e-4))

	tmid := tr.Range().Mid()
	continued, err := trajutil.UpdateEnergy(tr, tmid, 0.5*constants.MuonMass)
	require.NoError(t, err)
	assert.False(t, continued)
	assert.Equal(t, tmid, tr.Range().End)
	assert.Equal(t, tmid, tr.Back().Range().End)
	for _, p := range tr.Pieces() {
		assert.LessOrEqual(t, p.Range().Begin, tmid)
	}
	contiguous(t, tr)

	// exactly at a join the piece starting there goes away
	join := tr.Piece(2).Range().Begin
	continued, err = trajutil.UpdateEnergy(tr, join, constants.MuonMass)
	require.NoError(t, err)
	assert.False(t, continued)
	assert.Equal(t, 2, tr.PieceCount())
	assert.Equal(t, join, tr.Range().End)
}

func TestFieldMapExit(t *testing.T) {
	field := bfield.NewUniform(r3.Vec{Z: 1}, 0, 100)
	tr := helixTraj(t, field, muonAt(r3.Vec{Z: 10}, r3.Vec{X: 100, Z: 50}), 20)

	reached, err := trajutil.ExtendZ(tr, field, 1000, 1e-3)
	require.NoError(t, err)
	assert.False(t, reached)
	assert.GreaterOrEqual(t, tr.PieceCount(), 2)
	for _, p := range tr.Pieces() {
		assert.True(t, bfield.Inside(field, p.Position(p.Range().Begin)), "piece %v starts outside", p.Range())
	}
	assert.Greater(t, tr.Position(tr.Range().End).Z, 100.)
	contiguous(t, tr)

	// starting outside nothing happens
	outside := helixTraj(t, field, muonAt(r3.Vec{Z: -10}, r3.Vec{X: 100, Z: 50}), 20)
	reached, err = trajutil.ExtendZ(outside, field, 1000, 1e-3)
	require.NoError(t, err)
	assert.False(t, reached)
	assert.Equal(t, 1, outside.PieceCount())
}

func TestOscillatingZInversion(t *testing.T) {
	// B along x: z oscillates with amplitude R = 30 / Curvature ~ 100 mm
	field := bfield.NewUniform(r3.Vec{X: 1}, -1e4, 1e4)
	tr := helixTraj(t, field, muonAt(r3.Vec{}, r3.Vec{X: 20, Z: 30}), 40)
	require.NoError(t, trajutil.ExtendTraj(tr, field, 40, 1e-4))
	require.Greater(t, tr.PieceCount(), 10)
	contiguous(t, tr)

	res := trajutil.ZSearch(tr, 0, 50)
	require.True(t, res.Found)
	assert.True(t, res.Forward)
	assert.InDelta(t, 50., tr.Position(res.Time).Z, 1e-6)
	assert.LessOrEqual(t, res.Iterations, tr.PieceCount())

	for _, hint := range []float64{0.5, 3, 7.7, 12, 19.9, 25, 33.3, 39.5} {
		res := trajutil.ZSearch(tr, hint, 50)
		assert.LessOrEqual(t, res.Iterations, tr.PieceCount())
		if res.Found {
			assert.GreaterOrEqual(t, res.Time, hint)
			assert.InDelta(t, 50., tr.Position(res.Time).Z, 1e-6, "hint %g", hint)
		} else {
			assert.Greater(t, res.Time, tr.Range().End)
		}
	}

	// beyond the oscillation amplitude
	res = trajutil.ZSearch(tr, 0, 500)
	assert.False(t, res.Found)
	assert.Equal(t, tr.Range().End+trajutil.NoCrossingOffset, res.Time)
}

func TestZSearchFailures(t *testing.T) {
	s := particle.New(r3.Vec{}, r3.Vec{Z: 1000}, 0, constants.ElectronMass, -1)
	tr := lineTraj(t, s, 10)
	require.NoError(t, trajutil.ExtendTraj(tr, bfield.NewUniform(r3.Vec{}, -1e4, 1e4), 10, 1e-3))
	require.Greater(t, tr.PieceCount(), 10)
	sentinel := tr.Range().End + trajutil.NoCrossingOffset

	t.Run("behind the start", func(t *testing.T) {
		res := trajutil.ZSearch(tr, 0, -50)
		assert.False(t, res.Forward)
		assert.False(t, res.Found)
		assert.Equal(t, sentinel, res.Time)
		assert.LessOrEqual(t, res.Iterations, tr.PieceCount())
	})

	t.Run("behind the hint", func(t *testing.T) {
		assert.Equal(t, sentinel, trajutil.ZTime(tr, 5, 100))
	})

	t.Run("hint after the end", func(t *testing.T) {
		res := trajutil.ZSearch(tr, 11, 100)
		assert.Equal(t, sentinel, res.Time)
		assert.Zero(t, res.Iterations)
	})

	t.Run("past the end", func(t *testing.T) {
		assert.Equal(t, sentinel, trajutil.ZTime(tr, 0, 1e5))
	})

	t.Run("ahead", func(t *testing.T) {
		res := trajutil.ZSearch(tr, 2, 1500)
		require.True(t, res.Found)
		assert.InDelta(t, 1500/s.Velocity().Z, res.Time, 1e-9)
	})
}

type stallMap struct {
	*bfield.Uniform
}

func (stallMap) ToleranceStep(_ bfield.Path, t0, _ float64) float64 { return t0 }

func TestStalledStepping(t *testing.T) {
	field := stallMap{bfield.NewUniform(r3.Vec{Z: 1}, -1000, 1000)}
	tr := helixTraj(t, field, muonAt(r3.Vec{}, r3.Vec{X: 100, Z: 50}), 2)

	// the existing piece ends near z = 195
	reached, err := trajutil.ExtendZ(tr, field, 500, 1e-4)
	require.NoError(t, err)
	assert.False(t, reached)
	assert.Equal(t, 1, tr.PieceCount())

	reached, err = trajutil.ExtendZ(tr, field, 150, 1e-4)
	require.NoError(t, err)
	assert.True(t, reached)
	assert.Equal(t, 1, tr.PieceCount())

	require.NoError(t, trajutil.ExtendTraj(tr, field, 2, 1e-4))
	assert.Equal(t, 1, tr.PieceCount())
}

func TestExtendTrajInSolenoid(t *testing.T) {
	field := bfield.NewSolenoid(1, 200, 2000, 50, -1000, 3000)
	count := func(tol float64) *traj.Trajectory[piece.Helix] {
		tr := helixTraj(t, field, muonAt(r3.Vec{}, r3.Vec{X: 30, Z: 100}), 20)
		require.NoError(t, trajutil.ExtendTraj(tr, field, 20, tol))
		contiguous(t, tr)
		return tr
	}
	coarse, fine := count(1e-1), count(1e-5)
	assert.GreaterOrEqual(t, fine.PieceCount(), coarse.PieceCount())

	fields := map[float64]bool{}
	for _, p := range fine.Pieces() {
		fields[p.NominalField().Z] = true
	}
	assert.Greater(t, len(fields), 2)

	// stops once the open end passes the target
	tr := helixTraj(t, field, muonAt(r3.Vec{}, r3.Vec{X: 30, Z: 100}), 20)
	require.NoError(t, trajutil.ExtendTraj(tr, field, 2, 1e-3))
	n := tr.PieceCount()
	require.Greater(t, n, 1)
	assert.GreaterOrEqual(t, tr.Back().Range().Begin, 2.)
	assert.Less(t, tr.Piece(n-2).Range().Begin, 2.)
	assert.Equal(t, 20., tr.Range().End)
}

func TestPreconditions(t *testing.T) {
	field := bfield.NewUniform(r3.Vec{Z: 1}, -1000, 1000)
	tr := helixTraj(t, field, muonAt(r3.Vec{}, r3.Vec{X: 100, Z: 50}), 20)

	_, err := trajutil.UpdateEnergy(tr, 21, 200)
	assert.ErrorIs(t, err, trajutil.ErrOutOfRange)
	_, err = trajutil.UpdateEnergy(tr, math.NaN(), 200)
	assert.ErrorIs(t, err, trajutil.ErrOutOfRange)
	_, err = trajutil.UpdateEnergy(tr, 5, math.NaN())
	assert.Error(t, err)

	_, err = trajutil.ExtendZ(tr, field, 500, 0)
	assert.ErrorIs(t, err, trajutil.ErrTolerance)
	assert.ErrorIs(t, trajutil.ExtendTraj(tr, field, 20, -1), trajutil.ErrTolerance)
	assert.ErrorIs(t, trajutil.ExtendTraj(tr, field, math.NaN(), 1e-3), trajutil.ErrOutOfRange)
	assert.Equal(t, 1, tr.PieceCount())
}
