package particle

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/wildstyl3r/tracktoy/internal/constants"
)

func TestStateKinematics(t *testing.T) {
	s := New(r3.Vec{}, r3.Vec{X: 3, Y: 0, Z: 4}, 0, 12, -1)
	assert.InDelta(t, 5., s.MomentumMag(), 1e-12)
	assert.InDelta(t, 13., s.Energy(), 1e-12)
	assert.InDelta(t, 1., s.KineticEnergy(), 1e-12)
	assert.InDelta(t, 5./13., s.Beta(), 1e-12)
	assert.InDelta(t, 13./12., s.Gamma(), 1e-12)

	dir := s.Direction()
	assert.InDelta(t, 0.6, dir.X, 1e-12)
	assert.InDelta(t, 0.8, dir.Z, 1e-12)

	v := s.Velocity()
	assert.InDelta(t, constants.SpeedOfLight*5./13., r3.Norm(v), 1e-9)
	assert.InDelta(t, s.Speed(), r3.Norm(v), 1e-12)
}

func TestStateAtRest(t *testing.T) {
	s := New(r3.Vec{}, r3.Vec{}, 0, constants.MuonMass, 1)
	assert.Equal(t, r3.Vec{}, s.Direction())
	assert.Equal(t, 0., s.Speed())
}

func TestStateWithEnergy(t *testing.T) {
	s := New(r3.Vec{Z: 1}, r3.Vec{X: 100, Z: 50}, 2, constants.MuonMass, 1)
	e := s.Energy() - 2
	updated, ok := s.WithEnergy(e)
	require.True(t, ok)
	assert.InDelta(t, e, updated.Energy(), 1e-9)
	assert.InDelta(t, 1., r3.Dot(s.Direction(), updated.Direction()), 1e-12)
	assert.Equal(t, s.Position, updated.Position)

	_, ok = s.WithEnergy(constants.MuonMass * 0.5)
	assert.False(t, ok)
	_, ok = s.WithEnergy(constants.MuonMass)
	assert.False(t, ok)
}

func TestStateValid(t *testing.T) {
	assert.NoError(t, New(r3.Vec{}, r3.Vec{Z: 1}, 0, 1, 1).Valid())
	assert.Error(t, New(r3.Vec{X: math.NaN()}, r3.Vec{Z: 1}, 0, 1, 1).Valid())
	assert.Error(t, New(r3.Vec{}, r3.Vec{Z: 1}, 0, -1, 1).Valid())
}
