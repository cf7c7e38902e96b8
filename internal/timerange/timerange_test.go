package timerange

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRangeBasics(t *testing.T) {
	r := New(1, 5)
	assert.Equal(t, 4., r.Duration())
	assert.Equal(t, 3., r.Mid())
	assert.False(t, r.Null())
	assert.True(t, r.Valid())
	assert.True(t, r.Contains(1))
	assert.True(t, r.Contains(5))
	assert.False(t, r.Contains(5.0001))
	assert.Equal(t, 5., r.Clamp(7))
	assert.Equal(t, 1., r.Clamp(-2))
	assert.Equal(t, "[1, 5]", r.String())
}

func TestRangeRestrict(t *testing.T) {
	a := New(0, 10)
	b := New(4, 20)
	assert.True(t, a.Overlaps(b))
	assert.Equal(t, New(4, 10), a.Restrict(b))

	c := New(11, 12)
	assert.False(t, a.Overlaps(c))
	assert.True(t, a.Restrict(c).Null())
	assert.True(t, New(3, 3).Null())
	assert.False(t, New(3, 2).Valid())
}
