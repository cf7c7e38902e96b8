package utils

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatistics(t *testing.T) {
	ints := []int{3, 1, 4, 1, 5}
	assert.Equal(t, 14, SumSlice(ints))
	assert.InDelta(t, 2.8, Average(ints), 1e-12)
	assert.Equal(t, 4, Argmax(ints))

	mean, variance := MeanAndVariance([]float64{1, 2, 3, 4}, true)
	assert.InDelta(t, 2.5, mean, 1e-12)
	assert.InDelta(t, 5./3., variance, 1e-12)

	lo, hi := MinMax([]float64{2, -1, 7})
	assert.Equal(t, -1., lo)
	assert.Equal(t, 7., hi)

	assert.True(t, math.IsNaN(Average([]float64{})))
	assert.Equal(t, 3, IntAbs(-3))
}

func TestIntersect(t *testing.T) {
	got := Intersect([]string{"mm", "cm", "m"}, []string{"MeV", "cm"})
	require.NotNil(t, got)
	assert.Equal(t, "cm", *got)
	assert.Nil(t, Intersect([]string{"mm"}, []string{"T"}))
}

func TestBinarySearch(t *testing.T) {
	lo, hi := BinarySearch(func(x float64) bool { return x*x > 2 }, 0, 2, 1e-12)
	assert.InDelta(t, math.Sqrt2, hi, 1e-11)
	assert.LessOrEqual(t, lo, hi)
}

func TestSortNatural(t *testing.T) {
	names := []string{"run10", "run2", "run1"}
	SortNatural(names)
	assert.Equal(t, []string{"run1", "run2", "run10"}, names)
}

func TestWriteAsCSV(t *testing.T) {
	dir := t.TempDir()
	data := CSV{{"p10", "b"}, {"p2", "a"}, {"p1", "c"}}
	require.NoError(t, WriteAsCSV(data, true, dir, "summary", "helix.toml", []string{"name", "value"}))

	f, err := os.Open(filepath.Join(dir, "summary", "helix.csv"))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"name", "value"}, {"p1", "c"}, {"p2", "a"}, {"p10", "b"}}, rows)
}

func TestReadFloatRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.txt")
	require.NoError(t, os.WriteFile(path, []byte("# x y\n1 2\n\n3.5 -4\n"), 0600))
	rows, err := ReadFloatRows(path, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 2}, {3.5, -4}}, rows)

	require.NoError(t, os.WriteFile(path, []byte("1 2 3\n"), 0600))
	_, err = ReadFloatRows(path, 2)
	assert.Error(t, err)
}

func TestGetFilename(t *testing.T) {
	assert.Equal(t, "solenoid", GetFilename("/tmp/maps/solenoid.toml"))
}
