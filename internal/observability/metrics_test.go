package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackCollectorRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewTrackCollector(reg)
	require.NoError(t, err)

	c.AddPieces(7)
	c.AddPieces(0)
	c.ObserveExtension("z", OutcomeReached)
	c.ObserveExtension("z", OutcomeReached)
	c.ObserveExtension("time", OutcomeNotReached)
	c.ObserveSplice(OutcomeTerminated)
	c.ObserveZSearch(3, true)
	c.ObserveZSearch(1, false)
	c.ObserveParticle(2 * time.Millisecond)

	assert.Equal(t, 7., testutil.ToFloat64(c.PiecesAppended))
	assert.Equal(t, 2., testutil.ToFloat64(c.Extensions.WithLabelValues("z", OutcomeReached)))
	assert.Equal(t, 1., testutil.ToFloat64(c.Extensions.WithLabelValues("time", OutcomeNotReached)))
	assert.Equal(t, 1., testutil.ToFloat64(c.Splices.WithLabelValues(OutcomeTerminated)))
	assert.Equal(t, 1., testutil.ToFloat64(c.Crossings.WithLabelValues("found")))
	assert.Equal(t, 1., testutil.ToFloat64(c.Crossings.WithLabelValues("missed")))
	assert.Equal(t, uint64(2), histogramSampleCount(t, reg, "tracktoy_zsearch_iterations"))
	assert.Equal(t, uint64(1), histogramSampleCount(t, reg, "tracktoy_particle_duration_seconds"))
}

func TestRegisterTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewTrackCollector(reg)
	require.NoError(t, err)
	b, err := NewTrackCollector(reg)
	require.NoError(t, err)

	a.AddPieces(2)
	b.AddPieces(3)
	assert.Equal(t, 5., testutil.ToFloat64(a.PiecesAppended))
}

func TestNilCollector(t *testing.T) {
	var c *TrackCollector
	assert.NotPanics(t, func() {
		c.AddPieces(1)
		c.ObserveExtension("z", OutcomeError)
		c.ObserveSplice(OutcomeContinued)
		c.ObserveZSearch(1, true)
		c.ObserveParticle(time.Second)
	})
	assert.Nil(t, c.Gatherer())
	assert.NoError(t, c.WriteTextfile("unused"))
}

func TestWriteTextfile(t *testing.T) {
	c, err := NewTrackCollector(prometheus.NewRegistry())
	require.NoError(t, err)
	c.AddPieces(4)
	c.ObserveSplice(OutcomeContinued)

	filename := filepath.Join(t.TempDir(), "metrics.prom")
	require.NoError(t, c.WriteTextfile(filename))
	data, err := os.ReadFile(filename)
	require.NoError(t, err)
	body := string(data)
	assert.True(t, strings.Contains(body, "tracktoy_pieces_appended_total 4"), body)
	assert.Contains(t, body, `tracktoy_energy_splices_total{outcome="continued"} 1`)
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	require.NoError(t, err)
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if h := m.GetHistogram(); h != nil {
				return sampleCount(h)
			}
		}
	}
	return 0
}

func sampleCount(h *dto.Histogram) uint64 {
	return h.GetSampleCount()
}
