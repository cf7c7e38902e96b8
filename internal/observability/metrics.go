// Package observability exposes Prometheus metrics for trajectory building.
package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Extension and splice outcomes used as label values.
const (
	OutcomeReached    = "reached"
	OutcomeNotReached = "not_reached"
	OutcomeContinued  = "continued"
	OutcomeTerminated = "terminated"
	OutcomeError      = "error"
)

// TrackCollector bundles the metrics recorded while particles are tracked.
// A nil collector records nothing.
type TrackCollector struct {
	gatherer prometheus.Gatherer

	PiecesAppended    prometheus.Counter
	Extensions        *prometheus.CounterVec
	Splices           *prometheus.CounterVec
	ZSearchIterations prometheus.Histogram
	Crossings         *prometheus.CounterVec
	ParticleDuration  prometheus.Histogram
}

// NewTrackCollector registers the tracking metrics against reg, defaulting
// to the global registry when nil.
func NewTrackCollector(reg prometheus.Registerer) (*TrackCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	pieces, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tracktoy_pieces_appended_total",
		Help: "Trajectory pieces appended by field-map extension.",
	}), "tracktoy_pieces_appended_total")
	if err != nil {
		return nil, err
	}

	extensions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracktoy_extensions_total",
		Help: "Trajectory extensions, labeled by mode (z or time) and outcome.",
	}, []string{"mode", "outcome"}), "tracktoy_extensions_total")
	if err != nil {
		return nil, err
	}

	splices, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracktoy_energy_splices_total",
		Help: "Energy updates applied to trajectories, labeled by outcome.",
	}, []string{"outcome"}), "tracktoy_energy_splices_total")
	if err != nil {
		return nil, err
	}

	iterations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracktoy_zsearch_iterations",
		Help:    "Piece inversions performed per z-plane search.",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34, 55, 89},
	}), "tracktoy_zsearch_iterations")
	if err != nil {
		return nil, err
	}

	crossings, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracktoy_plane_crossings_total",
		Help: "z-plane searches, labeled by result (found or missed).",
	}, []string{"result"}), "tracktoy_plane_crossings_total")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracktoy_particle_duration_seconds",
		Help:    "Wall time spent tracking one particle.",
		Buckets: prometheus.ExponentialBuckets(1e-5, 4, 10),
	}), "tracktoy_particle_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &TrackCollector{
		gatherer:          gatherer,
		PiecesAppended:    pieces,
		Extensions:        extensions,
		Splices:           splices,
		ZSearchIterations: iterations,
		Crossings:         crossings,
		ParticleDuration:  duration,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *TrackCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

func (c *TrackCollector) AddPieces(n int) {
	if c == nil || c.PiecesAppended == nil || n <= 0 {
		return
	}
	c.PiecesAppended.Add(float64(n))
}

func (c *TrackCollector) ObserveExtension(mode, outcome string) {
	if c == nil || c.Extensions == nil {
		return
	}
	c.Extensions.WithLabelValues(mode, outcome).Inc()
}

func (c *TrackCollector) ObserveSplice(outcome string) {
	if c == nil || c.Splices == nil {
		return
	}
	c.Splices.WithLabelValues(outcome).Inc()
}

// ObserveZSearch records one plane search.
func (c *TrackCollector) ObserveZSearch(iterations int, found bool) {
	if c == nil {
		return
	}
	if c.ZSearchIterations != nil {
		c.ZSearchIterations.Observe(float64(iterations))
	}
	if c.Crossings != nil {
		result := "missed"
		if found {
			result = "found"
		}
		c.Crossings.WithLabelValues(result).Inc()
	}
}

func (c *TrackCollector) ObserveParticle(d time.Duration) {
	if c == nil || c.ParticleDuration == nil {
		return
	}
	c.ParticleDuration.Observe(d.Seconds())
}

// WriteTextfile dumps the gathered metrics in the text exposition format.
func (c *TrackCollector) WriteTextfile(filename string) error {
	if c == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(filename, c.gatherer); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", filename, err)
	}
	return nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}
