// Package sim tracks the particles of one scenario: it builds trajectories
// through the field map, applies the scheduled energy steps and locates the
// plane crossings. Particles are tracked in parallel, each trajectory by a
// single worker.
package sim

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"slices"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/wildstyl3r/tracktoy/internal/bfield"
	"github.com/wildstyl3r/tracktoy/internal/config"
	"github.com/wildstyl3r/tracktoy/internal/logging"
	"github.com/wildstyl3r/tracktoy/internal/observability"
	"github.com/wildstyl3r/tracktoy/internal/particle"
	"github.com/wildstyl3r/tracktoy/internal/piece"
	"github.com/wildstyl3r/tracktoy/internal/timerange"
	"github.com/wildstyl3r/tracktoy/internal/traj"
	"github.com/wildstyl3r/tracktoy/internal/trajutil"
)

// maxSamples bounds the samples kept per particle.
const maxSamples = 100000

// gapWarning [mm] is the join discontinuity reported as an anomaly.
const gapWarning = 1e-6

type Options struct {
	Threads int
	Samples bool
	Logger  logging.Logger
	Metrics *observability.TrackCollector
}

type Crossing struct {
	Particle   int
	Plane      float64 // [mm]
	Time       float64 // [ns], past the trajectory end when not found
	Position   r3.Vec
	Momentum   float64 // [MeV/c]
	Iterations int
	Found      bool
}

type Sample struct {
	Particle int
	Time     float64
	Position r3.Vec
	Momentum r3.Vec
	Energy   float64
}

type ParticleResult struct {
	Index        int
	Initial      particle.State
	Final        particle.State // at the trajectory end
	Range        timerange.Range
	Pieces       int
	Reached      bool // extension target reached
	Terminated   bool // stopped by an energy step
	Splices      int
	PositionGap  float64
	DirectionGap float64
	Crossings    []Crossing
	Samples      []Sample
	Err          error
}

type Result struct {
	Scenario  string
	Mode      string
	Particles []ParticleResult
	Elapsed   time.Duration
}

type job struct {
	index int
	state particle.State
}

type runner struct {
	sp    *config.ScenarioParameters
	field bfield.Map
	opts  Options
	log   logging.Logger
}

// Run tracks every particle of the scenario. It returns early with the
// context error when ctx is cancelled.
func Run(ctx context.Context, name string, sp config.ScenarioParameters, field bfield.Map, opts Options) (*Result, error) {
	start := time.Now()
	if opts.Logger == nil {
		opts.Logger = logging.Noop()
	}
	r := &runner{
		sp:    &sp,
		field: field,
		opts:  opts,
		log:   opts.Logger.With(logging.String("scenario", name)),
	}
	states := InitialStates(&sp)

	computeflow := make(chan job, len(states))
	for i, s := range states {
		computeflow <- job{index: i, state: s}
	}
	close(computeflow)

	var computeWg sync.WaitGroup
	resultflow := make(chan ParticleResult, len(states))
	for range max(1, opts.Threads) {
		computeWg.Add(1)
		go func() {
			defer computeWg.Done()
			for j := range computeflow {
				if ctx.Err() != nil {
					return
				}
				resultflow <- r.run(ctx, j)
			}
		}()
	}
	computeWg.Wait()
	close(resultflow)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := &Result{Scenario: name, Mode: sp.ExtendMode}
	for pr := range resultflow {
		res.Particles = append(res.Particles, pr)
	}
	slices.SortFunc(res.Particles, func(a, b ParticleResult) int { return a.Index - b.Index })
	res.Elapsed = time.Since(start)
	return res, nil
}

// InitialStates draws the scenario particles. The momentum magnitude and
// direction are smeared by the configured gaussian spreads with a generator
// seeded from the scenario, so runs are reproducible.
func InitialStates(sp *config.ScenarioParameters) []particle.State {
	rng := rand.New(rand.NewSource(sp.Seed))
	pos, mom := sp.StartPosition(), sp.StartMomentum()
	states := make([]particle.State, sp.Particles)
	for i := range states {
		states[i] = particle.New(pos, smear(mom, rng, sp.MomentumSpread, sp.AngleSpread), sp.StartTime, sp.Mass, sp.Charge)
	}
	return states
}

func smear(p r3.Vec, rng *rand.Rand, momentumSpread, angleSpread float64) r3.Vec {
	mag := r3.Norm(p)
	if mag == 0 || (momentumSpread <= 0 && angleSpread <= 0) {
		return p
	}
	dir := r3.Scale(1/mag, p)
	if momentumSpread > 0 {
		mag *= math.Max(1e-3, 1+momentumSpread*rng.NormFloat64())
	}
	if angleSpread > 0 {
		theta := angleSpread * rng.NormFloat64()
		phi := 2 * math.Pi * rng.Float64()
		axis := r3.Vec{X: 1}
		if math.Abs(dir.X) > 0.9 {
			axis = r3.Vec{Y: 1}
		}
		u := r3.Cross(dir, axis)
		u = r3.Scale(1/r3.Norm(u), u)
		v := r3.Cross(dir, u)
		sinPhi, cosPhi := math.Sincos(phi)
		perp := r3.Add(r3.Scale(cosPhi, u), r3.Scale(sinPhi, v))
		sinTheta, cosTheta := math.Sincos(theta)
		dir = r3.Add(r3.Scale(cosTheta, dir), r3.Scale(sinTheta, perp))
	}
	return r3.Scale(mag, dir)
}

func (r *runner) run(ctx context.Context, j job) ParticleResult {
	start := time.Now()
	defer func() { r.opts.Metrics.ObserveParticle(time.Since(start)) }()

	s := j.state
	rng := timerange.New(s.Time, s.Time+r.sp.Duration)
	bnom := r.field.FieldAt(s.Position)
	failed := func(err error) ParticleResult {
		r.log.Error(ctx, "particle not tracked", logging.Int("particle", j.index), logging.Err(err))
		return ParticleResult{Index: j.index, Initial: s, Err: err}
	}
	switch r.sp.PieceType {
	case "line":
		first, err := piece.NewLine(s, bnom, rng)
		if err != nil {
			return failed(err)
		}
		return track(ctx, r, j.index, first)
	default:
		first, err := piece.NewHelix(s, bnom, rng)
		if err != nil {
			return failed(err)
		}
		return track(ctx, r, j.index, first)
	}
}

func track[P traj.Piece[P]](ctx context.Context, r *runner, index int, first P) ParticleResult {
	log := r.log.With(logging.Int("particle", index))
	res := ParticleResult{Index: index, Initial: first.State(first.Range().Begin)}
	tr, err := traj.New(first)
	if err != nil {
		res.Err = err
		return res
	}

	res.Reached, err = extend(tr, r)
	if err != nil {
		res.Err = err
		log.Error(ctx, "extension failed", logging.Err(err))
		return res
	}

	for _, step := range r.sp.EnergySteps {
		if step.Time > tr.Range().End {
			break
		}
		energy := tr.State(step.Time).Energy() + step.DeltaE
		continued, err := trajutil.UpdateEnergy(tr, step.Time, energy)
		if err != nil {
			r.opts.Metrics.ObserveSplice(observability.OutcomeError)
			res.Err = fmt.Errorf("energy step at %g: %w", step.Time, err)
			log.Error(ctx, "energy update failed", logging.Err(res.Err))
			break
		}
		res.Splices++
		if !continued {
			r.opts.Metrics.ObserveSplice(observability.OutcomeTerminated)
			res.Terminated, res.Reached = true, false
			log.Debug(ctx, "particle stopped", logging.Float("t", step.Time), logging.Float("energy", energy))
			break
		}
		r.opts.Metrics.ObserveSplice(observability.OutcomeContinued)
		if res.Reached, err = extend(tr, r); err != nil {
			res.Err = err
			log.Error(ctx, "extension failed", logging.Err(err))
			break
		}
	}
	if !res.Reached && !res.Terminated && res.Err == nil {
		log.Info(ctx, "extension target not reached",
			logging.String("mode", r.sp.ExtendMode),
			logging.Float("z", tr.Position(tr.Back().Range().Begin).Z),
			logging.Int("pieces", tr.PieceCount()))
	}

	for _, z := range r.sp.ZPlanes {
		zc := trajutil.ZSearch(tr, tr.Range().Begin, z)
		r.opts.Metrics.ObserveZSearch(zc.Iterations, zc.Found)
		c := Crossing{Particle: index, Plane: z, Time: zc.Time, Iterations: zc.Iterations, Found: zc.Found}
		if zc.Found {
			s := tr.State(zc.Time)
			c.Position, c.Momentum = s.Position, s.MomentumMag()
		} else {
			log.Debug(ctx, "no plane crossing", logging.Float("plane", z))
		}
		res.Crossings = append(res.Crossings, c)
	}

	res.PositionGap, res.DirectionGap = tr.Gaps()
	if res.PositionGap > gapWarning {
		log.Warn(ctx, "discontinuous trajectory", logging.Float("position_gap", res.PositionGap), logging.Float("direction_gap", res.DirectionGap))
	}
	res.Range = tr.Range()
	res.Pieces = tr.PieceCount()
	res.Final = tr.State(res.Range.End)
	if r.opts.Samples {
		res.Samples = sample(tr, index, r.sp.SampleStep)
	}
	log.Debug(ctx, "particle tracked",
		logging.Int("pieces", res.Pieces),
		logging.Bool("reached", res.Reached),
		logging.Float("final_z", res.Final.Position.Z))
	return res
}

// extend grows the open end of tr toward the scenario target.
func extend[P traj.Piece[P]](tr *traj.Trajectory[P], r *runner) (reached bool, err error) {
	before := tr.PieceCount()
	switch r.sp.ExtendMode {
	case "time":
		err = trajutil.ExtendTraj(tr, r.field, r.sp.TEnd, r.sp.Tolerance)
		reached = !(tr.Back().Range().Begin < r.sp.TEnd)
	default:
		reached, err = trajutil.ExtendZ(tr, r.field, r.sp.ZMax, r.sp.Tolerance)
	}
	r.opts.Metrics.AddPieces(tr.PieceCount() - before)
	outcome := observability.OutcomeNotReached
	switch {
	case err != nil:
		outcome = observability.OutcomeError
	case reached:
		outcome = observability.OutcomeReached
	}
	r.opts.Metrics.ObserveExtension(r.sp.ExtendMode, outcome)
	return reached, err
}

func sample[P traj.Piece[P]](tr *traj.Trajectory[P], index int, step float64) []Sample {
	rng := tr.Range()
	n := min(int(rng.Duration()/step), maxSamples-1)
	samples := make([]Sample, 0, n+2)
	add := func(t float64) {
		s := tr.State(t)
		samples = append(samples, Sample{Particle: index, Time: t, Position: s.Position, Momentum: s.Momentum, Energy: s.Energy()})
	}
	for i := range n + 1 {
		add(rng.Begin + float64(i)*step)
	}
	if last := samples[len(samples)-1].Time; last < rng.End {
		add(rng.End)
	}
	return samples
}
