package sim

import (
	"math"

	"github.com/wildstyl3r/tracktoy/internal/utils"
)

type PlaneSummary struct {
	Plane     float64
	Found     int
	MeanTime  float64 // NaN when nothing crossed
	StdTime   float64
	MeanIters float64
}

type Summary struct {
	Particles  int
	Failed     int
	Reached    int
	Terminated int
	Splices    int

	MeanPieces      float64
	MaxPieces       int
	MeanFinalEnergy float64
	StdFinalEnergy  float64
	MinFinalZ       float64
	MaxFinalZ       float64

	WorstGap         float64
	WorstGapParticle int // -1 when every particle failed

	Planes []PlaneSummary
}

// Summary aggregates the tracked particles. Failed particles only
// contribute to the Failed count.
func (r *Result) Summary() Summary {
	s := Summary{Particles: len(r.Particles), WorstGapParticle: -1}
	var pieces []int
	var energies, finalZ, gaps []float64
	var owners, splices []int
	for _, p := range r.Particles {
		if p.Err != nil {
			s.Failed++
			continue
		}
		if p.Reached {
			s.Reached++
		}
		if p.Terminated {
			s.Terminated++
		}
		pieces = append(pieces, p.Pieces)
		energies = append(energies, p.Final.Energy())
		finalZ = append(finalZ, p.Final.Position.Z)
		gaps = append(gaps, p.PositionGap)
		owners = append(owners, p.Index)
		splices = append(splices, p.Splices)
	}
	s.Splices = utils.SumSlice(splices)
	s.MeanPieces = utils.Average(pieces)
	_, s.MaxPieces = utils.MinMax(pieces)
	mean, variance := utils.MeanAndVariance(energies, true)
	s.MeanFinalEnergy, s.StdFinalEnergy = mean, math.Sqrt(variance)
	s.MinFinalZ, s.MaxFinalZ = utils.MinMax(finalZ)
	if len(gaps) > 0 {
		worst := utils.Argmax(gaps)
		s.WorstGap, s.WorstGapParticle = gaps[worst], owners[worst]
	}

	byPlane := map[float64][]Crossing{}
	var planes []float64
	for _, p := range r.Particles {
		for _, c := range p.Crossings {
			if _, ok := byPlane[c.Plane]; !ok {
				planes = append(planes, c.Plane)
			}
			byPlane[c.Plane] = append(byPlane[c.Plane], c)
		}
	}
	for _, z := range planes {
		ps := PlaneSummary{Plane: z}
		var times []float64
		var iters []int
		for _, c := range byPlane[z] {
			iters = append(iters, c.Iterations)
			if c.Found {
				ps.Found++
				times = append(times, c.Time)
			}
		}
		mean, variance := utils.MeanAndVariance(times, true)
		ps.MeanTime, ps.StdTime = mean, math.Sqrt(variance)
		ps.MeanIters = utils.Average(iters)
		s.Planes = append(s.Planes, ps)
	}
	return s
}
