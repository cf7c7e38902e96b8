// Package output writes the tracking results of a scenario as CSV tables
// and PNG plots, in the configured output units.
package output

import (
	"flag"
	"strconv"

	"github.com/wildstyl3r/tracktoy/internal/config"
	"github.com/wildstyl3r/tracktoy/internal/sim"
)

type DataItem struct {
	saveFlag   *bool
	fileSuffix string
}

// Column is one CSV column: its header and the unit of its values. Unitless
// columns have no classes.
type Column struct {
	Name string
	Unit []config.UnitElement
}

func (c Column) header(units []string) string {
	if len(c.Unit) == 0 {
		return c.Name
	}
	return c.Name + " (" + config.UnitLabel(c.Unit, units) + ")"
}

type TableItem struct {
	DataItem
	columns []Column
	rows    func(*sim.Result) [][]float64
}

type DataFlags struct {
	all        *bool
	plot       *bool
	tables     map[string]TableItem
	outputPath string
}

var (
	length   = []config.UnitElement{{Class: config.Length, Power: 1}}
	duration = []config.UnitElement{{Class: config.Time, Power: 1}}
	energy   = []config.UnitElement{{Class: config.Energy, Power: 1}}
)

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// NewDataFlags registers the output switches on fs.
func NewDataFlags(fs *flag.FlagSet) DataFlags {
	return DataFlags{
		all:  fs.Bool("all", false, "save every available table"),
		plot: fs.Bool("plot", false, "save z(t) and x-y plots"),
		tables: map[string]TableItem{
			"Trajectory samples": {
				DataItem: DataItem{
					saveFlag:   fs.Bool("traj", false, "save sampled trajectories (needs -samples)"),
					fileSuffix: "traj",
				},
				columns: []Column{
					{"particle", nil}, {"t", duration},
					{"x", length}, {"y", length}, {"z", length},
					{"px", energy}, {"py", energy}, {"pz", energy}, {"E", energy},
				},
				rows: func(r *sim.Result) (rows [][]float64) {
					for _, p := range r.Particles {
						for _, s := range p.Samples {
							rows = append(rows, []float64{
								float64(s.Particle), s.Time,
								s.Position.X, s.Position.Y, s.Position.Z,
								s.Momentum.X, s.Momentum.Y, s.Momentum.Z, s.Energy,
							})
						}
					}
					return
				},
			},
			"Plane crossings": {
				DataItem: DataItem{
					saveFlag:   fs.Bool("zc", true, "save z plane crossings"),
					fileSuffix: "zc",
				},
				columns: []Column{
					{"particle", nil}, {"plane", length}, {"t", duration},
					{"x", length}, {"y", length}, {"p", energy},
					{"iterations", nil}, {"found", nil},
				},
				rows: func(r *sim.Result) (rows [][]float64) {
					for _, p := range r.Particles {
						for _, c := range p.Crossings {
							rows = append(rows, []float64{
								float64(c.Particle), c.Plane, c.Time,
								c.Position.X, c.Position.Y, c.Momentum,
								float64(c.Iterations), b2f(c.Found),
							})
						}
					}
					return
				},
			},
			"Trajectory ends": {
				DataItem: DataItem{
					saveFlag:   fs.Bool("ends", true, "save trajectory end states"),
					fileSuffix: "ends",
				},
				columns: []Column{
					{"particle", nil}, {"t", duration},
					{"x", length}, {"y", length}, {"z", length}, {"E", energy},
					{"pieces", nil}, {"reached", nil}, {"terminated", nil},
					{"splices", nil}, {"gap", length},
				},
				rows: func(r *sim.Result) (rows [][]float64) {
					for _, p := range r.Particles {
						if p.Err != nil {
							continue
						}
						rows = append(rows, []float64{
							float64(p.Index), p.Range.End,
							p.Final.Position.X, p.Final.Position.Y, p.Final.Position.Z, p.Final.Energy(),
							float64(p.Pieces), b2f(p.Reached), b2f(p.Terminated),
							float64(p.Splices), p.PositionGap,
						})
					}
					return
				},
			},
		},
	}
}

func (df *DataFlags) SetOutputPath(path string) {
	df.outputPath = path
}

func (df *DataFlags) GetOutputPath() string {
	return df.outputPath
}

// Plot reports whether plots were requested.
func (df *DataFlags) Plot() bool {
	return df.plot != nil && *df.plot
}

func format(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
