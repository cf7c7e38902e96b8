package output

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/wildstyl3r/tracktoy/internal/config"
	"github.com/wildstyl3r/tracktoy/internal/sim"
)

// maxPlotted bounds the particles drawn per plot.
const maxPlotted = 16

// SavePlots draws z(t) and the x-y projection of the sampled trajectories
// into <path>/<scenario>_zt.png and <path>/<scenario>_xy.png. Results
// without samples produce no plots.
func SavePlots(r *sim.Result, path string, units []string) (saved []string, err error) {
	lengthUnit := config.UnitLabel(length, units)
	timeUnit := config.UnitLabel(duration, units)
	conv := func(v float64, classes []config.UnitElement) float64 {
		return config.Convert(v, classes, units, false)
	}

	var zt, xy []any
	for _, p := range r.Particles {
		if len(p.Samples) == 0 {
			continue
		}
		if len(zt)/2 >= maxPlotted {
			break
		}
		zpts := make(plotter.XYs, len(p.Samples))
		xpts := make(plotter.XYs, len(p.Samples))
		for i, s := range p.Samples {
			zpts[i] = plotter.XY{X: conv(s.Time, duration), Y: conv(s.Position.Z, length)}
			xpts[i] = plotter.XY{X: conv(s.Position.X, length), Y: conv(s.Position.Y, length)}
		}
		label := fmt.Sprintf("particle %d", p.Index)
		zt = append(zt, label, zpts)
		xy = append(xy, label, xpts)
	}
	if len(zt) == 0 {
		return nil, nil
	}
	if path != "" {
		if err := os.MkdirAll(path, 0750); err != nil {
			return nil, err
		}
	}

	for _, view := range []struct {
		suffix, xLabel, yLabel string
		lines                  []any
		width, height          vg.Length
	}{
		{"zt", "t (" + timeUnit + ")", "z (" + lengthUnit + ")", zt, 6 * vg.Inch, 4 * vg.Inch},
		{"xy", "x (" + lengthUnit + ")", "y (" + lengthUnit + ")", xy, 6 * vg.Inch, 6 * vg.Inch},
	} {
		p := plot.New()
		p.Title.Text = r.Scenario
		p.X.Label.Text = view.xLabel
		p.Y.Label.Text = view.yLabel
		p.Add(plotter.NewGrid())
		if err := plotutil.AddLines(p, view.lines...); err != nil {
			return saved, fmt.Errorf("plotting %s: %w", view.suffix, err)
		}
		filename := filepath.Join(path, r.Scenario+"_"+view.suffix+".png")
		if err := p.Save(view.width, view.height, filename); err != nil {
			return saved, fmt.Errorf("saving plot: %w", err)
		}
		saved = append(saved, filename)
	}
	return saved, nil
}
