package report

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/gateway-fm/gasbench/internal/bench"
)

// Series is one named line of points for plotting.
type Series struct {
	Name   string
	X      []float64
	Y      []float64
	Labels []string // Optional tick labels aligned with X (precount charts)
}

// SeriesFromResults converts pipeline results into a plottable series.
func SeriesFromResults(name string, results []bench.Result) Series {
	s := Series{
		Name: name,
		X:    make([]float64, len(results)),
		Y:    make([]float64, len(results)),
	}
	for i, r := range results {
		s.X[i] = float64(r.Index)
		s.Y[i] = float64(r.GasUsed)
	}
	return s
}

// SeriesFromCheckpoints converts precount checkpoints into a plottable
// series with "2^k-1" tick labels.
func SeriesFromCheckpoints(name string, cps []bench.Checkpoint) Series {
	s := Series{
		Name:   name,
		X:      make([]float64, len(cps)),
		Y:      make([]float64, len(cps)),
		Labels: make([]string, len(cps)),
	}
	for i, cp := range cps {
		s.X[i] = float64(cp.K)
		s.Y[i] = float64(cp.GasUsed)
		s.Labels[i] = fmt.Sprintf("%d (2^%d-1)", cp.Target, cp.K)
	}
	return s
}

// SaveScatter renders all series as a scatter chart and writes a PNG.
func SaveScatter(path, title, xLabel string, series []Series) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = "Gas used"
	p.Add(plotter.NewGrid())

	for i, s := range series {
		sc, err := plotter.NewScatter(toXYs(s))
		if err != nil {
			return fmt.Errorf("scatter %s: %w", s.Name, err)
		}
		sc.GlyphStyle.Radius = vg.Points(2)
		sc.GlyphStyle.Color = plotutil.Color(i)
		p.Add(sc)
		p.Legend.Add(s.Name, sc)
	}
	p.Legend.Top = true

	// Precount charts carry explicit 2^k-1 tick labels.
	if len(series) > 0 && len(series[0].Labels) > 0 {
		ticks := make([]plot.Tick, len(series[0].X))
		for i, x := range series[0].X {
			ticks[i] = plot.Tick{Value: x, Label: series[0].Labels[i]}
		}
		p.X.Tick.Marker = plot.ConstantTicks(ticks)
	}

	return save(p, path)
}

// SaveBoxPlot renders one box per series showing its gas distribution.
func SaveBoxPlot(path, title string, series []Series) error {
	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "Gas used"
	p.Add(plotter.NewGrid())

	names := make([]string, len(series))
	for i, s := range series {
		values := make(plotter.Values, len(s.Y))
		copy(values, s.Y)

		box, err := plotter.NewBoxPlot(vg.Points(40), float64(i), values)
		if err != nil {
			return fmt.Errorf("box plot %s: %w", s.Name, err)
		}
		box.FillColor = plotutil.Color(i)
		p.Add(box)
		names[i] = s.Name
	}
	p.NominalX(names...)

	return save(p, path)
}

func toXYs(s Series) plotter.XYs {
	xys := make(plotter.XYs, len(s.X))
	for i := range s.X {
		xys[i].X = s.X[i]
		xys[i].Y = s.Y[i]
	}
	return xys
}

func save(p *plot.Plot, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save chart %s: %w", path, err)
	}
	return nil
}
