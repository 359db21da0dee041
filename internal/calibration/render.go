package calibration

import (
	"image/color"
	"os"
	"path/filepath"

	"go-hep.org/x/hep/hbook"
	"go-hep.org/x/hep/hplot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"crystalproc/internal/services"
)

// Plot file names.
const (
	FileCsEnergy     = "CsEvsPos.png"
	FileCsResolution = "CsResvsPos.png"
	FileGain         = "GainVsVolt.png"
)

var (
	pointColor = color.NRGBA{R: 0x1f, G: 0x4e, B: 0xd8, A: 0xff}
	curveColor = color.NRGBA{R: 0xd8, G: 0x1f, B: 0x3a, A: 0xff}
)

// RenderPositions writes the 137Cs energy and resolution plots into dir.
func RenderPositions(s PositionSummary, dir string) ([]string, error) {
	energy := make([]hbook.Point2D, len(s.Points))
	res := make([]hbook.Point2D, len(s.Points))
	for i, pt := range s.Points {
		energy[i] = point(pt.Position, pt.Energy, pt.EnergyErr)
		res[i] = point(pt.Position, pt.Resolution, pt.ResolutionErr)
	}
	plots := []namedPlot{
		{FileCsEnergy, graph(energy, "Cs Peak Energy vs Position", "Position", "Calibrated Cs Peak Energy (keV)")},
		{FileCsResolution, graph(res, "Cs Peak Resolution vs Position", "Position", "Width of Cs Peak (keV)")},
	}
	return save(plots, dir)
}

// RenderGain writes the gain curve plot into dir.
func RenderGain(g GainCurve, dir string) ([]string, error) {
	pts := make([]hbook.Point2D, len(g.Points))
	for i, pt := range g.Points {
		pts[i] = point(pt.Voltage, pt.Gain, pt.GainErr)
	}
	p := graph(pts, "Detector Gain vs Voltage", "Voltage (V)", "Log(Calibration Slope)")
	if n := len(g.Points); n > 0 {
		fn := hplot.NewFunction(g.At)
		fn.XMin, fn.XMax = g.Points[0].Voltage, g.Points[n-1].Voltage
		fn.Samples = 100
		fn.Color = curveColor
		fn.Width = vg.Points(1.5)
		p.Add(fn)
	}
	return save([]namedPlot{{FileGain, p}}, dir)
}

type namedPlot struct {
	file string
	plot *hplot.Plot
}

func save(plots []namedPlot, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "calibrate", "render", "create output dir", err)
	}
	written := make([]string, 0, len(plots))
	for _, p := range plots {
		path := filepath.Join(dir, p.file)
		if err := hplot.Save(p.plot, 6*vg.Inch, 4*vg.Inch, path); err != nil {
			return written, services.Wrap(services.ErrExternalTool, "calibrate", "render", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func point(x, y, yerr float64) hbook.Point2D {
	return hbook.Point2D{X: x, Y: y, ErrY: hbook.Range{Min: yerr, Max: yerr}}
}

func graph(pts []hbook.Point2D, title, xlabel, ylabel string) *hplot.Plot {
	p := hplot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Label.Text = ylabel

	s := hplot.NewS2D(hbook.NewS2D(pts...), hplot.WithYErrBars(true))
	s.GlyphStyle.Color = pointColor
	s.GlyphStyle.Radius = vg.Points(3)
	s.GlyphStyle.Shape = plotter.DefaultGlyphStyle.Shape
	p.Add(s)
	p.Add(hplot.NewGrid())
	return p
}
