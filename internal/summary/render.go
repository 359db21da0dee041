package summary

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"go-hep.org/x/hep/hbook"
	"go-hep.org/x/hep/hplot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/vg"

	"crystalproc/internal/services"
)

// Output file names written by Render.
const (
	FileVoltage             = "voltage.png"
	FileResolution          = "resolution.png"
	FileVariation           = "variation.png"
	FileResolutionVariation = "resolution_vs_variation.png"
	FileResolutionVoltage   = "resolution_vs_voltage.png"
	FileVariationVoltage    = "variation_vs_voltage.png"
)

const (
	labelResolution = "137Cs Position 3 Peak Resolution (keV)"
	labelVariation  = "137Cs Total Energy Variation (keV)"
)

var barColor = color.NRGBA{R: 0x1f, G: 0x4e, B: 0xd8, A: 0xff}

// Render writes the six summary plots into dir and returns their paths.
func Render(h Histograms, dir string, logGain float64) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "summary", "render", "create output dir", err)
	}
	labelVoltage := fmt.Sprintf("Voltage (log(G)=%g)", logGain)

	plots := []struct {
		file string
		draw func() *hplot.Plot
	}{
		{FileVoltage, func() *hplot.Plot {
			return plot1D(h.Voltage, fmt.Sprintf("Voltages (log(G)=%g)", logGain), "Voltage (V)")
		}},
		{FileResolution, func() *hplot.Plot {
			return plot1D(h.Resolution, "137Cs Energy Resolution", "Calibrated Energy (keV)")
		}},
		{FileVariation, func() *hplot.Plot {
			return plot1D(h.Variation, "137Cs Peak Energy Variation with Source Position", "Calibrated Energy (keV)")
		}},
		{FileResolutionVariation, func() *hplot.Plot {
			return plot2D(h.ResolutionVariation, "Energy Variation vs Peak Resolution", labelResolution, labelVariation)
		}},
		{FileResolutionVoltage, func() *hplot.Plot {
			return plot2D(h.ResolutionVoltage, "Gain vs Peak Resolution", labelResolution, labelVoltage)
		}},
		{FileVariationVoltage, func() *hplot.Plot {
			return plot2D(h.VariationVoltage, "Gain vs Peak Variation", labelVariation, labelVoltage)
		}},
	}

	written := make([]string, 0, len(plots))
	for _, p := range plots {
		path := filepath.Join(dir, p.file)
		if err := hplot.Save(p.draw(), 6*vg.Inch, 4*vg.Inch, path); err != nil {
			return written, services.Wrap(services.ErrExternalTool, "summary", "render", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func plot1D(hist *hbook.H1D, title, xlabel string) *hplot.Plot {
	p := hplot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Label.Text = "Counts"

	h := hplot.NewH1D(hist)
	h.FillColor = barColor
	h.LineStyle.Color = color.Black
	h.Infos.Style = hplot.HInfoSummary
	p.Add(h)
	p.Add(hplot.NewGrid())
	return p
}

func plot2D(hist *hbook.H2D, title, xlabel, ylabel string) *hplot.Plot {
	p := hplot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Label.Text = ylabel

	h := hplot.NewH2D(hist, moreland.Kindlmann().Palette(256))
	h.Infos.Style = hplot.HInfoMean | hplot.HInfoStdDev
	p.Add(h)
	p.Add(hplot.NewGrid())
	return p
}
