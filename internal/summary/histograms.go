package summary

import (
	"math"

	"go-hep.org/x/hep/hbook"
)

// Binning of the summary histograms. Upper edges are exclusive of the last
// step, matching the lab's historical plots.
var (
	VoltageBins    = Axis{N: 32, Min: 620, Max: 940}
	ResolutionBins = Axis{N: 12, Min: 20, Max: 44}
	VariationBins  = Axis{N: 27, Min: 0, Max: 54}

	ResolutionBins2D = Axis{N: 11, Min: 20, Max: 42}
	VariationBins2D  = Axis{N: 12, Min: 0, Max: 60}
	VoltageBins2D    = Axis{N: 10, Min: 660, Max: 960}
)

// Axis is a fixed-width binning.
type Axis struct {
	N        int
	Min, Max float64
}

// Histograms holds the filled summary histograms.
type Histograms struct {
	Voltage    *hbook.H1D
	Resolution *hbook.H1D
	Variation  *hbook.H1D

	ResolutionVariation *hbook.H2D
	ResolutionVoltage   *hbook.H2D
	VariationVoltage    *hbook.H2D

	// Skipped counts crystals left out of at least one histogram because a
	// value was missing.
	Skipped int
}

// Fill builds the summary histograms. A crystal contributes to every
// histogram whose inputs it has.
func Fill(crystals []Crystal) Histograms {
	h := Histograms{
		Voltage:             newH1D(VoltageBins),
		Resolution:          newH1D(ResolutionBins),
		Variation:           newH1D(VariationBins),
		ResolutionVariation: newH2D(ResolutionBins2D, VariationBins2D),
		ResolutionVoltage:   newH2D(ResolutionBins2D, VoltageBins2D),
		VariationVoltage:    newH2D(VariationBins2D, VoltageBins2D),
	}
	for _, c := range crystals {
		volt, res, vari := valid(c.Voltage), valid(c.Resolution), valid(c.Variation)
		if !volt || !res || !vari {
			h.Skipped++
		}
		if volt {
			h.Voltage.Fill(c.Voltage, 1)
		}
		if res {
			h.Resolution.Fill(c.Resolution, 1)
		}
		if vari {
			h.Variation.Fill(c.Variation, 1)
		}
		if res && vari {
			h.ResolutionVariation.Fill(c.Resolution, c.Variation, 1)
		}
		if res && volt {
			h.ResolutionVoltage.Fill(c.Resolution, c.Voltage, 1)
		}
		if vari && volt {
			h.VariationVoltage.Fill(c.Variation, c.Voltage, 1)
		}
	}
	return h
}

func newH1D(a Axis) *hbook.H1D {
	return hbook.NewH1D(a.N, a.Min, a.Max)
}

func newH2D(x, y Axis) *hbook.H2D {
	return hbook.NewH2D(x.N, x.Min, x.Max, y.N, y.Min, y.Max)
}

func valid(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
