package calibration

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"crystalproc/internal/services"
)

// CharLogName is the per-crystal characterization log results are appended to.
const CharLogName = "CharLog.txt"

// Measurement pairs a dimension value with the run taken at it.
type Measurement struct {
	Value float64
	Run   *Run
}

// PositionPoint is the calibrated 137Cs response at one source position.
type PositionPoint struct {
	Position      float64
	Energy        float64
	EnergyErr     float64
	Resolution    float64
	ResolutionErr float64
}

// PositionSummary describes a crystal's uniformity along its length.
type PositionSummary struct {
	Points        []PositionPoint
	Reference     float64
	Resolution    float64
	ResolutionErr float64
	MaxEnergy     float64
	MinEnergy     float64
	Variation     float64
}

// SummarizePositions calibrates each run's 137Cs peak with that run's own
// calibration. The resolution is quoted at the reference position and the
// variation is the spread of the calibrated peak energies.
func SummarizePositions(ms []Measurement, reference float64) (PositionSummary, error) {
	if len(ms) == 0 {
		return PositionSummary{}, services.Wrap(services.ErrValidation, "calibrate", "position", "no runs", nil)
	}
	sum := PositionSummary{Reference: reference, MaxEnergy: math.Inf(-1), MinEnergy: math.Inf(1)}
	found := false
	for _, m := range sorted(ms) {
		cs, ok := m.Run.Peak(Cs662)
		if !ok {
			return PositionSummary{}, services.Wrap(services.ErrNotFound, "calibrate", "position",
				fmt.Sprintf("no 137Cs peak at position %g", m.Value), nil)
		}
		cal := m.Run.Calibration
		pt := PositionPoint{Position: m.Value}
		pt.Energy, pt.EnergyErr = cal.Energy(cs.Mu, cs.MuErr)
		pt.Resolution, pt.ResolutionErr = cal.Width(cs.Sigma, cs.SigmaErr)
		sum.Points = append(sum.Points, pt)

		sum.MaxEnergy = math.Max(sum.MaxEnergy, pt.Energy)
		sum.MinEnergy = math.Min(sum.MinEnergy, pt.Energy)
		if m.Value == reference {
			sum.Resolution, sum.ResolutionErr = pt.Resolution, pt.ResolutionErr
			found = true
		}
	}
	if !found {
		return PositionSummary{}, services.Wrap(services.ErrNotFound, "calibrate", "position",
			fmt.Sprintf("no run at reference position %g", reference), nil)
	}
	sum.Variation = sum.MaxEnergy - sum.MinEnergy
	return sum, nil
}

// VoltagePoint is the log gain of one run.
type VoltagePoint struct {
	Voltage float64
	Gain    float64
	GainErr float64
}

// GainCurve is the quadratic fit ln(slope) = Offset + Slope·V + Curvature·V².
type GainCurve struct {
	Points       []VoltagePoint
	Offset       float64
	OffsetErr    float64
	Slope        float64
	SlopeErr     float64
	Curvature    float64
	CurvatureErr float64
}

// At evaluates the curve at voltage v.
func (g GainCurve) At(v float64) float64 {
	return g.Offset + g.Slope*v + g.Curvature*v*v
}

// FitGainCurve fits the natural log of each run's calibration slope against
// its voltage. At least three runs are needed.
func FitGainCurve(ms []Measurement) (GainCurve, error) {
	var curve GainCurve
	var xs, ys, errs []float64
	for _, m := range sorted(ms) {
		cal := m.Run.Calibration
		pt := VoltagePoint{Voltage: m.Value, Gain: math.Log(cal.Slope), GainErr: cal.SlopeErr / cal.Slope}
		curve.Points = append(curve.Points, pt)
		xs = append(xs, pt.Voltage)
		ys = append(ys, pt.Gain)
		errs = append(errs, pt.GainErr)
	}
	coef, cerr, err := polyFit(xs, ys, errs, 2)
	if err != nil {
		return GainCurve{}, err
	}
	curve.Offset, curve.OffsetErr = coef[0], cerr[0]
	curve.Slope, curve.SlopeErr = coef[1], cerr[1]
	curve.Curvature, curve.CurvatureErr = coef[2], cerr[2]
	return curve, nil
}

func sorted(ms []Measurement) []Measurement {
	out := append([]Measurement(nil), ms...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}

const charLogStamp = "Mon Jan _2 15:04:05 2006 MST"

// FormatPositionEntry renders the CharLog block for a position sweep.
func FormatPositionEntry(now time.Time, s PositionSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] Position Run\n", now.Format(charLogStamp))
	fmt.Fprintf(&b, "Cs resolution at position %s  =  %s  +/-  %s  keV\n", num(s.Reference), num(s.Resolution), num(s.ResolutionErr))
	fmt.Fprintf(&b, "Cs Max Energy Variation = %s\n", num(s.Variation))
	fmt.Fprintf(&b, "maxEnergyRef = %s\n", num(s.MaxEnergy))
	fmt.Fprintf(&b, "minEnergyRef = %s\n\n", num(s.MinEnergy))
	return b.String()
}

// FormatVoltageEntry renders the CharLog block for a voltage sweep.
func FormatVoltageEntry(now time.Time, g GainCurve) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] Voltage Run\n", now.Format(charLogStamp))
	fmt.Fprintf(&b, "Gain Offset (LOG(G0))\t\t=  %s\t +/-  %s\n", num(g.Offset), num(g.OffsetErr))
	fmt.Fprintf(&b, "Gain Slope \t\t\t=  %s\t +/-  %s\n", num(g.Slope), num(g.SlopeErr))
	fmt.Fprintf(&b, "Gain Curvature \t\t\t=  %s\t +/-  %s\n\n", num(g.Curvature), num(g.CurvatureErr))
	return b.String()
}

// AppendCharLog appends entry to the log at path, creating it if needed.
func AppendCharLog(path, entry string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "calibrate", "open log", path, err)
	}
	if _, err := f.WriteString(entry); err != nil {
		f.Close()
		return services.Wrap(services.ErrConfiguration, "calibrate", "write log", path, err)
	}
	return f.Close()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
