package calibration

import (
	"fmt"
	"math"

	"go-hep.org/x/hep/hbook"
	"gonum.org/v1/gonum/mat"

	"crystalproc/internal/services"
)

// Calibration maps energy to raw position: raw = Offset + Slope·E.
type Calibration struct {
	Offset    float64
	OffsetErr float64
	Slope     float64
	SlopeErr  float64
}

// Energy converts a raw position and its error to keV. The error combines
// the measurement with the calibration's offset and slope uncertainties.
func (c Calibration) Energy(raw, rawErr float64) (float64, float64) {
	e := (raw - c.Offset) / c.Slope
	err := math.Sqrt(sq(rawErr/c.Slope) + sq(c.OffsetErr/c.Slope) + sq(e*c.SlopeErr/c.Slope))
	return e, err
}

// Width converts a raw peak width and its error to keV.
func (c Calibration) Width(sigma, sigmaErr float64) (float64, float64) {
	w := sigma / c.Slope
	return w, w * math.Sqrt(sq(sigmaErr/sigma)+sq(c.SlopeErr/c.Slope))
}

// FitCalibration fits peak position against line energy over the peaks
// marked as calibrating, weighting each by its position error.
func FitCalibration(peaks []Peak) (Calibration, error) {
	var xs, ys, errs []float64
	for _, p := range peaks {
		if !p.Calibrates {
			continue
		}
		xs = append(xs, p.Line.Energy)
		ys = append(ys, p.Mu)
		errs = append(errs, p.MuErr)
	}
	coef, cerr, err := polyFit(xs, ys, errs, 1)
	if err != nil {
		return Calibration{}, err
	}
	if coef[1] <= 0 {
		return Calibration{}, services.Wrap(services.ErrVerification, "calibrate", "fit calibration",
			fmt.Sprintf("non-positive slope %g", coef[1]), nil)
	}
	return Calibration{Offset: coef[0], OffsetErr: cerr[0], Slope: coef[1], SlopeErr: cerr[1]}, nil
}

// polyFit is a weighted least-squares polynomial fit returning coefficients
// in ascending order and their standard errors. Points with a zero, NaN or
// infinite error get unit weight. The fit runs on centred, scaled abscissae
// and the coefficients and covariance are mapped back to x.
func polyFit(xs, ys, yerrs []float64, degree int) ([]float64, []float64, error) {
	n := degree + 1
	if len(xs) < n {
		return nil, nil, services.Wrap(services.ErrValidation, "calibrate", "fit",
			fmt.Sprintf("%d points cannot fix a degree %d polynomial", len(xs), degree), nil)
	}
	lo, hi := xs[0], xs[0]
	for _, x := range xs {
		lo, hi = math.Min(lo, x), math.Max(hi, x)
	}
	centre, width := 0.5*(lo+hi), 0.5*(hi-lo)
	if width == 0 {
		width = 1
	}

	normal := mat.NewSymDense(n, nil)
	rhs := mat.NewVecDense(n, nil)
	for i, x := range xs {
		w := 1.0
		if e := yerrs[i]; e > 0 && !math.IsInf(e, 0) {
			w = 1 / (e * e)
		}
		t := (x - centre) / width
		for r := 0; r < n; r++ {
			tr := math.Pow(t, float64(r))
			rhs.SetVec(r, rhs.AtVec(r)+w*tr*ys[i])
			for c := r; c < n; c++ {
				normal.SetSym(r, c, normal.At(r, c)+w*tr*math.Pow(t, float64(c)))
			}
		}
	}

	var chol mat.Cholesky
	if !chol.Factorize(normal) {
		return nil, nil, services.Wrap(services.ErrVerification, "calibrate", "fit", "singular normal equations", nil)
	}
	var coef mat.VecDense
	if err := chol.SolveVecTo(&coef, rhs); err != nil {
		return nil, nil, services.Wrap(services.ErrVerification, "calibrate", "fit", "solve", err)
	}
	var cov mat.SymDense
	if err := chol.InverseTo(&cov); err != nil {
		return nil, nil, services.Wrap(services.ErrVerification, "calibrate", "fit", "covariance", err)
	}

	// Coefficient j of x collects a_k·C(k,j)·(-centre)^(k-j)/width^k.
	toX := mat.NewDense(n, n, nil)
	for j := 0; j < n; j++ {
		for k := j; k < n; k++ {
			toX.Set(j, k, binomial(k, j)*math.Pow(-centre, float64(k-j))/math.Pow(width, float64(k)))
		}
	}
	var vals mat.VecDense
	vals.MulVec(toX, &coef)
	var tmp, xcov mat.Dense
	tmp.Mul(toX, &cov)
	xcov.Mul(&tmp, toX.T())

	outVals := make([]float64, n)
	outErrs := make([]float64, n)
	for i := range outVals {
		outVals[i] = vals.AtVec(i)
		outErrs[i] = math.Sqrt(math.Max(xcov.At(i, i), 0))
	}
	return outVals, outErrs, nil
}

func binomial(n, k int) float64 {
	out := 1.0
	for i := 1; i <= k; i++ {
		out *= float64(n-k+i) / float64(i)
	}
	return out
}

// Options tunes a run analysis.
type Options struct {
	// Pin is the raw position of the 208Tl 2614 keV line. Zero searches the
	// spectrum for it.
	Pin float64
}

// Run is the analysis of one converted run.
type Run struct {
	Pin         float64
	Spectrum    *hbook.H1D
	Peaks       []Peak
	Calibration Calibration
}

// Peak returns the fitted peak of line.
func (r *Run) Peak(line Line) (Peak, bool) {
	for _, p := range r.Peaks {
		if p.Line == line {
			return p, true
		}
	}
	return Peak{}, false
}

// Analyze bins the run's energies, fits the source peaks and derives the
// linear calibration.
func Analyze(energies []float64, opts Options) (*Run, error) {
	hi := overflowEdge(energies)
	if hi <= 0 {
		return nil, services.Wrap(services.ErrValidation, "calibrate", "analyze", "spectrum has no positive energies", nil)
	}
	pin := opts.Pin
	if pin <= 0 {
		var err error
		if pin, err = LocatePin(energies); err != nil {
			return nil, err
		}
	}
	if pin >= hi {
		return nil, services.Wrap(services.ErrValidation, "calibrate", "analyze",
			fmt.Sprintf("208Tl position %g is beyond the spectrum end %g", pin, hi), nil)
	}

	bins := max(int(binsPerPin*hi/pin), minSearchBins)
	spectrum := newSpectrum(energies, bins, hi)
	run := &Run{Pin: snapToMax(spectrum, pin), Spectrum: spectrum}

	// Raw units per keV, refined once the 208Tl peak is fitted.
	scale := run.Pin / Tl2614.Energy
	for _, g := range peakGroups {
		anchor := snapToMax(spectrum, g.lines[0].Energy*scale)
		fixed := make([]float64, 0, len(g.lines)-1)
		for _, line := range g.lines[1:] {
			fixed = append(fixed, run.predict(line.Energy, scale))
		}
		peaks, err := fitGroup(spectrum, g, anchor, fixed)
		if err != nil {
			return nil, err
		}
		run.Peaks = append(run.Peaks, peaks...)
		if g.lines[0] == Tl2614 {
			scale = peaks[0].Mu / Tl2614.Energy
		}
	}

	cal, err := FitCalibration(run.Peaks)
	if err != nil {
		return nil, err
	}
	run.Calibration = cal
	return run, nil
}

// predict interpolates the raw position of energy from the first two
// calibrating peaks fitted so far, falling back to a proportional scale.
func (r *Run) predict(energy, scale float64) float64 {
	var ref []Peak
	for _, p := range r.Peaks {
		if p.Calibrates {
			ref = append(ref, p)
		}
	}
	if len(ref) < 2 || ref[0].Line.Energy == ref[1].Line.Energy {
		return energy * scale
	}
	slope := (ref[0].Mu - ref[1].Mu) / (ref[0].Line.Energy - ref[1].Line.Energy)
	return ref[0].Mu + (energy-ref[0].Line.Energy)*slope
}

func sq(x float64) float64 { return x * x }
