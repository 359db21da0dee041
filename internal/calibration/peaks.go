package calibration

import (
	"fmt"
	"math"

	"go-hep.org/x/hep/fit"
	"go-hep.org/x/hep/hbook"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"crystalproc/internal/services"
)

// Line is a gamma line of a calibration source.
type Line struct {
	Name   string
	Energy float64 // keV
}

// Lines fitted in every run.
var (
	Tl2614 = Line{Name: "208Tl", Energy: 2614.511}
	K1460  = Line{Name: "40K", Energy: 1460.820}
	Cs662  = Line{Name: "137Cs", Energy: 661.657}
	Tl583  = Line{Name: "208Tl", Energy: 583.187}
)

const (
	searchBins       = 16384
	minSearchBins    = 64
	maxSearchPeaks   = 7
	pinCeiling       = 0.9
	snapFraction     = 0.05
	binsPerPin       = 500
	peakThreshold    = 1e-4
	peakSignificance = 5.0
	sigmaGuess       = 0.05
	sidebandFraction = 0.15
	minFitBins       = 8
)

// peakGroup is a set of lines fitted together with one shared width. The
// first line anchors the fit window; the positions of the others are held
// at the values predicted by the lines already fitted.
type peakGroup struct {
	lines      []Line
	window     float64
	calibrates bool
}

var peakGroups = []peakGroup{
	{lines: []Line{Tl2614}, window: 0.10, calibrates: true},
	{lines: []Line{K1460}, window: 0.15, calibrates: true},
	{lines: []Line{Cs662, Tl583}, window: 0.25},
}

// Peak is one fitted photopeak in raw units.
type Peak struct {
	Line       Line
	Mu         float64
	MuErr      float64
	Sigma      float64
	SigmaErr   float64
	Amplitude  float64
	Calibrates bool
}

// LocatePin estimates the raw position of the 208Tl 2614 keV line. The
// spectrum is searched for significant maxima at successively coarser
// binnings; the binning that resolves the most peaks, up to seven, is kept
// and the highest peak below 90% of the spectrum's range is taken.
func LocatePin(energies []float64) (float64, error) {
	hi := overflowEdge(energies)
	if hi <= 0 {
		return 0, services.Wrap(services.ErrValidation, "calibrate", "locate 208Tl", "spectrum has no positive energies", nil)
	}
	fine := newSpectrum(energies, searchBins, hi)

	var best []float64
	counts := contents(fine)
	for width := hi / searchBins; len(counts) >= minSearchBins; width *= 2 {
		found := findPeaks(counts)
		if len(found) <= maxSearchPeaks && len(found) > len(best) {
			best = best[:0]
			for _, idx := range found {
				best = append(best, (float64(idx)+0.5)*width)
			}
		}
		counts = rebin(counts)
	}

	pin := 0.0
	for _, x := range best {
		if x < pinCeiling*hi && x > pin {
			pin = x
		}
	}
	if pin == 0 {
		return 0, services.Wrap(services.ErrNotFound, "calibrate", "locate 208Tl", "no peak found below the spectrum end", nil)
	}
	return snapToMax(fine, pin), nil
}

// findPeaks returns the indices of significant local maxima of the smoothed
// counts. A maximum is significant when it stands above the higher of the
// valleys separating it from taller bins by peakSignificance standard
// deviations.
func findPeaks(counts []float64) []int {
	s := smooth(counts)
	top := 0.0
	for _, v := range s {
		top = math.Max(top, v)
	}
	if top <= 0 {
		return nil
	}

	var out []int
	for i := 1; i < len(s)-1; i++ {
		v := s[i]
		if v <= 0 || v < peakThreshold*top || v <= s[i-1] || v < s[i+1] {
			continue
		}
		left := v
		for j := i - 1; j >= 0 && s[j] <= v; j-- {
			left = math.Min(left, s[j])
		}
		right := v
		for j := i + 1; j < len(s) && s[j] <= v; j++ {
			right = math.Min(right, s[j])
		}
		if v-math.Max(left, right) >= peakSignificance*math.Sqrt(v) {
			out = append(out, i)
		}
	}
	return out
}

func smooth(counts []float64) []float64 {
	out := make([]float64, len(counts))
	for i := range counts {
		sum, n := counts[i], 1.0
		if i > 0 {
			sum += counts[i-1]
			n++
		}
		if i < len(counts)-1 {
			sum += counts[i+1]
			n++
		}
		out[i] = sum / n
	}
	return out
}

func rebin(counts []float64) []float64 {
	out := make([]float64, len(counts)/2)
	for i := range out {
		out[i] = counts[2*i] + counts[2*i+1]
	}
	return out
}

// fitGroup fits g's lines around anchor. fixed holds the held positions of
// every line after the first.
func fitGroup(h *hbook.H1D, g peakGroup, anchor float64, fixed []float64) ([]Peak, error) {
	lo, hi := anchor*(1-g.window), anchor*(1+g.window)
	var xs, ys, errs []float64
	for _, bin := range h.Binning.Bins {
		mid := bin.XMid()
		if mid < lo || mid > hi {
			continue
		}
		n := bin.SumW()
		xs = append(xs, mid)
		ys = append(ys, n)
		errs = append(errs, math.Sqrt(math.Max(n, 1)))
	}
	name := g.lines[0].Name
	if len(xs) < minFitBins {
		return nil, services.Wrap(services.ErrVerification, "calibrate", "fit "+name,
			fmt.Sprintf("only %d bins inside [%.4g, %.4g]", len(xs), lo, hi), nil)
	}

	b0, b1 := backgroundEstimate(xs, ys)
	sigma0 := sigmaGuess * anchor
	amp := func(x float64) float64 {
		return math.Max(countAt(h, x)-math.Exp(b0+b1*x), 1)
	}

	// Parameter layout: sigma, b0, b1, then amplitude and position per line.
	p0 := []float64{sigma0, b0, b1, amp(anchor), anchor}
	scales := []float64{sigma0, 1, 1 / anchor, p0[3], sigma0}
	free := []int{0, 1, 2, 3, 4}
	for k, mu := range fixed {
		p0 = append(p0, amp(mu), mu)
		scales = append(scales, p0[5+2*k], 0)
		free = append(free, 5+2*k)
	}

	model := func(x float64, p []float64) float64 {
		y := math.Exp(p[1] + p[2]*x)
		for k := 3; k+1 < len(p); k += 2 {
			d := (x - p[k+1]) / p[0]
			y += p[k] * math.Exp(-0.5*d*d)
		}
		return y
	}
	expand := func(dst, q []float64) []float64 {
		copy(dst, p0)
		for j, idx := range free {
			dst[idx] += scales[idx] * q[j]
		}
		return dst
	}

	buf := make([]float64, len(p0))
	res, err := fit.Curve1D(fit.Func1D{
		F:   func(x float64, q []float64) float64 { return model(x, expand(buf, q)) },
		Ps:  make([]float64, len(free)),
		X:   xs,
		Y:   ys,
		Err: errs,
	}, nil, nil)
	if err != nil && res == nil {
		return nil, services.Wrap(services.ErrVerification, "calibrate", "fit "+name, "minimization failed", err)
	}
	best := expand(make([]float64, len(p0)), res.X)
	best[0] = math.Abs(best[0])
	if math.IsNaN(res.F) || best[0] == 0 || best[4] < lo || best[4] > hi {
		return nil, services.Wrap(services.ErrVerification, "calibrate", "fit "+name,
			fmt.Sprintf("peak left the window [%.4g, %.4g]", lo, hi), nil)
	}

	cost := func(q []float64) float64 {
		p := expand(make([]float64, len(p0)), q)
		var chi2 float64
		for i, x := range xs {
			r := (model(x, p) - ys[i]) / errs[i]
			chi2 += r * r
		}
		return 0.5 * chi2
	}
	qerr := parameterErrors(cost, res.X)
	perr := make([]float64, len(p0))
	for j, idx := range free {
		perr[idx] = scales[idx] * qerr[j]
	}

	peaks := make([]Peak, 0, len(g.lines))
	for k, line := range g.lines {
		a, m := 3+2*k, 4+2*k
		peaks = append(peaks, Peak{
			Line:       line,
			Mu:         best[m],
			MuErr:      perr[m],
			Sigma:      best[0],
			SigmaErr:   perr[0],
			Amplitude:  best[a],
			Calibrates: g.calibrates,
		})
	}
	return peaks, nil
}

// backgroundEstimate fits ln(counts) linearly in the outer sidebands of the
// window, weighting each bin by its count.
func backgroundEstimate(xs, ys []float64) (float64, float64) {
	side := max(int(sidebandFraction*float64(len(xs))), 2)
	var bx, by, bw []float64
	for i := range xs {
		if i >= side && i < len(xs)-side {
			continue
		}
		if ys[i] <= 0 {
			continue
		}
		bx = append(bx, xs[i])
		by = append(by, math.Log(ys[i]))
		bw = append(bw, ys[i])
	}
	if len(bx) < 2 {
		return 0, 0
	}
	alpha, beta := stat.LinearRegression(bx, by, bw, false)
	if math.IsNaN(alpha) || math.IsNaN(beta) {
		return 0, 0
	}
	return alpha, beta
}

// parameterErrors returns the standard errors of a 0.5·χ² minimum at x from
// the inverse Hessian. Errors are NaN when the Hessian is not positive
// definite.
func parameterErrors(cost func([]float64) float64, x []float64) []float64 {
	out := make([]float64, len(x))
	var hess mat.SymDense
	fd.Hessian(&hess, cost, x, nil)
	var chol mat.Cholesky
	var cov mat.SymDense
	if !chol.Factorize(&hess) || chol.InverseTo(&cov) != nil {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	for i := range out {
		out[i] = math.Sqrt(math.Max(cov.At(i, i), 0))
	}
	return out
}
