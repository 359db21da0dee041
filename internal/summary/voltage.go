package summary

import "math"

// DefaultLogGain is the log10 gain the operating voltage is quoted at.
const DefaultLogGain = 4.0

// VoltageAtLogGain solves the gain curve log(G) = a·V² + b·V + c for the
// voltage giving log(G) = target. Of the two roots the one of smaller
// magnitude lies on the measured branch of the curve. NaN is returned when
// no real root exists or a coefficient is NaN.
func VoltageAtLogGain(a, b, c, target float64) float64 {
	c -= target
	if math.IsNaN(a) || math.IsNaN(b) || math.IsNaN(c) {
		return math.NaN()
	}
	if a == 0 {
		if b == 0 {
			return math.NaN()
		}
		return -c / b
	}
	disc := b*b - 4*a*c
	if disc < 0 {
		return math.NaN()
	}
	// Stable root pair (citardauq form).
	q := -0.5 * (b + math.Copysign(math.Sqrt(disc), b))
	if q == 0 {
		return 0
	}
	r1, r2 := q/a, c/q
	if math.Abs(r1) < math.Abs(r2) {
		return r1
	}
	return r2
}

// Crystal is the summary of one calibrated crystal.
type Crystal struct {
	Serial     string
	Voltage    float64
	Resolution float64
	Variation  float64
}

// Summarize derives per-crystal summary values at the given log gain.
func Summarize(records []Record, logGain float64) []Crystal {
	out := make([]Crystal, len(records))
	for i, rec := range records {
		out[i] = Crystal{
			Serial:     rec.Serial,
			Voltage:    VoltageAtLogGain(rec.Saturation, rec.Slope, rec.Offset, logGain),
			Resolution: rec.Resolution,
			Variation:  rec.Variation,
		}
	}
	return out
}

// PoorResolution lists the serials whose resolution is at or above
// threshold, in input order.
func PoorResolution(crystals []Crystal, threshold float64) []string {
	var serials []string
	for _, c := range crystals {
		if c.Resolution >= threshold {
			serials = append(serials, c.Serial)
		}
	}
	return serials
}
