package testsupport

import (
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"go-hep.org/x/hep/groot"
	"go-hep.org/x/hep/groot/rtree"
)

// Spectrum describes a synthetic source spectrum in raw units:
// raw = Offset + Slope·E with E in keV.
type Spectrum struct {
	Offset float64
	Slope  float64
	// Resolution is the fractional Gaussian width at 662 keV; widths scale
	// with sqrt(E).
	Resolution float64
	Seed       uint64
}

// Line energies and counts of the synthetic source mix.
var spectrumLines = []struct {
	energy float64
	count  int
}{
	{2614.511, 8000},
	{1460.820, 12000},
	{661.657, 40000},
	{583.187, 3000},
}

// Energies draws the events of s: the photopeaks above, an exponential
// low-energy background and a flat tail to 3300 keV.
func (s Spectrum) Energies() []float64 {
	if s.Resolution == 0 {
		s.Resolution = 0.03
	}
	rng := rand.New(rand.NewPCG(s.Seed, s.Seed^0x9e3779b97f4a7c15))
	var out []float64
	raw := func(e float64) float64 { return s.Offset + s.Slope*e }
	for _, line := range spectrumLines {
		sigma := s.Resolution * math.Sqrt(661.657*line.energy)
		for i := 0; i < line.count; i++ {
			out = append(out, raw(line.energy+sigma*rng.NormFloat64()))
		}
	}
	for i := 0; i < 60000; i++ {
		out = append(out, raw(500*rng.ExpFloat64()))
	}
	for i := 0; i < 4000; i++ {
		out = append(out, raw(3300*rng.Float64()))
	}
	return out
}

// WriteSpectrumFile writes energies to a ROOT file at path as tree "st"
// with float64 branch "energy" and int32 branch "channel". Every event is
// recorded on channel; a second channel carrying noise is interleaved.
func WriteSpectrumFile(t testing.TB, path string, energies []float64, channel int32) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := groot.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	var (
		energy float64
		ch     int32
	)
	w, err := rtree.NewWriter(f, "st", []rtree.WriteVar{
		{Name: "energy", Value: &energy},
		{Name: "channel", Value: &ch},
	})
	if err != nil {
		t.Fatalf("tree writer: %v", err)
	}
	for i, e := range energies {
		energy, ch = e, channel
		if _, err := w.Write(); err != nil {
			t.Fatalf("write event %d: %v", i, err)
		}
		if i%10 == 0 {
			energy, ch = 1, channel+1
			if _, err := w.Write(); err != nil {
				t.Fatalf("write noise event %d: %v", i, err)
			}
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close tree: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close %s: %v", path, err)
	}
}
