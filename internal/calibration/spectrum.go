package calibration

import (
	"fmt"
	"strings"

	"go-hep.org/x/hep/groot/root"
	"go-hep.org/x/hep/groot/rtree"
	"go-hep.org/x/hep/hbook"

	"crystalproc/internal/services"
)

// Source names the tree and branches holding per-event energies.
type Source struct {
	Tree          string
	EnergyBranch  string
	ChannelBranch string
	// Channel selects the digitizer channel; events on other channels are
	// skipped. An empty ChannelBranch keeps every event.
	Channel int
}

// ReadEnergies returns the raw energy of every selected event in files,
// chaining the trees in the order given.
func ReadEnergies(src Source, files ...string) ([]float64, error) {
	if len(files) == 0 {
		return nil, services.Wrap(services.ErrValidation, "calibrate", "read", "no input files", nil)
	}
	label := strings.Join(files, ", ")
	tree, closeChain, err := rtree.ChainOf(src.Tree, files...)
	if err != nil {
		return nil, services.Wrap(services.ErrParse, "calibrate", "open tree "+src.Tree, label, err)
	}
	defer closeChain()

	var energy, channel *rtree.ReadVar
	all := rtree.NewReadVars(tree)
	for i := range all {
		switch {
		case all[i].Name == src.EnergyBranch && energy == nil:
			energy = &all[i]
		case src.ChannelBranch != "" && all[i].Name == src.ChannelBranch && channel == nil:
			channel = &all[i]
		}
	}
	if energy == nil {
		return nil, services.Wrap(services.ErrParse, "calibrate", "read", fmt.Sprintf("tree %q has no branch %q", src.Tree, src.EnergyBranch), nil)
	}
	if src.ChannelBranch != "" && channel == nil {
		return nil, services.Wrap(services.ErrParse, "calibrate", "read", fmt.Sprintf("tree %q has no branch %q", src.Tree, src.ChannelBranch), nil)
	}

	rvars := []rtree.ReadVar{*energy}
	if channel != nil {
		rvars = append(rvars, *channel)
	}
	reader, err := rtree.NewReader(tree, rvars)
	if err != nil {
		return nil, services.Wrap(services.ErrParse, "calibrate", "read", label, err)
	}
	defer reader.Close()

	out := make([]float64, 0, tree.Entries())
	err = reader.Read(func(ctx rtree.RCtx) error {
		if channel != nil {
			ch, ok := numeric(rvars[1].Value)
			if !ok {
				return fmt.Errorf("branch %q: unsupported type %T", src.ChannelBranch, rvars[1].Value)
			}
			if int(ch) != src.Channel {
				return nil
			}
		}
		e, ok := numeric(rvars[0].Value)
		if !ok {
			return fmt.Errorf("branch %q: unsupported type %T", src.EnergyBranch, rvars[0].Value)
		}
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, services.Wrap(services.ErrParse, "calibrate", "read", label, err)
	}
	return out, nil
}

func numeric(ptr any) (float64, bool) {
	switch v := ptr.(type) {
	case *float64:
		return *v, true
	case *float32:
		return float64(*v), true
	case *root.Float16:
		return float64(*v), true
	case *root.Double32:
		return float64(*v), true
	case *int8:
		return float64(*v), true
	case *int16:
		return float64(*v), true
	case *int32:
		return float64(*v), true
	case *int64:
		return float64(*v), true
	case *uint8:
		return float64(*v), true
	case *uint16:
		return float64(*v), true
	case *uint32:
		return float64(*v), true
	case *uint64:
		return float64(*v), true
	default:
		return 0, false
	}
}

// overflowEdge is the upper histogram edge for energies: 1% above the
// largest value. It is 0 when no energy is positive.
func overflowEdge(energies []float64) float64 {
	hi := 0.0
	for _, e := range energies {
		if e > hi {
			hi = e
		}
	}
	return 1.01 * hi
}

func newSpectrum(energies []float64, bins int, hi float64) *hbook.H1D {
	h := hbook.NewH1D(bins, 0, hi)
	for _, e := range energies {
		h.Fill(e, 1)
	}
	return h
}

// contents returns the bin contents of h.
func contents(h *hbook.H1D) []float64 {
	out := make([]float64, h.Len())
	for i := range out {
		out[i] = h.Value(i)
	}
	return out
}

// snapToMax returns the centre of the fullest bin within ±snapFraction of x.
// x is returned unchanged when the range holds no bins.
func snapToMax(h *hbook.H1D, x float64) float64 {
	lo, hi := x*(1-snapFraction), x*(1+snapFraction)
	best, bestCount := x, -1.0
	for _, bin := range h.Binning.Bins {
		mid := bin.XMid()
		if mid < lo || mid > hi {
			continue
		}
		if bin.SumW() > bestCount {
			best, bestCount = mid, bin.SumW()
		}
	}
	return best
}

// countAt returns the content of the bin holding x.
func countAt(h *hbook.H1D, x float64) float64 {
	if bin := h.Binning.Bins; len(bin) > 0 {
		width := (h.XMax() - h.XMin()) / float64(len(bin))
		idx := int((x - h.XMin()) / width)
		if idx >= 0 && idx < len(bin) {
			return bin[idx].SumW()
		}
	}
	return 0
}
