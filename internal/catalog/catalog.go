// Package catalog classifies a crystal's run numbers by test dimension and
// maps each one to the directory its converted file belongs in.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"crystalproc/internal/config"
	"crystalproc/internal/services"
)

// Dimension names the condition varied across a crystal's runs.
type Dimension string

const (
	Position Dimension = "Position"
	Voltage  Dimension = "Voltage"
)

// Dimensions lists every dimension in layout order.
var Dimensions = []Dimension{Position, Voltage}

// FolderName renders the destination folder for a dimension value:
// Position_<v> for positions and <v>_V for voltages.
func FolderName(dim Dimension, value float64) string {
	v := strconv.FormatFloat(value, 'f', -1, 64)
	if dim == Voltage {
		return v + "_V"
	}
	return string(dim) + "_" + v
}

// Placement locates one run within a crystal's layout.
type Placement struct {
	Serial    string
	Run       int
	Dimension Dimension
	Index     int
	Value     float64
	Folder    string
}

// Dir returns built_root/<serial>/<dimension>/<folder>.
func (p Placement) Dir(builtRoot string) string {
	return filepath.Join(builtRoot, p.Serial, string(p.Dimension), p.Folder)
}

// Destination returns the final path of fileName inside the placement directory.
func (p Placement) Destination(builtRoot, fileName string) string {
	return filepath.Join(p.Dir(builtRoot), fileName)
}

// Catalog is the validated run classification for one crystal.
type Catalog struct {
	serial     string
	values     map[Dimension][]float64
	placements map[int]Placement
}

// New validates the crystal's run lists against the dimension value tables.
// Every run index must have a value and a run number may appear only once
// across both dimensions.
func New(serial string, crystal config.Crystal, values config.Values) (*Catalog, error) {
	c := &Catalog{
		serial: serial,
		values: map[Dimension][]float64{
			Position: append([]float64(nil), values.Position...),
			Voltage:  append([]float64(nil), values.Voltage...),
		},
		placements: make(map[int]Placement),
	}
	lists := map[Dimension][]int{
		Position: crystal.Position,
		Voltage:  crystal.Voltage,
	}
	for _, dim := range Dimensions {
		table := c.values[dim]
		for idx, run := range lists[dim] {
			if idx >= len(table) {
				return nil, services.Wrap(services.ErrValidation, "classify", serial,
					fmt.Sprintf("%s run %d at index %d has no configured value (%d values)", dim, run, idx, len(table)), nil)
			}
			if prev, dup := c.placements[run]; dup {
				return nil, services.Wrap(services.ErrValidation, "classify", serial,
					fmt.Sprintf("run %d listed twice (%s index %d and %s index %d)", run, prev.Dimension, prev.Index, dim, idx), nil)
			}
			c.placements[run] = Placement{
				Serial:    serial,
				Run:       run,
				Dimension: dim,
				Index:     idx,
				Value:     table[idx],
				Folder:    FolderName(dim, table[idx]),
			}
		}
	}
	return c, nil
}

// FromConfig builds the catalog for serial, failing with a configuration
// error when the serial is not configured.
func FromConfig(cfg *config.Config, serial string) (*Catalog, error) {
	crystal, ok := cfg.Crystal(serial)
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, "classify", serial, "crystal serial not present in configuration", nil)
	}
	return New(serial, crystal, cfg.Values)
}

// Serial returns the crystal serial number.
func (c *Catalog) Serial() string { return c.serial }

// Lookup returns the placement for run.
func (c *Catalog) Lookup(run int) (Placement, bool) {
	p, ok := c.placements[run]
	return p, ok
}

// Runs returns every configured run number in ascending order.
func (c *Catalog) Runs() []int {
	out := make([]int, 0, len(c.placements))
	for run := range c.placements {
		out = append(out, run)
	}
	sort.Ints(out)
	return out
}

// Folders returns the directories for every configured value of every
// dimension, whether or not any run has been taken there yet.
func (c *Catalog) Folders(builtRoot string) []string {
	var dirs []string
	for _, dim := range Dimensions {
		for _, v := range c.values[dim] {
			dirs = append(dirs, filepath.Join(builtRoot, c.serial, string(dim), FolderName(dim, v)))
		}
	}
	return dirs
}

// EnsureLayout creates every destination folder. Existing folders and their
// contents are left untouched.
func (c *Catalog) EnsureLayout(builtRoot string) error {
	for _, dir := range c.Folders(builtRoot) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return services.Wrap(services.ErrConfiguration, "layout", "create folder", dir, err)
		}
	}
	return nil
}
