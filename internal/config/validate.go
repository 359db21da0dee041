package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable. Per-crystal run lists are
// checked against the value tables by the catalog, so a single inconsistent
// crystal does not prevent the others from loading.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateValues(); err != nil {
		return err
	}
	if err := c.validateConverter(); err != nil {
		return err
	}
	if err := c.validateRemote(); err != nil {
		return err
	}
	if err := c.validateArchive(); err != nil {
		return err
	}
	if err := c.validateTemperature(); err != nil {
		return err
	}
	if err := c.validateCalibration(); err != nil {
		return err
	}
	if err := c.validateCrystals(); err != nil {
		return err
	}
	if c.Preflight.MinFreeGiB < 0 {
		return errors.New("preflight.min_free_gib must be >= 0")
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.RawDir) == "" {
		return errors.New("paths.raw_dir must be set")
	}
	if strings.TrimSpace(c.Paths.BuiltDir) == "" {
		return errors.New("paths.built_dir must be set")
	}
	if c.Paths.RawDir == c.Paths.BuiltDir {
		return errors.New("paths.raw_dir and paths.built_dir must differ")
	}
	return nil
}

func (c *Config) validateValues() error {
	if len(c.Values.Position) == 0 {
		return errors.New("values.position must include at least one value")
	}
	if len(c.Values.Voltage) == 0 {
		return errors.New("values.voltage must include at least one value")
	}
	if err := ensureDistinct("values.position", c.Values.Position); err != nil {
		return err
	}
	return ensureDistinct("values.voltage", c.Values.Voltage)
}

func (c *Config) validateConverter() error {
	if c.Converter.Binary == "" {
		return errors.New("converter.binary must be set")
	}
	if strings.Count(c.Converter.OutputPattern, "%d") != 1 {
		return fmt.Errorf("converter.output_pattern %q must contain exactly one %%d for the run number", c.Converter.OutputPattern)
	}
	if strings.ContainsAny(c.Converter.OutputPattern, `/\`) {
		return fmt.Errorf("converter.output_pattern %q must be a file name, not a path", c.Converter.OutputPattern)
	}
	return nil
}

func (c *Config) validateRemote() error {
	if !c.RemoteEnabled() {
		return nil
	}
	if c.Remote.RawDir == "" {
		return errors.New("remote.raw_dir must be set when remote.host is configured")
	}
	if c.Remote.BuiltDir == "" {
		return errors.New("remote.built_dir must be set when remote.host is configured")
	}
	return nil
}

func (c *Config) validateArchive() error {
	switch c.Archive.Level {
	case "fastest", "default", "better", "best":
	default:
		return fmt.Errorf("archive.level %q must be one of fastest, default, better, best", c.Archive.Level)
	}
	if c.Archive.Root != "" && Overlaps(c.Archive.Root, c.Paths.RawDir) {
		return fmt.Errorf("archive.root %q must not overlap paths.raw_dir %q", c.Archive.Root, c.Paths.RawDir)
	}
	return nil
}

// Overlaps reports whether a and b are the same directory or one contains
// the other. Archives written under the raw tree would be rediscovered as
// raw runs.
func Overlaps(a, b string) bool {
	a, b = filepath.Clean(a), filepath.Clean(b)
	return within(a, b) || within(b, a)
}

func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func (c *Config) validateTemperature() error {
	if err := ensurePositiveMap(map[string]int{
		"temperature.interval_seconds": c.Temperature.IntervalSeconds,
		"temperature.duration_seconds": c.Temperature.DurationSeconds,
	}); err != nil {
		return err
	}
	switch c.Temperature.Wires {
	case 2, 3, 4:
	default:
		return errors.New("temperature.wires must be 2, 3, or 4")
	}
	if c.Temperature.ReferenceOhms <= 0 {
		return errors.New("temperature.reference_ohms must be positive")
	}
	if c.Temperature.NominalOhms <= 0 {
		return errors.New("temperature.nominal_ohms must be positive")
	}
	return nil
}

func (c *Config) validateCalibration() error {
	if strings.TrimSpace(c.Calibration.Tree) == "" {
		return errors.New("calibration.tree must be set")
	}
	if strings.TrimSpace(c.Calibration.EnergyBranch) == "" {
		return errors.New("calibration.energy_branch must be set")
	}
	if c.Calibration.ChannelBranch == c.Calibration.EnergyBranch {
		return errors.New("calibration.channel_branch must differ from calibration.energy_branch")
	}
	return nil
}

func (c *Config) validateCrystals() error {
	for serial, crystal := range c.Crystals {
		if serial == "" {
			return errors.New("crystals: serial number must not be empty")
		}
		for _, run := range append(append([]int{}, crystal.Position...), crystal.Voltage...) {
			if run < 0 {
				return fmt.Errorf("crystals.%s: run number %d must be >= 0", serial, run)
			}
		}
	}
	return nil
}

func ensureDistinct(key string, values []float64) error {
	seen := make(map[float64]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			return fmt.Errorf("%s contains duplicate value %g", key, v)
		}
		seen[v] = struct{}{}
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
