package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeConverter()
	if err := c.normalizeRemote(); err != nil {
		return err
	}
	if err := c.normalizeArchive(); err != nil {
		return err
	}
	if err := c.normalizeTemperature(); err != nil {
		return err
	}
	c.normalizeCrystals()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.RawDir, err = expandPath(strings.TrimSpace(c.Paths.RawDir)); err != nil {
		return fmt.Errorf("paths.raw_dir: %w", err)
	}
	if c.Paths.BuiltDir, err = expandPath(strings.TrimSpace(c.Paths.BuiltDir)); err != nil {
		return fmt.Errorf("paths.built_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(strings.TrimSpace(c.Paths.WorkDir)); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeConverter() {
	c.Converter.Binary = strings.TrimSpace(c.Converter.Binary)
	if c.Converter.Binary == "" {
		c.Converter.Binary = defaultConverterBinary
	}
	if value, ok := os.LookupEnv("CRYSTALPROC_CONVERTER"); ok && strings.TrimSpace(value) != "" {
		c.Converter.Binary = strings.TrimSpace(value)
	}
	c.Converter.OutputPattern = strings.TrimSpace(c.Converter.OutputPattern)
	if c.Converter.OutputPattern == "" {
		c.Converter.OutputPattern = defaultConverterOutput
	}
	args := make([]string, 0, len(c.Converter.Args))
	for _, arg := range c.Converter.Args {
		if arg = strings.TrimSpace(arg); arg != "" {
			args = append(args, arg)
		}
	}
	c.Converter.Args = args
	if c.Converter.TimeoutSeconds < 0 {
		c.Converter.TimeoutSeconds = 0
	}
}

func (c *Config) normalizeRemote() error {
	c.Remote.Host = strings.TrimSpace(c.Remote.Host)
	c.Remote.RawDir = strings.TrimRight(strings.TrimSpace(c.Remote.RawDir), "/")
	c.Remote.BuiltDir = strings.TrimRight(strings.TrimSpace(c.Remote.BuiltDir), "/")
	c.Remote.TemperatureDir = strings.TrimRight(strings.TrimSpace(c.Remote.TemperatureDir), "/")
	if strings.TrimSpace(c.Remote.SSHBinary) == "" {
		c.Remote.SSHBinary = defaultSSHBinary
	}
	if strings.TrimSpace(c.Remote.RsyncBinary) == "" {
		c.Remote.RsyncBinary = defaultRsyncBinary
	}
	if strings.TrimSpace(c.Remote.SCPBinary) == "" {
		c.Remote.SCPBinary = defaultSCPBinary
	}
	c.Remote.ProtectedFiles = dedupeNames(c.Remote.ProtectedFiles)
	return nil
}

func (c *Config) normalizeArchive() error {
	c.Archive.Root = strings.TrimSpace(c.Archive.Root)
	if c.Archive.Root != "" {
		var err error
		if c.Archive.Root, err = expandPath(c.Archive.Root); err != nil {
			return fmt.Errorf("archive.root: %w", err)
		}
	}
	c.Archive.Marker = strings.TrimSpace(c.Archive.Marker)
	if c.Archive.Marker == "" {
		c.Archive.Marker = defaultArchiveMarker
	}
	c.Archive.ReservedNames = dedupeNames(c.Archive.ReservedNames)
	c.Archive.Level = strings.ToLower(strings.TrimSpace(c.Archive.Level))
	if c.Archive.Level == "" {
		c.Archive.Level = defaultArchiveLevel
	}
	return nil
}

func (c *Config) normalizeTemperature() error {
	if strings.TrimSpace(c.Temperature.DataDir) == "" {
		c.Temperature.DataDir = defaultTemperatureDataDir
	}
	var err error
	if c.Temperature.DataDir, err = expandPath(strings.TrimSpace(c.Temperature.DataDir)); err != nil {
		return fmt.Errorf("temperature.data_dir: %w", err)
	}
	c.Temperature.SPIPort = strings.TrimSpace(c.Temperature.SPIPort)
	if c.Temperature.Wires == 0 {
		c.Temperature.Wires = defaultTemperatureWires
	}
	if c.Temperature.ReferenceOhms == 0 {
		c.Temperature.ReferenceOhms = defaultReferenceOhms
	}
	if c.Temperature.NominalOhms == 0 {
		c.Temperature.NominalOhms = defaultNominalOhms
	}
	return nil
}

func (c *Config) normalizeCrystals() {
	if c.Crystals == nil {
		c.Crystals = map[string]Crystal{}
		return
	}
	normalized := make(map[string]Crystal, len(c.Crystals))
	for serial, crystal := range c.Crystals {
		normalized[strings.TrimSpace(serial)] = crystal
	}
	c.Crystals = normalized
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func dedupeNames(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, exists := seen[name]; exists {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
