package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the local data roots.
type Paths struct {
	RawDir   string `toml:"raw_dir"`
	BuiltDir string `toml:"built_dir"`
	WorkDir  string `toml:"work_dir"`
	LogDir   string `toml:"log_dir"`
}

// Values holds the test-dimension value tables. The i-th run of a crystal's
// dimension list corresponds to the i-th entry here.
type Values struct {
	Position []float64 `toml:"position"`
	Voltage  []float64 `toml:"voltage"`
}

// Converter describes how the external raw-to-analysis converter is invoked.
type Converter struct {
	Binary         string   `toml:"binary"`
	Args           []string `toml:"args"`
	OutputPattern  string   `toml:"output_pattern"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// Remote contains the archive server coordinates used by sync.
type Remote struct {
	Host           string   `toml:"host"`
	RawDir         string   `toml:"raw_dir"`
	BuiltDir       string   `toml:"built_dir"`
	TemperatureDir string   `toml:"temperature_dir"`
	SSHBinary      string   `toml:"ssh_binary"`
	RsyncBinary    string   `toml:"rsync_binary"`
	SCPBinary      string   `toml:"scp_binary"`
	ProtectedFiles []string `toml:"protected_files"`
}

// Archive configures raw-file compaction on the archive host.
type Archive struct {
	Root          string   `toml:"root"`
	Marker        string   `toml:"marker"`
	ReservedNames []string `toml:"reserved_names"`
	Level         string   `toml:"level"`
}

// Temperature configures the MAX31865 PT1000 logging station.
type Temperature struct {
	DataDir         string  `toml:"data_dir"`
	SPIPort         string  `toml:"spi_port"`
	Wires           int     `toml:"wires"`
	ReferenceOhms   float64 `toml:"reference_ohms"`
	NominalOhms     float64 `toml:"nominal_ohms"`
	IntervalSeconds int     `toml:"interval_seconds"`
	DurationSeconds int     `toml:"duration_seconds"`
}

// Calibration locates per-event energies in converted runs and sets the
// position the 137Cs resolution is quoted at.
type Calibration struct {
	Tree              string  `toml:"tree"`
	EnergyBranch      string  `toml:"energy_branch"`
	ChannelBranch     string  `toml:"channel_branch"`
	Channel           int     `toml:"channel"`
	ReferencePosition float64 `toml:"reference_position"`
}

// Preflight contains thresholds for environment checks.
type Preflight struct {
	MinFreeGiB int `toml:"min_free_gib"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Crystal lists the run numbers taken for one detector crystal, per test
// dimension, in the same order as the dimension's value table.
type Crystal struct {
	Position []int `toml:"position"`
	Voltage  []int `toml:"voltage"`
}

// Config encapsulates all configuration values for crystalproc.
//
// Configuration sections by subsystem:
//   - Paths: raw/built data roots, converter working directory, logs
//   - Values: position and voltage value tables
//   - Converter: external converter binary and arguments
//   - Remote: archive server for sync and temperature uploads
//   - Archive: raw-file compaction on the archive server
//   - Temperature: PT1000 logging station
//   - Calibration: peak-fit input branches and reporting position
//   - Preflight: environment check thresholds
//   - Logging: log format and level
//   - Crystals: per-serial run lists
type Config struct {
	Paths       Paths              `toml:"paths"`
	Values      Values             `toml:"values"`
	Converter   Converter          `toml:"converter"`
	Remote      Remote             `toml:"remote"`
	Archive     Archive            `toml:"archive"`
	Temperature Temperature        `toml:"temperature"`
	Calibration Calibration        `toml:"calibration"`
	Preflight   Preflight          `toml:"preflight"`
	Logging     Logging            `toml:"logging"`
	Crystals    map[string]Crystal `toml:"crystals"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/crystalproc/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. Files ending in .json are read with the legacy
// lab layout.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		if strings.EqualFold(filepath.Ext(resolvedPath), ".json") {
			if err := loadLegacyJSON(resolvedPath, &cfg); err != nil {
				return nil, "", false, err
			}
		} else {
			file, err := os.Open(resolvedPath)
			if err != nil {
				return nil, "", false, fmt.Errorf("open config: %w", err)
			}
			defer file.Close()

			decoder := toml.NewDecoder(file)
			if err := decoder.Decode(&cfg); err != nil {
				return nil, "", false, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/crystalproc/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("crystalproc.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories crystalproc writes into.
// The raw directory is never created; a missing raw root is reported by the
// processor instead.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.BuiltDir, c.Paths.WorkDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// Crystal returns the run lists configured for serial.
func (c *Config) Crystal(serial string) (Crystal, bool) {
	crystal, ok := c.Crystals[strings.TrimSpace(serial)]
	return crystal, ok
}

// Serials returns the configured crystal serial numbers in sorted order.
func (c *Config) Serials() []string {
	serials := make([]string, 0, len(c.Crystals))
	for serial := range c.Crystals {
		serials = append(serials, serial)
	}
	sort.Strings(serials)
	return serials
}

// RemoteEnabled reports whether an archive server is configured.
func (c *Config) RemoteEnabled() bool {
	return strings.TrimSpace(c.Remote.Host) != ""
}

// JournalPath returns the location of the processing journal database.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.LogDir, "journal.db")
}

// LockPath returns the location of the batch lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "crystalproc.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
