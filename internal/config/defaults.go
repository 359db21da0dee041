package config

const (
	defaultRawDir              = "~/Data/raw"
	defaultBuiltDir            = "~/Data/built"
	defaultWorkDir             = "~/.local/share/crystalproc/work"
	defaultLogDir              = "~/.local/share/crystalproc/logs"
	defaultConverterBinary     = "majorcaroot"
	defaultConverterOutput     = "OR_run%d.root"
	defaultSSHBinary           = "ssh"
	defaultRsyncBinary         = "rsync"
	defaultSCPBinary           = "scp"
	defaultArchiveMarker       = "Run"
	defaultArchiveLevel        = "default"
	defaultTemperatureDataDir  = "~/tempstudy/data"
	defaultTemperatureWires    = 3
	defaultReferenceOhms       = 4300.0
	defaultNominalOhms         = 1000.0
	defaultTemperatureInterval = 1
	defaultTemperatureDuration = 660
	defaultCalibrationTree     = "st"
	defaultEnergyBranch        = "energy"
	defaultChannelBranch       = "channel"
	defaultCalibrationChannel  = 4
	defaultReferencePosition   = 3
	defaultPreflightMinFreeGiB = 5
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			RawDir:   defaultRawDir,
			BuiltDir: defaultBuiltDir,
			WorkDir:  defaultWorkDir,
			LogDir:   defaultLogDir,
		},
		Values: Values{
			Position: []float64{1, 2, 3, 4, 5},
			Voltage:  []float64{600, 700, 800, 900, 1000},
		},
		Converter: Converter{
			Binary:        defaultConverterBinary,
			Args:          []string{"-v", "error"},
			OutputPattern: defaultConverterOutput,
		},
		Remote: Remote{
			SSHBinary:      defaultSSHBinary,
			RsyncBinary:    defaultRsyncBinary,
			SCPBinary:      defaultSCPBinary,
			ProtectedFiles: []string{".DS_Store", "runinfo.txt"},
		},
		Archive: Archive{
			Marker:        defaultArchiveMarker,
			ReservedNames: []string{"runinfo.txt"},
			Level:         defaultArchiveLevel,
		},
		Temperature: Temperature{
			DataDir:         defaultTemperatureDataDir,
			Wires:           defaultTemperatureWires,
			ReferenceOhms:   defaultReferenceOhms,
			NominalOhms:     defaultNominalOhms,
			IntervalSeconds: defaultTemperatureInterval,
			DurationSeconds: defaultTemperatureDuration,
		},
		Calibration: Calibration{
			Tree:              defaultCalibrationTree,
			EnergyBranch:      defaultEnergyBranch,
			ChannelBranch:     defaultChannelBranch,
			Channel:           defaultCalibrationChannel,
			ReferencePosition: defaultReferencePosition,
		},
		Preflight: Preflight{
			MinFreeGiB: defaultPreflightMinFreeGiB,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Crystals: map[string]Crystal{},
	}
}
