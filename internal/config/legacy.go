package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Keys of the legacy lab JSON file that are not crystal entries.
var legacyReservedKeys = map[string]struct{}{
	"raw_path":          {},
	"built_path":        {},
	"pos_vals":          {},
	"HV_vals":           {},
	"login":             {},
	"remote_raw_path":   {},
	"remote_built_path": {},
	"remote_temp_path":  {},
}

type legacyCrystal struct {
	Position []int `json:"Position"`
	Voltage  []int `json:"Voltage"`
}

// loadLegacyJSON reads the JSON layout used by the original lab scripts:
// path roots and value tables at top level plus one object per crystal
// serial mapping "Position"/"Voltage" to run lists. Values it sets
// override the defaults already present in cfg.
func loadLegacyJSON(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	str := func(key string, dst *string) error {
		msg, ok := raw[key]
		if !ok {
			return nil
		}
		var value string
		if err := json.Unmarshal(msg, &value); err != nil {
			return fmt.Errorf("parse config: %s: %w", key, err)
		}
		*dst = value
		return nil
	}
	floats := func(key string, dst *[]float64) error {
		msg, ok := raw[key]
		if !ok {
			return nil
		}
		var values []float64
		if err := json.Unmarshal(msg, &values); err != nil {
			return fmt.Errorf("parse config: %s: %w", key, err)
		}
		*dst = values
		return nil
	}

	if err := str("raw_path", &cfg.Paths.RawDir); err != nil {
		return err
	}
	if err := str("built_path", &cfg.Paths.BuiltDir); err != nil {
		return err
	}
	if err := str("login", &cfg.Remote.Host); err != nil {
		return err
	}
	if err := str("remote_raw_path", &cfg.Remote.RawDir); err != nil {
		return err
	}
	if err := str("remote_built_path", &cfg.Remote.BuiltDir); err != nil {
		return err
	}
	if err := str("remote_temp_path", &cfg.Remote.TemperatureDir); err != nil {
		return err
	}
	if err := floats("pos_vals", &cfg.Values.Position); err != nil {
		return err
	}
	if err := floats("HV_vals", &cfg.Values.Voltage); err != nil {
		return err
	}

	crystals := make(map[string]Crystal)
	for key, msg := range raw {
		if _, reserved := legacyReservedKeys[key]; reserved {
			continue
		}
		trimmed := strings.TrimSpace(string(msg))
		if !strings.HasPrefix(trimmed, "{") {
			continue
		}
		var entry legacyCrystal
		if err := json.Unmarshal(msg, &entry); err != nil {
			return fmt.Errorf("parse config: crystal %s: %w", key, err)
		}
		crystals[key] = Crystal{Position: entry.Position, Voltage: entry.Voltage}
	}
	cfg.Crystals = crystals
	return nil
}
