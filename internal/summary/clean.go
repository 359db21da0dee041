package summary

import (
	"math"
	"strconv"
	"strings"
)

// CleanValue parses a "value+-uncertainty" cell, keeping the value. Blank
// cells and "NaN" yield NaN.
func CleanValue(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return math.NaN(), nil
	}
	if i := strings.IndexByte(cell, '+'); i > 0 {
		cell = cell[:i]
	}
	return strconv.ParseFloat(strings.TrimSpace(cell), 64)
}

// CleanSlope parses a gain slope cell. Short entries (fewer than eight
// characters) were recorded without an uncertainty and are taken as is.
func CleanSlope(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if len(cell) < 8 {
		if cell == "" {
			return math.NaN(), nil
		}
		return strconv.ParseFloat(cell, 64)
	}
	return CleanValue(cell)
}

// CleanSaturation parses a gain saturation cell such as
// "-1.2345e-06+-3.2e-08". The value ends with its exponent, so the cell is
// cut three characters past the first 'e'.
func CleanSaturation(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	i := strings.IndexAny(cell, "eE")
	if i < 0 || i+4 > len(cell) {
		return CleanValue(cell)
	}
	return strconv.ParseFloat(cell[:i+4], 64)
}

// CleanVariation parses an energy variation cell, dropping a trailing
// "keV" unit.
func CleanVariation(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if strings.HasSuffix(cell, "V") {
		i := strings.IndexByte(cell, 'V')
		if i >= 2 {
			cell = cell[:i-2]
		}
	}
	return CleanValue(cell)
}
