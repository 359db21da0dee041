package summary

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"crystalproc/internal/services"
)

// ELOG export column headers.
const (
	ColumnSerial     = "Crystal SN"
	ColumnOffset     = "Gain Offset"
	ColumnSlope      = "Gain Slope"
	ColumnSaturation = "Gain Saturation"
	ColumnResolution = "137Cs Position 3 Peak Resolution"
	ColumnVariation  = "137Cs Total Energy Variation"
)

var requiredColumns = []string{
	ColumnSerial,
	ColumnOffset,
	ColumnSlope,
	ColumnSaturation,
	ColumnResolution,
	ColumnVariation,
}

// Record is one crystal's calibration entry with uncertainties removed.
// Blank cells are NaN.
type Record struct {
	Row        int
	Serial     string
	Offset     float64
	Slope      float64
	Saturation float64
	Resolution float64
	Variation  float64
}

// Load reads an ELOG CSV export. skipRows lists 1-based data rows to ignore,
// typically entries that were left incomplete.
func Load(path string, skipRows []int) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "summary", "load", path, err)
	}
	defer f.Close()
	return Read(f, skipRows)
}

// Read parses an ELOG CSV export from r. Columns are located by header name;
// extra columns are ignored. Every malformed cell is reported, not just the
// first.
func Read(r io.Reader, skipRows []int) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, services.Wrap(services.ErrParse, "summary", "read header", "", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := index[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, services.Wrap(services.ErrParse, "summary", "read header",
			fmt.Sprintf("missing columns %q", missing), nil)
	}

	skip := make(map[int]struct{}, len(skipRows))
	for _, row := range skipRows {
		skip[row] = struct{}{}
	}

	var (
		records []Record
		errs    []error
	)
	for row := 1; ; row++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, services.Wrap(services.ErrParse, "summary", "read row", strconv.Itoa(row), err)
		}
		if _, ok := skip[row]; ok {
			continue
		}
		cell := func(name string) string {
			i := index[name]
			if i >= len(fields) {
				return ""
			}
			return strings.TrimSpace(fields[i])
		}
		rec := Record{Row: row, Serial: cell(ColumnSerial)}
		if rec.Serial == "" && allBlank(fields) {
			continue
		}
		parse := func(name string, clean func(string) (float64, error), dst *float64) {
			v, err := clean(cell(name))
			if err != nil {
				errs = append(errs, fmt.Errorf("row %d (%s) %s: %w", row, rec.Serial, name, err))
				v = math.NaN()
			}
			*dst = v
		}
		parse(ColumnOffset, CleanValue, &rec.Offset)
		parse(ColumnSlope, CleanSlope, &rec.Slope)
		parse(ColumnSaturation, CleanSaturation, &rec.Saturation)
		parse(ColumnResolution, CleanValue, &rec.Resolution)
		parse(ColumnVariation, CleanVariation, &rec.Variation)
		records = append(records, rec)
	}
	if len(errs) > 0 {
		return nil, services.Wrap(services.ErrParse, "summary", "read rows", "", errors.Join(errs...))
	}
	return records, nil
}

func allBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
