package temperature

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"crystalproc/internal/services"
)

// Column names assigned to a headerless session log.
const (
	ColumnTime        = "Time"
	ColumnTemperature = "Temperature"
)

// Table is a space-delimited numeric table with named columns.
type Table struct {
	Columns []string
	Rows    [][]float64
}

// LoadTable reads a table from path.
func LoadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "temperature", "load table", path, err)
	}
	defer f.Close()
	table, err := ReadTable(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}

// ReadTable parses whitespace-separated rows. The first line is a header
// unless every field in it is numeric, in which case the input is taken to
// be a session log and the columns are named Time and Temperature.
func ReadTable(r io.Reader) (*Table, error) {
	scanner := bufio.NewScanner(r)
	table := &Table{}
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if table.Columns == nil {
			if values, ok := parseRow(fields); ok {
				if len(values) != 2 {
					return nil, services.Wrap(services.ErrParse, "temperature", "read table",
						fmt.Sprintf("line %d: headerless table needs 2 columns, got %d", line, len(values)), nil)
				}
				table.Columns = []string{ColumnTime, ColumnTemperature}
				table.Rows = append(table.Rows, values)
				continue
			}
			table.Columns = fields
			continue
		}
		if len(fields) != len(table.Columns) {
			return nil, services.Wrap(services.ErrParse, "temperature", "read table",
				fmt.Sprintf("line %d: expected %d fields, got %d", line, len(table.Columns), len(fields)), nil)
		}
		values, ok := parseRow(fields)
		if !ok {
			return nil, services.Wrap(services.ErrParse, "temperature", "read table",
				fmt.Sprintf("line %d: non-numeric field", line), nil)
		}
		table.Rows = append(table.Rows, values)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if table.Columns == nil {
		return nil, services.Wrap(services.ErrParse, "temperature", "read table", "empty input", nil)
	}
	return table, nil
}

func parseRow(fields []string) ([]float64, bool) {
	values := make([]float64, len(fields))
	for i, field := range fields {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, false
		}
		values[i] = v
	}
	return values, true
}

// Column returns the values of the named column.
func (t *Table) Column(name string) ([]float64, error) {
	idx := -1
	for i, column := range t.Columns {
		if column == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, services.Wrap(services.ErrNotFound, "temperature", "column",
			fmt.Sprintf("%q not in %v", name, t.Columns), nil)
	}
	values := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[idx]
	}
	return values, nil
}

// Fit is a least-squares line y = Slope*i + Intercept over sample indices
// i >= Start.
type Fit struct {
	Column    string
	Start     int
	Slope     float64
	Intercept float64
	RSquared  float64
}

// At evaluates the fitted line at sample index i.
func (f Fit) At(i float64) float64 { return f.Slope*i + f.Intercept }

// FitLinear fits values[start:] against their sample indices.
func FitLinear(column string, values []float64, start int) (Fit, error) {
	if start < 0 || len(values)-start < 2 {
		return Fit{}, services.Wrap(services.ErrValidation, "temperature", "fit",
			fmt.Sprintf("%s: need at least 2 samples from index %d, have %d", column, start, len(values)), nil)
	}
	ys := values[start:]
	xs := make([]float64, len(ys))
	for i := range xs {
		xs[i] = float64(start + i)
	}
	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	return Fit{
		Column:    column,
		Start:     start,
		Slope:     beta,
		Intercept: alpha,
		RSquared:  stat.RSquared(xs, ys, nil, alpha, beta),
	}, nil
}

// TrackOptions selects what to plot and fit.
type TrackOptions struct {
	// Columns are drawn as scatter series; all non-time columns when empty.
	Columns []string
	// Fit lists the columns that get a fitted line, starting at FitStart.
	Fit      []string
	FitStart int
	Title    string
	// Output is the PNG path; no plot is written when empty.
	Output string
}

// Track fits the requested columns and renders the drift plot.
func Track(table *Table, opts TrackOptions) ([]Fit, error) {
	columns := opts.Columns
	if len(columns) == 0 {
		for _, c := range table.Columns {
			if c != ColumnTime {
				columns = append(columns, c)
			}
		}
	}

	series := make(map[string][]float64, len(columns))
	for _, name := range append(append([]string{}, columns...), opts.Fit...) {
		if _, ok := series[name]; ok {
			continue
		}
		values, err := table.Column(name)
		if err != nil {
			return nil, err
		}
		series[name] = values
	}

	fits := make([]Fit, 0, len(opts.Fit))
	for _, name := range opts.Fit {
		fit, err := FitLinear(name, series[name], opts.FitStart)
		if err != nil {
			return nil, err
		}
		fits = append(fits, fit)
	}

	if opts.Output == "" {
		return fits, nil
	}
	if err := renderTrack(columns, series, fits, opts); err != nil {
		return fits, services.Wrap(services.ErrExternalTool, "temperature", "plot", opts.Output, err)
	}
	return fits, nil
}

func renderTrack(columns []string, series map[string][]float64, fits []Fit, opts TrackOptions) error {
	p := plot.New()
	p.Title.Text = opts.Title
	if p.Title.Text == "" {
		p.Title.Text = "Temperature drift"
	}
	p.X.Label.Text = "Sample"
	p.Y.Label.Text = "Temperature (°C)"
	p.Add(plotter.NewGrid())

	colorIndex := make(map[string]int, len(columns))
	for i, name := range columns {
		colorIndex[name] = i
		scatter, err := plotter.NewScatter(indexed(series[name]))
		if err != nil {
			return err
		}
		scatter.GlyphStyle.Color = plotutil.Color(i)
		scatter.GlyphStyle.Radius = vg.Points(1.5)
		p.Add(scatter)
		p.Legend.Add(name, scatter)
	}
	for i, fit := range fits {
		xys := make(plotter.XYs, 0, len(series[fit.Column])-fit.Start)
		for x := fit.Start; x < len(series[fit.Column]); x++ {
			xys = append(xys, plotter.XY{X: float64(x), Y: fit.At(float64(x))})
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return err
		}
		idx, ok := colorIndex[fit.Column]
		if !ok {
			idx = len(columns) + i
		}
		line.LineStyle.Color = plotutil.Color(idx)
		line.LineStyle.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("%s fit (%.3g °C/sample)", fit.Column, fit.Slope), line)
	}
	p.Legend.Top = true

	if err := os.MkdirAll(filepath.Dir(opts.Output), 0o755); err != nil {
		return err
	}
	return p.Save(14*vg.Inch, 8*vg.Inch, opts.Output)
}

func indexed(values []float64) plotter.XYs {
	xys := make(plotter.XYs, len(values))
	for i, v := range values {
		xys[i] = plotter.XY{X: float64(i), Y: v}
	}
	return xys
}
