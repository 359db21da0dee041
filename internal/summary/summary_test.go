package summary_test

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"crystalproc/internal/services"
	"crystalproc/internal/summary"
)

const elogExport = `ID,Date,Author,Crystal SN,Gain Offset,Gain Slope,Gain Saturation,137Cs Position 3 Peak Resolution,137Cs Total Energy Variation
1,2019-07-01,lab,C1-0007,-3.36+-0.02,0.01,-1e-06+-2e-08,31.2+-0.5,12 keV
2,2019-07-02,lab,C1-0008,-3.36+-0.02,0.010000+-0.0001,-1.000e-06+-2e-08,24.0+-0.4,4.5 keV
3,2019-07-03,lab,C1-0009,,,,,
4,2019-07-04,lab,C1-0010,-3.36,0.01,-1e-06,30,8 keV
`

func TestReadCleansCells(t *testing.T) {
	records, err := summary.Read(strings.NewReader(elogExport), nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(records))
	}
	first := records[0]
	if first.Serial != "C1-0007" || first.Offset != -3.36 || first.Slope != 0.01 || first.Saturation != -1e-6 {
		t.Fatalf("unexpected gain fields %+v", first)
	}
	if first.Resolution != 31.2 || first.Variation != 12 {
		t.Fatalf("unexpected resolution fields %+v", first)
	}
	if records[1].Slope != 0.01 {
		t.Fatalf("expected uncertainty stripped from long slope, got %v", records[1].Slope)
	}
	if !math.IsNaN(records[2].Offset) || !math.IsNaN(records[2].Variation) {
		t.Fatalf("expected blank cells to be NaN, got %+v", records[2])
	}
}

func TestReadSkipsRows(t *testing.T) {
	records, err := summary.Read(strings.NewReader(elogExport), []int{1, 3})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 2 || records[0].Serial != "C1-0008" || records[1].Serial != "C1-0010" {
		t.Fatalf("unexpected records %+v", records)
	}
}

func TestReadReportsMissingColumns(t *testing.T) {
	_, err := summary.Read(strings.NewReader("Crystal SN,Gain Offset\nC1,1\n"), nil)
	if !errors.Is(err, services.ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}

func TestReadReportsEveryBadCell(t *testing.T) {
	input := "Crystal SN,Gain Offset,Gain Slope,Gain Saturation,137Cs Position 3 Peak Resolution,137Cs Total Energy Variation\n" +
		"A,x,0.01,-1e-06,30,1 keV\n" +
		"B,1,0.01,-1e-06,bad,1 keV\n"
	_, err := summary.Read(strings.NewReader(input), nil)
	if !errors.Is(err, services.ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
	if !strings.Contains(err.Error(), "row 1 (A)") || !strings.Contains(err.Error(), "row 2 (B)") {
		t.Fatalf("expected both rows reported, got %v", err)
	}
}

func TestCleaners(t *testing.T) {
	tests := []struct {
		name  string
		clean func(string) (float64, error)
		cell  string
		want  float64
	}{
		{"value with uncertainty", summary.CleanValue, "1.25+-0.03", 1.25},
		{"value with slash uncertainty", summary.CleanValue, "7.5 +/- 0.1", 7.5},
		{"short slope", summary.CleanSlope, "0.0123", 0.0123},
		{"long slope", summary.CleanSlope, "0.012345+-0.0002", 0.012345},
		{"saturation", summary.CleanSaturation, "-2.5e-06+-1.1e-07", -2.5e-6},
		{"saturation without exponent", summary.CleanSaturation, "0+-0", 0},
		{"variation with unit", summary.CleanVariation, "23.5 keV", 23.5},
		{"variation bare", summary.CleanVariation, "23.5", 23.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.clean(tt.cell)
			if err != nil {
				t.Fatalf("clean(%q): %v", tt.cell, err)
			}
			if got != tt.want {
				t.Fatalf("clean(%q) = %v, want %v", tt.cell, got, tt.want)
			}
		})
	}
}

func TestVoltageAtLogGain(t *testing.T) {
	// -1e-6 V² + 0.01 V - 3.36 reaches 4 at 800 V and 9200 V.
	got := summary.VoltageAtLogGain(-1e-6, 0.01, -3.36, 4)
	if math.Abs(got-800) > 1e-6 {
		t.Fatalf("expected 800 V, got %v", got)
	}
	if v := summary.VoltageAtLogGain(1, 0, 10, 4); !math.IsNaN(v) {
		t.Fatalf("expected NaN without real roots, got %v", v)
	}
	if v := summary.VoltageAtLogGain(0, 0.01, -4, 4); math.Abs(v-800) > 1e-9 {
		t.Fatalf("expected linear solution 800, got %v", v)
	}
	if v := summary.VoltageAtLogGain(math.NaN(), 0.01, -4, 4); !math.IsNaN(v) {
		t.Fatalf("expected NaN for missing coefficient, got %v", v)
	}
}

func TestSummarizeFillAndPoorResolution(t *testing.T) {
	records, err := summary.Read(strings.NewReader(elogExport), nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	crystals := summary.Summarize(records, summary.DefaultLogGain)
	if math.Abs(crystals[0].Voltage-800) > 1e-6 {
		t.Fatalf("unexpected voltage %v", crystals[0].Voltage)
	}

	poor := summary.PoorResolution(crystals, 30)
	if len(poor) != 2 || poor[0] != "C1-0007" || poor[1] != "C1-0010" {
		t.Fatalf("unexpected poor-resolution list %v", poor)
	}

	h := summary.Fill(crystals)
	if h.Skipped != 1 {
		t.Fatalf("expected one incomplete crystal, got %d", h.Skipped)
	}
	if h.Voltage.Entries() != 3 || h.Resolution.Entries() != 3 || h.Variation.Entries() != 3 {
		t.Fatalf("unexpected 1D entries %d %d %d", h.Voltage.Entries(), h.Resolution.Entries(), h.Variation.Entries())
	}
	if h.ResolutionVoltage.Entries() != 3 {
		t.Fatalf("unexpected 2D entries %d", h.ResolutionVoltage.Entries())
	}

	dir := filepath.Join(t.TempDir(), "plots")
	files, err := summary.Render(h, dir, summary.DefaultLogGain)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(files) != 6 {
		t.Fatalf("expected 6 plots, got %v", files)
	}
	for _, f := range files {
		if info, err := os.Stat(f); err != nil || info.Size() == 0 {
			t.Fatalf("expected non-empty plot %s: %v", f, err)
		}
	}
}
