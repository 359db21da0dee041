package runs_test

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"crystalproc/internal/runs"
	"crystalproc/internal/services"
	"crystalproc/internal/testsupport"
)

func TestParseRunNumber(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    int
		wantErr bool
	}{
		{name: "simple", path: "/raw/SN1/Data/Run412", want: 412},
		{name: "prefix", path: "/raw/SN1/Data/SIS3316Raw_Run0007", want: 7},
		{name: "last marker wins", path: "Run1_Run23", want: 23},
		{name: "non numeric", path: "/raw/Data/RunXYZ", wantErr: true},
		{name: "extension", path: "/raw/Data/Run12.bin", wantErr: true},
		{name: "empty suffix", path: "/raw/Data/Run", wantErr: true},
		{name: "no marker", path: "/raw/Data/runinfo.txt", wantErr: true},
		{name: "signed", path: "Run-4", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := runs.ParseRunNumber(tc.path)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %d", got)
				}
				var parseErr *runs.ParseError
				if !errors.As(err, &parseErr) {
					t.Fatalf("expected *ParseError, got %T", err)
				}
				if !errors.Is(err, services.ErrParse) {
					t.Fatalf("expected ErrParse classification")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %d want %d", got, tc.want)
			}
		})
	}
}

func TestParseBuiltRunNumber(t *testing.T) {
	tests := []struct {
		name string
		want int
		ok   bool
	}{
		{"OR_run412.root", 412, true},
		{"/built/SN1/Position/Position_1/OR_run7.root", 7, true},
		{"OR_run.root", 0, false},
		{"OR_run12", 0, false},
		{"OR_run12.", 0, false},
		{"OR_runA.root", 0, false},
		{"OR_run5.root.incoming", 0, false},
		{"notes.txt", 0, false},
	}
	for _, tc := range tests {
		got, ok := runs.ParseBuiltRunNumber(tc.name)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("%s: got (%d,%v) want (%d,%v)", tc.name, got, ok, tc.want, tc.ok)
		}
	}
}

func TestDiscoverRawFiltersAndSorts(t *testing.T) {
	root := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(root, "SN1", "Data", "Run20"), 4)
	testsupport.WriteFile(t, filepath.Join(root, "SN1", "Data", "Run3"), 4)
	testsupport.WriteFile(t, filepath.Join(root, "SN2", "day 2", "Data", "Run11"), 4)
	testsupport.WriteFile(t, filepath.Join(root, "SN1", "Other", "Run99"), 4)
	testsupport.WriteFile(t, filepath.Join(root, "SN1", "Data", "notes.txt"), 4)

	found, err := runs.DiscoverRaw(root)
	if err != nil {
		t.Fatalf("DiscoverRaw returned error: %v", err)
	}
	var got []int
	for _, f := range found {
		got = append(got, f.Run)
	}
	if len(got) != 3 || got[0] != 3 || got[1] != 11 || got[2] != 20 {
		t.Fatalf("unexpected runs %v", got)
	}
	if !strings.Contains(found[1].Path, "day 2") {
		t.Fatalf("expected path with space preserved, got %q", found[1].Path)
	}
}

func TestDiscoverRawCollectsEveryMalformedName(t *testing.T) {
	root := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(root, "SN1", "Data", "Run1"), 1)
	testsupport.WriteFile(t, filepath.Join(root, "SN1", "Data", "RunXYZ"), 1)
	testsupport.WriteFile(t, filepath.Join(root, "SN2", "Data", "Run7b"), 1)

	_, err := runs.DiscoverRaw(root)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !errors.Is(err, services.ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "RunXYZ") || !strings.Contains(msg, "Run7b") {
		t.Fatalf("expected both malformed names reported, got %q", msg)
	}
}

func TestDiscoverRawRejectsDuplicateRuns(t *testing.T) {
	root := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(root, "a", "Data", "Run5"), 1)
	testsupport.WriteFile(t, filepath.Join(root, "b", "Data", "Run05"), 1)

	_, err := runs.DiscoverRaw(root)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for duplicate run, got %v", err)
	}
}

func TestDiscoverRawMissingRoot(t *testing.T) {
	_, err := runs.DiscoverRaw(filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestDiscoverBuilt(t *testing.T) {
	root := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(root, "SN1", "Position", "Position_1", "OR_run4.root"), 1)
	testsupport.WriteFile(t, filepath.Join(root, "SN1", "Voltage", "600_V", "OR_run9.root"), 1)
	testsupport.WriteFile(t, filepath.Join(root, "SN1", "Voltage", "600_V", "readme.txt"), 1)
	testsupport.WriteFile(t, filepath.Join(root, "SN1", "Position", "Position_2", "OR_run5.root.incoming"), 1)

	built, err := runs.DiscoverBuilt(root)
	if err != nil {
		t.Fatalf("DiscoverBuilt returned error: %v", err)
	}
	if len(built) != 2 {
		t.Fatalf("expected 2 built runs, got %v", built)
	}
	if _, ok := built[9]; !ok {
		t.Fatalf("expected run 9 in %v", built)
	}

	empty, err := runs.DiscoverBuilt(filepath.Join(root, "missing"))
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty set for missing root, got %v %v", empty, err)
	}
}
