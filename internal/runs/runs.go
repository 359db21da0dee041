// Package runs discovers raw instrument files and extracts the run numbers
// embedded in raw and converted file names. All file-name format
// assumptions live here.
package runs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"crystalproc/internal/services"
)

const (
	// Marker precedes the run number in raw file names.
	Marker = "Run"
	// DataDirName is the directory that directly contains raw files.
	DataDirName = "Data"
	// BuiltMarker precedes the run number in converted file names.
	BuiltMarker = "OR_run"
)

// ParseError describes a file name whose run number cannot be extracted.
type ParseError struct {
	Name   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse run number from %q: %s", e.Name, e.Reason)
}

func (e *ParseError) Unwrap() error { return services.ErrParse }

// ParseRunNumber extracts the run number following the last "Run" marker in
// the base name of path. Everything after the marker must be ASCII digits.
func ParseRunNumber(path string) (int, error) {
	name := filepath.Base(path)
	idx := strings.LastIndex(name, Marker)
	if idx < 0 {
		return 0, &ParseError{Name: name, Reason: "missing " + Marker + " marker"}
	}
	suffix := name[idx+len(Marker):]
	if suffix == "" {
		return 0, &ParseError{Name: name, Reason: "no digits after " + Marker}
	}
	if !allDigits(suffix) {
		return 0, &ParseError{Name: name, Reason: fmt.Sprintf("suffix %q is not numeric", suffix)}
	}
	run, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, &ParseError{Name: name, Reason: err.Error()}
	}
	return run, nil
}

// ParseBuiltRunNumber recognises converted file names of the form
// OR_run<digits>.<ext> with a single extension.
func ParseBuiltRunNumber(path string) (int, bool) {
	name := filepath.Base(path)
	if !strings.HasPrefix(name, BuiltMarker) {
		return 0, false
	}
	rest := name[len(BuiltMarker):]
	dot := strings.IndexByte(rest, '.')
	if dot <= 0 || dot == len(rest)-1 {
		return 0, false
	}
	// Staging names such as OR_run5.root.incoming are not built runs.
	if strings.IndexByte(rest[dot+1:], '.') >= 0 {
		return 0, false
	}
	digits := rest[:dot]
	if !allDigits(digits) {
		return 0, false
	}
	run, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return run, true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// RawFile is a discovered raw instrument file.
type RawFile struct {
	Path string
	Run  int
}

// DiscoverRaw walks root for regular files whose parent directory is named
// Data and whose name contains the run marker. Results are sorted by run
// number. Every malformed name is reported in the returned error, and
// discovery fails as a whole when any name is malformed or when two raw files
// carry the same run number.
func DiscoverRaw(root string) ([]RawFile, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "discover", "stat raw root", root, err)
	}
	if !info.IsDir() {
		return nil, services.Wrap(services.ErrConfiguration, "discover", "stat raw root", root+" is not a directory", nil)
	}

	var (
		found    []RawFile
		problems []error
		byRun    = make(map[int]string)
	)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if filepath.Base(filepath.Dir(path)) != DataDirName || !strings.Contains(d.Name(), Marker) {
			return nil
		}
		run, err := ParseRunNumber(path)
		if err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", path, err))
			return nil
		}
		if prev, dup := byRun[run]; dup {
			problems = append(problems, services.Wrap(services.ErrValidation, "discover", "duplicate run",
				fmt.Sprintf("run %d found in both %s and %s", run, prev, path), nil))
			return nil
		}
		byRun[run] = path
		found = append(found, RawFile{Path: path, Run: run})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk raw root %s: %w", root, err)
	}
	if len(problems) > 0 {
		return nil, errors.Join(problems...)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Run < found[j].Run })
	return found, nil
}

// DiscoverBuilt returns the converted files under root keyed by run number.
// A missing root yields an empty set.
func DiscoverBuilt(root string) (map[int]string, error) {
	built := make(map[int]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) && path == root {
				return filepath.SkipDir
			}
			return walkErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if run, ok := ParseBuiltRunNumber(d.Name()); ok {
			built[run] = path
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk built root %s: %w", root, err)
	}
	return built, nil
}
