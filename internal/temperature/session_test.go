package temperature

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"crystalproc/internal/services"
)

type fakeSensor struct {
	values []float64
	calls  int
	err    error
	after  func(calls int)
}

func (f *fakeSensor) ReadCelsius(context.Context) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	v := f.values[f.calls%len(f.values)]
	f.calls++
	if f.after != nil {
		f.after(f.calls)
	}
	return v, nil
}

type fakeUploader struct {
	paths []string
	dirs  []string
}

func (f *fakeUploader) CopyFile(_ context.Context, localPath, remoteDir string) error {
	f.paths = append(f.paths, localPath)
	f.dirs = append(f.dirs, remoteDir)
	return nil
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestSessionWritesReadings(t *testing.T) {
	dir := t.TempDir()
	uploader := &fakeUploader{}
	session := &Session{
		Sensor:    &fakeSensor{values: []float64{21.5, 21.75, 22}},
		Interval:  time.Millisecond,
		Duration:  5 * time.Millisecond,
		DataDir:   dir,
		Uploader:  uploader,
		RemoteDir: "/data/temperature",
	}

	result, err := session.Run(context.Background(), 412)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	wantPath := filepath.Join(dir, "run412_temperature_data.txt")
	if result.Path != wantPath {
		t.Fatalf("unexpected path %q", result.Path)
	}
	if result.Readings != 5 || result.Min != 21.5 || result.Max != 22 {
		t.Fatalf("unexpected result %+v", result)
	}

	lines := readLines(t, wantPath)
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d: %q", len(lines), lines)
	}
	fields := strings.Fields(lines[1])
	if len(fields) != 2 || fields[1] != "21.750000" {
		t.Fatalf("unexpected line %q", lines[1])
	}
	stamp, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || stamp < float64(result.Started.Unix()) {
		t.Fatalf("unexpected timestamp %q", fields[0])
	}

	if !result.Uploaded || len(uploader.paths) != 1 || uploader.paths[0] != wantPath || uploader.dirs[0] != "/data/temperature" {
		t.Fatalf("expected single upload of %s, got %v", wantPath, uploader.paths)
	}
}

func TestSessionStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	uploader := &fakeUploader{}
	sensor := &fakeSensor{values: []float64{20}}
	sensor.after = func(calls int) {
		if calls == 2 {
			cancel()
		}
	}
	session := &Session{
		Sensor:    sensor,
		Interval:  time.Millisecond,
		Duration:  time.Second,
		DataDir:   t.TempDir(),
		Uploader:  uploader,
		RemoteDir: "/remote",
	}

	result, err := session.Run(ctx, 7)
	if !errors.Is(err, services.ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if !result.Interrupted || result.Readings != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	if got := readLines(t, result.Path); len(got) != 2 {
		t.Fatalf("expected partial log to be kept, got %q", got)
	}
	if len(uploader.paths) != 1 {
		t.Fatal("expected partial log to be uploaded")
	}
}

func TestSessionSensorFailure(t *testing.T) {
	session := &Session{
		Sensor:   &fakeSensor{err: ErrFault},
		Interval: time.Millisecond,
		Duration: 3 * time.Millisecond,
		DataDir:  t.TempDir(),
	}
	_, err := session.Run(context.Background(), 1)
	if !errors.Is(err, services.ErrExternalTool) || !errors.Is(err, ErrFault) {
		t.Fatalf("expected wrapped sensor fault, got %v", err)
	}
}

func TestSessionRejectsBadTiming(t *testing.T) {
	session := &Session{Sensor: &fakeSensor{values: []float64{1}}, Interval: time.Second, Duration: time.Millisecond, DataDir: t.TempDir()}
	if _, err := session.Run(context.Background(), 1); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
