package archive_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"crystalproc/internal/archive"
	"crystalproc/internal/config"
	"crystalproc/internal/services"
	"crystalproc/internal/testsupport"
)

func newArchiver(t *testing.T, opts ...archive.Option) *archive.Archiver {
	t.Helper()
	a, err := archive.New(config.Archive{Marker: "Run", ReservedNames: []string{"runinfo.txt", "Runlog"}, Level: "fastest"}, opts...)
	if err != nil {
		t.Fatalf("archive.New: %v", err)
	}
	return a
}

func decode(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		t.Fatalf("decode archive: %v", err)
	}
	return out
}

func TestCandidates(t *testing.T) {
	root := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(root, "SN1", "Data", "Run1"), 4)
	testsupport.WriteFile(t, filepath.Join(root, "SN1", "Data", "Run2.zst"), 4)
	testsupport.WriteFile(t, filepath.Join(root, "SN1", "Data", "Runlog"), 4)
	testsupport.WriteFile(t, filepath.Join(root, "SN1", "Data", "runinfo.txt"), 4)
	testsupport.WriteFile(t, filepath.Join(root, "SN1", "Data", "notes"), 4)

	got, err := newArchiver(t).Candidates(root)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(got) != 1 || filepath.Base(got[0]) != "Run1" {
		t.Fatalf("unexpected candidates %v", got)
	}
}

func TestRunArchivesAndRemovesRaw(t *testing.T) {
	root := t.TempDir()
	raw := filepath.Join(root, "SN1", "Data", "Run7")
	payload := bytes.Repeat([]byte("sis3316 "), 4096)
	testsupport.WriteBytes(t, raw, payload)

	report, err := newArchiver(t).Run(context.Background(), root)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Results) != 1 || report.Results[0].Action != archive.ActionArchived {
		t.Fatalf("unexpected report %+v", report)
	}
	if _, err := os.Stat(raw); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected raw removed, stat err=%v", err)
	}
	if got := decode(t, raw+archive.Extension); !bytes.Equal(got, payload) {
		t.Fatal("archive does not round-trip to raw content")
	}
	if report.Results[0].Compressed >= report.Results[0].RawBytes {
		t.Fatalf("expected compression, got %d >= %d", report.Results[0].Compressed, report.Results[0].RawBytes)
	}
}

func TestRunWithGoodExistingArchiveRemovesOnlyRaw(t *testing.T) {
	root := t.TempDir()
	raw := filepath.Join(root, "Data", "Run3")
	testsupport.WriteBytes(t, raw, []byte("content"))
	a := newArchiver(t)

	// Build a valid archive, then restore the raw file as if a previous pass
	// crashed before removing it.
	if _, err := a.ArchiveFile(raw); err != nil {
		t.Fatalf("ArchiveFile: %v", err)
	}
	testsupport.WriteBytes(t, raw, []byte("content"))
	before, _ := os.ReadFile(raw + archive.Extension)

	result, err := a.ArchiveFile(raw)
	if err != nil {
		t.Fatalf("ArchiveFile: %v", err)
	}
	if result.Action != archive.ActionRemovedRaw {
		t.Fatalf("expected raw removal, got %+v", result)
	}
	after, _ := os.ReadFile(raw + archive.Extension)
	if !bytes.Equal(before, after) {
		t.Fatal("verified archive must not be rewritten")
	}
	if _, err := os.Stat(raw); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected raw removed, stat err=%v", err)
	}
}

func TestRunReplacesCorruptArchive(t *testing.T) {
	root := t.TempDir()
	raw := filepath.Join(root, "Data", "Run4")
	testsupport.WriteBytes(t, raw, []byte("good data"))
	testsupport.WriteBytes(t, raw+archive.Extension, []byte("not a zstd frame"))

	report, err := newArchiver(t).Run(context.Background(), root)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	result := report.Results[0]
	if result.Action != archive.ActionReplacedArchive || result.Problem == "" {
		t.Fatalf("unexpected result %+v", result)
	}
	if got := decode(t, raw+archive.Extension); string(got) != "good data" {
		t.Fatalf("unexpected rebuilt archive content %q", got)
	}
}

func TestRunCleansInterruptedTemp(t *testing.T) {
	root := t.TempDir()
	tmp := filepath.Join(root, "Data", "Run5.zst.tmp")
	testsupport.WriteBytes(t, tmp, []byte("partial"))
	testsupport.WriteBytes(t, filepath.Join(root, "Data", "Run5"), []byte("raw"))

	report, err := newArchiver(t).Run(context.Background(), root)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.CleanedTemps) != 1 {
		t.Fatalf("expected temp cleanup, got %+v", report)
	}
	if _, err := os.Stat(tmp); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected temp removed, stat err=%v", err)
	}
}

func TestDryRunTouchesNothing(t *testing.T) {
	root := t.TempDir()
	raw := filepath.Join(root, "Data", "Run6")
	testsupport.WriteBytes(t, raw, []byte("raw"))

	report, err := newArchiver(t, archive.WithDryRun(true)).Run(context.Background(), root)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.DryRun || len(report.Results) != 1 || report.Results[0].Action != archive.ActionArchived {
		t.Fatalf("unexpected report %+v", report)
	}
	if _, err := os.Stat(raw); err != nil {
		t.Fatalf("raw must remain in dry run: %v", err)
	}
	if _, err := os.Stat(raw + archive.Extension); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("no archive may be written in dry run, stat err=%v", err)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := archive.New(config.Archive{Marker: "Run", Level: "ultra"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestRunMissingRoot(t *testing.T) {
	_, err := newArchiver(t).Run(context.Background(), filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
