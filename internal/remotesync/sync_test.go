package remotesync_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"crystalproc/internal/config"
	"crystalproc/internal/execrun"
	"crystalproc/internal/remotesync"
	"crystalproc/internal/services"
	"crystalproc/internal/testsupport"
)

// fakeRemote records commands and answers `ssh host find <dir>` from a
// per-directory listing.
type fakeRemote struct {
	commands []execrun.Command
	listings map[string][]string
	failBin  string
}

func (f *fakeRemote) Run(_ context.Context, cmd execrun.Command, onStdout func(string)) error {
	f.commands = append(f.commands, cmd)
	if cmd.Binary == f.failBin {
		return &execrun.ExitError{Command: cmd.Binary, Code: 23}
	}
	if cmd.Binary == "ssh" && len(cmd.Args) > 2 && cmd.Args[1] == "find" {
		dir := strings.Trim(cmd.Args[2], "'")
		for _, line := range f.listings[dir] {
			onStdout(line)
		}
	}
	return nil
}

func setup(t *testing.T) (*config.Config, *fakeRemote, *remotesync.Client) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithRemote("lab@archive"))
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.RawDir, "SN1", "Data", "Run1"), 8)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.RawDir, "SN1", "Data", "Run2"), 8)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.RawDir, "SN1", "runinfo.txt"), 8)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.BuiltDir, "SN1", "Position", "Position_1", "OR_run1.root"), 8)

	fake := &fakeRemote{listings: map[string][]string{
		cfg.Remote.RawDir: {
			cfg.Remote.RawDir + "/SN1/Data/Run1",
			cfg.Remote.RawDir + "/SN1/Data/Run2",
			cfg.Remote.RawDir + "/SN1/runinfo.txt",
		},
		cfg.Remote.BuiltDir: {cfg.Remote.BuiltDir + "/SN1/Position/Position_1/OR_run1.root"},
	}}
	client, err := remotesync.New(cfg.Remote, remotesync.WithExecutor(fake))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return cfg, fake, client
}

func TestSyncDeletesRawAfterVerificationAndConfirmation(t *testing.T) {
	cfg, fake, client := setup(t)

	report, err := client.Sync(context.Background(), cfg.Paths, remotesync.Options{Confirm: remotesync.StaticConfirmer{Answer: true}})
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if !report.Verified || !report.Confirmed {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(report.Deleted) != 2 || len(report.Protected) != 1 {
		t.Fatalf("expected 2 deleted and 1 protected, got %+v", report)
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.RawDir, "SN1", "runinfo.txt")); err != nil {
		t.Fatalf("protected file must survive: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.RawDir, "SN1", "Data", "Run1")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected raw file deleted, stat err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.BuiltDir, "SN1", "Position", "Position_1", "OR_run1.root")); err != nil {
		t.Fatalf("built files must never be deleted: %v", err)
	}

	push := fake.commands[0]
	if push.Binary != "rsync" || push.Args[len(push.Args)-1] != "lab@archive:"+cfg.Remote.RawDir+"/" {
		t.Fatalf("unexpected push command %+v", push)
	}
	if !strings.HasSuffix(push.Args[len(push.Args)-2], "/") {
		t.Fatalf("local source must end with slash: %q", push.Args)
	}
}

func TestSyncVerificationFailureBlocksDeletion(t *testing.T) {
	cfg, fake, client := setup(t)
	fake.listings[cfg.Remote.RawDir] = fake.listings[cfg.Remote.RawDir][:1]

	_, err := client.Sync(context.Background(), cfg.Paths, remotesync.Options{Confirm: remotesync.StaticConfirmer{Answer: true}})
	if !errors.Is(err, services.ErrVerification) {
		t.Fatalf("expected ErrVerification, got %v", err)
	}
	if !strings.Contains(err.Error(), "Run2") {
		t.Fatalf("expected missing name in error: %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(cfg.Paths.RawDir, "SN1", "Data", "Run1")); statErr != nil {
		t.Fatalf("nothing may be deleted after failed verification: %v", statErr)
	}
}

func TestSyncDeclinedConfirmationKeepsFiles(t *testing.T) {
	cfg, _, client := setup(t)
	report, err := client.Sync(context.Background(), cfg.Paths, remotesync.Options{Confirm: remotesync.StaticConfirmer{Answer: false}})
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if report.Confirmed || len(report.Deleted) != 0 {
		t.Fatalf("unexpected deletion %+v", report)
	}
}

func TestSyncNoDeleteSkipsConfirmation(t *testing.T) {
	cfg, _, client := setup(t)
	report, err := client.Sync(context.Background(), cfg.Paths, remotesync.Options{NoDelete: true, Confirm: failingConfirmer{t}})
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if !report.Verified || report.LocalRaw != 3 || report.LocalBuilt != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestSyncPushFailure(t *testing.T) {
	cfg, fake, client := setup(t)
	fake.failBin = "rsync"
	_, err := client.Sync(context.Background(), cfg.Paths, remotesync.Options{NoDelete: true})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
}

func TestPromptConfirmerRefusesNonTerminal(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()

	var out strings.Builder
	ok, err := remotesync.PromptConfirmer{In: r, Out: &out}.Confirm("Delete?")
	if ok || !errors.Is(err, services.ErrAborted) {
		t.Fatalf("expected refusal on non-terminal stdin, got %v %v", ok, err)
	}

	ok, err = remotesync.PromptConfirmer{In: r, Out: &out, AssumeYes: true}.Confirm("Delete?")
	if !ok || err != nil {
		t.Fatalf("expected --yes to approve, got %v %v", ok, err)
	}
}

func TestNormalizeNameComparesDecomposedForms(t *testing.T) {
	decomposed := "/remote/Cafe\u0301/Run1_e\u0301"
	composed := "Run1_\u00e9"
	if remotesync.NormalizeName(decomposed) != remotesync.NormalizeName(composed) {
		t.Fatalf("expected NFC normalization to equate %q and %q", decomposed, composed)
	}
	missing := remotesync.Missing([]string{"/local/" + composed}, map[string]struct{}{remotesync.NormalizeName(decomposed): {}})
	if len(missing) != 0 {
		t.Fatalf("unexpected missing %v", missing)
	}
}

func TestNewRequiresHost(t *testing.T) {
	_, err := remotesync.New(config.Remote{})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

type failingConfirmer struct{ t *testing.T }

func (f failingConfirmer) Confirm(string) (bool, error) {
	f.t.Fatal("confirmation must not be requested")
	return false, nil
}

// homeShell runs the remote part of an ssh command through sh with HOME set,
// standing in for the archive host's login shell.
type homeShell struct {
	home string
}

func (h homeShell) Run(ctx context.Context, cmd execrun.Command, onStdout func(string)) error {
	script := "HOME=" + h.home + "; export HOME; " + strings.Join(cmd.Args[1:], " ")
	return execrun.CommandExecutor{}.Run(ctx, execrun.Command{Binary: "sh", Args: []string{"-c", script}}, onStdout)
}

func TestListRemoteExpandsHomeRelativeDir(t *testing.T) {
	home := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(home, "archive raw", "SN1", "Data", "Run1"), 4)

	remote := config.Default().Remote
	remote.Host = "lab@archive"
	remote.RawDir = "~/archive raw"
	remote.BuiltDir = "~/built"
	client, err := remotesync.New(remote, remotesync.WithExecutor(homeShell{home: home}))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	names, err := client.ListRemote(context.Background(), remote.RawDir)
	if err != nil {
		t.Fatalf("ListRemote returned error: %v", err)
	}
	if _, ok := names["Run1"]; !ok || len(names) != 1 {
		t.Fatalf("expected Run1 under the remote home, got %v", names)
	}
}
