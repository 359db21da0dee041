package preflight

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"crystalproc/internal/config"
	"crystalproc/internal/deps"
)

const gib = 1 << 30

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies that the filesystem holding path has at least
// minGiB gibibytes available to unprivileged users. A zero threshold only
// reports the free space.
func CheckFreeSpace(name, path string, minGiB int) Result {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := st.Bavail * uint64(st.Bsize)
	detail := fmt.Sprintf("%s (%.1f GiB free)", path, float64(free)/gib)
	if free < uint64(minGiB)*gib {
		return Result{Name: name, Detail: fmt.Sprintf("%s, need %d GiB", detail, minGiB)}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// Pinger checks connectivity to the archive host.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CheckRemote verifies that the archive host accepts a non-interactive login.
func CheckRemote(ctx context.Context, host string, pinger Pinger) Result {
	const name = "Archive host"
	if pinger == nil {
		return Result{Name: name, Detail: "remote not configured"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := pinger.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", host, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (ssh ok)", host)}
}

// CheckSystemDeps evaluates the external tools the configuration requires.
// Both "check" and "process" use this to avoid duplicating the list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "Converter",
			Command:     cfg.Converter.Binary,
			Description: "Converts raw runs into analysis files",
		},
	}
	if cfg.RemoteEnabled() {
		requirements = append(requirements,
			deps.Requirement{Name: "rsync", Command: cfg.Remote.RsyncBinary, Description: "Pushes raw and built trees to the archive host"},
			deps.Requirement{Name: "ssh", Command: cfg.Remote.SSHBinary, Description: "Lists the archive host for verification"},
			deps.Requirement{Name: "scp", Command: cfg.Remote.SCPBinary, Description: "Uploads temperature logs", Optional: true},
		)
	}
	return deps.CheckBinaries(requirements)
}

func depResult(status deps.Status) Result {
	name := status.Name
	if status.Available {
		detail := status.Command
		if status.Detail != "" {
			detail = status.Detail
		}
		return Result{Name: name, Passed: true, Detail: detail}
	}
	if status.Optional {
		return Result{Name: name, Passed: true, Detail: status.Detail + " (optional)"}
	}
	return Result{Name: name, Detail: status.Detail}
}
