package remotesync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"crystalproc/internal/config"
	"crystalproc/internal/execrun"
	"crystalproc/internal/logging"
	"crystalproc/internal/services"
)

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec execrun.Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client drives the transfer tools against one remote host.
type Client struct {
	remote config.Remote
	exec   execrun.Executor
	logger *slog.Logger
}

// New constructs a client for the configured remote.
func New(remote config.Remote, opts ...Option) (*Client, error) {
	if strings.TrimSpace(remote.Host) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "sync", "init", "remote.host is not configured", nil)
	}
	c := &Client{remote: remote, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "remotesync")
	if c.exec == nil {
		c.exec = execrun.CommandExecutor{Logger: c.logger}
	}
	return c, nil
}

// Push mirrors localDir into remoteDir on the host with rsync. Nothing is
// deleted remotely.
func (c *Client) Push(ctx context.Context, localDir, remoteDir string) error {
	cmd := execrun.Command{
		Binary: c.remote.RsyncBinary,
		Args: []string{
			"-a",
			"-e", c.remote.SSHBinary,
			strings.TrimRight(localDir, "/") + "/",
			c.remote.Host + ":" + strings.TrimRight(remoteDir, "/") + "/",
		},
	}
	c.logger.Info("pushing tree", logging.String("local", localDir), logging.String("remote", remoteDir))
	if err := c.exec.Run(ctx, cmd, nil); err != nil {
		return services.Wrap(services.ErrExternalTool, "sync", "push", localDir, err)
	}
	return nil
}

// ListRemote returns the NFC-normalized base names of every regular file
// under remoteDir on the host.
func (c *Client) ListRemote(ctx context.Context, remoteDir string) (map[string]struct{}, error) {
	cmd := execrun.Command{
		Binary: c.remote.SSHBinary,
		Args:   []string{c.remote.Host, "find", remoteShellPath(remoteDir), "-type", "f"},
	}
	lines, err := execrun.Lines(ctx, c.exec, cmd)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "sync", "list remote", remoteDir, err)
	}
	names := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		names[NormalizeName(line)] = struct{}{}
	}
	return names, nil
}

// CopyFile uploads a single file into remoteDir with scp.
func (c *Client) CopyFile(ctx context.Context, localPath, remoteDir string) error {
	cmd := execrun.Command{
		Binary: c.remote.SCPBinary,
		Args:   []string{localPath, c.remote.Host + ":" + strings.TrimRight(remoteDir, "/") + "/"},
	}
	if err := c.exec.Run(ctx, cmd, nil); err != nil {
		return services.Wrap(services.ErrExternalTool, "sync", "copy", localPath, err)
	}
	c.logger.Info("file uploaded", logging.String("file", localPath), logging.String("remote", remoteDir))
	return nil
}

// Ping checks that the host accepts a non-interactive ssh login.
func (c *Client) Ping(ctx context.Context) error {
	cmd := execrun.Command{
		Binary: c.remote.SSHBinary,
		Args:   []string{"-o", "BatchMode=yes", "-o", "ConnectTimeout=10", c.remote.Host, "true"},
	}
	if err := c.exec.Run(ctx, cmd, nil); err != nil {
		return services.Wrap(services.ErrExternalTool, "sync", "ping", c.remote.Host, err)
	}
	return nil
}

// NormalizeName returns the NFC form of path's base name.
func NormalizeName(path string) string {
	path = strings.TrimRight(path, "/")
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		path = path[idx+1:]
	}
	return norm.NFC.String(path)
}

// ListLocal returns every regular file under root, sorted. A missing root
// yields no files.
func ListLocal(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) && path == root {
				return filepath.SkipDir
			}
			return walkErr
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

// Missing returns the local files whose base name is absent from remote.
func Missing(local []string, remote map[string]struct{}) []string {
	var missing []string
	for _, path := range local {
		if _, ok := remote[NormalizeName(filepath.ToSlash(path))]; !ok {
			missing = append(missing, path)
		}
	}
	return missing
}

// remoteShellPath quotes dir for the remote shell but leaves a leading ~ or
// ~/ bare so it expands to the remote home, as rsync and scp destinations do.
func remoteShellPath(dir string) string {
	switch {
	case dir == "~":
		return dir
	case strings.HasPrefix(dir, "~/"):
		rest := strings.TrimLeft(dir[2:], "/")
		if rest == "" {
			return "~/"
		}
		return "~/" + shellQuote(rest)
	default:
		return shellQuote(dir)
	}
}

func shellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n'\"\\$`*?[]{}()<>|&;#~!") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
