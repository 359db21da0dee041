package preflight

import (
	"context"

	"crystalproc/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// pinger may be nil when no archive host is configured.
func RunAll(ctx context.Context, cfg *config.Config, pinger Pinger) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Raw directory", cfg.Paths.RawDir),
		CheckDirectoryAccess("Built directory", cfg.Paths.BuiltDir),
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckFreeSpace("Free space (built)", cfg.Paths.BuiltDir, cfg.Preflight.MinFreeGiB),
	}

	for _, status := range CheckSystemDeps(cfg) {
		results = append(results, depResult(status))
	}

	if cfg.RemoteEnabled() {
		results = append(results, CheckRemote(ctx, cfg.Remote.Host, pinger))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
