package preflight

import (
	"context"

	"taskguard/internal/config"
	"taskguard/internal/transport"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// RunAll executes every applicable check for cfg. When host is non-empty a
// connectivity check through opener is included.
func RunAll(ctx context.Context, cfg *config.Config, opener transport.Opener, host string) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("PID directory", cfg.Paths.PIDDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	results = append(results, CheckBinaries(Requirements(cfg))...)

	if cfg.Remote.Transport == config.TransportNative {
		results = append(results, CheckFile("Known hosts", cfg.Remote.KnownHosts, false))
		if cfg.Remote.IdentityFile != "" {
			results = append(results, CheckFile("Identity file", cfg.Remote.IdentityFile, false))
		}
	}

	if cfg.Notifications.NtfyTopic != "" {
		results = append(results, CheckNtfy(ctx, cfg.Notifications.NtfyTopic))
	}

	if host != "" && opener != nil {
		results = append(results, CheckHost(ctx, opener, host))
	}
	return results
}

// Failed reports whether any required check did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed && !r.Optional {
			return true
		}
	}
	return false
}
