// Package preflight provides readiness checks for the filesystem paths,
// helper binaries, and remote endpoints taskguard depends on.
//
// The CLI "taskguard check" runs RunAll and prints one line per result.
// Checks for optional features (native ssh, ntfy) are skipped when the
// feature is not configured.
package preflight
