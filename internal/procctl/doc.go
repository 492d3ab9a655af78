// Package procctl queries and terminates task instances on local or remote
// hosts and runs operator commands there.
//
// Every call resolves its host afresh through a transport.Opener. Failures
// keep their classification: an unreachable host is never reported as a
// missing record, and a record that could not be cleared after a successful
// kill is reported as a cleanup failure alongside the kill result.
package procctl
