// Package daemonctl implements the operator side of taskguard: status,
// kill, tail, exec, and history queries against a task that may be running
// on this machine or on another host, plus launching detached daemons.
//
// Each operation wraps the process controller with the bookkeeping an
// operator expects: kills are written to the event history and announced
// via notifications, and status combines the pid record with a liveness
// check.
package daemonctl
