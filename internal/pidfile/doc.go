// Package pidfile persists the process id of the instance holding a task's
// lock at <pid_dir>/<task>.pid.
//
// Writes are always local: a daemon records its own pid and never accepts
// remote writes. Reads and clears can target any host and go through a
// transport.Transport so the same code path serves the operator's machine
// and remote daemons. An absent record is the normal "not running" state
// and is reported as a nil Record; an unreadable host or corrupt content is
// always an error.
package pidfile
