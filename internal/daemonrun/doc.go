// Package daemonrun is the body of "taskguard run": it holds a task's
// instance lock for the lifetime of a child command, logs the child's
// output, and guarantees the child is stopped and the lock released
// whether the child exits on its own or the daemon receives SIGINT or
// SIGTERM.
package daemonrun
