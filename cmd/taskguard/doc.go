// Package main implements the taskguard command-line interface.
//
// The CLI runs a task under an instance lock ("run"), inspects and
// terminates running tasks on local or remote hosts ("status", "kill"),
// follows task logs ("tail"), runs one-off commands ("exec"), and browses
// the event history ("history"). Configuration helpers live under
// "config".
package main
