// Package faults defines the error taxonomy shared by the supervision
// packages.
//
// Every operator-actionable failure is tagged with one of the exported
// sentinel errors so callers can branch with errors.Is without inspecting
// transport output. The CLI maps each kind to a distinct message prefix and
// exit status through Kind and ExitCode.
package faults
