package main

import (
	"fmt"

	"taskguard/internal/daemonctl"
	"taskguard/internal/style"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	statusLabelWidth = 12
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, palette style.Palette) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	switch kind {
	case statusOK:
		return palette.Green(base)
	case statusWarn:
		return palette.Yellow(base)
	case statusError:
		return palette.Red(base)
	default:
		return base
	}
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func stateKind(state daemonctl.State) statusKind {
	switch state {
	case daemonctl.StateRunning:
		return statusOK
	case daemonctl.StateStale, daemonctl.StateUnknown:
		return statusWarn
	default:
		return statusInfo
	}
}

func renderSnapshot(snap daemonctl.Snapshot, palette style.Palette) []string {
	lines := []string{palette.Title("task status")}
	state := string(snap.State)
	switch snap.State {
	case daemonctl.StateStale:
		state += " (record left by a process that is gone; 'kill' clears it)"
	case daemonctl.StateUnknown:
		state += " (liveness could not be checked)"
	}
	lines = append(lines,
		renderStatusLine("Task", statusInfo, snap.Task, palette),
		renderStatusLine("State", stateKind(snap.State), state, palette),
		renderStatusLine("Host", statusInfo, palette.Purple(hostLabel(snap.Host)), palette))
	if snap.Record != nil {
		lines = append(lines, renderStatusLine("PID", statusInfo, fmt.Sprint(snap.Record.PID), palette))
	}
	lines = append(lines,
		renderStatusLine("PID file", statusInfo, snap.PIDFile, palette),
		renderStatusLine("Log", statusInfo, snap.LogFile, palette))
	return lines
}
