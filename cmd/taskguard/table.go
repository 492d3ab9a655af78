package main

import (
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"taskguard/internal/history"
)

const eventTimeLayout = "2006-01-02 15:04:05"

// eventColumn describes one column of the history table.
type eventColumn struct {
	header string
	align  text.Align
	value  func(history.Event) string
}

var eventColumns = []eventColumn{
	{"Time", text.AlignLeft, func(ev history.Event) string { return ev.CreatedAt.Local().Format(eventTimeLayout) }},
	{"Task", text.AlignLeft, func(ev history.Event) string { return ev.Task }},
	{"Host", text.AlignLeft, func(ev history.Event) string { return hostLabel(ev.Host) }},
	{"PID", text.AlignRight, func(ev history.Event) string {
		if ev.PID <= 0 {
			return ""
		}
		return strconv.Itoa(ev.PID)
	}},
	{"Event", text.AlignLeft, func(ev history.Event) string { return string(ev.Kind) }},
	{"Run", text.AlignLeft, func(ev history.Event) string { return shortRunID(ev.RunID) }},
	{"Detail", text.AlignLeft, func(ev history.Event) string { return ev.Detail }},
}

// renderEvents lays events out as a rounded table, one row per event.
func renderEvents(events []history.Event) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(eventColumns))
	configs := make([]table.ColumnConfig, len(eventColumns))
	for i, col := range eventColumns {
		header[i] = col.header
		configs[i] = table.ColumnConfig{Number: i + 1, Align: col.align, AlignHeader: text.AlignLeft}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, ev := range events {
		row := make(table.Row, len(eventColumns))
		for i, col := range eventColumns {
			row[i] = col.value(ev)
		}
		tw.AppendRow(row)
	}
	return tw.Render()
}

// shortRunID trims a uuid run id to its first group.
func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
