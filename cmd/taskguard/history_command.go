package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"taskguard/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var task string
	var runID string
	var kinds []string
	var since time.Duration
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded task events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg.Paths.HistoryDB)
			if err != nil {
				return err
			}
			defer store.Close()

			filter := history.Filter{Task: strings.TrimSpace(task), RunID: strings.TrimSpace(runID), Limit: limit}
			for _, kind := range kinds {
				filter.Kinds = append(filter.Kinds, history.Kind(strings.TrimSpace(kind)))
			}
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}
			events, err := store.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(events) == 0 {
				fmt.Fprintln(out, "No events recorded")
				return nil
			}
			fmt.Fprintln(out, renderEvents(events))
			return nil
		},
	}

	cmd.Flags().StringVarP(&task, "task", "t", "", "Only show events for this task")
	cmd.Flags().StringVar(&runID, "run", "", "Only show events for this run id")
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "Only show these event kinds (started, exited, signalled, killed, kill_cleanup_failed, lock_conflict)")
	cmd.Flags().DurationVar(&since, "since", 0, "Only show events newer than this age")
	cmd.Flags().IntVarP(&limit, "limit", "l", history.DefaultListLimit, "Maximum number of events")
	return cmd
}
