package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"taskguard/internal/style"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <task>",
		Short: "Show whether a task is running",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := ctx.service()
			if err != nil {
				return err
			}
			defer closeFn()

			snap, err := svc.Status(cmd.Context(), args[0], ctx.host())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, line := range renderSnapshot(snap, style.For(out)) {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

func newKillCommand(ctx *commandContext) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "kill <task>",
		Short: "Forcibly terminate a task and clear its pid record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := ctx.service()
			if err != nil {
				return err
			}
			defer closeFn()

			if timeout <= 0 {
				cfg, _ := ctx.ensureConfig()
				timeout = cfg.ConnectTimeout() + cfg.ShortTimeout()
			}
			res, err := svc.Kill(cmd.Context(), args[0], ctx.host(), timeout)
			out := cmd.OutOrStdout()
			palette := style.For(out)
			if res.Killed {
				fmt.Fprintln(out, palette.Green(fmt.Sprintf("Killed %s (pid %d) on %s", res.Task, res.PID, hostLabel(res.Host))))
			}
			if err != nil {
				return err
			}
			if res.AlreadyGone {
				fmt.Fprintln(out, palette.Yellow(fmt.Sprintf("Process %d for %s was already gone; record cleared", res.PID, res.Task)))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Overall deadline for the kill (default: connect + short timeout)")
	return cmd
}

func newTailCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool

	cmd := &cobra.Command{
		Use:   "tail <task>",
		Short: "Show a task's log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := ctx.service()
			if err != nil {
				return err
			}
			defer closeFn()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			err = svc.Tail(runCtx, args[0], ctx.host(), lines, follow, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 0, "Number of lines to show (default: commands.tail_lines)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep following the log until interrupted")
	return cmd
}

func newExecCommand(ctx *commandContext) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "exec <host> -- <command> [args...]",
		Short: "Run a short command on a host and print its output",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := ctx.service()
			if err != nil {
				return err
			}
			defer closeFn()

			host := args[0]
			if host == "local" {
				host = ""
			}
			res, err := svc.Exec(cmd.Context(), host, strings.Join(args[1:], " "), timeout)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = out.Write(res.Output)
			if res.ExitCode != 0 {
				return exitStatus{code: res.ExitCode}
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Timeout for the command (default: commands.short_timeout)")
	return cmd
}
