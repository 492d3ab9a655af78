package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"taskguard/internal/daemonctl"
	"taskguard/internal/daemonrun"
	"taskguard/internal/faults"
)

const detachStartTimeout = 10 * time.Second

func newRunCommand(ctx *commandContext) *cobra.Command {
	var detach bool
	var development bool

	cmd := &cobra.Command{
		Use:   "run <task> -- <command> [args...]",
		Short: "Run a command as the single instance of a task",
		Long: `Run acquires the task's instance lock, starts the command, and holds
the lock until the command exits. SIGINT or SIGTERM stops the command,
releases the lock, and exits with status 1. A second run of the same task
fails while the first is alive.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, command, err := splitRunArgs(cmd, args)
			if err != nil {
				return err
			}
			if ctx.host() != "" {
				return faults.Wrap(faults.ErrConfiguration, task, ctx.host(), "run", errors.New("tasks can only be run on the local host"))
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			if detach {
				return runDetached(cmd, ctx, task, command)
			}

			code, err := daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				Task:        task,
				Command:     command,
				LogLevel:    ctx.logLevel(),
				Development: development,
			})
			if err != nil {
				return err
			}
			if code != 0 {
				return exitStatus{code: code}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&detach, "detach", "d", false, "Run in the background and return once the lock is held")
	cmd.Flags().BoolVar(&development, "dev", false, "Include source locations in log output")
	return cmd
}

// splitRunArgs separates the task name from the command. Everything after
// "--" is the command; without "--" the remaining arguments are used.
func splitRunArgs(cmd *cobra.Command, args []string) (string, []string, error) {
	task := args[0]
	command := args[1:]
	if dash := cmd.ArgsLenAtDash(); dash >= 0 {
		if dash != 1 {
			return "", nil, faults.Wrap(faults.ErrConfiguration, task, "", "run", errors.New("expected exactly one task name before --"))
		}
		command = args[dash:]
	}
	if len(command) == 0 {
		return "", nil, faults.Wrap(faults.ErrConfiguration, task, "", "run", errors.New("no command given"))
	}
	return task, command, nil
}

func runDetached(cmd *cobra.Command, ctx *commandContext, task string, command []string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	pid, err := daemonctl.Launch(exe, daemonctl.LaunchOptions{
		Task:       task,
		Command:    command,
		ConfigPath: flagValue(ctx.configFlag),
		LogLevel:   ctx.logLevel(),
	})
	if err != nil {
		return err
	}

	svc, closeFn, err := ctx.service()
	if err != nil {
		return err
	}
	defer closeFn()

	if err := svc.WaitForStart(cmd.Context(), task, pid, detachStartTimeout); err != nil {
		return err
	}
	cfg, _ := ctx.ensureConfig()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Started %s (pid %d)\n", task, pid)
	fmt.Fprintf(out, "Log: %s\n", cfg.LogPath(task))
	return nil
}
