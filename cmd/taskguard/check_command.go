package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"taskguard/internal/faults"
	"taskguard/internal/logging"
	"taskguard/internal/preflight"
	"taskguard/internal/style"
	"taskguard/internal/transport"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify directories, helper binaries, and connectivity",
		Long: `Check verifies the local directories and binaries
taskguard uses. With --host it also runs a no-op command on that host
through the configured transport.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg, transport.NewDialer(cfg, logging.NewNop()), ctx.host())

			out := cmd.OutOrStdout()
			palette := style.For(out)
			fmt.Fprintln(out, palette.Title("preflight"))
			for _, r := range results {
				kind := statusOK
				switch {
				case r.Passed:
				case r.Optional:
					kind = statusWarn
				default:
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, palette))
			}
			if preflight.Failed(results) {
				return faults.Wrap(faults.ErrConfiguration, "", ctx.host(), "check", errors.New("one or more required checks failed"))
			}
			return nil
		},
	}
}
