package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check storage, camera and relay before the doors open",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			results := preflight.RunAll(cmd.Context(), cfg, nil)
			for _, line := range renderSectionHeader("Station checks", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, result := range results {
				kind := statusOK
				if !result.Passed {
					kind = statusError
					if result.Optional {
						kind = statusWarn
					}
				}
				fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
			}
			notify := "disabled"
			if cfg.Notifications.NtfyTopic != "" {
				notify = cfg.Notifications.NtfyTopic
			}
			fmt.Fprintln(out, renderStatusLine("Notifications", statusInfo, notify, colorize))

			if !preflight.Healthy(results) {
				return errors.New("station checks failed")
			}
			return nil
		},
	}
}
