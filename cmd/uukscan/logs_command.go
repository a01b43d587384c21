package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/logging"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var eventID string
	var queueName string
	var eventType string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the station log file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := cfg.LogFilePath()
			if path == "" {
				return fmt.Errorf("paths.log_dir is not set")
			}

			filter := logs.Filter{}
			for key, value := range map[string]string{
				logging.FieldEventID:   eventID,
				logging.FieldQueue:     queueName,
				logging.FieldEventType: eventType,
			} {
				if value = strings.TrimSpace(value); value != "" {
					filter[key] = value
				}
			}

			result, err := logs.Tail(path, lines, filter)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, line := range result.Lines {
				fmt.Fprintln(out, line)
			}
			if !follow {
				if len(result.Lines) == 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "No matching log lines in %s\n", path)
				}
				return nil
			}
			return logs.Follow(cmd.Context(), path, result.Offset, logs.FollowOptions{Filter: filter}, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of recent lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().StringVar(&eventID, "event", "", "Only lines for this event ID")
	cmd.Flags().StringVar(&queueName, "queue", "", "Only lines for this queue (scan or session)")
	cmd.Flags().StringVar(&eventType, "type", "", "Only lines with this event_type, e.g. queue_drained")
	return cmd
}
