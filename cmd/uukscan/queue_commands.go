package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/config"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/events"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/fileutil"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/queue"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/station"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage events waiting to sync",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueExportCommand(ctx))
	queueCmd.AddCommand(newQueueSyncCommand(ctx))
	queueCmd.AddCommand(newQueueResetCommand(ctx))

	return queueCmd
}

// loadQueues opens the named queues. Load warnings go to warn and the queue
// still opens.
func loadQueues(ctx context.Context, store *queue.Store, warn io.Writer, names []queue.Name) ([]*queue.Queue, error) {
	queues := make([]*queue.Queue, 0, len(names))
	for _, name := range names {
		q, err := store.Queue(ctx, name)
		if q == nil {
			return nil, fmt.Errorf("load %s queue: %w", name, err)
		}
		if err != nil {
			fmt.Fprintf(warn, "warning: %s queue: %v\n", name, err)
		}
		queues = append(queues, q)
	}
	return queues, nil
}

func parseQueueFilter(value string) ([]queue.Name, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "all":
		return queue.Names(), nil
	case string(queue.NameScan):
		return []queue.Name{queue.NameScan}, nil
	case string(queue.NameSession):
		return []queue.Name{queue.NameSession}, nil
	default:
		return nil, fmt.Errorf("unknown queue %q (expected scan, session or all)", value)
	}
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show how many events are waiting to sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				queues, err := loadQueues(cmd.Context(), store, cmd.ErrOrStderr(), queue.Names())
				if err != nil {
					return err
				}
				spec := tableSpec{
					headers: []string{"Queue", "Pending", "Oldest"},
					aligns:  []columnAlignment{alignLeft, alignRight, alignLeft},
				}
				total := 0
				for _, q := range queues {
					items := q.Items()
					oldest := "-"
					if len(items) > 0 {
						oldest = formatAge(items[0].CreatedAt)
					}
					total += len(items)
					spec.rows = append(spec.rows, []string{string(q.Name()), strconv.Itoa(len(items)), oldest})
				}
				spec.footer = []string{"Total", strconv.Itoa(total), ""}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, spec.render())
				quarantined, err := store.QuarantinedCount(cmd.Context())
				if err != nil {
					return fmt.Errorf("count quarantined events: %w", err)
				}
				if quarantined > 0 {
					fmt.Fprintf(out, "%d unreadable event(s) set aside in %s\n", quarantined, store.Path())
				}
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events waiting to sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := parseQueueFilter(filter)
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				queues, err := loadQueues(cmd.Context(), store, cmd.ErrOrStderr(), names)
				if err != nil {
					return err
				}
				var rows [][]string
				for _, q := range queues {
					for _, item := range q.Items() {
						rows = append(rows, []string{
							string(item.Queue),
							item.EventID,
							item.CreatedAt.Local().Format("2006-01-02 15:04:05"),
							summarizeItem(item),
						})
					}
				}
				out := cmd.OutOrStdout()
				if len(rows) == 0 {
					fmt.Fprintln(out, "Nothing waiting to sync")
					return nil
				}
				fmt.Fprintln(out, renderTable([]string{"Queue", "Event", "Queued", "Summary"}, rows, nil))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&filter, "queue", "q", "all", "Queue to list: scan, session or all")
	return cmd
}

func summarizeItem(item queue.Item) string {
	switch item.Queue {
	case queue.NameScan:
		scan, err := events.DecodeScanPayload(item.Payload)
		if err != nil {
			return "unreadable payload"
		}
		return fmt.Sprintf("ticket %s, consent %s, rating %d", scan.TicketID, yesNo(scan.Consent), scan.Rating)
	case queue.NameSession:
		var report events.SessionPayload
		if err := json.Unmarshal(item.Payload, &report); err != nil {
			return "unreadable payload"
		}
		return fmt.Sprintf("%s, %d attendee(s)", report.SessionName, report.TotalCount)
	default:
		return ""
	}
}

func formatAge(created time.Time) string {
	if created.IsZero() {
		return "-"
	}
	age := time.Since(created).Round(time.Second)
	if age < 0 {
		age = 0
	}
	return age.String() + " ago"
}

func newQueueExportCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export unsynced scans as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				queues, err := loadQueues(cmd.Context(), store, cmd.ErrOrStderr(), []queue.Name{queue.NameScan})
				if err != nil {
					return err
				}
				var scans []events.ScanPayload
				for _, item := range queues[0].Items() {
					scan, err := events.DecodeScanPayload(item.Payload)
					if err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "warning: skipping %s: %v\n", item.EventID, err)
						continue
					}
					scans = append(scans, scan)
				}
				now := time.Now()

				target := strings.TrimSpace(output)
				if target == "" || target == "-" {
					return events.WriteCSV(cmd.OutOrStdout(), scans, now)
				}
				result, err := fileutil.WriteAtomic(target, 0o600, func(w io.Writer) error {
					return events.WriteCSV(w, scans, now)
				})
				if err != nil {
					return fmt.Errorf("write export: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d scan(s) to %s (sha256 %s)\n", len(scans), target, result.SHA256)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write CSV to this file instead of stdout")
	return cmd
}

func newQueueSyncCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Deliver waiting events now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStation(cmd, station.Options{}, func(st *station.Station) error {
				results, err := st.Sync(cmd.Context())
				if err != nil {
					return err
				}
				var rows [][]string
				var failed []error
				for _, name := range queue.Names() {
					result := results[name]
					note := ""
					switch {
					case result.Skipped:
						note = "already draining"
					case result.Err != nil:
						note = result.Err.Error()
						failed = append(failed, fmt.Errorf("%s: %w", name, result.Err))
					}
					rows = append(rows, []string{
						string(name),
						strconv.Itoa(result.Delivered),
						strconv.Itoa(result.Remaining),
						note,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Queue", "Delivered", "Remaining", "Note"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
				))
				return errors.Join(failed...)
			})
		},
	}
}

func newQueueResetCommand(ctx *commandContext) *cobra.Command {
	var assumeYes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Discard unsynced scans and zero the daily counter",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if !assumeYes && !isInteractive(in) {
				return errors.New("refusing to reset without confirmation; pass --yes when stdin is not a terminal")
			}
			return ctx.withStation(cmd, station.Options{}, func(st *station.Station) error {
				out := cmd.OutOrStdout()
				pending := st.State.PendingScans()
				confirmed := assumeYes
				if !confirmed {
					fmt.Fprintf(out, "This permanently deletes %d unsynced scan(s). Export them first with `uukscan queue export`.\n", pending)
					answer, err := promptLine(out, bufio.NewReader(in), "Type yes to continue: ")
					if err != nil {
						return fmt.Errorf("read confirmation: %w", err)
					}
					confirmed = strings.EqualFold(answer, "yes")
				}
				removed, err := st.State.ProceedWithReset(cmd.Context(), confirmed)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Removed %d scan(s); daily counter reset\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}
