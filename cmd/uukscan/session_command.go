package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/scanner"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/session"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/station"
)

var errSessionAborted = errors.New("session abandoned; nothing was submitted")

func newSessionCommand(ctx *commandContext) *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Count attendance for a talk or workshop",
	}
	sessionCmd.AddCommand(newSessionRunCommand(ctx))
	return sessionCmd
}

func newSessionRunCommand(ctx *commandContext) *cobra.Command {
	var name string
	var noCamera bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Count one session and submit the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			name = strings.TrimSpace(name)
			if name == "" {
				return errors.New("--name is required")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			changes := make(chan session.Snapshot, changeBuffer)
			opts := station.Options{
				Capture:      true,
				WatchDevices: true,
				Camera:       cameraFor(&cfg.Camera),
				Haptics:      scanner.BellHaptics{Out: cmd.ErrOrStderr()},
				OnSession: func(s session.Snapshot) {
					select {
					case changes <- s:
					default:
					}
				},
			}
			if noCamera {
				opts.Camera = keyboardCamera{}
			}
			st, err := ctx.openStation(cmd, opts)
			if err != nil {
				return err
			}
			defer st.Close()

			id, ok := st.Auth.Active()
			if !ok {
				return errNotLoggedIn
			}
			st.Start()

			console := &sessionConsole{
				st:      st,
				out:     newConsoleWriter(cmd.OutOrStdout()),
				changes: changes,
			}
			if err := st.Session.Begin(cmd.Context(), name, id.ExhibitorID); err != nil {
				return fmt.Errorf("begin session: %w", err)
			}
			console.out.printf("Counting %q for %s.", name, id.DisplayName())
			return console.loop(cmd.Context(), readLines(cmd.Context(), cmd.InOrStdin()))
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Session name, e.g. the talk title")
	cmd.Flags().BoolVar(&noCamera, "no-camera", false, "Count typed codes and manual adjustments only")
	return cmd
}

type sessionConsole struct {
	st        *station.Station
	out       *consoleWriter
	changes   chan session.Snapshot
	lastTally session.Tally
}

func (c *sessionConsole) loop(ctx context.Context, lines <-chan string) error {
	c.help()
	c.flush()
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap := <-c.changes:
			c.render(snap)
		case line, ok := <-lines:
			if !ok {
				return errSessionAborted
			}
			done, err := c.handle(ctx, line)
			c.flush()
			if done {
				return err
			}
		}
	}
}

func (c *sessionConsole) flush() {
	for {
		select {
		case snap := <-c.changes:
			c.render(snap)
		default:
			return
		}
	}
}

func (c *sessionConsole) render(snap session.Snapshot) {
	if snap.Phase != session.PhaseCounting || snap.Tally == c.lastTally {
		return
	}
	c.lastTally = snap.Tally
	c.out.println(formatTally(snap.Tally))
}

func (c *sessionConsole) handle(ctx context.Context, line string) (bool, error) {
	switch strings.ToLower(line) {
	case "":
	case "?", "help":
		c.help()
	case "+":
		if _, err := c.st.Session.IncrementManual(); err != nil {
			c.out.status("Count", statusError, err.Error())
		}
	case "-":
		if _, err := c.st.Session.DecrementManual(); err != nil {
			c.out.status("Count", statusError, err.Error())
		}
	case "done", "d":
		result, err := c.st.Session.Complete(ctx)
		if err != nil && result.EventID == "" {
			return true, fmt.Errorf("complete session: %w", err)
		}
		if err != nil {
			c.out.status("Result", statusError, result.Message)
			return true, fmt.Errorf("complete session: %w", err)
		}
		c.out.status("Result", outcomeKind(result.Outcome), result.Message)
		c.out.println("Final " + formatTally(result.Tally))
		return true, nil
	case "q", "quit", "x":
		c.st.Session.Reset()
		return true, errSessionAborted
	default:
		switch c.st.Session.HandleDecode(line) {
		case session.Duplicate:
			c.out.status("Scan", statusWarn, "already counted")
		case session.Debounced:
			c.out.status("Scan", statusWarn, "too soon after the last scan; try again")
		case session.Inactive:
			c.out.status("Scan", statusError, "no session in progress")
		}
	}
	return false, nil
}

func (c *sessionConsole) help() {
	c.out.println(renderTable(
		[]string{"Command", "Action"},
		[][]string{
			{"<code>", "Count a typed or wedge-scanned ticket"},
			{"+ / -", "Adjust the manual head count"},
			{"done", "Submit the session report"},
			{"q", "Abandon without submitting"},
		},
		nil,
	))
}

func formatTally(t session.Tally) string {
	return fmt.Sprintf("count: %d scanned + %d manual = %d", t.QR, t.Manual, t.Total())
}
