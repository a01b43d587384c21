package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/scanner"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/station"
)

const changeBuffer = 64

func newRunCommand(ctx *commandContext) *cobra.Command {
	var manual bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the consent scan station",
		Long: "Scan attendee tickets and record consent. Typed lines are commands or, while\n" +
			"scanning, ticket codes from a keyboard-wedge reader. Type ? for the command list.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			changes := make(chan scanner.Snapshot, changeBuffer)
			st, err := ctx.openStation(cmd, station.Options{
				Capture:      true,
				WatchDevices: true,
				Camera:       cameraFor(&cfg.Camera),
				Haptics:      scanner.BellHaptics{Out: cmd.ErrOrStderr()},
				OnScan: func(s scanner.Snapshot) {
					select {
					case changes <- s:
					default:
					}
				},
			})
			if err != nil {
				return err
			}
			defer st.Close()

			id, ok := st.Auth.Active()
			if !ok {
				return errNotLoggedIn
			}
			st.Start()

			console := &scanConsole{
				st:      st,
				out:     newConsoleWriter(cmd.OutOrStdout()),
				manual:  manual,
				changes: changes,
				last:    scanner.Idle,
			}
			console.out.printf("Logged in as %s. Scans today: %d", id.DisplayName(), st.State.Snapshot().ScanTotal)
			return console.loop(cmd.Context(), readLines(cmd.Context(), cmd.InOrStdin()))
		},
	}

	cmd.Flags().BoolVar(&manual, "manual", false, "Type ticket IDs instead of using the camera")
	return cmd
}

type scanConsole struct {
	st      *station.Station
	out     *consoleWriter
	manual  bool
	changes chan scanner.Snapshot
	last    scanner.State
}

func (c *scanConsole) loop(ctx context.Context, lines <-chan string) error {
	c.help()
	c.begin(ctx)
	c.flush(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap := <-c.changes:
			c.render(ctx, snap)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit := c.handle(ctx, line)
			c.flush(ctx)
			if quit {
				return nil
			}
		}
	}
}

// flush renders changes published by the command just handled so replies
// appear before the next prompt.
func (c *scanConsole) flush(ctx context.Context) {
	for {
		select {
		case snap := <-c.changes:
			c.render(ctx, snap)
		default:
			return
		}
	}
}

func (c *scanConsole) begin(ctx context.Context) {
	if c.manual {
		if err := c.st.Scanner.BeginManualEntry(); err != nil {
			c.out.status("Manual entry", statusError, err.Error())
		}
		return
	}
	// Camera failures arrive as an Idle snapshot carrying the error.
	if err := c.st.Scanner.Start(ctx); errors.Is(err, scanner.ErrInvalidTransition) {
		c.out.status("Camera", statusInfo, "already active")
	}
}

func (c *scanConsole) render(ctx context.Context, snap scanner.Snapshot) {
	previous := c.last
	c.last = snap.State
	if previous == snap.State {
		return
	}
	switch snap.State {
	case scanner.Scanning:
		c.out.println("Scanning. Present a ticket, or type m for manual entry.")
	case scanner.ManualEntry:
		c.out.println("Type the ticket ID:")
	case scanner.AwaitingConsent:
		c.out.printf("Ticket %s: does the attendee consent? [y/n] (r 0-5 to rate, note <text>)", snap.TicketID)
	case scanner.Result:
		c.out.status("Result", outcomeKind(snap.Outcome), snap.Message)
		c.out.printf("Scans today: %d", c.st.State.Snapshot().ScanTotal)
	case scanner.Idle:
		if snap.LastError != "" {
			c.out.status("Camera", statusError, snap.LastError)
			c.out.println("Type s to retry the camera or m for manual entry.")
			return
		}
		if previous == scanner.Result {
			c.begin(ctx)
		}
	}
}

func (c *scanConsole) handle(ctx context.Context, line string) bool {
	command, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(command) {
	case "":
	case "q", "quit":
		return true
	case "?", "help":
		c.help()
	case "y", "yes":
		c.consent(ctx, true)
	case "n", "no":
		c.consent(ctx, false)
	case "r", "rate":
		c.rate(arg)
	case "note":
		if err := c.st.Scanner.SetNotes(arg); err != nil {
			c.out.status("Notes", statusError, err.Error())
			return false
		}
		c.out.println("Notes saved.")
	case "m", "manual":
		if err := c.st.Scanner.BeginManualEntry(); err != nil {
			c.out.status("Manual entry", statusError, err.Error())
		}
	case "t", "torch":
		if !c.st.Scanner.ToggleTorch() {
			c.out.status("Torch", statusWarn, "not available")
		}
	case "s", "scan":
		c.begin(ctx)
	case "x", "cancel":
		c.st.Scanner.Reset()
		c.flush(ctx)
		if c.st.Scanner.State() == scanner.Idle {
			c.begin(ctx)
		}
	default:
		c.ticket(line)
	}
	return false
}

// ticket treats a non-command line as a typed or wedge-scanned ticket code.
func (c *scanConsole) ticket(line string) {
	switch c.st.Scanner.State() {
	case scanner.ManualEntry:
		if err := c.st.Scanner.ConfirmManualEntry(line); err != nil {
			c.out.status("Manual entry", statusError, err.Error())
		}
	case scanner.Scanning:
		if !c.st.Scanner.HandleDecode(line) {
			c.out.status("Scan", statusWarn, "code ignored")
		}
	default:
		c.out.printf("Unknown command %q (type ? for help)", line)
	}
}

func (c *scanConsole) consent(ctx context.Context, yes bool) {
	if _, err := c.st.Scanner.Consent(ctx, yes); err != nil {
		c.out.status("Consent", statusError, err.Error())
	}
}

func (c *scanConsole) rate(arg string) {
	rating, err := strconv.Atoi(arg)
	if err != nil {
		c.out.status("Rating", statusError, fmt.Sprintf("%q is not a number", arg))
		return
	}
	if err := c.st.Scanner.SetRating(rating); err != nil {
		c.out.status("Rating", statusError, err.Error())
		return
	}
	c.out.printf("Rating set to %d.", rating)
}

func (c *scanConsole) help() {
	c.out.println(renderTable(
		[]string{"Command", "Action"},
		[][]string{
			{"y / n", "Record consent or decline for the locked ticket"},
			{"r <0-5>", "Rate the conversation"},
			{"note <text>", "Attach notes"},
			{"m", "Switch to manual ticket entry"},
			{"t", "Toggle the torch"},
			{"s", "Start or retry the camera"},
			{"x", "Cancel the current ticket"},
			{"q", "Quit"},
		},
		nil,
	))
}
