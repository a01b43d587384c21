package main

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/auth"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/config"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/queue"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/state"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/station"
)

func newAuthCommand(ctx *commandContext) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the exhibitor this station records for",
	}

	authCmd.AddCommand(newAuthLoginCommand(ctx))
	authCmd.AddCommand(newAuthLogoutCommand(ctx))
	authCmd.AddCommand(newAuthStatusCommand(ctx))

	return authCmd
}

func newAuthLoginCommand(ctx *commandContext) *cobra.Command {
	var exhibitorID string
	var passcode string
	var force bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Verify an exhibitor ID and passcode",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			in := bufio.NewReader(cmd.InOrStdin())

			exhibitorID = strings.TrimSpace(exhibitorID)
			if exhibitorID == "" {
				exhibitorID = cfg.Station.ExhibitorID
			}
			if exhibitorID == "" {
				if exhibitorID, err = promptLine(out, in, "Exhibitor ID: "); err != nil {
					return fmt.Errorf("read exhibitor id: %w", err)
				}
			}
			if strings.TrimSpace(passcode) == "" {
				if passcode, err = promptLine(out, in, "Passcode: "); err != nil {
					return fmt.Errorf("read passcode: %w", err)
				}
			}

			return ctx.withStation(cmd, station.Options{}, func(st *station.Station) error {
				cached, ok, err := st.Auth.Current(cmd.Context())
				if err != nil {
					return fmt.Errorf("read cached identity: %w", err)
				}
				if ok && cached.ExhibitorID != exhibitorID {
					if pending := st.Scans.Size(); pending > 0 && !force {
						return fmt.Errorf("%d scan(s) recorded for %s have not synced; run `uukscan queue sync` first or pass --force", pending, cached.ExhibitorID)
					}
					if _, err := st.ChangeExhibitor(cmd.Context()); err != nil {
						return err
					}
				}

				id, err := st.Login(cmd.Context(), exhibitorID, passcode)
				switch {
				case errors.Is(err, auth.ErrInvalidCredential):
					return errors.New("invalid exhibitor ID or passcode")
				case errors.Is(err, auth.ErrOfflineUnverified):
					return errors.New("relay unreachable and this exhibitor was never verified on this station; connect and try again")
				case err != nil:
					return err
				}
				fmt.Fprintf(out, "Logged in as %s\n", id.DisplayName())
				if !st.Monitor.Online() {
					fmt.Fprintln(out, "Offline: accepted from the previous verification on this station")
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&exhibitorID, "exhibitor", "e", "", "Exhibitor ID (defaults to station.exhibitor_id)")
	cmd.Flags().StringVarP(&passcode, "passcode", "p", "", "Passcode; prompted when omitted")
	cmd.Flags().BoolVar(&force, "force", false, "Switch exhibitor even when scans have not synced")
	return cmd
}

func newAuthLogoutCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the verified exhibitor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStation(cmd, station.Options{}, func(st *station.Station) error {
				pending := st.Scans.Size()
				if err := st.Logout(cmd.Context()); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, "Logged out")
				if pending > 0 {
					fmt.Fprintf(out, "%d scan(s) still waiting to sync; they keep their exhibitor ID\n", pending)
				}
				return nil
			})
		},
	}
}

func newAuthStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the verified exhibitor and today's count",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				queues, err := loadQueues(cmd.Context(), store, cmd.ErrOrStderr(), []queue.Name{queue.NameScan})
				if err != nil {
					return err
				}
				snapshot, err := state.Load(cmd.Context(), store, queues[0])
				if err != nil {
					return err
				}
				id, ok, err := auth.NewVerifier(cfg, store, nil).Current(cmd.Context())
				if err != nil {
					return fmt.Errorf("read cached identity: %w", err)
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader("Station", colorize) {
					fmt.Fprintln(out, line)
				}
				if ok {
					fmt.Fprintln(out, renderStatusLine("Exhibitor", statusOK, id.DisplayName(), colorize))
				} else {
					fmt.Fprintln(out, renderStatusLine("Exhibitor", statusWarn, "not logged in", colorize))
				}
				snap := snapshot.Snapshot()
				fmt.Fprintln(out, renderStatusLine("Scans today", statusInfo, strconv.Itoa(snap.ScanTotal), colorize))
				resetDate := snap.LastResetDate
				if resetDate == "" {
					resetDate = "never"
				}
				fmt.Fprintln(out, renderStatusLine("Counter reset", statusInfo, resetDate, colorize))
				pendingKind := statusOK
				if snapshot.PendingScans() > 0 {
					pendingKind = statusWarn
				}
				fmt.Fprintln(out, renderStatusLine("Unsynced scans", pendingKind, strconv.Itoa(snapshot.PendingScans()), colorize))
				return nil
			})
		},
	}
}
