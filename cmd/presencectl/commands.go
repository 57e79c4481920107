package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dkeye/octopresence/internal/app/presence"
	"github.com/dkeye/octopresence/internal/core"
	"github.com/dkeye/octopresence/internal/domain"
)

func newCountCmd(a *app) *cobra.Command {
	var (
		threshold time.Duration
		at        int64
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "count <group>",
		Short: "Count channels touched within the liveness window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []core.CountOption
			if cmd.Flags().Changed("threshold") {
				opts = append(opts, core.WithThreshold(threshold))
			}
			if at > 0 {
				opts = append(opts, core.At(time.Unix(at, 0)))
			}
			n, err := a.presence.CountConnections(args[0], opts...)
			if err != nil {
				return fmt.Errorf("count %s: %w", args[0], err)
			}
			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"group":       args[0],
					"connections": n,
				})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
			return err
		},
	}
	cmd.Flags().DurationVar(&threshold, "threshold", 0, "liveness window (default from config)")
	cmd.Flags().Int64Var(&at, "at", 0, "evaluate at this unix time instead of now")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newTouchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "touch <group> <channel>",
		Short: "Add or refresh a channel's membership",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := domain.ParseGroupName(args[0]); err != nil {
				return err
			}
			if err := a.layer.Touch(args[0], domain.ChannelName(args[1])); err != nil {
				return fmt.Errorf("touch %s: %w", args[0], err)
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "touched %s in %s\n", args[1], args[0])
			return err
		},
	}
}

func newDiscardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "discard <group> <channel>",
		Short: "Remove a channel from a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.layer.Discard(args[0], domain.ChannelName(args[1])); err != nil {
				return fmt.Errorf("discard %s: %w", args[0], err)
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "discarded %s from %s\n", args[1], args[0])
			return err
		},
	}
}

func newNotifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "notify <group>",
		Short: "Replay a connection change for a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.presence.OnConnectionChange(args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "notified %s\n", args[0])
			return err
		},
	}
}

func newSendStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "send-status <printer-id>",
		Short: "Tell web viewers the printer status changed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.presence.SendStatusToWeb(domain.PrinterID(args[0])); err != nil {
				return fmt.Errorf("send status: %w", err)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "sent")
			return err
		},
	}
}

func newViewingCmd(a *app) *cobra.Command {
	var channel string
	cmd := &cobra.Command{
		Use:   "viewing <printer-id>",
		Short: "Send the current viewing status to the printer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []presence.Option
			if channel != "" {
				opts = append(opts, presence.ToChannel(domain.ChannelName(channel)))
			}
			if err := a.presence.SendViewingStatus(domain.PrinterID(args[0]), opts...); err != nil {
				return fmt.Errorf("viewing status: %w", err)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "sent")
			return err
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "send to this channel instead of the printer group")
	return cmd
}

func newSendCmd(a *app) *cobra.Command {
	var (
		payload string
		channel string
	)
	cmd := &cobra.Command{
		Use:   "send <printer-id>",
		Short: "Send a JSON object to the printer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body map[string]any
			if err := json.Unmarshal([]byte(payload), &body); err != nil {
				return fmt.Errorf("payload must be a JSON object: %w", err)
			}
			var opts []presence.Option
			if channel != "" {
				opts = append(opts, presence.ToChannel(domain.ChannelName(channel)))
			}
			if err := a.presence.SendToPrinter(domain.PrinterID(args[0]), body, opts...); err != nil {
				return fmt.Errorf("send: %w", err)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "sent")
			return err
		},
	}
	cmd.Flags().StringVar(&payload, "payload", "{}", "JSON object to deliver")
	cmd.Flags().StringVar(&channel, "channel", "", "send to this channel instead of the printer group")
	return cmd
}

func newShouldWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "should-watch <printer-id>",
		Short: "Evaluate and send the printer's should_watch flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.stack.Printers == nil {
				return errNoPrinters
			}
			p, err := a.stack.Printers.Printer(cmd.Context(), domain.PrinterID(args[0]))
			if err != nil {
				return err
			}
			if err := a.presence.SendShouldWatchStatus(p); err != nil {
				return fmt.Errorf("should watch: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "sent")
			return err
		},
	}
}
