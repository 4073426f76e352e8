package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"magnetswipe"
)

// ============================================================================
// swipe-ctl - Command-line IPC Client
// ============================================================================
// Sends bridge commands to magnetswiped over its Unix domain socket.
//
// Usage:
//   swipe-ctl start
//   swipe-ctl stop
//   swipe-ctl status
//   swipe-ctl raw <action>
// ============================================================================

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		socketPath string
		timeout    time.Duration
	)

	root := &cobra.Command{
		Use:           "swipe-ctl",
		Short:         "Control the magnetswiped daemon via IPC",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&socketPath, "socket", magnetswipe.DefaultIPCSocket, "Unix domain socket path")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 3*time.Second, "IPC round-trip timeout")

	send := func(action string) error {
		resp, err := magnetswipe.SendIPCCommand(socketPath, action, timeout)
		if err != nil {
			return err
		}
		if resp.Snapshot != nil {
			out, err := json.MarshalIndent(resp.Snapshot, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}
		fmt.Println(resp.Status)
		return nil
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "start",
			Short: "Start listening to the magnetometer",
			Args:  cobra.NoArgs,
			RunE:  func(*cobra.Command, []string) error { return send(magnetswipe.ActionStart) },
		},
		&cobra.Command{
			Use:   "stop",
			Short: "Stop listening (only acts while running)",
			Args:  cobra.NoArgs,
			RunE:  func(*cobra.Command, []string) error { return send(magnetswipe.ActionStop) },
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the detector snapshot",
			Args:  cobra.NoArgs,
			RunE:  func(*cobra.Command, []string) error { return send(magnetswipe.ActionStatus) },
		},
		&cobra.Command{
			Use:   "raw <action>",
			Short: "Send an arbitrary action string",
			Args:  cobra.ExactArgs(1),
			RunE:  func(_ *cobra.Command, args []string) error { return send(args[0]) },
		},
	)
	return root
}
