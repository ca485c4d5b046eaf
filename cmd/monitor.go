// SPDX-License-Identifier: GPL-2.0-or-later

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/benchrig/kp184ctl/internal/logging"
	"github.com/benchrig/kp184ctl/pkg/kp184"
)

var monitorInterval time.Duration

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Continuously display load telemetry",
	Long: `Poll the load at a fixed interval and display mode, output state, voltage,
current, and power on a single updating line.

Press 'q' at any time to kill the load: the output is commanded off
immediately and the monitor exits. Ctrl+C behaves the same way. A poll that
times out shows the previous values marked [stale]; monitoring continues.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", kp184.DefaultPollInterval, "Polling interval")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	session, connInfo, err := OpenSession()
	if err != nil {
		return err
	}
	defer session.Close()

	fmt.Printf("kp184ctl - Telemetry Monitor\n")
	fmt.Printf("Connection: %s (address %d)\n", connInfo, session.Address())
	fmt.Printf("Press 'q' to kill the load and exit\n\n")

	poller := kp184.NewPoller(session, monitorInterval, printSnapshot)

	// Ctrl+C is a kill request too: output off before exit, never an
	// ambiguous half-running state.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	restore := watchKillKey(poller)
	defer restore()

	runErr := poller.Run(ctx)
	restore() // back to cooked mode before the final messages
	fmt.Println()

	if runErr != nil {
		logging.Error("polling stopped", "error", runErr)
		return runErr
	}
	logging.Info("load output commanded off", "state", poller.State().String())
	return nil
}

// printSnapshot renders one poll cycle on a single updating line.
func printSnapshot(s kp184.Snapshot) {
	onOff := "OFF"
	if s.OutputOn {
		onOff = "ON "
	}
	stale := ""
	if s.Stale {
		stale = " [stale]"
	}
	fmt.Printf("\rMode: %s | Load: %s | %7.3f V | %7.3f A | %7.2f W%s   ",
		s.Mode, onOff, s.Voltage, s.Current, s.Power, stale)
}

// watchKillKey puts the terminal in raw mode and watches stdin for the kill
// keystroke without ever blocking the polling loop. Returns the terminal
// restore function; callers must run it on every exit path.
func watchKillKey(poller *kp184.Poller) func() {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		// Not a terminal (e.g. piped input): no keystroke watcher, Ctrl+C
		// still works through the signal context.
		return func() {}
	}

	go func() {
		buf := make([]byte, 1)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil {
				return
			}
			if n == 0 {
				continue
			}
			switch buf[0] {
			case 'q', 'Q', 0x03: // 0x03 = Ctrl+C in raw mode
				poller.Kill()
				return
			}
		}
	}()

	return func() { term.Restore(fd, oldState) }
}
