// SPDX-License-Identifier: GPL-2.0-or-later

package cmd

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/benchrig/kp184ctl/internal/logging"
	"github.com/benchrig/kp184ctl/pkg/kp184"
)

var controlInterval time.Duration

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for controlling the load",
	Long: `Control the KP184 via an interactive terminal UI.

Features:
  - Live telemetry (mode, output state, voltage, current, power)
  - Mode selection and mode-specific setpoint entry
  - Output on/off
  - Event logging

Tab switches between the mode selector, the setpoint input, and the output
button. Enter applies the focused control. Pressing 'q' kills the load:
the output is commanded off before the TUI exits, and the same happens on
Ctrl+C or any fatal link error.

Supports both serial and WebSocket bridge connections.`,
	Args: cobra.NoArgs,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
	controlCmd.Flags().DurationVar(&controlInterval, "interval", kp184.DefaultPollInterval, "Telemetry refresh interval")
}

func runControl(cmd *cobra.Command, args []string) error {
	session, connInfo, err := OpenSession()
	if err != nil {
		return err
	}
	defer session.Close()

	// The poller runs beside the TUI and feeds it snapshots. Its lifetime is
	// bounded by the program: quitting the TUI kills the poller, and the
	// poller stopping (kill or fatal error) quits the TUI. The program
	// pointer is assigned before the poller goroutine starts, so the
	// snapshot callback never sees it nil.
	var p *tea.Program
	poller := kp184.NewPoller(session, controlInterval, func(s kp184.Snapshot) {
		p.Send(snapshotMsg(s))
	})

	m := initialControlModel(session, connInfo, poller)
	p = tea.NewProgram(m, tea.WithAltScreen())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pollerDone := make(chan error, 1)
	go func() {
		err := poller.Run(ctx)
		pollerDone <- err
		p.Send(pollerDoneMsg{err: err})
	}()

	if _, err := p.Run(); err != nil {
		poller.Kill()
		<-pollerDone
		return fmt.Errorf("TUI error: %v", err)
	}

	// Normal TUI exit: make sure the poller has finished its shutdown path
	// (output commanded off) before the session closes.
	poller.Kill()
	runErr := <-pollerDone

	if runErr != nil {
		logging.Error("polling stopped", "error", runErr)
		return runErr
	}
	return nil
}
