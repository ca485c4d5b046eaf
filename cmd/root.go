// SPDX-License-Identifier: GPL-2.0-or-later

package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string

	// Device address (must match the front-panel setting)
	deviceAddress uint8

	// WebSocket bridge flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool
)

var rootCmd = &cobra.Command{
	Use:   "kp184ctl",
	Short: "Kunkin KP184 DC Load Controller",
	Long: `kp184ctl - Command and telemetry tool for the Kunkin KP184 programmable
DC electronic load.

Provides one-shot commands (mode, setpoints, output on/off, status), a
continuous telemetry monitor, and an interactive control TUI. In the monitor
and the TUI, pressing 'q' commands the load output off before exiting.

The serial link is fixed by the device at 9600 baud 8-N-1; only the port and
the device address are configurable, and the address must match the load's
front-panel setting exactly or every transaction times out.

Connection modes:
  Serial:    --port /dev/ttyUSB0
  WebSocket: --url ws://host/path [--username user]   (remote serial bridge)

For WebSocket authentication, the password is read from the KP184_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell
history.`,
	Version: "1.0.0",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().Uint8VarP(&deviceAddress, "address", "a", 1, "Device address (1-250)")

	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
