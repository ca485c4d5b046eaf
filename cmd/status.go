// SPDX-License-Identifier: GPL-2.0-or-later

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Read and print one telemetry snapshot",
	Long: `Read the load's common register bank once and print the result:
operating mode, output state, measured voltage and current, and the derived
power.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	session, connInfo, err := OpenSession()
	if err != nil {
		return err
	}
	defer session.Close()

	telemetry, err := session.ReadTelemetry()
	if err != nil {
		return err
	}

	onOff := "OFF"
	if telemetry.OutputOn {
		onOff = "ON"
	}

	fmt.Printf("Connection: %s (address %d)\n", connInfo, session.Address())
	fmt.Printf("Mode:    %s\n", telemetry.Mode)
	fmt.Printf("Output:  %s\n", onOff)
	fmt.Printf("Voltage: %.3f V\n", telemetry.Voltage)
	fmt.Printf("Current: %.3f A\n", telemetry.Current)
	fmt.Printf("Power:   %.2f W\n", telemetry.Voltage*telemetry.Current)
	return nil
}
