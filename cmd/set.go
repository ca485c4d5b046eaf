// SPDX-License-Identifier: GPL-2.0-or-later

package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/benchrig/kp184ctl/pkg/kp184"
)

// One-shot commands mirroring the load's front-panel operations: select a
// mode, program a setpoint, switch the output. Each opens a session, runs a
// single transaction, and exits.

var modeCmd = &cobra.Command{
	Use:   "mode {CV|CC|CR|CW}",
	Short: "Select the load's operating mode",
	Long: `Select the operating mode of the load.

Modes:
  CV - constant voltage
  CC - constant current
  CR - constant resistance
  CW - constant power`,
	Args: cobra.ExactArgs(1),
	RunE: runMode,
}

var voltageCmd = &cobra.Command{
	Use:   "voltage <volts>",
	Short: "Program the CV setpoint (0-150 V)",
	Args:  cobra.ExactArgs(1),
	RunE:  setpointRunner(kp184.FieldVoltage),
}

var currentCmd = &cobra.Command{
	Use:   "current <amps>",
	Short: "Program the CC setpoint (0-30 A)",
	Args:  cobra.ExactArgs(1),
	RunE:  setpointRunner(kp184.FieldCurrent),
}

var resistanceCmd = &cobra.Command{
	Use:   "resistance <ohms>",
	Short: "Program the CR setpoint (0-80 Ohm)",
	Args:  cobra.ExactArgs(1),
	RunE:  setpointRunner(kp184.FieldResistance),
}

var powerCmd = &cobra.Command{
	Use:   "power <watts>",
	Short: "Program the CW setpoint (0-250 W)",
	Args:  cobra.ExactArgs(1),
	RunE:  setpointRunner(kp184.FieldPower),
}

var onCmd = &cobra.Command{
	Use:   "on",
	Short: "Switch the load output on",
	Args:  cobra.NoArgs,
	RunE:  outputRunner(true),
}

var offCmd = &cobra.Command{
	Use:   "off",
	Short: "Switch the load output off",
	Args:  cobra.NoArgs,
	RunE:  outputRunner(false),
}

func init() {
	rootCmd.AddCommand(modeCmd)
	rootCmd.AddCommand(voltageCmd)
	rootCmd.AddCommand(currentCmd)
	rootCmd.AddCommand(resistanceCmd)
	rootCmd.AddCommand(powerCmd)
	rootCmd.AddCommand(onCmd)
	rootCmd.AddCommand(offCmd)
}

// parseMode accepts the front-panel names, case-insensitive.
func parseMode(s string) (kp184.Mode, error) {
	switch strings.ToUpper(s) {
	case "CV":
		return kp184.ModeCV, nil
	case "CC":
		return kp184.ModeCC, nil
	case "CR":
		return kp184.ModeCR, nil
	case "CW":
		return kp184.ModeCW, nil
	}
	return 0, fmt.Errorf("unknown mode %q (use CV, CC, CR, or CW)", s)
}

func runMode(cmd *cobra.Command, args []string) error {
	mode, err := parseMode(args[0])
	if err != nil {
		return err
	}

	session, _, err := OpenSession()
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.SetMode(mode); err != nil {
		return err
	}
	fmt.Printf("Mode set to %s\n", mode)
	return nil
}

func setpointRunner(field kp184.Field) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		value, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %q", field, args[0])
		}

		session, _, err := OpenSession()
		if err != nil {
			return err
		}
		defer session.Close()

		if err := session.SetSetpoint(field, value); err != nil {
			return err
		}
		fmt.Printf("Setpoint %s = %g\n", field, value)
		return nil
	}
}

func outputRunner(on bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		session, _, err := OpenSession()
		if err != nil {
			return err
		}
		defer session.Close()

		if err := session.SetOutput(on); err != nil {
			return err
		}
		if on {
			fmt.Println("Load output ON")
		} else {
			fmt.Println("Load output OFF")
		}
		return nil
	}
}
