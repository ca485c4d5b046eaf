// SPDX-License-Identifier: GPL-2.0-or-later

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/benchrig/kp184ctl/pkg/kp184"
)

var frameTestCmd = &cobra.Command{
	Use:   "frame_test",
	Short: "Print the wire frames for each command type",
	Long: `Encode one frame of every command type and print the exact bytes that
would go on the wire, checksum included.

Useful for checking the encoder against the KP184 communication manual, or
for driving the device from a different tool. No connection is opened.`,
	Args: cobra.NoArgs,
	RunE: runFrameTest,
}

func init() {
	rootCmd.AddCommand(frameTestCmd)
}

func hexDump(frame []byte) string {
	parts := make([]string, len(frame))
	for i, b := range frame {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}

func runFrameTest(cmd *cobra.Command, args []string) error {
	type sample struct {
		label string
		build func() (kp184.Command, error)
	}

	samples := []sample{
		{"set mode CC", func() (kp184.Command, error) {
			return kp184.NewSetModeCommand(deviceAddress, kp184.ModeCC)
		}},
		{"set current 1.200 A", func() (kp184.Command, error) {
			return kp184.NewSetpointCommand(deviceAddress, kp184.FieldCurrent, 1.2)
		}},
		{"set voltage 12.000 V", func() (kp184.Command, error) {
			return kp184.NewSetpointCommand(deviceAddress, kp184.FieldVoltage, 12.0)
		}},
		{"set resistance 8.000 Ohm", func() (kp184.Command, error) {
			return kp184.NewSetpointCommand(deviceAddress, kp184.FieldResistance, 8.0)
		}},
		{"set power 50.0 W", func() (kp184.Command, error) {
			return kp184.NewSetpointCommand(deviceAddress, kp184.FieldPower, 50.0)
		}},
		{"output on", func() (kp184.Command, error) {
			return kp184.NewOutputCommand(deviceAddress, true), nil
		}},
		{"output off", func() (kp184.Command, error) {
			return kp184.NewOutputCommand(deviceAddress, false), nil
		}},
		{"read status", func() (kp184.Command, error) {
			return kp184.NewReadStatusCommand(deviceAddress), nil
		}},
	}

	fmt.Printf("kp184ctl - Frame Test (address %d)\n\n", deviceAddress)

	for _, s := range samples {
		command, err := s.build()
		if err != nil {
			return err
		}
		frame, err := kp184.Encode(command)
		if err != nil {
			return err
		}
		fmt.Printf("%-26s %s\n", s.label+":", hexDump(frame))
	}

	return nil
}
