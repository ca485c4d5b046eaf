// SPDX-License-Identifier: GPL-2.0-or-later
//
// kp184ctl - Kunkin KP184 DC Load Controller
//
// A CLI tool for commanding and monitoring a Kunkin KP184 programmable DC
// electronic load over its RS-232 control protocol.

package main

import (
	"os"

	"github.com/benchrig/kp184ctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
