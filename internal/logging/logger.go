// SPDX-License-Identifier: GPL-2.0-or-later

package logging

import (
	"log/slog"
	"os"
)

var Logger = newLogger()

func newLogger() *slog.Logger {
	level := new(slog.LevelVar)
	if os.Getenv("LOG_LEVEL") == "debug" {
		level.Set(slog.LevelDebug)
	}

	// Stderr so structured logs never interleave with telemetry output.
	var handler slog.Handler
	if os.Getenv("LOG_FORMAT") == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}

// Shortcut helpers
var (
	Info  = Logger.Info
	Warn  = Logger.Warn
	Error = Logger.Error
	Debug = Logger.Debug
)
