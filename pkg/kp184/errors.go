// SPDX-License-Identifier: Apache-2.0

package kp184

import (
	"errors"
	"fmt"
	"time"
)

// The error taxonomy is closed: every failure surfaced by this package is one
// of the types below, so callers can match with errors.As and are forced to
// decide per case. Only TimeoutError is recoverable; a timed-out transaction
// is reported and the handle stays usable, but it is never retried here.

// EncodingError reports an outbound parameter outside the device's documented
// range. The frame is never sent.
type EncodingError struct {
	Field string
	Value float64
	Max   float64
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("kp184: %s value %g out of range 0-%g", e.Field, e.Value, e.Max)
}

// FramingError reports a malformed or corrupt response frame. The frame is
// discarded, never partially trusted.
type FramingError struct {
	Msg string
}

func (e *FramingError) Error() string {
	return "kp184: bad frame: " + e.Msg
}

// ProtocolError reports a failure status from the device itself: an exception
// response, or a write the device did not echo back. Device state is treated
// as unchanged.
type ProtocolError struct {
	Code uint8 // exception code, 0 for unacknowledged writes
	Msg  string
}

func (e *ProtocolError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("kp184: device exception 0x%02X", e.Code)
	}
	return "kp184: " + e.Msg
}

// UnknownModeError reports a mode register value this package does not know.
// Forward-compatibility gap: surfaced, never guessed at.
type UnknownModeError struct {
	Value uint32
}

func (e *UnknownModeError) Error() string {
	return fmt.Sprintf("kp184: unknown mode value %d", e.Value)
}

// TimeoutError reports a transaction that received no complete response
// within its budget. Recoverable: the next transaction proceeds normally.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("kp184: %s: no response within %s", e.Op, e.Timeout)
}

// ConnectionError reports an unusable port. Fatal to the session.
type ConnectionError struct {
	Port string
	Err  error
}

func (e *ConnectionError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("kp184: port %s: %v", e.Port, e.Err)
	}
	return fmt.Sprintf("kp184: connection: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a transaction timeout, the one recoverable
// failure during polling.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
