// SPDX-License-Identifier: Apache-2.0

package kp184

import (
	"encoding/binary"
	"fmt"
)

// Encode maps a Command to the exact byte layout the KP184 expects.
// Deterministic and pure: no I/O, and an out-of-range value fails with
// EncodingError before anything touches the wire.
func Encode(cmd Command) ([]byte, error) {
	switch cmd.Function {
	case FuncWriteRegister:
		return encodeWrite(cmd)
	case FuncReadRegisters:
		return encodeRead(cmd), nil
	}
	return nil, &EncodingError{Field: "function", Value: float64(cmd.Function), Max: FuncWriteRegister}
}

// encodeWrite builds a write-single-register frame:
// addr, 0x06, reg hi, reg lo, 0x00, 0x01 (register count), 0x04 (byte count),
// value as 4 bytes big-endian, CRC.
func encodeWrite(cmd Command) ([]byte, error) {
	if err := validateRegisterValue(cmd.Register, cmd.Value); err != nil {
		return nil, err
	}

	frame := make([]byte, 0, writeFrameSize)
	frame = append(frame,
		cmd.Address,
		FuncWriteRegister,
		byte(cmd.Register>>8),
		byte(cmd.Register),
		0x00, 0x01,
		0x04,
	)
	frame = binary.BigEndian.AppendUint32(frame, cmd.Value)
	return appendChecksum(frame), nil
}

// encodeRead builds a register read request:
// addr, 0x03, register hi/lo, two don't-care bytes, CRC.
func encodeRead(cmd Command) []byte {
	frame := make([]byte, 0, readRequestSize)
	frame = append(frame,
		cmd.Address,
		FuncReadRegisters,
		byte(cmd.Register>>8),
		byte(cmd.Register),
		0x00, 0x00,
	)
	return appendChecksum(frame)
}

// validateRegisterValue enforces the per-register limits from the manual,
// covering commands built by hand rather than through the builders.
func validateRegisterValue(register uint16, value uint32) error {
	var max uint32
	var field string
	switch register {
	case RegLoadOnOff:
		max, field = 1, "output state"
	case RegLoadMode:
		max, field = uint32(ModeCW), "mode"
	case RegSetCV:
		max, field = MaxVoltageMV, "voltage (mV)"
	case RegSetCC:
		max, field = MaxCurrentMA, "current (mA)"
	case RegSetCR:
		max, field = MaxResistanceMO, "resistance (mOhm)"
	case RegSetCW:
		max, field = MaxPowerDW, "power (0.1 W)"
	default:
		return &EncodingError{
			Field: fmt.Sprintf("register 0x%04X", register),
			Value: float64(value),
		}
	}
	if value > max {
		return &EncodingError{Field: field, Value: float64(value), Max: float64(max)}
	}
	return nil
}
