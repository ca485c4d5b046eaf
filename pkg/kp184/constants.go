// SPDX-License-Identifier: Apache-2.0

// Package kp184 implements the serial control protocol of the Kunkin KP184
// programmable DC electronic load.
//
// The KP184 speaks a Modbus-RTU flavoured request/response protocol over
// RS-232: fixed-layout binary frames with a CRC-16/Modbus trailer and a
// strict half-duplex transaction discipline (one request in flight, one
// response back). This package provides frame encoding/decoding, the serial
// transport with transaction semantics, a stateful device session, and a
// telemetry polling loop with an always-responsive kill path.
//
// Register addresses, numeric scaling, and limits reproduce the KP184
// communication manual bit-for-bit; they are not negotiable at runtime.
package kp184

import "time"

// Function codes
const (
	FuncReadRegisters = 0x03 // read the common register bank
	FuncWriteRegister = 0x06 // write a single 4-byte register
	exceptionBit      = 0x80 // set in the function byte of device error responses
)

// Register addresses
const (
	RegLoadOnOff = 0x010E
	RegLoadMode  = 0x0110
	RegSetCV     = 0x0112 // constant voltage setpoint, mV
	RegSetCC     = 0x0116 // constant current setpoint, mA
	RegSetCR     = 0x011A // constant resistance setpoint, mOhm
	RegSetCW     = 0x011E // constant power setpoint, 0.1 W
	RegMeasureU  = 0x0122
	RegMeasureI  = 0x0126
)

// statusBankAddr is the special register address that reads back the whole
// common status bank (on/off, mode, measured voltage and current) in one
// transaction.
const statusBankAddr = 0x0300

// Frame layout sizes
const (
	writeFrameSize     = 13 // addr + func + reg(2) + count(2) + bytelen + value(4) + crc(2)
	readRequestSize    = 8
	readHeaderSize     = 3 // addr + func + data byte count
	exceptionFrameSize = 5
	crcSize            = 2

	// minStatusBytes is the smallest data section the status bank decode
	// needs: status byte, reserved byte, 3 voltage bytes, 3 current bytes.
	minStatusBytes = 8
)

// Serial line parameters fixed by the device. The front-panel baud setting
// must match or every transaction times out.
const (
	BaudRate       = 9600
	DefaultAddress = 1
)

// Transaction timing
const (
	// DefaultTimeout bounds ordinary transactions.
	DefaultTimeout = 1 * time.Second
	// StopTimeout bounds the emergency output-off path. It is the shortest
	// timeout in the system: the kill path must never wait on a sick link.
	StopTimeout = 250 * time.Millisecond
	// DefaultPollInterval is the telemetry refresh period.
	DefaultPollInterval = 1 * time.Second
)

// Setpoint scaling and limits, in device units
const (
	MaxVoltageMV    = 150000 // 150 V
	MaxCurrentMA    = 30000  // 30 A
	MaxResistanceMO = 80000  // 80 Ohm
	MaxPowerDW      = 2500   // 250 W, 0.1 W units
)

// Mode is the operating mode of the load.
type Mode uint8

// Operating mode register values
const (
	ModeCV Mode = 0 // constant voltage
	ModeCC Mode = 1 // constant current
	ModeCR Mode = 2 // constant resistance
	ModeCW Mode = 3 // constant power
)

// String returns the front-panel name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeCV:
		return "CV"
	case ModeCC:
		return "CC"
	case ModeCR:
		return "CR"
	case ModeCW:
		return "CW"
	}
	return "UNKNOWN"
}

// ModeFromValue maps a mode register value to a Mode. Values outside the
// documented range fail with UnknownModeError rather than defaulting.
func ModeFromValue(v uint32) (Mode, error) {
	if v > uint32(ModeCW) {
		return 0, &UnknownModeError{Value: v}
	}
	return Mode(v), nil
}

// Field identifies a setpoint register.
type Field uint8

// Setpoint fields, one per operating mode
const (
	FieldVoltage Field = iota
	FieldCurrent
	FieldResistance
	FieldPower
)

// String returns the field name with its unit.
func (f Field) String() string {
	switch f {
	case FieldVoltage:
		return "voltage (V)"
	case FieldCurrent:
		return "current (A)"
	case FieldResistance:
		return "resistance (Ohm)"
	case FieldPower:
		return "power (W)"
	}
	return "unknown"
}

// FieldForMode returns the setpoint field the given mode regulates.
func FieldForMode(m Mode) Field {
	switch m {
	case ModeCV:
		return FieldVoltage
	case ModeCC:
		return FieldCurrent
	case ModeCR:
		return FieldResistance
	default:
		return FieldPower
	}
}
