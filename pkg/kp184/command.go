// SPDX-License-Identifier: Apache-2.0

package kp184

// Command is one outbound operation, immutable once built: a function code
// plus its register and value. Commands are created per transaction and
// discarded after encoding.
type Command struct {
	Address  uint8
	Function uint8
	Register uint16
	Value    uint32
}

// Command builder functions create Command values ready for encoding. They
// validate parameters against the device's documented limits up front, so an
// out-of-range setpoint fails locally with EncodingError and is never sent.

// NewSetModeCommand selects the operating mode.
func NewSetModeCommand(address uint8, mode Mode) (Command, error) {
	if _, err := ModeFromValue(uint32(mode)); err != nil {
		return Command{}, err
	}
	return Command{
		Address:  address,
		Function: FuncWriteRegister,
		Register: RegLoadMode,
		Value:    uint32(mode),
	}, nil
}

// NewSetpointCommand sets the regulation target for one field, given in
// display units (V, A, Ohm, W). The value is scaled to device units and
// range-checked; the exact boundary values are valid.
func NewSetpointCommand(address uint8, field Field, value float64) (Command, error) {
	var (
		reg   uint16
		scale float64
		max   uint32
		limit float64
		fname string
	)
	switch field {
	case FieldVoltage:
		reg, scale, max, limit, fname = RegSetCV, 1000, MaxVoltageMV, 150, "voltage"
	case FieldCurrent:
		reg, scale, max, limit, fname = RegSetCC, 1000, MaxCurrentMA, 30, "current"
	case FieldResistance:
		reg, scale, max, limit, fname = RegSetCR, 1000, MaxResistanceMO, 80, "resistance"
	case FieldPower:
		reg, scale, max, limit, fname = RegSetCW, 10, MaxPowerDW, 250, "power"
	default:
		return Command{}, &EncodingError{Field: "field", Value: float64(field), Max: float64(FieldPower)}
	}

	scaled := int64(value * scale)
	if value < 0 || scaled < 0 || scaled > int64(max) {
		return Command{}, &EncodingError{Field: fname, Value: value, Max: limit}
	}
	return Command{
		Address:  address,
		Function: FuncWriteRegister,
		Register: reg,
		Value:    uint32(scaled),
	}, nil
}

// NewOutputCommand turns the load output on or off.
func NewOutputCommand(address uint8, on bool) Command {
	var v uint32
	if on {
		v = 1
	}
	return Command{
		Address:  address,
		Function: FuncWriteRegister,
		Register: RegLoadOnOff,
		Value:    v,
	}
}

// NewReadStatusCommand reads the common register bank: on/off state, mode,
// and the live voltage and current measurements in one transaction.
func NewReadStatusCommand(address uint8) Command {
	return Command{
		Address:  address,
		Function: FuncReadRegisters,
		Register: statusBankAddr,
	}
}
