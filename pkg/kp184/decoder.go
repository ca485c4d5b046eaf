// SPDX-License-Identifier: Apache-2.0

package kp184

import (
	"bytes"
	"fmt"
	"time"
)

// Telemetry is the decoded common register bank: the device's reported state
// plus live measurements. Power is derived by the consumer (session/poller),
// not part of the wire response.
type Telemetry struct {
	Mode      Mode
	OutputOn  bool
	Voltage   float64 // V
	Current   float64 // A
	Raw       []byte  // complete response frame, CRC included
	Timestamp time.Time
}

// ExpectedLength reports the total response length implied by the leading
// bytes of a frame, in the Modbus-RTU manner: the function byte fixes the
// layout, and read responses carry their data length in the third byte.
// Returns -1 when more bytes are needed, or a FramingError for a function
// byte this protocol never produces.
func ExpectedLength(buf []byte) (int, error) {
	if len(buf) < readHeaderSize {
		return -1, nil
	}
	fn := buf[1]
	if fn&exceptionBit != 0 {
		return exceptionFrameSize, nil
	}
	switch fn {
	case FuncWriteRegister:
		return writeFrameSize, nil
	case FuncReadRegisters:
		return readHeaderSize + int(buf[2]) + crcSize, nil
	}
	return 0, &FramingError{Msg: fmt.Sprintf("unexpected function byte 0x%02X", fn)}
}

// verifyFrame runs the checks shared by every inbound frame: length sanity,
// checksum, source address, and device-reported exceptions.
func verifyFrame(raw []byte, address uint8) error {
	if len(raw) < exceptionFrameSize {
		return &FramingError{Msg: fmt.Sprintf("short frame (%d bytes)", len(raw))}
	}
	if !verifyChecksum(raw) {
		return &FramingError{Msg: "checksum mismatch"}
	}
	if raw[0] != address {
		return &FramingError{Msg: fmt.Sprintf("response from address %d, expected %d", raw[0], address)}
	}
	if raw[1]&exceptionBit != 0 {
		return &ProtocolError{Code: raw[2]}
	}
	return nil
}

// DecodeTelemetry validates and unpacks a common-bank read response.
// Layout after the 3-byte header: status byte (bit 0 = output on, bits 1-2 =
// mode), one reserved byte, voltage in mV as 3 bytes big-endian, current in
// mA as 3 bytes big-endian.
func DecodeTelemetry(raw []byte, address uint8) (Telemetry, error) {
	if err := verifyFrame(raw, address); err != nil {
		return Telemetry{}, err
	}
	if raw[1] != FuncReadRegisters {
		return Telemetry{}, &FramingError{Msg: fmt.Sprintf("function 0x%02X in status response", raw[1])}
	}

	count := int(raw[2])
	if len(raw) != readHeaderSize+count+crcSize {
		return Telemetry{}, &FramingError{
			Msg: fmt.Sprintf("length %d does not match declared %d data bytes", len(raw), count),
		}
	}
	if count < minStatusBytes {
		return Telemetry{}, &FramingError{Msg: fmt.Sprintf("status bank truncated (%d data bytes)", count)}
	}

	data := raw[readHeaderSize : readHeaderSize+count]
	status := data[0]

	mode, err := ModeFromValue(uint32(status >> 1 & 0x03))
	if err != nil {
		return Telemetry{}, err
	}

	voltageMV := uint32(data[2])<<16 | uint32(data[3])<<8 | uint32(data[4])
	currentMA := uint32(data[5])<<16 | uint32(data[6])<<8 | uint32(data[7])

	return Telemetry{
		Mode:      mode,
		OutputOn:  status&0x01 == 1,
		Voltage:   float64(voltageMV) / 1000.0,
		Current:   float64(currentMA) / 1000.0,
		Raw:       raw,
		Timestamp: time.Now(),
	}, nil
}

// DecodeWriteEcho validates a write response. The KP184 acknowledges a write
// by echoing the request frame byte for byte; a well-formed frame that does
// not match means the device executed something else, so the write is
// surfaced as a ProtocolError rather than trusted.
func DecodeWriteEcho(raw, request []byte, address uint8) error {
	if err := verifyFrame(raw, address); err != nil {
		return err
	}
	if !bytes.Equal(raw, request) {
		return &ProtocolError{Msg: "write not acknowledged: echo differs from request"}
	}
	return nil
}
