// SPDX-License-Identifier: Apache-2.0

package kp184

import "github.com/sigurn/crc16"

var crcTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// Checksum computes the CRC-16/Modbus checksum the KP184 appends to every
// frame (polynomial 0xA001 reflected, initial value 0xFFFF).
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// appendChecksum appends the checksum low byte first, matching the device's
// wire order.
func appendChecksum(frame []byte) []byte {
	crc := Checksum(frame)
	return append(frame, byte(crc&0xFF), byte(crc>>8))
}

// verifyChecksum checks the trailing checksum of a complete frame.
func verifyChecksum(frame []byte) bool {
	if len(frame) < crcSize+1 {
		return false
	}
	body := frame[:len(frame)-crcSize]
	want := uint16(frame[len(frame)-2]) | uint16(frame[len(frame)-1])<<8
	return Checksum(body) == want
}
