package mavlink

import (
	"github.com/sigurn/crc16"
)

// The MAVLink checksum is the X.25 accumulator without the final
// inversion, which is catalogued as CRC-16/MCRF4XX.
var crcTable = crc16.MakeTable(crc16.CRC16_MCRF4XX)

// Checksum runs the MAVLink X.25 accumulator over data.
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// X25 returns the standard CRC-16/X-25 of data, i.e. the MAVLink
// register with the final XOR applied.
func X25(data []byte) uint16 {
	return ^Checksum(data)
}

// FrameChecksum is the checksum of an unsigned frame (without the magic
// byte) followed by the message's crc_extra.
func FrameChecksum(frame []byte, crcExtra byte) uint16 {
	crc := crc16.Init(crcTable)
	crc = crc16.Update(crc, frame, crcTable)
	crc = crc16.Update(crc, []byte{crcExtra}, crcTable)
	return crc16.Complete(crc, crcTable)
}
