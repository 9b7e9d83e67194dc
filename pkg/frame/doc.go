// Package frame implements the binary frame format spoken with the
// companion microcontroller.
package frame

// Every frame starts with a fixed two byte sync marker followed by a
// nine byte header (including the marker), the payload and a CRC-16/MODBUS
// computed over everything between the marker and the CRC.
//
//	+------+------+-----+------+-----+-------+-------+------+-------+
//	| 0xAA | 0x55 | ver | type | seq | cmd16 | len16 | data | crc16 |
//	+------+------+-----+------+-----+-------+-------+------+-------+
//
// Multi-byte fields are big-endian. Many peers never verify the CRC, so
// checking it on receive is optional (see Decoder.Strict).
