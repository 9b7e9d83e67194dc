package frame

const (
	crcInitial    uint16 = 0xffff
	crcPolynomial uint16 = 0xa001 // reflected 0x8005
)

var crcTable = makeCRCTable()

func makeCRCTable() (t [256]uint16) {
	for n := range t {
		crc := uint16(n)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ crcPolynomial
			} else {
				crc >>= 1
			}
		}
		t[n] = crc
	}
	return
}

// CRC16 computes CRC-16/MODBUS of data.
func CRC16(data []byte) uint16 {
	return UpdateCRC16(crcInitial, data)
}

// UpdateCRC16 continues a CRC-16/MODBUS computation.
func UpdateCRC16(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc = (crc >> 8) ^ crcTable[byte(crc)^b]
	}
	return crc
}
