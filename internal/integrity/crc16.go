package integrity

// CRC-16/ARC (reflected 0x8005 polynomial, zero init), the variant the
// xV4 header checksum uses.

var crc16Table [256]uint16

func init() {
	for i := range crc16Table {
		crc := uint16(i)
		for bit := 0; bit < 8; bit++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
		crc16Table[i] = crc
	}
}

// CRC16 computes the CRC-16/ARC checksum of data.
func CRC16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc = (crc >> 8) ^ crc16Table[byte(crc)^b]
	}
	return crc
}
