package modbus

// CRC16 计算Modbus RTU的CRC-16校验码
// Returns the raw register value; on the wire the low byte goes first.
func CRC16(data []byte) uint16 {
	var crc uint16 = 0xFFFF
	for i := 0; i < len(data); i++ {
		crc ^= uint16(data[i])
		for j := 8; j != 0; j-- {
			if (crc & 0x0001) != 0 {
				crc >>= 1
				crc ^= 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// AppendCRC 追加CRC (低字节在前，高字节在后)
func AppendCRC(frame []byte) []byte {
	crc := CRC16(frame)
	return append(frame, byte(crc&0xFF), byte(crc>>8))
}
