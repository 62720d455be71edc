package smbus

// crc8Table is CRC-8 with polynomial x^8 + x^2 + x + 1 (0x07), the SMBus PEC.
var crc8Table = func() [256]byte {
	var t [256]byte
	for i := range t {
		c := byte(i)
		for range 8 {
			if c&0x80 != 0 {
				c = c<<1 ^ 0x07
			} else {
				c <<= 1
			}
		}
		t[i] = c
	}
	return t
}()

// PEC computes the SMBus packet error code over b.
func PEC(b []byte) byte {
	var crc byte
	for _, v := range b {
		crc = crc8Table[crc^v]
	}
	return crc
}
