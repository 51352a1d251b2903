package otp

import "errors"

// crcOKResidue is the value CalculateCRC settles on for an uncorrupted block.
// The trailing two CRC bytes are part of the covered data, so a valid block
// does not sum to zero.
const crcOKResidue = 0xf0b8

var ErrChecksum = errors.New("otp: crc residue mismatch")

// CalculateCRC computes the bit-reflected CRC-16/X-25 residue of buf.
func CalculateCRC(buf []byte) uint16 {
	crc := uint16(0xffff)
	for _, b := range buf {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			last := crc & 1
			crc >>= 1
			if last == 1 {
				crc ^= 0x8408
			}
		}
	}
	return crc
}

// CheckCRC reports whether buf is an uncorrupted 16-byte token block.
func CheckCRC(buf []byte) bool {
	return CalculateCRC(buf) == crcOKResidue
}
