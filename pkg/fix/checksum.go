package fix

import "fmt"

// Checksum computes the FIX checksum of data: the byte sum modulo 256.
func Checksum(data []byte) uint8 {
	var sum uint32
	for _, b := range data {
		sum += uint32(b)
	}
	return uint8(sum % 256)
}

// FormatChecksum renders a checksum as the three-digit zero-padded
// ASCII form required by tag 10.
func FormatChecksum(sum uint8) string {
	return fmt.Sprintf("%03d", sum)
}
