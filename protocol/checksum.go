package protocol

// ChecksumMask is the 16-bit mask used in checksum calculations
const ChecksumMask = 0xFFFF

// calculatePacketChecksum computes the 16-bit checksum for a frame:
// sum all bytes, then 2's complement.
//
// The checksum covers every byte after SOP up to, but excluding, the
// CHECKSUM and EOP fields.
func calculatePacketChecksum(data []byte) uint16 {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	// Return 2's complement: invert and add 1
	return 1 + (ChecksumMask ^ sum)
}
