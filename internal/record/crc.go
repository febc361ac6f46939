package record

import "hash/crc32"

// CalculateCRC computes the CRC32 (IEEE) of everything in a record after the
// checksum field: timestamp, sizes, key and value.
func CalculateCRC(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// ValidateCRC returns true if checksum matches the CRC32 of data.
func ValidateCRC(data []byte, checksum uint32) bool {
	return CalculateCRC(data) == checksum
}
