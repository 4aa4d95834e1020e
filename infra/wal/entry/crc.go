package entry

import "hash/crc32"

// CRC32/CRC32Valid guard each WAL frame against torn writes. Plain
// hash/crc32 (IEEE polynomial) — a checksum this small and
// performance-critical has no ecosystem replacement worth the import;
// every WAL in the pack (Loki's own flat wal.go included) reaches for
// hash/crc32 directly.
func CRC32(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

func CRC32Valid(b []byte, want uint32) bool {
	return crc32.ChecksumIEEE(b) == want
}
