package xfs

import "hash/crc32"

// castagnoliTable is the CRC32C polynomial XFS v5 metadata checksums use.
// The teacher's ext4 package vendors its own crc32c table (filesystem/ext4/
// crc); that package was not available in this reader's dependency set, and
// CRC32C is otherwise just the standard Castagnoli polynomial, so this uses
// the standard library's hash/crc32 rather than hand-rolling a table.
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

func crc32cOf(b []byte) uint32 {
	return crc32.Checksum(b, castagnoliTable)
}

// crc32cIncremental computes CRC32C the way XFS v5 verifies it: the
// checksum field itself is zeroed before hashing, and the whole block
// (not just a header) is covered.
func crc32cIncremental(b []byte, crcOffset int) uint32 {
	buf := make([]byte, len(b))
	copy(buf, b)
	for i := 0; i < 4; i++ {
		buf[crcOffset+i] = 0
	}
	return crc32cOf(buf)
}
