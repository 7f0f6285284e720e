package xfs

// decomposeInodeNumber splits an absolute inode number into (AG index,
// AG-relative block, offset within block) per spec.md §3: low
// InodeOffsetBits bits are the offset within the inode block, the next
// AGBlockBits bits are the relative block within the AG, and the
// remaining high bits are the AG index.
func decomposeInodeNumber(geo Geometry, ino uint64) (agno uint32, agbno uint32, agbino uint32) {
	offsetMask := uint64(1)<<geo.InodeOffsetBits - 1
	blockMask := uint64(1)<<geo.AGBlockBits - 1

	agbino = uint32(ino & offsetMask)
	rest := ino >> geo.InodeOffsetBits
	agbno = uint32(rest & blockMask)
	agno = uint32(rest >> geo.AGBlockBits)
	return
}

// composeInodeNumber is the inverse of decomposeInodeNumber.
func composeInodeNumber(geo Geometry, agno, agbno, agbino uint32) uint64 {
	rest := uint64(agno)<<geo.AGBlockBits | uint64(agbno)
	return rest<<geo.InodeOffsetBits | uint64(agbino)
}

// inodeByteOffset computes the absolute byte offset of an inode's on-disk
// record, per spec.md §3: AG_index*ag_block_count*block_size +
// relative_block*block_size + offset*inode_size.
func (c *ioContext) inodeByteOffset(ino uint64) (int64, error) {
	agno, agbno, agbino := decomposeInodeNumber(c.geo, ino)
	if agno >= c.geo.AGCount {
		return 0, newInvalidArgumentError("inode number decomposes to an allocation group beyond ag_count")
	}
	if agbno >= c.geo.AGBlockCount {
		return 0, newInvalidArgumentError("inode number decomposes to a block beyond ag_block_count")
	}
	off := int64(agno)*int64(c.geo.AGBlockCount)*int64(c.geo.BlockSize) +
		int64(agbno)*int64(c.geo.BlockSize) +
		int64(agbino)*int64(c.geo.InodeSize)
	return off, nil
}
