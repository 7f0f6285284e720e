package xfs

import (
	"encoding/binary"
	"sort"
)

const (
	// dirLeafOffsetBytes and dirFreeOffsetBytes are the fixed logical
	// byte offsets, within a directory's data fork address space, at
	// which the leaf/node segment and the free-space-index segment
	// begin, per spec.md §4.6 ("a fixed logical offset defined by the
	// superblock"). These are the classic XFS directory v2 constants:
	// 32GiB and 64GiB into the fork's logical address space, scaled to
	// filesystem blocks by the caller.
	dirLeafOffsetBytes uint64 = 32 << 30
	dirFreeOffsetBytes uint64 = 64 << 30
)

// Leaf and intermediate-node blocks share the xfs_da_blkinfo (v4) /
// xfs_da3_blkinfo (v5) leading structure: forw(4)+back(4)+magic(2)+pad(2)
// for v4, with crc(4)+blkno(8)+lsn(8)+uuid(16)+owner(8) appended for v5.
// The magic is a 2-byte field at byte offset 8, not a 4-byte ASCII tag at
// offset 0 -- that 4-byte-at-offset-0 shape belongs to the directory data
// block header (xfs_dir2_data_hdr, see directory_block.go), a distinct
// on-disk structure.
const (
	daBlkInfoSizeV4 = 12
	daBlkInfoSizeV5 = 56

	daMagicOffset = 8

	magicLeaf1V4 uint16 = 0xd2f1 // XFS_DIR2_LEAF1_MAGIC
	magicLeafNV4 uint16 = 0xd2ff // XFS_DIR2_LEAFN_MAGIC
	magicLeaf1V5 uint16 = 0x3df1 // XFS_DIR3_LEAF1_MAGIC
	magicLeafNV5 uint16 = 0x3dff // XFS_DIR3_LEAFN_MAGIC
	magicNodeV4  uint16 = 0xfebe // XFS_DA_NODE_MAGIC
	magicNodeV5  uint16 = 0x3ebe // XFS_DA3_NODE_MAGIC

	// xfs_dir2_leaf_hdr / xfs_dir3_leaf_hdr: blkinfo, then count(2),
	// stale(2), and (v5 only) a 4-byte pad before the entry array.
	leafHeaderSizeV4  = daBlkInfoSizeV4 + 4     // 16
	leafHeaderSizeV5  = daBlkInfoSizeV5 + 4 + 4 // 64
	leafCountOffsetV4 = daBlkInfoSizeV4         // 12
	leafCountOffsetV5 = daBlkInfoSizeV5         // 56
	leafCRCOffset     = 12                      // v5 blkinfo: crc follows magic+pad
	leafEntrySize     = 8                       // hashval(4) + address(4)
)

func (c *ioContext) dirLeafBlockNumber() uint64 {
	return dirLeafOffsetBytes / uint64(c.geo.BlockSize)
}

func (c *ioContext) dirFreeBlockNumber() uint64 {
	return dirFreeOffsetBytes / uint64(c.geo.BlockSize)
}

// readLeafDirectoryAll enumerates every data block of a multi-block
// (leaf/node form) directory in logical order and decodes each one as a
// data block without a trailing leaf tail, per spec.md §4.6: "The leaf
// index is NOT required to be consulted for a full listing."
func (c *ioContext) readLeafDirectoryAll(extents extentList, inodeNumber uint64) ([]DirEntry, error) {
	leafBlock := c.dirLeafBlockNumber()
	var entries []DirEntry

	for _, e := range extents {
		if e.StartLogicalBlock >= leafBlock {
			continue
		}
		blocksPerDirBlock := uint64(c.geo.DirBlockSize) / uint64(c.geo.BlockSize)
		if blocksPerDirBlock == 0 {
			blocksPerDirBlock = 1
		}
		for off := uint64(0); off < uint64(e.Length); off += blocksPerDirBlock {
			if err := c.abort.checkAborted(); err != nil {
				return nil, err
			}
			logical := e.StartLogicalBlock + off
			if logical >= leafBlock {
				break
			}
			physBlock := e.StartPhysicalBlock + off
			blk, err := c.readDirDataBlock(physBlock, inodeNumber)
			if err != nil {
				return nil, err
			}
			entries = append(entries, blk...)
		}
	}
	if err := checkNoDuplicateNames(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// readDirDataBlock reads and decodes one multi-block-directory data
// block (magic XD2D/XDD3), scanning the whole block since there is no
// trailing leaf tail in this form.
func (c *ioContext) readDirDataBlock(physBlock uint64, inodeNumber uint64) ([]DirEntry, error) {
	buf := make([]byte, c.geo.DirBlockSize)
	if err := c.readAt(buf, int64(physBlock)*int64(c.geo.BlockSize)); err != nil {
		return nil, err
	}
	magic := binary.BigEndian.Uint32(buf[0:4])
	headerSize := dirDataHeaderSizeV4
	switch magic {
	case dirMagicDataV4:
	case dirMagicDataV5:
		headerSize = dirDataHeaderSizeV5
		if err := c.verifyBlockChecksum(buf, 4, inodeNumber, "directory data block"); err != nil {
			return nil, err
		}
	default:
		return nil, newCorruptDirectoryError("bad multi-block directory data magic")
	}
	return decodeDataBlockEntries(buf, headerSize, len(buf), c.geo.HasFtype)
}

type leafEntry struct {
	hashval uint32
	address uint32
}

// lookupLeafDirectory resolves name within a multi-block directory by
// hashing it, binary-searching the leaf index for a matching hashval, and
// verifying the candidate entry's name against the data block it points
// to, per spec.md §4.6. Returns ok=false (not an error) when no entry
// matches -- the caller translates that into spec.md's NotFound result.
func (c *ioContext) lookupLeafDirectory(extents extentList, name string, inodeNumber uint64) (DirEntry, bool, error) {
	if err := c.abort.checkAborted(); err != nil {
		return DirEntry{}, false, err
	}
	target := dirHash([]byte(name))
	leafBlock := c.dirLeafBlockNumber()
	freeBlock := c.dirFreeBlockNumber()
	blocksPerDirBlock := uint64(c.geo.DirBlockSize) / uint64(c.geo.BlockSize)
	if blocksPerDirBlock == 0 {
		blocksPerDirBlock = 1
	}

	for _, e := range extents {
		logicalEnd := e.StartLogicalBlock + uint64(e.Length)
		if logicalEnd <= leafBlock || e.StartLogicalBlock >= freeBlock {
			continue
		}
		for off := uint64(0); off < uint64(e.Length); off += blocksPerDirBlock {
			logical := e.StartLogicalBlock + off
			if logical < leafBlock || logical >= freeBlock {
				continue
			}
			physBlock := e.StartPhysicalBlock + off
			entries, err := c.readLeafBlockEntries(physBlock, inodeNumber)
			if err != nil {
				return DirEntry{}, false, err
			}
			idx := sort.Search(len(entries), func(i int) bool { return entries[i].hashval >= target })
			for idx < len(entries) && entries[idx].hashval == target {
				candidate, err := c.resolveLeafAddress(extents, entries[idx].address, name, inodeNumber)
				if err != nil {
					return DirEntry{}, false, err
				}
				if candidate != nil {
					return *candidate, true, nil
				}
				idx++
			}
		}
	}
	return DirEntry{}, false, nil
}

// readLeafBlockEntries reads one leaf block (xfs_da_blkinfo/xfs_da3_blkinfo
// magic XFS_DIR2_LEAF1/LEAFN or their v5 counterparts) and returns its
// (hashval, address) array in on-disk order, which is sorted by hashval.
func (c *ioContext) readLeafBlockEntries(physBlock uint64, inodeNumber uint64) ([]leafEntry, error) {
	buf := make([]byte, c.geo.DirBlockSize)
	if err := c.readAt(buf, int64(physBlock)*int64(c.geo.BlockSize)); err != nil {
		return nil, err
	}
	if len(buf) < daMagicOffset+2 {
		return nil, newCorruptDirectoryError("leaf/node block shorter than blkinfo header")
	}
	magic := binary.BigEndian.Uint16(buf[daMagicOffset : daMagicOffset+2])
	var headerSize, countOffset int
	switch magic {
	case magicLeaf1V4, magicLeafNV4:
		headerSize, countOffset = leafHeaderSizeV4, leafCountOffsetV4
	case magicLeaf1V5, magicLeafNV5:
		headerSize, countOffset = leafHeaderSizeV5, leafCountOffsetV5
		if err := c.verifyBlockChecksum(buf, leafCRCOffset, inodeNumber, "directory leaf block"); err != nil {
			return nil, err
		}
	case magicNodeV4, magicNodeV5:
		// an intermediate node block in a taller tree; not required for
		// the bounded-read-count guarantee this reader targets, since
		// directories large enough to need one are outside the leaf-form
		// single-level case this decoder optimizes for. Treat as having
		// no direct leaf entries of its own.
		return nil, nil
	default:
		return nil, newCorruptDirectoryError("bad directory leaf/node magic")
	}
	if countOffset+2 > len(buf) {
		return nil, newCorruptDirectoryError("leaf block too short for entry count")
	}
	count := binary.BigEndian.Uint16(buf[countOffset : countOffset+2])
	entries := make([]leafEntry, 0, count)
	pos := headerSize
	for i := 0; i < int(count); i++ {
		if pos+leafEntrySize > len(buf) {
			return nil, newCorruptDirectoryError("leaf entry array runs past block")
		}
		entries = append(entries, leafEntry{
			hashval: binary.BigEndian.Uint32(buf[pos : pos+4]),
			address: binary.BigEndian.Uint32(buf[pos+4 : pos+8]),
		})
		pos += leafEntrySize
	}
	return entries, nil
}

// resolveLeafAddress follows a leaf entry's address field -- a
// dir-block-address that decomposes into (dir_block, entry_offset_in_block
// * 8), per spec.md §4.6 -- reads that data block, and returns the entry
// only if its name matches, confirming the hash was not a collision.
func (c *ioContext) resolveLeafAddress(extents extentList, address uint32, name string, inodeNumber uint64) (*DirEntry, error) {
	if address == 0 {
		return nil, nil
	}
	byteOffset := uint64(address) * 8
	dirBlockSize := uint64(c.geo.DirBlockSize)
	dirBlockIndex := byteOffset / dirBlockSize
	offsetInBlock := int(byteOffset % dirBlockSize)

	blocksPerDirBlock := dirBlockSize / uint64(c.geo.BlockSize)
	if blocksPerDirBlock == 0 {
		blocksPerDirBlock = 1
	}
	logicalBlock := dirBlockIndex * blocksPerDirBlock

	physBlock, _, _, ok := extents.physicalOffset(logicalBlock)
	if !ok {
		return nil, nil
	}
	buf := make([]byte, dirBlockSize)
	if err := c.readAt(buf, int64(physBlock)*int64(c.geo.BlockSize)); err != nil {
		return nil, err
	}
	magic := binary.BigEndian.Uint32(buf[0:4])
	headerSize := dirDataHeaderSizeV4
	if magic == dirMagicDataV5 {
		headerSize = dirDataHeaderSizeV5
	}
	if offsetInBlock < headerSize || offsetInBlock+9 > len(buf) {
		return nil, newCorruptDirectoryError("leaf address resolves outside entry region")
	}
	entries, err := decodeDataBlockEntries(buf, offsetInBlock, len(buf), c.geo.HasFtype)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	if entries[0].Name != name {
		return nil, nil
	}
	return &entries[0], nil
}
