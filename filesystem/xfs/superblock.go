package xfs

import (
	"encoding/binary"
	"math/bits"

	"github.com/google/uuid"
)

// superblockMagic is "XFSB" as it appears on disk, big-endian.
const superblockMagic uint32 = 0x58465342

// superblockSize is the fixed size of the portion of sector 0 that the
// superblock occupies; both v4 and v5 layouts fit comfortably within it.
const superblockSize = 264

const (
	sbVersionNumMask  uint16 = 0x000f
	sbVersion5        uint16 = 5
	sbVersion4Min     uint16 = 4
	featuresIncompatFtype uint32 = 0x0001
	features2Ftype        uint32 = 0x00000200
)

// Geometry is the immutable set of values decoded from the superblock, per
// spec.md §3. Every downstream decoder is a pure function of (Geometry,
// on-disk bytes).
type Geometry struct {
	BlockSize          uint32
	SectorSize         uint16
	DirBlockLog2       uint8
	DirBlockSize       uint32
	InodesPerBlock     uint16
	InodeSize          uint16
	AGBlockCount       uint32
	AGCount            uint32
	AGBlockLog2        uint8
	InodeOffsetBits    uint8 // inopblog
	AGBlockBits        uint8 // agblklog
	AGRelativeInodeBits uint8
	Uses64BitInodes    bool
	HasV3Inodes        bool
	HasCRC             bool
	HasFtype           bool
	TotalBlocks        uint64
	FreeBlocks         uint64
	FreeInodes         uint64
	InodeCount         uint64
	RootInode          uint64
	RealtimeExtents    uint64
	UUID               uuid.UUID
	Label              string
}

// superblockFromBytes decodes the first superblockSize bytes of AG 0 per
// spec.md §4.1 and §6. All multi-byte integers on an XFS volume are
// big-endian, the one detail that sets this decoder apart from the
// teacher's little-endian ext4 superblock reader.
func superblockFromBytes(b []byte) (*Geometry, error) {
	if len(b) < superblockSize {
		return nil, newCorruptSuperblockError("buffer shorter than superblock region")
	}

	magic := binary.BigEndian.Uint32(b[0:4])
	if magic != superblockMagic {
		return nil, newUnsupportedFormatError("bad magic, not an XFS volume")
	}

	blockSize := binary.BigEndian.Uint32(b[4:8])
	if !isPowerOfTwo(blockSize) || blockSize < 512 || blockSize > 65536 {
		return nil, newUnsupportedFormatError("block size is not a power of two in [512, 65536]")
	}

	dblocks := binary.BigEndian.Uint64(b[8:16])
	rblocks := binary.BigEndian.Uint64(b[16:24])
	rextents := binary.BigEndian.Uint64(b[24:32])

	rawUUID, err := uuid.FromBytes(b[32:48])
	if err != nil {
		return nil, newCorruptSuperblockError("malformed uuid")
	}

	rootIno := binary.BigEndian.Uint64(b[56:64])

	agBlocks := binary.BigEndian.Uint32(b[84:88])
	agCount := binary.BigEndian.Uint32(b[88:92])

	versionNum := binary.BigEndian.Uint16(b[100:102])
	sectorSize := binary.BigEndian.Uint16(b[102:104])
	inodeSize := binary.BigEndian.Uint16(b[104:106])
	inodesPerBlock := binary.BigEndian.Uint16(b[106:108])

	label := cStringFromBytes(b[108:120])

	agBlockLog2 := b[124]
	inodeOffsetLog2 := b[123]

	features2 := binary.BigEndian.Uint32(b[200:204])

	version := versionNum & sbVersionNumMask
	if version < sbVersion4Min {
		return nil, newUnsupportedFormatError("superblock version below 4 is not supported")
	}

	hasV3 := version >= sbVersion5
	hasCRC := hasV3

	var incompat uint32
	if hasV3 {
		incompat = binary.BigEndian.Uint32(b[216:220])
	}

	hasFtype := false
	if hasV3 {
		hasFtype = incompat&featuresIncompatFtype != 0
	} else {
		hasFtype = features2&features2Ftype != 0
	}

	if rextents != 0 {
		return nil, newUnsupportedFormatError("realtime subvolumes are not supported")
	}

	if inodeSize != 256 && inodeSize != 512 && inodeSize != 1024 && inodeSize != 2048 {
		return nil, newUnsupportedFormatError("inode size outside the permitted set")
	}

	icount := binary.BigEndian.Uint64(b[128:136])
	ifree := binary.BigEndian.Uint64(b[136:144])
	fdblocks := binary.BigEndian.Uint64(b[144:152])

	agRelBits := agBlockLog2 + inodeOffsetLog2
	agCountBits := uint8(0)
	if agCount > 1 {
		agCountBits = uint8(bits.Len32(agCount - 1))
	}
	uses64 := agRelBits+agCountBits > 32

	if rblocks != 0 && rblocks > dblocks {
		return nil, newCorruptSuperblockError("realtime block count exceeds data block count")
	}

	// sb_dirblklog lives at offset 192, one byte, log2 of directory block
	// size in units of filesystem blocks.
	dirBlockLog2 := b[192]

	g := &Geometry{
		BlockSize:           blockSize,
		SectorSize:          sectorSize,
		DirBlockLog2:        dirBlockLog2,
		DirBlockSize:        blockSize << dirBlockLog2,
		InodesPerBlock:      inodesPerBlock,
		InodeSize:           inodeSize,
		AGBlockCount:        agBlocks,
		AGCount:             agCount,
		AGBlockLog2:         agBlockLog2,
		InodeOffsetBits:     inodeOffsetLog2,
		AGBlockBits:         agBlockLog2,
		AGRelativeInodeBits: agRelBits,
		Uses64BitInodes:     uses64,
		HasV3Inodes:         hasV3,
		HasCRC:              hasCRC,
		HasFtype:            hasFtype,
		TotalBlocks:         dblocks,
		FreeBlocks:          fdblocks,
		FreeInodes:          ifree,
		InodeCount:          icount,
		RootInode:           rootIno,
		RealtimeExtents:     rextents,
		UUID:                rawUUID,
		Label:               label,
	}

	return g, nil
}

func isPowerOfTwo(n uint32) bool {
	return n != 0 && n&(n-1) == 0
}

func cStringFromBytes(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
