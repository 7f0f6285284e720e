package xfs

import (
	"encoding/binary"
	"testing"

	"github.com/xfsro/xfsro/backend"
)

func TestReadBtreeExtentsRootIsLeaf(t *testing.T) {
	c := &ioContext{geo: Geometry{BlockSize: 512}, abort: &abortFlag{}}

	root := make([]byte, bmdrHeaderSize)
	binary.BigEndian.PutUint16(root[0:2], 0) // level 0: root is a leaf
	binary.BigEndian.PutUint16(root[2:4], 1) // numrecs
	root = append(root, encodeExtentRecord(Extent{StartLogicalBlock: 0, StartPhysicalBlock: 77, Length: 3})...)

	got, err := c.readBtreeExtents(root, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].StartPhysicalBlock != 77 {
		t.Fatalf("unexpected extents: %+v", got)
	}
}

func TestReadBtreeExtentsRootTooShort(t *testing.T) {
	c := &ioContext{geo: Geometry{BlockSize: 512}, abort: &abortFlag{}}
	if _, err := c.readBtreeExtents([]byte{1, 2}, 1); err == nil {
		t.Fatal("expected an error for a truncated btree root header")
	}
}

// buildLeafBtreeNode assembles a v4 on-disk long-form btree leaf block
// (level 0) holding a single extent record.
func buildLeafBtreeNode(blockSize int, ext Extent) []byte {
	buf := make([]byte, blockSize)
	binary.BigEndian.PutUint32(buf[0:4], bmapMagicV4)
	binary.BigEndian.PutUint16(buf[4:6], 0) // level
	binary.BigEndian.PutUint16(buf[6:8], 1) // numrecs
	copy(buf[bmbtHeaderSizeV4:], encodeExtentRecord(ext))
	return buf
}

func TestReadBtreeExtentsRecursesIntoChild(t *testing.T) {
	blockSize := int64(512)
	leaf := buildLeafBtreeNode(int(blockSize), Extent{StartLogicalBlock: 0, StartPhysicalBlock: 9, Length: 1})

	c := &ioContext{geo: Geometry{BlockSize: uint32(blockSize)}, abort: &abortFlag{}}
	c.source = backend.FromBytes(leaf) // child block sits at fsbno 0, byte offset 0

	root := make([]byte, bmdrHeaderSize)
	binary.BigEndian.PutUint16(root[0:2], 1) // level 1: one level of indirection
	binary.BigEndian.PutUint16(root[2:4], 1) // numrecs
	root = append(root, make([]byte, btreeKeySize)...)
	ptr := make([]byte, btreePointerSize)
	binary.BigEndian.PutUint64(ptr, 0) // child fsbno 0
	root = append(root, ptr...)

	got, err := c.readBtreeExtents(root, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].StartPhysicalBlock != 9 {
		t.Fatalf("unexpected extents: %+v", got)
	}
}

func TestReadBtreeNodeRejectsBadMagic(t *testing.T) {
	blockSize := int64(512)
	buf := make([]byte, blockSize)
	c := &ioContext{geo: Geometry{BlockSize: uint32(blockSize)}, abort: &abortFlag{}}
	c.source = backend.FromBytes(buf)

	if _, err := c.readBtreeNode(0, 0, 1); err == nil {
		t.Fatal("expected an error for a zeroed (bad-magic) btree node")
	}
}

func TestReadBtreeNodeRejectsLevelMismatch(t *testing.T) {
	blockSize := int64(512)
	buf := buildLeafBtreeNode(int(blockSize), Extent{StartLogicalBlock: 0, StartPhysicalBlock: 1, Length: 1})
	c := &ioContext{geo: Geometry{BlockSize: uint32(blockSize)}, abort: &abortFlag{}}
	c.source = backend.FromBytes(buf)

	if _, err := c.readBtreeNode(0, 2, 1); err == nil {
		t.Fatal("expected an error when the on-disk level disagrees with the parent pointer's expectation")
	}
}

func TestReadBtreeNodeRejectsV4MagicOnV5Filesystem(t *testing.T) {
	blockSize := int64(512)
	buf := buildLeafBtreeNode(int(blockSize), Extent{StartLogicalBlock: 0, StartPhysicalBlock: 1, Length: 1})
	c := &ioContext{geo: Geometry{BlockSize: uint32(blockSize), HasV3Inodes: true}, abort: &abortFlag{}}
	c.source = backend.FromBytes(buf)

	if _, err := c.readBtreeNode(0, 0, 1); err == nil {
		t.Fatal("expected an error for a v4 btree magic on a v5 (CRC) filesystem")
	}
}

// buildV5LeafBtreeNode assembles a v5 btree leaf block with a correctly
// stamped (or deliberately wrong) CRC32C checksum at its documented offset.
// XFS v5 block checksums are a plain CRC32C over the block with the crc
// field zeroed; there is no seed mixed in.
func buildV5LeafBtreeNode(blockSize int, ext Extent, corrupt bool) []byte {
	buf := make([]byte, blockSize)
	binary.BigEndian.PutUint32(buf[0:4], bmapMagicV5)
	binary.BigEndian.PutUint16(buf[4:6], 0)
	binary.BigEndian.PutUint16(buf[6:8], 1)
	copy(buf[bmbtHeaderSizeV5:], encodeExtentRecord(ext))

	crcOffset := bmbtHeaderSizeV4 + 8 + 8 + 16 + 8
	crc := crc32cIncremental(buf, crcOffset)
	if corrupt {
		crc ^= 0xffffffff
	}
	binary.BigEndian.PutUint32(buf[crcOffset:crcOffset+4], crc)
	return buf
}

func TestReadBtreeNodeV5ChecksumOKInNonStrictMode(t *testing.T) {
	blockSize := int64(512)
	buf := buildV5LeafBtreeNode(int(blockSize), Extent{StartLogicalBlock: 0, StartPhysicalBlock: 3, Length: 1}, false)

	c := &ioContext{geo: Geometry{BlockSize: uint32(blockSize), HasV3Inodes: true, HasCRC: true}, abort: &abortFlag{}, log: defaultLogger()}
	c.source = backend.FromBytes(buf)

	got, err := c.readBtreeNode(0, 0, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].StartPhysicalBlock != 3 {
		t.Fatalf("unexpected extents: %+v", got)
	}
}

func TestReadBtreeNodeV5ChecksumMismatchWarnsWhenNotStrict(t *testing.T) {
	blockSize := int64(512)
	buf := buildV5LeafBtreeNode(int(blockSize), Extent{StartLogicalBlock: 0, StartPhysicalBlock: 3, Length: 1}, true)

	var warnings []Warning
	c := &ioContext{
		geo:    Geometry{BlockSize: uint32(blockSize), HasV3Inodes: true, HasCRC: true},
		abort:  &abortFlag{},
		log:    defaultLogger(),
		strict: false,
		onWarn: func(w Warning) { warnings = append(warnings, w) },
	}
	c.source = backend.FromBytes(buf)

	if _, err := c.readBtreeNode(0, 0, 1); err != nil {
		t.Fatalf("expected a non-strict checksum mismatch to warn, not fail, got error: %v", err)
	}
	if len(warnings) != 1 || warnings[0].Kind != "checksum-mismatch" {
		t.Fatalf("expected a single checksum-mismatch warning, got %+v", warnings)
	}
}

func TestReadBtreeNodeV5ChecksumMismatchFailsWhenStrict(t *testing.T) {
	blockSize := int64(512)
	buf := buildV5LeafBtreeNode(int(blockSize), Extent{StartLogicalBlock: 0, StartPhysicalBlock: 3, Length: 1}, true)

	c := &ioContext{
		geo:    Geometry{BlockSize: uint32(blockSize), HasV3Inodes: true, HasCRC: true},
		abort:  &abortFlag{},
		log:    defaultLogger(),
		strict: true,
	}
	c.source = backend.FromBytes(buf)

	_, err := c.readBtreeNode(0, 0, 1)
	if err == nil {
		t.Fatal("expected a strict-mode checksum mismatch to return an error")
	}
	if _, ok := err.(*ChecksumMismatchError); !ok {
		t.Fatalf("expected a *ChecksumMismatchError, got %T: %v", err, err)
	}
}
