package xfs

import (
	"encoding/binary"
	"time"
)

type forkFormat uint8

const (
	forkFormatDev     forkFormat = 0
	forkFormatLocal   forkFormat = 1
	forkFormatExtents forkFormat = 2
	forkFormatBtree   forkFormat = 3
	forkFormatUUID    forkFormat = 4
)

// FileType enumerates the file-type bits decoded from an inode's mode,
// per spec.md §3.
type FileType uint8

const (
	FileTypeUnknown FileType = iota
	FileTypeRegular
	FileTypeDirectory
	FileTypeSymlink
	FileTypeBlockDevice
	FileTypeCharDevice
	FileTypeFIFO
	FileTypeSocket
)

const (
	modeTypeMask  uint16 = 0xF000
	modeTypeFifo  uint16 = 0x1000
	modeTypeChar  uint16 = 0x2000
	modeTypeDir   uint16 = 0x4000
	modeTypeBlock uint16 = 0x6000
	modeTypeReg   uint16 = 0x8000
	modeTypeLink  uint16 = 0xA000
	modeTypeSock  uint16 = 0xC000
)

func fileTypeFromMode(mode uint16) FileType {
	switch mode & modeTypeMask {
	case modeTypeReg:
		return FileTypeRegular
	case modeTypeDir:
		return FileTypeDirectory
	case modeTypeLink:
		return FileTypeSymlink
	case modeTypeBlock:
		return FileTypeBlockDevice
	case modeTypeChar:
		return FileTypeCharDevice
	case modeTypeFifo:
		return FileTypeFIFO
	case modeTypeSock:
		return FileTypeSocket
	default:
		return FileTypeUnknown
	}
}

const (
	inodeHeaderSizeV2 = 96
	inodeHeaderSizeV3 = 176
	inodeMagic        = 0x494e // "IN"
)

// inode is the decoded record described in spec.md §3. format_version,
// the fork formats, and the inline/extent/btree payloads are carried as
// separate fields rather than a tagged union, matching the teacher's
// ext4.inode struct which keeps every fork representation as a field and
// lets the format byte select which is populated.
type inode struct {
	number        uint64
	formatVersion uint8
	mode          uint16
	fileType      FileType
	nlink         uint32
	uid           uint32
	gid           uint32
	projid        uint32
	size          uint64
	nblocks       uint64
	accessTime    time.Time
	modifyTime    time.Time
	changeTime    time.Time
	createTime    time.Time
	hasCreateTime bool

	dataForkFormat forkFormat
	attrForkFormat forkFormat
	nextents       uint32
	nattrExtents   uint16
	forkOffset     uint8 // in units of 8 bytes, 0 == no attr fork

	inlineData  []byte // data fork, local format
	dataExtents extentList
	dataBtree   []byte // data fork, btree format: raw root bytes for lazy traversal

	inlineAttr  []byte
	attrExtents extentList
	attrBtree   []byte

	linkTarget string // convenience: populated when fileType == symlink and format == local
}

// readInode reads and decodes the inode with the given absolute number,
// per spec.md §4.3. It consults the abort flag and the optional inode
// cache before touching the ByteSource.
func (c *ioContext) readInode(number uint64) (*inode, error) {
	if err := c.abort.checkAborted(); err != nil {
		return nil, err
	}
	if cached, ok := c.cache.get(number); ok {
		return cached, nil
	}

	off, err := c.inodeByteOffset(number)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, c.geo.InodeSize)
	if err := c.readAt(buf, off); err != nil {
		return nil, err
	}

	in, err := c.decodeInode(buf, number)
	if err != nil {
		return nil, err
	}
	c.cache.put(number, in)
	return in, nil
}

func (c *ioContext) decodeInode(buf []byte, number uint64) (*inode, error) {
	if len(buf) < inodeHeaderSizeV2 {
		return nil, newCorruptInodeError(number, "inode buffer shorter than minimum header")
	}
	magic := binary.BigEndian.Uint16(buf[0:2])
	if magic != inodeMagic {
		return nil, newCorruptInodeError(number, "bad inode magic")
	}

	mode := binary.BigEndian.Uint16(buf[2:4])
	version := buf[4]
	format := forkFormat(buf[5])

	headerSize := inodeHeaderSizeV2
	if version >= 3 {
		headerSize = inodeHeaderSizeV3
		if len(buf) < headerSize {
			return nil, newCorruptInodeError(number, "v3 inode buffer shorter than 176-byte header")
		}
	}

	in := &inode{
		number:         number,
		formatVersion:  version,
		mode:           mode,
		fileType:       fileTypeFromMode(mode),
		uid:            binary.BigEndian.Uint32(buf[8:12]),
		gid:            binary.BigEndian.Uint32(buf[12:16]),
		nlink:          binary.BigEndian.Uint32(buf[16:20]),
		// di_projid_lo is at byte 20, di_projid_hi at byte 22 -- the
		// opposite order of the uid/gid/nlink fields it sits between.
		projid:         uint32(binary.BigEndian.Uint16(buf[22:24]))<<16 | uint32(binary.BigEndian.Uint16(buf[20:22])),
		accessTime:     decodeInodeTime(buf[32:40]),
		modifyTime:     decodeInodeTime(buf[40:48]),
		changeTime:     decodeInodeTime(buf[48:56]),
		size:           binary.BigEndian.Uint64(buf[56:64]),
		nblocks:        binary.BigEndian.Uint64(buf[64:72]),
		nextents:       binary.BigEndian.Uint32(buf[76:80]),
		nattrExtents:   binary.BigEndian.Uint16(buf[80:82]),
		forkOffset:     buf[82],
		attrForkFormat: forkFormat(buf[83]),
		dataForkFormat: format,
	}

	if version >= 3 {
		if c.geo.HasCRC {
			crcOffset := 100 // di_crc
			if err := c.verifyBlockChecksum(buf, crcOffset, number, "inode"); err != nil {
				return nil, err
			}
		}
		in.createTime = decodeInodeTime(buf[144:152]) // di_crtime
		in.hasCreateTime = true
	}

	forkAreaLen := int(c.geo.InodeSize) - headerSize
	if forkAreaLen < 0 {
		return nil, newCorruptInodeError(number, "inode size smaller than header")
	}
	forkArea := buf[headerSize:]
	if len(forkArea) > forkAreaLen {
		forkArea = forkArea[:forkAreaLen]
	}

	dataForkBytes := forkArea
	var attrForkBytes []byte
	if in.forkOffset != 0 {
		boundary := int(in.forkOffset) * 8
		if boundary > len(forkArea) {
			return nil, newCorruptInodeError(number, "fork_offset exceeds inode body size")
		}
		dataForkBytes = forkArea[:boundary]
		attrForkBytes = forkArea[boundary:]
	}

	if in.fileType == FileTypeSymlink && format == forkFormatLocal {
		n := in.size
		if n > uint64(len(dataForkBytes)) {
			return nil, newCorruptInodeError(number, "inline symlink target longer than fork area")
		}
		in.linkTarget = string(dataForkBytes[:n])
		in.inlineData = dataForkBytes[:n]
	} else if err := decodeFork(&in.inlineData, &in.dataExtents, &in.dataBtree, format, dataForkBytes, int(in.nextents), number); err != nil {
		return nil, err
	}

	if in.forkOffset != 0 {
		if err := decodeFork(&in.inlineAttr, &in.attrExtents, &in.attrBtree, in.attrForkFormat, attrForkBytes, int(in.nattrExtents), number); err != nil {
			return nil, err
		}
	}

	return in, nil
}

// decodeFork interprets one fork's format byte and populates the
// appropriate one of (inline, extents, btreeRoot), per spec.md §4.3.
func decodeFork(inline *[]byte, extents *extentList, btreeRoot *[]byte, format forkFormat, b []byte, nextents int, inodeNumber uint64) error {
	switch format {
	case forkFormatLocal:
		cp := make([]byte, len(b))
		copy(cp, b)
		*inline = cp
	case forkFormatExtents:
		if nextents < 0 || nextents*extentRecordSize > len(b) {
			return newCorruptInodeError(inodeNumber, "nextents exceeds fork area capacity")
		}
		list, err := decodeExtentList(b, nextents)
		if err != nil {
			return err
		}
		*extents = list
	case forkFormatBtree:
		cp := make([]byte, len(b))
		copy(cp, b)
		*btreeRoot = cp
	case forkFormatDev, forkFormatUUID:
		// no forked payload to decode; device number / uuid live in the
		// fork area but are not needed for read-only navigation.
	default:
		return newCorruptInodeError(inodeNumber, "unrecognized fork format")
	}
	return nil
}

// decodeInodeTime decodes an 8-byte (4-byte seconds, 4-byte nanoseconds)
// big-endian XFS timestamp pair.
func decodeInodeTime(b []byte) time.Time {
	sec := int32(binary.BigEndian.Uint32(b[0:4]))
	nsec := binary.BigEndian.Uint32(b[4:8])
	return time.Unix(int64(sec), int64(nsec)).UTC()
}

// resolvedDataExtents returns the fully materialized extent list for the
// inode's data fork, walking the bmap btree if necessary.
func (c *ioContext) resolvedDataExtents(in *inode) (extentList, error) {
	switch in.dataForkFormat {
	case forkFormatExtents:
		return in.dataExtents, nil
	case forkFormatBtree:
		return c.readBtreeExtents(in.dataBtree, in.number)
	default:
		return nil, nil
	}
}

// resolvedAttrExtents is the attr-fork analogue of resolvedDataExtents.
func (c *ioContext) resolvedAttrExtents(in *inode) (extentList, error) {
	switch in.attrForkFormat {
	case forkFormatExtents:
		return in.attrExtents, nil
	case forkFormatBtree:
		return c.readBtreeExtents(in.attrBtree, in.number)
	default:
		return nil, nil
	}
}
