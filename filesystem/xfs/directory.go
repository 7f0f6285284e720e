package xfs

import "encoding/binary"

// DirEntry is a decoded directory entry, per spec.md §3: a name, the
// child inode number it refers to, and an optional file-type hint
// (present only when the superblock's ftype feature is set).
type DirEntry struct {
	Name     string
	Ino      uint64
	FileType FileType
	hasType  bool
}

// HasFileTypeHint reports whether the on-disk entry carried a file-type
// byte (v4 volumes without the ftype feature never do, so callers must
// stat the child inode to learn its type in that case).
func (d DirEntry) HasFileTypeHint() bool {
	return d.hasType
}

// readDirectory dispatches to the shortform, block, or leaf/node decoder
// based on the directory inode's data-fork format and extent count, per
// spec.md §4.6. Shortform directories never store "." on disk and store
// ".." only as an inline pointer, so readShortformDirectory synthesizes
// both; block- and leaf-form directories store "." and ".." as ordinary
// entries in their data blocks, so the block/leaf decoders need no special
// casing for them.
func (c *ioContext) readDirectory(in *inode, parentIno uint64) ([]DirEntry, error) {
	if err := c.abort.checkAborted(); err != nil {
		return nil, err
	}
	if in.fileType != FileTypeDirectory {
		return nil, newInvalidArgumentError("inode is not a directory")
	}

	switch in.dataForkFormat {
	case forkFormatLocal:
		return c.readShortformDirectory(in, parentIno)
	case forkFormatExtents, forkFormatBtree:
		extents, err := c.resolvedDataExtents(in)
		if err != nil {
			return nil, err
		}
		if len(extents) == 1 && int64(extents[0].Length)*int64(c.geo.BlockSize) == int64(c.geo.DirBlockSize) &&
			extents[0].StartLogicalBlock == 0 {
			return c.readBlockDirectory(extents[0], in.number)
		}
		return c.readLeafDirectoryAll(extents, in.number)
	default:
		return nil, newCorruptDirectoryError("unsupported data fork format for a directory")
	}
}

// readShortformDirectory decodes an inline directory per spec.md §4.6.
func (c *ioContext) readShortformDirectory(in *inode, parentIno uint64) ([]DirEntry, error) {
	b := in.inlineData
	if len(b) < 2 {
		return nil, newCorruptDirectoryError("shortform directory header truncated")
	}
	count := int(b[0])
	i8count := int(b[1])
	pos := 2

	inoWidth := 4
	if i8count != 0 {
		inoWidth = 8
	}
	if pos+inoWidth > len(b) {
		return nil, newCorruptDirectoryError("shortform directory parent pointer truncated")
	}
	parent := readUint(b[pos : pos+inoWidth])
	pos += inoWidth

	entries := make([]DirEntry, 0, count+2)
	entries = append(entries, DirEntry{Name: ".", Ino: in.number, FileType: FileTypeDirectory, hasType: true})
	entries = append(entries, DirEntry{Name: "..", Ino: parent, FileType: FileTypeDirectory, hasType: true})
	_ = parentIno

	for i := 0; i < count; i++ {
		if pos+3 > len(b) {
			return nil, newCorruptDirectoryError("shortform directory entry header truncated")
		}
		namelen := int(b[pos])
		pos += 1 + 2 // namelen + opaque offset
		if pos+namelen > len(b) {
			return nil, newCorruptDirectoryError("shortform directory entry name truncated")
		}
		name := string(b[pos : pos+namelen])
		pos += namelen

		var ft FileType
		hasType := false
		if c.geo.HasFtype {
			if pos+1 > len(b) {
				return nil, newCorruptDirectoryError("shortform directory entry file type truncated")
			}
			ft = FileTypeUnknown
			if int(b[pos]) < len(dirFtypeTable) {
				ft = dirFtypeTable[b[pos]]
			}
			pos++
			hasType = true
		}

		if pos+inoWidth > len(b) {
			return nil, newCorruptDirectoryError("shortform directory entry inode truncated")
		}
		ino := readUint(b[pos : pos+inoWidth])
		pos += inoWidth

		entries = append(entries, DirEntry{Name: name, Ino: ino, FileType: ft, hasType: hasType})
	}

	if err := checkNoDuplicateNames(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// dirFtypeTable maps the on-disk XFS directory file-type byte to FileType.
var dirFtypeTable = []FileType{
	FileTypeUnknown,
	FileTypeRegular,
	FileTypeDirectory,
	FileTypeCharDevice,
	FileTypeBlockDevice,
	FileTypeFIFO,
	FileTypeSocket,
	FileTypeSymlink,
}

func fileTypeToDirFtype(ft FileType) uint8 {
	for i, v := range dirFtypeTable {
		if v == ft {
			return uint8(i)
		}
	}
	return 0
}

func readUint(b []byte) uint64 {
	switch len(b) {
	case 4:
		return uint64(binary.BigEndian.Uint32(b))
	case 8:
		return binary.BigEndian.Uint64(b)
	default:
		panic("readUint: unsupported width")
	}
}

func checkNoDuplicateNames(entries []DirEntry) error {
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.Name]; ok {
			return newCorruptDirectoryError("duplicate name in directory: " + e.Name)
		}
		seen[e.Name] = struct{}{}
	}
	return nil
}
