package xfs

import "time"

// FileEntry is the read-only facade over one decoded inode, per spec.md
// §4.9. It is returned by Volume.RootDirectory, Volume.FileEntryByInode,
// and Volume.FileEntryByUTF8Path, and holds no ByteSource state of its own
// beyond a back-reference to the owning Volume's ioContext -- matching the
// teacher's ext4.File pattern of a thin struct wrapping a shared
// filesystem handle plus a decoded inode record.
type FileEntry struct {
	vol  *Volume
	in   *inode
	name string // the UTF-8 component name this entry was looked up by, if any
}

// GetInodeNumber returns the absolute inode number backing this entry.
func (f *FileEntry) GetInodeNumber() uint64 {
	return f.in.number
}

// GetFileMode returns the raw on-disk mode word (type bits and permission
// bits together), per spec.md §3.
func (f *FileEntry) GetFileMode() uint16 {
	return f.in.mode
}

// GetFileType returns the decoded file type.
func (f *FileEntry) GetFileType() FileType {
	return f.in.fileType
}

func (f *FileEntry) GetOwner() uint32 {
	return f.in.uid
}

func (f *FileEntry) GetGroup() uint32 {
	return f.in.gid
}

func (f *FileEntry) GetLinkCount() uint32 {
	return f.in.nlink
}

func (f *FileEntry) GetAccessTime() time.Time {
	return f.in.accessTime
}

func (f *FileEntry) GetModificationTime() time.Time {
	return f.in.modifyTime
}

func (f *FileEntry) GetInodeChangeTime() time.Time {
	return f.in.changeTime
}

// GetCreationTime returns the v3 inode creation timestamp and true, or the
// zero time and false on a v4 volume where no such field exists.
func (f *FileEntry) GetCreationTime() (time.Time, bool) {
	if !f.in.hasCreateTime {
		return time.Time{}, false
	}
	return f.in.createTime, true
}

// GetSize returns the inode's logical size in bytes, per spec.md §3: file
// length for regular files, target length for symlinks, the encoded
// listing size for shortform directories.
func (f *FileEntry) GetSize() uint64 {
	return f.in.size
}

// GetName returns the component name this entry was resolved by, when
// known (false for the root directory, or an entry fetched directly by
// inode number).
func (f *FileEntry) GetName() (string, bool) {
	if f.name == "" {
		return "", false
	}
	return f.name, true
}

// GetSymlinkTarget returns the link target for a symlink entry.
func (f *FileEntry) GetSymlinkTarget() (string, error) {
	if f.in.fileType != FileTypeSymlink {
		return "", newInvalidArgumentError("not a symlink")
	}
	return f.vol.ctx.readSymlinkTarget(f.in)
}

// ReadBufferAtOffset reads up to length bytes starting at offset within
// the entry's data fork, per spec.md §4.5. A read starting at or past
// end-of-file returns an empty, non-nil slice.
func (f *FileEntry) ReadBufferAtOffset(offset, length int64) ([]byte, error) {
	if f.in.fileType != FileTypeRegular {
		return nil, newInvalidArgumentError("not a regular file")
	}
	return f.vol.ctx.readRange(f.in, offset, length)
}

// directoryEntries decodes this entry's directory listing. The listing is
// not cached: every call decodes it again from the inode.
func (f *FileEntry) directoryEntries() ([]DirEntry, error) {
	if f.in.fileType != FileTypeDirectory {
		return nil, newInvalidArgumentError("not a directory")
	}
	return f.vol.ctx.readDirectory(f.in, f.parentInodeHint())
}

// parentInodeHint returns this entry's own inode number as the parentIno
// argument of readDirectory. readShortformDirectory takes ".." from the
// directory's inline parent pointer and does not use this value, and the
// block and leaf decoders take no parent argument.
func (f *FileEntry) parentInodeHint() uint64 {
	return f.in.number
}

// GetNumberOfSubEntries returns the number of entries in a directory's
// listing, including the synthetic "." and ".." entries.
func (f *FileEntry) GetNumberOfSubEntries() (int, error) {
	entries, err := f.directoryEntries()
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// GetSubEntryByIndex returns the FileEntry for the Nth directory entry, in
// on-disk traversal order.
func (f *FileEntry) GetSubEntryByIndex(index int) (*FileEntry, error) {
	entries, err := f.directoryEntries()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(entries) {
		return nil, newOutOfBoundsError("sub-entry index out of range")
	}
	return f.vol.fileEntryForChild(entries[index])
}

// GetSubEntryByUTF8Name resolves one named child of a directory. It
// returns (nil, nil), not an error, when no entry with that name exists,
// per spec.md §4.9's NotFound convention. A multi-block directory is first
// searched through its leaf hash index; when that finds no match, the full
// listing is scanned.
func (f *FileEntry) GetSubEntryByUTF8Name(name string) (*FileEntry, error) {
	if f.in.fileType == FileTypeDirectory && f.in.dataForkFormat != forkFormatLocal {
		extents, err := f.vol.ctx.resolvedDataExtents(f.in)
		if err == nil {
			leafBlock := f.vol.ctx.dirLeafBlockNumber()
			inLeafRange := false
			for _, e := range extents {
				if e.StartLogicalBlock >= leafBlock {
					inLeafRange = true
					break
				}
			}
			if inLeafRange {
				entry, ok, err := f.vol.ctx.lookupLeafDirectory(extents, name, f.in.number)
				if err != nil {
					return nil, err
				}
				if ok {
					return f.vol.fileEntryForChild(entry)
				}
			}
		}
	}

	entries, err := f.directoryEntries()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Name == name {
			return f.vol.fileEntryForChild(e)
		}
	}
	return nil, nil
}

// GetNumberOfExtendedAttributes returns the count of decoded extended
// attributes on this entry's inode.
func (f *FileEntry) GetNumberOfExtendedAttributes() (int, error) {
	attrs, err := f.vol.ctx.readExtendedAttributes(f.in)
	if err != nil {
		return 0, err
	}
	return len(attrs), nil
}

// GetExtendedAttributeByIndex returns the Nth decoded extended attribute,
// per spec.md §4.7, including its namespace.
func (f *FileEntry) GetExtendedAttributeByIndex(index int) (ExtendedAttribute, error) {
	attrs, err := f.vol.ctx.readExtendedAttributes(f.in)
	if err != nil {
		return ExtendedAttribute{}, err
	}
	if index < 0 || index >= len(attrs) {
		return ExtendedAttribute{}, newOutOfBoundsError("extended attribute index out of range")
	}
	return attrs[index], nil
}
