package xfs

import (
	"encoding/binary"
	"testing"

	"github.com/xfsro/xfsro/backend"
)

// buildShortformDirectory assembles a synthetic shortform directory body
// (inode.inlineData) with 4-byte inode pointers and file-type bytes, for
// tests of readShortformDirectory.
func buildShortformDirectory(parent uint64, children []DirEntry) []byte {
	var b []byte
	b = append(b, byte(len(children)), 0) // count, i8count=0 (4-byte pointers)
	parentBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(parentBuf, uint32(parent))
	b = append(b, parentBuf...)

	for _, c := range children {
		b = append(b, byte(len(c.Name)))
		b = append(b, 0, 0) // opaque offset, unused by the decoder
		b = append(b, []byte(c.Name)...)
		b = append(b, fileTypeToDirFtype(c.FileType))
		childBuf := make([]byte, 4)
		binary.BigEndian.PutUint32(childBuf, uint32(c.Ino))
		b = append(b, childBuf...)
	}
	return b
}

func TestReadShortformDirectory(t *testing.T) {
	geo := Geometry{HasFtype: true}
	c := &ioContext{geo: geo, abort: &abortFlag{}, log: defaultLogger()}

	children := []DirEntry{
		{Name: "foo", Ino: 200, FileType: FileTypeRegular},
		{Name: "bar", Ino: 201, FileType: FileTypeDirectory},
	}
	body := buildShortformDirectory(100, children)
	in := &inode{number: 128, fileType: FileTypeDirectory, dataForkFormat: forkFormatLocal, inlineData: body}

	entries, err := c.readDirectory(in, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 2 synthetic + 2 real entries, got %d", len(entries))
	}
	if entries[0].Name != "." || entries[0].Ino != 128 {
		t.Errorf("expected entry 0 to be '.' -> 128, got %+v", entries[0])
	}
	if entries[1].Name != ".." || entries[1].Ino != 100 {
		t.Errorf("expected entry 1 to be '..' -> 100, got %+v", entries[1])
	}
	if entries[2].Name != "foo" || entries[2].Ino != 200 || entries[2].FileType != FileTypeRegular {
		t.Errorf("unexpected entry 2: %+v", entries[2])
	}
	if entries[3].Name != "bar" || entries[3].Ino != 201 || entries[3].FileType != FileTypeDirectory {
		t.Errorf("unexpected entry 3: %+v", entries[3])
	}
}

func TestReadShortformDirectoryRejectsDuplicateNames(t *testing.T) {
	geo := Geometry{HasFtype: true}
	c := &ioContext{geo: geo, abort: &abortFlag{}, log: defaultLogger()}

	children := []DirEntry{
		{Name: "dup", Ino: 200, FileType: FileTypeRegular},
		{Name: "dup", Ino: 201, FileType: FileTypeRegular},
	}
	body := buildShortformDirectory(100, children)
	in := &inode{number: 128, fileType: FileTypeDirectory, dataForkFormat: forkFormatLocal, inlineData: body}

	if _, err := c.readDirectory(in, 100); err == nil {
		t.Fatal("expected an error for duplicate names in a shortform directory")
	}
}

func TestReadDirectoryRejectsNonDirectory(t *testing.T) {
	c := &ioContext{abort: &abortFlag{}}
	in := &inode{number: 5, fileType: FileTypeRegular}
	if _, err := c.readDirectory(in, 1); err == nil {
		t.Fatal("expected an error when reading a non-directory inode as a directory")
	}
}

// buildBlockDirectoryData builds a single-block v4 directory data block
// (magic XD2D would be the multi-block form; block-form uses XD2B) with a
// minimal bestfree-style header, entries, one unused (freetag) record
// covering the remaining free space, and a trailing leaf tail with zero
// leaf entries.
func buildBlockDirectoryData(dirBlockSize int, entries []DirEntry) []byte {
	buf := make([]byte, dirBlockSize)
	binary.BigEndian.PutUint32(buf[0:4], dirMagicBlockV4)
	pos := dirDataHeaderSizeV4

	for _, e := range entries {
		binary.BigEndian.PutUint64(buf[pos:pos+8], e.Ino)
		buf[pos+8] = byte(len(e.Name))
		copy(buf[pos+9:], e.Name)
		cursor := pos + 9 + len(e.Name)
		buf[cursor] = fileTypeToDirFtype(e.FileType)
		cursor++
		recordEnd := pos + align(cursor-pos+2, dirEntryAlignment)
		binary.BigEndian.PutUint16(buf[recordEnd-2:recordEnd], 0) // tag, unused by the decoder
		pos = recordEnd
	}

	// free space up to the leaf tail is a single unused record.
	if tailStart := len(buf) - 8; pos < tailStart {
		binary.BigEndian.PutUint16(buf[pos:pos+2], dirFreeTag)
		binary.BigEndian.PutUint16(buf[pos+2:pos+4], uint16(tailStart-pos))
	}

	// leaf tail: 8-byte trailer with tailCount=0, no leaf entries.
	binary.BigEndian.PutUint32(buf[len(buf)-8:len(buf)-4], 0)
	binary.BigEndian.PutUint32(buf[len(buf)-4:], 0)
	return buf
}

func TestReadBlockDirectory(t *testing.T) {
	geo := Geometry{BlockSize: 256, DirBlockSize: 256, HasFtype: true}
	c := &ioContext{geo: geo, abort: &abortFlag{}, log: defaultLogger()}

	want := []DirEntry{
		{Name: ".", Ino: 128, FileType: FileTypeDirectory},
		{Name: "..", Ino: 100, FileType: FileTypeDirectory},
		{Name: "file1", Ino: 300, FileType: FileTypeRegular},
	}
	data := buildBlockDirectoryData(int(geo.DirBlockSize), want)
	c.source = backend.FromBytes(data)

	got, err := c.readBlockDirectory(Extent{StartLogicalBlock: 0, StartPhysicalBlock: 0, Length: 1}, 128)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for i, e := range want {
		if got[i].Name != e.Name || got[i].Ino != e.Ino || got[i].FileType != e.FileType {
			t.Errorf("entry %d mismatch: want %+v got %+v", i, e, got[i])
		}
	}
}
