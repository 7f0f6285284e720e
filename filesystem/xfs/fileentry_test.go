package xfs

import (
	"testing"
	"time"
)

func newTestVolume() (*Volume, *ioContext) {
	c := &ioContext{
		geo:   Geometry{HasFtype: true},
		abort: &abortFlag{},
		log:   defaultLogger(),
		cache: newInodeCache(16),
	}
	return &Volume{ctx: c}, c
}

func TestFileEntryAccessors(t *testing.T) {
	v, _ := newTestVolume()
	at := time.Unix(1000, 0)
	in := &inode{
		number:     42,
		mode:       0o644,
		fileType:   FileTypeRegular,
		uid:        1000,
		gid:        1000,
		nlink:      1,
		size:       123,
		accessTime: at,
	}
	f := v.newFileEntry(in, "hello.txt")

	if f.GetInodeNumber() != 42 {
		t.Errorf("unexpected inode number: %d", f.GetInodeNumber())
	}
	if f.GetFileMode() != 0o644 {
		t.Errorf("unexpected mode: %o", f.GetFileMode())
	}
	if f.GetFileType() != FileTypeRegular {
		t.Errorf("unexpected file type: %v", f.GetFileType())
	}
	if f.GetOwner() != 1000 || f.GetGroup() != 1000 {
		t.Errorf("unexpected owner/group: %d/%d", f.GetOwner(), f.GetGroup())
	}
	if f.GetSize() != 123 {
		t.Errorf("unexpected size: %d", f.GetSize())
	}
	if !f.GetAccessTime().Equal(at) {
		t.Errorf("unexpected access time: %v", f.GetAccessTime())
	}
	if name, ok := f.GetName(); !ok || name != "hello.txt" {
		t.Errorf("unexpected name: %q, %v", name, ok)
	}
}

func TestFileEntryGetNameFalseWhenUnnamed(t *testing.T) {
	v, _ := newTestVolume()
	f := v.newFileEntry(&inode{number: 128, fileType: FileTypeDirectory}, "")
	if _, ok := f.GetName(); ok {
		t.Error("expected GetName to report false for an entry with no recorded name")
	}
}

func TestFileEntryGetCreationTimeAbsentOnV4(t *testing.T) {
	v, _ := newTestVolume()
	f := v.newFileEntry(&inode{number: 1, hasCreateTime: false}, "")
	if _, ok := f.GetCreationTime(); ok {
		t.Error("expected GetCreationTime to report false when hasCreateTime is unset")
	}
}

func TestFileEntrySymlinkTargetOnNonSymlinkErrors(t *testing.T) {
	v, _ := newTestVolume()
	f := v.newFileEntry(&inode{number: 1, fileType: FileTypeRegular}, "")
	if _, err := f.GetSymlinkTarget(); err == nil {
		t.Fatal("expected an error when reading the symlink target of a non-symlink")
	}
}

func TestFileEntryReadBufferOnNonRegularErrors(t *testing.T) {
	v, _ := newTestVolume()
	f := v.newFileEntry(&inode{number: 1, fileType: FileTypeDirectory}, "")
	if _, err := f.ReadBufferAtOffset(0, 10); err == nil {
		t.Fatal("expected an error when reading file content from a non-regular entry")
	}
}

func TestFileEntryDirectoryTraversal(t *testing.T) {
	v, ctx := newTestVolume()

	child1 := &inode{number: 200, fileType: FileTypeRegular, mode: 0o644}
	child2 := &inode{number: 201, fileType: FileTypeDirectory, mode: 0o755}
	ctx.cache.put(200, child1)
	ctx.cache.put(201, child2)

	body := buildShortformDirectory(100, []DirEntry{
		{Name: "foo", Ino: 200, FileType: FileTypeRegular},
		{Name: "bar", Ino: 201, FileType: FileTypeDirectory},
	})
	dirIn := &inode{number: 128, fileType: FileTypeDirectory, dataForkFormat: forkFormatLocal, inlineData: body}
	dir := v.newFileEntry(dirIn, "")

	n, err := dir.GetNumberOfSubEntries()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 4 { // '.', '..', foo, bar
		t.Fatalf("expected 4 sub-entries, got %d", n)
	}

	foo, err := dir.GetSubEntryByUTF8Name("foo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if foo == nil || foo.GetInodeNumber() != 200 {
		t.Fatalf("expected to resolve 'foo' to inode 200, got %+v", foo)
	}

	missing, err := dir.GetSubEntryByUTF8Name("nonexistent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected a nil, nil result for a missing name, got %+v", missing)
	}

	byIndex, err := dir.GetSubEntryByIndex(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if byIndex.GetInodeNumber() != 200 {
		t.Fatalf("expected index 2 to be inode 200, got %d", byIndex.GetInodeNumber())
	}

	if _, err := dir.GetSubEntryByIndex(99); err == nil {
		t.Fatal("expected an out-of-bounds error for an invalid sub-entry index")
	}
}

func TestFileEntryExtendedAttributes(t *testing.T) {
	v, _ := newTestVolume()
	want := []ExtendedAttribute{
		{Namespace: "user", Name: "a", Value: []byte("1")},
	}
	body := buildShortformAttrs(want)
	in := &inode{number: 1, forkOffset: 1, attrForkFormat: forkFormatLocal, inlineAttr: body}
	f := v.newFileEntry(in, "")

	n, err := f.GetNumberOfExtendedAttributes()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 extended attribute, got %d", n)
	}

	got, err := f.GetExtendedAttributeByIndex(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "a" || string(got.Value) != "1" {
		t.Fatalf("unexpected attribute: %+v", got)
	}

	if _, err := f.GetExtendedAttributeByIndex(5); err == nil {
		t.Fatal("expected an out-of-bounds error for an invalid attribute index")
	}
}

func TestFileEntryNoExtendedAttributesWhenNoForkOffset(t *testing.T) {
	v, _ := newTestVolume()
	f := v.newFileEntry(&inode{number: 1, forkOffset: 0}, "")
	n, err := f.GetNumberOfExtendedAttributes()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 extended attributes when forkOffset is zero, got %d", n)
	}
}
