package backend

import (
	"bytes"
	"io/fs"
	"time"
)

// memoryStorage adapts an in-memory byte slice into a Storage, for tests
// and for small images read entirely into memory by the caller.
type memoryStorage struct {
	r    *bytes.Reader
	size int64
}

var _ Storage = (*memoryStorage)(nil)

// FromBytes wraps b (not copied) as a ByteSource.
func FromBytes(b []byte) Storage {
	return &memoryStorage{r: bytes.NewReader(b), size: int64(len(b))}
}

func (m *memoryStorage) Stat() (fs.FileInfo, error) {
	return memoryFileInfo{size: m.size}, nil
}

func (m *memoryStorage) Read(b []byte) (int, error) {
	return m.r.Read(b)
}

func (m *memoryStorage) ReadAt(b []byte, off int64) (int, error) {
	return m.r.ReadAt(b, off)
}

func (m *memoryStorage) Seek(offset int64, whence int) (int64, error) {
	return m.r.Seek(offset, whence)
}

func (m *memoryStorage) Close() error {
	return nil
}

func (m *memoryStorage) Size() int64 {
	return m.size
}

type memoryFileInfo struct {
	size int64
}

func (i memoryFileInfo) Name() string       { return "" }
func (i memoryFileInfo) Size() int64        { return i.size }
func (i memoryFileInfo) Mode() fs.FileMode  { return 0o444 }
func (i memoryFileInfo) ModTime() time.Time { return time.Time{} }
func (i memoryFileInfo) IsDir() bool        { return false }
func (i memoryFileInfo) Sys() interface{}   { return nil }
