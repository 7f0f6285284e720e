package backend

import (
	"fmt"
	"io/fs"
	"os"
	"time"

	times "gopkg.in/djherbis/times.v1"
)

// fileStorage adapts an *os.File (regular image file or raw block device)
// into a Storage. It is always opened read-only: forensic use never writes
// back to the source.
type fileStorage struct {
	f            *os.File
	hostBirth    time.Time
	hostBirthSet bool
}

var _ Storage = (*fileStorage)(nil)

// OpenFile opens pathName read-only as a ByteSource. pathName may be a
// regular file (a volume image) or, on platforms that support it, a raw
// block device.
func OpenFile(pathName string) (Storage, error) {
	if pathName == "" {
		return nil, fmt.Errorf("must pass a path to a volume image or device")
	}
	f, err := os.OpenFile(pathName, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", pathName, err)
	}
	st := &fileStorage{f: f}
	if ts, err := times.Stat(pathName); err == nil && ts.HasBirthTime() {
		st.hostBirth = ts.BirthTime()
		st.hostBirthSet = true
	}
	return st, nil
}

// HostBirthTime returns the birth time of the backing OS file, if the
// platform and filesystem expose one. This is the host file's own
// metadata, not anything decoded from the XFS image it contains.
func (st *fileStorage) HostBirthTime() (time.Time, bool) {
	return st.hostBirth, st.hostBirthSet
}

func (st *fileStorage) Stat() (fs.FileInfo, error) {
	return st.f.Stat()
}

func (st *fileStorage) Read(b []byte) (int, error) {
	return st.f.Read(b)
}

func (st *fileStorage) ReadAt(b []byte, off int64) (int, error) {
	return st.f.ReadAt(b, off)
}

func (st *fileStorage) Seek(offset int64, whence int) (int64, error) {
	return st.f.Seek(offset, whence)
}

func (st *fileStorage) Close() error {
	return st.f.Close()
}

// Size reports the addressable length of the backing file or device. For
// regular files this is the stat size; for block devices it falls back to
// the platform-specific device-size probe in size_linux.go / size_other.go.
func (st *fileStorage) Size() int64 {
	info, err := st.f.Stat()
	if err != nil {
		return -1
	}
	if info.Mode()&os.ModeDevice != 0 {
		if sz, ok := blockDeviceSize(st.f); ok {
			return sz
		}
	}
	return info.Size()
}
