package xfs

import (
	"sync"
	"time"

	"github.com/xfsro/xfsro/backend"
)

// hostBirthTimeSource is implemented by backend.Storage adapters that can
// surface the backing host file's own birth time, e.g. backend's
// fileStorage via gopkg.in/djherbis/times.v1. It is a narrow optional
// interface rather than a method on backend.Storage itself, since
// memory-backed sources have no host file to report one for.
type hostBirthTimeSource interface {
	HostBirthTime() (time.Time, bool)
}

// ImageInfo is a diagnostic snapshot of a volume's decoded geometry,
// useful for forensic reporting without walking the directory tree --
// supplementing spec.md's read API the way ext4.FileSystem's summary
// accessors supplement its navigation methods in the teacher.
type ImageInfo struct {
	Label             string
	UUID              string
	BlockSize         uint32
	TotalBlocks       uint64
	FreeBlocks        uint64
	FreeSpacePercent  float64
	InodeCount        uint64
	FreeInodes        uint64
	AGCount           uint32
	HasV3Inodes       bool
	HasCRC            bool
	HasFtype          bool
	Uses64BitInodes   bool
	HostBirthTime     time.Time
	HasHostBirthTime  bool
}

// Volume is the top-level read-only handle over one XFS image, per
// spec.md §4.9. It owns the shared ioContext and tracks outstanding
// FileEntry handles so Close can refuse to tear down state still in use,
// mirroring the teacher's pattern of a filesystem object that refuses a
// destructive operation while dependents exist.
type Volume struct {
	ctx *ioContext

	mu          sync.Mutex
	openEntries int
	closed      bool
}

// Open decodes the superblock from source and returns a ready-to-use
// Volume, per spec.md §4.1 and §4.9.
func Open(source backend.Storage, opts OpenOptions) (*Volume, error) {
	sbBuf := make([]byte, superblockSize)
	if err := backend.ReadFull(source, sbBuf, 0); err != nil {
		return nil, newIOError(err)
	}
	geo, err := superblockFromBytes(sbBuf)
	if err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = defaultLogger()
	}

	ctx := &ioContext{
		geo:    *geo,
		source: source,
		log:    log,
		strict: opts.Strict,
		onWarn: opts.OnWarning,
		abort:  &abortFlag{},
		cache:  newInodeCache(opts.InodeCacheSize),
	}

	return &Volume{ctx: ctx}, nil
}

// Label returns the volume's on-disk label.
func (v *Volume) Label() string {
	return v.ctx.geo.Label
}

// ImageInfo returns a diagnostic snapshot of the volume's geometry.
func (v *Volume) ImageInfo() ImageInfo {
	g := v.ctx.geo
	info := ImageInfo{
		Label:           g.Label,
		UUID:            g.UUID.String(),
		BlockSize:       g.BlockSize,
		TotalBlocks:     g.TotalBlocks,
		FreeBlocks:      g.FreeBlocks,
		InodeCount:      g.InodeCount,
		FreeInodes:      g.FreeInodes,
		AGCount:         g.AGCount,
		HasV3Inodes:     g.HasV3Inodes,
		HasCRC:          g.HasCRC,
		HasFtype:        g.HasFtype,
		Uses64BitInodes: g.Uses64BitInodes,
	}
	if g.TotalBlocks > 0 {
		info.FreeSpacePercent = float64(g.FreeBlocks) / float64(g.TotalBlocks) * 100
	}
	if src, ok := v.ctx.source.(hostBirthTimeSource); ok {
		info.HostBirthTime, info.HasHostBirthTime = src.HostBirthTime()
	}
	return info
}

// SignalAbort requests that every in-flight and future decode operation on
// this volume return AbortedError at its next checkpoint, per spec.md §7.
// It never closes the ByteSource and is safe to call from any goroutine.
func (v *Volume) SignalAbort() {
	v.ctx.abort.signal()
}

// ClearAbort reverses SignalAbort, per the resolution of spec.md's open
// question on abort semantics: a volume does not self-heal from an abort,
// a caller must explicitly clear it before further operations succeed.
func (v *Volume) ClearAbort() {
	v.ctx.abort.clear()
}

// RootDirectory returns the FileEntry for the volume's root inode.
func (v *Volume) RootDirectory() (*FileEntry, error) {
	return v.FileEntryByInode(v.ctx.geo.RootInode)
}

// FileEntryByInode decodes and returns the FileEntry for an absolute inode
// number. It returns (nil, nil), not an error, when the inode number is
// structurally valid but decodes to a free/unused inode slot -- callers
// distinguish "does not exist" from "I/O or corruption" the same way
// GetSubEntryByUTF8Name does.
func (v *Volume) FileEntryByInode(number uint64) (*FileEntry, error) {
	if err := v.ctx.abort.checkAborted(); err != nil {
		return nil, err
	}
	in, err := v.ctx.readInode(number)
	if err != nil {
		return nil, err
	}
	if in.fileType == FileTypeUnknown && in.mode == 0 {
		return nil, nil
	}
	return v.newFileEntry(in, ""), nil
}

// FileEntryByUTF8Path resolves a '/'-separated absolute path from the
// root, per spec.md §4.9 and path.go.
func (v *Volume) FileEntryByUTF8Path(path string) (*FileEntry, error) {
	return v.resolvePath(path)
}

// Close releases the volume. It fails with ResourceBusyError while any
// FileEntry issued by this volume has not been passed to ReleaseFileEntry;
// dropping a FileEntry reference does not count as a release, since "open"
// here tracks issuance (see DESIGN.md for the reasoning).
func (v *Volume) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.openEntries > 0 {
		return newResourceBusyError(v.openEntries)
	}
	v.closed = true
	return nil
}

// ReleaseFileEntry decrements the outstanding-entry count tracked for
// Close's busy check. Callers that want Close to succeed while FileEntry
// values remain in scope must explicitly release them first.
func (v *Volume) ReleaseFileEntry(f *FileEntry) {
	if f == nil || f.vol != v {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.openEntries > 0 {
		v.openEntries--
	}
}

func (v *Volume) newFileEntry(in *inode, name string) *FileEntry {
	v.mu.Lock()
	v.openEntries++
	v.mu.Unlock()
	return &FileEntry{vol: v, in: in, name: name}
}

func (v *Volume) fileEntryForChild(e DirEntry) (*FileEntry, error) {
	in, err := v.ctx.readInode(e.Ino)
	if err != nil {
		return nil, err
	}
	return v.newFileEntry(in, e.Name), nil
}
