package xfs

import (
	"github.com/sirupsen/logrus"
	"github.com/xfsro/xfsro/backend"
)

// Warning describes a non-fatal condition surfaced during decode, per
// spec.md §7: checksum mismatches and remote attribute values that are not
// decoded are warnings, not errors; OpenOptions.Strict turns a checksum
// mismatch into an error.
type Warning struct {
	Kind    string
	Detail  string
	Inode   uint64 // 0 when not inode-specific
}

// OpenOptions configures a Volume at Open time, matching the teacher's
// options-struct convention (ext4.Params) rather than positional bools.
type OpenOptions struct {
	// Strict upgrades v5 checksum mismatches from warnings to a returned
	// ChecksumMismatchError.
	Strict bool
	// Logger receives a Warn record for every Warning. Defaults to a new
	// Warn-level logrus.Logger when nil.
	Logger *logrus.Logger
	// OnWarning, if set, is invoked for every non-fatal Warning in
	// addition to the logger.
	OnWarning func(Warning)
	// InodeCacheSize bounds the optional inode decode cache. Zero disables
	// caching (every lookup re-decodes from the ByteSource), which is
	// always correct; a nonzero value is a pure optimisation.
	InodeCacheSize int
}

// ioContext is the value object of spec.md §2.3: decoded geometry plus the
// ByteSource, shared by reference with every downstream decoder. It is
// immutable after construction, so it is safe to share across goroutines
// provided the ByteSource itself is safe for concurrent ReadAt; this
// package does not serialise ReadAt calls on the source.
type ioContext struct {
	geo     Geometry
	source  backend.Storage
	log     *logrus.Logger
	strict  bool
	onWarn  func(Warning)
	abort   *abortFlag
	cache   *inodeCache
}

func (c *ioContext) warn(kind, detail string, inode uint64) {
	w := Warning{Kind: kind, Detail: detail, Inode: inode}
	if c.onWarn != nil {
		c.onWarn(w)
	}
	if inode != 0 {
		c.log.WithFields(logrus.Fields{"kind": kind, "inode": inode}).Warn(detail)
	} else {
		c.log.WithField("kind", kind).Warn(detail)
	}
}

// readAt performs a full, non-partial read through the shared ByteSource.
func (c *ioContext) readAt(b []byte, off int64) error {
	if err := backend.ReadFull(c.source, b, off); err != nil {
		return newIOError(err)
	}
	return nil
}

// agByteOffset returns the absolute byte offset of the start of AG agno.
func (c *ioContext) agByteOffset(agno uint32) int64 {
	return int64(agno) * int64(c.geo.AGBlockCount) * int64(c.geo.BlockSize)
}

// blockByteOffset returns the absolute byte offset of filesystem block
// fsbno, where fsbno is a volume-relative (not AG-relative) block number.
func (c *ioContext) blockByteOffset(fsbno uint64) int64 {
	return int64(fsbno) * int64(c.geo.BlockSize)
}

func defaultLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	return l
}
