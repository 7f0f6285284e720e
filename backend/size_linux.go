//go:build linux

package backend

import (
	"os"

	"golang.org/x/sys/unix"
)

// blockDeviceSize asks the kernel for the size of a raw block device via
// the BLKGETSIZE64 ioctl, since os.File.Stat() reports a device node's
// size as zero.
func blockDeviceSize(f *os.File) (int64, bool) {
	sz, err := unix.IoctlGetUint64(int(f.Fd()), unix.BLKGETSIZE64)
	if err != nil {
		return 0, false
	}
	return int64(sz), true
}
