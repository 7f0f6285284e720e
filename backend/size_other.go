//go:build !linux

package backend

import "os"

// blockDeviceSize has no portable implementation outside Linux; callers
// fall back to os.FileInfo.Size(), which is sufficient for volume images
// presented as regular files.
func blockDeviceSize(_ *os.File) (int64, bool) {
	return 0, false
}
