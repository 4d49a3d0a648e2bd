//go:build windows

package tail

import "os"

// fileID is unavailable on Windows without opening a handle; rotation
// detection falls back to the size-shrink check.
func fileID(info os.FileInfo) (uint64, bool) {
	return 0, false
}
