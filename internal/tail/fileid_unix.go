//go:build !windows

package tail

import (
	"os"
	"syscall"
)

// fileID returns the inode number, which survives renames but changes when
// the path is replaced by a new file.
func fileID(info os.FileInfo) (uint64, bool) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, false
	}
	return st.Ino, true
}
