//go:build unix

package branchfs

import (
	"io/fs"
	"syscall"
)

func sysLinkCount(info fs.FileInfo) (uint64, bool) {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return uint64(st.Nlink), true
	}
	return 0, false
}
