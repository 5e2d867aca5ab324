//go:build !unix

package branchfs

import "io/fs"

func sysLinkCount(fs.FileInfo) (uint64, bool) {
	return 0, false
}
