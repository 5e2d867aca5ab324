package branchfs

import (
	"io"
	"io/fs"
	"path"
	"sync/atomic"
)

// Handle is an owned reference to one materialization inside one branch.
// The owner calls Close exactly once; later calls are no-ops.
type Handle interface {
	// Path is the branch-relative absolute path of the object.
	Path() string
	Name() string
	IsDir() bool
	Mode() fs.FileMode
	// LinkCount is the raw hard-link count as the branch reports it.
	LinkCount() uint64
	Close() error
}

// BranchFS is the capability the resolver needs from one branch filesystem.
// Lookup returns an error satisfying errors.Is(err, fs.ErrNotExist) for
// absent names. Write operations on a read-only medium report ErrReadOnlyBranch.
type BranchFS interface {
	Root() (Handle, error)
	Lookup(parent Handle, name string) (Handle, error)
	CreateFile(parent Handle, name string, perm fs.FileMode) (Handle, error)
	Mkdir(parent Handle, name string, perm fs.FileMode) (Handle, error)
	ReadDir(dir Handle) ([]fs.DirEntry, error)
	Open(h Handle) (io.ReadCloser, error)
	WriteFile(parent Handle, name string, r io.Reader, perm fs.FileMode) (Handle, error)
	Remove(parent Handle, name string) error
	Rename(oldParent Handle, oldName string, newParent Handle, newName string) error
}

// node is the path-addressed Handle shared by the bundled backends.
type node struct {
	path     string
	info     fs.FileInfo
	nlink    func() uint64
	released atomic.Bool
}

func newNode(p string, info fs.FileInfo, nlink func() uint64) *node {
	return &node{path: p, info: info, nlink: nlink}
}

func (n *node) Path() string { return n.path }

func (n *node) Name() string {
	if n.path == "/" {
		return "/"
	}
	return path.Base(n.path)
}

func (n *node) IsDir() bool { return n.info.IsDir() }

func (n *node) Mode() fs.FileMode { return n.info.Mode() }

func (n *node) LinkCount() uint64 {
	if nl, ok := sysLinkCount(n.info); ok {
		return nl
	}
	if n.nlink != nil {
		return n.nlink()
	}
	if n.info.IsDir() {
		return 2
	}
	return 1
}

func (n *node) Close() error {
	n.released.Store(true)
	return nil
}

// countSubdirs derives a directory link count for backends that do not
// expose one: "." plus ".." plus one per child directory.
func countSubdirs(infos []fs.FileInfo) uint64 {
	n := uint64(2)
	for _, fi := range infos {
		if fi.IsDir() {
			n++
		}
	}
	return n
}
