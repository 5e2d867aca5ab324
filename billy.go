package branchfs

import (
	"io"
	"io/fs"
	"os"
	"path"

	billy "github.com/go-git/go-billy/v5"
)

// billyBranch adapts a go-billy filesystem to BranchFS
type billyBranch struct {
	fs billy.Filesystem
}

var _ BranchFS = (*billyBranch)(nil)

// NewBillyBranch returns a BranchFS backed by a billy.Filesystem, e.g.
// osfs.New(dir) for a directory on disk.
func NewBillyBranch(fsys billy.Filesystem) BranchFS {
	return &billyBranch{fs: fsys}
}

// Root creates the root directory of filesystems that start out empty
func (b *billyBranch) Root() (Handle, error) {
	if _, err := b.fs.Stat("/"); isNotExist(err) {
		if err := b.fs.MkdirAll("/", 0o755); err != nil {
			return nil, branchError("root", "/", err)
		}
	}
	return b.stat("root", "/")
}

func (b *billyBranch) Lookup(parent Handle, name string) (Handle, error) {
	return b.stat("lookup", path.Join(parent.Path(), name))
}

func (b *billyBranch) CreateFile(parent Handle, name string, perm fs.FileMode) (Handle, error) {
	p := path.Join(parent.Path(), name)
	f, err := b.fs.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if err != nil {
		return nil, branchError("create", p, err)
	}
	if err := f.Close(); err != nil {
		return nil, branchError("create", p, err)
	}
	if ch, ok := b.fs.(billy.Change); ok {
		if err := ch.Chmod(p, perm); err != nil {
			return nil, branchError("chmod", p, err)
		}
	}
	return b.stat("create", p)
}

// Mkdir creates exactly one level; billy only offers MkdirAll.
func (b *billyBranch) Mkdir(parent Handle, name string, perm fs.FileMode) (Handle, error) {
	p := path.Join(parent.Path(), name)
	if _, err := b.fs.Stat(p); err == nil {
		return nil, branchError("mkdir", p, fs.ErrExist)
	} else if !isNotExist(err) {
		return nil, branchError("mkdir", p, err)
	}
	if err := b.fs.MkdirAll(p, perm); err != nil {
		return nil, branchError("mkdir", p, err)
	}
	return b.stat("mkdir", p)
}

func (b *billyBranch) ReadDir(dir Handle) ([]fs.DirEntry, error) {
	infos, err := b.fs.ReadDir(dir.Path())
	if err != nil {
		return nil, branchError("readdir", dir.Path(), err)
	}
	entries := make([]fs.DirEntry, len(infos))
	for i, info := range infos {
		entries[i] = fs.FileInfoToDirEntry(info)
	}
	return entries, nil
}

func (b *billyBranch) Open(h Handle) (io.ReadCloser, error) {
	f, err := b.fs.Open(h.Path())
	if err != nil {
		return nil, branchError("open", h.Path(), err)
	}
	return f, nil
}

func (b *billyBranch) WriteFile(parent Handle, name string, r io.Reader, perm fs.FileMode) (Handle, error) {
	p := path.Join(parent.Path(), name)
	f, err := b.fs.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return nil, branchError("write", p, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return nil, branchError("write", p, err)
	}
	if err := f.Close(); err != nil {
		return nil, branchError("write", p, err)
	}
	return b.stat("write", p)
}

func (b *billyBranch) Remove(parent Handle, name string) error {
	p := path.Join(parent.Path(), name)
	if err := b.fs.Remove(p); err != nil {
		return branchError("remove", p, err)
	}
	return nil
}

func (b *billyBranch) Rename(oldParent Handle, oldName string, newParent Handle, newName string) error {
	oldp := path.Join(oldParent.Path(), oldName)
	newp := path.Join(newParent.Path(), newName)
	if err := b.fs.Rename(oldp, newp); err != nil {
		return branchError("rename", oldp, err)
	}
	return nil
}

func (b *billyBranch) stat(op, p string) (Handle, error) {
	info, err := b.fs.Stat(p)
	if err != nil {
		return nil, branchError(op, p, err)
	}
	var nlink func() uint64
	if info.IsDir() {
		nlink = func() uint64 {
			infos, err := b.fs.ReadDir(p)
			if err != nil {
				return 2
			}
			return countSubdirs(infos)
		}
	}
	return newNode(p, info, nlink), nil
}
