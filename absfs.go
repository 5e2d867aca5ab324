package branchfs

import (
	"io"
	"io/fs"
	"os"
	"path"

	"github.com/absfs/absfs"
)

// absBranch adapts an absfs.FileSystem to BranchFS
type absBranch struct {
	fs absfs.FileSystem
}

// Ensure absBranch implements BranchFS at compile time
var _ BranchFS = (*absBranch)(nil)

// NewAbsBranch returns a BranchFS backed by an absfs.FileSystem.
//
// Example:
//
//	upper, _ := memfs.NewFS()
//	lower, _ := memfs.NewFS()
//	r := branchfs.New(
//	    branchfs.WithWritableBranch(branchfs.NewAbsBranch(upper)),
//	    branchfs.WithReadOnlyBranch(branchfs.NewAbsBranch(lower)),
//	)
func NewAbsBranch(fsys absfs.FileSystem) BranchFS {
	return &absBranch{fs: fsys}
}

// Root implements BranchFS
func (a *absBranch) Root() (Handle, error) {
	return a.stat("root", "/")
}

// Lookup implements BranchFS
func (a *absBranch) Lookup(parent Handle, name string) (Handle, error) {
	return a.stat("lookup", path.Join(parent.Path(), name))
}

// CreateFile implements BranchFS
func (a *absBranch) CreateFile(parent Handle, name string, perm fs.FileMode) (Handle, error) {
	p := path.Join(parent.Path(), name)
	f, err := a.fs.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if err != nil {
		return nil, branchError("create", p, err)
	}
	if err := f.Close(); err != nil {
		return nil, branchError("create", p, err)
	}
	// Make the mode exact regardless of how the backend filters perm
	if err := a.fs.Chmod(p, perm); err != nil {
		return nil, branchError("chmod", p, err)
	}
	return a.stat("create", p)
}

// Mkdir implements BranchFS
func (a *absBranch) Mkdir(parent Handle, name string, perm fs.FileMode) (Handle, error) {
	p := path.Join(parent.Path(), name)
	if err := a.fs.Mkdir(p, perm); err != nil {
		return nil, branchError("mkdir", p, err)
	}
	return a.stat("mkdir", p)
}

// ReadDir implements BranchFS
func (a *absBranch) ReadDir(dir Handle) ([]fs.DirEntry, error) {
	infos, err := a.readdir(dir.Path())
	if err != nil {
		return nil, err
	}
	entries := make([]fs.DirEntry, len(infos))
	for i, info := range infos {
		entries[i] = fs.FileInfoToDirEntry(info)
	}
	return entries, nil
}

// Open implements BranchFS
func (a *absBranch) Open(h Handle) (io.ReadCloser, error) {
	f, err := a.fs.Open(h.Path())
	if err != nil {
		return nil, branchError("open", h.Path(), err)
	}
	return f, nil
}

// WriteFile implements BranchFS
func (a *absBranch) WriteFile(parent Handle, name string, r io.Reader, perm fs.FileMode) (Handle, error) {
	p := path.Join(parent.Path(), name)
	f, err := a.fs.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
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
	return a.stat("write", p)
}

// Remove implements BranchFS
func (a *absBranch) Remove(parent Handle, name string) error {
	p := path.Join(parent.Path(), name)
	if err := a.fs.Remove(p); err != nil {
		return branchError("remove", p, err)
	}
	return nil
}

// Rename implements BranchFS
func (a *absBranch) Rename(oldParent Handle, oldName string, newParent Handle, newName string) error {
	oldp := path.Join(oldParent.Path(), oldName)
	newp := path.Join(newParent.Path(), newName)
	if err := a.fs.Rename(oldp, newp); err != nil {
		return branchError("rename", oldp, err)
	}
	return nil
}

func (a *absBranch) stat(op, p string) (Handle, error) {
	info, err := a.fs.Stat(p)
	if err != nil {
		return nil, branchError(op, p, err)
	}
	var nlink func() uint64
	if info.IsDir() {
		nlink = func() uint64 {
			infos, err := a.readdir(p)
			if err != nil {
				return 2
			}
			return countSubdirs(infos)
		}
	}
	return newNode(p, info, nlink), nil
}

func (a *absBranch) readdir(p string) ([]os.FileInfo, error) {
	dir, err := a.fs.Open(p)
	if err != nil {
		return nil, branchError("readdir", p, err)
	}
	defer dir.Close()
	infos, err := dir.Readdir(-1)
	if err != nil {
		return nil, branchError("readdir", p, err)
	}
	// inode-backed filesystems list their own "." and ".."
	out := infos[:0]
	for _, info := range infos {
		if n := info.Name(); n != "." && n != ".." {
			out = append(out, info)
		}
	}
	return out, nil
}
