package branchfs

import (
	"io/fs"
	"path"
)

// Materializer creates the directory chain for a logical directory inside one
// branch so that files can be copied up or markers placed there.
type Materializer interface {
	// EnsureParentChain returns an owned handle for dir in branch, creating
	// missing directories along the way.
	EnsureParentChain(dir string, branch int) (Handle, error)
}

// copyUpMaterializer creates missing directories with the permissions of the
// highest-priority branch that already has them.
type copyUpMaterializer struct {
	r *Resolver
}

func (m *copyUpMaterializer) EnsureParentChain(dir string, branch int) (Handle, error) {
	r := m.r
	dir = cleanPath(dir)
	if !r.stack.valid(branch) {
		return nil, invariantf("materialize %s: no branch %d", dir, branch)
	}
	if r.stack.IsReadOnly(branch) {
		return nil, &fs.PathError{Op: "materialize", Path: dir, Err: ErrReadOnlyBranch}
	}

	fsys := r.stack.FS(branch)
	cur, err := fsys.Root()
	if err != nil {
		return nil, err
	}

	walked := "/"
	for _, part := range splitPath(dir) {
		walked = path.Join(walked, part)

		next, err := r.lookupIn(branch, cur, part)
		if isNotExist(err) {
			next, err = fsys.Mkdir(cur, part, m.dirMode(walked))
			if err == nil {
				r.log.WithField("dir", walked).WithField("branch", branch).Debug("materialized directory")
			}
		}
		cur.Close()
		if err != nil {
			return nil, err
		}
		if !next.IsDir() {
			next.Close()
			return nil, &fs.PathError{Op: "materialize", Path: walked, Err: ErrNotDir}
		}
		cur = next
	}
	return cur, nil
}

// dirMode mirrors the permissions of the merged directory at p.
func (m *copyUpMaterializer) dirMode(p string) fs.FileMode {
	e, err := m.r.Lookup(p)
	if err != nil || !e.IsDir() {
		return 0o755
	}
	if perm := e.Mode().Perm(); perm != 0 {
		return perm
	}
	return 0o755
}
