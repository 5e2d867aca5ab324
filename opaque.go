package branchfs

import (
	"io/fs"
	"path"
	"sync"
)

// dirKey identifies one directory object inside one branch.
type dirKey struct {
	branch int
	dir    string
}

// dirLock is a directory mutex shared by its current holders and waiters.
// refs is only touched inside dirLocks.Compute.
type dirLock struct {
	mu   sync.Mutex
	refs int
}

// lockDir locks the directory identified by k. The returned function unlocks
// it and drops the table entry once nobody else holds or awaits it.
func (r *Resolver) lockDir(k dirKey) func() {
	l, _ := r.dirLocks.Compute(k, func(l *dirLock, loaded bool) (*dirLock, bool) {
		if !loaded {
			l = &dirLock{}
		}
		l.refs++
		return l, false
	})
	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.dirLocks.Compute(k, func(l *dirLock, loaded bool) (*dirLock, bool) {
			l.refs--
			return l, l.refs == 0
		})
	}
}

// MakeDirOpaque marks the locked directory p as opaque in branch i, so that
// its children are resolved from branches 0..i only. The directory is
// materialized in branch i first when needed.
//
// Unlike CreateWhiteout there is no fallback: a read-only branch or a failed
// marker creation is returned to the caller and p is left unchanged.
func (r *Resolver) MakeDirOpaque(p *Locked, i int) error {
	e := p.Entry()
	if !r.stack.valid(i) {
		return invariantf("opaque %s: no branch %d", e.Path(), i)
	}

	h := e.Handle(i)
	var materialized Handle
	if h == nil {
		m, err := r.materializer.EnsureParentChain(e.Path(), i)
		if err != nil {
			return err
		}
		h, materialized = m, m
	}
	release := func() {
		if materialized != nil {
			materialized.Close()
		}
	}
	if !h.IsDir() {
		release()
		return &fs.PathError{Op: "opaque", Path: e.Path(), Err: ErrNotDir}
	}

	if err := r.placeOpaqueMarker(i, h); err != nil {
		release()
		return err
	}

	e.mu.Lock()
	if materialized != nil {
		e.installLocked(i, materialized)
	}
	e.opaque = i
	e.mu.Unlock()

	r.cache.invalidateChildren(e.Path())
	r.log.WithField("dir", e.Path()).WithField("branch", i).Debug("directory made opaque")
	return nil
}

// placeOpaqueMarker creates the marker below dir in branch i while holding
// that branch directory's mutex.
func (r *Resolver) placeOpaqueMarker(i int, dir Handle) error {
	unlock := r.lockDir(dirKey{branch: i, dir: dir.Path()})
	defer unlock()

	p := path.Join(dir.Path(), OpaqueMarker)
	m, err := r.lookupIn(i, dir, OpaqueMarker)
	switch {
	case err == nil:
		isDir := m.IsDir()
		m.Close()
		if isDir {
			return &fs.PathError{Op: "opaque", Path: p, Err: fs.ErrExist}
		}
		return nil
	case !isNotExist(err):
		return err
	}

	if r.stack.IsReadOnly(i) {
		return &fs.PathError{Op: "opaque", Path: p, Err: ErrReadOnlyBranch}
	}
	created, err := r.stack.FS(i).CreateFile(dir, OpaqueMarker, 0o444)
	if err != nil {
		return err
	}
	created.Close()
	return nil
}
