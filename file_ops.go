package branchfs

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"path"
	"slices"
	"sort"
)

// Attr describes a merged entry
type Attr struct {
	Name   string
	Path   string
	Mode   fs.FileMode
	IsDir  bool
	Nlink  uint64
	Branch int // highest-priority branch holding the entry
}

// Stat returns the attributes of the entry at name, with the link count
// aggregated over its branches.
func (r *Resolver) Stat(name string) (Attr, error) {
	e, err := r.Lookup(name)
	if err != nil {
		return Attr{}, err
	}
	bstart, _ := e.BranchRange()
	return Attr{
		Name:   e.Name(),
		Path:   e.Path(),
		Mode:   e.Mode(),
		IsDir:  e.IsDir(),
		Nlink:  AggregateNlinks(e.linkSnapshot()),
		Branch: bstart,
	}, nil
}

// ReadFile reads the highest-priority materialization of the file at name.
func (r *Resolver) ReadFile(name string) ([]byte, error) {
	e, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	if e.IsDir() {
		return nil, &fs.PathError{Op: "read", Path: e.Path(), Err: ErrIsDir}
	}
	bstart, _ := e.BranchRange()
	rc, err := r.stack.FS(bstart).Open(e.Handle(bstart))
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// WriteFile writes data to the file at name in the highest writable branch
// at or below the one holding it, creating the file when it does not exist.
func (r *Resolver) WriteFile(name string, data []byte, perm fs.FileMode) error {
	p := cleanPath(name)
	if p == "/" {
		return &fs.PathError{Op: "write", Path: p, Err: ErrIsDir}
	}
	dir, base := path.Split(p)

	d, err := r.lookupDir("write", dir)
	if err != nil {
		return err
	}
	dl := d.Lock()
	defer dl.Unlock()

	start, _ := d.BranchRange()
	if e, err := r.Lookup(p); err == nil {
		if e.IsDir() {
			return &fs.PathError{Op: "write", Path: p, Err: ErrIsDir}
		}
		start, _ = e.BranchRange()
	} else if !isNotExist(err) {
		return err
	}

	target, err := r.writableBranch(start)
	if err != nil {
		return &fs.PathError{Op: "write", Path: p, Err: err}
	}
	parent, fresh, err := r.dirHandle(d, target)
	if err != nil {
		return err
	}
	if fresh {
		defer d.install(target, parent)
	}

	if err := r.clearWhiteout(target, parent, base); err != nil {
		return err
	}
	h, err := r.stack.FS(target).WriteFile(parent, base, bytes.NewReader(data), perm)
	if err != nil {
		return err
	}
	h.Close()

	r.forgetWhiteout(d, base)
	r.cache.invalidateTree(p)
	return nil
}

// Remove deletes the file or empty directory at name from the merged view.
//
// The materialization in the highest-priority branch is removed when that
// branch is writable; a whiteout is placed when the branch is read-only or
// lower branches still hold the name.
func (r *Resolver) Remove(name string) error {
	p := cleanPath(name)
	if p == "/" {
		return &fs.PathError{Op: "remove", Path: p, Err: ErrInvalidName}
	}
	dir, base := path.Split(p)

	d, err := r.lookupDir("remove", dir)
	if err != nil {
		return err
	}
	dl := d.Lock()
	defer dl.Unlock()

	e, err := r.Lookup(p)
	if err != nil {
		return err
	}
	el := e.Lock()
	defer el.Unlock()

	if e.IsDir() {
		children, err := r.mergeDir(e)
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return &fs.PathError{Op: "remove", Path: p, Err: ErrNotEmpty}
		}
	}

	bstart, bend := e.BranchRange()
	needWhiteout := bend > bstart || r.stack.IsReadOnly(bstart)
	if !needWhiteout {
		lower, err := r.lowerExists(d, base, bstart)
		if err != nil {
			return err
		}
		needWhiteout = lower
	}

	if !r.stack.IsReadOnly(bstart) {
		err := r.removeAt(e, bstart)
		switch {
		case errors.Is(err, ErrReadOnlyBranch):
			// read-only medium behind a writable configuration
			needWhiteout = true
		case err != nil:
			return err
		default:
			if err := r.RefreshBranchAfterRename(el, bstart); err != nil {
				return err
			}
		}
	}

	if needWhiteout {
		if _, err := r.CreateWhiteout(dl, base, bstart); err != nil {
			return err
		}
	}

	r.cache.invalidateTree(p)
	return nil
}

// removeAt deletes e's materialization in branch i, including the marker
// files a directory may still hold there.
func (r *Resolver) removeAt(e *Entry, i int) error {
	h := e.Handle(i)
	parent := e.parent.Handle(i)
	if h == nil || parent == nil {
		return invariantf("remove %s: not materialized in branch %d", e.Path(), i)
	}
	fsys := r.stack.FS(i)

	if h.IsDir() {
		list, err := fsys.ReadDir(h)
		if err != nil {
			return err
		}
		for _, de := range list {
			if !IsWhiteout(de.Name()) {
				continue
			}
			if err := fsys.Remove(h, de.Name()); err != nil && !isNotExist(err) {
				return err
			}
		}
	}
	return fsys.Remove(parent, e.Name())
}

// Mkdir creates a directory at name in the highest writable branch at or
// below the parent's. A directory that replaces a whited-out name is made
// opaque so the deleted contents stay hidden.
func (r *Resolver) Mkdir(name string, perm fs.FileMode) error {
	p := cleanPath(name)
	if p == "/" {
		return &fs.PathError{Op: "mkdir", Path: p, Err: fs.ErrExist}
	}
	dir, base := path.Split(p)
	if err := r.codec.Validate(base); err != nil {
		return &fs.PathError{Op: "mkdir", Path: p, Err: err}
	}

	d, err := r.lookupDir("mkdir", dir)
	if err != nil {
		return err
	}
	dl := d.Lock()
	defer dl.Unlock()

	if _, err := r.Lookup(p); err == nil {
		return &fs.PathError{Op: "mkdir", Path: p, Err: fs.ErrExist}
	} else if !isNotExist(err) {
		return err
	}

	start, _ := d.BranchRange()
	target, err := r.writableBranch(start)
	if err != nil {
		return &fs.PathError{Op: "mkdir", Path: p, Err: err}
	}

	hidden, err := r.whitedOut(d, base)
	if err != nil {
		return err
	}

	parent, fresh, err := r.dirHandle(d, target)
	if err != nil {
		return err
	}
	if fresh {
		defer d.install(target, parent)
	}

	if err := r.clearWhiteout(target, parent, base); err != nil {
		return err
	}
	h, err := r.stack.FS(target).Mkdir(parent, base, perm)
	if err != nil {
		return err
	}
	h.Close()

	r.forgetWhiteout(d, base)
	r.cache.invalidateTree(p)

	if hidden {
		return r.makeOpaqueAt(p, target)
	}
	return nil
}

// Rename moves the entry at oldName to newName, which must not exist.
//
// Files held only by a read-only branch are copied up first. Directories
// must live in a single writable branch; others fail with ErrCrossBranch.
// When lower branches still hold the old name, it is whited out.
func (r *Resolver) Rename(oldName, newName string) error {
	oldp, newp := cleanPath(oldName), cleanPath(newName)
	if oldp == newp {
		return nil
	}
	if oldp == "/" || newp == "/" || underPath(newp, oldp) {
		return &fs.PathError{Op: "rename", Path: oldp, Err: ErrInvalidName}
	}
	if err := r.codec.Validate(path.Base(newp)); err != nil {
		return &fs.PathError{Op: "rename", Path: newp, Err: err}
	}

	b, hidden, err := r.rename(oldp, newp)
	if err != nil {
		return err
	}
	if hidden {
		return r.makeOpaqueAt(newp, b)
	}
	return nil
}

// rename moves oldp to newp holding the path locks of both parents and of
// the source. It returns the branch the move happened in and whether a
// directory landed on a whited-out name.
func (r *Resolver) rename(oldp, newp string) (int, bool, error) {
	oldDir, oldBase := path.Split(oldp)
	newDir, newBase := path.Split(newp)

	od, err := r.lookupDir("rename", oldDir)
	if err != nil {
		return -1, false, err
	}
	nd, err := r.lookupDir("rename", newDir)
	if err != nil {
		return -1, false, err
	}

	var (
		e     *Entry
		locks lockSet
	)
	for {
		if e, err = r.Lookup(oldp); err != nil {
			return -1, false, err
		}
		locks = lockOrdered(od, nd, e)
		// the source may have been replaced in the cache while we waited
		if cur, err := r.Lookup(oldp); err == nil && cur == e {
			break
		}
		locks.unlock()
	}
	defer locks.unlock()
	odl, el := locks[od], locks[e]

	if _, err := r.Lookup(newp); err == nil {
		return -1, false, &fs.PathError{Op: "rename", Path: newp, Err: fs.ErrExist}
	} else if !isNotExist(err) {
		return -1, false, err
	}

	bstart, bend := e.BranchRange()
	isDir := e.IsDir()
	b := bstart
	if isDir {
		if bend > bstart || r.stack.IsReadOnly(bstart) {
			return -1, false, &fs.PathError{Op: "rename", Path: oldp, Err: ErrCrossBranch}
		}
	} else if r.stack.IsReadOnly(bstart) {
		if b, err = r.writableBranch(bstart); err != nil {
			return -1, false, &fs.PathError{Op: "rename", Path: oldp, Err: err}
		}
		if err := r.copyUp(e, b); err != nil {
			return -1, false, err
		}
	}

	oldParent := od.Handle(b)
	if oldParent == nil {
		return -1, false, invariantf("rename %s: parent not materialized in branch %d", oldp, b)
	}
	newParent, fresh, err := r.dirHandle(nd, b)
	if err != nil {
		return -1, false, err
	}
	if fresh {
		defer nd.install(b, newParent)
	}

	hidden, err := r.whitedOut(nd, newBase)
	if err != nil {
		return -1, false, err
	}
	if err := r.clearWhiteout(b, newParent, newBase); err != nil {
		return -1, false, err
	}
	if err := r.stack.FS(b).Rename(oldParent, oldBase, newParent, newBase); err != nil {
		return -1, false, err
	}
	r.forgetWhiteout(nd, newBase)

	if err := r.RefreshBranchAfterRename(el, b); err != nil {
		return -1, false, err
	}
	lower, err := r.lowerExists(od, oldBase, b)
	if err != nil {
		return -1, false, err
	}
	if lower {
		if _, err := r.CreateWhiteout(odl, oldBase, b); err != nil {
			return -1, false, err
		}
	}

	r.cache.invalidateTree(oldp)
	r.cache.invalidateTree(newp)
	return b, isDir && hidden, nil
}

// lookupDir resolves a directory entry.
func (r *Resolver) lookupDir(op, dir string) (*Entry, error) {
	d, err := r.Lookup(dir)
	if err != nil {
		return nil, err
	}
	if !d.IsDir() {
		return nil, &fs.PathError{Op: op, Path: d.Path(), Err: ErrNotDir}
	}
	return d, nil
}

// lockSet maps entries to the path locks held on them.
type lockSet map[*Entry]*Locked

// lockOrdered locks each distinct entry once, in path order. Every
// orchestrator that holds several path locks acquires them in this order,
// which puts a parent before its children.
func lockOrdered(entries ...*Entry) lockSet {
	uniq := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if e != nil && !slices.Contains(uniq, e) {
			uniq = append(uniq, e)
		}
	}
	sort.Slice(uniq, func(i, j int) bool {
		return uniq[i].Path() < uniq[j].Path()
	})

	locks := make(lockSet, len(uniq))
	for _, e := range uniq {
		locks[e] = e.Lock()
	}
	return locks
}

func (ls lockSet) unlock() {
	for _, l := range ls {
		l.Unlock()
	}
}

// makeOpaqueAt makes the directory at p opaque in branch i.
func (r *Resolver) makeOpaqueAt(p string, i int) error {
	e, err := r.Lookup(p)
	if err != nil {
		return err
	}
	el := e.Lock()
	defer el.Unlock()
	return r.MakeDirOpaque(el, i)
}

// lowerExists reports whether name still resolves through d in a branch
// below i, that is whether removing it from branch i would expose another
// materialization.
func (r *Resolver) lowerExists(d *Entry, name string, i int) (bool, error) {
	whname, _ := r.codec.Encode(name)
	v := d.view()
	last := v.last()
	if wb, ok := d.WhiteoutBranch(name); ok && wb-1 < last {
		last = wb - 1
	}

	for b := i + 1; b <= last; b++ {
		h := v.handles[b]
		if h == nil || !h.IsDir() {
			continue
		}
		if whname != "" {
			found, err := r.exists(b, h, whname)
			if err != nil {
				return false, err
			}
			if found {
				return false, nil
			}
		}
		found, err := r.exists(b, h, name)
		if err != nil {
			return false, err
		}
		if found {
			return true, nil
		}
	}
	return false, nil
}

// whitedOut reports whether name is currently hidden through d by a
// whiteout, either recorded or present in one of d's branches.
func (r *Resolver) whitedOut(d *Entry, name string) (bool, error) {
	if _, ok := d.WhiteoutBranch(name); ok {
		return true, nil
	}
	whname, err := r.codec.Encode(name)
	if err != nil {
		return false, nil
	}
	v := d.view()
	for b := v.bstart; b >= 0 && b <= v.last(); b++ {
		h := v.handles[b]
		if h == nil || !h.IsDir() {
			continue
		}
		found, err := r.exists(b, h, whname)
		if err != nil || found {
			return found, err
		}
	}
	return false, nil
}

// clearWhiteout removes the whiteout for name below parent in branch i so
// that an entry created there is not hidden by it.
func (r *Resolver) clearWhiteout(i int, parent Handle, name string) error {
	whname, err := r.codec.Encode(name)
	if err != nil {
		return nil
	}
	if err := r.stack.FS(i).Remove(parent, whname); err != nil && !isNotExist(err) {
		return err
	}
	return nil
}

// forgetWhiteout drops d's record of name being whited out.
func (r *Resolver) forgetWhiteout(d *Entry, name string) {
	d.mu.Lock()
	delete(d.whiteouts, name)
	d.mu.Unlock()
}

// exists looks name up below dir in branch i, releasing the handle.
func (r *Resolver) exists(i int, dir Handle, name string) (bool, error) {
	h, err := r.lookupIn(i, dir, name)
	if err != nil {
		if isNotExist(err) {
			return false, nil
		}
		return false, err
	}
	h.Close()
	return true, nil
}
