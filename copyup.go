package branchfs

import (
	"fmt"
	"io/fs"
)

// writableBranch returns the first writable branch found descending from
// start toward branch 0.
func (r *Resolver) writableBranch(start int) (int, error) {
	for i := start; i >= 0; i-- {
		if !r.stack.IsReadOnly(i) {
			return i, nil
		}
	}
	return -1, ErrNoWritableBranch
}

// dirHandle returns dir's handle in branch i, materializing the directory
// there when it is absent. fresh handles are owned by the caller until they
// are installed into dir.
func (r *Resolver) dirHandle(dir *Entry, i int) (h Handle, fresh bool, err error) {
	if h := dir.Handle(i); h != nil {
		if !h.IsDir() {
			return nil, false, &fs.PathError{Op: "lookup", Path: dir.Path(), Err: ErrNotDir}
		}
		return h, false, nil
	}
	h, err = r.materializer.EnsureParentChain(dir.Path(), i)
	if err != nil {
		return nil, false, err
	}
	return h, true, nil
}

// copyUp copies the file at e from its highest-priority branch into branch
// dst, materializing the parent directory there first.
func (r *Resolver) copyUp(e *Entry, dst int) error {
	bstart, _ := e.BranchRange()
	if bstart < 0 {
		return &fs.PathError{Op: "copyup", Path: e.Path(), Err: fs.ErrNotExist}
	}
	if bstart == dst {
		return nil
	}
	src := e.Handle(bstart)
	if src.IsDir() {
		return &fs.PathError{Op: "copyup", Path: e.Path(), Err: ErrIsDir}
	}
	if e.parent == nil {
		return invariantf("copyup %s: no parent directory", e.Path())
	}

	parent, fresh, err := r.dirHandle(e.parent, dst)
	if err != nil {
		return err
	}
	if fresh {
		defer e.parent.install(dst, parent)
	}

	rc, err := r.stack.FS(bstart).Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer rc.Close()

	h, err := r.stack.FS(dst).WriteFile(parent, e.Name(), rc, src.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to copy file contents: %w", err)
	}
	e.install(dst, h)

	r.log.WithField("path", e.Path()).WithField("from", bstart).WithField("to", dst).Debug("copied up")
	return nil
}
