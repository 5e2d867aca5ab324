package branchfs

import (
	"io/fs"
	"path"

	"github.com/sirupsen/logrus"
)

// CreateWhiteout hides name inside the locked directory dir by placing a
// whiteout file in the highest-priority usable branch at or below start,
// trying start first and descending toward branch 0.
//
// A branch is skipped when dir cannot be materialized there, when it is
// read-only, or when creating the whiteout fails for any reason other than an
// invalid name. An existing whiteout counts as success, so calling
// CreateWhiteout again for the same name is a no-op. The branch used is
// returned and recorded in dir per name: WhiteoutBranch(name) reports it, and
// dir's own Opaque is left alone so that siblings of name stay visible in
// lower branches. When every branch fails, the returned
// *WhiteoutError wraps ErrWhiteoutCreateFailed and the last branch error, and
// dir is left unchanged.
//
// Parent directories materialized for a branch that later fails are not
// removed.
func (r *Resolver) CreateWhiteout(dir *Locked, name string, start int) (int, error) {
	d := dir.Entry()
	child := path.Join(d.Path(), name)

	whname, err := r.codec.Encode(name)
	if err != nil {
		return -1, &fs.PathError{Op: "whiteout", Path: child, Err: err}
	}
	if !r.stack.valid(start) {
		return -1, invariantf("whiteout %s: start branch %d outside stack of %d", child, start, r.stack.Len())
	}

	log := r.log.WithFields(logrus.Fields{"dir": d.Path(), "name": name})

	var lastErr error
	for i := start; i >= 0; i-- {
		blog := log.WithField("branch", i)

		parent := d.Handle(i)
		var materialized Handle
		if parent == nil {
			h, err := r.materializer.EnsureParentChain(d.Path(), i)
			if err != nil {
				if !isRecoverable(err) {
					return -1, err
				}
				blog.WithError(err).Debug("cannot materialize directory")
				lastErr = err
				continue
			}
			parent, materialized = h, h
		}

		used, err := r.placeWhiteout(i, parent, whname)
		if err != nil {
			if materialized != nil {
				materialized.Close()
			}
			if !isRecoverable(err) {
				return -1, err
			}
			blog.WithError(err).Debug("whiteout not placed")
			lastErr = err
			continue
		}
		if used {
			r.recordWhiteout(d, name, i, materialized)
			blog.Debug("whiteout in place")
			return i, nil
		}
	}

	log.WithError(lastErr).Warn("whiteout failed on every branch")
	return -1, &WhiteoutError{Dir: d.Path(), Name: name, Start: start, Err: lastErr}
}

// placeWhiteout ensures whname exists as a file below parent in branch i.
func (r *Resolver) placeWhiteout(i int, parent Handle, whname string) (bool, error) {
	p := path.Join(parent.Path(), whname)

	wh, err := r.lookupIn(i, parent, whname)
	switch {
	case err == nil:
		isDir := wh.IsDir()
		wh.Close()
		if isDir {
			return false, &fs.PathError{Op: "whiteout", Path: p, Err: fs.ErrExist}
		}
		return true, nil
	case !isNotExist(err):
		return false, err
	}

	if r.stack.IsReadOnly(i) {
		return false, &fs.PathError{Op: "whiteout", Path: p, Err: ErrReadOnlyBranch}
	}

	h, err := r.stack.FS(i).CreateFile(parent, whname, r.whiteoutMode())
	if err != nil {
		return false, err
	}
	h.Close()
	return true, nil
}

// recordWhiteout notes that name is hidden through d from branch i on.
func (r *Resolver) recordWhiteout(d *Entry, name string, i int, materialized Handle) {
	d.mu.Lock()
	if cur, ok := d.whiteouts[name]; !ok || i < cur {
		d.whiteouts[name] = i
	}
	if materialized != nil {
		d.installLocked(i, materialized)
	}
	d.mu.Unlock()

	r.cache.invalidateTree(path.Join(d.Path(), name))
}
