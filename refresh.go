package branchfs

// RefreshBranchAfterRename re-resolves the locked path p in branch i from its
// parent's branch-i directory, after a branch-level rename changed what that
// position refers to. A name that is gone leaves branch i absent; a name that
// is found replaces the cached handle. The previous handle is released.
//
// The parent must have a directory in branch i, otherwise an error wrapping
// ErrInvariant is returned. On any error p is left untouched.
func (r *Resolver) RefreshBranchAfterRename(p *Locked, i int) error {
	e := p.Entry()
	if !r.stack.valid(i) {
		return invariantf("refresh %s: no branch %d", e.Path(), i)
	}
	if e.parent == nil {
		return invariantf("refresh %s: no parent directory", e.Path())
	}
	dir := e.parent.Handle(i)
	if dir == nil || !dir.IsDir() {
		return invariantf("refresh %s: parent has no directory in branch %d", e.Path(), i)
	}

	h, err := r.lookupIn(i, dir, e.Name())
	if err != nil {
		if !isNotExist(err) {
			return err
		}
		h = nil
	}

	if old := e.replace(i, h); old != nil {
		old.Close()
	}
	return nil
}
