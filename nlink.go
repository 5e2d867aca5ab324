package branchfs

// BranchLinks is the raw link count of one branch materialization.
type BranchLinks struct {
	IsDir bool
	Nlink uint64
}

// LinkSnapshot is the input to AggregateNlinks: the logical entry's own
// type and link count, and its materializations from highest priority down.
type LinkSnapshot struct {
	IsDir    bool
	Nlink    uint64
	Branches []BranchLinks
}

// AggregateNlinks computes the hard-link count of a merged entry.
//
// A non-directory reports the count of its highest-priority materialization.
// A directory sums, over its directory materializations, the raw count minus
// the branch's own "." and "..", then adds one "." and ".." for the merged
// directory. Materializations with a raw count of 0 are skipped and a raw
// count of 1 (filesystems that do not count directory links) counts as 2.
func AggregateNlinks(s LinkSnapshot) uint64 {
	if !s.IsDir {
		if len(s.Branches) == 0 {
			return 0
		}
		return s.Branches[0].Nlink
	}
	if s.Nlink == 0 {
		return 0
	}

	var dirs, sum uint64
	for _, b := range s.Branches {
		if !b.IsDir || b.Nlink == 0 {
			continue
		}
		if b.Nlink == 1 {
			sum += 2
		} else {
			sum += b.Nlink - 2
		}
		dirs++
	}
	if dirs == 0 {
		return 0
	}
	return sum + 2
}

// linkSnapshot reads the link counts of e's visible materializations.
func (e *Entry) linkSnapshot() LinkSnapshot {
	v := e.view()
	if v.bstart < 0 {
		return LinkSnapshot{}
	}
	top := v.handles[v.bstart]
	s := LinkSnapshot{
		IsDir: top.IsDir(),
		Nlink: top.LinkCount(),
	}
	for i := v.bstart; i <= v.last(); i++ {
		h := v.handles[i]
		if h == nil {
			continue
		}
		s.Branches = append(s.Branches, BranchLinks{IsDir: h.IsDir(), Nlink: h.LinkCount()})
	}
	return s
}
