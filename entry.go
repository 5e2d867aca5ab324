package branchfs

import (
	"io/fs"
	"path"
	"sync"
)

// Entry is the resolver's record of one logical path: which branches hold a
// materialization of it and where lookups below it stop.
//
// Entries are created by Resolver.Lookup and owned by the resolver. Mutating
// operations require the path lock, obtained with Lock.
type Entry struct {
	lock sync.Mutex // path lock, held by callers through *Locked

	mu        sync.RWMutex // guards the fields below, never held across branch I/O
	path      string
	parent    *Entry
	handles   []Handle
	bstart    int
	bend      int
	opaque    int
	whiteouts map[string]int
}

func newEntry(p string, parent *Entry, n int) *Entry {
	return &Entry{
		path:      p,
		parent:    parent,
		handles:   make([]Handle, n),
		bstart:    -1,
		bend:      -1,
		opaque:    -1,
		whiteouts: make(map[string]int),
	}
}

// Locked is proof that the caller holds an entry's path lock.
type Locked struct {
	e *Entry
}

// Lock acquires the path lock of e.
func (e *Entry) Lock() *Locked {
	e.lock.Lock()
	return &Locked{e: e}
}

// Unlock releases the path lock.
func (l *Locked) Unlock() {
	l.e.lock.Unlock()
}

// Entry returns the locked entry.
func (l *Locked) Entry() *Entry {
	return l.e
}

// Path returns the logical path
func (e *Entry) Path() string {
	return e.path
}

// Name returns the last path element
func (e *Entry) Name() string {
	if e.path == "/" {
		return "/"
	}
	return path.Base(e.path)
}

// Parent returns the entry of the containing directory, nil for the root.
func (e *Entry) Parent() *Entry {
	return e.parent
}

// BranchRange returns [bstart, bend], or -1, -1 when nothing is materialized.
func (e *Entry) BranchRange() (int, int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bstart, e.bend
}

// Handle returns the borrowed handle for branch i, nil when absent.
func (e *Entry) Handle(i int) Handle {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if i < 0 || i >= len(e.handles) {
		return nil
	}
	return e.handles[i]
}

// Opaque returns the branch at which the directory became opaque, or -1.
func (e *Entry) Opaque() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.opaque
}

// WhiteoutBranch returns the branch at which child name was whited out
// through this entry.
func (e *Entry) WhiteoutBranch(name string) (int, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, ok := e.whiteouts[name]
	return b, ok
}

// IsDir reports whether the highest-priority materialization is a directory.
func (e *Entry) IsDir() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.bstart < 0 {
		return false
	}
	return e.handles[e.bstart].IsDir()
}

// Mode returns the mode of the highest-priority materialization.
func (e *Entry) Mode() fs.FileMode {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.bstart < 0 {
		return 0
	}
	return e.handles[e.bstart].Mode()
}

// EntrySnapshot is a comparable copy of an entry's state.
type EntrySnapshot struct {
	Path      string
	BStart    int
	BEnd      int
	Opaque    int
	Branches  []string // branch-relative paths, "" when absent
	Whiteouts map[string]int
}

// Snapshot copies the entry's state.
func (e *Entry) Snapshot() EntrySnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := EntrySnapshot{
		Path:      e.path,
		BStart:    e.bstart,
		BEnd:      e.bend,
		Opaque:    e.opaque,
		Branches:  make([]string, len(e.handles)),
		Whiteouts: make(map[string]int, len(e.whiteouts)),
	}
	for i, h := range e.handles {
		if h != nil {
			s.Branches[i] = h.Path()
		}
	}
	for k, v := range e.whiteouts {
		s.Whiteouts[k] = v
	}
	return s
}

// installLocked stores h at branch i unless the slot is taken, in which case
// h is released. Callers hold e.mu.
func (e *Entry) installLocked(i int, h Handle) {
	if e.handles[i] != nil {
		h.Close()
		return
	}
	e.handles[i] = h
	e.recomputeLocked()
}

// install is installLocked for callers that do not hold e.mu.
func (e *Entry) install(i int, h Handle) {
	if h == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.installLocked(i, h)
}

// replace swaps the handle at branch i and returns the previous one, which
// the caller must release.
func (e *Entry) replace(i int, h Handle) Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	old := e.handles[i]
	e.handles[i] = h
	e.recomputeLocked()
	return old
}

func (e *Entry) recomputeLocked() {
	e.bstart, e.bend = -1, -1
	for i, h := range e.handles {
		if h == nil {
			continue
		}
		if e.bstart < 0 {
			e.bstart = i
		}
		e.bend = i
	}
}

// view is the part of an entry lookups and merges read without holding the
// path lock.
type view struct {
	handles []Handle
	bstart  int
	bend    int
	opaque  int
}

func (e *Entry) view() view {
	e.mu.RLock()
	defer e.mu.RUnlock()
	hs := make([]Handle, len(e.handles))
	copy(hs, e.handles)
	return view{handles: hs, bstart: e.bstart, bend: e.bend, opaque: e.opaque}
}

// last returns the lowest-priority branch whose children are merged.
func (v view) last() int {
	if v.opaque >= 0 && v.opaque < v.bend {
		return v.opaque
	}
	return v.bend
}
