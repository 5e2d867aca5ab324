package branchfs

import (
	"io/fs"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"
)

// Resolver maintains the merged view of a branch stack
type Resolver struct {
	stack        *Stack
	codec        NameCodec
	umask        fs.FileMode
	materializer Materializer
	cache        *Cache
	log          logrus.FieldLogger

	lookupAttempts uint
	lookupDelay    time.Duration

	dirLocks *xsync.MapOf[dirKey, *dirLock]

	rootMu sync.Mutex
	root   *Entry
}

// Option is a functional option for configuring a Resolver
type Option func(*Resolver)

// WithWritableBranch adds a writable branch at the top of the stack
func WithWritableBranch(fsys BranchFS) Option {
	return func(r *Resolver) {
		r.stack.branches = append([]Branch{{FS: fsys}}, r.stack.branches...)
	}
}

// WithReadOnlyBranch appends a read-only branch below the existing ones
func WithReadOnlyBranch(fsys BranchFS) Option {
	return func(r *Resolver) {
		r.stack.branches = append(r.stack.branches, Branch{FS: fsys, ReadOnly: true})
	}
}

// WithBranch appends a branch below the existing ones
func WithBranch(fsys BranchFS, readOnly bool) Option {
	return func(r *Resolver) {
		r.stack.branches = append(r.stack.branches, Branch{FS: fsys, ReadOnly: readOnly})
	}
}

// WithMaxNameLen sets the longest name the branch filesystems accept
func WithMaxNameLen(n int) Option {
	return func(r *Resolver) {
		r.codec = NameCodec{MaxNameLen: n}
	}
}

// WithUmask sets the mask applied to whiteout files (default 022)
func WithUmask(mask fs.FileMode) Option {
	return func(r *Resolver) {
		r.umask = mask & fs.ModePerm
	}
}

// WithMaterializer replaces the default copy-up materializer
func WithMaterializer(m Materializer) Option {
	return func(r *Resolver) {
		r.materializer = m
	}
}

// WithNegativeCache caches failed lookups for ttl
func WithNegativeCache(ttl time.Duration, maxEntries int) Option {
	return func(r *Resolver) {
		r.cache = newCache(ttl, maxEntries)
	}
}

// WithLogger sets the logger used for branch-descent decisions
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Resolver) {
		r.log = l
	}
}

// WithLookupRetry retries branch lookups that fail with a transient error
// (EINTR, EAGAIN, EBUSY). Attempts of 1 or less disable retrying.
func WithLookupRetry(attempts uint, delay time.Duration) Option {
	return func(r *Resolver) {
		r.lookupAttempts = attempts
		r.lookupDelay = delay
	}
}

// New creates a new Resolver with the specified options
func New(opts ...Option) *Resolver {
	r := &Resolver{
		stack:          &Stack{},
		codec:          DefaultCodec,
		umask:          0o022,
		cache:          newCache(0, 0),
		log:            logrus.StandardLogger(),
		lookupAttempts: 1,
		dirLocks:       xsync.NewMapOf[dirKey, *dirLock](),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.materializer == nil {
		r.materializer = &copyUpMaterializer{r: r}
	}
	return r
}

// Stack returns the branch stack
func (r *Resolver) Stack() *Stack {
	return r.stack
}

// Codec returns the whiteout name codec in use
func (r *Resolver) Codec() NameCodec {
	return r.codec
}

// Lookup resolves a logical path to its entry, merging the branch stack
// from the root down. Absent paths return an error wrapping fs.ErrNotExist.
func (r *Resolver) Lookup(name string) (*Entry, error) {
	p := cleanPath(name)

	if e, ok := r.cache.get(p); ok {
		return e, nil
	}
	if r.cache.isNegative(p) {
		return nil, &fs.PathError{Op: "lookup", Path: p, Err: fs.ErrNotExist}
	}

	cur, err := r.rootEntry()
	if err != nil {
		return nil, err
	}

	walked := "/"
	for _, part := range splitPath(p) {
		walked = path.Join(walked, part)
		if e, ok := r.cache.get(walked); ok {
			cur = e
			continue
		}
		if !cur.IsDir() {
			return nil, &fs.PathError{Op: "lookup", Path: walked, Err: ErrNotDir}
		}
		child, err := r.lookupChild(cur, part)
		if err != nil {
			if isNotExist(err) {
				r.cache.putNegative(walked)
			}
			return nil, err
		}
		cur = r.cache.putIfAbsent(walked, child)
	}
	return cur, nil
}

// lookupChild merges name across the branches of directory d. Scanning goes
// from d's highest-priority branch down and stops at a whiteout, at a
// non-directory, at an opaque directory, and never passes d's own opacity or
// a whiteout recorded through d.
func (r *Resolver) lookupChild(d *Entry, name string) (*Entry, error) {
	p := path.Join(d.Path(), name)
	if err := r.codec.Validate(name); err != nil {
		return nil, &fs.PathError{Op: "lookup", Path: p, Err: err}
	}
	// A name too long to carry a whiteout can never have been whited out
	whname, _ := r.codec.Encode(name)

	v := d.view()
	last := v.last()
	if wb, ok := d.WhiteoutBranch(name); ok && wb-1 < last {
		last = wb - 1
	}

	child := newEntry(p, d, r.stack.Len())
	for i := v.bstart; i >= 0 && i <= last; i++ {
		parent := v.handles[i]
		if parent == nil || !parent.IsDir() {
			continue
		}

		if whname != "" {
			wh, err := r.lookupIn(i, parent, whname)
			if err == nil {
				wh.Close()
				break
			}
			if !isNotExist(err) {
				r.releaseEntry(child)
				return nil, err
			}
		}

		h, err := r.lookupIn(i, parent, name)
		if err != nil {
			if isNotExist(err) {
				continue
			}
			r.releaseEntry(child)
			return nil, err
		}

		if child.bstart >= 0 && !(h.IsDir() && child.handles[child.bstart].IsDir()) {
			// an upper materialization of another type hides this one
			h.Close()
			break
		}
		child.handles[i] = h
		child.recomputeLocked()
		if !h.IsDir() {
			break
		}

		m, err := r.lookupIn(i, h, OpaqueMarker)
		if err == nil {
			m.Close()
			child.opaque = i
			break
		}
		if !isNotExist(err) {
			r.releaseEntry(child)
			return nil, err
		}
	}

	if child.bstart < 0 {
		return nil, &fs.PathError{Op: "lookup", Path: p, Err: fs.ErrNotExist}
	}
	return child, nil
}

// rootEntry resolves "/" in every branch once.
func (r *Resolver) rootEntry() (*Entry, error) {
	r.rootMu.Lock()
	defer r.rootMu.Unlock()

	if r.root != nil {
		return r.root, nil
	}
	if r.stack.Len() == 0 {
		return nil, &fs.PathError{Op: "lookup", Path: "/", Err: ErrNoWritableBranch}
	}

	root := newEntry("/", nil, r.stack.Len())
	for i := 0; i < r.stack.Len(); i++ {
		h, err := r.stack.FS(i).Root()
		if err != nil {
			r.releaseEntry(root)
			return nil, err
		}
		root.handles[i] = h
		m, err := r.lookupIn(i, h, OpaqueMarker)
		if err == nil {
			m.Close()
			root.opaque = i
			break
		}
		if !isNotExist(err) {
			r.releaseEntry(root)
			return nil, err
		}
	}
	root.recomputeLocked()
	r.root = root
	return root, nil
}

// lookupIn looks name up below parent in branch i, retrying transient
// failures when configured to.
func (r *Resolver) lookupIn(i int, parent Handle, name string) (Handle, error) {
	fsys := r.stack.FS(i)
	if r.lookupAttempts <= 1 {
		return fsys.Lookup(parent, name)
	}
	return retry.DoWithData(
		func() (Handle, error) {
			return fsys.Lookup(parent, name)
		},
		retry.Attempts(r.lookupAttempts),
		retry.Delay(r.lookupDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(isTransient),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			r.log.WithFields(logrus.Fields{
				"branch":  i,
				"name":    name,
				"attempt": n + 1,
			}).WithError(err).Debug("retrying branch lookup")
		}),
	)
}

// releaseEntry closes every handle of an entry that never became visible.
func (r *Resolver) releaseEntry(e *Entry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, h := range e.handles {
		if h != nil {
			h.Close()
			e.handles[i] = nil
		}
	}
	e.recomputeLocked()
}

// whiteoutMode is the permission of whiteout files: everything the umask allows.
func (r *Resolver) whiteoutMode() fs.FileMode {
	return ^r.umask & fs.ModePerm
}

// InvalidateCache drops the entries for a path and everything below it,
// forcing the next lookup to consult the branches again
func (r *Resolver) InvalidateCache(name string) {
	p := cleanPath(name)
	if p == "/" {
		r.ClearCache()
		return
	}
	r.cache.invalidateTree(p)
}

// ClearCache drops every cached entry, including the root
func (r *Resolver) ClearCache() {
	r.cache.clear()
	r.rootMu.Lock()
	r.root = nil
	r.rootMu.Unlock()
}

// CacheStats returns cache statistics
func (r *Resolver) CacheStats() CacheStats {
	return r.cache.Stats()
}

// cleanPath normalizes a path
func cleanPath(p string) string {
	cleaned := path.Clean("/" + p)
	return cleaned
}

// splitPath splits a clean absolute path into components
func splitPath(p string) []string {
	p = strings.Trim(cleanPath(p), "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
