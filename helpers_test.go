package branchfs

import (
	"io/fs"
	"os"
	"sync"
	"syscall"
	"testing"

	"github.com/absfs/absfs"
	"github.com/absfs/memfs"
	billy "github.com/go-git/go-billy/v5"
	billymem "github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// mustNewMemFS creates a new absfs memfs or panics
func mustNewMemFS() absfs.FileSystem {
	mfs, err := memfs.NewFS()
	if err != nil {
		panic(err)
	}
	return mfs
}

// newTestStack builds a resolver over n billy memfs branches. Branches
// listed in readOnly are configured read-only.
func newTestStack(t testing.TB, n int, readOnly ...int) (*Resolver, []billy.Filesystem) {
	t.Helper()
	ro := make(map[int]bool, len(readOnly))
	for _, i := range readOnly {
		ro[i] = true
	}

	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	fss := make([]billy.Filesystem, n)
	opts := []Option{WithLogger(logger)}
	for i := 0; i < n; i++ {
		fss[i] = billymem.New()
		opts = append(opts, WithBranch(NewBillyBranch(fss[i]), ro[i]))
	}
	return New(opts...), fss
}

// mkdirs creates directories in a branch filesystem
func mkdirs(t testing.TB, fsys billy.Filesystem, dirs ...string) {
	t.Helper()
	for _, d := range dirs {
		if err := fsys.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}
}

// writeFile writes a file into a branch filesystem
func writeFile(t testing.TB, fsys billy.Filesystem, name, data string) {
	t.Helper()
	if err := util.WriteFile(fsys, name, []byte(data), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

// exists reports whether name exists in a branch filesystem
func exists(fsys billy.Filesystem, name string) bool {
	_, err := fsys.Stat(name)
	return err == nil
}

// lookupLocked resolves p and takes its path lock for the rest of the test
func lookupLocked(t *testing.T, r *Resolver, p string) *Locked {
	t.Helper()
	e, err := r.Lookup(p)
	if err != nil {
		t.Fatalf("lookup %s: %v", p, err)
	}
	l := e.Lock()
	t.Cleanup(l.Unlock)
	return l
}

// names returns the names of directory entries
func names(entries []fs.DirEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name()
	}
	return out
}

// faultBranch wraps a BranchFS and injects errors by child name
type faultBranch struct {
	BranchFS

	mu        sync.Mutex
	lookupErr map[string]error
	transient map[string]int // remaining EAGAIN failures per name
	createErr error
	lookups   map[string]int
}

func newFaultBranch(inner BranchFS) *faultBranch {
	return &faultBranch{
		BranchFS:  inner,
		lookupErr: make(map[string]error),
		transient: make(map[string]int),
		lookups:   make(map[string]int),
	}
}

func (f *faultBranch) failLookup(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookupErr[name] = err
}

func (f *faultBranch) failCreate(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createErr = err
}

func (f *faultBranch) Lookup(parent Handle, name string) (Handle, error) {
	f.mu.Lock()
	f.lookups[name]++
	err := f.lookupErr[name]
	if err == nil && f.transient[name] > 0 {
		f.transient[name]--
		err = &fs.PathError{Op: "lookup", Path: name, Err: errAgain}
	}
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.BranchFS.Lookup(parent, name)
}

func (f *faultBranch) CreateFile(parent Handle, name string, perm fs.FileMode) (Handle, error) {
	f.mu.Lock()
	err := f.createErr
	f.mu.Unlock()
	if err != nil {
		return nil, &fs.PathError{Op: "create", Path: name, Err: err}
	}
	return f.BranchFS.CreateFile(parent, name, perm)
}

func (f *faultBranch) lookupCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups[name]
}

// released reports whether a handle from a bundled backend was closed
func released(h Handle) bool {
	n, ok := h.(*node)
	return ok && n.released.Load()
}

var errAgain error = syscall.EAGAIN

// newBillyMem returns an empty in-memory billy filesystem
func newBillyMem() billy.Filesystem {
	return billymem.New()
}

// writeAbs writes a file into an absfs filesystem
func writeAbs(t *testing.T, fsys absfs.FileSystem, name, data string) {
	t.Helper()
	f, err := fsys.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	defer f.Close()
	if _, err := f.Write([]byte(data)); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}
var errRofs error = syscall.EROFS
