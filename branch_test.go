package branchfs

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// backends returns a fresh branch of every bundled kind
func backends() map[string]BranchFS {
	return map[string]BranchFS{
		"absfs": NewAbsBranch(mustNewMemFS()),
		"billy": NewBillyBranch(newBillyMem()),
	}
}

// TestBranchContract tests the operations the resolver relies on
func TestBranchContract(t *testing.T) {
	for name, b := range backends() {
		t.Run(name, func(t *testing.T) {
			root, err := b.Root()
			if err != nil {
				t.Fatalf("Root: %v", err)
			}
			if !root.IsDir() || root.Path() != "/" {
				t.Errorf("unexpected root %s (dir %v)", root.Path(), root.IsDir())
			}

			if _, err := b.Lookup(root, "missing"); !errors.Is(err, fs.ErrNotExist) {
				t.Errorf("expected ErrNotExist, got %v", err)
			}

			dir, err := b.Mkdir(root, "dir", 0o755)
			if err != nil {
				t.Fatalf("Mkdir: %v", err)
			}
			if !dir.IsDir() || dir.Path() != "/dir" || dir.Name() != "dir" {
				t.Errorf("unexpected directory handle %s (name %s, dir %v)", dir.Path(), dir.Name(), dir.IsDir())
			}

			if _, err := b.Mkdir(root, "dir", 0o755); !errors.Is(err, fs.ErrExist) {
				t.Errorf("expected ErrExist, got %v", err)
			}

			f, err := b.WriteFile(dir, "file", strings.NewReader("content"), 0o644)
			if err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			if f.IsDir() {
				t.Error("file handle reports a directory")
			}
			if f.LinkCount() == 0 {
				t.Error("expected a link count")
			}

			rc, err := b.Open(f)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			data, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != "content" {
				t.Errorf("expected 'content', got '%s'", string(data))
			}

			if _, err := b.Mkdir(dir, "sub", 0o755); err != nil {
				t.Fatalf("Mkdir sub: %v", err)
			}
			if name == "billy" {
				// derived from the listing: no backend link counts
				if n := dir.LinkCount(); n != 3 {
					t.Errorf("expected 3 links with one subdirectory, got %d", n)
				}
			}

			entries, err := b.ReadDir(dir)
			if err != nil {
				t.Fatalf("ReadDir: %v", err)
			}
			got := names(entries)
			sort.Strings(got)
			if diff := cmp.Diff([]string{"file", "sub"}, got); diff != "" {
				t.Errorf("listing mismatch (-want +got):\n%s", diff)
			}

			if err := b.Rename(dir, "file", root, "moved"); err != nil {
				t.Fatalf("Rename: %v", err)
			}
			if _, err := b.Lookup(dir, "file"); !errors.Is(err, fs.ErrNotExist) {
				t.Errorf("old name still resolves: %v", err)
			}
			moved, err := b.Lookup(root, "moved")
			if err != nil {
				t.Fatalf("Lookup moved: %v", err)
			}

			if err := b.Remove(root, "moved"); err != nil {
				t.Fatalf("Remove: %v", err)
			}
			if err := b.Remove(root, "moved"); !errors.Is(err, fs.ErrNotExist) {
				t.Errorf("expected ErrNotExist, got %v", err)
			}

			if err := moved.Close(); err != nil {
				t.Fatal(err)
			}
			if err := moved.Close(); err != nil {
				t.Errorf("Close is idempotent, got %v", err)
			}
		})
	}
}

// TestBillyCreateFileExclusive tests that CreateFile never truncates
func TestBillyCreateFileExclusive(t *testing.T) {
	fsys := newBillyMem()
	b := NewBillyBranch(fsys)
	root, err := b.Root()
	if err != nil {
		t.Fatal(err)
	}

	h, err := b.CreateFile(root, ".wh.x", 0o640)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if perm := h.Mode().Perm(); perm != 0o640 {
		t.Errorf("expected mode 0640, got %v", perm)
	}

	if _, err := b.WriteFile(root, "data", bytes.NewReader([]byte("keep")), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := b.CreateFile(root, "data", 0o644); !errors.Is(err, fs.ErrExist) {
		t.Errorf("expected ErrExist, got %v", err)
	}

	info, err := fsys.Stat("/data")
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 4 {
		t.Errorf("file was truncated to %d bytes", info.Size())
	}
}

// TestBranchErrorReadOnly tests that EROFS is reported as ErrReadOnlyBranch
func TestBranchErrorReadOnly(t *testing.T) {
	err := branchError("create", "/x", &fs.PathError{Op: "open", Path: "/x", Err: errRofs})
	if !errors.Is(err, ErrReadOnlyBranch) {
		t.Errorf("expected ErrReadOnlyBranch, got %v", err)
	}

	var pe *fs.PathError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *fs.PathError, got %T", err)
	}
	if pe.Path != "/x" {
		t.Errorf("expected path /x, got %s", pe.Path)
	}

	if !isRecoverable(err) {
		t.Error("read-only errors are recoverable")
	}
	if isRecoverable(ErrNameTooLong) || isRecoverable(invariantf("x")) {
		t.Error("invalid names and invariant failures are not recoverable")
	}
}
