package branchfs

import (
	"errors"
	"testing"
	"time"
)

// TestCacheInvalidation tests that changes made behind the resolver show up
// after invalidation
func TestCacheInvalidation(t *testing.T) {
	r, fss := newTestStack(t, 2)
	writeFile(t, fss[1], "/d/f", "lower")

	if _, err := r.Lookup("/d/f"); err != nil {
		t.Fatal(err)
	}
	writeFile(t, fss[0], "/d/f", "upper")

	// cached entry still points at branch 1
	data, err := r.ReadFile("/d/f")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "lower" {
		t.Errorf("expected cached 'lower', got %q", data)
	}

	r.InvalidateCache("/d")
	data, err = r.ReadFile("/d/f")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "upper" {
		t.Errorf("expected 'upper' after invalidation, got %q", data)
	}
}

// TestNegativeCache tests that failed lookups are remembered for the TTL
func TestNegativeCache(t *testing.T) {
	fsys := newBillyMem()
	fb := newFaultBranch(NewBillyBranch(fsys))
	r := New(WithBranch(fb, false), WithNegativeCache(time.Hour, 10))

	for i := 0; i < 3; i++ {
		if _, err := r.Lookup("/missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("lookup %d: expected not found, got %v", i, err)
		}
	}
	if n := fb.lookupCount("missing"); n != 1 {
		t.Errorf("expected one branch lookup, got %d", n)
	}

	stats := r.CacheStats()
	if !stats.NegativeEnabled || stats.NegativeCacheSize != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	// writes through the resolver clear the negative entry
	if err := r.WriteFile("/missing", []byte("now here"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Lookup("/missing"); err != nil {
		t.Errorf("expected the new file, got %v", err)
	}
}

// TestNegativeCacheEviction tests the size bound of the negative cache
func TestNegativeCacheEviction(t *testing.T) {
	c := newCache(time.Hour, 2)
	c.putNegative("/a")
	c.putNegative("/b")
	c.putNegative("/c")

	if got := c.Stats().NegativeCacheSize; got != 2 {
		t.Errorf("expected 2 negative entries, got %d", got)
	}
	if !c.isNegative("/c") {
		t.Error("newest entry was evicted")
	}
}

// TestNegativeCacheDisabled tests that a zero TTL disables negative caching
func TestNegativeCacheDisabled(t *testing.T) {
	c := newCache(0, 10)
	c.putNegative("/a")
	if c.isNegative("/a") {
		t.Error("negative cache should be disabled")
	}
}

// TestInvalidateTreeNested tests that only the subtree is dropped
func TestInvalidateTreeNested(t *testing.T) {
	c := newCache(0, 0)
	for _, p := range []string{"/a", "/a/b", "/a/b/c", "/ab", "/x"} {
		c.putIfAbsent(p, newEntry(p, nil, 1))
	}

	c.invalidateTree("/a/b")
	for p, want := range map[string]bool{"/a": true, "/a/b": false, "/a/b/c": false, "/ab": true, "/x": true} {
		if _, ok := c.get(p); ok != want {
			t.Errorf("%s cached = %v, want %v", p, ok, want)
		}
	}

	c.invalidateChildren("/a")
	if _, ok := c.get("/a"); !ok {
		t.Error("invalidateChildren dropped the directory itself")
	}
	if _, ok := c.get("/ab"); !ok {
		t.Error("sibling with a shared prefix was dropped")
	}
}

// TestCacheClear tests clearing every entry including the root
func TestCacheClear(t *testing.T) {
	r, fss := newTestStack(t, 1)
	writeFile(t, fss[0], "/a/b", "x")

	root, err := r.Lookup("/")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Lookup("/a/b"); err != nil {
		t.Fatal(err)
	}
	if r.CacheStats().Entries != 2 {
		t.Errorf("expected 2 cached entries, got %d", r.CacheStats().Entries)
	}

	r.ClearCache()
	if r.CacheStats().Entries != 0 {
		t.Errorf("expected empty cache, got %d", r.CacheStats().Entries)
	}
	again, err := r.Lookup("/")
	if err != nil {
		t.Fatal(err)
	}
	if again == root {
		t.Error("root entry survived ClearCache")
	}
}

// TestPutIfAbsentKeepsWinner tests that racing lookups share the first entry
func TestPutIfAbsentKeepsWinner(t *testing.T) {
	c := newCache(0, 0)
	first := newEntry("/p", nil, 1)
	second := newEntry("/p", nil, 1)

	if got := c.putIfAbsent("/p", first); got != first {
		t.Fatal("first insert should win")
	}
	if got := c.putIfAbsent("/p", second); got != first {
		t.Error("second insert replaced the cached entry")
	}
}
