package branchfs

import (
	"fmt"
	"testing"
	"time"

	billy "github.com/go-git/go-billy/v5"
	billymem "github.com/go-git/go-billy/v5/memfs"
	"github.com/sirupsen/logrus/hooks/test"
)

// benchStack builds a resolver over n billy memfs branches, all but the
// first read-only.
func benchStack(n int, opts ...Option) (*Resolver, []billy.Filesystem) {
	logger, _ := test.NewNullLogger()
	fss := make([]billy.Filesystem, n)
	all := []Option{WithLogger(logger)}
	for i := range fss {
		fss[i] = billymem.New()
		all = append(all, WithBranch(NewBillyBranch(fss[i]), i > 0))
	}
	return New(append(all, opts...)...), fss
}

// BenchmarkStat benchmarks Stat on a cached entry from a lower branch
func BenchmarkStat(b *testing.B) {
	r, fss := benchStack(2)
	for i := 0; i < 100; i++ {
		writeFile(b, fss[1], fmt.Sprintf("/file%d.txt", i), "content")
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.Stat("/file50.txt"); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkNegativeLookupWithoutCache benchmarks lookups of missing names
func BenchmarkNegativeLookupWithoutCache(b *testing.B) {
	r, _ := benchStack(4)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.Lookup("/nonexistent.txt"); err == nil {
			b.Fatal("expected error for nonexistent file")
		}
	}
}

// BenchmarkNegativeLookupWithCache benchmarks lookups of missing names with
// the negative cache enabled
func BenchmarkNegativeLookupWithCache(b *testing.B) {
	r, _ := benchStack(4, WithNegativeCache(5*time.Minute, 1000))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.Lookup("/nonexistent.txt"); err == nil {
			b.Fatal("expected error for nonexistent file")
		}
	}
}

// BenchmarkReadFile benchmarks reading a file from a lower branch
func BenchmarkReadFile(b *testing.B) {
	r, fss := benchStack(2)
	writeFile(b, fss[1], "/data.bin", string(make([]byte, 4096)))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.ReadFile("/data.bin"); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkWriteFile benchmarks writing files in the writable branch
func BenchmarkWriteFile(b *testing.B) {
	r, _ := benchStack(2)
	data := []byte("content")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := r.WriteFile(fmt.Sprintf("/file%d.txt", i%100), data, 0o644); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkCopyOnWrite benchmarks the first write to a file held by a
// read-only branch
func BenchmarkCopyOnWrite(b *testing.B) {
	data := []byte("modified")

	for i := 0; i < b.N; i++ {
		b.StopTimer()
		r, fss := benchStack(2)
		mkdirs(b, fss[1], "/etc")
		writeFile(b, fss[1], "/etc/config", "original")
		b.StartTimer()

		if err := r.WriteFile("/etc/config", data, 0o644); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkDirectoryMerge benchmarks listing a directory held by three
// branches
func BenchmarkDirectoryMerge(b *testing.B) {
	r, fss := benchStack(3)
	for layer, fsys := range fss {
		for i := 0; i < 100; i++ {
			writeFile(b, fsys, fmt.Sprintf("/dir/l%d-file%d", layer, i), "x")
		}
		writeFile(b, fsys, fmt.Sprintf("/dir/.wh.l%d-file0", layer+1), "")
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		entries, err := r.ReadDir("/dir")
		if err != nil {
			b.Fatal(err)
		}
		if len(entries) != 298 {
			b.Fatalf("got %d entries", len(entries))
		}
	}
}

// BenchmarkBranchLookupDepth benchmarks resolving a name held only by the
// last of ten branches
func BenchmarkBranchLookupDepth(b *testing.B) {
	r, fss := benchStack(10)
	writeFile(b, fss[9], "/deep/file", "x")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.ClearCache()
		if _, err := r.Lookup("/deep/file"); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkWhiteoutLookup benchmarks resolving a name hidden by a whiteout
func BenchmarkWhiteoutLookup(b *testing.B) {
	r, fss := benchStack(2)
	writeFile(b, fss[1], "/dir/gone", "x")
	writeFile(b, fss[0], "/dir/.wh.gone", "")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.ClearCache()
		if _, err := r.Lookup("/dir/gone"); err == nil {
			b.Fatal("expected whiteout to hide the name")
		}
	}
}

// BenchmarkCreateWhiteout benchmarks placing an already present whiteout
func BenchmarkCreateWhiteout(b *testing.B) {
	r, fss := benchStack(3)
	writeFile(b, fss[2], "/dir/name", "x")

	d, err := r.Lookup("/dir")
	if err != nil {
		b.Fatal(err)
	}
	dl := d.Lock()
	defer dl.Unlock()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.CreateWhiteout(dl, "name", 2); err != nil {
			b.Fatal(err)
		}
	}
}
