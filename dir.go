package branchfs

import (
	"io/fs"
	"sort"
	"strings"
)

// ReadDir returns the merged listing of the directory at name.
//
// Upper branches win for names present in several branches, whiteouts hide
// names in the branches below them, and an opaque directory stops the merge.
// Whiteouts and opaque markers are never listed. Entries are sorted by name,
// case-insensitively.
func (r *Resolver) ReadDir(name string) ([]fs.DirEntry, error) {
	e, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	if !e.IsDir() {
		return nil, &fs.PathError{Op: "readdir", Path: e.Path(), Err: ErrNotDir}
	}
	return r.mergeDir(e)
}

// mergeDir merges the branch listings of directory entry e.
func (r *Resolver) mergeDir(e *Entry) ([]fs.DirEntry, error) {
	v := e.view()

	seen := make(map[string]bool)
	whiteouts := make(map[string]bool)
	var entries []fs.DirEntry

	for i := v.bstart; i >= 0 && i <= v.last(); i++ {
		h := v.handles[i]
		if h == nil || !h.IsDir() {
			continue
		}

		list, err := r.stack.FS(i).ReadDir(h)
		if err != nil {
			return nil, err
		}

		// Markers first: a whiteout also hides its name in its own branch
		opaque := false
		for _, de := range list {
			name := de.Name()
			if IsOpaqueMarker(name) {
				opaque = true
			} else if original, ok := r.codec.Decode(name); ok {
				whiteouts[original] = true
			}
		}

		for _, de := range list {
			name := de.Name()
			if IsWhiteout(name) || seen[name] || whiteouts[name] {
				continue
			}
			seen[name] = true
			entries = append(entries, de)
		}

		if opaque {
			break
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return strings.ToLower(entries[i].Name()) < strings.ToLower(entries[j].Name())
	})
	return entries, nil
}
