package branchfs

import (
	"fmt"
	"strings"
)

// Branch is one member of the stack
type Branch struct {
	FS       BranchFS
	ReadOnly bool
}

// Stack is the ordered list of branches, index 0 has the highest priority.
type Stack struct {
	branches []Branch
}

// Len returns the number of branches
func (s *Stack) Len() int {
	return len(s.branches)
}

// FS returns the filesystem of branch i
func (s *Stack) FS(i int) BranchFS {
	return s.branches[i].FS
}

// IsReadOnly reports whether branch i is configured read-only
func (s *Stack) IsReadOnly(i int) bool {
	return s.branches[i].ReadOnly
}

func (s *Stack) valid(i int) bool {
	return i >= 0 && i < len(s.branches)
}

// BranchSpec is one element of a unionfs "dirs=" option
type BranchSpec struct {
	Dir      string
	ReadOnly bool
}

// ParseBranchSpec parses "dir1=rw:dir2=ro:dir3". A branch without a mode is
// writable when it is the first one and read-only otherwise.
func ParseBranchSpec(spec string) ([]BranchSpec, error) {
	spec = strings.TrimPrefix(strings.TrimSpace(spec), "dirs=")
	if spec == "" {
		return nil, fmt.Errorf("empty branch specification")
	}
	var out []BranchSpec
	for i, part := range strings.Split(spec, ":") {
		if part == "" {
			return nil, fmt.Errorf("branch %d: empty directory", i)
		}
		dir, mode, hasMode := strings.Cut(part, "=")
		if dir == "" {
			return nil, fmt.Errorf("branch %d: empty directory", i)
		}
		b := BranchSpec{Dir: dir, ReadOnly: i > 0}
		if hasMode {
			switch mode {
			case "rw":
				b.ReadOnly = false
			case "ro":
				b.ReadOnly = true
			default:
				return nil, fmt.Errorf("branch %d (%s): unknown mode %q", i, dir, mode)
			}
		}
		out = append(out, b)
	}
	return out, nil
}
