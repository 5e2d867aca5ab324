package branchfs

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

var (
	// ErrInvalidName is returned for names that cannot appear in the merged namespace
	ErrInvalidName = errors.New("invalid name")
	// ErrNameTooLong is returned when the whiteout name would exceed the branch name limit
	ErrNameTooLong = fmt.Errorf("%w: name too long", ErrInvalidName)
	// ErrReadOnlyBranch is returned when a write targets a branch configured read-only
	ErrReadOnlyBranch = errors.New("branch is read-only")
	// ErrNotFound is the negative lookup result
	ErrNotFound = fs.ErrNotExist
	// ErrInvariant is returned when a caller violates a precondition
	ErrInvariant = errors.New("branch invariant violated")
	// ErrWhiteoutCreateFailed is returned when no branch accepted a whiteout
	ErrWhiteoutCreateFailed = errors.New("whiteout creation failed on every branch")
	// ErrNoWritableBranch is returned when a write finds no writable branch to land in
	ErrNoWritableBranch = errors.New("no writable branch")
	// ErrCrossBranch is returned for renames that would have to move a directory between branches
	ErrCrossBranch = errors.New("rename across branches")
	// ErrNotEmpty is returned when removing a directory that still has merged children
	ErrNotEmpty = errors.New("directory not empty")
	// ErrNotDir is returned when a directory was expected
	ErrNotDir = errors.New("not a directory")
	// ErrIsDir is returned when a file operation targets a directory
	ErrIsDir = errors.New("is a directory")
)

// WhiteoutError reports a branch-descent that exhausted every branch.
// Err holds the last underlying failure.
type WhiteoutError struct {
	Dir   string
	Name  string
	Start int
	Err   error
}

func (e *WhiteoutError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("whiteout %s in %s from branch %d: %v", e.Name, e.Dir, e.Start, ErrWhiteoutCreateFailed)
	}
	return fmt.Sprintf("whiteout %s in %s from branch %d: %v: %v", e.Name, e.Dir, e.Start, ErrWhiteoutCreateFailed, e.Err)
}

// Unwrap exposes both ErrWhiteoutCreateFailed and the last cause to errors.Is.
func (e *WhiteoutError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrWhiteoutCreateFailed}
	}
	return []error{ErrWhiteoutCreateFailed, e.Err}
}

// isRecoverable decides whether a branch-descent loop moves on to the next
// branch. Only caller mistakes stop the descent.
func isRecoverable(err error) bool {
	return !errors.Is(err, ErrInvalidName) && !errors.Is(err, ErrInvariant)
}

// isTransient reports branch errors worth retrying in place.
func isTransient(err error) bool {
	return errors.Is(err, syscall.EINTR) ||
		errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EBUSY)
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// branchError normalizes a backend error into a *fs.PathError, folding
// EROFS into ErrReadOnlyBranch.
func branchError(op, p string, err error) error {
	if errors.Is(err, syscall.EROFS) {
		err = ErrReadOnlyBranch
	}
	var pe *fs.PathError
	if errors.As(err, &pe) && pe.Path == p {
		return err
	}
	return &fs.PathError{Op: op, Path: p, Err: err}
}

func invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...))
}
