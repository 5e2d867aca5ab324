/*
Package branchfs merges an ordered stack of branch filesystems into one
namespace, recording deletions with whiteouts and directory replacement with
opaque markers.

# Overview

A Resolver sits above N branches. Branch 0 has the highest priority; a name
present in several branches resolves to the copy in the lowest-indexed one.
Directories merge: the children of a directory are the union of its children
in every branch that holds it, down to the first branch where it is opaque.

Branches are reached through the BranchFS capability. Two backends are
bundled:

  - NewAbsBranch wraps any absfs.FileSystem (github.com/absfs/memfs, osfs, ...)
  - NewBillyBranch wraps any go-billy filesystem (osfs, memfs, chroot, ...)

# Whiteouts

Deleting a name that a lower branch still holds cannot remove the lower copy,
so a whiteout is placed instead: an empty file named ".wh."+name in the same
directory of a higher branch. A whiteout in branch i hides the name in
branches i and below it in priority.

	upper, _ := memfs.NewFS()
	lower, _ := memfs.NewFS()

	r := branchfs.New(
	    branchfs.WithWritableBranch(branchfs.NewAbsBranch(upper)),
	    branchfs.WithReadOnlyBranch(branchfs.NewAbsBranch(lower)),
	)

	// /etc/motd exists only in lower: this creates /etc/.wh.motd in upper
	err := r.Remove("/etc/motd")

CreateWhiteout is the primitive behind Remove and Rename. It starts at a
given branch and descends toward branch 0 until a branch accepts the
whiteout, materializing the directory chain in branches that lack it and
skipping read-only ones.

# Opaque directories

A directory containing the marker ".wh..wh..opq" in branch i is opaque:
its children are taken from branches 0..i only. Mkdir makes a directory
opaque when it recreates a name that was whited out, so the old contents do
not reappear. MakeDirOpaque never falls back to another branch.

# Locking

CreateWhiteout, MakeDirOpaque and RefreshBranchAfterRename mutate an entry
and take a *Locked, obtained from Entry.Lock, as proof that the caller holds
the entry's path lock:

	d, err := r.Lookup("/etc")
	if err != nil {
	    return err
	}
	dl := d.Lock()
	defer dl.Unlock()

	branch, err := r.CreateWhiteout(dl, "motd", 1)

The orchestrators (Remove, Mkdir, Rename, WriteFile) take the locks they
need, parent before child.

# Link counts

Stat reports the hard-link count of a merged directory as computed by
AggregateNlinks: the sum over its branch directories of their link counts
less their own "." and "..", plus two.

# Caching

Resolved entries are cached until invalidated so that all callers share one
entry, and one path lock, per path. WithNegativeCache also remembers failed
lookups for a while. Changes made to branches behind the resolver's back
require InvalidateCache or ClearCache.
*/
package branchfs
