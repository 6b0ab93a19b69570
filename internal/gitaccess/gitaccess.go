// Package gitaccess is the Git access layer (§4.4): everything above it
// (the GitHub-shape encoders, the raw content handler, the archive
// producer) asks this package for commits, trees, blobs and working-tree
// status, and never touches internal/gitdb or git2go directly.
//
// Grounded on the teacher's gitobjects.go (ReadObject/WriteObject — the
// raw object-database access this package's GetObject generalizes) and
// git-backup.go's file_to_blob (the uncommitted-file hashing this
// package's ResolveBlob generalizes from "hash a backup source file" to
// "hash a working-tree file honoring Git's status classes").
package gitaccess

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"lab.nexedi.com/kirr/git-httpd/internal/gitdb"
	"lab.nexedi.com/kirr/git-httpd/internal/giterr"
	"lab.nexedi.com/kirr/git-httpd/internal/refparse"
)

// Access is an open handle on one on-disk repository.
type Access struct {
	repoPath string
	repo     *gitdb.Repository
}

// Open opens the repository at repoPath.
func Open(repoPath string) (*Access, error) {
	repo, err := gitdb.Open(repoPath)
	if err != nil {
		return nil, giterr.NotFound("open repository %s: %v", repoPath, err)
	}
	return &Access{repoPath: repoPath, repo: repo}, nil
}

// Close releases the underlying native repository handle.
func (a *Access) Close() {
	a.repo.Free()
}

// Path returns the filesystem path this handle was opened from.
func (a *Access) Path() string { return a.repoPath }

// Workdir returns the repository's working tree directory, or "" if it is
// bare (in which case no uncommitted/working-tree behavior applies).
func (a *Access) Workdir() string { return a.repo.Workdir() }

// ListRefs satisfies refparse.RefLister.
func (a *Access) ListRefs() ([]gitdb.RefName, error) {
	return a.repo.ListRefs()
}

// CurrentBranch returns the short name of HEAD if it is a symbolic
// reference (a checked-out branch), or ("", false) if HEAD is detached.
func (a *Access) CurrentBranch() (name string, ok bool) {
	_, branch, err := a.repo.Head()
	if err != nil || branch == "" {
		return "", false
	}
	return branch, true
}

// DefaultBranch returns "main" if it exists, else "master" if it exists,
// else whatever CurrentBranch reports (which may itself be "" for a
// detached or empty repository).
func (a *Access) DefaultBranch() string {
	if _, err := a.repo.LookupBranch("main"); err == nil {
		return "main"
	}
	if _, err := a.repo.LookupBranch("master"); err == nil {
		return "master"
	}
	name, _ := a.CurrentBranch()
	return name
}

// IsCheckedOut reports whether ref names the commit HEAD currently points
// at.
func (a *Access) IsCheckedOut(ref string) bool {
	headOid, _, err := a.repo.Head()
	if err != nil {
		return false
	}
	refOid, err := a.ResolveCommit(ref)
	if err != nil {
		return false
	}
	return headOid.String() == refOid.String()
}

// ResolveCommit resolves a ref name, a full sha or an abbreviated sha
// prefix to a commit oid. Branches, tags, full shas and unambiguous
// abbreviated shas are all handled by a single RevparseSingle+Peel call:
// libgit2's revparse already performs exactly the "try ref, then try
// shortened-oid expansion" sequence that §4.3 describes, and an ambiguous
// prefix or unknown name both come back as a plain resolution failure,
// which this layer surfaces uniformly as NotFound.
func (a *Access) ResolveCommit(refOrSha string) (*gitdb.Oid, error) {
	obj, err := a.repo.RevparseSingle(refOrSha)
	if err != nil {
		return nil, giterr.NotFound("No commit found for the ref %s", refOrSha)
	}
	defer obj.Free()

	peeled, err := obj.Peel(gitdb.ObjectCommit)
	if err != nil {
		return nil, giterr.NotFound("No commit found for the ref %s", refOrSha)
	}
	defer peeled.Free()
	return peeled.Id(), nil
}

// ResolveBlob resolves the blob oid that should be served for path at ref,
// implementing §4.4's committed/uncommitted decision.
func (a *Access) ResolveBlob(ctx context.Context, ref, path string, includeUncommitted bool) (*gitdb.Oid, error) {
	commitOid, err := a.ResolveCommit(ref)
	if err != nil {
		return nil, err
	}
	commit, err := a.repo.LookupCommit(commitOid)
	if err != nil {
		return nil, giterr.NotFound("commit %s not found", commitOid)
	}
	defer commit.Free()

	tree, err := commit.Tree()
	if err != nil {
		return nil, giterr.NotFound("tree for commit %s not found", commitOid)
	}
	defer tree.Free()

	committedBlobOid := func() (*gitdb.Oid, error) {
		entry, err := tree.EntryByPath(path)
		if err != nil || entry.Type != gitdb.ObjectBlob {
			return nil, giterr.NotFound("%s not found at %s", path, ref)
		}
		return entry.Id, nil
	}

	if !includeUncommitted {
		return committedBlobOid()
	}

	status, err := fileStatus(ctx, a.repoPath, path)
	if err != nil {
		// Tolerate a racing external writer: fall back to the
		// committed object rather than failing the request (§5).
		return committedBlobOid()
	}

	switch status {
	case StatusUnmodified:
		return committedBlobOid()
	case StatusAbsent, StatusDeleted:
		return nil, giterr.NotFound("%s not found at %s", path, ref)
	default: // Modified, Added, Ignored
		data, err := os.ReadFile(filepath.Join(a.repoPath, path))
		if err != nil {
			return nil, giterr.NotFound("%s not found at %s", path, ref)
		}
		// §4.4 permits, but does not require, writing the uncommitted
		// blob into the object store; doing so means GetObject and the
		// get-blob encoder can address it by oid the same way a
		// committed blob is addressed, instead of needing a separate
		// in-memory-content code path.
		odb, err := a.repo.Odb()
		if err != nil {
			return nil, giterr.Upstream(err, "open object database")
		}
		defer odb.Free()
		oid, err := odb.Write(data, gitdb.ObjectBlob)
		if err != nil {
			return nil, giterr.Upstream(err, "write uncommitted blob for %s", path)
		}
		return oid, nil
	}
}

// GetRawContent resolves path at ref to a blob and returns its bytes.
func (a *Access) GetRawContent(ctx context.Context, ref, path string, includeUncommitted bool) ([]byte, error) {
	blobOid, err := a.ResolveBlob(ctx, ref, path, includeUncommitted)
	if err != nil {
		return nil, err
	}
	return a.readBlobBytes(blobOid)
}

func (a *Access) readBlobBytes(oid *gitdb.Oid) ([]byte, error) {
	odb, err := a.repo.Odb()
	if err != nil {
		return nil, giterr.Upstream(err, "open object database")
	}
	defer odb.Free()
	obj, err := odb.Read(oid)
	if err != nil {
		return nil, giterr.NotFound("object %s not found", oid)
	}
	return obj.Data(), nil
}

// Object is a generic, type-tagged raw object returned by GetObject.
type Object struct {
	Oid  *gitdb.Oid
	Type gitdb.ObjectType
	Data []byte
}

// GetObject gives raw access to the object database by oid, for the
// get-blob encoder and Smart HTTP introspection.
func (a *Access) GetObject(oid *gitdb.Oid) (*Object, error) {
	odb, err := a.repo.Odb()
	if err != nil {
		return nil, giterr.Upstream(err, "open object database")
	}
	defer odb.Free()
	obj, err := odb.Read(oid)
	if err != nil {
		return nil, giterr.NotFound("object %s not found", oid)
	}
	return &Object{Oid: obj.Id(), Type: obj.Type(), Data: obj.Data()}, nil
}

// ResolvedObject is what ResolveObject returns: either a blob or a tree,
// found by walking a commit's tree to a path.
type ResolvedObject struct {
	Type gitdb.ObjectType
	Oid  *gitdb.Oid
}

// ResolveObject walks the tree rooted at commitOid to path and reports
// whether it names a blob or a tree.
func (a *Access) ResolveObject(commitOid *gitdb.Oid, path string) (*ResolvedObject, error) {
	commit, err := a.repo.LookupCommit(commitOid)
	if err != nil {
		return nil, giterr.NotFound("commit %s not found", commitOid)
	}
	defer commit.Free()
	tree, err := commit.Tree()
	if err != nil {
		return nil, giterr.NotFound("tree for commit %s not found", commitOid)
	}
	defer tree.Free()

	path = strings.Trim(path, "/")
	if path == "" {
		return &ResolvedObject{Type: gitdb.ObjectTree, Oid: tree.Id()}, nil
	}

	entry, err := tree.EntryByPath(path)
	if err != nil {
		return nil, giterr.NotFound("%s not found", path)
	}
	return &ResolvedObject{Type: entry.Type, Oid: entry.Id}, nil
}

// Tree is the resolved result of ResolveTree: a tree oid plus its direct
// entries (not recursive; see CollectTreeEntries for deep listings).
type Tree struct {
	Oid     *gitdb.Oid
	Entries []gitdb.TreeEntry
}

// ResolveTree resolves refOrSha to a tree, peeling commits and annotated
// tags as needed. A single RevparseSingle+Peel(ObjectTree) call implements
// every case §4.4 enumerates (tree-direct, commit-to-tree, tag-to-tree):
// libgit2's peel already follows tags through to their target and commits
// to their tree in one step.
func (a *Access) ResolveTree(refOrSha string) (*Tree, error) {
	obj, err := a.repo.RevparseSingle(refOrSha)
	if err != nil {
		return nil, giterr.NotFound("no tree found for %s", refOrSha)
	}
	defer obj.Free()

	peeled, err := obj.Peel(gitdb.ObjectTree)
	if err != nil {
		return nil, giterr.NotFound("no tree found for %s", refOrSha)
	}
	defer peeled.Free()

	tree, err := peeled.AsTree()
	if err != nil {
		return nil, giterr.NotFound("%s does not resolve to a tree", refOrSha)
	}
	defer tree.Free()

	n := tree.EntryCount()
	entries := make([]gitdb.TreeEntry, 0, n)
	for i := uint64(0); i < n; i++ {
		e := tree.EntryByIndex(i)
		entries = append(entries, *e)
	}
	return &Tree{Oid: tree.Id(), Entries: entries}, nil
}

// CollectedEntry is one tree entry found by CollectTreeEntries, with its
// slash-separated path from the listing's root.
type CollectedEntry struct {
	Path string
	gitdb.TreeEntry
}

// CollectTreeEntries depth-first enumerates a tree's entries, optionally
// recursing into sub-trees, accumulating into acc with prefix prepended to
// every path ("dir/file.go" rather than "file.go" once inside "dir").
func (a *Access) CollectTreeEntries(entries []gitdb.TreeEntry, acc []CollectedEntry, prefix string, deep bool) ([]CollectedEntry, error) {
	for _, e := range entries {
		path := e.Name
		if prefix != "" {
			path = prefix + "/" + e.Name
		}
		acc = append(acc, CollectedEntry{Path: path, TreeEntry: e})

		if deep && e.Type == gitdb.ObjectTree {
			sub, err := a.repo.LookupTree(e.Id)
			if err != nil {
				return nil, giterr.NotFound("tree %s not found", e.Id)
			}
			n := sub.EntryCount()
			subEntries := make([]gitdb.TreeEntry, 0, n)
			for i := uint64(0); i < n; i++ {
				subEntries = append(subEntries, *sub.EntryByIndex(i))
			}
			sub.Free()

			acc, err = a.CollectTreeEntries(subEntries, acc, path, deep)
			if err != nil {
				return nil, err
			}
		}
	}
	return acc, nil
}

// CommitInfo is one entry of a CommitLog result.
type CommitInfo struct {
	Oid       *gitdb.Oid
	TreeOid   *gitdb.Oid
	Author    gitdb.Signature
	Committer gitdb.Signature
	Message   string
	ParentOid []*gitdb.Oid
}

// CommitLogCap bounds the number of commits a single CommitLog call
// returns, matching GitHub's own list-commits pagination default so that
// browsing a large repository cannot make a single request unbounded.
const CommitLogCap = 100

// blobAtPath looks up the blob oid at path in commit's tree. The second
// return is false (with a nil error) when path does not name a blob in
// that tree, e.g. it is absent or names a directory.
func blobAtPath(commit *gitdb.Commit, path string) (oid *gitdb.Oid, exists bool, err error) {
	tree, err := commit.Tree()
	if err != nil {
		return nil, false, err
	}
	defer tree.Free()

	entry, err := tree.EntryByPath(path)
	if err != nil {
		return nil, false, nil
	}
	if entry.Type != gitdb.ObjectBlob {
		return nil, false, nil
	}
	return entry.Id, true, nil
}

func commitInfoOf(commit *gitdb.Commit) CommitInfo {
	info := CommitInfo{
		Oid:       commit.Id(),
		TreeOid:   commit.TreeId(),
		Author:    commit.Author(),
		Committer: commit.Committer(),
		Message:   commit.Message(),
	}
	for i := uint(0); i < commit.ParentCount(); i++ {
		info.ParentOid = append(info.ParentOid, commit.ParentId(i))
	}
	return info
}

// CommitLog lists commits reachable from refOrSha in reverse chronological
// order, capped at CommitLogCap. When path is non-empty, only commits whose
// blob at path differs from the one in their first parent are kept (the
// commit that introduces the path, having no parent blob to compare
// against, always counts as changing it); walking stops once the path can
// no longer be found in an ancestor, i.e. it "disappears" going further
// back in history (§4.4).
func (a *Access) CommitLog(refOrSha, path string) ([]CommitInfo, error) {
	startOid, err := a.ResolveCommit(refOrSha)
	if err != nil {
		return nil, err
	}

	walker, err := a.repo.Walk()
	if err != nil {
		return nil, giterr.Upstream(err, "create revision walker")
	}
	defer walker.Free()
	if err := walker.Push(startOid); err != nil {
		return nil, giterr.Upstream(err, "push %s onto revision walker", startOid)
	}

	var out []CommitInfo
	pathSeen := false

	for len(out) < CommitLogCap {
		oid, err := walker.Next()
		if err != nil {
			return nil, giterr.Upstream(err, "walk revisions")
		}
		if oid == nil {
			break
		}

		commit, err := a.repo.LookupCommit(oid)
		if err != nil {
			continue
		}

		if path == "" {
			out = append(out, commitInfoOf(commit))
			commit.Free()
			continue
		}

		curOid, curExists, err := blobAtPath(commit, path)
		if err != nil {
			commit.Free()
			return nil, giterr.Upstream(err, "read tree for commit %s", oid)
		}

		if !curExists {
			if pathSeen {
				// the path existed in more recent history and has
				// now disappeared going further back: stop.
				commit.Free()
				break
			}
			commit.Free()
			continue
		}
		pathSeen = true

		changed := true
		if commit.ParentCount() > 0 {
			parent, perr := a.repo.LookupCommit(commit.ParentId(0))
			if perr == nil {
				parentOid, parentExists, berr := blobAtPath(parent, path)
				parent.Free()
				if berr == nil {
					changed = !parentExists || parentOid.String() != curOid.String()
				}
			}
		}

		if !changed {
			commit.Free()
			continue
		}

		out = append(out, commitInfoOf(commit))
		commit.Free()
	}

	return out, nil
}

// SortedRefs returns the repository's local branch and tag names sorted
// alphabetically by short name.
func (a *Access) SortedRefs() ([]gitdb.RefName, error) {
	refs, err := a.repo.ListRefs()
	if err != nil {
		return nil, err
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ShortName < refs[j].ShortName })
	return refs, nil
}

// SplitRefPath splits a "<ref>/<path...>" URL segment using this
// repository's own ref list (§4.3).
func (a *Access) SplitRefPath(segment string) (ref, path string, err error) {
	return refparse.Split(a, segment)
}
