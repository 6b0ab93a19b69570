// Package gitdb wraps github.com/libgit2/git2go/v31 with unconditional
// safety, the way the teacher's internal/git package does.
//
// git2go.Object.Data() (and several other accessors) return []byte or
// string values that alias memory owned by a cgo object. If that object is
// garbage-collected before the caller is done with the alias, the program
// either crashes or silently reads corrupted memory — the bug does not
// "speak" at the call site, which is what makes it dangerous. Rather than
// asking every caller in internal/gitaccess, internal/ghshape and
// internal/archiveproducer to remember a runtime.KeepAlive at the right
// place, this package is the single spot that touches git2go directly; it
// copies data out before returning and calls runtime.KeepAlive itself, so
// everything exposed from here is safe to hold onto for as long as the
// caller likes.
package gitdb

import (
	"crypto/sha1"
	"fmt"
	"runtime"

	git2go "github.com/libgit2/git2go/v31"
)

// Re-exported constants and types that are safe to propagate as-is: they are
// plain values with no aliasing concerns.
const (
	ObjectAny     = git2go.ObjectAny
	ObjectInvalid = git2go.ObjectInvalid
	ObjectCommit  = git2go.ObjectCommit
	ObjectTree    = git2go.ObjectTree
	ObjectBlob    = git2go.ObjectBlob
	ObjectTag     = git2go.ObjectTag

	ReferenceSymbolic = git2go.ReferenceSymbolic
	ReferenceOid      = git2go.ReferenceOid

	ErrorCodeNotFound  = git2go.ErrorCodeNotFound
	ErrorCodeAmbiguous = git2go.ErrorCodeAmbiguous
	ErrorCodeIterOver  = git2go.ErrorCodeIterOver
)

type (
	ObjectType    = git2go.ObjectType
	ReferenceType = git2go.ReferenceType
	Oid           = git2go.Oid
	Filemode      = git2go.Filemode
)

// IsErrorCode reports whether err is a *git2go.GitError with the given code.
func IsErrorCode(err error, code git2go.ErrorCode) bool {
	return git2go.IsErrorCode(err, code)
}

// NewOid parses a 40-hex string into an Oid.
func NewOid(s string) (*Oid, error) {
	oid, err := git2go.NewOid(s)
	if err != nil {
		return nil, err
	}
	return oid, nil
}

func oidClone(oid *Oid) *Oid {
	if oid == nil {
		return nil
	}
	var clone Oid
	copy(clone[:], oid[:])
	return &clone
}

func bytesClone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Repository is a safe handle on an on-disk repository. The caller owns its
// lifecycle and must call Free when done.
type Repository struct {
	raw *git2go.Repository
}

// Open opens the repository rooted at path (bare or with a working tree).
func Open(path string) (*Repository, error) {
	raw, err := git2go.OpenRepository(path)
	if err != nil {
		return nil, err
	}
	return &Repository{raw: raw}, nil
}

// Free releases the native repository handle.
func (r *Repository) Free() {
	if r.raw != nil {
		r.raw.Free()
	}
}

// Path returns the path of the repository's .git directory.
func (r *Repository) Path() string {
	p := r.raw.Path()
	runtime.KeepAlive(r)
	return p
}

// Workdir returns the repository's working directory, or "" if bare.
func (r *Repository) Workdir() string {
	w := r.raw.Workdir()
	runtime.KeepAlive(r)
	return w
}

// IsBare reports whether the repository has no working directory.
func (r *Repository) IsBare() bool {
	b := r.raw.IsBare()
	runtime.KeepAlive(r)
	return b
}

// Odb returns the repository's object database.
func (r *Repository) Odb() (*Odb, error) {
	odb, err := r.raw.Odb()
	if err != nil {
		return nil, err
	}
	return &Odb{odb: odb}, nil
}

// Head returns the resolved OID that HEAD points at, and the symbolic
// branch name if HEAD is a symbolic reference (branch checkout) rather than
// a detached commit.
func (r *Repository) Head() (oid *Oid, branch string, err error) {
	ref, err := r.raw.Head()
	if err != nil {
		return nil, "", err
	}
	defer ref.Free()
	target := oidClone(ref.Target())
	name := ref.Name()
	if isSymbolicBranch(name) {
		branch = shortBranchName(name)
	}
	runtime.KeepAlive(r)
	return target, branch, nil
}

func isSymbolicBranch(refname string) bool {
	return len(refname) > len("refs/heads/") && refname[:len("refs/heads/")] == "refs/heads/"
}

func shortBranchName(refname string) string {
	return refname[len("refs/heads/"):]
}

// LookupCommit looks up a commit object directly by oid.
func (r *Repository) LookupCommit(oid *Oid) (*Commit, error) {
	c, err := r.raw.LookupCommit(oid)
	if err != nil {
		return nil, err
	}
	return &Commit{raw: c}, nil
}

// LookupTree looks up a tree object directly by oid.
func (r *Repository) LookupTree(oid *Oid) (*Tree, error) {
	t, err := r.raw.LookupTree(oid)
	if err != nil {
		return nil, err
	}
	return &Tree{raw: t}, nil
}

// RevparseSingle resolves a Git revision expression (ref name, full SHA,
// abbreviated SHA prefix, or any gitrevisions(7) syntax supported by
// libgit2) to a single object. An ambiguous abbreviated prefix or unknown
// revision is surfaced identically through the returned error; callers
// that only care about NotFound-vs-found should not try to distinguish the
// two (see spec §9's "surface as NotFound rather than guessing").
func (r *Repository) RevparseSingle(spec string) (*Object, error) {
	obj, err := r.raw.RevparseSingle(spec)
	if err != nil {
		return nil, err
	}
	return &Object{raw: obj}, nil
}

// LookupBranch returns the target oid of a local branch by short name, or
// an error if it does not exist.
func (r *Repository) LookupBranch(name string) (oid *Oid, err error) {
	ref, err := r.raw.References.Lookup("refs/heads/" + name)
	if err != nil {
		return nil, err
	}
	defer ref.Free()
	oid = oidClone(ref.Target())
	runtime.KeepAlive(r)
	return oid, nil
}

// LookupTagRef returns the reference target for a tag by short name. The
// target may itself be an annotated tag object, not a commit; callers
// needing the commit should peel it.
func (r *Repository) LookupTagRef(name string) (oid *Oid, err error) {
	ref, err := r.raw.References.Lookup("refs/tags/" + name)
	if err != nil {
		return nil, err
	}
	defer ref.Free()
	oid = oidClone(ref.Target())
	runtime.KeepAlive(r)
	return oid, nil
}

// RefName is one reference name discovered by ListRefs, with its category.
type RefName struct {
	ShortName string
	Kind      RefKind
}

// RefKind distinguishes branches from tags when enumerating references.
type RefKind int

const (
	RefBranch RefKind = iota
	RefTag
)

const (
	branchPrefix = "refs/heads/"
	tagPrefix    = "refs/tags/"
)

// ListRefs enumerates every local branch and tag name in the repository.
// Used by the ref/path parser (§4.3) to find the longest ref that is a
// prefix of a <ref>/<path> URL segment.
func (r *Repository) ListRefs() ([]RefName, error) {
	it, err := r.raw.NewReferenceIterator()
	if err != nil {
		return nil, err
	}
	defer it.Free()

	var out []RefName
	for {
		ref, err := it.Next()
		if err != nil {
			if git2go.IsErrorCode(err, git2go.ErrorCodeIterOver) {
				break
			}
			return nil, err
		}
		name := ref.Name()
		switch {
		case len(name) > len(branchPrefix) && name[:len(branchPrefix)] == branchPrefix:
			out = append(out, RefName{ShortName: name[len(branchPrefix):], Kind: RefBranch})
		case len(name) > len(tagPrefix) && name[:len(tagPrefix)] == tagPrefix:
			out = append(out, RefName{ShortName: name[len(tagPrefix):], Kind: RefTag})
		}
		ref.Free()
	}
	runtime.KeepAlive(r)
	return out, nil
}

// Object is a generic, type-tagged Git object (blob, tree, commit or tag).
type Object struct {
	raw *git2go.Object
}

// Free releases the native object handle.
func (o *Object) Free() {
	if o.raw != nil {
		o.raw.Free()
	}
}

// Type returns the object's type.
func (o *Object) Type() ObjectType {
	t := o.raw.Type()
	runtime.KeepAlive(o)
	return t
}

// Id returns a safe copy of the object's OID.
func (o *Object) Id() *Oid {
	id := oidClone(o.raw.Id())
	runtime.KeepAlive(o)
	return id
}

// Peel follows the object (commit, or annotated tag) to an object of the
// requested type, exactly as `git rev-parse <rev>^{type}` would.
func (o *Object) Peel(targetType ObjectType) (*Object, error) {
	peeled, err := o.raw.Peel(targetType)
	if err != nil {
		return nil, err
	}
	runtime.KeepAlive(o)
	return &Object{raw: peeled}, nil
}

// AsCommit casts the object to a Commit, failing if it is not one.
func (o *Object) AsCommit() (*Commit, error) {
	c, err := o.raw.AsCommit()
	if err != nil {
		return nil, err
	}
	runtime.KeepAlive(o)
	return &Commit{raw: c}, nil
}

// AsTree casts the object to a Tree, failing if it is not one.
func (o *Object) AsTree() (*Tree, error) {
	t, err := o.raw.AsTree()
	if err != nil {
		return nil, err
	}
	runtime.KeepAlive(o)
	return &Tree{raw: t}, nil
}

// AsBlob casts the object to a Blob, failing if it is not one.
func (o *Object) AsBlob() (*Blob, error) {
	b, err := o.raw.AsBlob()
	if err != nil {
		return nil, err
	}
	runtime.KeepAlive(o)
	return &Blob{raw: b}, nil
}

// Commit is a safe wrapper over a git2go commit.
type Commit struct {
	raw *git2go.Commit
}

func (c *Commit) Free() {
	if c.raw != nil {
		c.raw.Free()
	}
}

func (c *Commit) Id() *Oid {
	id := oidClone(c.raw.Id())
	runtime.KeepAlive(c)
	return id
}

func (c *Commit) TreeId() *Oid {
	id := oidClone(c.raw.TreeId())
	runtime.KeepAlive(c)
	return id
}

func (c *Commit) Tree() (*Tree, error) {
	t, err := c.raw.Tree()
	if err != nil {
		return nil, err
	}
	runtime.KeepAlive(c)
	return &Tree{raw: t}, nil
}

func (c *Commit) ParentCount() uint {
	n := c.raw.ParentCount()
	runtime.KeepAlive(c)
	return n
}

func (c *Commit) ParentId(i uint) *Oid {
	id := oidClone(c.raw.ParentId(i))
	runtime.KeepAlive(c)
	return id
}

func (c *Commit) Message() string {
	msg := c.raw.Message()
	runtime.KeepAlive(c)
	return msg
}

// Signature is a safe, fully-copied author/committer signature.
type Signature struct {
	Name  string
	Email string
	When  int64 // unix seconds
}

func (c *Commit) Author() Signature {
	s := c.raw.Author()
	runtime.KeepAlive(c)
	return Signature{Name: s.Name, Email: s.Email, When: s.When.Unix()}
}

func (c *Commit) Committer() Signature {
	s := c.raw.Committer()
	runtime.KeepAlive(c)
	return Signature{Name: s.Name, Email: s.Email, When: s.When.Unix()}
}

// Tree is a safe wrapper over a git2go tree.
type Tree struct {
	raw *git2go.Tree
}

func (t *Tree) Free() {
	if t.raw != nil {
		t.raw.Free()
	}
}

func (t *Tree) Id() *Oid {
	id := oidClone(t.raw.Id())
	runtime.KeepAlive(t)
	return id
}

func (t *Tree) EntryCount() uint64 {
	n := t.raw.EntryCount()
	runtime.KeepAlive(t)
	return n
}

// TreeEntry is a safe, fully-copied tree entry.
type TreeEntry struct {
	Name     string
	Id       *Oid
	Type     ObjectType
	Filemode Filemode
}

func (t *Tree) EntryByIndex(i uint64) *TreeEntry {
	e := t.raw.EntryByIndex(i)
	runtime.KeepAlive(t)
	if e == nil {
		return nil
	}
	return &TreeEntry{Name: e.Name, Id: oidClone(e.Id), Type: e.Type, Filemode: e.Filemode}
}

func (t *Tree) EntryByName(name string) *TreeEntry {
	e := t.raw.EntryByName(name)
	runtime.KeepAlive(t)
	if e == nil {
		return nil
	}
	return &TreeEntry{Name: e.Name, Id: oidClone(e.Id), Type: e.Type, Filemode: e.Filemode}
}

func (t *Tree) EntryByPath(path string) (*TreeEntry, error) {
	e, err := t.raw.EntryByPath(path)
	runtime.KeepAlive(t)
	if err != nil {
		return nil, err
	}
	return &TreeEntry{Name: e.Name, Id: oidClone(e.Id), Type: e.Type, Filemode: e.Filemode}, nil
}

// Blob is a safe wrapper over a git2go blob.
type Blob struct {
	raw *git2go.Blob
}

func (b *Blob) Free() {
	if b.raw != nil {
		b.raw.Free()
	}
}

func (b *Blob) Id() *Oid {
	id := oidClone(b.raw.Id())
	runtime.KeepAlive(b)
	return id
}

func (b *Blob) Size() int64 {
	n := b.raw.Size()
	runtime.KeepAlive(b)
	return n
}

func (b *Blob) Contents() []byte {
	data := bytesClone(b.raw.Contents())
	runtime.KeepAlive(b)
	return data
}

// RevWalk enumerates commits reachable from a set of starting points in
// topological, reverse-chronological order — the order `git log` walks
// history in, and the order commitLog (§4.4) needs.
type RevWalk struct {
	raw  *git2go.RevWalk
	repo *Repository
}

// Walk creates a revision walker sorted topologically and by commit time
// (newest first), matching `git log`'s default order.
func (r *Repository) Walk() (*RevWalk, error) {
	w, err := r.raw.Walk()
	if err != nil {
		return nil, err
	}
	w.Sorting(git2go.SortTopological | git2go.SortTime)
	return &RevWalk{raw: w, repo: r}, nil
}

// Free releases the native walker handle.
func (w *RevWalk) Free() {
	if w.raw != nil {
		w.raw.Free()
	}
}

// Push adds a starting commit to walk from.
func (w *RevWalk) Push(oid *Oid) error {
	return w.raw.Push(oid)
}

// Next returns the next commit oid in the walk, or (nil, nil) when the walk
// is exhausted.
func (w *RevWalk) Next() (*Oid, error) {
	var oid git2go.Oid
	err := w.raw.Next(&oid)
	if err != nil {
		if git2go.IsErrorCode(err, git2go.ErrorCodeIterOver) {
			return nil, nil
		}
		return nil, err
	}
	runtime.KeepAlive(w)
	return oidClone(&oid), nil
}

// Odb is a safe wrapper over a git2go object database.
type Odb struct {
	odb *git2go.Odb
}

func (o *Odb) Free() {
	if o.odb != nil {
		o.odb.Free()
	}
}

// OdbObject is a safe, copied-out raw object read from the object database.
type OdbObject struct {
	id   *Oid
	typ  ObjectType
	data []byte
}

func (o *OdbObject) Id() *Oid         { return o.id }
func (o *OdbObject) Type() ObjectType { return o.typ }
func (o *OdbObject) Data() []byte     { return o.data }

// Read reads a raw object by id. Used for blob reads and get-object access
// where the exact stored bytes (not a re-serialization) are required; tree
// entries are read through Tree.EntryByIndex instead.
func (o *Odb) Read(id *Oid) (*OdbObject, error) {
	obj, err := o.odb.Read(id)
	if err != nil {
		return nil, err
	}
	defer obj.Free()
	out := &OdbObject{
		id:   oidClone(obj.Id()),
		typ:  obj.Type(),
		data: bytesClone(obj.Data()),
	}
	return out, nil
}

// ReadHeader reads only an object's type and size without materializing its
// content, for cheap per-entry size lookups while formatting a tree.
func (o *Odb) ReadHeader(id *Oid) (size uint64, typ ObjectType, err error) {
	return o.odb.ReadHeader(id)
}

// Exists reports whether an object is present in the object database.
func (o *Odb) Exists(id *Oid) bool {
	return o.odb.Exists(id)
}

// Write stores content as a new object of the given type, returning its oid.
// Used by resolveBlob's uncommitted-file path when the implementation
// chooses to materialize a working-tree blob into the object store.
func (o *Odb) Write(content []byte, typ ObjectType) (*Oid, error) {
	oid, err := o.odb.Write(content, typ)
	if err != nil {
		return nil, err
	}
	return oidClone(oid), nil
}

// HashObject computes the oid content bytes would have as a Git blob,
// without writing anything to the object database: the usual
// sha1("blob "+len+"\0"+data) digest, the same oid
// `git hash-object --no-filters` would report. The Git access layer's
// uncommitted-file path (§4.4) writes through Odb.Write rather than calling
// this; HashObject yields the oid that write produces.
func HashObject(content []byte) *Oid {
	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", len(content))
	h.Write(content)
	var oid Oid
	copy(oid[:], h.Sum(nil))
	return &oid
}
