// Package resolver turns an (owner, repo) pair from a URL into the
// filesystem path of a Git repository, the way GitHub's own URL space maps
// a slug onto internal storage.
//
// Two sources feed a lookup: an explicit table of "virtual repos" from
// configuration (trusted verbatim, because an operator typed the path
// deliberately), and a sanitized owner/repo-root/owner/repo convention for
// everything else. The sanitizer exists so that a crafted owner or repo
// name — "../../etc", a bare ".", an embedded NUL — can never walk a
// lookup outside of the configured repository root.
//
// Grounded on the teacher's util.go:path_refescape, which solves the same
// "make an arbitrary string safe as a path component" problem for ref
// names; this package keeps its component-by-component, replace-the-bad-
// characters shape but targets filesystem path segments instead of Git ref
// syntax.
package resolver

import (
	"fmt"
	"path/filepath"
	"strings"

	"lab.nexedi.com/kirr/git-httpd/internal/config"
)

// Resolver maps owner/repo slugs to filesystem paths.
type Resolver struct {
	repoRoot string
	virtual  func(owner, repo string) (string, bool)
}

// New builds a Resolver bound to the given configuration's repoRoot and
// virtual-repo table. cfg.RepoRoot is assumed to already be an absolute,
// existing directory (config.Validate enforces this).
func New(cfg *config.Config) *Resolver {
	return &Resolver{
		repoRoot: cfg.RepoRoot,
		virtual:  cfg.VirtualRepoPath,
	}
}

// Resolve returns the filesystem path of the repository named by
// owner/repo. Virtual repos are checked first and, if matched, their
// configured path is returned unchanged. Otherwise the slug is sanitized
// and joined under repoRoot as "<repoRoot>/<owner>/<repo>".
//
// The result is always guaranteed to be repoRoot itself or a path
// underneath it (for the non-virtual case) — sanitizeSegment never
// produces "..", "." or a path separator, so filepath.Join cannot escape.
func (r *Resolver) Resolve(owner, repo string) string {
	if path, ok := r.virtual(owner, repo); ok {
		return path
	}
	return filepath.Join(r.repoRoot, sanitizeSegment(owner), sanitizeSegment(repo))
}

// sanitizeSegment applies §4.2's rule exactly: every rune outside
// [A-Za-z0-9_.-] becomes "-", and then an exact "." or ".." match is
// replaced by a same-length run of "-" (so a traversal component can
// never survive, while an ordinary dotted name like "my.repo" is left
// alone).
func sanitizeSegment(segment string) string {
	if segment == "." {
		return "-"
	}
	if segment == ".." {
		return "--"
	}

	var b strings.Builder
	b.Grow(len(segment))
	for _, r := range segment {
		if isSafeSegmentRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	out := b.String()
	if out == "" {
		out = "-"
	}
	return out
}

func isSafeSegmentRune(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '_' || r == '.' || r == '-':
		return true
	}
	return false
}

// Describe renders an owner/repo pair the way it would appear in a route
// or log line, for error messages.
func Describe(owner, repo string) string {
	return fmt.Sprintf("%s/%s", owner, repo)
}
