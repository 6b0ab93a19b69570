// Package refparse splits a URL segment of the form "<ref>/<path...>" into
// the ref part and the path part, and classifies bare ref-or-sha strings.
//
// The hard part is that refs can contain slashes ("release/1.2") while the
// URL syntax gives no delimiter between the ref and the path that follows
// it: "release/1.2/README.md" must split as ref="release/1.2",
// path="README.md", not ref="release", path="1.2/README.md". The approach
// (longest known ref that is a prefix of the segment wins) is the same one
// GitHub's own blob/tree URLs resolve ambiguously without a repository
// listing; doing it here means enumerating the repository's actual refs.
//
// Grounded on the teacher's util.go: headtail/strip_prefix/split2 supply
// the same "find a separator, split, validate" shape used here, now driven
// off internal/gitdb.Repository.ListRefs instead of a fixed separator.
package refparse

import (
	"regexp"
	"strings"

	"lab.nexedi.com/kirr/git-httpd/internal/gitdb"
)

// fullSha matches a complete, unambiguous 40-hex-digit object id.
var fullSha = regexp.MustCompile(`^[0-9a-f]{40}$`)

// shortSha matches a plausible abbreviated object id: 4 to 39 hex digits.
// Git itself enforces a minimum of 4 for an abbreviated id.
var shortSha = regexp.MustCompile(`^[0-9a-f]{4,39}$`)

// IsFullSha reports whether s is a complete 40-hex-digit sha, the only form
// that is *always* treated as an object id rather than a possible ref name.
func IsFullSha(s string) bool {
	return fullSha.MatchString(s)
}

// IsShortSha reports whether s has the shape of an abbreviated object id.
// It says nothing about whether such an object actually exists, nor about
// whether s also happens to be a branch or tag name.
func IsShortSha(s string) bool {
	return shortSha.MatchString(s)
}

// RefLister is the subset of *gitdb.Repository that Split needs; satisfied
// by *gitdb.Repository directly, declared as an interface here only to
// keep the tests in this package independent of git2go.
type RefLister interface {
	ListRefs() ([]gitdb.RefName, error)
}

// Split divides segment into (ref, path) by finding the longest branch or
// tag name that is a prefix of segment at a "/" boundary. If no ref name
// matches, the first path component is treated as the ref (a full or
// abbreviated sha resolves downstream, an unknown name fails there as
// NotFound — Split does not itself validate shas or existence).
//
// An exact match with no trailing path (segment itself names a ref) yields
// path == "".
func Split(repo RefLister, segment string) (ref, path string, err error) {
	refs, err := repo.ListRefs()
	if err != nil {
		return "", "", err
	}

	best := ""
	for _, r := range refs {
		name := r.ShortName
		if name == segment {
			if len(name) > len(best) {
				best = name
			}
			continue
		}
		if strings.HasPrefix(segment, name+"/") && len(name) > len(best) {
			best = name
		}
	}

	if best != "" {
		rest := strings.TrimPrefix(segment, best)
		rest = strings.TrimPrefix(rest, "/")
		return best, rest, nil
	}

	// No enumerated ref matched: fall back to treating the first
	// component as the ref (covers full/short shas, and unknown names
	// that resolveCommit will reject as NotFound).
	head, tail, ok := cut(segment, "/")
	if !ok {
		return segment, "", nil
	}
	return head, tail, nil
}

func cut(s, sep string) (before, after string, found bool) {
	if i := strings.Index(s, sep); i >= 0 {
		return s[:i], s[i+len(sep):], true
	}
	return s, "", false
}
