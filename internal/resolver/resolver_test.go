package resolver

import (
	"path/filepath"
	"testing"

	"lab.nexedi.com/kirr/git-httpd/internal/config"
)

func newTestResolver(t *testing.T) (*Resolver, string) {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.RepoRoot = root
	cfg.VirtualRepos = map[string]map[string]config.VirtualRepo{
		"acme": {"widgets": {Path: "/srv/special/widgets"}},
	}
	return New(cfg), root
}

func TestResolvePlainOwnerRepo(t *testing.T) {
	r, root := newTestResolver(t)
	got := r.Resolve("octocat", "hello-world")
	want := filepath.Join(root, "octocat", "hello-world")
	if got != want {
		t.Errorf("Resolve = %q, want %q", got, want)
	}
}

func TestResolveVirtualRepoOverride(t *testing.T) {
	r, _ := newTestResolver(t)
	got := r.Resolve("acme", "widgets")
	if got != "/srv/special/widgets" {
		t.Errorf("Resolve(virtual) = %q", got)
	}
}

func TestResolveStaysUnderRepoRootForTraversalAttempts(t *testing.T) {
	r, root := newTestResolver(t)
	cases := [][2]string{
		{"..", "."},
		{"../..", "../../etc"},
		{".", ".."},
		{"a/b", "c"},
	}
	for _, c := range cases {
		got := r.Resolve(c[0], c[1])
		rel, err := filepath.Rel(root, got)
		if err != nil {
			t.Fatalf("Rel(%q): %v", got, err)
		}
		if rel == ".." || (len(rel) >= 3 && rel[:3] == "../") {
			t.Errorf("Resolve(%q, %q) = %q escapes repoRoot (rel=%q)", c[0], c[1], got, rel)
		}
	}
}

func TestSanitizeSegmentReplacesDotsAndSeparators(t *testing.T) {
	cases := map[string]string{
		"":       "-",
		".":      "-",
		"..":     "--",
		"a/b":    "a-b",
		"a\\b":   "a-b",
		"normal": "normal",
	}
	for in, want := range cases {
		if got := sanitizeSegment(in); got != want {
			t.Errorf("sanitizeSegment(%q) = %q, want %q", in, got, want)
		}
	}
}
