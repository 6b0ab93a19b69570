package refparse

import (
	"testing"

	"lab.nexedi.com/kirr/git-httpd/internal/gitdb"
)

type fakeRefLister []gitdb.RefName

func (f fakeRefLister) ListRefs() ([]gitdb.RefName, error) {
	return f, nil
}

func TestIsFullSha(t *testing.T) {
	full := "da39a3ee5e6b4b0d3255bfef95601890afd80709"
	if !IsFullSha(full) {
		t.Errorf("IsFullSha(%q) = false", full)
	}
	if IsFullSha(full[:10]) {
		t.Error("IsFullSha on short prefix = true")
	}
	if IsFullSha("not-hex-at-all-and-forty-chars-long-zzzz") {
		t.Error("IsFullSha accepted non-hex")
	}
}

func TestIsShortSha(t *testing.T) {
	if !IsShortSha("da39a3") {
		t.Error("IsShortSha rejected a 6-hex prefix")
	}
	if IsShortSha("abc") {
		t.Error("IsShortSha accepted a 3-char prefix")
	}
}

func TestSplitPlainBranch(t *testing.T) {
	refs := fakeRefLister{{ShortName: "main", Kind: gitdb.RefBranch}}
	ref, path, err := Split(refs, "main/README.md")
	if err != nil {
		t.Fatal(err)
	}
	if ref != "main" || path != "README.md" {
		t.Errorf("Split = %q, %q", ref, path)
	}
}

func TestSplitBranchWithSlashPrefersLongestMatch(t *testing.T) {
	refs := fakeRefLister{
		{ShortName: "release", Kind: gitdb.RefBranch},
		{ShortName: "release/1.2", Kind: gitdb.RefBranch},
	}
	ref, path, err := Split(refs, "release/1.2/README.md")
	if err != nil {
		t.Fatal(err)
	}
	if ref != "release/1.2" || path != "README.md" {
		t.Errorf("Split = %q, %q, want release/1.2, README.md", ref, path)
	}
}

func TestSplitExactRefNameNoPath(t *testing.T) {
	refs := fakeRefLister{{ShortName: "main", Kind: gitdb.RefBranch}}
	ref, path, err := Split(refs, "main")
	if err != nil {
		t.Fatal(err)
	}
	if ref != "main" || path != "" {
		t.Errorf("Split = %q, %q, want main, \"\"", ref, path)
	}
}

func TestSplitUnknownRefFallsBackToFirstComponent(t *testing.T) {
	refs := fakeRefLister{}
	ref, path, err := Split(refs, "da39a3ee5e6b4b0d3255bfef95601890afd80709/x.txt")
	if err != nil {
		t.Fatal(err)
	}
	if ref != "da39a3ee5e6b4b0d3255bfef95601890afd80709" || path != "x.txt" {
		t.Errorf("Split = %q, %q", ref, path)
	}
}
