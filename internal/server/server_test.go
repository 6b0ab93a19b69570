package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lab.nexedi.com/kirr/git-httpd/internal/config"
)

// runGit runs a real git command against dir, failing the test immediately
// on error — the same fixture-building idiom the teacher's own
// git-backup_test.go uses (shelling out to the real git binary) rather
// than hand-building commits through a lower-level object API.
func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=Test", "GIT_COMMITTER_EMAIL=test@example.com",
	)
	out, err := cmd.CombinedOutput()
	require.NoErrorf(t, err, "git %v: %s", args, out)
}

func mustWriteFile(t *testing.T, full, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

// newFixtureServer builds a Server whose repoRoot contains a single
// non-bare repository at owner1/repo1 with a root README.md, a second
// root blob, and a two-level nested blob (3 blobs, 2 trees total, the
// shape spec.md §8's tree-recursion scenario names), plus a second branch
// whose name contains "/".
func newFixtureServer(t *testing.T) *Server {
	t.Helper()
	root := t.TempDir()
	repoDir := filepath.Join(root, "owner1", "repo1")
	require.NoError(t, os.MkdirAll(repoDir, 0o755))

	runGit(t, repoDir, "-c", "init.defaultBranch=main", "init")
	mustWriteFile(t, filepath.Join(repoDir, "README.md"), "hello world\n")
	mustWriteFile(t, filepath.Join(repoDir, "other.txt"), "other\n")
	mustWriteFile(t, filepath.Join(repoDir, "sub", "sub", "some_file.txt"), "nested\n")
	runGit(t, repoDir, "add", ".")
	runGit(t, repoDir, "commit", "-m", "initial")
	runGit(t, repoDir, "branch", "branch/with_slash")

	cfg := config.Default()
	cfg.RepoRoot = root
	require.NoError(t, cfg.Validate())

	srv, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	return srv
}

func TestRawFileOnMainBranch(t *testing.T) {
	srv := newFixtureServer(t)
	r := srv.engine()

	req := httptest.NewRequest(http.MethodGet, "/raw/owner1/repo1/main/README.md", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello world\n", w.Body.String())
	assert.NotEmpty(t, w.Header().Get("ETag"))
}

func TestRawFileRedundantSlashesAndSubdirectories(t *testing.T) {
	srv := newFixtureServer(t)
	r := srv.engine()

	req := httptest.NewRequest(http.MethodGet, "/raw/owner1/repo1/main/sub/sub//some_file.txt", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nested\n", w.Body.String())
}

func TestRawFileCaseInsensitiveRejection(t *testing.T) {
	srv := newFixtureServer(t)
	r := srv.engine()

	req := httptest.NewRequest(http.MethodGet, "/raw/owner1/repo1/main/rEaDmE.md", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRawFileBranchNameWithSlash(t *testing.T) {
	srv := newFixtureServer(t)
	r := srv.engine()

	req := httptest.NewRequest(http.MethodGet, "/raw/owner1/repo1/branch/with_slash/README.md", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello world\n", w.Body.String())
}

func TestArchiveRedirectLocation(t *testing.T) {
	srv := newFixtureServer(t)
	r := srv.engine()

	req := httptest.NewRequest(http.MethodGet, "/api/repos/owner1/repo1/zipball/main", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	assert.True(t, strings.HasSuffix(w.Header().Get("Location"), "/codeload/owner1/repo1/zip/main"))
}

func TestGetBlobInvalidShaIsUnprocessableEntity(t *testing.T) {
	srv := newFixtureServer(t)
	r := srv.engine()

	req := httptest.NewRequest(http.MethodGet, "/api/repos/owner1/repo1/git/blobs/01020304050607", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestGetBlobNotFoundUsesLiteralMessage(t *testing.T) {
	srv := newFixtureServer(t)
	r := srv.engine()

	req := httptest.NewRequest(http.MethodGet, "/api/repos/owner1/repo1/git/blobs/0123456789abcdef0123456789abcdef01234567", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)

	var body struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Not Found", body.Message)
}

func TestGetContentsUnknownRefUsesCapitalizedMessage(t *testing.T) {
	srv := newFixtureServer(t)
	r := srv.engine()

	req := httptest.NewRequest(http.MethodGet, "/api/repos/owner1/repo1/contents/README.md?ref=does-not-exist", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)

	var body struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "No commit found for the ref does-not-exist", body.Message)
}

func TestGetTreeRecursiveCounts(t *testing.T) {
	srv := newFixtureServer(t)
	r := srv.engine()

	req := httptest.NewRequest(http.MethodGet, "/api/repos/owner1/repo1/git/trees/main?recursive=1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Tree []struct {
			Type string `json:"type"`
		} `json:"tree"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	var blobs, trees int
	for _, e := range body.Tree {
		switch e.Type {
		case "blob":
			blobs++
		case "tree":
			trees++
		}
	}
	assert.Len(t, body.Tree, 5)
	assert.Equal(t, 3, blobs)
	assert.Equal(t, 2, trees)
}
