package gitaccess

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"lab.nexedi.com/kirr/git-httpd/internal/giterr"
)

// StatusClass is one of Git's working-tree status classes for a single
// path, mirroring gruntwork-io-runbooks' parseGitStatus but narrowed to
// the six classes the Git access layer needs (§4.4's resolveBlob switch).
type StatusClass int

const (
	StatusUnmodified StatusClass = iota
	StatusModified
	StatusAdded
	StatusDeleted
	StatusAbsent
	StatusIgnored
)

// fileStatus shells out to `git status --porcelain=v1 --ignored -- <path>`
// in repoPath, the same subprocess-invocation idiom as the teacher's
// git.go _git/ggit (generalized here to a single focused call instead of a
// general-purpose argv runner, since this is the only git invocation the
// access layer needs outside of libgit2).
func fileStatus(ctx context.Context, repoPath, path string) (StatusClass, error) {
	cmd := exec.CommandContext(ctx, "git", "status", "--porcelain=v1", "--ignored", "--", path)
	cmd.Dir = repoPath
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, giterr.Upstream(err, "git status --porcelain -- %s: %s", path, stderr.String())
	}

	line := strings.TrimRight(stdout.String(), "\n")
	exists := fileExists(repoPath, path)
	return classifyPorcelainLine(line, exists), nil
}

// classifyPorcelainLine maps one `git status --porcelain=v1 --ignored`
// line (or "" when git reported nothing for the path) to a StatusClass.
// Split out from fileStatus so the mapping itself can be unit tested
// without a real repository.
func classifyPorcelainLine(line string, existsOnDisk bool) StatusClass {
	if line == "" {
		if existsOnDisk {
			return StatusUnmodified
		}
		return StatusAbsent
	}

	code := line
	if len(line) >= 2 {
		code = line[:2]
	}
	switch {
	case code == "!!":
		return StatusIgnored
	case code == "??":
		return StatusAdded
	case strings.Contains(code, "D"):
		return StatusDeleted
	case strings.Contains(code, "A"):
		return StatusAdded
	default:
		return StatusModified
	}
}

func fileExists(repoPath, path string) bool {
	_, err := os.Stat(filepath.Join(repoPath, path))
	return err == nil
}
