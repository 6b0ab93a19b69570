// Package archiveproducer streams zip and tar.gz archives of a repository
// tree (§4.7), backed by a filesystem cache for the common committed-ref
// case.
//
// Grounded on other_examples/omegaup-githttp/browser.go's
// handleArchive/zipArchive/tarArchive: the archive-writer interface
// abstraction (one Create(path, size) method, specialized per format) is
// kept essentially as-is, since archive/zip and archive/tar already share
// no common writer interface in the standard library and that repo's
// adapter is exactly how the pack solves it. What's added here is the
// on-disk cache (§4.7 step 4) and the working-tree/.gitignore branch
// (§4.7 step 5's serveUncommitted case), neither of which omegaup's
// always-committed archive endpoint needed.
package archiveproducer

import (
	"archive/tar"
	"archive/zip"
	"compress/flate"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/klauspost/compress/gzip"

	"lab.nexedi.com/kirr/git-httpd/internal/gitaccess"
	"lab.nexedi.com/kirr/git-httpd/internal/gitdb"
	"lab.nexedi.com/kirr/git-httpd/internal/giterr"
)

// Format is one of the two archive kinds the transport supports.
type Format string

const (
	Zip   Format = "zip"
	TarGz Format = "tar.gz"
)

func (f Format) ext() string {
	if f == TarGz {
		return "tgz"
	}
	return "zip"
}

// Ext returns the file extension (without a leading dot) archives of this
// format are cached and downloaded under: "tgz" for TarGz, "zip" for Zip.
func (f Format) Ext() string { return f.ext() }

// ContentType returns the MIME type §6.2 specifies for this format.
func (f Format) ContentType() string {
	if f == TarGz {
		return "application/x-gzip"
	}
	return "application/zip"
}

// writer is the common archive-entry interface, one implementation per
// format, as other_examples/omegaup-githttp/browser.go defines it plus an
// isDir flag for explicit directory entries.
type writer interface {
	Close() error
	Create(path string, size int64, isDir bool) (io.Writer, error)
}

type zipWriter struct{ zw *zip.Writer }

func (w *zipWriter) Close() error { return w.zw.Close() }
func (w *zipWriter) Create(path string, size int64, isDir bool) (io.Writer, error) {
	if isDir {
		path += "/"
	}
	return w.zw.CreateHeader(&zip.FileHeader{Name: path, Method: zip.Deflate})
}

type tarGzWriter struct {
	gz *gzip.Writer
	tw *tar.Writer
}

func (w *tarGzWriter) Close() error {
	if err := w.tw.Close(); err != nil {
		return err
	}
	return w.gz.Close()
}

func (w *tarGzWriter) Create(path string, size int64, isDir bool) (io.Writer, error) {
	hdr := &tar.Header{Name: path, Size: size}
	if isDir {
		hdr.Name += "/"
		hdr.Typeflag = tar.TypeDir
		hdr.Mode = 0o755
	} else {
		hdr.Typeflag = tar.TypeReg
		hdr.Mode = 0o644
	}
	if err := w.tw.WriteHeader(hdr); err != nil {
		return nil, err
	}
	return w.tw, nil
}

func newWriter(format Format, out io.Writer) writer {
	if format == TarGz {
		gz, _ := gzip.NewWriterLevel(out, gzip.BestCompression)
		return &tarGzWriter{gz: gz, tw: tar.NewWriter(gz)}
	}
	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})
	return &zipWriter{zw: zw}
}

// Producer builds and caches archives under a single directory.
type Producer struct {
	cacheDir string
}

// New creates a Producer whose cache lives under cacheDir, which is
// created if missing.
func New(cacheDir string) (*Producer, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, giterr.Fatal(err, "create archive cache dir %s", cacheDir)
	}
	return &Producer{cacheDir: cacheDir}, nil
}

// Result describes a produced archive for the HTTP layer to set response
// headers from.
type Result struct {
	Filename    string
	ContentType string
}

// Write streams an archive of ref, in format, to w, building and caching
// it as needed (§4.7). owner/repo feed the conventional filename;
// repoWorkdir is the working directory to walk for the uncommitted case
// (empty for a bare repository, in which case serveUncommitted never
// applies since there is no HEAD checkout to race against).
func (p *Producer) Write(ctx context.Context, access *gitaccess.Access, repoWorkdir, owner, repo, ref string, format Format, w io.Writer) (Result, error) {
	serveUncommitted := repoWorkdir != "" && access.IsCheckedOut(ref)

	commitOid, err := access.ResolveCommit(ref)
	if err != nil {
		return Result{}, err
	}

	key := commitOid.String()
	if serveUncommitted {
		key = "SNAPSHOT"
	}
	cacheFilename := fmt.Sprintf("%s-%s-%s.%s", owner, repo, key, format.ext())
	result := Result{Filename: cacheFilename, ContentType: format.ContentType()}

	if !serveUncommitted {
		cachePath := filepath.Join(p.cacheDir, cacheFilename)
		if f, err := os.Open(cachePath); err == nil {
			defer f.Close()
			_, err := io.Copy(w, f)
			return result, err
		}

		tmp, err := os.CreateTemp(p.cacheDir, ".tmp-"+cacheFilename+"-*")
		if err != nil {
			return result, giterr.Upstream(err, "create temp archive file")
		}
		tmpPath := tmp.Name()
		defer os.Remove(tmpPath) // no-op once renamed

		if err := p.writeCommittedTree(ctx, access, commitOid, format, tmp); err != nil {
			tmp.Close()
			return result, err
		}
		if err := tmp.Close(); err != nil {
			return result, giterr.Upstream(err, "close temp archive file")
		}
		if err := os.Rename(tmpPath, cachePath); err != nil {
			return result, giterr.Upstream(err, "finalize archive cache file")
		}

		f, err := os.Open(cachePath)
		if err != nil {
			return result, giterr.Upstream(err, "open finalized archive cache file")
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return result, err
	}

	return result, p.writeWorkingTree(ctx, repoWorkdir, format, w)
}

// writeCommittedTree enumerates the tree recursively and streams each
// entry into the archive in depth-first order (§4.7 step 5's
// !serveUncommitted branch).
func (p *Producer) writeCommittedTree(ctx context.Context, access *gitaccess.Access, commitOid *gitdb.Oid, format Format, out io.Writer) error {
	tree, err := access.ResolveTree(commitOid.String())
	if err != nil {
		return err
	}
	entries, err := access.CollectTreeEntries(tree.Entries, nil, "", true)
	if err != nil {
		return err
	}

	aw := newWriter(format, out)
	defer aw.Close()

	for _, e := range entries {
		select {
		case <-ctx.Done():
			return giterr.Upstream(ctx.Err(), "archive build cancelled")
		default:
		}

		isDir := e.Type == gitdb.ObjectTree
		if isDir {
			if _, err := aw.Create(e.Path, 0, true); err != nil {
				return giterr.Upstream(err, "write archive directory entry %s", e.Path)
			}
			continue
		}

		obj, err := access.GetObject(e.Id)
		if err != nil {
			return giterr.Upstream(err, "read blob %s", e.Id)
		}
		entryWriter, err := aw.Create(e.Path, int64(len(obj.Data)), false)
		if err != nil {
			return giterr.Upstream(err, "write archive file entry %s", e.Path)
		}
		if _, err := entryWriter.Write(obj.Data); err != nil {
			return giterr.Upstream(err, "stream archive file entry %s", e.Path)
		}
	}
	return nil
}

// writeWorkingTree walks the on-disk working directory, honoring only the
// root .gitignore (per §4.7's explicitly optional subdirectory handling)
// and always excluding .git/.
func (p *Producer) writeWorkingTree(ctx context.Context, workdir string, format Format, out io.Writer) error {
	matcher := loadRootGitignore(workdir)

	aw := newWriter(format, out)
	defer aw.Close()

	return filepath.Walk(workdir, func(fsPath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(workdir, fsPath)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if rel == ".git" || strings.HasPrefix(rel, ".git/") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if matcher != nil {
			components := strings.Split(rel, "/")
			if matcher.Match(components, info.IsDir()) {
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return giterr.Upstream(ctx.Err(), "archive build cancelled")
		default:
		}

		if info.IsDir() {
			_, err := aw.Create(rel, 0, true)
			return err
		}

		data, err := os.ReadFile(fsPath)
		if err != nil {
			return err
		}
		w, err := aw.Create(rel, int64(len(data)), false)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	})
}

func loadRootGitignore(workdir string) gitignore.Matcher {
	data, err := os.ReadFile(filepath.Join(workdir, ".gitignore"))
	if err != nil {
		return nil
	}
	var patterns []gitignore.Pattern
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	if len(patterns) == 0 {
		return nil
	}
	return gitignore.NewMatcher(patterns)
}

