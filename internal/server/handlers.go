package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lab.nexedi.com/kirr/git-httpd/internal/archiveproducer"
	"lab.nexedi.com/kirr/git-httpd/internal/ghshape"
	"lab.nexedi.com/kirr/git-httpd/internal/gitdb"
	"lab.nexedi.com/kirr/git-httpd/internal/giterr"
	"lab.nexedi.com/kirr/git-httpd/internal/refparse"
	"lab.nexedi.com/kirr/git-httpd/internal/resolver"
	"lab.nexedi.com/kirr/git-httpd/internal/smarthttp"
)

// handleRaw implements the raw.githubusercontent.com mirror:
// /raw/:owner/:repo/<ref>/<path> (§4.6, §6.1).
func (s *Server) handleRaw(c *gin.Context) {
	s.rawCore(c, c.Param("owner"), c.Param("repo"), normalizePath(c.Param("refpath")))
}

// handleRawLegacy implements the alternate GitHub raw URL shape:
// /:owner/:repo/raw/<ref>/<path>.
func (s *Server) handleRawLegacy(c *gin.Context) {
	s.rawCore(c, c.Param("owner"), c.Param("repo"), normalizePath(c.Param("refpath")))
}

func (s *Server) rawCore(c *gin.Context, owner, repo, segment string) {
	access, err := s.openAccess(owner, repo)
	if err != nil {
		s.writeError(c, familyRaw, err)
		return
	}
	defer access.Close()

	ref, path, err := access.SplitRefPath(segment)
	if err != nil {
		s.writeError(c, familyRaw, err)
		return
	}

	includeUncommitted := access.IsCheckedOut(ref)
	blobOid, err := access.ResolveBlob(c.Request.Context(), ref, path, includeUncommitted)
	if err != nil {
		s.writeError(c, familyRaw, err)
		return
	}
	obj, err := access.GetObject(blobOid)
	if err != nil {
		s.writeError(c, familyRaw, err)
		return
	}

	s.notifyRawRequest(access.Path(), path, ref)

	c.Header("ETag", blobOid.String())
	c.Header("Cache-Control", "max-age=0, private, must-revalidate")
	c.Data(http.StatusOK, inferContentType(path), obj.Data)
}

// notifyRawRequest invokes the configured observer, recovering any panic
// it raises: an observability hook must never break delivery (§4.6, §7).
func (s *Server) notifyRawRequest(repoPath, filePath, ref string) {
	if s.cfg.OnRawRequest == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("onRawRequest observer panicked", zap.Any("panic", r))
		}
	}()
	s.cfg.OnRawRequest(repoPath, filePath, ref)
}

// handleSmartHTTP returns the handler for one of the three Smart HTTP
// sub-paths (§4.8), all of which share the same dispatch core.
func (s *Server) handleSmartHTTP(subpath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.Param("owner")
		repo := strings.TrimSuffix(c.Param("repo"), ".git")

		req, err := smarthttp.Classify(c.Request.Method, subpath, c.Query("service"))
		if err != nil {
			s.writeError(c, familyRaw, err)
			return
		}

		repoPath := s.resolver.Resolve(owner, repo)
		c.Header("Content-Type", req.ContentType)
		c.Status(http.StatusOK)

		err = smarthttp.Serve(c.Request.Context(), repoPath, req, c.GetHeader("Content-Encoding"), c.Request.Body, c.Writer)
		if err != nil {
			s.log.Error("smart http request failed", zap.Error(err), zap.String("repo", resolver.Describe(owner, repo)))
		}
	}
}

// handleGetBlob implements GitHub's get-blob API (§4.5).
func (s *Server) handleGetBlob(c *gin.Context) {
	owner, repo := c.Param("owner"), c.Param("repo")
	sha := c.Param("sha")
	if !refparse.IsFullSha(sha) {
		s.writeError(c, familyAPI, giterr.InvalidSha("sha %q is not a full 40-hex object id", sha))
		return
	}

	access, err := s.openAccess(owner, repo)
	if err != nil {
		s.writeError(c, familyAPI, err)
		return
	}
	defer access.Close()

	oid, err := gitdb.NewOid(sha)
	if err != nil {
		s.writeError(c, familyAPI, giterr.InvalidSha("sha %q: %v", sha, err))
		return
	}
	obj, err := access.GetObject(oid)
	if err != nil {
		// §4.5's get-blob NotFound body is the literal message "Not Found",
		// not GetObject's internal "object %s not found" (that message is
		// for logs and other callers, not this client-facing body).
		if giterr.Is(err, giterr.KindNotFound) {
			c.JSON(http.StatusNotFound, ghshape.NewNotFound("Not Found"))
			return
		}
		s.writeError(c, familyAPI, err)
		return
	}

	c.JSON(http.StatusOK, ghshape.EncodeBlob(s.ctxFor(c, owner, repo), sha, obj.Data))
}

// handleGetTree implements GitHub's get-tree API, honoring ?recursive=.
func (s *Server) handleGetTree(c *gin.Context) {
	owner, repo := c.Param("owner"), c.Param("repo")
	refOrSha := c.Param("refOrSha")
	deep := isTruthyQuery(c.Query("recursive"))

	access, err := s.openAccess(owner, repo)
	if err != nil {
		s.writeError(c, familyAPI, err)
		return
	}
	defer access.Close()

	tree, err := access.ResolveTree(refOrSha)
	if err != nil {
		s.writeError(c, familyAPI, err)
		return
	}
	entries, err := access.CollectTreeEntries(tree.Entries, nil, "", deep)
	if err != nil {
		s.writeError(c, familyAPI, err)
		return
	}

	blobSize := func(oid *gitdb.Oid) (int, bool) {
		obj, err := access.GetObject(oid)
		if err != nil {
			return 0, false
		}
		return len(obj.Data), true
	}

	c.JSON(http.StatusOK, ghshape.EncodeTree(s.ctxFor(c, owner, repo), tree.Oid.String(), entries, blobSize))
}

// handleGetContents implements GitHub's get-contents API: a single file
// object, or an array of directory entries, depending on what path names.
func (s *Server) handleGetContents(c *gin.Context) {
	owner, repo := c.Param("owner"), c.Param("repo")
	path := strings.Trim(normalizePath(c.Param("path")), "/")

	access, err := s.openAccess(owner, repo)
	if err != nil {
		s.writeError(c, familyAPI, err)
		return
	}
	defer access.Close()

	ref := c.Query("ref")
	if ref == "" {
		ref = access.DefaultBranch()
	}

	commitOid, err := access.ResolveCommit(ref)
	if err != nil {
		s.writeError(c, familyAPI, err)
		return
	}
	resolved, err := access.ResolveObject(commitOid, path)
	if err != nil {
		s.writeError(c, familyAPI, err)
		return
	}

	ctx := s.ctxFor(c, owner, repo)

	if resolved.Type == gitdb.ObjectBlob {
		obj, err := access.GetObject(resolved.Oid)
		if err != nil {
			s.writeError(c, familyAPI, err)
			return
		}
		c.JSON(http.StatusOK, ghshape.EncodeContentsFile(ctx, ref, path, resolved.Oid.String(), obj.Data))
		return
	}

	dir, err := access.ResolveTree(resolved.Oid.String())
	if err != nil {
		s.writeError(c, familyAPI, err)
		return
	}
	entries, err := access.CollectTreeEntries(dir.Entries, nil, "", false)
	if err != nil {
		s.writeError(c, familyAPI, err)
		return
	}
	out := make([]ghshape.ContentsFile, 0, len(entries))
	for _, e := range entries {
		out = append(out, ghshape.EncodeContentsDirEntry(ctx, ref, path, e))
	}
	c.JSON(http.StatusOK, out)
}

// handleListCommits implements GitHub's list-commits API, honoring
// ?sha= and ?path=.
func (s *Server) handleListCommits(c *gin.Context) {
	owner, repo := c.Param("owner"), c.Param("repo")

	access, err := s.openAccess(owner, repo)
	if err != nil {
		s.writeError(c, familyAPI, err)
		return
	}
	defer access.Close()

	sha := c.Query("sha")
	if sha == "" {
		sha = access.DefaultBranch()
	}
	path := strings.Trim(c.Query("path"), "/")

	commits, err := access.CommitLog(sha, path)
	if err != nil {
		s.writeError(c, familyAPI, err)
		return
	}

	c.JSON(http.StatusOK, ghshape.EncodeCommits(s.ctxFor(c, owner, repo), commits))
}

// handleAPIArchiveRedirect returns the /api/repos/.../zipball|tarball
// handler for the given archive format: a 302 to the codeload endpoint
// that actually streams the bytes (§4.5).
func (s *Server) handleAPIArchiveRedirect(format archiveproducer.Format) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, repo := c.Param("owner"), c.Param("repo")
		ref := c.Param("ref")
		if ref == "" {
			access, err := s.openAccess(owner, repo)
			if err != nil {
				s.writeError(c, familyAPI, err)
				return
			}
			ref = access.DefaultBranch()
			access.Close()
		}

		ctx := s.ctxFor(c, owner, repo)
		loc := ghshape.ArchiveRedirectLocation(ctx.Scheme, ctx.Host, owner, repo, string(format), ref)
		c.Redirect(http.StatusFound, loc)
	}
}

// handleLegacyArchiveRedirect implements GitHub's HTML archive-link shape:
// /:owner/:repo/archive/<ref>.zip or /:owner/:repo/archive/<ref>.tar.gz.
func (s *Server) handleLegacyArchiveRedirect(c *gin.Context) {
	owner, repo := c.Param("owner"), c.Param("repo")
	refAndFormat := normalizePath(c.Param("refAndFormat"))

	var format archiveproducer.Format
	var ref string
	switch {
	case strings.HasSuffix(refAndFormat, ".tar.gz"):
		format = archiveproducer.TarGz
		ref = strings.TrimSuffix(refAndFormat, ".tar.gz")
	case strings.HasSuffix(refAndFormat, ".zip"):
		format = archiveproducer.Zip
		ref = strings.TrimSuffix(refAndFormat, ".zip")
	default:
		s.writeError(c, familyHTML, giterr.NotFound("unrecognized archive link %q", refAndFormat))
		return
	}

	ctx := s.ctxFor(c, owner, repo)
	loc := ghshape.ArchiveRedirectLocation(ctx.Scheme, ctx.Host, owner, repo, string(format), ref)
	c.Redirect(http.StatusFound, loc)
}

// handleCodeload streams the actual archive bytes, building and caching
// them as needed (§4.7). This is the endpoint the redirect handlers above
// point at; unlike them it never itself redirects.
func (s *Server) handleCodeload(format archiveproducer.Format) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, repo := c.Param("owner"), c.Param("repo")
		ref := normalizePath(c.Param("ref"))

		access, err := s.openAccess(owner, repo)
		if err != nil {
			s.writeError(c, familyRaw, err)
			return
		}
		defer access.Close()

		if ref == "" {
			ref = access.DefaultBranch()
		}

		// Headers must be set before any byte of the archive is streamed,
		// so the download filename is derived from owner/repo/ref here
		// rather than from archiveproducer.Result (which is only known
		// once the whole write completes).
		downloadName := fmt.Sprintf("%s-%s-%s.%s", owner, repo, sanitizeFilenameComponent(ref), format.Ext())
		c.Header("Content-Type", format.ContentType())
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, downloadName))

		if _, err := s.archives.Write(c.Request.Context(), access, access.Workdir(), owner, repo, ref, format, c.Writer); err != nil {
			s.log.Error("archive stream failed", zap.Error(err), zap.String("repo", resolver.Describe(owner, repo)), zap.String("ref", ref))
		}
	}
}

func sanitizeFilenameComponent(s string) string {
	return strings.ReplaceAll(s, "/", "-")
}

// handleHTMLBlob and handleHTMLTree serve minimal HTML stubs standing in
// for GitHub's own blob/tree pages: this server is a transport and API
// mirror, not a UI, so these exist only so a browser hitting the link
// GitHub itself would produce gets a 200 (or an honest 404) instead of a
// broken link.
func (s *Server) handleHTMLBlob(c *gin.Context) {
	s.htmlStub(c, c.Param("owner"), c.Param("repo"), normalizePath(c.Param("refpath")), gitdb.ObjectBlob)
}

func (s *Server) handleHTMLTree(c *gin.Context) {
	s.htmlStub(c, c.Param("owner"), c.Param("repo"), normalizePath(c.Param("refpath")), gitdb.ObjectTree)
}

func (s *Server) htmlStub(c *gin.Context, owner, repo, segment string, want gitdb.ObjectType) {
	access, err := s.openAccess(owner, repo)
	if err != nil {
		s.writeError(c, familyHTML, err)
		return
	}
	defer access.Close()

	ref, path, err := access.SplitRefPath(segment)
	if err != nil {
		s.writeError(c, familyHTML, err)
		return
	}
	commitOid, err := access.ResolveCommit(ref)
	if err != nil {
		s.writeError(c, familyHTML, err)
		return
	}
	resolved, err := access.ResolveObject(commitOid, path)
	if err != nil {
		s.writeError(c, familyHTML, err)
		return
	}
	if resolved.Type != want {
		s.writeError(c, familyHTML, giterr.NotFound("%s is not a %s", path, objectKindName(want)))
		return
	}

	c.String(http.StatusOK, "%s %s/%s at %s:%s\n", objectKindName(want), owner, repo, ref, path)
}

// handleHTMLRoot serves GitHub's repository landing-page URL shape:
// /:owner/:repo.
func (s *Server) handleHTMLRoot(c *gin.Context) {
	owner, repo := c.Param("owner"), c.Param("repo")
	access, err := s.openAccess(owner, repo)
	if err != nil {
		s.writeError(c, familyHTML, err)
		return
	}
	defer access.Close()

	branch := access.DefaultBranch()
	c.String(http.StatusOK, "%s/%s @ %s\n", owner, repo, branch)
}

func objectKindName(t gitdb.ObjectType) string {
	if t == gitdb.ObjectTree {
		return "tree"
	}
	return "blob"
}

func isTruthyQuery(v string) bool {
	switch v {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
