// Package ghshape renders already-resolved Git objects into GitHub's own
// REST API JSON shapes (§4.5): blobs, trees, directory/file contents and
// commit lists. It never touches a repository itself — everything it
// encodes comes in already resolved from internal/gitaccess.
//
// Grounded on other_examples/omegaup-githttp/browser.go's
// CommitResult/TreeResult/TreeEntryResult/BlobResult structs and their
// formatCommit/formatTree/formatBlob builders, adapted from that repo's
// own ad-hoc JSON shape to GitHub's actual field names and nesting (which
// is what this server needs to mimic, not omegaup's internal API).
package ghshape

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"lab.nexedi.com/kirr/git-httpd/internal/gitaccess"
	"lab.nexedi.com/kirr/git-httpd/internal/gitdb"
)

// Context carries the pieces needed to build the absolute URLs embedded in
// every response body: the scheme/host the client should use (after the
// subdomain rewriter's self-URL substitution has already been applied by
// the caller, per §4.5) and the owner/repo slug.
type Context struct {
	Scheme string
	Host   string
	Owner  string
	Repo   string
}

func (c Context) apiRepoURL() string {
	return fmt.Sprintf("%s://%s/api/repos/%s/%s", c.Scheme, c.Host, c.Owner, c.Repo)
}

func (c Context) blobURL(sha string) string {
	return fmt.Sprintf("%s/git/blobs/%s", c.apiRepoURL(), sha)
}

func (c Context) treeURL(sha string) string {
	return fmt.Sprintf("%s/git/trees/%s", c.apiRepoURL(), sha)
}

func (c Context) commitURL(sha string) string {
	return fmt.Sprintf("%s/commits/%s", c.apiRepoURL(), sha)
}

func (c Context) htmlRepoURL() string {
	return fmt.Sprintf("%s://%s/%s/%s", c.Scheme, c.Host, c.Owner, c.Repo)
}

func (c Context) htmlCommitURL(sha string) string {
	return fmt.Sprintf("%s/commit/%s", c.htmlRepoURL(), sha)
}

func (c Context) contentsURL(path string) string {
	return fmt.Sprintf("%s/contents/%s", c.apiRepoURL(), path)
}

func (c Context) htmlBlobURL(ref, path string) string {
	return fmt.Sprintf("%s/blob/%s/%s", c.htmlRepoURL(), ref, path)
}

// documentationURL is embedded verbatim in NotFound/InvalidSha bodies,
// matching GitHub's own API error shape.
const documentationURL = "https://docs.github.com/rest"

// NotFoundBody is the 404 JSON body for API routes.
type NotFoundBody struct {
	Message          string `json:"message"`
	DocumentationURL string `json:"documentation_url"`
}

// NewNotFound builds a NotFoundBody with the given human-readable message.
func NewNotFound(message string) NotFoundBody {
	return NotFoundBody{Message: message, DocumentationURL: documentationURL}
}

// BlobResponse is the get-blob endpoint's JSON body.
type BlobResponse struct {
	Sha      string `json:"sha"`
	Size     int    `json:"size"`
	URL      string `json:"url"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// EncodeBlob renders a blob's raw bytes into GitHub's get-blob shape.
func EncodeBlob(ctx Context, sha string, data []byte) BlobResponse {
	return BlobResponse{
		Sha:      sha,
		Size:     len(data),
		URL:      ctx.blobURL(sha),
		Content:  base64.StdEncoding.EncodeToString(data) + "\n",
		Encoding: "base64",
	}
}

// TreeEntryResponse is one entry of a get-tree response.
type TreeEntryResponse struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	Sha  string `json:"sha"`
	Size *int   `json:"size,omitempty"`
	URL  string `json:"url"`
}

// TreeResponse is the get-tree endpoint's JSON body.
type TreeResponse struct {
	Sha       string              `json:"sha"`
	URL       string              `json:"url"`
	Tree      []TreeEntryResponse `json:"tree"`
	Truncated bool                `json:"truncated"`
}

// objectTypeName renders a gitdb.ObjectType the way GitHub's API spells
// it ("blob"/"tree"; submodules show up as "commit" entries but are
// out of scope here since the baseline has no submodule support).
func objectTypeName(t gitdb.ObjectType) string {
	switch t {
	case gitdb.ObjectBlob:
		return "blob"
	case gitdb.ObjectTree:
		return "tree"
	case gitdb.ObjectCommit:
		return "commit"
	default:
		return "blob"
	}
}

// EncodeTree renders a resolved tree oid plus its (optionally recursively
// collected) entries into GitHub's get-tree shape. blobSize is consulted
// for blob entries only; pass nil when sizes are unavailable.
func EncodeTree(ctx Context, sha string, entries []gitaccess.CollectedEntry, blobSize func(oid *gitdb.Oid) (int, bool)) TreeResponse {
	out := TreeResponse{
		Sha:       sha,
		URL:       ctx.treeURL(sha),
		Tree:      make([]TreeEntryResponse, 0, len(entries)),
		Truncated: false,
	}
	for _, e := range entries {
		entrySha := e.Id.String()
		item := TreeEntryResponse{
			Path: e.Path,
			Mode: fmt.Sprintf("%06o", uint32(e.Filemode)),
			Type: objectTypeName(e.Type),
			Sha:  entrySha,
		}
		if e.Type == gitdb.ObjectBlob {
			item.URL = ctx.blobURL(entrySha)
			if blobSize != nil {
				if size, ok := blobSize(e.Id); ok {
					item.Size = &size
				}
			}
		} else {
			item.URL = ctx.treeURL(entrySha)
		}
		out.Tree = append(out.Tree, item)
	}
	return out
}

// ContentsLinks is GitHub's "_links" sub-object on a contents response.
type ContentsLinks struct {
	Self string `json:"self"`
	Git  string `json:"git"`
	HTML string `json:"html"`
}

// ContentsFile is the get-contents shape for a single file.
type ContentsFile struct {
	Type        string        `json:"type"`
	Name        string        `json:"name"`
	Path        string        `json:"path"`
	Sha         string        `json:"sha"`
	Size        int           `json:"size"`
	URL         string        `json:"url"`
	HTMLURL     string        `json:"html_url"`
	GitURL      string        `json:"git_url"`
	DownloadURL *string       `json:"download_url"`
	Content     string        `json:"content,omitempty"`
	Encoding    string        `json:"encoding,omitempty"`
	Links       ContentsLinks `json:"_links"`
}

// EncodeContentsFile renders a file at path into a single get-contents
// object, including its base64 content.
func EncodeContentsFile(ctx Context, ref, path, sha string, data []byte) ContentsFile {
	name := path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		name = path[i+1:]
	}
	download := fmt.Sprintf("%s://%s/raw/%s/%s/%s", ctx.Scheme, ctx.Host, ctx.Owner, ctx.Repo, joinRefPath(ref, path))
	return ContentsFile{
		Type:        "file",
		Name:        name,
		Path:        path,
		Sha:         sha,
		Size:        len(data),
		URL:         ctx.contentsURL(path),
		HTMLURL:     ctx.htmlBlobURL(ref, path),
		GitURL:      ctx.blobURL(sha),
		DownloadURL: &download,
		Content:     base64.StdEncoding.EncodeToString(data) + "\n",
		Encoding:    "base64",
		Links: ContentsLinks{
			Self: ctx.contentsURL(path),
			Git:  ctx.blobURL(sha),
			HTML: ctx.htmlBlobURL(ref, path),
		},
	}
}

// EncodeContentsDirEntry renders one entry of a directory listing; file
// entries omit content/encoding, directory entries report size 0 and a
// nil download_url, matching GitHub's own asymmetry between the two.
func EncodeContentsDirEntry(ctx Context, ref, parentPath string, e gitaccess.CollectedEntry) ContentsFile {
	path := e.Name
	if parentPath != "" {
		path = parentPath + "/" + e.Name
	}
	sha := e.Id.String()

	if e.Type == gitdb.ObjectTree {
		return ContentsFile{
			Type:        "dir",
			Name:        e.Name,
			Path:        path,
			Sha:         sha,
			Size:        0,
			URL:         ctx.contentsURL(path),
			HTMLURL:     fmt.Sprintf("%s/tree/%s/%s", ctx.htmlRepoURL(), ref, path),
			GitURL:      ctx.treeURL(sha),
			DownloadURL: nil,
			Links: ContentsLinks{
				Self: ctx.contentsURL(path),
				Git:  ctx.treeURL(sha),
				HTML: fmt.Sprintf("%s/tree/%s/%s", ctx.htmlRepoURL(), ref, path),
			},
		}
	}

	download := fmt.Sprintf("%s://%s/raw/%s/%s/%s", ctx.Scheme, ctx.Host, ctx.Owner, ctx.Repo, joinRefPath(ref, path))
	return ContentsFile{
		Type:        "file",
		Name:        e.Name,
		Path:        path,
		Sha:         sha,
		URL:         ctx.contentsURL(path),
		HTMLURL:     ctx.htmlBlobURL(ref, path),
		GitURL:      ctx.blobURL(sha),
		DownloadURL: &download,
		Links: ContentsLinks{
			Self: ctx.contentsURL(path),
			Git:  ctx.blobURL(sha),
			HTML: ctx.htmlBlobURL(ref, path),
		},
	}
}

func joinRefPath(ref, path string) string {
	if path == "" {
		return ref
	}
	return ref + "/" + path
}

// CommitAuthor is the author/committer sub-object of a commit response.
type CommitAuthor struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Date  string `json:"date"`
}

// CommitVerification is always "not implemented": this server never
// verifies signatures.
type CommitVerification struct {
	Verified bool   `json:"verified"`
	Reason   string `json:"reason"`
	Payload  string `json:"payload"`
	Sig      string `json:"signature"`
}

// CommitTreeRef is the nested {sha,url} tree reference inside commit.tree.
type CommitTreeRef struct {
	Sha string `json:"sha"`
	URL string `json:"url"`
}

// CommitInner mirrors GitHub's nested "commit" object.
type CommitInner struct {
	Author       CommitAuthor        `json:"author"`
	Committer    CommitAuthor        `json:"committer"`
	Message      string              `json:"message"`
	Tree         CommitTreeRef       `json:"tree"`
	URL          string              `json:"url"`
	CommentCount int                 `json:"comment_count"`
	Verification CommitVerification  `json:"verification"`
}

// UserStub is GitHub's minimal author/committer user sub-object.
type UserStub struct {
	AvatarURL   string `json:"avatar_url"`
	GravatarID string `json:"gravatar_id"`
}

// ParentRef is one entry of a commit's "parents" array.
type ParentRef struct {
	Sha     string `json:"sha"`
	URL     string `json:"url"`
	HTMLURL string `json:"html_url"`
}

// CommitResponse is one element of the list-commits response array.
type CommitResponse struct {
	Sha          string      `json:"sha"`
	NodeID       string      `json:"node_id"`
	Commit       CommitInner `json:"commit"`
	URL          string      `json:"url"`
	HTMLURL      string      `json:"html_url"`
	CommentsURL  string      `json:"comments_url"`
	Author       UserStub    `json:"author"`
	Committer    UserStub    `json:"committer"`
	Parents      []ParentRef `json:"parents"`
}

// gravatarURL renders a Gravatar avatar URL for email, the way GitHub does
// for commits whose author has no linked account.
func gravatarURL(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return "https://www.gravatar.com/avatar/" + hex.EncodeToString(sum[:])
}

func isoMillis(unixSeconds int64) string {
	return time.Unix(unixSeconds, 0).UTC().Format("2006-01-02T15:04:05.000Z")
}

func encodeSignature(s gitdb.Signature) CommitAuthor {
	return CommitAuthor{Name: s.Name, Email: s.Email, Date: isoMillis(s.When)}
}

// EncodeCommits renders a CommitLog result into GitHub's list-commits
// shape, one element per commit.
func EncodeCommits(ctx Context, commits []gitaccess.CommitInfo) []CommitResponse {
	out := make([]CommitResponse, 0, len(commits))
	for _, c := range commits {
		sha := c.Oid.String()
		author := c.Author
		committer := c.Committer

		var parents []ParentRef
		for _, p := range c.ParentOid {
			psha := p.String()
			parents = append(parents, ParentRef{
				Sha:     psha,
				URL:     ctx.commitURL(psha),
				HTMLURL: ctx.htmlCommitURL(psha),
			})
		}
		if parents == nil {
			parents = []ParentRef{}
		}

		out = append(out, CommitResponse{
			Sha:    sha,
			NodeID: "not implemented",
			Commit: CommitInner{
				Author:    encodeSignature(author),
				Committer: encodeSignature(committer),
				Message:   c.Message,
				Tree: CommitTreeRef{
					Sha: c.TreeOid.String(),
					URL: ctx.treeURL(c.TreeOid.String()),
				},
				URL:          ctx.commitURL(sha),
				CommentCount: 0,
				Verification: CommitVerification{
					Verified: false,
					Reason:   "not implemented",
					Payload:  "not implemented",
					Sig:      "not implemented",
				},
			},
			URL:         ctx.commitURL(sha),
			HTMLURL:     ctx.htmlCommitURL(sha),
			CommentsURL: fmt.Sprintf("%s/comments", ctx.commitURL(sha)),
			Author:      UserStub{AvatarURL: gravatarURL(author.Email), GravatarID: ""},
			Committer:   UserStub{AvatarURL: gravatarURL(committer.Email), GravatarID: ""},
			Parents:     parents,
		})
	}
	return out
}

// ArchiveRedirectLocation composes the 302 Location header for the
// zipball/tarball/archive endpoints: a redirect to the non-redirecting
// codeload endpoint (§4.5).
func ArchiveRedirectLocation(scheme, host, owner, repo, format, ref string) string {
	return fmt.Sprintf("%s://%s/codeload/%s/%s/%s/%s", scheme, host, owner, repo, format, ref)
}
