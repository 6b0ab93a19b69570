// Package smarthttp implements Git's Smart HTTP transport (§4.8):
// info/refs discovery and the upload-pack/receive-pack request bodies
// that `git fetch`/`git clone`/`git push` speak over HTTP.
//
// Unlike other_examples/wandb-catnip's container-internal-services
// approach (shelling out to `git http-backend` under a full CGI
// environment and hand-parsing its raw HTTP response), this transport
// spawns `git upload-pack --stateless-rpc`/`git receive-pack
// --stateless-rpc` directly and pipes the request body to its stdin and
// its stdout straight to the response body — no CGI layer, no response
// parsing, just two pipes. The one piece of wire framing git http-backend
// would normally add for us (the "# service=..." pkt-line header on the
// GET info/refs response) is written by hand here, since nothing in the
// pack ships a pkt-line codec.
package smarthttp

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"lab.nexedi.com/kirr/git-httpd/internal/giterr"
)

// Action classifies a Smart HTTP request the way §4.8's parser does.
type Action int

const (
	ActionInfoRefs Action = iota
	ActionUploadPack
	ActionReceivePack
)

// Request is the {action, type, cmd, args} tuple §4.8 describes.
type Request struct {
	Action      Action
	ContentType string
	GitArgs     []string // arguments following "git", not including the repo path
	service     string   // "git-upload-pack" | "git-receive-pack", for the info/refs header
}

// Classify maps an HTTP method, the path beneath "<owner>/<repo>.git/",
// and (for GET info/refs) the "service" query parameter to a Request.
func Classify(method, subpath, service string) (*Request, error) {
	subpath = strings.Trim(subpath, "/")

	switch {
	case method == "GET" && subpath == "info/refs":
		switch service {
		case "git-upload-pack":
			return &Request{
				Action:      ActionInfoRefs,
				ContentType: "application/x-git-upload-pack-advertisement",
				GitArgs:     []string{"upload-pack", "--stateless-rpc", "--advertise-refs"},
				service:     service,
			}, nil
		case "git-receive-pack":
			return &Request{
				Action:      ActionInfoRefs,
				ContentType: "application/x-git-receive-pack-advertisement",
				GitArgs:     []string{"receive-pack", "--stateless-rpc", "--advertise-refs"},
				service:     service,
			}, nil
		default:
			return nil, giterr.BadRequest("unsupported service %q", service)
		}

	case method == "POST" && subpath == "git-upload-pack":
		return &Request{
			Action:      ActionUploadPack,
			ContentType: "application/x-git-upload-pack-result",
			GitArgs:     []string{"upload-pack", "--stateless-rpc"},
		}, nil

	case method == "POST" && subpath == "git-receive-pack":
		return &Request{
			Action:      ActionReceivePack,
			ContentType: "application/x-git-receive-pack-result",
			GitArgs:     []string{"receive-pack", "--stateless-rpc"},
		}, nil

	default:
		return nil, giterr.NotFound("unrecognized smart http request: %s %s", method, subpath)
	}
}

// pktLine encodes s as a single pkt-line: a 4-hex-digit length prefix
// (length includes itself) followed by the payload.
func pktLine(s string) string {
	return fmt.Sprintf("%04x%s", len(s)+4, s)
}

const flushPkt = "0000"

// Serve spawns the classified git subcommand against repoPath, streaming
// body (transparently gunzipped when contentEncoding is "gzip", per
// §4.8's first step) into its stdin and its stdout into out. Cancelling
// ctx terminates the child process, satisfying §5's cancellation
// requirement for in-flight Smart HTTP transfers.
func Serve(ctx context.Context, repoPath string, req *Request, contentEncoding string, body io.Reader, out io.Writer) error {
	if req.Action == ActionInfoRefs {
		header := pktLine("# service="+req.service+"\n") + flushPkt
		if _, err := io.WriteString(out, header); err != nil {
			return giterr.Upstream(err, "write info/refs service header")
		}
	}

	if strings.EqualFold(contentEncoding, "gzip") {
		gz, err := gzip.NewReader(body)
		if err != nil {
			return giterr.BadRequest("invalid gzip request body: %v", err)
		}
		defer gz.Close()
		body = gz
	}

	args := append(append([]string{}, req.GitArgs...), repoPath)
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Stdin = body
	cmd.Stdout = out

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return giterr.Upstream(err, "git %s: %s", strings.Join(args, " "), stderr.String())
	}
	return nil
}
