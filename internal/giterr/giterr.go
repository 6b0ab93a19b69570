// Package giterr defines the typed error kinds shared by every layer of
// git-httpd, from object resolution up through the HTTP dispatcher.
//
// The teacher (git-backup.go) propagates failures with panic/recover via
// lab.nexedi.com/kirr/go123's errcatch/raise, a style that fits a one-shot
// CLI tool where any error is fatal. A long-running server needs to tell
// "this ref does not exist" (404) apart from "the config was wrong at
// startup" (process-fatal) apart from "the archive child process died"
// (500), so this package replaces that exception style with a plain typed
// error carrying a Kind the HTTP layer switches on directly.
package giterr

import "fmt"

// Kind classifies an error by how the HTTP layer must respond to it.
type Kind int

const (
	// KindNotFound: a ref, sha or path resolved to nothing.
	KindNotFound Kind = iota
	// KindInvalidSha: a sha path parameter failed the [0-9a-f]{40} check.
	KindInvalidSha
	// KindBadRequest: a malformed query parameter (e.g. non-string path).
	KindBadRequest
	// KindUpstream: a child process or archive stream failed.
	KindUpstream
	// KindFatal: a startup failure; the process should not continue.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidSha:
		return "invalid_sha"
	case KindBadRequest:
		return "bad_request"
	case KindUpstream:
		return "upstream"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is the typed error returned throughout internal/gitaccess,
// internal/archiveproducer and internal/smarthttp.
type Error struct {
	Kind Kind
	Msg  string
	Err  error // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound builds a KindNotFound error.
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// InvalidSha builds a KindInvalidSha error.
func InvalidSha(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidSha, Msg: fmt.Sprintf(format, args...)}
}

// BadRequest builds a KindBadRequest error.
func BadRequest(format string, args ...interface{}) *Error {
	return &Error{Kind: KindBadRequest, Msg: fmt.Sprintf(format, args...)}
}

// Upstream wraps err as a KindUpstream error.
func Upstream(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindUpstream, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Fatal wraps err as a KindFatal error.
func Fatal(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindFatal, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
