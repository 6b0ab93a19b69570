package ghshape

import (
	"strings"
	"testing"
)

func testContext() Context {
	return Context{Scheme: "http", Host: "localhost:8080", Owner: "octocat", Repo: "hello-world"}
}

func TestEncodeBlob(t *testing.T) {
	data := []byte("hello\n")
	resp := EncodeBlob(testContext(), "da39a3ee5e6b4b0d3255bfef95601890afd80709", data)
	if resp.Size != len(data) {
		t.Errorf("Size = %d, want %d", resp.Size, len(data))
	}
	if !strings.HasSuffix(resp.Content, "\n") {
		t.Errorf("Content must end with a newline per GitHub's own encoding")
	}
	if resp.Encoding != "base64" {
		t.Errorf("Encoding = %q", resp.Encoding)
	}
	if !strings.Contains(resp.URL, "/git/blobs/da39a3ee5e6b4b0d3255bfef95601890afd80709") {
		t.Errorf("URL = %q", resp.URL)
	}
}

func TestGravatarURLIsLowercasedAndTrimmed(t *testing.T) {
	a := gravatarURL(" Foo@Example.com ")
	b := gravatarURL("foo@example.com")
	if a != b {
		t.Errorf("gravatarURL not case/whitespace insensitive: %q != %q", a, b)
	}
}

func TestIsoMillisFormat(t *testing.T) {
	got := isoMillis(0)
	want := "1970-01-01T00:00:00.000Z"
	if got != want {
		t.Errorf("isoMillis(0) = %q, want %q", got, want)
	}
}

func TestNewNotFoundIncludesDocumentationURL(t *testing.T) {
	body := NewNotFound("Not Found")
	if body.DocumentationURL == "" {
		t.Error("expected non-empty documentation_url")
	}
	if body.Message != "Not Found" {
		t.Errorf("Message = %q", body.Message)
	}
}
