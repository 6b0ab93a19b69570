package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"lab.nexedi.com/kirr/git-httpd/internal/config"
)

func TestSubdomainRewriterRewritesPath(t *testing.T) {
	cfg := config.SubdomainMapping{Enable: true, BaseDomains: []string{"localtest.me"}}

	var gotPath string
	var gotMapped bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMapped = r.Context().Value(mappedCtxKey{}) != nil
	})

	h := subdomainRewriter(cfg, next)
	req := httptest.NewRequest(http.MethodGet, "/foo.txt", nil)
	req.Host = "acme.widgets.localtest.me:8080"
	h.ServeHTTP(httptest.NewRecorder(), req)

	if gotPath != "/acme/widgets/foo.txt" {
		t.Errorf("path = %q, want /acme/widgets/foo.txt", gotPath)
	}
	if !gotMapped {
		t.Error("expected mapped=true in request context")
	}
}

func TestSubdomainRewriterLeavesUnmatchedHostAlone(t *testing.T) {
	cfg := config.SubdomainMapping{Enable: true, BaseDomains: []string{"localtest.me"}}

	var gotPath string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	})

	h := subdomainRewriter(cfg, next)
	req := httptest.NewRequest(http.MethodGet, "/foo.txt", nil)
	req.Host = "example.org"
	h.ServeHTTP(httptest.NewRecorder(), req)

	if gotPath != "/foo.txt" {
		t.Errorf("path = %q, want unchanged /foo.txt", gotPath)
	}
}

func TestSubdomainRewriterDisabledIsNoop(t *testing.T) {
	cfg := config.SubdomainMapping{Enable: false, BaseDomains: []string{"localtest.me"}}

	var gotPath string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	})

	h := subdomainRewriter(cfg, next)
	req := httptest.NewRequest(http.MethodGet, "/foo.txt", nil)
	req.Host = "acme.widgets.localtest.me"
	h.ServeHTTP(httptest.NewRecorder(), req)

	if gotPath != "/foo.txt" {
		t.Errorf("path = %q, want unchanged /foo.txt when disabled", gotPath)
	}
}

func TestNormalizePathStripsLeadingSlashAndCollapsesDoubles(t *testing.T) {
	cases := map[string]string{
		"/a/b":    "a/b",
		"a/b":     "a/b",
		"//a//b":  "a/b",
		"":        "",
	}
	for in, want := range cases {
		if got := normalizePath(in); got != want {
			t.Errorf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestInferContentTypeFallsBackToPlainText(t *testing.T) {
	if got := inferContentType("noext"); got != "text/plain" {
		t.Errorf("inferContentType(noext) = %q, want text/plain", got)
	}
}
