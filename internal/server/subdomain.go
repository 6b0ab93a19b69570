package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"lab.nexedi.com/kirr/git-httpd/internal/config"
)

type mappedCtxKey struct{}

// subdomainRewriter implements §4.1. It must run as a plain net/http
// middleware wrapping the whole gin engine, not a gin.HandlerFunc: gin
// matches a request to its route (and therefore its handler chain) against
// c.Request.URL.Path before any registered middleware executes, so a
// rewrite performed from inside a gin handler would always be one request
// too late. Wrapping the http.Handler instead rewrites the path before
// gin ever sees it.
//
// If the Host header (minus any port) ends with one of
// cfg.BaseDomains and has a non-empty leading label, the path is
// rewritten to "/<sub1>/.../<subN><path>" and the request is marked
// "mapped" via its context, so downstream handlers know to substitute
// localhost:<port> for the original Host when composing self-referential
// URLs (§4.5's self-URL composition). It never errors — it is a pure
// transform, exactly as §4.1 specifies.
func subdomainRewriter(cfg config.SubdomainMapping, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !cfg.Enable {
			next.ServeHTTP(w, r)
			return
		}

		host := r.Host
		if i := strings.LastIndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}

		for _, base := range cfg.BaseDomains {
			suffix := "." + base
			if !strings.HasSuffix(host, suffix) {
				continue
			}
			lead := strings.TrimSuffix(host, suffix)
			if lead == "" {
				continue
			}
			labels := strings.Split(lead, ".")
			prefix := "/" + strings.Join(labels, "/")
			r.URL.Path = prefix + r.URL.Path
			r = r.WithContext(context.WithValue(r.Context(), mappedCtxKey{}, true))
			break
		}

		next.ServeHTTP(w, r)
	})
}

func isMapped(c *gin.Context) bool {
	v, _ := c.Request.Context().Value(mappedCtxKey{}).(bool)
	return v
}
