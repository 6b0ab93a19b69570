// Package server wires the HTTP dispatcher: the subdomain rewriter, the
// full §6.1 route table, and the translation of internal/giterr.Error
// kinds into the response shapes §7 specifies.
//
// Grounded on gruntwork-io-runbooks/api/server.go's dispatcher idiom:
// gin.New() + gin.Recovery() (never gin.Default(), which also wires a
// logging middleware this server replaces with its own zap-based one),
// explicit SetTrustedProxies(nil), and cors.New wired the same way. The
// route table itself has no teacher counterpart (the teacher has no HTTP
// surface at all) and is built directly from §6.1.
package server

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lab.nexedi.com/kirr/git-httpd/internal/archiveproducer"
	"lab.nexedi.com/kirr/git-httpd/internal/config"
	"lab.nexedi.com/kirr/git-httpd/internal/ghshape"
	"lab.nexedi.com/kirr/git-httpd/internal/gitaccess"
	"lab.nexedi.com/kirr/git-httpd/internal/giterr"
	"lab.nexedi.com/kirr/git-httpd/internal/resolver"
)

// Server owns the configured dispatcher and its listeners.
type Server struct {
	cfg      *config.Config
	log      *zap.Logger
	resolver *resolver.Resolver
	archives *archiveproducer.Producer

	httpPort  int
	httpsPort int

	httpServer  *http.Server
	httpsServer *http.Server
}

// New builds a Server from cfg, ready to Start.
func New(cfg *config.Config, log *zap.Logger) (*Server, error) {
	archiveCacheDir := filepath.Join(os.TempDir(), "git-httpd-archives")
	archives, err := archiveproducer.New(archiveCacheDir)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:      cfg,
		log:      log,
		resolver: resolver.New(cfg),
		archives: archives,
	}, nil
}

// engine builds the gin.Engine with every §6.1 route wired.
func (s *Server) engine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.SetTrustedProxies(nil)
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "HEAD", "OPTIONS"},
		AllowHeaders:    []string{"*"},
	}))
	r.Use(s.accessLog())

	r.GET("/raw/:owner/:repo/*refpath", s.handleRaw)
	r.GET("/:owner/:repo/raw/*refpath", s.handleRawLegacy)

	// Smart HTTP (§4.8). The repo name arrives with its literal ".git"
	// suffix still attached (e.g. "myrepo.git") since GitHub's own clone
	// URLs carry it; each handler strips it before resolving. Registered
	// as three static sub-paths rather than a single "*subpath" catch-all
	// because a catch-all cannot share a route-tree node with the other
	// static children ("raw", "blob", "tree", "archive") hanging off
	// ":repo".
	r.GET("/:owner/:repo/info/refs", s.handleSmartHTTP("info/refs"))
	r.POST("/:owner/:repo/git-upload-pack", s.handleSmartHTTP("git-upload-pack"))
	r.POST("/:owner/:repo/git-receive-pack", s.handleSmartHTTP("git-receive-pack"))

	api := r.Group("/api/repos/:owner/:repo")
	api.GET("/git/blobs/:sha", s.handleGetBlob)
	api.GET("/git/trees/:refOrSha", s.handleGetTree)
	api.GET("/contents/*path", s.handleGetContents)
	api.GET("/commits", s.handleListCommits)
	api.GET("/zipball/:ref", s.handleAPIArchiveRedirect(archiveproducer.Zip))
	api.GET("/zipball", s.handleAPIArchiveRedirect(archiveproducer.Zip))
	api.GET("/tarball/:ref", s.handleAPIArchiveRedirect(archiveproducer.TarGz))
	api.GET("/tarball", s.handleAPIArchiveRedirect(archiveproducer.TarGz))

	r.GET("/:owner/:repo/archive/*refAndFormat", s.handleLegacyArchiveRedirect)

	r.GET("/codeload/:owner/:repo/zip/*ref", s.handleCodeload(archiveproducer.Zip))
	r.GET("/codeload/:owner/:repo/tar.gz/*ref", s.handleCodeload(archiveproducer.TarGz))
	r.GET("/codeload/:owner/:repo/legacy.zip/*ref", s.handleCodeload(archiveproducer.Zip))
	r.GET("/codeload/:owner/:repo/legacy.tar.gz/*ref", s.handleCodeload(archiveproducer.TarGz))

	r.GET("/:owner/:repo/blob/*refpath", s.handleHTMLBlob)
	r.GET("/:owner/:repo/tree/*refpath", s.handleHTMLTree)
	r.GET("/:owner/:repo", s.handleHTMLRoot)

	r.NoRoute(func(c *gin.Context) {
		c.String(http.StatusNotFound, "not found.")
	})

	return r
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

// errorFamily selects which §7 response shape writeError uses.
type errorFamily int

const (
	familyAPI errorFamily = iota
	familyRaw
	familyHTML
)

// errorMessage returns the message that belongs in a client-facing body:
// gerr.Msg for a *giterr.Error (the plain §7 message, e.g. "No commit found
// for the ref main"), falling back to err.Error() for anything else. This is
// deliberately not err.Error(), which per giterr.Error.Error() always
// prepends "<kind>: " for logging — a prefix spec.md's exact response bodies
// (§4.5's get-blob/get-contents messages) never carry.
func errorMessage(err error) string {
	if gerr, ok := err.(*giterr.Error); ok {
		return gerr.Msg
	}
	return err.Error()
}

// writeError translates a giterr.Error (or any other error, treated as
// Upstream) into the §7 response shape for the given route family.
func (s *Server) writeError(c *gin.Context, family errorFamily, err error) {
	kind := giterr.KindUpstream
	if gerr, ok := err.(*giterr.Error); ok {
		kind = gerr.Kind
	}

	switch kind {
	case giterr.KindNotFound:
		switch family {
		case familyAPI:
			c.JSON(http.StatusNotFound, ghshape.NewNotFound(errorMessage(err)))
		case familyRaw:
			c.String(http.StatusNotFound, "not found.")
		default:
			c.String(http.StatusNotFound, "not found.")
		}
	case giterr.KindInvalidSha:
		c.JSON(http.StatusUnprocessableEntity, ghshape.NewNotFound(errorMessage(err)))
	case giterr.KindBadRequest:
		c.String(http.StatusBadRequest, "Bad request")
	default:
		s.log.Error("request failed", zap.Error(err))
		c.String(http.StatusInternalServerError, "internal error")
	}
}

// ctxFor builds the ghshape.Context for composing self-referential URLs,
// substituting localhost:<port> for the Host when the request was
// produced by the subdomain rewriter (§4.5's self-URL composition).
func (s *Server) ctxFor(c *gin.Context, owner, repo string) ghshape.Context {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}

	host := c.Request.Host
	if isMapped(c) {
		port := s.httpPort
		if scheme == "https" {
			port = s.httpsPort
		}
		host = fmt.Sprintf("localhost:%d", port)
	}

	return ghshape.Context{Scheme: scheme, Host: host, Owner: owner, Repo: repo}
}

func (s *Server) openAccess(owner, repo string) (*gitaccess.Access, error) {
	path := s.resolver.Resolve(owner, repo)
	return gitaccess.Open(path)
}

// normalizePath strips a leading "/" (gin wildcard params carry it) and
// collapses redundant internal "//" the way §4.6's raw handler requires.
func normalizePath(p string) string {
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	return strings.TrimPrefix(p, "/")
}

func inferContentType(path string) string {
	ext := filepath.Ext(path)
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "text/plain"
}

// Start binds the configured listeners and begins serving. It returns the
// actually-bound ports (§6.3); a disabled listener reports -1.
func (s *Server) Start() (httpPort, httpsPort int, err error) {
	handler := subdomainRewriter(s.cfg.SubdomainMapping, s.engine())

	httpPort = -1
	httpsPort = -1

	httpAddr := net.JoinHostPort(s.cfg.Listen.HTTP.Host, strconv.Itoa(s.cfg.Listen.HTTP.Port))
	httpListener, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return -1, -1, giterr.Fatal(err, "listen on %s", httpAddr)
	}
	httpPort = httpListener.Addr().(*net.TCPAddr).Port
	s.httpPort = httpPort
	s.httpServer = &http.Server{Handler: handler}
	go s.httpServer.Serve(httpListener)

	if s.cfg.Listen.HTTPS.Enable {
		cert, key, err := s.loadOrGenerateCert()
		if err != nil {
			return httpPort, -1, err
		}
		httpsAddr := net.JoinHostPort(s.cfg.Listen.HTTPS.Host, strconv.Itoa(s.cfg.Listen.HTTPS.Port))
		httpsListener, err := net.Listen("tcp", httpsAddr)
		if err != nil {
			return httpPort, -1, giterr.Fatal(err, "listen on %s", httpsAddr)
		}
		httpsPort = httpsListener.Addr().(*net.TCPAddr).Port
		s.httpsPort = httpsPort

		tlsCfg := &tls.Config{Certificates: []tls.Certificate{*cert}}
		s.httpsServer = &http.Server{Handler: handler, TLSConfig: tlsCfg}
		_ = key
		go s.httpsServer.ServeTLS(httpsListener, "", "")
	}

	return httpPort, httpsPort, nil
}

// Shutdown gracefully stops both listeners.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return err
		}
	}
	if s.httpsServer != nil {
		return s.httpsServer.Shutdown(ctx)
	}
	return nil
}

// loadOrGenerateCert loads the configured cert/key pair, or generates a
// self-signed pair at startup when HTTPS is enabled without one (§6.3).
func (s *Server) loadOrGenerateCert() (*tls.Certificate, []byte, error) {
	tlsCfg := s.cfg.Listen.HTTPS
	if tlsCfg.Cert != "" && tlsCfg.Key != "" {
		cert, err := tls.LoadX509KeyPair(tlsCfg.Cert, tlsCfg.Key)
		if err != nil {
			return nil, nil, giterr.Fatal(err, "load TLS cert/key pair")
		}
		return &cert, nil, nil
	}

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, giterr.Fatal(err, "generate self-signed TLS key")
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, giterr.Fatal(err, "generate TLS certificate serial number")
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: s.cfg.AppTitle},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(10 * 365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IsCA:         true,
		DNSNames:     []string{"localhost"},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return nil, nil, giterr.Fatal(err, "create self-signed TLS certificate")
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, nil, giterr.Fatal(err, "assemble generated TLS certificate")
	}
	return &cert, keyPEM, nil
}
