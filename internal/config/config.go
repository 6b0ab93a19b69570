// Package config loads and validates the git-httpd runtime configuration.
//
// The shape mirrors the configuration keys enumerated by the spec this
// server implements: a repository root, a table of virtual repository
// mounts, HTTP/HTTPS listener specs, subdomain-mapping settings and logging
// options. Values are loaded from a YAML file and may be overridden by CLI
// flags after Load returns.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// VirtualRepo is a logical owner/repo mount pointing at an arbitrary
// filesystem path, taken verbatim (not subject to the path sanitization
// applied to repoRoot-relative lookups).
type VirtualRepo struct {
	Path string `yaml:"path"`
}

// Listener describes one HTTP(S) listener. Port 0 means "bind an ephemeral
// port"; the resolved port is reported back by the server's Start() value.
type Listener struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// TLSListener is a Listener plus an optional cert/key pair. When HTTPS is
// enabled without a cert/key pair, the server generates a self-signed pair
// at startup.
type TLSListener struct {
	Listener `yaml:",inline"`
	Enable   bool   `yaml:"enable"`
	Key      string `yaml:"key"`
	Cert     string `yaml:"cert"`
}

// SubdomainMapping controls host-header subdomain rewriting (§4.1).
type SubdomainMapping struct {
	Enable      bool     `yaml:"enable"`
	BaseDomains []string `yaml:"baseDomains"`
}

// Logs controls where and how verbosely the server logs.
type Logs struct {
	Level         string `yaml:"level"`         // debug|info|warn|error
	LogsDir       string `yaml:"logsDir"`        // empty disables file logging
	ReqLogFormat  string `yaml:"reqLogFormat"`   // "json" or "console"
}

// RawRequestObserver is invoked for every /raw and /:owner/:repo/raw request
// with the resolved repository path, file path and ref. It is not
// representable in YAML; callers embedding git-httpd as a library set it on
// the Config value directly. Panics raised by the observer are recovered and
// logged — observability must never break delivery (§4.6, §7).
type RawRequestObserver func(repoPath, filePath, ref string)

// Config is the immutable-per-run server configuration.
type Config struct {
	AppTitle         string                            `yaml:"appTitle"`
	RepoRoot         string                            `yaml:"repoRoot"`
	VirtualRepos     map[string]map[string]VirtualRepo  `yaml:"virtualRepos"`
	Listen           ListenConfig                       `yaml:"listen"`
	SubdomainMapping SubdomainMapping                    `yaml:"subdomainMapping"`
	Logs             Logs                               `yaml:"logs"`

	OnRawRequest RawRequestObserver `yaml:"-"`
}

// ListenConfig groups the HTTP and HTTPS listener specs.
type ListenConfig struct {
	HTTP  Listener    `yaml:"http"`
	HTTPS TLSListener `yaml:"https"`
}

// VirtualRepoPath looks up a configured virtual repo mount, if any.
func (c *Config) VirtualRepoPath(owner, repo string) (string, bool) {
	byRepo, ok := c.VirtualRepos[owner]
	if !ok {
		return "", false
	}
	vr, ok := byRepo[repo]
	if !ok {
		return "", false
	}
	return vr.Path, true
}

// Default returns a Config with the baseline defaults applied: current
// working directory as repoRoot, an ephemeral HTTP port, HTTPS disabled,
// subdomain mapping disabled, info-level logging to stdout only.
func Default() *Config {
	cwd, _ := os.Getwd()
	return &Config{
		AppTitle: "git-httpd",
		RepoRoot: cwd,
		Listen: ListenConfig{
			HTTP: Listener{Host: "0.0.0.0", Port: 0},
		},
		Logs: Logs{Level: "info", ReqLogFormat: "console"},
	}
}

// Load reads a YAML configuration file at path, applying it on top of
// Default(), and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structural invariants that the rest of the server relies
// on without re-checking: repoRoot must exist and be a directory, and every
// virtual repo path must be absolute (it is trusted verbatim downstream, see
// the resolver package).
func (c *Config) Validate() error {
	if c.RepoRoot == "" {
		return fmt.Errorf("config: repoRoot must not be empty")
	}
	abs, err := filepath.Abs(c.RepoRoot)
	if err != nil {
		return fmt.Errorf("config: repoRoot %q: %w", c.RepoRoot, err)
	}
	c.RepoRoot = abs
	info, err := os.Stat(c.RepoRoot)
	if err != nil {
		return fmt.Errorf("config: repoRoot %q: %w", c.RepoRoot, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("config: repoRoot %q is not a directory", c.RepoRoot)
	}

	for owner, repos := range c.VirtualRepos {
		for repo, vr := range repos {
			if !filepath.IsAbs(vr.Path) {
				return fmt.Errorf("config: virtualRepos[%s][%s].path must be absolute, got %q", owner, repo, vr.Path)
			}
		}
	}

	if c.Logs.Level == "" {
		c.Logs.Level = "info"
	}
	return nil
}
