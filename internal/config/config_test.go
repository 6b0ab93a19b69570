package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if cfg.RepoRoot == "" {
		t.Fatal("expected non-empty default repoRoot")
	}
	if cfg.Logs.Level != "info" {
		t.Errorf("Logs.Level = %q, want info", cfg.Logs.Level)
	}
	_ = dir
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	vrPath := filepath.Join(dir, "vrepo")
	if err := os.MkdirAll(vrPath, 0o755); err != nil {
		t.Fatal(err)
	}

	contents := `
appTitle: test-server
repoRoot: ` + dir + `
virtualRepos:
  acme:
    widgets:
      path: ` + vrPath + `
listen:
  http:
    host: 127.0.0.1
    port: 8080
subdomainMapping:
  enable: true
  baseDomains:
    - localtest.me
logs:
  level: debug
`
	if err := os.WriteFile(cfgPath, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AppTitle != "test-server" {
		t.Errorf("AppTitle = %q", cfg.AppTitle)
	}
	if cfg.Listen.HTTP.Port != 8080 {
		t.Errorf("Listen.HTTP.Port = %d", cfg.Listen.HTTP.Port)
	}
	if !cfg.SubdomainMapping.Enable || len(cfg.SubdomainMapping.BaseDomains) != 1 {
		t.Errorf("SubdomainMapping = %+v", cfg.SubdomainMapping)
	}
	path, ok := cfg.VirtualRepoPath("acme", "widgets")
	if !ok || path != vrPath {
		t.Errorf("VirtualRepoPath(acme, widgets) = %q, %v", path, ok)
	}
}

func TestValidateRejectsRelativeVirtualRepo(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.RepoRoot = dir
	cfg.VirtualRepos = map[string]map[string]VirtualRepo{
		"acme": {"widgets": {Path: "relative/path"}},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for relative virtual repo path")
	}
}

func TestValidateRejectsMissingRepoRoot(t *testing.T) {
	cfg := Default()
	cfg.RepoRoot = filepath.Join(t.TempDir(), "does-not-exist")
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing repoRoot")
	}
}
