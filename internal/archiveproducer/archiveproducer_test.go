package archiveproducer

import "testing"

func TestFormatExt(t *testing.T) {
	if Zip.ext() != "zip" {
		t.Errorf("Zip.ext() = %q", Zip.ext())
	}
	if TarGz.ext() != "tgz" {
		t.Errorf("TarGz.ext() = %q", TarGz.ext())
	}
}

func TestFormatContentType(t *testing.T) {
	if Zip.ContentType() != "application/zip" {
		t.Errorf("Zip.ContentType() = %q", Zip.ContentType())
	}
	if TarGz.ContentType() != "application/x-gzip" {
		t.Errorf("TarGz.ContentType() = %q", TarGz.ContentType())
	}
}

func TestLoadRootGitignoreMissingFileReturnsNilMatcher(t *testing.T) {
	dir := t.TempDir()
	if m := loadRootGitignore(dir); m != nil {
		t.Errorf("expected nil matcher for missing .gitignore, got %v", m)
	}
}
