package smarthttp

import (
	"testing"

	"lab.nexedi.com/kirr/git-httpd/internal/giterr"
)

func TestClassifyInfoRefsUploadPack(t *testing.T) {
	req, err := Classify("GET", "/info/refs", "git-upload-pack")
	if err != nil {
		t.Fatal(err)
	}
	if req.Action != ActionInfoRefs || req.ContentType != "application/x-git-upload-pack-advertisement" {
		t.Errorf("req = %+v", req)
	}
}

func TestClassifyInfoRefsUnknownService(t *testing.T) {
	if _, err := Classify("GET", "/info/refs", "git-frobnicate"); err == nil {
		t.Fatal("expected error for unsupported service")
	}
}

func TestClassifyUploadPackPost(t *testing.T) {
	req, err := Classify("POST", "git-upload-pack", "")
	if err != nil {
		t.Fatal(err)
	}
	if req.Action != ActionUploadPack {
		t.Errorf("Action = %v", req.Action)
	}
}

func TestClassifyReceivePackPost(t *testing.T) {
	req, err := Classify("POST", "git-receive-pack", "")
	if err != nil {
		t.Fatal(err)
	}
	if req.Action != ActionReceivePack {
		t.Errorf("Action = %v", req.Action)
	}
}

func TestClassifyUnrecognizedIsNotFound(t *testing.T) {
	_, err := Classify("GET", "objects/info/packs", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !giterr.Is(err, giterr.KindNotFound) {
		t.Errorf("err = %v, want a NotFound error", err)
	}
}

func TestPktLineLengthPrefix(t *testing.T) {
	got := pktLine("# service=git-upload-pack\n")
	// "# service=git-upload-pack\n" is 26 bytes + 4 byte header = 30 = 0x1e
	want := "001e# service=git-upload-pack\n"
	if got != want {
		t.Errorf("pktLine = %q, want %q", got, want)
	}
}
