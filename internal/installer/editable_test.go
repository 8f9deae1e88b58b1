package installer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wheelhouse-dev/wheelhouse/internal/candidate"
	"github.com/wheelhouse-dev/wheelhouse/internal/requirement"
)

func TestInstallEditableWritesPthAndDistInfo(t *testing.T) {
	scheme := testScheme(t)
	ins := &Installer{Scheme: scheme, PythonExe: "/usr/bin/python3"}

	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "mypkg.py"), []byte("VERSION = '1.0'\n"), 0o644); err != nil {
		t.Fatalf("write source module: %v", err)
	}

	req := requirement.Requirement{Kind: requirement.File, Name: "my-pkg", Path: src, Editable: true}
	c := candidate.New("my-pkg", "1.0", "", req, nil)

	dist, err := ins.InstallEditable(context.Background(), src, c)
	if err != nil {
		t.Fatalf("InstallEditable: %v", err)
	}
	if !dist.Editable {
		t.Errorf("dist.Editable = false, want true")
	}

	pth := filepath.Join(scheme.Purelib, "__editable__.my_pkg.pth")
	data, err := os.ReadFile(pth)
	if err != nil {
		t.Fatalf("reading %s: %v", pth, err)
	}
	if got := strings.TrimSpace(string(data)); got != src {
		t.Errorf(".pth contents = %q, want %q", got, src)
	}

	distInfo := filepath.Join(scheme.Purelib, "my_pkg-1.0.dist-info")
	md, err := os.ReadFile(filepath.Join(distInfo, "METADATA"))
	if err != nil {
		t.Fatalf("reading METADATA: %v", err)
	}
	if !strings.Contains(string(md), "Name: my-pkg") || !strings.Contains(string(md), "Version: 1.0") {
		t.Errorf("METADATA = %q, missing name/version", md)
	}

	du, err := os.ReadFile(filepath.Join(distInfo, "direct_url.json"))
	if err != nil {
		t.Fatalf("reading direct_url.json: %v", err)
	}
	if !strings.Contains(string(du), `"editable": true`) {
		t.Errorf("direct_url.json = %s, missing dir_info.editable", du)
	}

	record, err := os.ReadFile(filepath.Join(distInfo, "RECORD"))
	if err != nil {
		t.Fatalf("reading RECORD: %v", err)
	}
	for _, want := range []string{"__editable__.my_pkg.pth", "METADATA", "direct_url.json"} {
		if !strings.Contains(string(record), want) {
			t.Errorf("RECORD missing %s:\n%s", want, record)
		}
	}
}

func TestInstallEditableRejectsMissingSourceDir(t *testing.T) {
	ins := &Installer{Scheme: testScheme(t), PythonExe: "/usr/bin/python3"}
	req := requirement.Requirement{Kind: requirement.File, Name: "ghost", Path: "/nonexistent", Editable: true}
	c := candidate.New("ghost", "0.1", "", req, nil)
	if _, err := ins.InstallEditable(context.Background(), "/nonexistent/ghost-src", c); err == nil {
		t.Fatalf("expected an error for a missing source directory")
	}
}
