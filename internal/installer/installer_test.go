package installer

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wheelhouse-dev/wheelhouse/internal/candidate"
	"github.com/wheelhouse-dev/wheelhouse/internal/environment"
	"github.com/wheelhouse-dev/wheelhouse/internal/requirement"
)

func buildTestWheel(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	write := func(name, content string) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zw.Create(%s): %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	write("mypkg/__init__.py", "VERSION = '1.0'\n")
	write("mypkg/cli.py", "def main():\n    return 0\n")
	write("mypkg-1.0.dist-info/METADATA", "Metadata-Version: 2.1\nName: mypkg\nVersion: 1.0\n")
	write("mypkg-1.0.dist-info/WHEEL", "Wheel-Version: 1.0\nGenerator: wheelhouse-test\nRoot-Is-Purelib: true\nTag: py3-none-any\n")
	write("mypkg-1.0.dist-info/entry_points.txt", "[console_scripts]\nmypkg = mypkg.cli:main\n")

	if err := zw.Close(); err != nil {
		t.Fatalf("zw.Close: %v", err)
	}

	dir := t.TempDir()
	wheelPath := filepath.Join(dir, "mypkg-1.0-py3-none-any.whl")
	if err := os.WriteFile(wheelPath, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write wheel: %v", err)
	}
	return wheelPath
}

func testScheme(t *testing.T) environment.Scheme {
	t.Helper()
	root := t.TempDir()
	return environment.Scheme{
		Purelib: filepath.Join(root, "site-packages"),
		Platlib: filepath.Join(root, "site-packages"),
		Scripts: filepath.Join(root, "bin"),
		Data:    filepath.Join(root, "data"),
		Include: filepath.Join(root, "include"),
	}
}

func namedCandidate(name, version string) *candidate.Candidate {
	req := requirement.Requirement{Kind: requirement.Named, Name: name}
	return candidate.New(name, version, "", req, nil)
}

func TestInstallWheelWritesFilesAndRecord(t *testing.T) {
	wheelPath := buildTestWheel(t)
	scheme := testScheme(t)
	ins := &Installer{Scheme: scheme, PythonExe: "/usr/bin/python3"}

	dist, err := ins.InstallWheel(context.Background(), wheelPath, namedCandidate("mypkg", "1.0"))
	if err != nil {
		t.Fatalf("InstallWheel: %v", err)
	}

	if dist.Name != "mypkg" || dist.Version != "1.0" {
		t.Errorf("dist = %+v, want name/version mypkg/1.0", dist)
	}
	if dist.DistInfoDir != "mypkg-1.0.dist-info" {
		t.Errorf("DistInfoDir = %q", dist.DistInfoDir)
	}

	if _, err := os.Stat(filepath.Join(scheme.Purelib, "mypkg", "__init__.py")); err != nil {
		t.Errorf("module file not installed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(scheme.Purelib, "mypkg-1.0.dist-info", "RECORD")); err != nil {
		t.Errorf("RECORD not written: %v", err)
	}

	launcherPath := filepath.Join(scheme.Scripts, "mypkg")
	launcherData, err := os.ReadFile(launcherPath)
	if err != nil {
		t.Fatalf("launcher not written: %v", err)
	}
	if !strings.HasPrefix(string(launcherData), "#!/usr/bin/python3\n") {
		t.Errorf("launcher shebang = %q", string(launcherData)[:30])
	}
	if !strings.Contains(string(launcherData), "from mypkg.cli import main") {
		t.Errorf("launcher missing import: %s", launcherData)
	}

	recordData, err := os.ReadFile(filepath.Join(scheme.Purelib, "mypkg-1.0.dist-info", "RECORD"))
	if err != nil {
		t.Fatalf("read RECORD: %v", err)
	}
	entries, err := environment.ParseRecord(strings.NewReader(string(recordData)))
	if err != nil {
		t.Fatalf("ParseRecord: %v", err)
	}
	var sawLauncher, sawModule bool
	for _, e := range entries {
		if e.Path == "../bin/mypkg" {
			sawLauncher = true
		}
		if e.Path == "mypkg/__init__.py" {
			sawModule = true
			if e.Hash == "" || e.Size == 0 {
				t.Errorf("module RECORD entry missing hash/size: %+v", e)
			}
		}
	}
	if !sawLauncher {
		t.Errorf("RECORD missing launcher entry relative to purelib, got %+v", entries)
	}
	if !sawModule {
		t.Errorf("RECORD missing module entry, got %+v", entries)
	}
}

func TestInstallWheelNamedCandidateHasNoDirectURL(t *testing.T) {
	wheelPath := buildTestWheel(t)
	scheme := testScheme(t)
	ins := &Installer{Scheme: scheme, PythonExe: "/usr/bin/python3"}

	dist, err := ins.InstallWheel(context.Background(), wheelPath, namedCandidate("mypkg", "1.0"))
	if err != nil {
		t.Fatalf("InstallWheel: %v", err)
	}
	if dist.DirectURL != nil {
		t.Errorf("DirectURL = %+v, want nil for an index-resolved candidate", dist.DirectURL)
	}
	if _, err := os.Stat(filepath.Join(scheme.Purelib, dist.DistInfoDir, "direct_url.json")); !os.IsNotExist(err) {
		t.Errorf("direct_url.json should not be written for a named candidate, stat err = %v", err)
	}
}

func TestUninstallStashRollbackRestoresOriginalState(t *testing.T) {
	wheelPath := buildTestWheel(t)
	scheme := testScheme(t)
	ins := &Installer{Scheme: scheme, PythonExe: "/usr/bin/python3"}

	dist, err := ins.InstallWheel(context.Background(), wheelPath, namedCandidate("mypkg", "1.0"))
	if err != nil {
		t.Fatalf("InstallWheel: %v", err)
	}

	paths := PathsForDistribution(scheme, dist)
	if len(paths) == 0 {
		t.Fatalf("PathsForDistribution returned no paths")
	}

	rp, err := Stash(scheme.Purelib, paths)
	if err != nil {
		t.Fatalf("Stash: %v", err)
	}
	for _, p := range paths {
		if _, err := os.Lstat(p); !os.IsNotExist(err) {
			t.Errorf("path %s should be stashed away, stat err = %v", p, err)
		}
	}

	if err := rp.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	for _, p := range paths {
		if _, err := os.Lstat(p); err != nil {
			t.Errorf("path %s should be restored after rollback: %v", p, err)
		}
	}
}

func TestUninstallStashCommitRemovesFiles(t *testing.T) {
	wheelPath := buildTestWheel(t)
	scheme := testScheme(t)
	ins := &Installer{Scheme: scheme, PythonExe: "/usr/bin/python3"}

	dist, err := ins.InstallWheel(context.Background(), wheelPath, namedCandidate("mypkg", "1.0"))
	if err != nil {
		t.Fatalf("InstallWheel: %v", err)
	}

	paths := PathsForDistribution(scheme, dist)
	rp, err := Stash(scheme.Purelib, paths)
	if err != nil {
		t.Fatalf("Stash: %v", err)
	}
	if err := rp.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	for _, p := range paths {
		if _, err := os.Lstat(p); !os.IsNotExist(err) {
			t.Errorf("path %s should remain deleted after commit, stat err = %v", p, err)
		}
	}
	// Commit and Rollback are both idempotent no-ops once committed.
	if err := rp.Rollback(); err != nil {
		t.Errorf("Rollback after Commit should be a no-op, got %v", err)
	}
}

func TestSpliceEasyInstallRemovesLineAndRollbackRestores(t *testing.T) {
	scheme := testScheme(t)
	if err := os.MkdirAll(scheme.Purelib, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	pth := filepath.Join(scheme.Purelib, "easy-install.pth")
	original := "/src/keep-me\n/src/mypkg\n"
	if err := os.WriteFile(pth, []byte(original), 0o644); err != nil {
		t.Fatalf("write easy-install.pth: %v", err)
	}

	rp, err := Stash(scheme.Purelib, nil)
	if err != nil {
		t.Fatalf("Stash: %v", err)
	}
	if err := rp.SpliceEasyInstall(pth, map[string]bool{"/src/mypkg": true}); err != nil {
		t.Fatalf("SpliceEasyInstall: %v", err)
	}
	data, err := os.ReadFile(pth)
	if err != nil {
		t.Fatalf("read spliced pth: %v", err)
	}
	if strings.Contains(string(data), "/src/mypkg") || !strings.Contains(string(data), "/src/keep-me") {
		t.Errorf("spliced pth = %q, want /src/mypkg gone and /src/keep-me kept", data)
	}

	if err := rp.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	data, err = os.ReadFile(pth)
	if err != nil {
		t.Fatalf("read restored pth: %v", err)
	}
	if string(data) != original {
		t.Errorf("restored pth = %q, want original %q", data, original)
	}
}
