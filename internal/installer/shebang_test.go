package installer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRewriteShebangsSimpleForm(t *testing.T) {
	scheme := testScheme(t)
	ins := &Installer{Scheme: scheme, PythonExe: "/old/python3"}
	body := "import sys\nfrom mypkg import cli\nif __name__ == \"__main__\":\n    sys.exit(cli.main())\n"
	if err := os.MkdirAll(scheme.Scripts, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	script := filepath.Join(scheme.Scripts, "mypkg")
	if err := os.WriteFile(script, []byte("#!/old/python3\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	if err := ins.RewriteShebangs("/new/python3.12"); err != nil {
		t.Fatalf("RewriteShebangs: %v", err)
	}
	data, err := os.ReadFile(script)
	if err != nil {
		t.Fatalf("read script: %v", err)
	}
	want := "#!/new/python3.12\n" + body
	if string(data) != want {
		t.Errorf("rewritten script = %q, want %q", data, want)
	}
}

func TestRewriteShebangsTrampolineForm(t *testing.T) {
	scheme := testScheme(t)
	ins := &Installer{Scheme: scheme, PythonExe: "/path with spaces/python3"}
	body := "import sys\n"
	if err := os.MkdirAll(scheme.Scripts, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	script := filepath.Join(scheme.Scripts, "tool")
	original := shTrampoline("/path with spaces/python3") + body
	if err := os.WriteFile(script, []byte(original), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	// A plain path collapses the trampoline back to a one-line shebang.
	if err := ins.RewriteShebangs("/usr/bin/python3"); err != nil {
		t.Fatalf("RewriteShebangs: %v", err)
	}
	data, err := os.ReadFile(script)
	if err != nil {
		t.Fatalf("read script: %v", err)
	}
	if string(data) != "#!/usr/bin/python3\n"+body {
		t.Errorf("rewritten script = %q, want plain shebang + body", data)
	}

	// And a path needing quoting re-introduces it.
	if err := ins.RewriteShebangs("/another path/python3"); err != nil {
		t.Fatalf("RewriteShebangs: %v", err)
	}
	data, err = os.ReadFile(script)
	if err != nil {
		t.Fatalf("read script: %v", err)
	}
	want := shTrampoline("/another path/python3") + body
	if string(data) != want {
		t.Errorf("rewritten script = %q, want %q", data, want)
	}
}

func TestRewriteShebangsSkipsNonShebangAndExeFiles(t *testing.T) {
	scheme := testScheme(t)
	ins := &Installer{Scheme: scheme, PythonExe: "/old/python3"}
	if err := os.MkdirAll(scheme.Scripts, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	plain := filepath.Join(scheme.Scripts, "README")
	if err := os.WriteFile(plain, []byte("not a script\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	exe := filepath.Join(scheme.Scripts, "tool.exe")
	if err := os.WriteFile(exe, []byte("#!embedded\x00binary"), 0o755); err != nil {
		t.Fatalf("write exe: %v", err)
	}

	if err := ins.RewriteShebangs("/new/python3"); err != nil {
		t.Fatalf("RewriteShebangs: %v", err)
	}
	for _, p := range []string{plain, exe} {
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
		if strings.Contains(string(data), "/new/python3") {
			t.Errorf("%s was rewritten; should be untouched", p)
		}
	}
}
