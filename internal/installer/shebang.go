package installer

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
)

// RewriteShebangs walks the scheme's scripts directory and rewrites the
// interpreter path token in every launcher to newInterpreter, handling
// both the simple "#!path" form and the /bin/sh-exec trampoline form.
// Only the path token changes; the script body
// is preserved byte for byte. Files that match neither pattern — native
// ".exe" launchers included — are left alone.
func (ins *Installer) RewriteShebangs(newInterpreter string) error {
	entries, err := os.ReadDir(ins.Scheme.Scripts)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".exe") {
			continue
		}
		p := filepath.Join(ins.Scheme.Scripts, e.Name())
		if err := rewriteShebang(p, newInterpreter); err != nil {
			return err
		}
	}
	return nil
}

func rewriteShebang(path, newInterpreter string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	body, ok := launcherBody(data)
	if !ok {
		return nil
	}
	var header string
	if needsTrampoline(newInterpreter) {
		header = shTrampoline(newInterpreter)
	} else {
		header = "#!" + newInterpreter + "\n"
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return os.WriteFile(path, append([]byte(header), body...), info.Mode().Perm())
}

// launcherBody strips a recognized shebang header — either the one-line
// "#!path" form or the three-line /bin/sh trampoline shTrampoline
// renders — and returns the remaining script body. ok is false when the
// file starts with neither.
func launcherBody(data []byte) (body []byte, ok bool) {
	if !bytes.HasPrefix(data, []byte("#!")) {
		return nil, false
	}
	lines := bytes.SplitAfterN(data, []byte("\n"), 4)
	if len(lines) >= 3 &&
		string(bytes.TrimRight(lines[0], "\n")) == "#!/bin/sh" &&
		bytes.HasPrefix(lines[1], []byte("'''exec' ")) &&
		string(bytes.TrimRight(lines[2], "\n")) == "'''" {
		return data[len(lines[0])+len(lines[1])+len(lines[2]):], true
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return data[i+1:], true
	}
	return nil, true
}
