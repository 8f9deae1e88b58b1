package installer

import (
	"fmt"
	"strings"
)

// maxShebangBytes is the longest shebang line POSIX reliably honors
// verbatim (128 bytes including the trailing newline, minus 1 for it);
// a longer interpreter path needs the /bin/sh-exec trampoline to
// preserve argv instead of being silently truncated by the kernel.
const maxShebangBytes = 127

// launcherScript renders a POSIX console/gui-script launcher for entry
// point "module:attr", invoked with pythonExe as the interpreter. When
// pythonExe contains whitespace or would overflow the kernel's shebang
// length limit, the script instead execs through /bin/sh so the
// interpreter path (including any spaces) survives as a single argv
// element, mirroring pip's own wheel.py launcher generation.
func launcherScript(pythonExe, module, attr string) string {
	body := fmt.Sprintf(
		"# -*- coding: utf-8 -*-\nimport sys\nfrom %s import %s\nif __name__ == \"__main__\":\n    sys.exit(%s())\n",
		module, entryAttrRoot(attr), entryCallable(attr),
	)
	if needsTrampoline(pythonExe) {
		return shTrampoline(pythonExe) + body
	}
	return "#!" + pythonExe + "\n" + body
}

func needsTrampoline(pythonExe string) bool {
	return strings.ContainsAny(pythonExe, " \t") || len(pythonExe)+3 > maxShebangBytes
}

// shTrampoline renders a shebang that re-execs the real interpreter via
// /bin/sh, quoting pythonExe so embedded spaces survive as one argument.
func shTrampoline(pythonExe string) string {
	quoted := "'" + strings.ReplaceAll(pythonExe, "'", `'\''`) + "'"
	return "#!/bin/sh\n" + fmt.Sprintf(`'''exec' %s "$0" "$@"`, quoted) + "\n'''\n"
}

// entryAttrRoot returns the first dotted component of an entry point's
// "attr" half (e.g. "cli.main" → "cli"), since the generated script
// imports that name directly from module.
func entryAttrRoot(attr string) string {
	if i := strings.IndexByte(attr, '.'); i >= 0 {
		return attr[:i]
	}
	return attr
}

// entryCallable renders attr as the expression the launcher calls: the
// full dotted attr, unchanged (e.g. "cli.main" is called as "cli.main()").
func entryCallable(attr string) string { return attr }

// ParseEntryPointTarget splits an entry-points.txt value ("module:attr")
// into its module and attribute halves.
func ParseEntryPointTarget(target string) (module, attr string, ok bool) {
	module, attr, ok = strings.Cut(target, ":")
	return
}
