// Package environment models the installed working set and the
// sysconfig-like install scheme the installer and
// synchronizer target.
package environment

import "runtime"

// Scheme is the set of absolute install directories a wheel's files are
// classified into, mirroring CPython's sysconfig install scheme.
type Scheme struct {
	// Purelib holds platform-independent importable packages.
	Purelib string
	// Platlib holds platform-specific importable packages (extension
	// modules). Equal to Purelib unless the environment distinguishes them.
	Platlib string
	// Scripts holds launcher scripts ("bin" on POSIX, "Scripts" on Windows).
	Scripts string
	// Data holds a distribution's "<name>.data/data" payload.
	Data string
	// Include holds C headers a distribution ships for other extensions
	// to compile against.
	Include string
	// Prefix is the environment root every other path is computed from.
	Prefix string
}

// DefaultScheme derives the conventional install scheme for a Python
// environment rooted at prefix, given the interpreter's version
// string (e.g. "3.12") used to build the versioned site-packages path on
// POSIX. goos selects the POSIX/Windows directory conventions independent
// of the host this process runs on, since a lockfile/environment being
// operated on may target a different platform than the one wheelhouse
// itself runs on.
func DefaultScheme(prefix, pythonVersion, goos string) Scheme {
	if goos == "" {
		goos = runtime.GOOS
	}
	if goos == "windows" {
		return Scheme{
			Purelib: joinPath(prefix, "Lib", "site-packages"),
			Platlib: joinPath(prefix, "Lib", "site-packages"),
			Scripts: joinPath(prefix, "Scripts"),
			Data:    prefix,
			Include: joinPath(prefix, "Include"),
			Prefix:  prefix,
		}
	}
	lib := joinPath(prefix, "lib", "python"+pythonVersion, "site-packages")
	return Scheme{
		Purelib: lib,
		Platlib: lib,
		Scripts: joinPath(prefix, "bin"),
		Data:    prefix,
		Include: joinPath(prefix, "include", "python"+pythonVersion),
		Prefix:  prefix,
	}
}

func joinPath(parts ...string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += "/" + p
	}
	return out
}
