package installer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wheelhouse-dev/wheelhouse/internal/environment"
)

// RemovePaths is the stash-commit-rollback guard for uninstallation. Go
// has no destructors, so ownership is explicit: a caller
// must invoke exactly one of Commit or Rollback, normally via defer,
// before letting a RemovePaths go out of scope. Stash returns one with
// every targeted path already renamed into a sibling temp directory;
// between that point and Commit, nothing has been irreversibly deleted.
type RemovePaths struct {
	stashDir  string
	moved     []movedPath
	committed bool

	// pthPath/pthOriginal back out an easy-install.pth splice on
	// Rollback.
	pthPath     string
	pthOriginal []byte
}

type movedPath struct {
	original string
	stashed  string
}

// Stash compresses paths (substituting a directory for its contents when
// every file under it is present) and renames each
// selected path into a fresh temp directory created inside root.
func Stash(root string, paths []string) (*RemovePaths, error) {
	compressed := compressPaths(paths)
	stashDir, err := os.MkdirTemp(root, ".wheelhouse-uninstall-*")
	if err != nil {
		return nil, err
	}
	rp := &RemovePaths{stashDir: stashDir}
	for i, p := range compressed {
		if _, err := os.Lstat(p); os.IsNotExist(err) {
			continue
		}
		dest := filepath.Join(stashDir, fmt.Sprintf("%d", i))
		if err := os.Rename(p, dest); err != nil {
			rp.Rollback()
			return nil, UninstallError{Distribution: p, Err: err}
		}
		rp.moved = append(rp.moved, movedPath{original: p, stashed: dest})
	}
	return rp, nil
}

// compressPaths substitutes a directory for its children when every
// listed path under that directory is present in paths, so a whole
// package tree stashes (and later deletes) as a single rename rather
// than one per file.
func compressPaths(paths []string) []string {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	byDir := map[string][]string{}
	for _, p := range sorted {
		byDir[filepath.Dir(p)] = append(byDir[filepath.Dir(p)], p)
	}
	present := map[string]bool{}
	for _, p := range sorted {
		present[p] = true
	}

	var out []string
	handled := map[string]bool{}
	for _, p := range sorted {
		dir := filepath.Dir(p)
		if handled[dir] {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err == nil && len(entries) == len(byDir[dir]) && allPresent(dir, entries, present) {
			out = append(out, dir)
			handled[dir] = true
			continue
		}
		out = append(out, p)
	}
	return out
}

func allPresent(dir string, entries []os.DirEntry, present map[string]bool) bool {
	for _, e := range entries {
		if !present[filepath.Join(dir, e.Name())] {
			return false
		}
	}
	return true
}

// SpliceEasyInstall removes any line in the easy-install.pth at pthPath
// that names one of the given directories (legacy setuptools "develop"
// installs register themselves there rather than via RECORD). The
// original file content is retained so Rollback can restore it. A
// missing file, or one containing none of the lines, is a no-op.
func (rp *RemovePaths) SpliceEasyInstall(pthPath string, remove map[string]bool) error {
	data, err := os.ReadFile(pthPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var kept []string
	changed := false
	for _, line := range strings.Split(string(data), "\n") {
		if remove[strings.TrimSpace(line)] {
			changed = true
			continue
		}
		kept = append(kept, line)
	}
	if !changed {
		return nil
	}
	rp.pthPath = pthPath
	rp.pthOriginal = data
	return os.WriteFile(pthPath, []byte(strings.Join(kept, "\n")), 0o644)
}

// Commit permanently deletes the stash. Safe to call once; a second call
// is a no-op.
func (rp *RemovePaths) Commit() error {
	if rp.committed {
		return nil
	}
	rp.committed = true
	return os.RemoveAll(rp.stashDir)
}

// Rollback renames every stashed path back to its original location,
// restoring the environment to its pre-Stash state. Safe to call once; a
// second call is a no-op.
func (rp *RemovePaths) Rollback() error {
	if rp.committed {
		return nil
	}
	rp.committed = true
	var firstErr error
	if rp.pthPath != "" {
		if err := os.WriteFile(rp.pthPath, rp.pthOriginal, 0o644); err != nil {
			firstErr = err
		}
	}
	for i := len(rp.moved) - 1; i >= 0; i-- {
		m := rp.moved[i]
		if err := os.MkdirAll(filepath.Dir(m.original), 0o755); err != nil && firstErr == nil {
			firstErr = err
			continue
		}
		if err := os.Rename(m.stashed, m.original); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	os.RemoveAll(rp.stashDir)
	return firstErr
}

// PathsForDistribution collects every path belonging to dist (its RECORD
// files, plus entry-point launchers already present in dist.Files),
// resolving each against scheme's root directories.
func PathsForDistribution(scheme environment.Scheme, dist *environment.Distribution) []string {
	var paths []string
	for _, f := range dist.Files {
		paths = append(paths, resolveRecordPath(scheme, f.Path))
	}
	return paths
}

// resolveRecordPath maps a RECORD-relative path back to an absolute one.
// Every RECORD path is relative to purelib, using ".." traversal to reach
// another root (scripts, data, ...), the same convention real wheel
// installers use (see installer.go's InstallWheel).
func resolveRecordPath(scheme environment.Scheme, recordPath string) string {
	return filepath.Join(scheme.Purelib, recordPath)
}

// ResolveRecordPath exports resolveRecordPath for callers outside the
// package (the synchronizer's overwrite/in-place-update path-difference
// logic).
func ResolveRecordPath(scheme environment.Scheme, recordPath string) string {
	return resolveRecordPath(scheme, recordPath)
}
