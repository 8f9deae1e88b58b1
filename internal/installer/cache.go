package installer

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofrs/flock"

	"github.com/wheelhouse-dev/wheelhouse/internal/environment"
)

// CacheMode selects how a cache-linked install exposes the
// content-addressed package directory to a project's library path.
type CacheMode int

const (
	// CacheModeSymlink symlinks each installed file into the project's
	// lib dir.
	CacheModeSymlink CacheMode = iota
	// CacheModePth writes a single .pth file naming the cache directory.
	CacheModePth
)

// Cache is the content-addressed package store at cache/packages/.
type Cache struct {
	Root string
	Mode CacheMode
}

// entryDir is cache/packages/<hash[:2]>/<dist>-<ver>-<tag>/.
func (c *Cache) entryDir(hash, distTag string) string {
	prefix := hash
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	return filepath.Join(c.Root, "packages", prefix, distTag)
}

// Materialize installs wheelPath into the cache entry for
// (hash, distTag) if it isn't already there (content-addressed stores are
// write-once — a second writer finds the entry already populated and
// just proceeds to link), then links it into projectLibDir per c.Mode.
// The entry's ".lock" file is held for the duration, so no two
// processes install or sweep the same entry concurrently.
func (c *Cache) Materialize(ins *Installer, wheelPath, hash, distTag, projectRoot string, install func(scheme environment.Scheme) (*environment.Distribution, error)) (*environment.Distribution, error) {
	dir := c.entryDir(hash, distTag)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	lock := flock.New(filepath.Join(dir, ".lock"))
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("installer: locking cache entry %s: %w", dir, err)
	}
	defer lock.Unlock()

	recordPath := filepath.Join(dir, "RECORD")
	var dist *environment.Distribution
	if _, err := os.Stat(recordPath); os.IsNotExist(err) {
		scheme := environment.Scheme{Purelib: dir, Platlib: dir, Scripts: filepath.Join(dir, "scripts"), Data: dir, Include: filepath.Join(dir, "include")}
		dist, err = install(scheme)
		if err != nil {
			return nil, err
		}
		// Copy the dist-info RECORD to the entry's top level: its presence
		// is what marks the entry as populated for later callers.
		data, err := os.ReadFile(filepath.Join(dir, dist.DistInfoDir, "RECORD"))
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(recordPath, data, 0o644); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	} else {
		data, err := os.ReadFile(recordPath)
		if err != nil {
			return nil, err
		}
		entries, err := environment.ParseRecord(strings.NewReader(string(data)))
		if err != nil {
			return nil, err
		}
		dist = &environment.Distribution{Files: entries}
	}

	if err := c.addReferrer(dir, projectRoot); err != nil {
		return nil, err
	}
	dist.ReferTo = dir

	if err := c.link(dir, dist, ins.Scheme); err != nil {
		return nil, err
	}
	if err := writeReferTo(ins.Scheme, dist, dir); err != nil {
		return nil, err
	}
	return dist, nil
}

func recordPaths(dist *environment.Distribution) []string {
	out := make([]string, 0, len(dist.Files))
	for _, f := range dist.Files {
		out = append(out, f.Path)
	}
	return out
}

// writeReferTo records the cache entry backing this install inside the
// project's own dist-info, the REFER_TO pointer — a later
// working-set scan (a different process entirely) reads it back so
// uninstall can decrement the entry's referrer count.
func writeReferTo(scheme environment.Scheme, dist *environment.Distribution, cacheDir string) error {
	dir := dist.DistInfoDir
	if dir == "" {
		for _, f := range dist.Files {
			if strings.HasSuffix(f.Path, ".dist-info/RECORD") {
				dir = path.Dir(f.Path)
				break
			}
		}
	}
	if dir == "" {
		return nil // .pth-mode install: the dist-info lives only in the cache
	}
	target := filepath.Join(scheme.Purelib, dir)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(target, "REFER_TO"), []byte(cacheDir+"\n"), 0o644)
}

func (c *Cache) link(cacheDir string, dist *environment.Distribution, scheme environment.Scheme) error {
	switch c.Mode {
	case CacheModePth:
		pthPath := filepath.Join(scheme.Purelib, filepath.Base(cacheDir)+".pth")
		return os.WriteFile(pthPath, []byte(cacheDir+"\n"), 0o644)
	default:
		linked := append([]string(nil), recordPaths(dist)...)
		// RECORD itself is the one installed file its own listing omits;
		// link it too so a scan of the project sees the full file list.
		if dist.DistInfoDir != "" {
			linked = append(linked, path.Join(dist.DistInfoDir, "RECORD"))
		}
		for _, p := range linked {
			src := filepath.Join(cacheDir, p)
			dest := filepath.Join(scheme.Purelib, p)
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return err
			}
			os.Remove(dest)
			if err := os.Symlink(src, dest); err != nil {
				return fmt.Errorf("installer: symlinking %s: %w", dest, err)
			}
		}
		return nil
	}
}

// addReferrer appends projectRoot to the cache entry's .referrers file if
// not already present, via an atomic read-modify-write-rename.
func (c *Cache) addReferrer(cacheDir, projectRoot string) error {
	referrers, err := c.readReferrers(cacheDir)
	if err != nil {
		return err
	}
	for _, r := range referrers {
		if r == projectRoot {
			return nil
		}
	}
	referrers = append(referrers, projectRoot)
	return c.writeReferrers(cacheDir, referrers)
}

// RemoveReferrer removes projectRoot from the cache entry's .referrers
// file. When the file becomes empty, the entry is left in place —
// garbage collection is a separate "cache clear packages" operation,
// not implicit on the last uninstall.
func (c *Cache) RemoveReferrer(cacheDir, projectRoot string) error {
	referrers, err := c.readReferrers(cacheDir)
	if err != nil {
		return err
	}
	kept := referrers[:0]
	for _, r := range referrers {
		if r != projectRoot {
			kept = append(kept, r)
		}
	}
	return c.writeReferrers(cacheDir, kept)
}

func (c *Cache) readReferrers(cacheDir string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(cacheDir, ".referrers"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			out = append(out, line)
		}
	}
	return out, scanner.Err()
}

func (c *Cache) writeReferrers(cacheDir string, referrers []string) error {
	sort.Strings(referrers)
	tmp, err := os.CreateTemp(cacheDir, ".referrers-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	for _, r := range referrers {
		fmt.Fprintln(tmp, r)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, filepath.Join(cacheDir, ".referrers"))
}

// IsEmpty reports whether cacheDir's .referrers file lists no projects,
// making it eligible for garbage collection.
func (c *Cache) IsEmpty(cacheDir string) (bool, error) {
	referrers, err := c.readReferrers(cacheDir)
	if err != nil {
		return false, err
	}
	return len(referrers) == 0, nil
}

// ClearPackages removes every cache entry no project refers to anymore —
// the "cache clear packages" operation garbage collection is
// deferred to. Each entry's .lock is held across the check-and-remove so a
// concurrent Materialize can't link an entry out from under the sweep.
// Returns the directories removed.
func (c *Cache) ClearPackages() ([]string, error) {
	prefixes, err := os.ReadDir(filepath.Join(c.Root, "packages"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, prefix := range prefixes {
		if !prefix.IsDir() {
			continue
		}
		prefixDir := filepath.Join(c.Root, "packages", prefix.Name())
		entries, err := os.ReadDir(prefixDir)
		if err != nil {
			return removed, err
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			dir := filepath.Join(prefixDir, e.Name())
			lock := flock.New(filepath.Join(dir, ".lock"))
			if err := lock.Lock(); err != nil {
				return removed, fmt.Errorf("installer: locking cache entry %s: %w", dir, err)
			}
			empty, err := c.IsEmpty(dir)
			if err != nil {
				lock.Unlock()
				return removed, err
			}
			if !empty {
				lock.Unlock()
				continue
			}
			err = os.RemoveAll(dir)
			lock.Unlock()
			if err != nil {
				return removed, err
			}
			removed = append(removed, dir)
		}
	}
	sort.Strings(removed)
	return removed, nil
}
