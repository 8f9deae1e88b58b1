package repository

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DiskCache is a flat, content-keyed cache directory: one file
// per entry, named by a hash of its key, written atomically via a
// temp-file-then-rename (the same pattern internal/lockfile uses for the
// lockfile document itself).
type DiskCache struct {
	Dir string
}

func NewDiskCache(dir string) *DiskCache { return &DiskCache{Dir: dir} }

func (c *DiskCache) pathFor(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.Dir, hex.EncodeToString(sum[:]))
}

// Get returns the cached bytes for key, or ok=false if absent.
func (c *DiskCache) Get(key string) (data []byte, ok bool) {
	b, err := os.ReadFile(c.pathFor(key))
	if err != nil {
		return nil, false
	}
	return b, true
}

// Put stores data for key, creating the cache directory if needed.
func (c *DiskCache) Put(key string, data []byte) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("repository: creating cache dir %q: %w", c.Dir, err)
	}
	dst := c.pathFor(key)
	tmp, err := os.CreateTemp(c.Dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// MetadataCache stores parsed distribution metadata as JSON, keyed by
// "name version", under cache/metadata/<name>/<version>.json.
type MetadataCache struct {
	Dir string
}

func NewMetadataCache(dir string) *MetadataCache { return &MetadataCache{Dir: dir} }

func (c *MetadataCache) path(name, version string) string {
	return filepath.Join(c.Dir, name, version+".json")
}

// Get unmarshals the cached record for (name, version) into v.
func (c *MetadataCache) Get(name, version string, v any) bool {
	b, err := os.ReadFile(c.path(name, version))
	if err != nil {
		return false
	}
	return json.Unmarshal(b, v) == nil
}

// Put marshals v and stores it for (name, version).
func (c *MetadataCache) Put(name, version string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	dst := c.path(name, version)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("repository: creating metadata cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
