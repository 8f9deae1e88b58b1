package repository

import (
	"fmt"
	"os"
)

// CacheKind names one of the cache directories an IndexRepository
// maintains.
type CacheKind string

const (
	CacheHTTP     CacheKind = "http"
	CacheMetadata CacheKind = "metadata"
	CacheHashes   CacheKind = "hashes"
	CacheWheels   CacheKind = "wheels"
)

// ClearCache removes every entry of the given kind. The directory itself
// is recreated lazily on the next Put, so clearing an already-empty (or
// never-populated) cache is a no-op.
func (r *IndexRepository) ClearCache(kind CacheKind) error {
	var dir string
	switch kind {
	case CacheHTTP:
		dir = r.HTTPCache.Dir
	case CacheMetadata:
		dir = r.MetadataCache.Dir
	case CacheHashes:
		dir = r.HashCache.Dir
	case CacheWheels:
		dir = r.WheelCacheDir
	default:
		return fmt.Errorf("repository: unknown cache kind %q", kind)
	}
	return os.RemoveAll(dir)
}
