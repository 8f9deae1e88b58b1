package repository

import (
	"os"
	"path/filepath"
	"testing"
)

func TestClearCacheRemovesTheNamedKindOnly(t *testing.T) {
	cacheDir := t.TempDir()
	r := NewIndexRepository(nil, nil, nil, cacheDir)

	if err := r.HTTPCache.Put("https://example.test/simple/flask/", []byte("<html></html>")); err != nil {
		t.Fatalf("HTTPCache.Put: %v", err)
	}
	if err := r.HashCache.Put("https://example.test/flask-3.0.whl", []byte("sha256:abc")); err != nil {
		t.Fatalf("HashCache.Put: %v", err)
	}

	if err := r.ClearCache(CacheHTTP); err != nil {
		t.Fatalf("ClearCache(http): %v", err)
	}
	if _, err := os.Stat(filepath.Join(cacheDir, "http")); !os.IsNotExist(err) {
		t.Errorf("http cache dir still present, stat err = %v", err)
	}
	if _, ok := r.HashCache.Get("https://example.test/flask-3.0.whl"); !ok {
		t.Errorf("hashes cache was cleared along with http; kinds must be independent")
	}

	// Clearing a never-populated kind is a no-op, not an error.
	if err := r.ClearCache(CacheWheels); err != nil {
		t.Fatalf("ClearCache(wheels) on an empty cache: %v", err)
	}
}

func TestClearCacheRejectsUnknownKind(t *testing.T) {
	r := NewIndexRepository(nil, nil, nil, t.TempDir())
	if err := r.ClearCache(CacheKind("sdists")); err == nil {
		t.Fatalf("expected an error for an unknown cache kind")
	}
}
