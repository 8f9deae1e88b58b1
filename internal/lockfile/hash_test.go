package lockfile

import "testing"

func TestContentHashStableRegardlessOfMapOrder(t *testing.T) {
	a := ManifestSurface{
		Dependencies: map[string][]string{
			"default": {"requests>=2.0"},
			"dev":     {"pytest"},
		},
		RequiresPython: ">=3.8",
		Indexes:        []string{"https://pypi.org/simple"},
	}
	b := ManifestSurface{
		Dependencies: map[string][]string{
			"dev":     {"pytest"},
			"default": {"requests>=2.0"},
		},
		RequiresPython: ">=3.8",
		Indexes:        []string{"https://pypi.org/simple"},
	}
	if ContentHash(a) != ContentHash(b) {
		t.Error("expected content hash to be stable across map iteration order")
	}
}

func TestContentHashChangesOnDependencyEdit(t *testing.T) {
	a := ManifestSurface{Dependencies: map[string][]string{"default": {"requests"}}}
	b := ManifestSurface{Dependencies: map[string][]string{"default": {"requests>=2.0"}}}
	if ContentHash(a) == ContentHash(b) {
		t.Error("expected different hashes for different dependency strings")
	}
}

func TestContentHashIndexOrderSignificant(t *testing.T) {
	a := ManifestSurface{Indexes: []string{"https://a", "https://b"}}
	b := ManifestSurface{Indexes: []string{"https://b", "https://a"}}
	if ContentHash(a) == ContentHash(b) {
		t.Error("expected index declaration order to affect the content hash")
	}
}
