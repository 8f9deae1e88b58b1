package lockfile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// ManifestSurface is the canonicalized subset of the project manifest a
// content hash is computed over: one dependency list per group (in
// declaration order, which is significant — it tracks manifest edits),
// the project's requires-python, and its configured index URLs (in
// priority order, also significant).
type ManifestSurface struct {
	// Dependencies maps a group name to its requirement strings, in the
	// order they were declared.
	Dependencies   map[string][]string
	RequiresPython string
	Indexes        []string
}

// ContentHash computes "sha256:hex" over a byte-identical serialization
// of surface: stable key order (groups sorted by name; within a group,
// declaration order is preserved since it's semantically significant),
// LF line endings, no trailing whitespace. Two ManifestSurface values
// that declare the same dependencies, requires-python and indexes always
// hash identically regardless of OS or map iteration order.
func ContentHash(surface ManifestSurface) string {
	var b strings.Builder
	groups := make([]string, 0, len(surface.Dependencies))
	for g := range surface.Dependencies {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	for _, g := range groups {
		fmt.Fprintf(&b, "[%s]\n", g)
		for _, dep := range surface.Dependencies[g] {
			b.WriteString(strings.TrimRight(dep, " \t"))
			b.WriteByte('\n')
		}
	}
	fmt.Fprintf(&b, "[requires-python]\n%s\n", surface.RequiresPython)
	b.WriteString("[indexes]\n")
	for _, idx := range surface.Indexes {
		b.WriteString(idx)
		b.WriteByte('\n')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return "sha256:" + hex.EncodeToString(sum[:])
}
