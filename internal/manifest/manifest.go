// Package manifest defines the project manifest's Go shape and the
// pure functions that operate on it: content hashing and dependency-group
// iteration. The TOML decoder itself is an external collaborator — this
// package only defines the struct a decoder like
// BurntSushi/toml would populate, mirroring its struct-tag convention.
package manifest

import (
	"sort"

	"github.com/wheelhouse-dev/wheelhouse/internal/lockfile"
)

// Manifest is the parsed form of a project's pyproject.toml-equivalent
// document.
type Manifest struct {
	Project ProjectTable `toml:"project"`
	Tool    ToolTable    `toml:"tool"`
}

// ProjectTable mirrors the manifest's `project.*` keys.
type ProjectTable struct {
	Name           string `toml:"name"`
	Version        string `toml:"version"`
	RequiresPython string `toml:"requires-python"`

	// Dependencies are the default group's PEP 508 requirement strings,
	// in declaration order.
	Dependencies []string `toml:"dependencies"`

	// OptionalDependencies maps a named optional group to its requirement
	// strings, e.g. project.optional-dependencies.test.
	OptionalDependencies map[string][]string `toml:"optional-dependencies"`
}

// ToolTable mirrors the manifest's `tool.*` keys; this repo's own tool namespace
// is "wheelhouse".
type ToolTable struct {
	Wheelhouse ToolWheelhouse `toml:"wheelhouse"`
}

// ToolWheelhouse is this tool's own configuration table.
type ToolWheelhouse struct {
	// DevDependencies maps a named dev group to its requirement strings,
	// e.g. tool.wheelhouse.dev-dependencies.lint.
	DevDependencies map[string][]string `toml:"dev-dependencies"`

	// Source lists configured package indexes, in priority order.
	Source []SourceConfig `toml:"source"`

	AllowPrereleases bool `toml:"allow-prereleases"`
}

// SourceConfig is one configured package index.
type SourceConfig struct {
	Name      string `toml:"name"`
	URL       string `toml:"url"`
	VerifySSL bool   `toml:"verify_ssl"`
	Type      string `toml:"type"`
}

// DefaultGroup names the project's own (non-optional,
// non-dev) dependency list.
const DefaultGroup = "default"

// Groups returns every dependency group's requirement strings keyed by
// name, in the declaration order within each group (significant for
// content hashing — see ContentHash). Optional groups and dev groups share
// one namespace; a manifest that happens to declare the same group name
// in both tables is malformed and Groups does not attempt to disambiguate
// it (the external collaborator parsing the manifest is expected to
// reject that before this package ever sees it).
func (m Manifest) Groups() map[string][]string {
	groups := map[string][]string{}
	if len(m.Project.Dependencies) > 0 {
		groups[DefaultGroup] = m.Project.Dependencies
	}
	for name, deps := range m.Project.OptionalDependencies {
		groups[name] = deps
	}
	for name, deps := range m.Tool.Wheelhouse.DevDependencies {
		groups[name] = deps
	}
	return groups
}

// GroupNames returns every group name Groups would return a non-nil entry
// for, sorted, for deterministic iteration by callers that need it (the
// synchronizer selecting which groups to sync, the lockfile writer
// choosing an iteration order).
func (m Manifest) GroupNames() []string {
	groups := m.Groups()
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IndexURLs returns the configured source URLs in priority order, used by
// both ContentHash and the Repository's own index configuration.
func (m Manifest) IndexURLs() []string {
	urls := make([]string, len(m.Tool.Wheelhouse.Source))
	for i, s := range m.Tool.Wheelhouse.Source {
		urls[i] = s.URL
	}
	return urls
}

// Surface reduces m to the canonicalized form lockfile.ContentHash hashes:
// one dependency list per group, requires-python, and the
// configured indexes, all order-significant per lockfile.ManifestSurface's
// own documentation.
func (m Manifest) Surface() lockfile.ManifestSurface {
	return lockfile.ManifestSurface{
		Dependencies:   m.Groups(),
		RequiresPython: m.Project.RequiresPython,
		Indexes:        m.IndexURLs(),
	}
}

// ContentHash computes the lockfile staleness hash for m: a
// lockfile is up to date iff its stored hash equals ContentHash(m).
func (m Manifest) ContentHash() string {
	return lockfile.ContentHash(m.Surface())
}
