// Package requirement models a single dependency declaration: a PEP 508
// named requirement, a direct URL, a local file/directory, or a VCS
// checkout, each tagged with the dependency group it was declared in.
package requirement

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wheelhouse-dev/wheelhouse/internal/marker"
	"github.com/wheelhouse-dev/wheelhouse/internal/pep440"
)

// Kind discriminates the tagged variants a Requirement can take.
type Kind int

const (
	// Named is an index-resolved requirement: name[extras]specifier.
	Named Kind = iota
	// URL is a direct-reference requirement pinned to an artifact URL.
	URL
	// File is a local directory or sdist/wheel file on disk.
	File
	// VCS is a checkout of a version-control repository.
	VCS
)

func (k Kind) String() string {
	switch k {
	case Named:
		return "named"
	case URL:
		return "url"
	case File:
		return "file"
	case VCS:
		return "vcs"
	default:
		return "unknown"
	}
}

// Requirement is a single dependency declaration.
type Requirement struct {
	Kind Kind

	// Name is the declared package name (canonicalized); may be empty for
	// a File/VCS/URL requirement whose name is only known once its
	// metadata is prepared.
	Name   string
	Extras []string
	Marker marker.Marker

	// Group is the dependency group this requirement was declared in:
	// "default", "dev", or a named optional/dev group.
	Group string

	// Specifier is only meaningful for Named requirements.
	Specifier pep440.SpecifierSet

	// URL is set for URL requirements (and is the artifact/sdist URL for
	// those), and for VCS requirements, the repository URL.
	URL string
	// Path is set for File requirements: a local directory or archive.
	Path string
	// Editable marks a File or VCS requirement as installed in
	// development/editable mode (setuptools "develop" / PEP 660).
	Editable bool

	// VCSType is one of "git", "hg", "svn", "bzr"; only set for VCS.
	VCSType string
	// Revision is an optional VCS ref (branch, tag, or commit).
	Revision string
}

// Identify returns the canonical vertex identifier the resolver uses:
// normalized_name[extra1,extra2], with extras sorted so that requirement
// strings differing only in extras order identify the same vertex.
func (r Requirement) Identify() string {
	if len(r.Extras) == 0 {
		return r.Name
	}
	extras := append([]string(nil), r.Extras...)
	sort.Strings(extras)
	return fmt.Sprintf("%s[%s]", r.Name, strings.Join(extras, ","))
}

// Matches reports whether r and other refer to the same declared
// dependency, used to locate an existing entry in the project manifest
// for removal. When ignoreName is true, the name comparison is skipped
// (useful for locating "this exact URL/path, whatever it's named").
func (r Requirement) Matches(other Requirement, ignoreName bool) bool {
	if r.Kind != other.Kind {
		return false
	}
	if !ignoreName && CanonPackageName(r.Name) != CanonPackageName(other.Name) {
		return false
	}
	switch r.Kind {
	case Named:
		return true
	case URL:
		return r.URL == other.URL
	case File:
		return r.Path == other.Path
	case VCS:
		return r.VCSType == other.VCSType && r.URL == other.URL
	default:
		return false
	}
}

// EvalMarker reports whether r applies in env given the set of extras the
// requiring package was installed with. A requirement with no marker
// always applies.
func (r Requirement) EvalMarker(env marker.Environment, extras map[string]bool) bool {
	if r.Marker == nil {
		return true
	}
	return r.Marker.Eval(env, extras)
}

// String renders r back to a PEP 508-ish requirement string (direct
// references use the "name @ url" form from PEP 508 §Direct References).
func (r Requirement) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	if len(r.Extras) > 0 {
		fmt.Fprintf(&b, "[%s]", strings.Join(r.Extras, ","))
	}
	switch r.Kind {
	case Named:
		if !r.Specifier.Empty() {
			b.WriteString(r.Specifier.String())
		}
	case URL:
		fmt.Fprintf(&b, " @ %s", r.URL)
	case File:
		sep := " @ "
		if r.Name == "" {
			sep = ""
		}
		fmt.Fprintf(&b, "%sfile://%s", sep, r.Path)
	case VCS:
		fmt.Fprintf(&b, " @ %s+%s", r.VCSType, r.URL)
		if r.Revision != "" {
			fmt.Fprintf(&b, "@%s", r.Revision)
		}
	}
	if r.Marker != nil {
		fmt.Fprintf(&b, " ; %s", r.Marker.String())
	}
	return b.String()
}
