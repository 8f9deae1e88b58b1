package requirement

import (
	"fmt"
	"strings"

	"github.com/wheelhouse-dev/wheelhouse/internal/marker"
	"github.com/wheelhouse-dev/wheelhouse/internal/pep440"
)

// whitespace is the only whitespace PEP 508 allows in a requirement string.
const whitespace = " \t"

var vcsPrefixes = []string{"git", "hg", "svn", "bzr"}

// Parse parses a PEP 508 requirement string — a Named requirement
// ("foo[bar]>=1.0; python_version>='3.8'") or a direct reference
// ("foo @ https://example.com/foo.whl", "foo @ git+https://.../foo@main",
// "foo @ file:///path/to/foo") — into a Requirement tagged with group.
//
// This does not parse bare local-directory or VCS strings that lack a
// leading "name @ ": construct those directly with NewFile/NewVCS, the way
// a project manifest's table-form dependency entries are built.
func Parse(v, group string) (Requirement, error) {
	if v == "" {
		return Requirement{}, fmt.Errorf("requirement: empty string")
	}
	s := strings.Trim(v, whitespace)

	nameEnd := strings.IndexAny(s, whitespace+"[(;<=!~>@")
	if nameEnd == 0 {
		return Requirement{}, fmt.Errorf("requirement: %q has an empty name", v)
	}
	if nameEnd < 0 {
		return Requirement{Kind: Named, Name: CanonPackageName(s), Group: group}, nil
	}
	name := CanonPackageName(s[:nameEnd])
	s = strings.TrimLeft(s[nameEnd:], whitespace)

	var extras []string
	if len(s) > 0 && s[0] == '[' {
		end := strings.IndexByte(s, ']')
		if end < 0 {
			return Requirement{}, fmt.Errorf("requirement: %q has an unterminated extras section", v)
		}
		for _, e := range strings.Split(s[1:end], ",") {
			e = strings.Trim(e, whitespace)
			if e != "" {
				extras = append(extras, e)
			}
		}
		s = strings.TrimLeft(s[end+1:], whitespace)
	}

	if len(s) > 0 && s[0] == '@' {
		return parseDirectReference(v, name, extras, group, strings.TrimLeft(s[1:], whitespace))
	}

	req := Requirement{Kind: Named, Name: name, Extras: extras, Group: group}
	if len(s) > 0 && s[0] != ';' {
		end := strings.IndexByte(s, ';')
		if end < 0 {
			end = len(s)
		}
		clause := strings.Trim(s[:end], whitespace)
		if strings.HasPrefix(clause, "(") && strings.HasSuffix(clause, ")") {
			clause = clause[1 : len(clause)-1]
		}
		spec, err := pep440.ParseSpecifierSet(clause)
		if err != nil {
			return Requirement{}, fmt.Errorf("requirement: %q: %w", v, err)
		}
		req.Specifier = spec
		s = s[end:]
	}
	if len(s) > 0 && s[0] != ';' {
		return Requirement{}, fmt.Errorf("requirement: %q: unexpected trailing text %q", v, s)
	}
	if s != "" {
		m, err := marker.Parse(strings.Trim(s[1:], whitespace))
		if err != nil {
			return Requirement{}, fmt.Errorf("requirement: %q: %w", v, err)
		}
		req.Marker = m
	}
	return req, nil
}

func parseDirectReference(orig, name string, extras []string, group, rest string) (Requirement, error) {
	urlPart := rest
	var markerText string
	if i := strings.IndexByte(rest, ';'); i >= 0 {
		urlPart = strings.TrimRight(rest[:i], whitespace)
		markerText = strings.Trim(rest[i+1:], whitespace)
	}
	if urlPart == "" {
		return Requirement{}, fmt.Errorf("requirement: %q: empty URL after '@'", orig)
	}

	req := Requirement{Name: name, Extras: extras, Group: group}
	if markerText != "" {
		m, err := marker.Parse(markerText)
		if err != nil {
			return Requirement{}, fmt.Errorf("requirement: %q: %w", orig, err)
		}
		req.Marker = m
	}

	for _, vcs := range vcsPrefixes {
		prefix := vcs + "+"
		if strings.HasPrefix(urlPart, prefix) {
			req.Kind = VCS
			req.VCSType = vcs
			rest := urlPart[len(prefix):]
			if i := strings.LastIndexByte(rest, '@'); i >= 0 && !strings.Contains(rest[i:], "/") {
				req.URL = rest[:i]
				req.Revision = rest[i+1:]
			} else {
				req.URL = rest
			}
			return req, nil
		}
	}

	if strings.HasPrefix(urlPart, "file://") {
		req.Kind = File
		req.Path = strings.TrimPrefix(urlPart, "file://")
		return req, nil
	}
	if !strings.Contains(urlPart, "://") {
		req.Kind = File
		req.Path = urlPart
		return req, nil
	}

	req.Kind = URL
	req.URL = urlPart
	return req, nil
}

// NewFile constructs a File requirement for a local directory or archive,
// the shape a project manifest's table-form dependency entry takes
// ({path = "...", editable = true}).
func NewFile(name, path, group string, editable bool, extras []string, m marker.Marker) Requirement {
	return Requirement{Kind: File, Name: name, Path: path, Editable: editable, Extras: extras, Group: group, Marker: m}
}

// NewVCS constructs a VCS requirement for a repository checkout.
func NewVCS(name, vcsType, url, revision, group string, editable bool, extras []string, m marker.Marker) Requirement {
	return Requirement{
		Kind: VCS, Name: name, VCSType: vcsType, URL: url, Revision: revision,
		Editable: editable, Extras: extras, Group: group, Marker: m,
	}
}
