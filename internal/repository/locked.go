package repository

import (
	"context"
	"fmt"

	"github.com/wheelhouse-dev/wheelhouse/internal/candidate"
	"github.com/wheelhouse-dev/wheelhouse/internal/lockfile"
	"github.com/wheelhouse-dev/wheelhouse/internal/pyspec"
	"github.com/wheelhouse-dev/wheelhouse/internal/requirement"
)

// LockedRepository is the lockfile-backed Repository: a Repository
// reconstituted entirely from a lockfile document, with no network access.
// find_candidates returns at most one candidate per vertex; get_dependencies
// and get_hashes replay the stored package entry rather than re-fetching.
type LockedRepository struct {
	byVertex map[string]*lockedEntry
	files    map[string][]lockfile.FileEntry
}

type lockedEntry struct {
	pkg  lockfile.Package
	deps []requirement.Requirement
}

// NewLockedRepository indexes doc's packages by their resolver vertex
// identifier (name[extras]) and parses each package's stored dependency
// strings back into Requirement values, tagged with the "locked" group
// since a locked entry's own declared groups are immaterial to its own
// transitive requirements.
func NewLockedRepository(doc lockfile.Document) (*LockedRepository, error) {
	r := &LockedRepository{
		byVertex: make(map[string]*lockedEntry, len(doc.Packages)),
		files:    doc.Metadata.Files,
	}
	for _, pkg := range doc.Packages {
		req := requirement.Requirement{
			Kind: requirement.Named,
			Name: requirement.CanonPackageName(pkg.Name),
		}
		vertex := req.Identify()
		if len(pkg.Extras) > 0 {
			extraReq := req
			extraReq.Extras = pkg.Extras
			vertex = extraReq.Identify()
		}
		deps := make([]requirement.Requirement, 0, len(pkg.Dependencies))
		for _, depStr := range pkg.Dependencies {
			dep, err := requirement.Parse(depStr, "locked")
			if err != nil {
				return nil, fmt.Errorf("repository: locked package %s %s: parsing dependency %q: %w", pkg.Name, pkg.Version, depStr, err)
			}
			deps = append(deps, dep)
		}
		r.byVertex[vertex] = &lockedEntry{pkg: pkg, deps: deps}
	}
	return r, nil
}

// FindCandidates returns the single locked candidate for req's vertex, if
// any. Version specifiers, prerelease allowance and requires_python
// filtering are not re-applied: a locked repository replays exactly what
// was resolved, it does not re-resolve.
func (r *LockedRepository) FindCandidates(ctx context.Context, req requirement.Requirement, pythonRequires pyspec.PySpecSet, allowPrereleases bool) ([]*candidate.Candidate, error) {
	entry, ok := r.byVertex[req.Identify()]
	if !ok {
		return nil, nil
	}
	c, err := r.candidateFor(entry)
	if err != nil {
		return nil, err
	}
	return []*candidate.Candidate{c}, nil
}

func (r *LockedRepository) candidateFor(entry *lockedEntry) (*candidate.Candidate, error) {
	pkg := entry.pkg
	req := requirement.Requirement{
		Kind:     requirement.Named,
		Name:     requirement.CanonPackageName(pkg.Name),
		Extras:   pkg.Extras,
		Editable: pkg.Editable,
	}
	switch {
	case pkg.Git != "":
		req.Kind = requirement.VCS
		req.VCSType = "git"
		req.URL = pkg.Git
		req.Revision = pkg.Revision
	case pkg.Path != "":
		req.Kind = requirement.File
		req.Path = pkg.Path
	case pkg.URL != "":
		req.Kind = requirement.URL
		req.URL = pkg.URL
	}

	link := pkg.URL
	if link == "" {
		link = pkg.Git
	}
	c := candidate.New(pkg.Name, pkg.Version, link, req, r)
	for _, fe := range r.files[fmt.Sprintf("%s %s", pkg.Name, pkg.Version)] {
		key := fe.File
		if fe.URL != "" {
			key = fe.URL
		}
		c.Hashes[key] = fe.Hash
	}
	c.Summary = pkg.Summary
	if pkg.RequiresPython != "" {
		spec, err := pyspec.Parse(pkg.RequiresPython)
		if err != nil {
			return nil, fmt.Errorf("repository: locked package %s %s: parsing requires_python: %w", pkg.Name, pkg.Version, err)
		}
		c.RequiresPython = spec
	}
	return c, nil
}

// GetDependencies returns the stored dependency list for c's locked entry.
func (r *LockedRepository) GetDependencies(ctx context.Context, c *candidate.Candidate) ([]requirement.Requirement, pyspec.PySpecSet, string, error) {
	entry, ok := r.byVertex[c.Identify()]
	if !ok {
		return nil, pyspec.PySpecSet{}, "", fmt.Errorf("repository: no locked entry for %s", c.Identify())
	}
	return entry.deps, c.RequiresPython, c.Summary, nil
}

// GetHashes returns the stored artifact hashes for c's (name, version) from
// the lockfile's metadata.files table; this repository never downloads.
func (r *LockedRepository) GetHashes(ctx context.Context, c *candidate.Candidate) (map[string]string, error) {
	return c.Hashes, nil
}

// Prepare implements candidate.Preparer: a locked candidate has no artifact
// to fetch or build, its dependencies were already read off the lockfile
// entry by GetDependencies.
func (r *LockedRepository) Prepare(ctx context.Context, c *candidate.Candidate) (candidate.Prepared, error) {
	entry, ok := r.byVertex[c.Identify()]
	if !ok {
		return candidate.Prepared{}, fmt.Errorf("repository: no locked entry for %s", c.Identify())
	}
	prepared := candidate.Prepared{Dependencies: entry.deps}
	if entry.pkg.Path != "" || entry.pkg.Git != "" || entry.pkg.URL != "" {
		prepared.DirectURLProvenance = &candidate.DirectURL{
			URL:      entry.pkg.URL,
			Path:     entry.pkg.Path,
			VCS:      gitOrEmpty(entry.pkg),
			Revision: entry.pkg.Revision,
			Editable: entry.pkg.Editable,
		}
	}
	return prepared, nil
}

func gitOrEmpty(pkg lockfile.Package) string {
	if pkg.Git != "" {
		return "git"
	}
	return ""
}
