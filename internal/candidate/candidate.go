// Package candidate models a resolution result: a concrete
// (name, version, source) triple a Repository offers in answer to a
// Requirement, with lazily-materialized distribution metadata.
package candidate

import (
	"context"
	"fmt"
	"sync"

	"github.com/wheelhouse-dev/wheelhouse/internal/metadata"
	"github.com/wheelhouse-dev/wheelhouse/internal/pyspec"
	"github.com/wheelhouse-dev/wheelhouse/internal/requirement"
)

// Prepared holds the metadata only known once a candidate's artifact has
// been fetched (or its sdist built): its dependency list, and where it
// physically came from.
type Prepared struct {
	// WheelPath is the local path of the wheel to install, whether
	// downloaded directly or produced by building an sdist.
	WheelPath string
	// Dependencies are the candidate's own Requires-Dist entries.
	Dependencies []requirement.Requirement
	// DirectURLProvenance is set for File/VCS/URL candidates so the
	// installer can write direct_url.json per PEP 610.
	DirectURLProvenance *DirectURL
}

// DirectURL captures the provenance the installer records for a
// non-index install, per PEP 610.
type DirectURL struct {
	URL      string
	Editable bool
	VCS      string // "" for a plain URL/file install
	Revision string
	Path     string // set for a local directory/archive install
}

// Preparer builds the artifact-dependent fields of a candidate on demand:
// downloading a wheel, or building an sdist/local directory into one.
// Implemented by internal/repository.
type Preparer interface {
	Prepare(ctx context.Context, c *Candidate) (Prepared, error)
}

// Candidate is a concrete package version a Repository has matched
// against a Requirement.
type Candidate struct {
	Name    string
	Version string
	// Link is the index or file URL of the artifact, if any (absent for
	// a locked candidate resolved purely from a lockfile entry whose
	// artifact hasn't been re-fetched).
	Link string
	// Req is the originating requirement: carries the editable flag,
	// extras, and environment marker forward into the resolution graph.
	Req requirement.Requirement
	// Hashes maps an artifact URL or filename to an algorithm-prefixed
	// hash string, e.g. "sha256:...".
	Hashes map[string]string

	Summary        string
	RequiresPython pyspec.PySpecSet

	preparer Preparer

	mu       sync.Mutex
	prepared *Prepared
	prepErr  error
}

// New constructs a Candidate backed by preparer for lazy materialization.
func New(name, version, link string, req requirement.Requirement, preparer Preparer) *Candidate {
	return &Candidate{
		Name:           name,
		Version:        version,
		Link:           link,
		Req:            req,
		Hashes:         map[string]string{},
		RequiresPython: pyspec.AllowAll(),
		preparer:       preparer,
	}
}

// Identify returns the same vertex key Req.Identify() would, so a
// candidate can stand in for its requirement in maps keyed by vertex.
func (c *Candidate) Identify() string { return c.Req.Identify() }

// Prepare materializes c.prepared, downloading the artifact (or building
// the sdist) and reading its metadata exactly once; concurrent callers
// block on the same result.
func (c *Candidate) Prepare(ctx context.Context) (Prepared, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prepared != nil {
		return *c.prepared, nil
	}
	if c.prepErr != nil {
		return Prepared{}, c.prepErr
	}
	if c.preparer == nil {
		return Prepared{}, fmt.Errorf("candidate: %s %s has no preparer", c.Name, c.Version)
	}
	p, err := c.preparer.Prepare(ctx, c)
	if err != nil {
		c.prepErr = err
		return Prepared{}, err
	}
	c.prepared = &p
	return p, nil
}

// ApplyMetadata fills in the fields a Repository reads from the
// distribution metadata without requiring a full Prepare (used when an
// index exposes Requires-Python/summary via an API without downloading
// the artifact, and by the locked repository replaying a lockfile entry).
func (c *Candidate) ApplyMetadata(md metadata.Metadata) {
	c.Summary = md.Summary
	c.RequiresPython = md.RequiresPython
}

// SatisfiesPython reports whether c's declared requires_python is
// compatible with the project's own requires-python range: a candidate's
// requires_python must be a superset of the project's, with the wildcard
// upper-bound relaxation pyspec.IsSuperset applies (a candidate capping
// its range at the next unreleased major, ">=3.6,<4.0", still counts as
// a superset of an open-ended ">=3.7" project range).
func (c *Candidate) SatisfiesPython(projectRequires pyspec.PySpecSet) bool {
	return c.RequiresPython.IsSuperset(projectRequires)
}
