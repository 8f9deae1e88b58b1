// Package repository implements the two Repository backends: an Index
// Repository that queries configured package indexes (through a thin
// IndexClient collaborator) and a Locked Repository replaying a lockfile
// document. Both satisfy the same Repository contract the resolver's
// Provider depends on.
package repository

import (
	"context"

	"github.com/wheelhouse-dev/wheelhouse/internal/candidate"
	"github.com/wheelhouse-dev/wheelhouse/internal/pyspec"
	"github.com/wheelhouse-dev/wheelhouse/internal/requirement"
)

// Repository is the contract the resolver's Provider depends on: find
// concrete candidates for a requirement, and materialize a candidate's
// dependency list and artifact hashes.
type Repository interface {
	// FindCandidates returns candidates matching req, best-first
	// (descending version; within a version, wheels before sdists; among
	// wheels, more specific platform tags before "any").
	FindCandidates(ctx context.Context, req requirement.Requirement, pythonRequires pyspec.PySpecSet, allowPrereleases bool) ([]*candidate.Candidate, error)
	// GetDependencies returns c's own dependency list, its declared
	// requires_python, and its summary.
	GetDependencies(ctx context.Context, c *candidate.Candidate) ([]requirement.Requirement, pyspec.PySpecSet, string, error)
	// GetHashes returns the artifact-file hashes known for c.
	GetHashes(ctx context.Context, c *candidate.Candidate) (map[string]string, error)
}
