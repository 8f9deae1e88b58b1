package repository

import (
	"context"

	"github.com/wheelhouse-dev/wheelhouse/internal/candidate"
)

// HashFetcher adapts a Repository to resolver.HashFetcher, the collaborator
// Resolve fans artifact-hash lookups out to once a resolution has settled.
type HashFetcher struct {
	Repo Repository
}

// FetchHashes asks the Repository for c's known artifact hashes and merges
// them into c.Hashes, leaving any hash FindCandidates already populated
// (e.g. a hash embedded in the index page's URL fragment) untouched.
func (f HashFetcher) FetchHashes(ctx context.Context, c *candidate.Candidate) error {
	hashes, err := f.Repo.GetHashes(ctx, c)
	if err != nil {
		return err
	}
	for k, v := range hashes {
		if _, ok := c.Hashes[k]; !ok {
			c.Hashes[k] = v
		}
	}
	return nil
}
