package repository

import (
	"context"
	"testing"

	"github.com/wheelhouse-dev/wheelhouse/internal/lockfile"
	"github.com/wheelhouse-dev/wheelhouse/internal/pyspec"
	"github.com/wheelhouse-dev/wheelhouse/internal/requirement"
)

func lockedDoc() lockfile.Document {
	return lockfile.Document{
		Metadata: lockfile.DocumentMetadata{
			Files: map[string][]lockfile.FileEntry{
				"requests 2.19.1": {
					{File: "requests-2.19.1-py2.py3-none-any.whl", Hash: "sha256:deadbeef"},
				},
			},
		},
		Packages: []lockfile.Package{
			{
				Name:           "requests",
				Version:        "2.19.1",
				RequiresPython: ">=2.7",
				Dependencies:   []string{"chardet>=3.0.2,<3.1.0"},
				Sections:       []string{"default"},
			},
			{
				Name:     "futures",
				Version:  "3.3.0",
				Extras:   []string{"test"},
				Sections: []string{"dev"},
			},
		},
	}
}

func TestLockedRepositoryFindCandidatesReturnsOnePerVertex(t *testing.T) {
	doc := lockedDoc()
	repo, err := NewLockedRepository(doc)
	if err != nil {
		t.Fatalf("NewLockedRepository: %v", err)
	}
	req := requirement.Requirement{Kind: requirement.Named, Name: "requests"}

	cands, err := repo.FindCandidates(context.Background(), req, pyspec.AllowAll(), false)
	if err != nil {
		t.Fatalf("FindCandidates: %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("expected exactly one candidate, got %d", len(cands))
	}
	c := cands[0]
	if c.Version != "2.19.1" {
		t.Errorf("Version = %q, want 2.19.1", c.Version)
	}
	if got := c.Hashes["requests-2.19.1-py2.py3-none-any.whl"]; got != "sha256:deadbeef" {
		t.Errorf("Hashes entry = %q, want sha256:deadbeef", got)
	}
}

func TestLockedRepositoryFindCandidatesMissingVertex(t *testing.T) {
	repo, err := NewLockedRepository(lockedDoc())
	if err != nil {
		t.Fatalf("NewLockedRepository: %v", err)
	}
	req := requirement.Requirement{Kind: requirement.Named, Name: "flask"}
	cands, err := repo.FindCandidates(context.Background(), req, pyspec.AllowAll(), false)
	if err != nil {
		t.Fatalf("FindCandidates: %v", err)
	}
	if cands != nil {
		t.Errorf("expected no candidates for an unlocked vertex, got %d", len(cands))
	}
}

func TestLockedRepositoryExtrasVertexIdentity(t *testing.T) {
	repo, err := NewLockedRepository(lockedDoc())
	if err != nil {
		t.Fatalf("NewLockedRepository: %v", err)
	}
	plain := requirement.Requirement{Kind: requirement.Named, Name: "futures"}
	withExtra := requirement.Requirement{Kind: requirement.Named, Name: "futures", Extras: []string{"test"}}

	if cands, _ := repo.FindCandidates(context.Background(), plain, pyspec.AllowAll(), false); len(cands) != 0 {
		t.Errorf("expected the bare vertex to be distinct from futures[test], got %d candidates", len(cands))
	}
	cands, err := repo.FindCandidates(context.Background(), withExtra, pyspec.AllowAll(), false)
	if err != nil {
		t.Fatalf("FindCandidates: %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("expected one candidate for futures[test], got %d", len(cands))
	}
}

func TestLockedRepositoryGetDependenciesReplaysStoredList(t *testing.T) {
	repo, err := NewLockedRepository(lockedDoc())
	if err != nil {
		t.Fatalf("NewLockedRepository: %v", err)
	}
	req := requirement.Requirement{Kind: requirement.Named, Name: "requests"}
	cands, err := repo.FindCandidates(context.Background(), req, pyspec.AllowAll(), false)
	if err != nil || len(cands) != 1 {
		t.Fatalf("FindCandidates: %v, %d", err, len(cands))
	}
	deps, _, _, err := repo.GetDependencies(context.Background(), cands[0])
	if err != nil {
		t.Fatalf("GetDependencies: %v", err)
	}
	if len(deps) != 1 || deps[0].Name != "chardet" {
		t.Fatalf("unexpected dependencies: %+v", deps)
	}
}
