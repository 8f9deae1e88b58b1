package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/wheelhouse-dev/wheelhouse/internal/candidate"
	"github.com/wheelhouse-dev/wheelhouse/internal/marker"
	"github.com/wheelhouse-dev/wheelhouse/internal/pyspec"
	"github.com/wheelhouse-dev/wheelhouse/internal/requirement"
)

// fakeRepo serves fixed candidates for one package name, ignoring the
// specifier/prerelease/python filtering the real IndexRepository performs
// (the provider's own FindMatches is what's under test here).
type fakeRepo struct {
	candidates map[string][]*candidate.Candidate
	deps       map[string][]requirement.Requirement
}

func (f *fakeRepo) FindCandidates(ctx context.Context, req requirement.Requirement, pythonRequires pyspec.PySpecSet, allowPrereleases bool) ([]*candidate.Candidate, error) {
	return f.candidates[req.Name], nil
}

func (f *fakeRepo) GetDependencies(ctx context.Context, c *candidate.Candidate) ([]requirement.Requirement, pyspec.PySpecSet, string, error) {
	return f.deps[c.Name+"@"+c.Version], pyspec.AllowAll(), "", nil
}

func (f *fakeRepo) GetHashes(ctx context.Context, c *candidate.Candidate) (map[string]string, error) {
	return nil, nil
}

func must(t *testing.T, s string) pyspec.PySpecSet {
	t.Helper()
	p, err := pyspec.Parse(s)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func newCandidate(name, version string, requiresPython pyspec.PySpecSet) *candidate.Candidate {
	c := candidate.New(name, version, "https://example.com/"+name+"-"+version+".whl", requirement.Requirement{Kind: requirement.Named, Name: name}, nil)
	c.RequiresPython = requiresPython
	return c
}

func TestFindMatchesFiltersBySpecifierAndPython(t *testing.T) {
	repo := &fakeRepo{candidates: map[string][]*candidate.Candidate{
		"foo": {
			newCandidate("foo", "2.0", pyspec.AllowAll()),
			newCandidate("foo", "1.0", pyspec.AllowAll()),
		},
	}}
	p := New(repo, marker.Current(), pyspec.AllowAll(), false, All, nil, nil, nil)

	req, err := requirement.Parse("foo<2.0", "default")
	if err != nil {
		t.Fatal(err)
	}
	matches, err := p.FindMatches(context.Background(), "foo", []requirement.Requirement{req}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].Version != "1.0" {
		t.Fatalf("got %v, want exactly foo 1.0", matches)
	}
}

func TestFindMatchesExcludesIncompatibilities(t *testing.T) {
	repo := &fakeRepo{candidates: map[string][]*candidate.Candidate{
		"foo": {
			newCandidate("foo", "2.0", pyspec.AllowAll()),
			newCandidate("foo", "1.0", pyspec.AllowAll()),
		},
	}}
	p := New(repo, marker.Current(), pyspec.AllowAll(), false, All, nil, nil, nil)
	req := requirement.Requirement{Kind: requirement.Named, Name: "foo"}

	matches, err := p.FindMatches(context.Background(), "foo", []requirement.Requirement{req}, map[string]bool{"foo@2.0": true})
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].Version != "1.0" {
		t.Fatalf("got %v, want only foo 1.0 once 2.0 is incompatible", matches)
	}
}

func TestFindMatchesReportsPythonOnlyConflict(t *testing.T) {
	repo := &fakeRepo{candidates: map[string][]*candidate.Candidate{
		"foo": {newCandidate("foo", "1.0", must(t, ">=3.10"))},
	}}
	p := New(repo, marker.Current(), must(t, ">=3.6"), false, All, nil, nil, nil)
	req := requirement.Requirement{Kind: requirement.Named, Name: "foo"}

	_, err := p.FindMatches(context.Background(), "foo", []requirement.Requirement{req}, nil)
	var nme NoMatchesError
	if !errors.As(err, &nme) {
		t.Fatalf("got %v, want a NoMatchesError", err)
	}
	if !nme.PythonOnly {
		t.Error("expected PythonOnly=true when every candidate was excluded for requires-python")
	}
	if !errors.Is(err, ErrPythonIncompatible) {
		t.Error("expected errors.Is to match ErrPythonIncompatible")
	}
}

func TestGetDependenciesFiltersByMarker(t *testing.T) {
	linux, err := requirement.Parse("bar; sys_platform == 'linux'", "default")
	if err != nil {
		t.Fatal(err)
	}
	darwin, err := requirement.Parse("baz; sys_platform == 'darwin'", "default")
	if err != nil {
		t.Fatal(err)
	}
	repo := &fakeRepo{deps: map[string][]requirement.Requirement{
		"foo@1.0": {linux, darwin},
	}}
	env := marker.Environment{SysPlatform: "linux"}
	p := New(repo, env, pyspec.AllowAll(), false, All, nil, nil, nil)

	c := newCandidate("foo", "1.0", pyspec.AllowAll())
	deps, err := p.GetDependencies(context.Background(), c, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(deps) != 1 || deps[0].Name != "bar" {
		t.Fatalf("got %v, want only the linux-gated dependency", deps)
	}
}

func TestInjectedConstraintHonorsTrackedNames(t *testing.T) {
	locked := map[string]requirement.Requirement{
		"pytz": {Kind: requirement.Named, Name: "pytz"},
	}
	p := New(nil, marker.Current(), pyspec.AllowAll(), false, Reuse, locked, map[string]bool{"requests": true}, nil)

	if _, ok := p.InjectedConstraint("requests"); ok {
		t.Error("a tracked (being-updated) name must not get an injected pin")
	}
	if _, ok := p.InjectedConstraint("pytz"); !ok {
		t.Error("an untracked name with a locked entry should get an injected pin under Reuse")
	}
}

func TestGetPreferencePrefersExactPinsAndDirectDeps(t *testing.T) {
	p := New(nil, marker.Current(), pyspec.AllowAll(), false, All, nil, nil, []requirement.Requirement{
		{Kind: requirement.Named, Name: "direct"},
	})

	pinned := p.GetPreference(PreferenceInfo{Identifier: "pinned", Requirements: []requirement.Requirement{
		mustReq(t, "pinned==1.0"),
	}})
	ranged := p.GetPreference(PreferenceInfo{Identifier: "ranged", Requirements: []requirement.Requirement{
		mustReq(t, "ranged>=1.0"),
	}})
	if !pinned.Less(ranged) {
		t.Error("an exact pin should be preferred over a range")
	}

	direct := p.GetPreference(PreferenceInfo{Identifier: "direct", Requirements: []requirement.Requirement{
		mustReq(t, "direct>=1.0"),
	}})
	transitive := p.GetPreference(PreferenceInfo{Identifier: "transitive", Requirements: []requirement.Requirement{
		mustReq(t, "transitive>=1.0"),
	}})
	if !direct.Less(transitive) {
		t.Error("a direct dependency should be preferred over a transitive one with equal restrictiveness")
	}
}

func mustReq(t *testing.T, s string) requirement.Requirement {
	t.Helper()
	r, err := requirement.Parse(s, "default")
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestExpandTrackedNamesWalksTransitiveClosure(t *testing.T) {
	mustReq := func(s string) requirement.Requirement {
		r, err := requirement.Parse(s, "default")
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		return r
	}
	// requests -> chardet -> pycparser; pytz is unrelated.
	deps := map[string][]requirement.Requirement{
		"requests": {mustReq("chardet>=3.0")},
		"chardet":  {mustReq("pycparser")},
		"pytz":     nil,
	}

	got := ExpandTrackedNames(deps, map[string]bool{"requests": true})
	for _, id := range []string{"requests", "chardet", "pycparser"} {
		if !got[id] {
			t.Errorf("closure missing %s: %v", id, got)
		}
	}
	if got["pytz"] {
		t.Errorf("closure should not include the unrelated pytz: %v", got)
	}
}
