package resolver

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/wheelhouse-dev/wheelhouse/internal/candidate"
	"github.com/wheelhouse-dev/wheelhouse/internal/pep440"
	"github.com/wheelhouse-dev/wheelhouse/internal/provider"
	"github.com/wheelhouse-dev/wheelhouse/internal/requirement"
)

// fakeProvider is a minimal in-memory Provider for exercising the
// backtracking state machine in isolation from internal/provider's
// repository-backed implementation.
type fakeProvider struct {
	// versions[name] lists every available version, newest first.
	versions map[string][]string
	// deps[name+"@"+version] lists that candidate's own dependencies.
	deps map[string][]requirement.Requirement
	// locked simulates a previously-resolved lockfile entry.
	locked map[string]string
}

func (f *fakeProvider) Identify(req requirement.Requirement) string { return req.Identify() }

func (f *fakeProvider) GetPreference(info provider.PreferenceInfo) provider.PreferenceKey {
	return provider.PreferenceKey{}
}

func (f *fakeProvider) FindMatches(ctx context.Context, identifier string, reqs []requirement.Requirement, incompatibilities map[string]bool) ([]*candidate.Candidate, error) {
	var matches []*candidate.Candidate
	for _, v := range f.versions[identifier] {
		c := candidate.New(identifier, v, "", requirement.Requirement{Kind: requirement.Named, Name: identifier}, nil)
		if incompatibilities[provider.CandidateKey(c)] {
			continue
		}
		ok := true
		for _, r := range reqs {
			if !f.IsSatisfiedBy(r, c) {
				ok = false
				break
			}
		}
		if ok {
			matches = append(matches, c)
		}
	}
	if len(matches) == 0 {
		return nil, provider.NoMatchesError{Identifier: identifier}
	}
	return matches, nil
}

func (f *fakeProvider) IsSatisfiedBy(req requirement.Requirement, c *candidate.Candidate) bool {
	if req.Specifier.Empty() {
		return true
	}
	v, err := pep440.Parse(c.Version)
	if err != nil {
		return false
	}
	return req.Specifier.Contains(v, true)
}

func (f *fakeProvider) GetDependencies(ctx context.Context, c *candidate.Candidate, extras map[string]bool) ([]requirement.Requirement, error) {
	return f.deps[c.Name+"@"+c.Version], nil
}

// InjectedConstraint implements resolver.InjectedConstraintProvider,
// simulating the Reuse/Eager update strategies: a locked vertex not
// in the caller's tracked set resolves pinned to its prior version.
func (f *fakeProvider) InjectedConstraint(identifier string) (requirement.Requirement, bool) {
	v, ok := f.locked[identifier]
	if !ok {
		return requirement.Requirement{}, false
	}
	spec, err := pep440.ParseSpecifierSet("==" + v)
	if err != nil {
		return requirement.Requirement{}, false
	}
	return requirement.Requirement{Kind: requirement.Named, Name: identifier, Specifier: spec}, true
}

func req(t *testing.T, s string) requirement.Requirement {
	t.Helper()
	r, err := requirement.Parse(s, "default")
	if err != nil {
		t.Fatalf("parsing %q: %v", s, err)
	}
	return r
}

func TestResolveSimpleChain(t *testing.T) {
	p := &fakeProvider{
		versions: map[string][]string{
			"a": {"2.0", "1.0"},
			"b": {"1.5", "1.0"},
		},
		deps: map[string][]requirement.Requirement{
			"a@2.0": {req(t, "b>=1.0")},
			"a@1.0": {req(t, "b>=1.0")},
		},
	}
	result, err := Resolve(context.Background(), p, []requirement.Requirement{req(t, "a")}, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Mapping["a"].Version != "2.0" {
		t.Errorf("a = %s, want 2.0 (the newest that satisfies everything)", result.Mapping["a"].Version)
	}
	if result.Mapping["b"].Version != "1.5" {
		t.Errorf("b = %s, want 1.5", result.Mapping["b"].Version)
	}
}

// TestResolveBacktracksOnConflict: a's newest version
// requires a newer b than c's pinned requirement allows, forcing the
// resolver to backtrack and settle for an older a.
func TestResolveBacktracksOnConflict(t *testing.T) {
	p := &fakeProvider{
		versions: map[string][]string{
			"a": {"2.0", "1.0"},
			"b": {"2.0", "1.0"},
			"c": {"1.0"},
		},
		deps: map[string][]requirement.Requirement{
			"a@2.0": {req(t, "b>=2.0")},
			"a@1.0": {req(t, "b>=1.0")},
			"c@1.0": {req(t, "b<2.0")},
		},
	}
	result, err := Resolve(context.Background(), p, []requirement.Requirement{req(t, "a"), req(t, "c")}, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Mapping["a"].Version != "1.0" {
		t.Errorf("a = %s, want 1.0 (2.0 conflicts with c's b<2.0)", result.Mapping["a"].Version)
	}
	if result.Mapping["b"].Version != "1.0" {
		t.Errorf("b = %s, want 1.0", result.Mapping["b"].Version)
	}
}

func TestResolveImpossibleReportsCauses(t *testing.T) {
	p := &fakeProvider{
		versions: map[string][]string{
			"a": {"1.0"},
		},
	}
	_, err := Resolve(context.Background(), p, []requirement.Requirement{req(t, "a>=2.0")}, 0, nil)
	if err == nil {
		t.Fatal("expected a resolution failure")
	}
	var rie ResolutionImpossibleError
	if !as(err, &rie) {
		t.Fatalf("got %v, want a ResolutionImpossibleError", err)
	}
	if !strings.Contains(rie.Error(), "a") {
		t.Errorf("error message %q should mention the failing package", rie.Error())
	}
}

func TestResolveImpossibleForUnknownPackage(t *testing.T) {
	p := &fakeProvider{}
	_, err := Resolve(context.Background(), p, []requirement.Requirement{req(t, "missing")}, 0, nil)
	if err == nil {
		t.Fatal("expected failure for a package with zero versions")
	}
	var rie ResolutionImpossibleError
	if !as(err, &rie) {
		t.Fatalf("got %v, want a ResolutionImpossibleError", err)
	}
}

func TestResolveDefaultsMaxRoundsWhenUnset(t *testing.T) {
	p := &fakeProvider{
		versions: map[string][]string{"a": {"1.0"}},
	}
	result, err := Resolve(context.Background(), p, []requirement.Requirement{req(t, "a")}, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Mapping["a"].Version != "1.0" {
		t.Errorf("a = %s, want 1.0", result.Mapping["a"].Version)
	}
}

// TestResolveOrderIsDeterministic checks that running the same inputs
// twice produces an identical Order slice, since the lockfile writer
// depends on stable iteration.
func TestResolveOrderIsDeterministic(t *testing.T) {
	p := &fakeProvider{
		versions: map[string][]string{
			"a": {"1.0"},
			"b": {"1.0"},
			"c": {"1.0"},
		},
		deps: map[string][]requirement.Requirement{
			"a@1.0": {req(t, "b"), req(t, "c")},
		},
	}
	first, err := Resolve(context.Background(), p, []requirement.Requirement{req(t, "a")}, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Resolve(context.Background(), p, []requirement.Requirement{req(t, "a")}, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(first.Order, ",") != strings.Join(second.Order, ",") {
		t.Errorf("order not deterministic: %v vs %v", first.Order, second.Order)
	}
	want := []string{"a", "b", "c"}
	got := append([]string(nil), first.Order...)
	sort.Strings(got)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("order = %v, want to contain exactly %v", first.Order, want)
	}
}

// TestResolveHonorsInjectedConstraint: adding a new
// root requirement must not move an unrelated package away from its prior
// locked pin, even though a newer version is available.
func TestResolveHonorsInjectedConstraint(t *testing.T) {
	p := &fakeProvider{
		versions: map[string][]string{
			"pytz":     {"2023.3", "2018.5"},
			"requests": {"2.19.1"},
		},
		locked: map[string]string{"pytz": "2018.5"},
	}
	result, err := Resolve(context.Background(), p, []requirement.Requirement{req(t, "pytz"), req(t, "requests")}, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Mapping["pytz"].Version != "2018.5" {
		t.Errorf("pytz = %s, want 2018.5 (the injected lockfile pin, not the newest available)", result.Mapping["pytz"].Version)
	}
	if result.Mapping["requests"].Version != "2.19.1" {
		t.Errorf("requests = %s, want 2.19.1", result.Mapping["requests"].Version)
	}
}

type fakeHashFetcher struct {
	calls map[string]bool
}

func (f *fakeHashFetcher) FetchHashes(ctx context.Context, c *candidate.Candidate) error {
	f.calls[c.Name+"@"+c.Version] = true
	c.Hashes["fetched"] = "sha256:" + c.Version
	return nil
}

// TestResolveFansOutHashFetchingOnSuccess: a
// successful resolution asks the HashFetcher for every pinned candidate
// before returning, not just the ones the caller happens to inspect.
func TestResolveFansOutHashFetchingOnSuccess(t *testing.T) {
	p := &fakeProvider{
		versions: map[string][]string{
			"a": {"1.0"},
			"b": {"1.0"},
		},
		deps: map[string][]requirement.Requirement{
			"a@1.0": {req(t, "b")},
		},
	}
	hf := &fakeHashFetcher{calls: map[string]bool{}}
	result, err := Resolve(context.Background(), p, []requirement.Requirement{req(t, "a")}, 0, hf)
	if err != nil {
		t.Fatal(err)
	}
	if !hf.calls["a@1.0"] || !hf.calls["b@1.0"] {
		t.Errorf("calls = %v, want both a@1.0 and b@1.0 fetched", hf.calls)
	}
	if result.Mapping["a"].Hashes["fetched"] != "sha256:1.0" {
		t.Errorf("expected HashFetcher's result merged onto the candidate")
	}
}

func as(err error, target *ResolutionImpossibleError) bool {
	rie, ok := err.(ResolutionImpossibleError)
	if ok {
		*target = rie
	}
	return ok
}
